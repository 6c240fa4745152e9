package sysconfig

// Config keys read by the authentication core. Shipped defaults live in
// defaults.yaml and apply whenever the system_config row is absent.
const (
	KeyDeviceSessionTTLSeconds   = "security.device_session_ttl_seconds"
	KeyDevicePollIntervalSeconds = "security.device_poll_interval_seconds"
	KeyDeviceFailLimit           = "security.device_failed_attempts_limit"
	KeyDeviceCheckWindowHours    = "security.device_check_window_hours"

	KeyMFAFailLimit           = "security.mfa_failed_attempts_limit"
	KeyMFACheckWindowHours    = "security.mfa_check_window_hours"
	KeyMFALockoutHours        = "security.mfa_lockout_duration_hours"
	KeyBackupCodesCount       = "security.backup_codes_count"

	KeyFailedLoginLimit       = "security.failed_login_attempts_limit"
	KeyAccountLockoutHours    = "security.account_lockout_duration_hours"
	KeyPasswordChangeLimit    = "security.password_change_limit_per_24h"
	KeyPasswordHistoryHours   = "security.password_history_window_hours"
)
