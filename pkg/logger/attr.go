package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// ClientID records a pairing client identifier under the key "client_id".
func ClientID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("client_id", id)
}

// Action records a limiter action name under the key "action".
func Action(action string) slog.Attr {
	if action == "" {
		return slog.Attr{}
	}
	return slog.String("action", action)
}

// IP records a client address under the key "ip".
func IP(addr string) slog.Attr {
	if addr == "" {
		return slog.Attr{}
	}
	return slog.String("ip", addr)
}
