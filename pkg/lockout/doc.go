// Package lockout tracks failed attempts per (identity, action) and
// escalates to a timed lockout once a configured threshold is crossed within
// a sliding window.
//
// The counters are durable rows, not in-process state: a process restart
// must not reset an attacker's budget. Lockouts are never cleared, they
// expire by wall-clock comparison only, and a successful action does not
// retroactively reduce the failure count.
//
// Identity namespaces are disjoint by construction: device-side limiting is
// keyed by client id + requester IP (the device is pre-authentication),
// human-side limiting by authenticated user id, and failures for one action
// never count against another.
package lockout
