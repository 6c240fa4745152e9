// Package sysconfig reads security policy values from the system_config
// table. Every numeric threshold in the authentication core is a config row,
// not a constant: limits, windows and lockout durations can be tuned without
// a deploy.
//
// Reads go through a short-TTL in-process cache. A missing row, a store
// error or an unparsable value silently falls back to the shipped default
// from the embedded defaults.yaml - config fetch failures must never fail a
// request.
package sysconfig
