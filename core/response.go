// Package core carries the HTTP plumbing shared by every module: JSON
// rendering, the tagged error shape of the public API, and CORS.
package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the wire shape of every error response. Tag is a stable,
// machine-readable token (invalid_grant, code_already_used, ...); Message is
// human-readable and may change between releases.
type ErrorBody struct {
	Tag     string `json:"error"`
	Message string `json:"message,omitempty"`
	// Extra fields merged into the body, e.g. locked_until or attempt_count.
	Extra map[string]any `json:"-"`
}

func (e ErrorBody) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 2+len(e.Extra))
	body["error"] = e.Tag
	if e.Message != "" {
		body["message"] = e.Message
	}
	for k, v := range e.Extra {
		body[k] = v
	}
	return json.Marshal(body)
}

// JSON writes v with the given status. Encoding failures are logged, not
// surfaced: headers are already written by then.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", slog.Any("error", err))
	}
}

// Error writes a tagged error body.
func Error(w http.ResponseWriter, status int, tag, message string) {
	JSON(w, status, ErrorBody{Tag: tag, Message: message})
}

// ErrorWith writes a tagged error body with additional fields, used where a
// caller needs data to back off intelligently (locked_until, remaining).
func ErrorWith(w http.ResponseWriter, status int, tag, message string, extra map[string]any) {
	JSON(w, status, ErrorBody{Tag: tag, Message: message, Extra: extra})
}

// Internal writes the generic 500 body. Details belong in server-side logs
// only, never in the response.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "server_error", "internal server error")
}
