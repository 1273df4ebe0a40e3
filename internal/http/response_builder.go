package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// statusFor maps an error kind to its transport status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"detail": ...}. Internal failures are logged and
// reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		writeDetail(w, status, "internal server error")
		return
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ledger"`)
	}
	writeDetail(w, status, message(err))
}

// message returns the client-facing text of a domain error, without any
// wrapped cause.
func message(err error) string {
	var e *core.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// envelope is the body of create and update responses:
// {"message": ..., "<entity>": {...}}.
func envelope(msg, key string, entity any) map[string]any {
	return map[string]any{"message": msg, key: entity}
}
