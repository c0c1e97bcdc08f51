package handler

import (
	"encoding/json"
	"net/http"

	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/middleware"
)

// writeSuccess writes the standard response envelope with extra payload
// fields merged in.
func writeSuccess(w http.ResponseWriter, status int, message string, payload map[string]any) {
	body := map[string]any{
		"success": true,
		"message": message,
	}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError maps a coded error onto its HTTP status. Internal errors
// are logged in full and surfaced with a generic message only.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := errors.CodeOf(err)
	if code == errors.ErrCodeInternal {
		log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Msg("request failed")
	}

	writeJSON(w, httpStatus(code), map[string]any{
		"success": false,
		"message": errors.MessageOf(err),
	})
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
