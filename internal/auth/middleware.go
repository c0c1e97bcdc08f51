package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/worksafe-io/be-permits/internal/errors"
)

// Rejection errors shared with the handlers, so the middleware and the
// in-handler identity check always surface the same message.
var (
	ErrNoToken      = errors.New(errors.ErrCodeUnauthorized, "access denied: no token provided")
	ErrInvalidToken = errors.New(errors.ErrCodeUnauthorized, "invalid or expired token")
)

// Middleware rejects requests without a valid bearer token and attaches
// the verified identity to the request context.
func Middleware(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, ErrNoToken.Message)
				return
			}

			id, err := tm.VerifyToken(token)
			if err != nil {
				unauthorized(w, ErrInvalidToken.Message)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
