package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// AuthHeader carries the shared secret on every request
const AuthHeader = "x-claude-code-ide-authorization"

// tokenAuthMiddleware rejects requests whose auth header does not match token
func tokenAuthMiddleware(token string, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validToken(r.Header.Get(AuthHeader), token) {
				logger.Warn("rejected unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(candidate, token string) bool {
	if candidate == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1
}
