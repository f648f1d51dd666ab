package server

import (
	"net/http"
	"net/url"
)

// originValidationMiddleware enforces validation of the Origin header on all
// incoming requests. Requests without Origin and loopback origins pass; any other
// origin must be listed. A wildcard "*" allows any origin.
func originValidationMiddleware(allowed []string) Middleware {
	return func(next http.Handler) http.Handler {
		allowedMap := make(map[string]bool, len(allowed))
		for _, v := range allowed {
			allowedMap[v] = true
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || allowedMap["*"] || allowedMap[origin] || isLoopbackOrigin(origin) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "origin not allowed", http.StatusForbidden)
		})
	}
}

func isLoopbackOrigin(origin string) bool {
	URL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch URL.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
