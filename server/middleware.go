package server

import "net/http"

// Middleware wraps an http.Handler
type Middleware func(next http.Handler) http.Handler

// ChainMiddlewareHandlers wraps h so that the first middleware sees the request first; nil entries are skipped
func ChainMiddlewareHandlers(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		h = mws[i](h)
	}
	return h
}
