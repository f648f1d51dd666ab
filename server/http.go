package server

import (
	"net/http"
)

// Handler returns the HTTP handler serving the WebSocket root, the SSE stream and the message endpoint.
// Every route requires the auth header.
func (s *Server) Handler() http.Handler {
	middlewareHandlers := []Middleware{
		originValidationMiddleware(s.allowedOrigins),
		tokenAuthMiddleware(s.token, s.logger),
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+s.wsURI+"{$}", ChainMiddlewareHandlers(http.HandlerFunc(s.handleWebSocket), middlewareHandlers...))
	mux.Handle("GET "+s.sseURI, ChainMiddlewareHandlers(s.sseHandler, middlewareHandlers...))
	mux.Handle("POST "+s.sseMessageURI, ChainMiddlewareHandlers(s.sseMessageMiddleware(s.sseHandler), middlewareHandlers...))
	return mux
}
