// Package server exposes the tool-invocation endpoint on loopback.
//
// Two transports share one dispatcher: a WebSocket session on the root path and
// a server-sent-events stream on /sse paired with POST /message. Every request
// must carry the shared secret in the AuthHeader header.
//
//	srv, _ := server.New(server.WithHost(myHost))
//	listener, _ := server.Listen("", server.DefaultPortMin, server.DefaultPortMax, server.DefaultPortAttempts)
//	go srv.Serve(listener)
//	defer srv.Shutdown(ctx)
package server
