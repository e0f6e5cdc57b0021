// Package httpserver has the shared plumbing for the platform's HTTP
// services: a listener wrapper with graceful shutdown, JSON response
// helpers, and the common middleware stack.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dlerazeezcore/the-book-platform/logger"
)

// Server wraps an http.Server bound to a TCP address.
type Server struct {
	logger logger.Logger
	svr    *http.Server
	ln     net.Listener
}

// NewServer creates a server for the handler, bound to addr. The listener
// is opened immediately so bind errors surface before Start.
func NewServer(l logger.Logger, addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	return &Server{
		logger: l,
		ln:     ln,
		svr: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Addr is the address the server is listening on. Useful when the
// configured port was 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Start serves requests in a goroutine until Shutdown is called.
func (s *Server) Start() {
	go func() {
		if err := s.svr.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server terminated: %v", err)
		}
	}()
}

// Shutdown gracefully shuts the server down, blocking until in-flight
// requests have been served or the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	addr := s.Addr()
	err := s.svr.Shutdown(ctx)
	// Serve may never have been called, in which case the listener is
	// still ours to close.
	if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("shutting down server on %s: %w", addr, err)
	}
	return nil
}

// WriteJSON encodes v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError replies with a JSON {"error": ...} body.
func WriteError(w http.ResponseWriter, err error, code int) {
	WriteJSON(w, code, map[string]string{"error": err.Error()})
}

// ReadJSON decodes the request body into v.
func ReadJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}
