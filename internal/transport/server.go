package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	applog "tuner/internal/log"
)

const shutdownTimeout = 2 * time.Second

// HTTPServer serves the WebSocket feed and the metrics endpoint.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a server for addr that dispatches to handler.
func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run listens until ctx is cancelled, then shuts the server down.
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	applog.Infof("HTTPServer: Listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		applog.Warnf("HTTPServer: Shutdown: %v", err)
		return s.server.Close()
	}
	applog.Infof("HTTPServer: Stopped")
	return nil
}
