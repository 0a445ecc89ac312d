// Package control serves a small local HTTP API for driving the active
// focus session from scripts, editor plugins or a browser extension.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benvon/onetask/internal/focus"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	serviceName     = "onetask-control"
	shutdownTimeout = 5 * time.Second
)

// SessionSource reports the focus session currently running, or nil.
type SessionSource interface {
	ActiveSession() *focus.Session
}

// SessionSourceFunc adapts a function to SessionSource.
type SessionSourceFunc func() *focus.Session

func (f SessionSourceFunc) ActiveSession() *focus.Session { return f() }

// Options configures the server.
type Options struct {
	AllowedOrigins []string
	// Rate in limiter format; empty disables rate limiting.
	Rate    string
	Tracing bool
}

// Server is the control API.
type Server struct {
	sessions SessionSource
	logger   *zap.Logger
	router   *mux.Router
}

// NewServer builds the router and middleware chain.
func NewServer(sessions SessionSource, opts Options, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{sessions: sessions, logger: logger, router: mux.NewRouter()}

	// gorilla/mux runs middleware in registration order, first is outermost.
	if opts.Tracing {
		s.router.Use(otelmux.Middleware(serviceName))
	}
	s.router.Use(SecurityHeaders)
	s.router.Use(CORS(opts.AllowedOrigins))
	s.router.Use(Recover(logger))
	s.router.Use(Logging(logger))
	s.router.Use(LimitBody(maxBodyBytes))

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/focus").Subrouter()
	if opts.Rate != "" {
		limit, err := RateLimit(opts.Rate)
		if err != nil {
			return nil, err
		}
		api.Use(limit)
	}
	api.HandleFunc("", s.getFocus).Methods(http.MethodGet)
	api.HandleFunc("/pause", s.pause).Methods(http.MethodPost)
	api.HandleFunc("/resume", s.resume).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.stop).Methods(http.MethodPost)
	api.HandleFunc("/end", s.end).Methods(http.MethodPost)

	// Subrouters do not inherit these from the root router.
	for _, r := range []*mux.Router{s.router, api} {
		r.NotFoundHandler = http.HandlerFunc(notFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control_api_listening", zap.String("addr", l.Addr().String()))
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API stopped: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down control API: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}
