package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-agent/internal/httputil"
	"ai-agent/internal/orchestrator"
)

// Options configure the REST listener.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	CORSOrigins    []string
	ServiceName    string
	BackendURL     string
}

// Server exposes the orchestrator over HTTP/JSON.
type Server struct {
	svc      orchestrator.Service
	log      *slog.Logger
	gatherer prometheus.Gatherer
	opts     Options
}

func NewServer(svc orchestrator.Service, log *slog.Logger, gatherer prometheus.Gatherer, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 180 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	return &Server{
		svc:      svc,
		log:      log.With("component", "rest"),
		gatherer: gatherer,
		opts:     opts,
	}
}

func (s *Server) Name() string { return "rest" }

// Handler returns the routed handler with the standard middleware stack.
func (s *Server) Handler() http.Handler {
	// The router timeout is an outer guard; handlers apply RequestTimeout themselves.
	r := httputil.NewRouter(s.log, httputil.RouterOptions{
		Timeout:     s.opts.RequestTimeout + s.opts.ShutdownGrace,
		CORSOrigins: s.opts.CORSOrigins,
	})
	r.Get("/health", s.health)
	r.Post("/generate", s.generate)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	return r
}

// Serve listens on Addr until ctx is cancelled, then drains in-flight
// requests for at most ShutdownGrace.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("rest listen %s: %w", s.opts.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rest listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("rest serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownGrace)
	defer cancel()
	s.log.Info("rest shutting down", "grace", s.opts.ShutdownGrace.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("rest shutdown: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"service":     s.opts.ServiceName,
		"llm_backend": s.opts.BackendURL,
	})
}

