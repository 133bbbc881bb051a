package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Server exposes /metrics and /healthz.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	gatherer   prometheus.Gatherer
	checks     map[string]Check
	logger     *zap.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, checks map[string]Check, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:   mux.NewRouter(),
		gatherer: gatherer,
		checks:   checks,
		logger:   logger,
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	body := map[string]string{}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			body[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
