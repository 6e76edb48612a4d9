package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	db "github.com/lueurxax/nutshell/internal/storage"
)

const (
	shutdownGrace = 5 * time.Second
	headerTimeout = 10 * time.Second
)

// Server is the HTTP listener every mode runs: liveness and readiness
// probes plus the Prometheus scrape endpoint. Serve mode mounts the
// intake routes on the same listener via Mount.
type Server struct {
	mux    *http.ServeMux
	port   int
	logger *zerolog.Logger
}

// NewServer builds the listener with the probe and metrics routes.
// Readiness pings the database, so an instance that lost Postgres falls
// out of rotation.
func NewServer(database *db.DB, port int, logger *zerolog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Pool.Ping(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("db not ready: %v", err), http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
	})

	mux.Handle("/metrics", promhttp.Handler())

	return &Server{mux: mux, port: port, logger: logger}
}

// Mount attaches an application handler under pattern.
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start serves until the context is canceled, then drains in-flight
// requests for a grace period.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.mux,
		ReadHeaderTimeout: headerTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Int("port", s.port).Msg("Health check server starting")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	//nolint:contextcheck // the parent context is already canceled, drain on a fresh one
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}
