// Package httpapi serves the manager's operational endpoints: Prometheus
// metrics, a health report and the list of live workers. It is not the
// inference API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workermgr/internal/manager"
	"workermgr/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Workers() []types.WorkerStatus
	SanityCheck() manager.SanityReport
	Uptime() time.Duration
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	r.Use(AccessLog)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/workers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.WorkersResponse{
			Workers:       svc.Workers(),
			UptimeSeconds: int64(svc.Uptime().Seconds()),
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		rep := svc.SanityCheck()
		status := http.StatusOK
		if !rep.WorkerBinFound {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, rep)
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// ListenAndServe runs the ops server on addr until ctx is canceled, then
// shuts it down with a short grace period.
func ListenAndServe(ctx context.Context, addr string, svc Service) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(svc),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger().Info().Str("addr", addr).Msg("ops http listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error().Err(err).Msg("encode response")
	}
}
