// Package status serves the read-only status endpoints of a running batch.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
	imw "github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/middleware"
)

// NewRouter mounts /healthz, /readyz, /progress and, when metrics is not
// nil, /metrics.
func NewRouter(logger *slog.Logger, pr health.ProgressReporter, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(imw.Recover(logger))
	r.Use(imw.Logging(logger))
	r.Use(imw.ReadOnly())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(pr))
	r.Get("/progress", health.ProgressHandler(pr))
	if metrics != nil {
		r.Get("/metrics", metrics.ServeHTTP)
	}
	return r
}

// Run serves h on addr until ctx is done.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, logger, h)
}

func Serve(ctx context.Context, ln net.Listener, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status listen", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
