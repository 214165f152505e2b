package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/pageflow/internal/config"
	pfhttp "github.com/aretw0/pageflow/pkg/adapters/http"
	"github.com/aretw0/pageflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ServeOptions configures the fixture server.
type ServeOptions struct {
	Config config.Config
	Out    io.Writer
}

// RunServe serves the fixture directory until ctx is cancelled.
func RunServe(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config
	logger, err := createLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	serverOpts := []pfhttp.ServerOption{pfhttp.WithServerLogger(logger)}
	if cfg.Serve.Metrics {
		metrics := observability.NewMetrics()
		metrics.Registry().MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		serverOpts = append(serverOpts, pfhttp.WithMetricsHandler(metrics.Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           pfhttp.NewServer(os.DirFS(cfg.Serve.Dir), serverOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(opts.Out, "Serving %s on %s", cfg.Serve.Dir, srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		printSystemMessage(opts.Out, "Shutting down")
		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete: %w", err)
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
