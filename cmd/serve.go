package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/api"
	"github.com/BD4L/breachwatch/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs periodic ingestion with an HTTP status API",
		Long: `Starts the ingestion service: an HTTP API exposing run reports, source
configuration, and Prometheus metrics, plus a background loop that runs a
full ingestion pass on the configured interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			return serve(cmd.Context(), rt)
		},
	}
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	sources := make([]api.SourceStatus, 0, len(rt.cfg.Sources))
	for _, src := range rt.cfg.Sources {
		sources = append(sources, api.SourceStatus{
			ID:         src.ID,
			Name:       src.Name,
			ListingURL: src.ListingURL,
		})
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", rt.cfg.Server.Port),
		Handler:           api.NewServer(rt.runs, sources, rt.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go ingestLoop(ctx, rt)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	rt.logger.Info("server stopped")
	return nil
}

// ingestLoop runs a full pass immediately, then on every interval tick
// until the context is canceled.
func ingestLoop(ctx context.Context, rt *runtime) {
	if err := rt.runIngest(ctx, ""); err != nil && ctx.Err() == nil {
		rt.logger.Error("ingestion pass failed", zap.Error(err))
	}
	ticker := time.NewTicker(rt.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.runIngest(ctx, ""); err != nil && ctx.Err() == nil {
				rt.logger.Error("ingestion pass failed", zap.Error(err))
			}
		}
	}
}
