package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asad/blobsync/internal/core"
	"github.com/asad/blobsync/internal/httpx"
	"github.com/asad/blobsync/internal/logging"
	archivesvc "github.com/asad/blobsync/internal/services/archive"
)

const shutdownGrace = 30 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive operations over HTTP",
		Long: `Start the HTTP server on the configured port.
Archive operations are mounted under /archive and run against the configured
connection string.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	connection, err := a.cfg.ConnectionString()
	if err != nil {
		return err
	}

	a.logger.Info("starting blobsync",
		logging.String("version", Version),
		logging.Int("listen_port", a.cfg.ListenPort),
		logging.String("log_level", a.cfg.LogLevel),
		logging.Duration("timeout", a.cfg.Timeout),
	)

	core.ResetServices()
	if err := core.RegisterService(archivesvc.NewService(a.adapter, connection, a.cfg.Timeout, a.logger)); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ListenPort),
		Handler:           httpx.NewEdgeRouter(a.cfg, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", logging.String("address", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
