package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/auth"
	"github.com/BikramMondal5/MediVerify/internal/config"
	"github.com/BikramMondal5/MediVerify/internal/handlers"
	"github.com/BikramMondal5/MediVerify/internal/images"
	"github.com/BikramMondal5/MediVerify/internal/records"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MediVerify API server",
		Long: `Starts the MediVerify HTTP API on the specified port.

Verifications are stored in Postgres when MEDIVERIFY_POSTGRES_DSN is set and
in memory otherwise. Uploaded images go to S3 when MEDIVERIFY_S3_BUCKET is
set and to the local uploads directory otherwise.`,
		Example: `  # Start server on default port 5000
  mediverify serve

  # Start server on custom port
  mediverify serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			ctx := cmd.Context()

			analyzer, err := newAnalyzer(cfg)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			recordStore, closeRecords, err := newRecordStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRecords()

			imageStore, uploads, err := newImageStore(ctx, cfg)
			if err != nil {
				return err
			}

			handler := handlers.New(handlers.Options{
				Auth:     auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
				Analyzer: analyzer,
				Records:  recordStore,
				Images:   imageStore,
				Uploads:  uploads,
				Store:    store,
				Workflow: workflowOptions(cfg),
				Sessions: handlers.SessionLimits{
					Idle: cfg.Sessions.IdleTTL,
					Max:  cfg.Sessions.Max,
				},
			})
			defer handler.Close()

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("MediVerify API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-ctx.Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "5000", "Port to listen on")

	return cmd
}

func newRecordStore(ctx context.Context, cfg *config.Config) (records.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		slog.Warn("No Postgres DSN configured, verifications are kept in memory")
		return records.NewMemoryStore(), func() {}, nil
	}
	pg, err := records.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Migrate)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using Postgres record store")
	return pg, pg.Close, nil
}

// newImageStore returns the disk store as the second value when images are
// served locally.
func newImageStore(ctx context.Context, cfg *config.Config) (images.Store, *images.DiskStore, error) {
	if cfg.S3.Bucket == "" {
		disk := images.NewDiskStore(cfg.UploadsDir())
		return disk, disk, nil
	}
	s3Store, err := images.NewS3Store(ctx, images.S3Options{
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Prefix:    "uploads",
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using S3 image store", "bucket", cfg.S3.Bucket)
	return s3Store, nil, nil
}
