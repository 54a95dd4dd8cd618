package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/aeoengine/internal/runtime"
	srv "github.com/mohammad-safakhou/aeoengine/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var migrateFirst bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrateFirst {
				dsn, err := runtime.BuildPostgresDSN(cfg)
				if err != nil {
					return err
				}
				if err := srv.Migrate(srv.DefaultMigrationsDir, dsn, "up", 0); err != nil {
					return err
				}
				kdsn, err := runtime.KnowledgeDSN(cfg)
				if err != nil {
					return err
				}
				// the remote index is optional; the store falls back to the local one
				if err := srv.MigrateKnowledge(ctx, srv.DefaultKnowledgeMigrationsDir, kdsn, "up", 0); err != nil {
					logger.Warn("knowledge migrations not applied", "error", err)
				}
			}

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			e := srv.New(srv.Options{
				Service:        a.service,
				Ingester:       a.knowledge,
				Telemetry:      a.telemetry,
				Logger:         logger,
				CorpusDir:      cfg.Knowledge.CorpusDir,
				UploadMaxBytes: cfg.Server.UploadMaxBytes,
				AdminJWTSecret: cfg.Server.AdminJWTSecret,
			})

			if cfg.Knowledge.ReingestCron != "" {
				sched := srv.NewScheduler(a.knowledge, cfg.Knowledge.CorpusDir, cfg.Knowledge.ReingestCron, logger)
				sched.Start(ctx)
				defer sched.Stop()
			}

			addr := cfg.Server.Address
			if serveAddr != "" {
				addr = serveAddr
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr)
				errCh <- e.Start(addr)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")

	return serve
}
