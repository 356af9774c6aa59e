package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/casewatch/internal/runtime"
	srv "github.com/mohammad-safakhou/casewatch/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingestion scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Address
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tele, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "casewatch", ServiceVersion: "1.0.0"})
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tele.Shutdown(sctx)
			}()

			if cfg.Storage.Backend == "postgres" || cfg.Storage.CacheBackend == "postgres" {
				if err := srv.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					log.Printf("migrations not applied: %v", err)
				}
			}

			app, err := srv.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if cfg.Server.SchedulerOn {
				sched, err := srv.NewScheduler(cfg.Ingest.Schedule, app.Pipeline, app.Sessions, nil)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			api := srv.New(app, srv.Options{
				SessionSecret:     cfg.Server.SessionSecret,
				SessionTTL:        cfg.Quota.SessionTTL,
				AllowOrigins:      cfg.Server.AllowOrigins,
				Metrics:           tele.Handler(),
				Debug:             cfg.General.Debug,
				AdminToken:        cfg.Server.AdminToken,
				SessionsPerMinute: cfg.Server.SessionsPerMinute,
				SessionBurst:      cfg.Server.SessionBurst,
			})
			errCh := make(chan error, 1)
			go func() { errCh <- api.Start(addr) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return api.Shutdown(sctx)
			}
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.address)")
	return serve
}
