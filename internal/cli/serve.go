package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/metrics"
	"github.com/JonMunkholm/deliveryingest/internal/web"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reporting API and the inbox watcher",
		Long: `Serve /healthz, /metrics and the /api reports and job endpoints. When
INBOX_DIR is set, CSV files dropped there are ingested on INBOX_SCHEDULE and
moved to the archive or failed directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"inbox", cfg.Inbox.Dir,
		"events", cfg.EventsEnabled(),
	)

	limiter := a.newIngestLimiter()
	recorder := metrics.NewRecorder(limiter.Active)

	rt, err := a.newIngestRuntime(ctx, limiter, recorder)
	if err != nil {
		return err
	}
	defer rt.close()

	fetcher, err := newFetcher(ctx, cfg, true)
	if err != nil {
		return err
	}

	server := web.NewServer(web.Deps{
		Ingester:     rt.svc,
		Fetcher:      fetcher,
		Reports:      rt.store.Queries(),
		Integrations: rt.store.Queries(),
		DB:           rt.store,
		Metrics:      recorder.Handler(),
	}, cfg)

	var watcher *core.InboxWatcher
	if cfg.InboxEnabled() {
		watcher, err = rt.svc.NewInboxWatcher(core.InboxConfig{
			Dir:        cfg.Inbox.Dir,
			ArchiveDir: cfg.Inbox.ArchiveDir,
			FailedDir:  cfg.Inbox.FailedDir,
			Schedule:   cfg.Inbox.Schedule,
			RunTimeout: cfg.Inbox.RunTimeout,
		})
		if err != nil {
			return err
		}
		watcher.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if watcher != nil {
			_ = watcher.Stop(context.Background())
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(shutdownCtx); err != nil {
			slog.Warn("inbox scan did not finish in time", "error", err)
		}
	}

	if active := limiter.Active(); active > 0 {
		slog.Info("waiting for ingestion to complete", "active", active)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("ingestion did not complete in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
