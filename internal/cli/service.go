package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/deliveryingest/internal/config"
	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/events"
	"github.com/JonMunkholm/deliveryingest/internal/source"
	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/nats-io/nats.go"
)

// ingestRuntime is a Service with its collaborators.
type ingestRuntime struct {
	store   *store.Store
	svc     *core.Service
	limiter *core.IngestLimiter
	nats    *nats.Conn
}

// newIngestLimiter allows one run at a time, waiting up to INGEST_MAX_WAIT.
func (a *app) newIngestLimiter() *core.IngestLimiter {
	return core.NewIngestLimiter(core.DefaultMaxConcurrentIngests, a.cfg.Ingest.MaxWait)
}

// newIngestRuntime builds the ingestion service around limiter (nil for a
// fresh one). extra observers run alongside the NATS publisher when events
// are enabled.
func (a *app) newIngestRuntime(ctx context.Context, limiter *core.IngestLimiter, extra ...core.Observer) (*ingestRuntime, error) {
	pool, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = a.newIngestLimiter()
	}

	rt := &ingestRuntime{
		store:   store.NewStore(pool),
		limiter: limiter,
	}

	observers := core.Observers(extra)
	if a.cfg.EventsEnabled() {
		nc, err := events.Connect(a.cfg.Events.NATSURL, a.cfg.Events.ClientName, slog.Default())
		if err != nil {
			return nil, err
		}
		rt.nats = nc
		observers = append(observers, events.NewObserver(nc, a.cfg.Events.Subject, slog.Default()))
	}

	rt.svc = core.NewService(rt.store, core.ServiceConfig{
		MaxFileSize:      a.cfg.Ingest.MaxFileSize,
		ProgressInterval: a.cfg.Ingest.ProgressInterval,
		Observer:         observers,
		Limiter:          rt.limiter,
	})
	return rt, nil
}

// close flushes pending events.
func (rt *ingestRuntime) close() {
	if rt.nats == nil {
		return
	}
	if err := rt.nats.Drain(); err != nil {
		slog.Warn("drain nats connection", "error", err)
	}
}

// newFetcher builds a source.Fetcher. The S3 client is only created when
// withS3 is set so local runs never touch AWS configuration.
func newFetcher(ctx context.Context, cfg *config.Config, withS3 bool) (*source.Fetcher, error) {
	opts := []source.Option{
		source.WithMaxSize(cfg.Ingest.MaxFileSize),
		source.WithTempDir(cfg.S3.TempDir),
		source.WithLogger(slog.Default()),
	}
	if withS3 {
		client, err := source.NewS3Client(ctx, s3Config(cfg.S3))
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		opts = append(opts, source.WithS3(client))
	}
	return source.NewFetcher(opts...), nil
}

func s3Config(c config.S3Config) source.S3Config {
	return source.S3Config{
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		UsePathStyle: c.UsePathStyle,
	}
}
