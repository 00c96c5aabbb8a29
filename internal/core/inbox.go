package core

// inbox.go runs the inbox watcher used by `serve`. On each cron tick it
// ingests every *.csv file found in the inbox directory, oldest name first,
// and moves each one out of the inbox when done:
//
//   - completed or duplicate files go to the archive directory
//   - files that failed go to the failed directory
//
// Ticks never overlap (cron.SkipIfStillRunning), and each file goes through
// Service.ProcessFile and so through the service's ingest limiter.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// InboxConfig configures the inbox watcher.
type InboxConfig struct {
	Dir        string
	ArchiveDir string // default: <Dir>/processed
	FailedDir  string // default: <Dir>/failed
	Schedule   string // standard 5-field cron spec or descriptor, default "@every 1m"
	// RunTimeout bounds one file's run (default: 10m).
	RunTimeout time.Duration
}

// ScanSummary reports one inbox pass.
type ScanSummary struct {
	Completed  int
	Duplicates int
	Failed     int
}

// InboxWatcher ingests files dropped into a directory.
type InboxWatcher struct {
	svc    *Service
	cfg    InboxConfig
	cron   *cron.Cron
	logger *slog.Logger
}

// NewInboxWatcher validates cfg and schedules the scan. Call Start to run.
func (s *Service) NewInboxWatcher(cfg InboxConfig) (*InboxWatcher, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("inbox dir is required")
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.Dir, "processed")
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.Dir, "failed")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	for _, dir := range []string{cfg.Dir, cfg.ArchiveDir, cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox dir %s: %w", dir, err)
		}
	}

	logger := slog.Default().With("component", "inbox", "dir", cfg.Dir)
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	w := &InboxWatcher{
		svc:    s,
		cfg:    cfg,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
	}

	if _, err := w.cron.AddFunc(cfg.Schedule, func() {
		w.ScanOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("schedule inbox scan %q: %w", cfg.Schedule, err)
	}
	return w, nil
}

// Start begins running scans in the background.
func (w *InboxWatcher) Start() {
	w.logger.Info("inbox watcher started", "schedule", w.cfg.Schedule)
	w.cron.Start()
}

// Stop stops scheduling and waits for a running scan, or for ctx to end.
func (w *InboxWatcher) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.logger.Info("inbox watcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScanOnce ingests every CSV file currently in the inbox.
func (w *InboxWatcher) ScanOnce(ctx context.Context) ScanSummary {
	var summary ScanSummary

	files, err := w.pending()
	if err != nil {
		w.logger.Error("read inbox", "error", err)
		return summary
	}
	if len(files) == 0 {
		return summary
	}

	ctx = ContextWithTrigger(ctx, Trigger{Source: TriggerInbox})
	start := time.Now()
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}

		runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
		res, err := w.svc.ProcessFile(runCtx, ProcessRequest{Path: path})
		cancel()

		if errors.Is(err, ErrIngestBusy) {
			// Leave the file for the next tick.
			w.logger.Warn("ingest busy, deferring file", "file", path)
			continue
		}

		dest := w.cfg.ArchiveDir
		switch {
		case err != nil:
			summary.Failed++
			dest = w.cfg.FailedDir
			w.logger.Error("inbox file failed", "file", path, "error", err, "user_error", FormatUserError(err))
		case res.Duplicate:
			summary.Duplicates++
		default:
			summary.Completed++
		}

		if err := moveFile(path, dest); err != nil {
			w.logger.Error("move inbox file", "file", path, "dest", dest, "error", err)
		}
	}

	w.logger.Info("inbox scan completed",
		"completed", summary.Completed,
		"duplicates", summary.Duplicates,
		"failed", summary.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary
}

// pending lists inbox CSV files sorted by name.
func (w *InboxWatcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(w.cfg.Dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// moveFile moves path into dir. An existing file of the same name gets a
// timestamp suffix instead of being overwritten.
func moveFile(path, dir string) error {
	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		dest = filepath.Join(dir, fmt.Sprintf("%s.%s%s",
			strings.TrimSuffix(name, ext), time.Now().UTC().Format("20060102T150405"), ext))
	}
	return os.Rename(path, dest)
}
