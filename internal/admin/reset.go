// Package admin holds destructive maintenance operations.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/store"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// Resetter is the store surface Reset needs. *store.Queries satisfies it.
type Resetter interface {
	CountRows(ctx context.Context) (store.RowCounts, error)
	ResetData(ctx context.Context) error
}

// Reset truncates restaurants, orders, ratings, jobs and the processed-file
// ledger. Platforms and integrations are kept. It returns the row counts
// that were removed.
func Reset(ctx context.Context, r Resetter, logger *slog.Logger) (store.RowCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	before, err := r.CountRows(ctx)
	if err != nil {
		return store.RowCounts{}, fmt.Errorf("count rows: %w", err)
	}
	if err := r.ResetData(ctx); err != nil {
		return store.RowCounts{}, fmt.Errorf("reset data: %w", err)
	}

	logger.Info("data reset",
		"restaurants", before.Restaurants,
		"orders", before.Orders,
		"ratings", before.Ratings,
		"jobs", before.Jobs,
		"processed_files", before.ProcessedFiles,
	)
	return before, nil
}
