package store

import (
	"context"
	"fmt"
)

const resetData = `-- name: ResetData :exec
TRUNCATE processed_files, ingestion_jobs, ratings, orders, restaurants RESTART IDENTITY
`

// ResetData removes normalized rows, jobs and the dedup ledger.
// Platforms and integrations are kept.
func (q *Queries) ResetData(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, resetData); err != nil {
		return fmt.Errorf("reset data: %w", err)
	}
	return nil
}

const countRows = `-- name: CountRows :one
SELECT
    (SELECT count(*) FROM restaurants),
    (SELECT count(*) FROM orders),
    (SELECT count(*) FROM ratings),
    (SELECT count(*) FROM ingestion_jobs),
    (SELECT count(*) FROM processed_files)
`

// RowCounts is a snapshot of table sizes.
type RowCounts struct {
	Restaurants    int64 `json:"restaurants"`
	Orders         int64 `json:"orders"`
	Ratings        int64 `json:"ratings"`
	Jobs           int64 `json:"jobs"`
	ProcessedFiles int64 `json:"processedFiles"`
}

func (q *Queries) CountRows(ctx context.Context) (RowCounts, error) {
	var c RowCounts
	err := q.db.QueryRow(ctx, countRows).Scan(
		&c.Restaurants,
		&c.Orders,
		&c.Ratings,
		&c.Jobs,
		&c.ProcessedFiles,
	)
	if err != nil {
		return RowCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
