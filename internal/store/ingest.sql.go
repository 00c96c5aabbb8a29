package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/deliveryingest/internal/core"
)

// Upserts report inserted via xmax: a freshly inserted tuple has xmax = 0,
// a tuple rewritten by ON CONFLICT DO UPDATE does not.

const upsertRestaurant = `-- name: UpsertRestaurant :one
INSERT INTO restaurants (platform_id, external_id, name)
VALUES ($1, $2, $3)
ON CONFLICT (platform_id, external_id) DO UPDATE SET
    name       = COALESCE(NULLIF(EXCLUDED.name, ''), restaurants.name),
    updated_at = now()
RETURNING id, (xmax = 0) AS inserted
`

func (q *Queries) UpsertRestaurant(ctx context.Context, p core.RestaurantParams) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := q.db.QueryRow(ctx, upsertRestaurant, p.PlatformID, p.ExternalID, p.Name).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("upsert restaurant %q: %w", p.ExternalID, err)
	}
	return id, inserted, nil
}

const upsertOrder = `-- name: UpsertOrder :one
INSERT INTO orders (
    platform_id, platform_order_id, restaurant_id, status, delivery_type,
    ordered_at, prep_time_minutes, order_value, attributes
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (platform_id, platform_order_id) DO UPDATE SET
    restaurant_id     = COALESCE(EXCLUDED.restaurant_id, orders.restaurant_id),
    status            = EXCLUDED.status,
    delivery_type     = EXCLUDED.delivery_type,
    ordered_at        = COALESCE(EXCLUDED.ordered_at, orders.ordered_at),
    prep_time_minutes = COALESCE(EXCLUDED.prep_time_minutes, orders.prep_time_minutes),
    order_value       = COALESCE(EXCLUDED.order_value, orders.order_value),
    attributes        = orders.attributes || EXCLUDED.attributes,
    updated_at        = now()
RETURNING id, (xmax = 0) AS inserted
`

func (q *Queries) UpsertOrder(ctx context.Context, p core.OrderParams) (int64, bool, error) {
	attrs := p.Attributes
	if attrs == nil {
		attrs = core.NormalizedRecord{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return 0, false, fmt.Errorf("order %q: encode attributes: %w", p.PlatformOrderID, err)
	}

	prepTime, err := toPgInt4(p.PrepTimeMinutes)
	if err != nil {
		return 0, false, fmt.Errorf("order %q: prep time: %w", p.PlatformOrderID, err)
	}

	deliveryType := p.DeliveryType
	if deliveryType == "" {
		deliveryType = "UNKNOWN"
	}

	var (
		id       int64
		inserted bool
	)
	err = q.db.QueryRow(ctx, upsertOrder,
		p.PlatformID,
		p.PlatformOrderID,
		toPgInt8(p.RestaurantID),
		string(p.Status),
		deliveryType,
		toPgTimestamptz(p.OrderedAt),
		prepTime,
		toPgNumeric(p.OrderValue),
		rawAttrs,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("upsert order %q: %w", p.PlatformOrderID, err)
	}
	return id, inserted, nil
}

const upsertRating = `-- name: UpsertRating :one
INSERT INTO ratings (platform_id, platform_order_id, restaurant_id, rating, comment, rated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (platform_id, platform_order_id) DO UPDATE SET
    restaurant_id = COALESCE(EXCLUDED.restaurant_id, ratings.restaurant_id),
    rating        = EXCLUDED.rating,
    comment       = COALESCE(EXCLUDED.comment, ratings.comment),
    rated_at      = COALESCE(EXCLUDED.rated_at, ratings.rated_at),
    updated_at    = now()
RETURNING id, (xmax = 0) AS inserted
`

func (q *Queries) UpsertRating(ctx context.Context, p core.RatingParams) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := q.db.QueryRow(ctx, upsertRating,
		p.PlatformID,
		p.PlatformOrderID,
		toPgInt8(p.RestaurantID),
		toPgNumeric(&p.Rating),
		toPgText(p.Comment),
		toPgTimestamptz(p.RatedAt),
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("upsert rating %q: %w", p.PlatformOrderID, err)
	}
	return id, inserted, nil
}

const isFileAlreadyProcessed = `-- name: IsFileAlreadyProcessed :one
SELECT EXISTS (
    SELECT 1 FROM processed_files
    WHERE integration_id = $1 AND file_hash = $2
)
`

func (q *Queries) IsFileAlreadyProcessed(ctx context.Context, integrationID int64, fileHash string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, isFileAlreadyProcessed, integrationID, fileHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check processed file: %w", err)
	}
	return exists, nil
}

const recordProcessedFile = `-- name: RecordProcessedFile :exec
INSERT INTO processed_files (integration_id, file_path, file_hash, total_rows, job_id)
VALUES ($1, $2, $3, $4, $5)
`

func (q *Queries) RecordProcessedFile(ctx context.Context, f core.ProcessedFile) error {
	_, err := q.db.Exec(ctx, recordProcessedFile,
		f.IntegrationID,
		f.FilePath,
		f.FileHash,
		f.TotalRows,
		toPgUUID(f.JobID),
	)
	if err != nil {
		return fmt.Errorf("record processed file: %w", err)
	}
	return nil
}
