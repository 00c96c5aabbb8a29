package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Averages are selected as text and parsed into decimal.Decimal so no
// precision is lost to float64.

type StatusCountRow struct {
	Platform string
	Status   string
	Orders   int64
}

const statusCounts = `-- name: StatusCounts :many
SELECT p.name, o.status, count(*)
FROM orders o
JOIN platforms p ON p.id = o.platform_id
GROUP BY p.name, o.status
ORDER BY p.name, o.status
`

func (q *Queries) StatusCounts(ctx context.Context) ([]StatusCountRow, error) {
	rows, err := q.db.Query(ctx, statusCounts)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (StatusCountRow, error) {
		var s StatusCountRow
		err := r.Scan(&s.Platform, &s.Status, &s.Orders)
		return s, err
	})
}

type DeliveryTypeRow struct {
	Platform     string
	DeliveryType string
	Orders       int64
}

const deliveryTypeCounts = `-- name: DeliveryTypeCounts :many
SELECT p.name, o.delivery_type, count(*)
FROM orders o
JOIN platforms p ON p.id = o.platform_id
GROUP BY p.name, o.delivery_type
ORDER BY p.name, o.delivery_type
`

func (q *Queries) DeliveryTypeCounts(ctx context.Context) ([]DeliveryTypeRow, error) {
	rows, err := q.db.Query(ctx, deliveryTypeCounts)
	if err != nil {
		return nil, fmt.Errorf("delivery type counts: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (DeliveryTypeRow, error) {
		var d DeliveryTypeRow
		err := r.Scan(&d.Platform, &d.DeliveryType, &d.Orders)
		return d, err
	})
}

type PrepTimeRow struct {
	Platform   string
	Restaurant string
	Orders     int64
	AvgMinutes decimal.Decimal
	MaxMinutes int
}

const prepTimeByRestaurant = `-- name: PrepTimeByRestaurant :many
SELECT p.name, r.name, count(*),
       round(avg(o.prep_time_minutes), 2)::text,
       max(o.prep_time_minutes)
FROM orders o
JOIN restaurants r ON r.id = o.restaurant_id
JOIN platforms p ON p.id = o.platform_id
WHERE o.prep_time_minutes IS NOT NULL
GROUP BY p.name, r.name
ORDER BY avg(o.prep_time_minutes) DESC, r.name
LIMIT $1
`

func (q *Queries) PrepTimeByRestaurant(ctx context.Context, limit int) ([]PrepTimeRow, error) {
	rows, err := q.db.Query(ctx, prepTimeByRestaurant, limit)
	if err != nil {
		return nil, fmt.Errorf("prep time by restaurant: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (PrepTimeRow, error) {
		var (
			p   PrepTimeRow
			avg string
		)
		if err := r.Scan(&p.Platform, &p.Restaurant, &p.Orders, &avg, &p.MaxMinutes); err != nil {
			return p, err
		}
		d, err := decimal.NewFromString(avg)
		if err != nil {
			return p, fmt.Errorf("parse average prep time %q: %w", avg, err)
		}
		p.AvgMinutes = d
		return p, nil
	})
}

type RatingRow struct {
	Platform   string
	Restaurant string
	Ratings    int64
	AvgRating  decimal.Decimal
	LowRatings int64
}

const ratingsByRestaurant = `-- name: RatingsByRestaurant :many
SELECT p.name, COALESCE(r.name, '(unlinked)'), count(*),
       round(avg(ra.rating), 2)::text,
       count(*) FILTER (WHERE ra.rating <= 2)
FROM ratings ra
JOIN platforms p ON p.id = ra.platform_id
LEFT JOIN restaurants r ON r.id = ra.restaurant_id
GROUP BY p.name, r.name
ORDER BY avg(ra.rating), count(*) DESC
LIMIT $1
`

func (q *Queries) RatingsByRestaurant(ctx context.Context, limit int) ([]RatingRow, error) {
	rows, err := q.db.Query(ctx, ratingsByRestaurant, limit)
	if err != nil {
		return nil, fmt.Errorf("ratings by restaurant: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (RatingRow, error) {
		var (
			rr  RatingRow
			avg string
		)
		if err := r.Scan(&rr.Platform, &rr.Restaurant, &rr.Ratings, &avg, &rr.LowRatings); err != nil {
			return rr, err
		}
		d, err := decimal.NewFromString(avg)
		if err != nil {
			return rr, fmt.Errorf("parse average rating %q: %w", avg, err)
		}
		rr.AvgRating = d
		return rr, nil
	})
}
