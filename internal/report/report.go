// Package report builds the analysis summary printed by `analyse` and served
// under /api/reports.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultLimit caps the per-restaurant and job sections.
const DefaultLimit = 10

// Source is the read side the report is built from. *store.Queries
// satisfies it.
type Source interface {
	StatusCounts(ctx context.Context) ([]store.StatusCountRow, error)
	DeliveryTypeCounts(ctx context.Context) ([]store.DeliveryTypeRow, error)
	PrepTimeByRestaurant(ctx context.Context, limit int) ([]store.PrepTimeRow, error)
	RatingsByRestaurant(ctx context.Context, limit int) ([]store.RatingRow, error)
	ListJobs(ctx context.Context, limit int) ([]core.IngestionJob, error)
}

// Share is one bucket of a breakdown with its percentage of the total.
type Share struct {
	Label   string          `json:"label"`
	Count   int64           `json:"count"`
	Percent decimal.Decimal `json:"percent"`
}

// Breakdown groups shares under one platform.
type Breakdown struct {
	Platform string  `json:"platform"`
	Total    int64   `json:"total"`
	Shares   []Share `json:"shares"`
}

type PrepTime struct {
	Platform   string          `json:"platform"`
	Restaurant string          `json:"restaurant"`
	Orders     int64           `json:"orders"`
	AvgMinutes decimal.Decimal `json:"avgMinutes"`
	MaxMinutes int             `json:"maxMinutes"`
}

type Rating struct {
	Platform   string          `json:"platform"`
	Restaurant string          `json:"restaurant"`
	Ratings    int64           `json:"ratings"`
	Average    decimal.Decimal `json:"average"`
	LowShare   decimal.Decimal `json:"lowShare"`
}

// Report is the full analysis.
type Report struct {
	GeneratedAt  time.Time           `json:"generatedAt"`
	Statuses     []Breakdown         `json:"statuses"`
	DeliveryMix  []Breakdown         `json:"deliveryMix"`
	PrepTimes    []PrepTime          `json:"prepTimes"`
	Ratings      []Rating            `json:"ratings"`
	RecentJobs   []core.IngestionJob `json:"recentJobs"`
	TotalOrders  int64               `json:"totalOrders"`
	TotalRatings int64               `json:"totalRatings"`
}

// Options tunes Build.
type Options struct {
	Limit int
	Now   func() time.Time
}

// Build runs every report query against src.
func Build(ctx context.Context, src Source, opts Options) (*Report, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	statuses, err := src.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	types, err := src.DeliveryTypeCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	prep, err := src.PrepTimeByRestaurant(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	ratings, err := src.RatingsByRestaurant(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	jobs, err := src.ListJobs(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	r := &Report{
		GeneratedAt: opts.Now().UTC(),
		RecentJobs:  jobs,
	}

	statusCounts := make([]labelled, len(statuses))
	for i, s := range statuses {
		statusCounts[i] = labelled{s.Platform, s.Status, s.Orders}
		r.TotalOrders += s.Orders
	}
	r.Statuses = breakdowns(statusCounts)

	typeCounts := make([]labelled, len(types))
	for i, t := range types {
		typeCounts[i] = labelled{t.Platform, t.DeliveryType, t.Orders}
	}
	r.DeliveryMix = breakdowns(typeCounts)

	for _, p := range prep {
		r.PrepTimes = append(r.PrepTimes, PrepTime{
			Platform:   p.Platform,
			Restaurant: p.Restaurant,
			Orders:     p.Orders,
			AvgMinutes: p.AvgMinutes,
			MaxMinutes: p.MaxMinutes,
		})
	}

	for _, rt := range ratings {
		r.TotalRatings += rt.Ratings
		r.Ratings = append(r.Ratings, Rating{
			Platform:   rt.Platform,
			Restaurant: rt.Restaurant,
			Ratings:    rt.Ratings,
			Average:    rt.AvgRating,
			LowShare:   Percent(rt.LowRatings, rt.Ratings),
		})
	}

	return r, nil
}

type labelled struct {
	platform string
	label    string
	count    int64
}

// breakdowns groups rows by platform, keeping the input order. Rows are
// expected sorted by platform.
func breakdowns(rows []labelled) []Breakdown {
	var out []Breakdown
	for _, row := range rows {
		if len(out) == 0 || out[len(out)-1].Platform != row.platform {
			out = append(out, Breakdown{Platform: row.platform})
		}
		b := &out[len(out)-1]
		b.Total += row.count
		b.Shares = append(b.Shares, Share{Label: row.label, Count: row.count})
	}

	for i := range out {
		for j := range out[i].Shares {
			out[i].Shares[j].Percent = Percent(out[i].Shares[j].Count, out[i].Total)
		}
	}
	return out
}

// Percent returns part/total as a percentage rounded to one decimal place.
// A zero total yields zero.
func Percent(part, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(total), 1)
}
