package core

// rows.go turns a normalized record into the upserts its integration's
// tables call for. The order row is the primary entity when the integration
// targets orders, then ratings, then restaurants; Result.Inserted counts new
// primary rows.

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/JonMunkholm/deliveryingest/internal/transform"
)

func persistRecord(ctx context.Context, tx TxStore, integ Integration, rec NormalizedRecord) (bool, error) {
	var (
		restaurantID *int64
		inserted     bool
	)

	if integ.Targets(TableRestaurants) {
		if p, ok := restaurantParams(integ.PlatformID, rec); ok {
			id, created, err := tx.UpsertRestaurant(ctx, p)
			if err != nil {
				return false, fmt.Errorf("upsert restaurant %q: %w", p.ExternalID, err)
			}
			restaurantID = &id
			inserted = created
		}
	}

	if integ.Targets(TableOrders) {
		p := orderParams(integ.PlatformID, rec, restaurantID)
		_, created, err := tx.UpsertOrder(ctx, p)
		if err != nil {
			return false, fmt.Errorf("upsert order %q: %w", p.PlatformOrderID, err)
		}
		inserted = created
	}

	if integ.Targets(TableRatings) {
		if p, ok := ratingParams(integ.PlatformID, rec, restaurantID); ok {
			_, created, err := tx.UpsertRating(ctx, p)
			if err != nil {
				return false, fmt.Errorf("upsert rating %q: %w", p.PlatformOrderID, err)
			}
			if !integ.Targets(TableOrders) {
				inserted = created
			}
		}
	}

	return inserted, nil
}

// Column ranges of the orders and ratings tables.
const (
	maxPrepTimeMinutes = math.MaxInt32
	maxOrderValue      = 1e10 // NUMERIC(12,2)
	maxRating          = 100  // NUMERIC(4,2)
)

// checkLimits rejects a record holding a value its target columns cannot
// store, so the file fails on the offending line rather than in the database.
func checkLimits(integ Integration, rec NormalizedRecord) *RangeError {
	if integ.Targets(TableOrders) {
		if f, ok := floatValue(rec[FieldPrepTimeMinutes]); ok {
			m := transform.RoundHalfUp(f)
			if !(m >= math.MinInt32 && m <= maxPrepTimeMinutes) {
				return rangeError(FieldPrepTimeMinutes, f, maxPrepTimeMinutes+1)
			}
		}
		if f, ok := floatValue(rec[FieldOrderValue]); ok && !fitsNumeric(f, maxOrderValue) {
			return rangeError(FieldOrderValue, f, maxOrderValue)
		}
	}
	if integ.Targets(TableRatings) {
		if f, ok := floatValue(rec[FieldRating]); ok && !fitsNumeric(f, maxRating) {
			return rangeError(FieldRating, f, maxRating)
		}
	}
	return nil
}

// fitsNumeric reports whether f rounded to cents stays below limit in magnitude.
func fitsNumeric(f, limit float64) bool {
	return math.Abs(math.Round(f*100)/100) < limit
}

func rangeError(field string, v, limit float64) *RangeError {
	return &RangeError{
		Field: field,
		Value: strconv.FormatFloat(v, 'g', -1, 64),
		Limit: strconv.FormatFloat(limit, 'f', -1, 64),
	}
}

func restaurantParams(platformID int, rec NormalizedRecord) (RestaurantParams, bool) {
	ext := stringValue(rec[FieldRestaurantExternalID])
	if ext == "" {
		return RestaurantParams{}, false
	}
	name := stringValue(rec[FieldRestaurantName])
	if name == "" {
		name = ext
	}
	return RestaurantParams{PlatformID: platformID, ExternalID: ext, Name: name}, true
}

func orderParams(platformID int, rec NormalizedRecord, restaurantID *int64) OrderParams {
	p := OrderParams{
		PlatformID:      platformID,
		PlatformOrderID: stringValue(rec[FieldPlatformOrderID]),
		RestaurantID:    restaurantID,
		Status:          StatusAccepted,
		DeliveryType:    transform.DeliveryType(stringValue(rec[FieldDeliveryType])),
		OrderedAt:       timeValue(rec[FieldOrderedAt]),
		Attributes:      rec,
	}
	if st, ok := ParseOrderStatus(stringValue(rec[FieldOrderStatus])); ok {
		p.Status = st
	}
	if f, ok := floatValue(rec[FieldPrepTimeMinutes]); ok {
		m := int(transform.RoundHalfUp(f))
		p.PrepTimeMinutes = &m
	}
	if f, ok := floatValue(rec[FieldOrderValue]); ok {
		p.OrderValue = &f
	}
	return p
}

func ratingParams(platformID int, rec NormalizedRecord, restaurantID *int64) (RatingParams, bool) {
	orderID := stringValue(rec[FieldPlatformOrderID])
	rating, ok := floatValue(rec[FieldRating])
	if orderID == "" || !ok {
		return RatingParams{}, false
	}

	p := RatingParams{
		PlatformID:      platformID,
		PlatformOrderID: orderID,
		RestaurantID:    restaurantID,
		Rating:          rating,
		RatedAt:         timeValue(rec[FieldOrderedAt]),
	}
	if c := stringValue(rec[FieldRatingComment]); c != "" {
		p.Comment = &c
	}
	return p, true
}
