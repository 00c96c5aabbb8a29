package core

// format.go defines the closed set of source formats. Each format owns the
// cross-field fixup applied after field mapping and the decision table that
// derives an order's status.

import (
	"strings"

	"github.com/JonMunkholm/deliveryingest/internal/transform"
)

// Source format names as stored on integrations.
const (
	FormatGeneric         = "generic"
	FormatOrderHistory    = "order_history"
	FormatAggregateCounts = "aggregate_counts"
	FormatSegmentReport   = "segment_report"
)

// Format is a source format variant. The set is closed: only this package
// implements it.
type Format interface {
	// Name is the sourceFormat value that selects this variant.
	Name() string
	// Fixup applies cross-field corrections to a mapped record in place.
	Fixup(rec NormalizedRecord)
	// ResolveStatus derives the order status of a mapped record.
	ResolveStatus(rec NormalizedRecord) OrderStatus

	sealed()
}

// genericFormat is used for integrations without a known source format.
type genericFormat struct{}

func (genericFormat) Name() string { return FormatGeneric }
func (genericFormat) Fixup(NormalizedRecord) {}
func (genericFormat) ResolveStatus(NormalizedRecord) OrderStatus { return StatusAccepted }
func (genericFormat) sealed() {}

// orderHistoryFormat reads per-order history exports.
type orderHistoryFormat struct{}

func (orderHistoryFormat) Name() string { return FormatOrderHistory }
func (orderHistoryFormat) Fixup(NormalizedRecord) {}
func (orderHistoryFormat) sealed() {}

// ResolveStatus keeps a valid status set by a transform; otherwise a
// cancelling party decides, then the completion flag.
func (orderHistoryFormat) ResolveStatus(rec NormalizedRecord) OrderStatus {
	if s, ok := rec[FieldOrderStatus].(string); ok {
		if st, valid := ParseOrderStatus(s); valid {
			return st
		}
	}

	if actor := stringValue(rec[FieldCancelledBy]); actor != "" {
		if strings.EqualFold(actor, "customer") {
			return StatusCancelledCustomer
		}
		return StatusCancelledRestaurant
	}

	if boolValue(rec[FieldIsCompleted]) {
		return StatusCompleted
	}
	return StatusRejected
}

// aggregateCountsFormat reads per-order count exports, which
// carry the date and the time of day in separate columns.
type aggregateCountsFormat struct{}

func (aggregateCountsFormat) Name() string { return FormatAggregateCounts }
func (aggregateCountsFormat) sealed() {}

// Fixup joins order_date and order_time into ordered_at and drops both.
func (aggregateCountsFormat) Fixup(rec NormalizedRecord) {
	_, hasDate := rec[FieldOrderDate]
	_, hasTime := rec[FieldOrderTime]
	if !hasDate && !hasTime {
		return
	}

	combined := transform.ParseDeliveryPlatform2DateTime(
		stringValue(rec[FieldOrderDate]),
		stringValue(rec[FieldOrderTime]),
	)
	if combined != nil {
		rec[FieldOrderedAt] = *combined
	} else if _, ok := rec[FieldOrderedAt]; !ok {
		rec[FieldOrderedAt] = nil
	}

	delete(rec, FieldOrderDate)
	delete(rec, FieldOrderTime)
}

// ResolveStatus checks customer cancellations before partner cancellations,
// then the good/bad outcome.
func (aggregateCountsFormat) ResolveStatus(rec NormalizedRecord) OrderStatus {
	if n, ok := floatValue(rec[FieldCustomerCancelledCount]); ok && n != 0 {
		return StatusCancelledCustomer
	}
	if n, ok := floatValue(rec[FieldPartnerCancelledCount]); ok && n != 0 {
		return StatusCancelledRestaurant
	}

	switch strings.ToLower(stringValue(rec[FieldRawStatus])) {
	case "good":
		return StatusCompleted
	case "bad":
		return StatusRejected
	}
	return StatusAccepted
}

// segmentReportFormat reads segment performance reports.
type segmentReportFormat struct{}

func (segmentReportFormat) Name() string { return FormatSegmentReport }
func (segmentReportFormat) Fixup(NormalizedRecord) {}
func (segmentReportFormat) sealed() {}

// ResolveStatus treats a positive prep time as an accepted order and
// everything else as completed. The export has no status column; this is a
// heuristic carried over as-is.
func (segmentReportFormat) ResolveStatus(rec NormalizedRecord) OrderStatus {
	if n, ok := floatValue(rec[FieldPrepTimeMinutes]); ok && n > 0 {
		return StatusAccepted
	}
	return StatusCompleted
}
