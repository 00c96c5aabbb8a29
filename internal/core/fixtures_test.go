package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/deliveryingest/internal/transform"
)

// orderHistoryIntegration reads a per-order export with restaurants.
func orderHistoryIntegration() Integration {
	return Integration{
		ID:           1,
		Name:         "platform1_orders",
		PlatformID:   1,
		SourceFormat: FormatOrderHistory,
		Tables:       []string{TableRestaurants, TableOrders},
		IsActive:     true,
		FieldMapping: FieldMapping{
			{Column: "Order ID", Spec: FieldSpec{Target: FieldPlatformOrderID, Type: FieldString, Required: true}},
			{Column: "Store ID", Spec: FieldSpec{Target: FieldRestaurantExternalID, Type: FieldString}},
			{Column: "Store Name", Spec: FieldSpec{Target: FieldRestaurantName, Type: FieldString}},
			{Column: "Status", Spec: FieldSpec{Target: FieldOrderStatus, Transform: transform.NameDeliveryPlatform1Status}},
			{Column: "Order Type", Spec: FieldSpec{Target: FieldDeliveryType, Transform: transform.NameDeliveryType}},
			{Column: "Placed At", Spec: FieldSpec{Target: FieldOrderedAt, Transform: transform.NameParseDate}},
			{Column: "Prep Time", Spec: FieldSpec{Target: FieldPrepTimeMinutes, Transform: transform.NameTimeToMinutes}},
			{Column: "Subtotal", Spec: FieldSpec{Target: FieldOrderValue, Type: FieldNumber}},
			{Column: "Cancelled By", Spec: FieldSpec{Target: FieldCancelledBy, Transform: transform.NameDeliveryPlatform1CancelReason}},
			{Column: "Completed", Spec: FieldSpec{Target: FieldIsCompleted, Transform: transform.NameDeliveryPlatform1Boolean}},
		},
	}
}

// aggregateCountsIntegration reads a per-order count export.
func aggregateCountsIntegration() Integration {
	return Integration{
		ID:           2,
		Name:         "platform2_counts",
		PlatformID:   2,
		SourceFormat: FormatAggregateCounts,
		Tables:       []string{TableOrders},
		IsActive:     true,
		FieldMapping: FieldMapping{
			{Column: "order_ref", Spec: FieldSpec{Target: FieldPlatformOrderID, Required: true}},
			{Column: "date", Spec: FieldSpec{Target: FieldOrderDate}},
			{Column: "time", Spec: FieldSpec{Target: FieldOrderTime}},
			{Column: "customer_cancels", Spec: FieldSpec{Target: FieldCustomerCancelledCount, Type: FieldNumber, Default: 0.0}},
			{Column: "partner_cancels", Spec: FieldSpec{Target: FieldPartnerCancelledCount, Type: FieldNumber, Default: 0.0}},
			{Column: "outcome", Spec: FieldSpec{Target: FieldRawStatus, Transform: transform.NameDeliveryPlatform2Status}},
		},
	}
}

// segmentReportIntegration reads a segment report with ratings.
func segmentReportIntegration() Integration {
	return Integration{
		ID:           3,
		Name:         "platform3_segments",
		PlatformID:   3,
		SourceFormat: FormatSegmentReport,
		Tables:       []string{TableOrders, TableRatings},
		IsActive:     true,
		FieldMapping: FieldMapping{
			{Column: "Order Number", Spec: FieldSpec{Target: FieldPlatformOrderID, Required: true}},
			{Column: "Prep Minutes", Spec: FieldSpec{Target: FieldPrepTimeMinutes, Type: FieldNumber}},
			{Column: "Stars", Spec: FieldSpec{Target: FieldRating, Type: FieldNumber}},
			{Column: "Feedback", Spec: FieldSpec{Target: FieldRatingComment}},
		},
	}
}

// writeCSV writes content to name inside a temp dir and returns the path.
func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
