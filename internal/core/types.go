package core

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Target tables an integration can feed.
const (
	TableRestaurants = "restaurants"
	TableOrders      = "orders"
	TableRatings     = "ratings"
)

// Normalized field names shared by the field mappings, the source formats
// and the store.
const (
	FieldPlatformID             = "platform_id"
	FieldPlatformOrderID        = "platform_order_id"
	FieldRestaurantExternalID   = "restaurant_external_id"
	FieldRestaurantName         = "restaurant_name"
	FieldOrderStatus            = "order_status"
	FieldDeliveryType           = "delivery_type"
	FieldOrderedAt              = "ordered_at"
	FieldOrderDate              = "order_date"
	FieldOrderTime              = "order_time"
	FieldPrepTimeMinutes        = "prep_time_minutes"
	FieldOrderValue             = "order_value"
	FieldIsCompleted            = "is_completed"
	FieldCancelledBy            = "cancelled_by"
	FieldCustomerCancelledCount = "customer_cancelled_count"
	FieldPartnerCancelledCount  = "partner_cancelled_count"
	FieldRawStatus              = "raw_status"
	FieldAcceptStatus           = "accept_status"
	FieldRating                 = "rating"
	FieldRatingComment          = "rating_comment"
)

// FieldType is the built-in coercion applied to a column without a transform.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldEnum    FieldType = "enum"
)

// FieldSpec describes how one source column becomes one normalized field.
type FieldSpec struct {
	Target     string    `json:"target" yaml:"target"`
	Type       FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	EnumValues []string  `json:"enumValues,omitempty" yaml:"enumValues,omitempty"`
	Transform  string    `json:"transform,omitempty" yaml:"transform,omitempty"`
	Required   bool      `json:"required,omitempty" yaml:"required,omitempty"`
	// Default replaces an empty raw value. nil means no default.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// Integration binds a source file layout to the normalized schema.
type Integration struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	PlatformID   int          `json:"platformId"`
	SourceFormat string       `json:"sourceFormat"`
	FieldMapping FieldMapping `json:"fieldMapping"`
	Tables       []string     `json:"tables"`
	IsActive     bool         `json:"isActive"`
}

// Targets reports whether the integration writes to table.
func (i Integration) Targets(table string) bool {
	return slices.ContainsFunc(i.Tables, func(t string) bool {
		return strings.EqualFold(strings.TrimSpace(t), table)
	})
}

// NormalizedRecord is one mapped row: target field name to typed value.
// Values are string, float64, int, bool, time.Time or nil.
type NormalizedRecord map[string]any

// OrderStatus is the derived business state of an order row.
type OrderStatus string

const (
	StatusAccepted            OrderStatus = "ACCEPTED"
	StatusRejected            OrderStatus = "REJECTED"
	StatusRejectedCustomer    OrderStatus = "REJECTED_CUSTOMER"
	StatusRejectedRestaurant  OrderStatus = "REJECTED_RESTAURANT"
	StatusCancelledCustomer   OrderStatus = "CANCELLED_CUSTOMER"
	StatusCancelledRestaurant OrderStatus = "CANCELLED_RESTAURANT"
	StatusCompleted           OrderStatus = "COMPLETED"
)

var orderStatuses = []OrderStatus{
	StatusAccepted,
	StatusRejected,
	StatusRejectedCustomer,
	StatusRejectedRestaurant,
	StatusCancelledCustomer,
	StatusCancelledRestaurant,
	StatusCompleted,
}

// OrderStatuses returns every order status in declaration order.
func OrderStatuses() []OrderStatus {
	return slices.Clone(orderStatuses)
}

// ParseOrderStatus returns the status named by s (case-insensitive).
func ParseOrderStatus(s string) (OrderStatus, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IngestionJob records one attempt at processing a file.
type IngestionJob struct {
	ID            uuid.UUID  `json:"id"`
	IntegrationID int64      `json:"integrationId"`
	Integration   string     `json:"integration,omitempty"`
	FilePath      string     `json:"filePath"`
	Status        JobStatus  `json:"status"`
	TotalRows     int        `json:"totalRows"`
	ProcessedRows int        `json:"processedRows"`
	InsertedRows  int        `json:"insertedRows"`
	ErrorRows     int        `json:"errorRows"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// JobUpdate is the terminal state written to a job.
type JobUpdate struct {
	Status        JobStatus
	TotalRows     int
	ProcessedRows int
	InsertedRows  int
	ErrorRows     int
	ErrorMessage  string
}

// ProcessedFile is a dedup ledger entry.
type ProcessedFile struct {
	IntegrationID int64
	FilePath      string
	FileHash      string
	TotalRows     int
	JobID         uuid.UUID
}

// RestaurantParams are the values upserted into restaurants.
type RestaurantParams struct {
	PlatformID int
	ExternalID string
	Name       string
}

// OrderParams are the values upserted into orders.
type OrderParams struct {
	PlatformID      int
	PlatformOrderID string
	RestaurantID    *int64
	Status          OrderStatus
	DeliveryType    string
	OrderedAt       *time.Time
	PrepTimeMinutes *int
	OrderValue      *float64
	Attributes      NormalizedRecord
}

// RatingParams are the values upserted into ratings.
type RatingParams struct {
	PlatformID      int
	PlatformOrderID string
	RestaurantID    *int64
	Rating          float64
	Comment         *string
	RatedAt         *time.Time
}

// IntegrationSource is the read side of integration configuration.
type IntegrationSource interface {
	// ListActiveIntegrations returns active integrations ordered by id.
	ListActiveIntegrations(ctx context.Context) ([]Integration, error)
	// FindIntegrationByName returns ErrNotFound when no integration has name.
	FindIntegrationByName(ctx context.Context, name string) (Integration, error)
}

// Store is the persistence the ingestion engine runs against.
type Store interface {
	IntegrationSource

	IsFileAlreadyProcessed(ctx context.Context, integrationID int64, fileHash string) (bool, error)
	CreateJob(ctx context.Context, integrationID int64, filePath string, totalRows int) (uuid.UUID, error)
	UpdateJob(ctx context.Context, id uuid.UUID, update JobUpdate) error

	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore holds the writes that must commit or roll back with a file.
// Upserts are idempotent by natural key and report whether a row was created.
type TxStore interface {
	UpsertRestaurant(ctx context.Context, p RestaurantParams) (id int64, inserted bool, err error)
	UpsertOrder(ctx context.Context, p OrderParams) (id int64, inserted bool, err error)
	UpsertRating(ctx context.Context, p RatingParams) (id int64, inserted bool, err error)
	RecordProcessedFile(ctx context.Context, f ProcessedFile) error
}
