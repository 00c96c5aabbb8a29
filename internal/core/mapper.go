package core

import (
	"github.com/JonMunkholm/deliveryingest/internal/transform"
)

// Mapper turns raw rows into normalized records for one integration.
// The integration's format is resolved once, when the mapper is built.
type Mapper struct {
	integration Integration
	format      Format
	orders      bool
}

// NewMapper binds a mapper to integration.
func NewMapper(integration Integration) *Mapper {
	return &Mapper{
		integration: integration,
		format:      FormatFor(integration.SourceFormat),
		orders:      integration.Targets(TableOrders),
	}
}

// Format returns the source format selected for the integration.
func (m *Mapper) Format() Format {
	return m.format
}

// Map applies the field mapping to raw.
//
// A nil record with a nil error means the row was rejected: a required field
// was empty, or an order row had no platform_order_id. A transform failure is
// returned as a *FieldError and is fatal to the file.
func (m *Mapper) Map(raw RawRecord) (NormalizedRecord, error) {
	rec := NormalizedRecord{FieldPlatformID: m.integration.PlatformID}

	for _, entry := range m.integration.FieldMapping {
		spec := entry.Spec
		value := raw.Get(entry.Column)

		var out any
		switch {
		case value == "" && spec.Default != nil:
			out = spec.Default
		case spec.Transform != "":
			v, err := transform.Apply(value, spec.Transform)
			if err != nil {
				return nil, &FieldError{Column: entry.Column, Target: spec.Target, Value: value, Err: err}
			}
			out = v
		default:
			out = Coerce(value, spec)
		}

		if spec.Required && isEmptyValue(out) {
			return nil, nil
		}
		rec[spec.Target] = out
	}

	m.format.Fixup(rec)

	if m.orders {
		if stringValue(rec[FieldPlatformOrderID]) == "" {
			return nil, nil
		}
		rec[FieldOrderStatus] = string(m.format.ResolveStatus(rec))
	}

	return rec, nil
}
