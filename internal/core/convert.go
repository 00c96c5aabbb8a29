package core

// convert.go holds the built-in type coercion for columns without a
// transform, plus the small value readers the formats and the row builder
// share.
//
// Coercion never fails: content that does not fit the declared type becomes
// nil (number, date, string) or false (boolean). Enums are permissive and
// pass unmatched values through unchanged.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/transform"
)

// nonNumericRegex matches everything a number cell may carry besides digits,
// the decimal point and a minus sign: currency symbols, thousands
// separators, units.
var nonNumericRegex = regexp.MustCompile(`[^0-9.\-]`)

// Coerce converts raw according to spec.Type.
func Coerce(raw string, spec FieldSpec) any {
	switch spec.Type {
	case FieldNumber:
		return CoerceNumber(raw)
	case FieldBoolean:
		return CoerceBoolean(raw)
	case FieldDate:
		return CoerceDate(raw)
	case FieldEnum:
		return CoerceEnum(raw, spec.EnumValues)
	default:
		return CoerceString(raw)
	}
}

// CoerceNumber strips everything but digits, '.' and '-' and reads the
// leading number. Returns nil when nothing numeric remains.
func CoerceNumber(raw string) any {
	s := nonNumericRegex.ReplaceAllString(raw, "")
	if s == "" {
		return nil
	}
	f, ok := transform.LeadingFloat(s)
	if !ok {
		return nil
	}
	return f
}

// CoerceBoolean is true for on, true and 1 (any case).
func CoerceBoolean(raw string) any {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1":
		return true
	default:
		return false
	}
}

// CoerceDate parses raw with the generic layouts, nil when unparsable.
func CoerceDate(raw string) any {
	t, ok := transform.ParseDate(raw)
	if !ok {
		return nil
	}
	return t
}

// CoerceEnum returns the canonical enum value matching raw, or raw itself.
func CoerceEnum(raw string, values []string) any {
	needle := strings.TrimSpace(raw)
	for _, v := range values {
		if strings.EqualFold(needle, v) {
			return v
		}
	}
	return raw
}

// CoerceString trims raw, nil when empty.
func CoerceString(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return s
}

// isEmptyValue reports whether v counts as missing for required fields.
func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case *int:
		return x == nil
	case *time.Time:
		return x == nil
	default:
		return false
	}
}

// stringValue renders v as a trimmed string. nil renders as "".
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// floatValue reads a numeric value. Strings are parsed leniently.
func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		return transform.LeadingFloat(x)
	default:
		return 0, false
	}
}

// boolValue reads a boolean value. Missing or non-boolean values are false.
func boolValue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return CoerceBoolean(x).(bool)
	default:
		return false
	}
}

// timeValue reads a time value.
func timeValue(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		return &x
	case *time.Time:
		return x
	case string:
		if t, ok := transform.ParseDate(x); ok {
			return &t
		}
	}
	return nil
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. The first occurrence of
// a repeated header wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell removes spreadsheet artifacts from a header cell: surrounding
// whitespace, an Excel formula prefix (="...") and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func normalizeHeader(h string) string {
	return strings.ToLower(CleanCell(h))
}

// RawRecord is one data row addressed by header name. Cells missing from a
// short row read as "".
type RawRecord struct {
	header []string
	index  HeaderIndex
	cells  []string
}

// NewRawRecord binds a row to its header. index may be nil.
func NewRawRecord(header []string, index HeaderIndex, cells []string) RawRecord {
	if index == nil {
		index = MakeHeaderIndex(header)
	}
	return RawRecord{header: header, index: index, cells: cells}
}

// RawRecordFromMap builds a record from column -> value pairs.
func RawRecordFromMap(m map[string]string) RawRecord {
	header := make([]string, 0, len(m))
	cells := make([]string, 0, len(m))
	for k, v := range m {
		header = append(header, k)
		cells = append(cells, v)
	}
	return NewRawRecord(header, nil, cells)
}

// Get returns the cell under column. The header as declared is tried first,
// then a case-insensitive match.
func (r RawRecord) Get(column string) string {
	for i, h := range r.header {
		if h == column {
			return r.cell(i)
		}
	}
	if i, ok := r.index[normalizeHeader(column)]; ok {
		return r.cell(i)
	}
	return ""
}

func (r RawRecord) cell(i int) string {
	if i < len(r.cells) {
		return r.cells[i]
	}
	return ""
}
