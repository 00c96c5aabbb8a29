// Package transform provides the named value transformations that
// integration field mappings refer to by string.
//
// Transforms are registered at init time under the name configuration uses
// (for example "timeToMinutes"). Each is a pure function of the raw cell.
// Looking up a name that is not registered is not an error: [Apply] hands
// the raw value back unchanged.
package transform

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Registered transform names.
const (
	NameExistsOrEmpty                 = "existsOrEmpty"
	NameExistsOrDefault               = "existsOrDefault"
	NameParseBoolean                  = "parseBoolean"
	NameParsePercentage               = "parsePercentage"
	NameTimeToMinutes                 = "timeToMinutes"
	NameParseDate                     = "parseDate"
	NameDeliveryType                  = "deliveryType"
	NameDeliveryPlatform1Status       = "deliveryPlatform1Status"
	NameDeliveryPlatform1Boolean      = "deliveryPlatform1Boolean"
	NameDeliveryPlatform1CancelReason = "deliveryPlatform1CancelReason"
	NameDeliveryPlatform2Status       = "deliveryPlatform2Status"
	NameDeliveryPlatform2AcceptStatus = "deliveryPlatform2AcceptStatus"
	NameDeliveryPlatform3Boolean      = "deliveryPlatform3Boolean"
)

// DefaultUnknown is the fallback used by existsOrDefault and parsePercentage.
const DefaultUnknown = "unknown"

func init() {
	Register(NameExistsOrEmpty, func(v string) (any, error) { return ExistsOrEmpty(v), nil })
	Register(NameExistsOrDefault, func(v string) (any, error) { return ExistsOrDefault(v, DefaultUnknown), nil })
	Register(NameParseBoolean, func(v string) (any, error) { return ParseBoolean(v, "1"), nil })
	Register(NameParsePercentage, func(v string) (any, error) { return ParsePercentage(v), nil })
	Register(NameTimeToMinutes, func(v string) (any, error) {
		m, err := TimeToMinutes(v)
		if err != nil || m == nil {
			return nil, err
		}
		return *m, nil
	})
	Register(NameParseDate, func(v string) (any, error) {
		t, err := ParseDateTime(v)
		if err != nil || t == nil {
			return nil, err
		}
		return *t, nil
	})
	Register(NameDeliveryType, func(v string) (any, error) { return DeliveryType(v), nil })
	Register(NameDeliveryPlatform1Status, func(v string) (any, error) { return lookupOrNil(platform1Statuses, v), nil })
	Register(NameDeliveryPlatform1Boolean, func(v string) (any, error) { return lookupBool(platform1Booleans, v), nil })
	Register(NameDeliveryPlatform1CancelReason, func(v string) (any, error) { return DeliveryPlatform1CancelReason(v), nil })
	Register(NameDeliveryPlatform2Status, func(v string) (any, error) { return DeliveryPlatform2Status(v), nil })
	Register(NameDeliveryPlatform2AcceptStatus, func(v string) (any, error) { return DeliveryPlatform2AcceptStatus(v), nil })
	Register(NameDeliveryPlatform3Boolean, func(v string) (any, error) { return lookupBool(platform3Booleans, v), nil })
}

// ExistsOrEmpty returns v, or "" when v is empty.
func ExistsOrEmpty(v string) string {
	if v != "" {
		return v
	}
	return ""
}

// ExistsOrDefault returns v, or def when v is empty.
func ExistsOrDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// ParseBoolean reports whether v is exactly trueValue.
func ParseBoolean(v, trueValue string) bool {
	return v == trueValue
}

// ParsePercentage renders a fraction as a whole percentage: "0.4237" -> "42%".
// Returns "unknown" when v does not start with a number.
func ParsePercentage(v string) string {
	f, ok := LeadingFloat(v)
	if !ok {
		return DefaultUnknown
	}
	return strconv.FormatFloat(RoundHalfUp(f*100), 'f', -1, 64) + "%"
}

// Largest inputs whose minute total still fits in an int.
const (
	maxHours   = (math.MaxInt - 59 - 1) / 60
	maxMinutes = float64(math.MaxInt)
)

// TimeToMinutes converts a duration cell to whole minutes.
//
// "H:M" and "H:M:S" are read as clock durations, with seconds rounded to the
// nearest minute. Hours have no day bound so durations past a day are kept;
// only totals that would overflow an int are rejected.
// Any other value is read as a finite number of minutes and rounded.
// Blank input yields nil.
func TimeToMinutes(v string) (*int, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, &MalformedTimeError{Value: v, Reason: fmt.Sprintf("expected H:M or H:M:S, got %d parts", len(parts))}
		}

		nums := make([]int, 3)
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, &MalformedTimeError{Value: v, Hours: nums[0], Minutes: nums[1], Seconds: nums[2],
					Reason: fmt.Sprintf("part %d (%q) is not a whole number", i+1, p)}
			}
			nums[i] = n
		}

		hours, minutes, seconds := nums[0], nums[1], nums[2]
		if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
			return nil, &MalformedTimeError{Value: v, Hours: hours, Minutes: minutes, Seconds: seconds,
				Reason: "component out of range"}
		}
		if hours > maxHours {
			return nil, &MalformedTimeError{Value: v, Hours: hours, Minutes: minutes, Seconds: seconds,
				Reason: "hours out of range"}
		}

		total := hours*60 + minutes + int(RoundHalfUp(float64(seconds)/60))
		return &total, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, &MalformedNumericTimeError{Value: v}
	}
	r := RoundHalfUp(f)
	if r >= maxMinutes {
		return nil, &MalformedNumericTimeError{Value: v}
	}
	total := int(r)
	return &total, nil
}

// explicitDateTimeRegex matches DD/MM/YYYY HH:MM:SS.
var explicitDateTimeRegex = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4}) (\d{1,2}):(\d{1,2}):(\d{1,2})$`)

// ParseDateTime reads a timestamp cell. DD/MM/YYYY HH:MM:SS is tried first
// and bounds-checked; anything else goes through the generic layouts.
// Blank input yields nil.
func ParseDateTime(v string) (*time.Time, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil, nil
	}

	if m := explicitDateTimeRegex.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		second, _ := strconv.Atoi(m[6])

		switch {
		case day < 1 || day > 31:
			return nil, &MalformedDateError{Value: v, Reason: fmt.Sprintf("day %d out of range", day)}
		case month < 1 || month > 12:
			return nil, &MalformedDateError{Value: v, Reason: fmt.Sprintf("month %d out of range", month)}
		case hour > 23:
			return nil, &MalformedDateError{Value: v, Reason: fmt.Sprintf("hour %d out of range", hour)}
		case minute > 59:
			return nil, &MalformedDateError{Value: v, Reason: fmt.Sprintf("minute %d out of range", minute)}
		case second > 59:
			return nil, &MalformedDateError{Value: v, Reason: fmt.Sprintf("second %d out of range", second)}
		}

		t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
		return &t, nil
	}

	t, ok := ParseDate(s)
	if !ok {
		return nil, &MalformedDateError{Value: v, Reason: "unrecognised date format"}
	}
	return &t, nil
}

var (
	platform2DateRegex = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	platform2TimeRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseDeliveryPlatform2DateTime joins a YYYY-M-D date and an H:MM time into
// one UTC timestamp. It returns nil rather than an error when either part is
// missing or malformed, or when the two do not form a real calendar instant.
func ParseDeliveryPlatform2DateTime(dateStr, timeStr string) *time.Time {
	dm := platform2DateRegex.FindStringSubmatch(strings.TrimSpace(dateStr))
	tm := platform2TimeRegex.FindStringSubmatch(strings.TrimSpace(timeStr))
	if dm == nil || tm == nil {
		return nil
	}

	year, _ := strconv.Atoi(dm[1])
	month, _ := strconv.Atoi(dm[2])
	day, _ := strconv.Atoi(dm[3])
	hour, _ := strconv.Atoi(tm[1])
	minute, _ := strconv.Atoi(tm[2])

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return nil
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	// time.Date normalises 2024-2-30 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return nil
	}
	return &t
}

// Delivery types.
const (
	DeliveryTypeDelivery   = "DELIVERY"
	DeliveryTypeCollection = "COLLECTION"
	DeliveryTypePickup     = "PICKUP"
	DeliveryTypeUnknown    = "UNKNOWN"
)

var deliveryTypes = map[string]string{
	"delivery":   DeliveryTypeDelivery,
	"collection": DeliveryTypeCollection,
	"pickup":     DeliveryTypePickup,
}

// DeliveryType maps a raw fulfilment value onto the closed delivery type set.
func DeliveryType(v string) string {
	if dt, ok := deliveryTypes[strings.ToLower(strings.TrimSpace(v))]; ok {
		return dt
	}
	return DeliveryTypeUnknown
}

// Order history export lookups.

var platform1Statuses = map[string]string{
	"accepted":                "ACCEPTED",
	"delivered":               "COMPLETED",
	"completed":               "COMPLETED",
	"rejected":                "REJECTED",
	"rejected by customer":    "REJECTED_CUSTOMER",
	"customer rejected":       "REJECTED_CUSTOMER",
	"rejected by restaurant":  "REJECTED_RESTAURANT",
	"restaurant rejected":     "REJECTED_RESTAURANT",
	"cancelled by customer":   "CANCELLED_CUSTOMER",
	"cancelled by restaurant": "CANCELLED_RESTAURANT",
}

var platform1Booleans = map[string]bool{
	"yes": true, "y": true, "true": true, "1": true,
	"no": false, "n": false, "false": false, "0": false,
}

var platform1CancelActors = map[string]string{
	"customer":                "customer",
	"cancelled by customer":   "customer",
	"customer cancelled":      "customer",
	"restaurant":              "restaurant",
	"partner":                 "restaurant",
	"cancelled by restaurant": "restaurant",
	"rider":                   "restaurant",
	"courier":                 "restaurant",
}

// DeliveryPlatform1CancelReason normalises the cancelling party. Blank means
// the order was not cancelled and yields nil; unknown parties are kept
// lowercased so status resolution still sees a cancellation.
func DeliveryPlatform1CancelReason(v string) any {
	key := strings.ToLower(strings.TrimSpace(v))
	if key == "" {
		return nil
	}
	if actor, ok := platform1CancelActors[key]; ok {
		return actor
	}
	return key
}

// Aggregate counts export lookups.

var platform2Statuses = map[string]string{
	"good":      "good",
	"completed": "good",
	"delivered": "good",
	"bad":       "bad",
	"rejected":  "bad",
	"failed":    "bad",
}

// DeliveryPlatform2Status normalises a good/bad outcome, defaulting to "unknown".
func DeliveryPlatform2Status(v string) string {
	if s, ok := platform2Statuses[strings.ToLower(strings.TrimSpace(v))]; ok {
		return s
	}
	return DefaultUnknown
}

// DeliveryPlatform2AcceptStatus reads the acceptance column: "on" means the
// store accepts orders; numbers are acceptance rates rendered as percentages.
func DeliveryPlatform2AcceptStatus(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "on") {
		return "accepted"
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return ParsePercentage(v)
	}
	return ExistsOrDefault(v, DefaultUnknown)
}

// Segment report lookups.

var platform3Booleans = map[string]bool{
	"y": true, "yes": true, "true": true, "1": true, "x": true,
}

func lookupOrNil(table map[string]string, v string) any {
	if s, ok := table[strings.ToLower(strings.TrimSpace(v))]; ok {
		return s
	}
	return nil
}

func lookupBool(table map[string]bool, v string) bool {
	return table[strings.ToLower(strings.TrimSpace(v))]
}
