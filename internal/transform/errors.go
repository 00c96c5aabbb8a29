package transform

import "fmt"

// MalformedTimeError is returned by timeToMinutes for an H:M[:S] value whose
// parts are not integers or whose minutes/seconds fall outside 0-59.
type MalformedTimeError struct {
	Value   string
	Hours   int
	Minutes int
	Seconds int
	Reason  string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("malformed time %q (hours=%d minutes=%d seconds=%d): %s",
		e.Value, e.Hours, e.Minutes, e.Seconds, e.Reason)
}

// MalformedNumericTimeError is returned by timeToMinutes for a plain value
// that is not a non-negative number.
type MalformedNumericTimeError struct {
	Value string
}

func (e *MalformedNumericTimeError) Error() string {
	return fmt.Sprintf("malformed numeric time %q: expected a non-negative number of minutes", e.Value)
}

// MalformedDateError is returned by parseDate when a value cannot be read as
// a date, or matches DD/MM/YYYY HH:MM:SS with an out-of-range component.
type MalformedDateError struct {
	Value  string
	Reason string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date %q: %s", e.Value, e.Reason)
}
