package core

import (
	"errors"
	"fmt"
)

// Input problems detected before any job exists.
var (
	ErrNoFile                = errors.New("no file provided")
	ErrFileNotFound          = errors.New("file not found")
	ErrNotRegularFile        = errors.New("not a regular file")
	ErrUnsupportedFileType   = errors.New("unsupported file type")
	ErrEmptyFile             = errors.New("empty file")
	ErrFileTooLarge          = errors.New("file too large")
	ErrPathNotAllowed        = errors.New("path not allowed")
	ErrNoMatchingIntegration = errors.New("no matching integration")
	ErrIntegrationNotFound   = errors.New("integration not found")
	ErrIntegrationInactive   = errors.New("integration inactive")
)

// ErrValueOutOfRange marks a normalized value its column cannot store.
var ErrValueOutOfRange = errors.New("value out of range")

// RangeError names a normalized value outside its column's range.
type RangeError struct {
	Field string
	Value string
	Limit string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %s: magnitude must stay below %s", e.Field, e.Value, e.Limit)
}

func (e *RangeError) Unwrap() error {
	return ErrValueOutOfRange
}

// ErrNotFound is returned by a Store when a lookup has no result.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before processing starts.
type ValidationError struct {
	Input string // path or integration key the error is about
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("validation: %v", e.Err)
	}
	return fmt.Sprintf("validation: %s: %v", e.Input, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FieldError is a transform failure on one column.
type FieldError struct {
	Column string
	Target string
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %q -> %s: %v", e.Column, e.Target, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ProcessingError aborts a file. Row is the 1-based line number in the file
// (the header is line 1); zero when the failure is not tied to a row.
type ProcessingError struct {
	Row         int
	Integration string
	Value       string
	Err         error
}

func (e *ProcessingError) Error() string {
	switch {
	case e.Row > 0 && e.Value != "":
		return fmt.Sprintf("processing %s, line %d, value %q: %v", e.Integration, e.Row, e.Value, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("processing %s, line %d: %v", e.Integration, e.Row, e.Err)
	default:
		return fmt.Sprintf("processing %s: %v", e.Integration, e.Err)
	}
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// StorageError wraps an opaque failure from the Store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
