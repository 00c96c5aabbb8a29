package core

// # Error Codes Reference
//
// Errors shown to operators (CLI output, HTTP responses) carry a code for
// support reference. Typed errors are matched first with errors.Is and
// errors.As; anything else falls back to case-insensitive substring
// patterns.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - No integration matches the file's header row
//	VAL002 - The named integration does not exist
//	VAL003 - The named integration is inactive
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File exceeds the configured size limit
//	FILE002 - File is not valid CSV
//	FILE003 - File does not exist
//	FILE004 - No file path given
//	FILE005 - File is empty or has no header row
//	FILE006 - Path is not a regular file
//	FILE007 - File is not a .csv file
//	FILE008 - Path is outside the directories the API may read
//
// # Ingestion Errors (ING001-ING099)
//
//	ING001 - Malformed duration (H:M[:S] out of range)
//	ING002 - Malformed numeric duration
//	ING003 - Malformed date
//	ING004 - Another file is being ingested
//	ING005 - Ingestion cancelled
//	ING006 - Ingestion timed out
//	ING007 - Value too large for its column
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key"
//	DB002 - Unique constraint        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key              Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused       Patterns: "connection refused"
//	DB005 - Connection reset         Patterns: "connection reset"
//	DB006 - Timeout                  Patterns: "timeout"
//	DB007 - Deadlock                 Patterns: "deadlock"
//	DB008 - Any other StorageError
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/deliveryingest/internal/transform"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessages are matched with errors.Is, in order.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrNoMatchingIntegration, UserMessage{
		Message: "No integration matches this file's columns",
		Action:  "Pass the integration name explicitly or seed an integration for this export",
		Code:    "VAL001",
	}},
	{ErrIntegrationNotFound, UserMessage{
		Message: "Integration not found",
		Action:  "Check the integration name against the seeded integrations",
		Code:    "VAL002",
	}},
	{ErrIntegrationInactive, UserMessage{
		Message: "Integration is inactive",
		Action:  "Activate the integration in the seed file and re-run seed",
		Code:    "VAL003",
	}},
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file or raise INGEST_MAX_FILE_SIZE",
		Code:    "FILE001",
	}},
	{ErrFileNotFound, UserMessage{
		Message: "File does not exist",
		Action:  "Check the path and try again",
		Code:    "FILE003",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file was given",
		Action:  "Pass the path of a CSV export",
		Code:    "FILE004",
	}},
	{ErrEmptyFile, UserMessage{
		Message: "The file is empty",
		Action:  "Export the file again with a header row",
		Code:    "FILE005",
	}},
	{ErrNotRegularFile, UserMessage{
		Message: "Path is not a regular file",
		Action:  "Pass a file, not a directory",
		Code:    "FILE006",
	}},
	{ErrUnsupportedFileType, UserMessage{
		Message: "Only .csv files are supported",
		Action:  "Save the export as CSV",
		Code:    "FILE007",
	}},
	{ErrPathNotAllowed, UserMessage{
		Message: "This path cannot be read over the API",
		Action:  "Place the file in the inbox directory or pass an s3:// URI",
		Code:    "FILE008",
	}},
	{ErrIngestBusy, UserMessage{
		Message: "Another file is being ingested",
		Action:  "Please wait a moment and try again",
		Code:    "ING004",
	}},
	{ErrValueOutOfRange, UserMessage{
		Message: "A value is too large to store",
		Action:  "Fix the value on the reported line and run the file again",
		Code:    "ING007",
	}},
	{context.Canceled, UserMessage{
		Message: "Ingestion was cancelled",
		Action:  "Run the file again when ready",
		Code:    "ING005",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Ingestion timed out",
		Action:  "Try again later",
		Code:    "ING006",
	}},
}

var (
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with RFC 4180 quoting",
		Code:    "FILE002",
	}
	msgMalformedTime = UserMessage{
		Message: "A duration value is malformed",
		Action:  "Use H:MM or H:MM:SS with minutes and seconds below 60",
		Code:    "ING001",
	}
	msgMalformedNumericTime = UserMessage{
		Message: "A duration value is not a number of minutes",
		Action:  "Use a non-negative number of minutes",
		Code:    "ING002",
	}
	msgMalformedDate = UserMessage{
		Message: "A date value is malformed",
		Action:  "Use DD/MM/YYYY HH:MM:SS or an ISO date",
		Code:    "ING003",
	}
	msgStorage = UserMessage{
		Message: "Database operation failed",
		Action:  "Check the logs and database connectivity, then retry",
		Code:    "DB008",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. The first matching pattern wins.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Check the export for repeated order ids",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check the export for duplicate entries",
		Code:    "DB002",
	}},
	{"violates unique", UserMessage{
		Message: "A duplicate value was found",
		Action:  "Review the data for duplicate key values",
		Code:    "DB002",
	}},
	{"foreign key constraint", UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Seed platforms and integrations before ingesting",
		Code:    "DB003",
	}},
	{"violates foreign key", UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Seed platforms and integrations before ingesting",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(&ValidationError{Input: "x.csv", Err: ErrEmptyFile})
//	// msg.Code == "FILE005"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	var (
		parseErr      *csv.ParseError
		timeErr       *transform.MalformedTimeError
		numericErr    *transform.MalformedNumericTimeError
		dateErr       *transform.MalformedDateError
		storageFailed *StorageError
	)
	switch {
	case errors.As(err, &parseErr):
		return msgInvalidCSV
	case errors.As(err, &timeErr):
		return msgMalformedTime
	case errors.As(err, &numericErr):
		return msgMalformedNumericTime
	case errors.As(err, &dateErr):
		return msgMalformedDate
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.As(err, &storageFailed) {
		return msgStorage
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
