package core

// error_messages.go maps errors to user-facing messages with codes for
// support reference. When users encounter errors they can quote the code to
// support staff for faster diagnosis.
//
// # Typed Errors
//
// Errors produced by this package are matched with errors.Is / errors.As
// before any text matching:
//
//	AUTH001 - ErrUnauthorized: credentials missing, invalid or expired
//	PERM001 - ErrForbidden: the actor may not perform this action
//	NF001   - ErrNotFound: the referenced record or user does not exist
//	DB001   - ErrConflict: a record with this email or id already exists
//	RATE001 - ErrRateLimited: too many requests, back off and retry
//	IMP001  - ValidationError(empty): import contained no rows
//	IMP002  - ValidationError(too_many_rows): import exceeded the row cap
//	IMP003  - ValidationError(header_mismatch): file does not match the kind
//	VAL001  - ValidationError(invalid): malformed request input
//
// # Database Errors (DB002-DB099)
//
// Untyped driver errors fall back to case-insensitive pattern matching:
//
//	DB002 - Unique constraint ("unique constraint", "violates unique")
//	DB003 - Foreign key ("violates foreign key")
//	DB004 - Connection refused ("connection refused")
//	DB005 - Connection reset ("connection reset")
//	DB006 - Timeout ("timeout", "context deadline exceeded")
//	DB007 - Deadlock ("deadlock")
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application
// logs, keyed by request id, for the underlying technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrUnauthorized, UserMessage{
		Message: "Could not validate credentials",
		Action:  "Sign in again",
		Code:    "AUTH001",
	}},
	{ErrForbidden, UserMessage{
		Message: "You do not have permission to perform this action",
		Action:  "Ask the record owner or an administrator",
		Code:    "PERM001",
	}},
	{ErrNotFound, UserMessage{
		Message: "The requested item was not found",
		Action:  "Refresh the list and try again",
		Code:    "NF001",
	}},
	{ErrConflict, UserMessage{
		Message: "An item with this value already exists",
		Action:  "Use a different email or id",
		Code:    "DB001",
	}},
	{ErrRateLimited, UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a minute before trying again",
		Code:    "RATE001",
	}},
}

var validationMessages = map[ValidationReason]UserMessage{
	ReasonEmpty: {
		Message: "The file contains no rows",
		Action:  "Upload a file with at least one data row",
		Code:    "IMP001",
	},
	ReasonTooManyRows: {
		Message: "The file has too many rows",
		Action:  "Split the file into smaller parts",
		Code:    "IMP002",
	},
	ReasonHeaderMismatch: {
		Message: "The file does not match this section",
		Action:  "Check that you are importing into the right section",
		Code:    "IMP003",
	},
	ReasonInvalid: {
		Message: "The request is invalid",
		Action:  "Check the highlighted fields and try again",
		Code:    "VAL001",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that the referenced owner exists",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller import or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller import or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Typed errors are
// matched first, then known driver error text. Unknown errors map to ERR000.
//
// Example:
//
//	err := fmt.Errorf("edit deal: %w", ErrForbidden)
//	msg := MapError(err)
//	// msg.Code == "PERM001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		if msg, ok := validationMessages[verr.Reason]; ok {
			return msg
		}
		return validationMessages[ReasonInvalid]
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
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

// IsUserFacing reports whether err's own text is safe to show to users.
// Typed errors carry messages written for callers; anything else may leak
// driver details and should be replaced by the mapped message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return true
		}
	}
	return false
}
