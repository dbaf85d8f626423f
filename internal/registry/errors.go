package registry

// # Error Codes Reference
//
// Hard failures returned by this package, and errors raised by the HTTP layer
// around it, are mapped to a UserMessage carrying a code that operators can
// quote back to support.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate value: a unique constraint rejected the write
//	DB002 - Constraint violation: a NOT NULL or CHECK constraint rejected the write
//	DB003 - Invalid value: a field could not be stored as given
//	DB004 - Store unavailable: the store could not open or commit a transaction
//	DB005 - Connection reset: the connection dropped mid-operation
//	DB006 - Timeout: the operation timed out
//	DB007 - Not found: no record has the requested ID
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Empty import: the file has no usable rows
//	IMP002 - System busy: too many imports are running
//	IMP003 - Import cancelled: the run was cancelled between chunks
//	IMP004 - Invalid status: the status is not one of the accepted values
//	IMP005 - Query too short: lookups need at least 3 characters
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Not a CSV file
//	FILE003 - Unreadable file
//	FILE004 - No file provided
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Malformed request body or parameters
//
// # Auth Errors (AUTH001-AUTH099)
//
//	AUTH001 - Missing bearer token
//	AUTH002 - Invalid or expired token
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests from this client
//
// # Default Error (ERR000)
//
//	ERR000 - An unexpected error occurred; check the logs for the original error
//
// Sentinel errors are matched with errors.Is first. Anything else is matched
// case-insensitively against errorPatterns; the first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreUnavailable wraps Begin and Commit failures. The run is not applied
	// past the last committed chunk.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrImportCancelled is returned when the context ends between chunks.
	ErrImportCancelled = errors.New("import cancelled")

	// ErrTooManyImports is returned when no import slot frees up in time.
	ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

	// ErrEmptyImport is returned by Service.Import when parsing yields no candidates.
	ErrEmptyImport = errors.New("no usable rows found in file")

	// ErrInvalidStatus is returned by ValidateStatus.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNotFound is returned by Directory lookups by ID.
	ErrNotFound = errors.New("record not found")

	// ErrQueryTooShort is returned by Service.Lookup for queries under MinQueryLength.
	ErrQueryTooShort = errors.New("search query too short")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages is checked in order with errors.Is.
var sentinelMessages = []sentinelMessage{
	{ErrEmptyImport, UserMessage{
		Message: "No data found in the file",
		Action:  "Check that the file has a header row and at least one complete data row",
		Code:    "IMP001",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}},
	{ErrImportCancelled, UserMessage{
		Message: "Import was cancelled",
		Action:  "Chunks committed before cancellation were kept. Re-run the import to finish",
		Code:    "IMP003",
	}},
	{ErrInvalidStatus, UserMessage{
		Message: "Invalid status",
		Action:  "Use one of: " + strings.Join(AllowedStatuses, ", "),
		Code:    "IMP004",
	}},
	{ErrQueryTooShort, UserMessage{
		Message: "Please provide at least 3 characters to search",
		Action:  "Search by full tax ID or part of the name",
		Code:    "IMP005",
	}},
	{ErrNotFound, UserMessage{
		Message: "Professional not found",
		Action:  "Verify the record ID",
		Code:    "DB007",
	}},
	{ErrStoreUnavailable, UserMessage{
		Message: "Unable to reach the registry database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// More specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Check the file for conflicting identifiers",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check the file for conflicting identifiers",
			Code:    "DB001",
		},
	},
	{
		pattern: "not-null constraint",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Ensure every row has name, tax ID, formation, city and state",
			Code:    "DB002",
		},
	},
	{
		pattern: "check constraint",
		msg: UserMessage{
			Message: "A value was rejected by the database",
			Action:  "Review the failing rows listed in the report",
			Code:    "DB002",
		},
	},
	{
		pattern: "value too long",
		msg: UserMessage{
			Message: "A field is longer than the database allows",
			Action:  "Shorten the value in the failing rows",
			Code:    "DB003",
		},
	},
	{
		pattern: "invalid input syntax",
		msg: UserMessage{
			Message: "A field has an invalid format",
			Action:  "Review the failing rows listed in the report",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB006)
	// =========================================================================
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
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "not a csv",
		msg: UserMessage{
			Message: "Please use a CSV file (comma-delimited)",
			Action:  "Export the registry as .csv and try again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "read file",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check the file and upload it again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was sent",
			Action:  "Attach a CSV file in the \"file\" field",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Request Errors (REQ001)
	// =========================================================================
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request body and parameters",
			Code:    "REQ001",
		},
	},

	// =========================================================================
	// Auth Errors (AUTH001-AUTH002)
	// =========================================================================
	{
		pattern: "missing bearer token",
		msg: UserMessage{
			Message: "Authentication required",
			Action:  "Send an Authorization: Bearer <token> header",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid token",
		msg: UserMessage{
			Message: "Invalid or expired token",
			Action:  "Request a new token and try again",
			Code:    "AUTH002",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
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

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
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
