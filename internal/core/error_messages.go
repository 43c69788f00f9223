package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Codes are grouped by category:
//
//	DB001-DB099    store errors (constraints, connectivity, missing tables)
//	VAL001-VAL099  request and projection validation
//	FILE001-FILE099 file handling and parsing
//	XFR001-XFR099  transfer lifecycle (queueing, cancellation, expiry)
//	RATE001        request throttling
//	ERR000         fallback; check the logs for the technical error
//
// Sentinel and typed errors are matched first with errors.Is/As. Anything
// else falls through to case-insensitive substring patterns, where the first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgColumnNotFound = UserMessage{
		Message: "Selected column not found in the source",
		Action:  "Reload the column list and select columns that exist",
		Code:    "VAL001",
	}
	msgInvalidRequest = UserMessage{
		Message: "The transfer request is incomplete or invalid",
		Action:  "Check the table, file path, columns and delimiter",
		Code:    "VAL002",
	}
	msgFileNotFound = UserMessage{
		Message: "File not found",
		Action:  "Upload the file again or check the path",
		Code:    "FILE001",
	}
	msgTooManyTransfers = UserMessage{
		Message: "System is busy processing other transfers",
		Action:  "Please wait a moment and try again",
		Code:    "XFR001",
	}
	msgOperationNotFound = UserMessage{
		Message: "Operation not found",
		Action:  "The operation may have expired. Start a new transfer",
		Code:    "XFR002",
	}
	msgCancelled = UserMessage{
		Message: "Transfer was cancelled",
		Action:  "Start a new transfer when ready",
		Code:    "XFR003",
	}
	msgShuttingDown = UserMessage{
		Message: "Server is shutting down",
		Action:  "Please try again in a few moments",
		Code:    "XFR004",
	}
	msgFinished = UserMessage{
		Message: "Operation has already finished",
		Action:  "Poll the operation for its final status",
		Code:    "XFR005",
	}
)

// sentinelMessages is checked with errors.Is before any pattern matching.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrTooManyTransfers, msgTooManyTransfers},
	{ErrOperationNotFound, msgOperationNotFound},
	{ErrTransferCancelled, msgCancelled},
	{ErrServiceClosed, msgShuttingDown},
	{ErrOperationFinished, msgFinished},
	{ErrInvalidRequest, msgInvalidRequest},
	{fs.ErrNotExist, msgFileNotFound},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Store constraint errors
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists in the table",
			Action:  "Remove duplicates from the file or import into an empty table",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates",
		msg: UserMessage{
			Message: "A row violates a table constraint",
			Action:  "Check the file for values the table does not accept",
			Code:    "DB002",
		},
	},

	// Store connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Check host and port, then try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "The database rejected the credentials",
			Action:  "Check the user name and password or token",
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
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Table or column does not exist",
			Action:  "Create the table first or check the table name",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller transfer or try again later",
			Code:    "DB007",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller transfer or try again later",
			Code:    "DB007",
		},
	},

	// Validation
	{
		pattern: "invalid delimiter",
		msg: UserMessage{
			Message: "The delimiter is not supported",
			Action:  "Use a single character such as , ; | or \\t",
			Code:    "VAL003",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE002",
		},
	},
	{
		pattern: "wrong number of fields",
		msg: UserMessage{
			Message: "File has rows with inconsistent column counts",
			Action:  "Check the delimiter and quoting in the file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "bare \" in non-quoted-field",
		msg: UserMessage{
			Message: "File has a stray quote character",
			Action:  "Quote fields that contain quotes and double the inner quotes",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE005",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Provide a file with a header line",
			Code:    "FILE006",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "The server cannot access this file",
			Action:  "Choose a path inside the data directory",
			Code:    "FILE007",
		},
	},

	// Rate limiting
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
//
//	msg := MapError(&ColumnNotFoundError{Missing: []string{"x"}})
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var cnf *ColumnNotFoundError
	if errors.As(err, &cnf) {
		msg := msgColumnNotFound
		msg.Message = fmt.Sprintf("Column(s) not found: %s", strings.Join(cnf.Missing, ", "))
		return msg
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
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

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
