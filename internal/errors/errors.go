package apperrors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	TypeConfig    ErrorType = "Config"    // Invalid flags, empty source list
	TypeNotFound  ErrorType = "NotFound"  // Source path does not exist
	TypeResource  ErrorType = "Resource"  // Permission denied, out of space, target not creatable
	TypeCancelled ErrorType = "Cancelled" // Run stopped through its context
	TypeIntegrity ErrorType = "Integrity" // Copied content differs from the source
	TypeInternal  ErrorType = "Internal"  // Unexpected internal failure
)

// AppError is a rich error type that provides categorize and hints for users.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Hint    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Hint:    hint,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, t ErrorType, msg string, hint string) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
		Hint:    hint,
	}
}

// IsType reports whether any AppError in err's chain has type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

var (
	ErrNoSources = New(TypeConfig, "No source paths provided", "Pass at least one file or directory to back up.")
)
