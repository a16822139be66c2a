package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an application error by how a run must react to it.
type ErrorType string

const (
	// ErrTypeConfig aborts a run before any query is issued.
	ErrTypeConfig ErrorType = "CONFIG"
	// ErrTypeDataSource is a per-cell query failure; the run continues.
	ErrTypeDataSource ErrorType = "DATA_SOURCE"
	// ErrTypeWorkbookAccess fails the merge phase only; the matrix is kept for retry.
	ErrTypeWorkbookAccess ErrorType = "WORKBOOK_ACCESS"
	// ErrTypeIdempotence marks a broken merge invariant. It is a defect.
	ErrTypeIdempotence ErrorType = "IDEMPOTENCE_VIOLATION"
	ErrTypeValidation  ErrorType = "VALIDATION"
	ErrTypeNotFound    ErrorType = "NOT_FOUND"
	ErrTypeStorage     ErrorType = "STORAGE"
)

// Sentinel causes, matched with errors.Is.
var (
	ErrMissingTag       = errors.New("missing tag mapping")
	ErrTemplateMissing  = errors.New("template missing")
	ErrFileLocked       = errors.New("workbook file locked")
	ErrConnection       = errors.New("data source connection failed")
	ErrTimeout          = errors.New("data source query timed out")
	ErrCircuitOpen      = errors.New("data source circuit open")
	ErrCancelled        = errors.New("run cancelled before query was issued")
	ErrRunNotFound      = errors.New("run not found")
	ErrWorkbookNotFound = errors.New("workbook not found")
	ErrNothingToMerge   = errors.New("run has no mergeable cells")
	ErrInvalidState     = errors.New("invalid run state transition")
	ErrCellOutsideRange = errors.New("cell changed outside merge set")
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error. Runs abort on it before querying.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewDataSourceError creates a per-cell query error
func NewDataSourceError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataSource, message, cause)
}

// NewWorkbookAccessError creates an error for a workbook that cannot be written
func NewWorkbookAccessError(path string, cause error) *AppError {
	return NewAppError(ErrTypeWorkbookAccess, fmt.Sprintf("cannot write workbook %s", path), cause).
		WithContext("path", path)
}

// NewIdempotenceViolation creates an invariant-violation error
func NewIdempotenceViolation(message string) *AppError {
	return NewAppError(ErrTypeIdempotence, message, ErrCellOutsideRange)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, cause error) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries an AppError of type t.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
