package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Error codes carried by APIError that are not AppError types.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeConflict         = "CONFLICT"
)

// APIError is an error with an HTTP status, a machine-readable code and
// optional details for the client.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError is one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors groups field errors under a single details object.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// New creates an APIError without details
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

// NewWithDetails creates an APIError carrying details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

// InvalidRequestWithError reports a body that could not be decoded.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// ErrValidation reports one invalid field.
func ErrValidation(field, message string) *APIError {
	return NewValidationErrors([]ValidationError{{Field: field, Message: message}})
}

// NewValidationErrors reports several invalid fields at once.
func NewValidationErrors(fields []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed",
		ValidationErrors{Errors: fields})
}

// appErrorStatus is the HTTP status of each AppError type. Unlisted types
// map to 500.
var appErrorStatus = map[ErrorType]int{
	ErrTypeValidation:     http.StatusBadRequest,
	ErrTypeConfig:         http.StatusUnprocessableEntity,
	ErrTypeNotFound:       http.StatusNotFound,
	ErrTypeWorkbookAccess: http.StatusConflict,
	ErrTypeDataSource:     http.StatusBadGateway,
}

// FromAppError maps an application error onto an HTTP status and code. A run
// in the wrong state for the request is a conflict whatever its type.
func FromAppError(appErr *AppError) *APIError {
	if errors.Is(appErr, ErrInvalidState) || errors.Is(appErr, ErrNothingToMerge) {
		return NewWithDetails(http.StatusConflict, CodeConflict, appErr.Message, appErr.Context)
	}
	status, ok := appErrorStatus[appErr.Type]
	if !ok {
		status = http.StatusInternalServerError
	}
	return NewWithDetails(status, string(appErr.Type), appErr.Message, appErr.Context)
}
