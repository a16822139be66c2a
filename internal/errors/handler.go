package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/render"

	"aquaexport/internal/infrastructure"
)

// Problem types (RFC 7807 "type" member)
const (
	TypeValidation     = "/errors/validation"
	TypeNotFound       = "/errors/not-found"
	TypeInternal       = "/errors/internal"
	TypeTimeout        = "/errors/timeout"
	TypeConflict       = "/errors/conflict"
	TypeConfiguration  = "/errors/configuration"
	TypeWorkbookLocked = "/errors/workbook/locked"
	TypeDataSource     = "/errors/data-source"
)

var problemTypes = map[string]string{
	CodeInvalidRequest:            TypeValidation,
	CodeValidationFailed:          TypeValidation,
	string(ErrTypeValidation):     TypeValidation,
	string(ErrTypeNotFound):       TypeNotFound,
	CodeConflict:                  TypeConflict,
	string(ErrTypeConfig):         TypeConfiguration,
	string(ErrTypeWorkbookAccess): TypeWorkbookLocked,
	string(ErrTypeDataSource):     TypeDataSource,
}

// ErrorHandler renders errors as problem details and logs them with the
// request's trace id.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler. includeStack adds the Go
// stack to responses and is meant for development only.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and responds with its problem details
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	traceID := infrastructure.GetTraceID(r.Context())
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	problem := h.ErrorToProblem(err, r).WithExtension("trace_id", traceID)
	if h.includeStack {
		problem.WithExtension("stack", string(debug.Stack()))
	}
	render.Render(w, r, problem)
}

// ErrorToProblem converts an error into problem details. Unknown errors
// become a generic 500 so internals never reach the client.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiProblem(apiErr, r)
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return apiProblem(FromAppError(appErr), r)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"An unexpected error occurred while processing your request", r.URL.Path)
}

func apiProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType, ok := problemTypes[apiErr.ErrorCode]
	if !ok {
		problemType = TypeInternal
	}
	problem := NewProblemDetails(apiErr.StatusCode, problemType, http.StatusText(apiErr.StatusCode),
		apiErr.Message, r.URL.Path).WithExtension("error_code", apiErr.ErrorCode)
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// NotFound renders a 404 for unknown routes
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path).
		WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))
	render.Render(w, r, problem)
}

// Recoverer turns a handler panic into a logged 500 problem response
func (h *ErrorHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := string(debug.Stack())
			traceID := infrastructure.GetTraceID(r.Context())
			h.logger.ErrorContext(r.Context(), "panic recovered",
				slog.Any("panic", rec),
				slog.String("trace_id", traceID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("stack", stack))

			problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
				"An unexpected error occurred", r.URL.Path).WithExtension("trace_id", traceID)
			if h.includeStack {
				problem.WithExtension("panic", fmt.Sprintf("%v", rec))
				problem.WithExtension("stack", stack)
			}
			render.Render(w, r, problem)
		}()
		next.ServeHTTP(w, r)
	})
}
