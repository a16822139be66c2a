package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/infrastructure"
)

type ctxKey string

// RequestIDKey is the context key for request ID
const RequestIDKey ctxKey = "request-id"

// RequestID takes X-Request-ID from the request or generates one, echoes
// it in the response and uses it as the trace id. It should be the first
// middleware in the chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = infrastructure.WithTraceID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetReqID retrieves the request ID from the context
func GetReqID(ctx context.Context) string {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// quietPaths are probe endpoints logged at debug level only.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// StructuredLogger logs one line per completed request. Server errors are
// logged at error level and probe endpoints at debug.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				level = slog.LevelError
			case quietPaths[r.URL.Path]:
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request completed",
				slog.String("request_id", GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// RateLimiter rejects requests above a fixed rate with 429. Starting an
// export queues thousands of queries, so the API is limited as a whole
// rather than per client.
type RateLimiter struct {
	limiter    *rate.Limiter
	retryAfter string
	logger     *slog.Logger
}

// NewRateLimiter creates a limiter allowing rps requests per second
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	wait := 1
	if rps > 0 && rps < 1 {
		wait = int(math.Ceil(1 / rps))
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retryAfter: strconv.Itoa(wait),
		logger:     logger,
	}
}

// Handler implements rate limiting middleware
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		rl.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		w.Header().Set("Retry-After", rl.retryAfter)
		problem := apperrors.NewProblemDetails(http.StatusTooManyRequests, "/errors/rate-limit-exceeded",
			"Too Many Requests", "Rate limit exceeded", r.URL.Path).
			WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))
		render.Render(w, r, problem)
	})
}

// Timeout bounds the request context. Handlers observe the deadline through
// their context.
func Timeout(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders adds security-related headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RealIP sets RemoteAddr from X-Real-IP or X-Forwarded-For
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}
