package aggregation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "aquaexport/internal/errors"
	"aquaexport/pkg/contracts/domain"
)

// Breaker fails fast while the store keeps timing out or refusing connections.
// Only transient errors trip it; an empty window or a bad query does not.
type Breaker struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker that opens after maxFailures
// consecutive transient failures and probes again after openTimeout.
func NewBreaker(next Client, maxFailures uint32, openTimeout time.Duration, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFailures == 0 {
		maxFailures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "timeseries-store",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Aggregate forwards the query unless the circuit is open.
func (b *Breaker) Aggregate(ctx context.Context, q Query) (domain.Value, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Aggregate(ctx, q)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.None(), apperrors.NewDataSourceError("query rejected", errors.Join(apperrors.ErrCircuitOpen, err))
	}
	if err != nil {
		return domain.None(), err
	}
	return result.(domain.Value), nil
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Limited caps the query rate sent to the store.
type Limited struct {
	next    Client
	limiter *rate.Limiter
}

// NewLimited allows perSecond queries per second with a burst of one per worker.
func NewLimited(next Client, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Aggregate waits for a token and forwards the query.
func (l *Limited) Aggregate(ctx context.Context, q Query) (domain.Value, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return domain.None(), apperrors.NewDataSourceError("rate limiter wait failed", err)
	}
	return l.next.Aggregate(ctx, q)
}

// Chain wraps a client with the breaker and, when perSecond is positive, a limiter.
func Chain(base Client, maxFailures uint32, openTimeout time.Duration, perSecond float64, burst int, logger *slog.Logger) Client {
	var c Client = NewBreaker(base, maxFailures, openTimeout, logger)
	if perSecond > 0 {
		c = NewLimited(c, perSecond, burst)
	}
	return c
}
