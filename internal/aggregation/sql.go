package aggregation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"aquaexport/internal/config"
	apperrors "aquaexport/internal/errors"
	"aquaexport/pkg/contracts/domain"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// SQLClient aggregates readings from a floattable(tagindex, dateandtime, val) table.
type SQLClient struct {
	db      *sql.DB
	driver  string
	table   string
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*SQLClient, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, apperrors.NewDataSourceError("failed to open database", errors.Join(apperrors.ErrConnection, err))
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	client := NewSQLClient(db, cfg.Driver, cfg.Table, cfg.QueryTimeout, logger)
	if err := client.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

// NewSQLClient wraps an open database handle.
func NewSQLClient(db *sql.DB, driverName, table string, timeout time.Duration, logger *slog.Logger) *SQLClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLClient{
		db:      db,
		driver:  driverName,
		table:   table,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "aggregation")),
	}
}

// Ping checks that the store is reachable.
func (c *SQLClient) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return classify("failed to reach database", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *SQLClient) Close() error {
	return c.db.Close()
}

// Aggregate runs one aggregate query. A window without readings yields domain.None().
func (c *SQLClient) Aggregate(ctx context.Context, q Query) (domain.Value, error) {
	stmt, err := c.statement(q)
	if err != nil {
		return domain.None(), err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var result sql.NullFloat64
	err = c.db.QueryRowContext(ctx, stmt, int64(q.Tag), q.Start.UTC(), q.End.UTC()).Scan(&result)
	if err != nil {
		c.logger.WarnContext(ctx, "aggregate query failed",
			slog.String("query", q.String()),
			slog.String("error", err.Error()))
		return domain.None(), classify(fmt.Sprintf("failed to aggregate tag %d", q.Tag), err)
	}

	c.logger.DebugContext(ctx, "aggregate query",
		slog.String("query", q.String()),
		slog.Bool("present", result.Valid),
		slog.Duration("duration", time.Since(start)))

	if !result.Valid {
		return domain.None(), nil
	}
	return domain.Some(result.Float64), nil
}

func (c *SQLClient) statement(q Query) (string, error) {
	switch q.Func {
	case domain.AggMin, domain.AggMax, domain.AggAvg:
	default:
		return "", apperrors.NewAppValidationError(fmt.Sprintf("unsupported aggregate %q", q.Func))
	}

	p1, p2, p3 := "$1", "$2", "$3"
	if c.driver == DriverSQLite {
		p1, p2, p3 = "?", "?", "?"
	}

	upper := "<"
	if q.EndInclusive {
		upper = "<="
	}

	stmt := fmt.Sprintf("SELECT %s(val) FROM %s WHERE tagindex = %s AND dateandtime >= %s AND dateandtime %s %s",
		q.Func, c.table, p1, p2, upper, p3)
	if q.PositiveOnly {
		stmt += " AND val > 0"
	}
	return stmt, nil
}

func (c *SQLClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps driver errors onto the connection and timeout sentinels.
func classify(message string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewDataSourceError(message, errors.Join(apperrors.ErrTimeout, err))
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.NewDataSourceError(message, errors.Join(apperrors.ErrTimeout, err))
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.As(err, &netErr):
		return apperrors.NewDataSourceError(message, errors.Join(apperrors.ErrConnection, err))
	default:
		return apperrors.NewDataSourceError(message, err)
	}
}

// IsTransient reports whether err should count against the circuit breaker.
func IsTransient(err error) bool {
	return errors.Is(err, apperrors.ErrConnection) || errors.Is(err, apperrors.ErrTimeout)
}
