package aggregation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/window"
	"aquaexport/pkg/contracts/domain"
)

type reading struct {
	tag int
	at  time.Time
	val float64
}

func utc(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func newTestStore(t *testing.T, readings []reading) *SQLClient {
	t.Helper()
	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE floattable (tagindex INTEGER NOT NULL, dateandtime DATETIME NOT NULL, val REAL)`)
	require.NoError(t, err)
	for _, r := range readings {
		_, err := db.Exec(`INSERT INTO floattable (tagindex, dateandtime, val) VALUES (?, ?, ?)`, r.tag, r.at, r.val)
		require.NoError(t, err)
	}
	return NewSQLClient(db, DriverSQLite, "floattable", 5*time.Second, nil)
}

var counterMetric = domain.Metric{Mode: domain.ModeQuantity, Location: "Plant", Parameter: "volume_in", Tag: 14, Kind: domain.KindCounter}

var qualityMetric = domain.Metric{Mode: domain.ModeQuality, Location: "Plant", Parameter: "klor", Tag: 3, Kind: domain.KindQuality, Precision: 2, PositiveOnly: true}

func TestCounterWindowAcrossReset(t *testing.T) {
	client := newTestStore(t, []reading{
		{14, utc(2023, 12, 31, 23, 0, 0), 120},
		{14, utc(2024, 1, 1, 23, 50, 0), 130},
		{14, utc(2024, 1, 2, 0, 5, 0), 10},
		{14, utc(2024, 1, 2, 1, 0, 0), 25},
		{14, utc(2024, 1, 2, 3, 0, 0), 999},
		{14, utc(2024, 1, 2, 23, 30, 0), 140},
	})
	calc := window.NewCalculator(time.UTC)

	want := map[int]float64{1: 120, 2: 130, 3: 140}
	for day, expected := range want {
		w, err := calc.For(domain.NewDate(2024, time.January, day), domain.KindCounter)
		require.NoError(t, err)

		v, err := client.Aggregate(context.Background(), NewQuery(counterMetric, w, domain.AggMax))
		require.NoError(t, err)
		assert.True(t, v.Present, "day %d", day)
		assert.Equal(t, expected, v.Float, "day %d", day)
	}
}

func TestQualityWindowInclusiveEnd(t *testing.T) {
	client := newTestStore(t, []reading{
		{3, utc(2024, 1, 1, 0, 0, 0), 0},
		{3, utc(2024, 1, 1, 6, 0, 0), 2.5},
		{3, utc(2024, 1, 1, 12, 0, 0), 1.5},
		{3, utc(2024, 1, 1, 23, 59, 59), 3.0},
		{3, utc(2024, 1, 2, 0, 0, 0), 9.0},
	})
	calc := window.NewCalculator(time.UTC)
	w, err := calc.For(domain.NewDate(2024, time.January, 1), domain.KindQuality)
	require.NoError(t, err)

	tests := []struct {
		fn   domain.AggFunc
		want float64
	}{
		{domain.AggMax, 3.0},
		{domain.AggMin, 1.5},
		{domain.AggAvg, 7.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(string(tt.fn), func(t *testing.T) {
			v, err := client.Aggregate(context.Background(), NewQuery(qualityMetric, w, tt.fn))
			require.NoError(t, err)
			require.True(t, v.Present)
			assert.InDelta(t, tt.want, v.Float, 1e-9)
		})
	}
}

func TestEmptyWindowIsNotZero(t *testing.T) {
	client := newTestStore(t, []reading{
		{5, utc(2024, 1, 1, 8, 0, 0), 0},
		{5, utc(2024, 1, 1, 9, 0, 0), 0},
	})
	calc := window.NewCalculator(time.UTC)
	metric := qualityMetric
	metric.Tag = 5

	w, err := calc.For(domain.NewDate(2024, time.January, 1), domain.KindQuality)
	require.NoError(t, err)

	v, err := client.Aggregate(context.Background(), NewQuery(metric, w, domain.AggMax))
	require.NoError(t, err)
	assert.Equal(t, domain.Some(0), v)

	v, err = client.Aggregate(context.Background(), NewQuery(metric, w, domain.AggMin))
	require.NoError(t, err)
	assert.False(t, v.Present)

	empty, err := calc.For(domain.NewDate(2024, time.January, 5), domain.KindQuality)
	require.NoError(t, err)
	v, err = client.Aggregate(context.Background(), NewQuery(metric, empty, domain.AggMax))
	require.NoError(t, err)
	assert.Equal(t, domain.None(), v)
}

func TestAggregateTimeout(t *testing.T) {
	client := newTestStore(t, nil)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := client.Aggregate(ctx, Query{Tag: 1, Start: utc(2024, 1, 1, 0, 0, 0), End: utc(2024, 1, 2, 0, 0, 0), Func: domain.AggMax})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataSource))
	assert.True(t, IsTransient(err))
}

func TestAggregateClosedStore(t *testing.T) {
	client := newTestStore(t, nil)
	require.NoError(t, client.Close())

	_, err := client.Aggregate(context.Background(), Query{Tag: 1, Func: domain.AggMax})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataSource))
}

func TestStatement(t *testing.T) {
	pg := NewSQLClient(nil, DriverPostgres, "floattable", 0, nil)
	lite := NewSQLClient(nil, DriverSQLite, "floattable", 0, nil)

	stmt, err := pg.statement(Query{Func: domain.AggMax, EndInclusive: true})
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(val) FROM floattable WHERE tagindex = $1 AND dateandtime >= $2 AND dateandtime <= $3", stmt)

	stmt, err = lite.statement(Query{Func: domain.AggAvg, PositiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "SELECT AVG(val) FROM floattable WHERE tagindex = ? AND dateandtime >= ? AND dateandtime < ? AND val > 0", stmt)

	_, err = pg.statement(Query{Func: "SUM"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestNewQueryPositiveOnlySkipsMax(t *testing.T) {
	w := window.DayWindow{Start: utc(2024, 1, 1, 0, 0, 0), End: utc(2024, 1, 1, 23, 59, 59), EndInclusive: true}

	assert.False(t, NewQuery(qualityMetric, w, domain.AggMax).PositiveOnly)
	assert.True(t, NewQuery(qualityMetric, w, domain.AggMin).PositiveOnly)
	assert.True(t, NewQuery(qualityMetric, w, domain.AggAvg).PositiveOnly)
	assert.False(t, NewQuery(counterMetric, w, domain.AggMax).PositiveOnly)
}
