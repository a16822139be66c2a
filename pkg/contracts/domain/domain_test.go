package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Date
		want Date
	}{
		{"normalises overflow", NewDate(2024, time.January, 32), NewDate(2024, time.February, 1)},
		{"leap day", NewDate(2024, time.February, 28).AddDays(1), NewDate(2024, time.February, 29)},
		{"year boundary backwards", NewDate(2024, time.January, 1).AddDays(-1), NewDate(2023, time.December, 31)},
		{"date of zoned time", DateOf(time.Date(2024, time.March, 14, 23, 30, 0, 0, time.UTC)), NewDate(2024, time.March, 14)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	a, b := NewDate(2023, time.December, 31), NewDate(2024, time.January, 1)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.True(t, Date{}.IsZero())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.March, 9), d)
	assert.Equal(t, "2024-03-09", d.String())

	for _, bad := range []string{"", "2024-02-30", "09.03.2024"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateJSON(t *testing.T) {
	rng := DateRange{From: NewDate(2024, time.January, 1), To: NewDate(2024, time.January, 3)}
	data, err := json.Marshal(rng)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"2024-01-01","to":"2024-01-03"}`, string(data))

	var back DateRange
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rng, back)
}

func TestDateRange(t *testing.T) {
	jan1, jan3 := NewDate(2024, time.January, 1), NewDate(2024, time.January, 3)

	rng, err := NewDateRange(jan1, jan3)
	require.NoError(t, err)
	assert.Equal(t, []Date{jan1, NewDate(2024, time.January, 2), jan3}, rng.Days())
	assert.True(t, rng.Contains(jan3))
	assert.False(t, rng.Contains(jan3.AddDays(1)))
	assert.Equal(t, "2024-01-01..2024-01-03", rng.String())

	single, err := NewDateRange(jan1, jan1)
	require.NoError(t, err)
	assert.Len(t, single.Days(), 1)

	_, err = NewDateRange(jan3, jan1)
	assert.Error(t, err)
	_, err = NewDateRange(Date{}, jan1)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"kvaliteta_vode", ModeQuality, false},
		{" Quality ", ModeQuality, false},
		{"zahvacene_kolicine_vode", ModeQuantity, false},
		{"quantity", ModeQuantity, false},
		{"pressure", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Mode(7).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "mode(7)", Mode(7).String())

	var m Mode
	require.NoError(t, json.Unmarshal([]byte(`"quantity"`), &m))
	assert.Equal(t, ModeQuantity, m)
}

func TestMetricKindFunctions(t *testing.T) {
	assert.Equal(t, []AggFunc{AggMax, AggMin, AggAvg}, KindQuality.Functions())
	assert.Equal(t, []AggFunc{AggMax}, KindFlow.Functions())
	assert.Equal(t, []AggFunc{AggMax}, KindCounter.Functions())
	assert.True(t, KindFlow.Instantaneous())
	assert.False(t, KindCounter.Instantaneous())
	assert.False(t, MetricKind("gauge").Valid())

	fn, err := ParseAggFunc(" avg ")
	require.NoError(t, err)
	assert.Equal(t, AggAvg, fn)
	_, err = ParseAggFunc("sum")
	assert.Error(t, err)
}

func TestValueNoDataIsNotZero(t *testing.T) {
	assert.NotEqual(t, Some(0), None())
	assert.Equal(t, "no data", None().String())
	assert.Equal(t, "0", Some(0).String())
	assert.Equal(t, "12.5", Some(12.5).String())
}
