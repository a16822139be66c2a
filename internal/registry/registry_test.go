package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquaexport/internal/config"
	apperrors "aquaexport/internal/errors"
	"aquaexport/pkg/contracts/domain"
)

func intPtr(v int) *int { return &v }

func TestDefaultRegistry(t *testing.T) {
	cfg := config.Default()
	reg, err := FromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, []domain.Mode{domain.ModeQuality, domain.ModeQuantity}, reg.Modes())

	quality, err := reg.Metrics(domain.ModeQuality)
	require.NoError(t, err)
	assert.Len(t, quality, 11)

	quantity, err := reg.Metrics(domain.ModeQuantity)
	require.NoError(t, err)
	assert.Len(t, quantity, 8)

	b, err := reg.Lookup(domain.ModeQuality, "PK Barbat", "mutnoca")
	require.NoError(t, err)
	assert.Equal(t, domain.TagID(3), b.Tag)
	assert.Equal(t, domain.KindQuality, b.Kind)
	assert.True(t, b.PositiveOnly)
	assert.Equal(t, int32(2), b.Precision)

	b, err = reg.Lookup(domain.ModeQuantity, "Hrvatsko primorje južni ogranak", "volume_out")
	require.NoError(t, err)
	assert.Equal(t, domain.TagID(13), b.Tag)
	assert.Equal(t, domain.KindCounter, b.Kind)
	assert.Equal(t, int32(0), b.Precision)
}

func TestLayoutCells(t *testing.T) {
	reg, err := FromConfig(config.Default())
	require.NoError(t, err)

	quality, err := reg.Layout(domain.ModeQuality)
	require.NoError(t, err)
	quantity, err := reg.Layout(domain.ModeQuantity)
	require.NoError(t, err)

	tests := []struct {
		name      string
		layout    *ModeLayout
		date      domain.Date
		location  string
		parameter string
		fn        domain.AggFunc
		sheet     string
		cell      string
	}{
		{"barbat turbidity max on first day", quality, domain.NewDate(2024, time.January, 1), "PK Barbat", "mutnoca", domain.AggMax, "P-01", "C13"},
		{"barbat redox avg", quality, domain.NewDate(2024, time.March, 15), "PK Barbat", "redox", domain.AggAvg, "P-03", "Q27"},
		{"lopar chlorine min", quality, domain.NewDate(2024, time.December, 31), "VS Lopar", "klor", domain.AggMin, "P-12", "D91"},
		{"perici temperature max", quality, domain.NewDate(2023, time.June, 2), "VS Perici", "temp", domain.AggMax, "P-06", "F110"},
		{"primorje volume in", quantity, domain.NewDate(2024, time.January, 2), "Hrvatsko primorje južni ogranak", "volume_in", domain.AggMax, "P2-01", "C14"},
		{"primorje volume out", quantity, domain.NewDate(2024, time.February, 29), "Hrvatsko primorje južni ogranak", "volume_out", domain.AggMax, "P2-02", "F41"},
		{"mlinica flow", quantity, domain.NewDate(2024, time.July, 1), "Mlinica", "max_flow_in", domain.AggMax, "P2-07", "E158"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, cell, err := tt.layout.Cell(tt.date, tt.location, tt.parameter, tt.fn)
			require.NoError(t, err)
			assert.Equal(t, tt.sheet, sheet)
			assert.Equal(t, tt.cell, cell)
		})
	}

	assert.Equal(t, "kvaliteta_vode_2024.xlsx", quality.WorkbookName(2024))
	assert.Equal(t, "zahvacene_kolicine_2023.xlsx", quantity.WorkbookName(2023))
}

func TestLookupUnknownPair(t *testing.T) {
	reg, err := FromConfig(config.Default())
	require.NoError(t, err)

	_, err = reg.Lookup(domain.ModeQuality, "PK Barbat", "conductivity")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingTag))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	layout, err := reg.Layout(domain.ModeQuantity)
	require.NoError(t, err)
	_, _, err = layout.Cell(domain.NewDate(2024, 1, 1), "Perići", "volume_in", domain.AggMin)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func validMode() config.ModeConfig {
	return config.ModeConfig{
		Template:    "t.xlsx",
		FilePattern: "report_%d.xlsx",
		SheetPrefix: "M",
		Locations: []config.LocationConfig{
			{
				Name:   "Plant",
				Anchor: 3,
				Metrics: []config.MetricConfig{
					{Parameter: "klor", Tag: intPtr(7), Kind: "quality", Columns: map[string]string{"MAX": "C", "MIN": "D", "AVG": "E"}},
					{Parameter: "volume", Tag: intPtr(0), Kind: "counter", Columns: map[string]string{"max": "f"}},
				},
			},
		},
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.ModeConfig)
		wantTag bool
	}{
		{
			name:    "missing tag",
			mutate:  func(m *config.ModeConfig) { m.Locations[0].Metrics[0].Tag = nil },
			wantTag: true,
		},
		{
			name:   "negative tag",
			mutate: func(m *config.ModeConfig) { m.Locations[0].Metrics[0].Tag = intPtr(-1) },
		},
		{
			name:   "unknown kind",
			mutate: func(m *config.ModeConfig) { m.Locations[0].Metrics[0].Kind = "gauge" },
		},
		{
			name:   "quality without avg column",
			mutate: func(m *config.ModeConfig) { delete(m.Locations[0].Metrics[0].Columns, "AVG") },
		},
		{
			name:   "counter with min column",
			mutate: func(m *config.ModeConfig) { m.Locations[0].Metrics[1].Columns["MIN"] = "G" },
		},
		{
			name:   "invalid column name",
			mutate: func(m *config.ModeConfig) { m.Locations[0].Metrics[1].Columns["max"] = "1A" },
		},
		{
			name:   "label column",
			mutate: func(m *config.ModeConfig) { m.Locations[0].Metrics[1].Columns["max"] = "b" },
		},
		{
			name:   "shared column",
			mutate: func(m *config.ModeConfig) { m.Locations[0].Metrics[1].Columns["max"] = "C" },
		},
		{
			name: "duplicate parameter",
			mutate: func(m *config.ModeConfig) {
				m.Locations[0].Metrics[1].Parameter = "klor"
				m.Locations[0].Metrics[1].Columns["max"] = "H"
			},
		},
		{
			name: "overlapping blocks",
			mutate: func(m *config.ModeConfig) {
				m.Locations = append(m.Locations, config.LocationConfig{
					Name:   "Other",
					Anchor: 20,
					Metrics: []config.MetricConfig{
						{Parameter: "klor", Tag: intPtr(8), Kind: "flow", Columns: map[string]string{"MAX": "C"}},
					},
				})
			},
		},
		{
			name:   "no sheet names",
			mutate: func(m *config.ModeConfig) { m.SheetPrefix = "" },
		},
		{
			name:   "invalid year cell",
			mutate: func(m *config.ModeConfig) { m.YearCells = []string{"nine"} },
		},
		{
			name:   "pattern without year",
			mutate: func(m *config.ModeConfig) { m.FilePattern = "report.xlsx" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := validMode()
			tt.mutate(&mc)

			_, err := New(map[string]config.ModeConfig{"kvaliteta_vode": mc}, "templates")
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig), "got %v", err)
			assert.Equal(t, tt.wantTag, errors.Is(err, apperrors.ErrMissingTag))
		})
	}
}

func TestNewAcceptsTagZeroAndLowercase(t *testing.T) {
	reg, err := New(map[string]config.ModeConfig{"quality": validMode()}, "templates")
	require.NoError(t, err)

	b, err := reg.Lookup(domain.ModeQuality, "Plant", "volume")
	require.NoError(t, err)
	assert.Equal(t, domain.TagID(0), b.Tag)
	assert.Equal(t, "F", b.Columns[domain.AggMax])

	layout, err := reg.Layout(domain.ModeQuality)
	require.NoError(t, err)
	assert.Equal(t, "M01", layout.SheetFor(time.January))
	assert.Equal(t, "M12", layout.SheetFor(time.December))
	assert.Equal(t, filepath.Join("templates", "t.xlsx"), layout.TemplatePath)
}

func TestNewRejectsUnknownAndDuplicateModes(t *testing.T) {
	_, err := New(map[string]config.ModeConfig{"energy": validMode()}, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	_, err = New(map[string]config.ModeConfig{"quality": validMode(), "kvaliteta_vode": validMode()}, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	_, err = New(nil, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	reg, err := New(map[string]config.ModeConfig{"quality": validMode()}, "")
	require.NoError(t, err)
	_, err = reg.Layout(domain.ModeQuantity)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestCheckTemplates(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(map[string]config.ModeConfig{"quality": validMode()}, dir)
	require.NoError(t, err)

	err = reg.CheckTemplates()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTemplateMissing))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "t.xlsx"), []byte("x"), 0644))
	assert.NoError(t, reg.CheckTemplates())
}
