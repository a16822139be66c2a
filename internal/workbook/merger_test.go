package workbook

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"aquaexport/internal/config"
	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/registry"
	"aquaexport/internal/report"
	"aquaexport/pkg/contracts/domain"
)

func intPtr(v int) *int { return &v }

// testModes describes a two-location quality layout and a quantity layout
// whose column D holds formulas.
func testModes() map[string]config.ModeConfig {
	return map[string]config.ModeConfig{
		"kvaliteta_vode": {
			Template:    "quality_template.xlsx",
			FilePattern: "kvaliteta_vode_%d.xlsx",
			SheetPrefix: "P-",
			YearCells:   []string{"B9", "B57"},
			Locations: []config.LocationConfig{
				{Name: "PK Barbat", Anchor: 11, Metrics: []config.MetricConfig{
					{Parameter: "klor", Tag: intPtr(21), Kind: "quality", Precision: 2, Columns: map[string]string{"MAX": "C", "MIN": "D", "AVG": "E"}},
				}},
				{Name: "VS Lopar", Anchor: 59, Metrics: []config.MetricConfig{
					{Parameter: "temp", Tag: intPtr(155), Kind: "quality", Precision: 2, Columns: map[string]string{"MAX": "C", "MIN": "D", "AVG": "E"}},
				}},
			},
		},
		"zahvacene_kolicine_vode": {
			Template:    "quantity_template.xlsx",
			FilePattern: "zahvacene_kolicine_%d.xlsx",
			SheetPrefix: "P2-",
			Locations: []config.LocationConfig{
				{Name: "Perići", Anchor: 60, Metrics: []config.MetricConfig{
					{Parameter: "volume_in", Tag: intPtr(67), Kind: "counter", Columns: map[string]string{"MAX": "C"}},
					{Parameter: "max_flow_in", Tag: intPtr(68), Kind: "flow", Precision: 2, Columns: map[string]string{"MAX": "E"}},
				}},
			},
		},
	}
}

// writeTemplate builds a template with twelve month sheets, a notes sheet,
// headers and formulas in column D of the first block.
func writeTemplate(t *testing.T, path, prefix string, formulaRows bool) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for m := 1; m <= 12; m++ {
		name := fmt.Sprintf("%s%02d", prefix, m)
		if m == 1 {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		require.NoError(t, f.SetCellValue(name, "A1", "Izvještaj"))
		require.NoError(t, f.SetCellValue(name, "B11", "header"))
		require.NoError(t, f.SetCellValue(name, "H13", "note outside layout"))
		for day := 1; day <= 31; day++ {
			require.NoError(t, f.SetCellValue(name, fmt.Sprintf("A%d", 12+day), day))
		}
		if formulaRows {
			for day := 1; day <= 31; day++ {
				row := 60 + 2 + day - 1
				require.NoError(t, f.SetCellFormula(name, fmt.Sprintf("D%d", row), fmt.Sprintf("C%d/24", row)))
			}
		}
	}
	_, err := f.NewSheet("Napomene")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Napomene", "A1", "unrelated data"))
	require.NoError(t, f.SaveAs(path))
}

type fixture struct {
	dir      string
	registry *registry.Registry
	merger   *Merger
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(templates, 0755))
	writeTemplate(t, filepath.Join(templates, "quality_template.xlsx"), "P-", false)
	writeTemplate(t, filepath.Join(templates, "quantity_template.xlsx"), "P2-", true)

	reg, err := registry.New(testModes(), templates)
	require.NoError(t, err)

	out := filepath.Join(dir, "exports")
	return &fixture{dir: out, registry: reg, merger: NewMerger(reg, out, opts, nil)}
}

func (fx *fixture) path(t *testing.T, mode domain.Mode, year int) string {
	t.Helper()
	layout, err := fx.registry.Layout(mode)
	require.NoError(t, err)
	return fx.merger.PathFor(layout, year)
}

func snapshotFile(t *testing.T, path string) snapshot {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	snap, err := takeSnapshot(f)
	require.NoError(t, err)
	return snap
}

func rawCell(t *testing.T, path, sheet, axis string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheet, axis, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func key(d domain.Date, location, parameter string, fn domain.AggFunc) report.CellKey {
	return report.CellKey{Date: d, Location: location, Parameter: parameter, Func: fn}
}

func newMatrix(t *testing.T, mode domain.Mode, from, to domain.Date, cells ...report.Cell) *report.Matrix {
	t.Helper()
	rng, err := domain.NewDateRange(from, to)
	require.NoError(t, err)
	m := report.NewMatrix(mode, rng)
	for _, c := range cells {
		require.NoError(t, m.Put(c))
	}
	return m
}

func TestMergeCreatesWorkbookFromTemplate(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.March, 2)

	m := newMatrix(t, domain.ModeQuality, day, day,
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMax), Value: domain.Some(0.45)},
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMin), Value: domain.Some(0.12)},
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggAvg)},
		report.Cell{Key: key(day, "VS Lopar", "temp", domain.AggMax), Value: domain.Some(0)},
		report.Cell{Key: key(day, "VS Lopar", "temp", domain.AggMin), Reason: report.ReasonTimeout, Error: "timeout"},
		report.Cell{Key: key(day, "VS Lopar", "temp", domain.AggAvg), Value: domain.Some(14.5)},
	)

	results, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusWritten, results[0].Status)
	assert.True(t, results[0].Created)
	assert.Equal(t, 5, results[0].CellsWritten)
	assert.Equal(t, 2024, results[0].Year)

	path := fx.path(t, domain.ModeQuality, 2024)
	assert.Equal(t, filepath.Join(fx.dir, "kvaliteta_vode", "kvaliteta_vode_2024.xlsx"), path)

	assert.Equal(t, "0.45", rawCell(t, path, "P-03", "C14"))
	assert.Equal(t, "0.12", rawCell(t, path, "P-03", "D14"))
	assert.Equal(t, "", rawCell(t, path, "P-03", "E14"))
	assert.Equal(t, "0", rawCell(t, path, "P-03", "C62"))
	assert.Equal(t, "", rawCell(t, path, "P-03", "D62"))
	assert.Equal(t, "14.5", rawCell(t, path, "P-03", "E62"))

	for _, sheet := range []string{"P-01", "P-06", "P-12"} {
		assert.Equal(t, "2024", rawCell(t, path, sheet, "B9"))
		assert.Equal(t, "2024", rawCell(t, path, sheet, "B57"))
	}
	assert.Equal(t, "unrelated data", rawCell(t, path, "Napomene", "A1"))
	assert.Equal(t, "note outside layout", rawCell(t, path, "P-03", "H13"))
}

func TestMergeNoDataMarker(t *testing.T) {
	fx := newFixture(t, Options{NoDataMarker: "n/p", Verify: true})
	day := domain.NewDate(2024, time.July, 31)

	m := newMatrix(t, domain.ModeQuantity, day, day,
		report.Cell{Key: key(day, "Perići", "volume_in", domain.AggMax)},
		report.Cell{Key: key(day, "Perići", "max_flow_in", domain.AggMax), Value: domain.Some(0)},
	)
	_, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)

	path := fx.path(t, domain.ModeQuantity, 2024)
	assert.Equal(t, "n/p", rawCell(t, path, "P2-07", "C92"))
	assert.Equal(t, "0", rawCell(t, path, "P2-07", "E92"))
}

func TestMergeLabelsDayRows(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	jan1 := domain.NewDate(2024, time.January, 1)
	jan2 := jan1.AddDays(1)

	m := newMatrix(t, domain.ModeQuantity, jan1, jan2,
		report.Cell{Key: key(jan1, "Perići", "volume_in", domain.AggMax), Value: domain.Some(10)},
		report.Cell{Key: key(jan2, "Perići", "volume_in", domain.AggMax), Value: domain.Some(20)},
		report.Cell{Key: key(jan2, "Perići", "max_flow_in", domain.AggMax), Reason: report.ReasonQuery, Error: "boom"},
	)
	_, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)

	path := fx.path(t, domain.ModeQuantity, 2024)
	assert.Equal(t, "1", rawCell(t, path, "P2-01", "A62"))
	assert.Equal(t, "Perići", rawCell(t, path, "P2-01", "B62"))
	assert.Equal(t, "2", rawCell(t, path, "P2-01", "A63"))
	assert.Equal(t, "", rawCell(t, path, "P2-01", "B63"))
	assert.Equal(t, "", rawCell(t, path, "P2-01", "A64"))

	before := snapshotFile(t, path)
	_, err = fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, before, snapshotFile(t, path))
}

func TestMergeKeepsFormulas(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.January, 1)

	m := newMatrix(t, domain.ModeQuantity, day, day,
		report.Cell{Key: key(day, "Perići", "volume_in", domain.AggMax), Value: domain.Some(4800)},
	)
	_, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)

	f, err := excelize.OpenFile(fx.path(t, domain.ModeQuantity, 2024))
	require.NoError(t, err)
	defer f.Close()
	formula, err := f.GetCellFormula("P2-01", "D62")
	require.NoError(t, err)
	assert.Equal(t, "C62/24", formula)
}

func TestMergeRejectsFormulaTarget(t *testing.T) {
	modes := testModes()
	quantity := modes["zahvacene_kolicine_vode"]
	quantity.Locations[0].Metrics[0].Columns = map[string]string{"MAX": "D"}
	modes["zahvacene_kolicine_vode"] = quantity

	fx := newFixture(t, Options{Verify: true})
	reg, err := registry.New(modes, filepath.Join(filepath.Dir(fx.dir), "templates"))
	require.NoError(t, err)
	merger := NewMerger(reg, fx.dir, Options{Verify: true}, nil)

	day := domain.NewDate(2024, time.January, 1)
	m := newMatrix(t, domain.ModeQuantity, day, day,
		report.Cell{Key: key(day, "Perići", "volume_in", domain.AggMax), Value: domain.Some(4800)},
	)
	results, err := merger.Merge(context.Background(), m)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)

	_, statErr := os.Stat(fx.path(t, domain.ModeQuantity, 2024))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestMergeErrorCellsPreserveStoredValues(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.May, 10)
	k := key(day, "PK Barbat", "klor", domain.AggMax)

	first := newMatrix(t, domain.ModeQuality, day, day, report.Cell{Key: k, Value: domain.Some(0.33)})
	_, err := fx.merger.Merge(context.Background(), first)
	require.NoError(t, err)

	second := newMatrix(t, domain.ModeQuality, day, day,
		report.Cell{Key: k, Reason: report.ReasonConnection, Error: "refused"},
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMin), Value: domain.Some(0.1)},
	)
	results, err := fx.merger.Merge(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].CellsWritten)
	assert.False(t, results[0].Created)

	path := fx.path(t, domain.ModeQuality, 2024)
	assert.Equal(t, "0.33", rawCell(t, path, "P-05", "C22"))
	assert.Equal(t, "0.1", rawCell(t, path, "P-05", "D22"))
}

func TestMergeOnlyErrorsSkipsWorkbook(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.May, 10)

	m := newMatrix(t, domain.ModeQuality, day, day,
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMax), Reason: report.ReasonQuery, Error: "boom"},
	)
	results, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)

	_, statErr := os.Stat(fx.path(t, domain.ModeQuality, 2024))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestMergeSplitsYears(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	dec31 := domain.NewDate(2023, time.December, 31)
	jan1 := domain.NewDate(2024, time.January, 1)

	m := newMatrix(t, domain.ModeQuantity, dec31, jan1,
		report.Cell{Key: key(dec31, "Perići", "volume_in", domain.AggMax), Value: domain.Some(100)},
		report.Cell{Key: key(jan1, "Perići", "volume_in", domain.AggMax), Value: domain.Some(200)},
	)
	results, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2023, results[0].Year)
	assert.Equal(t, 2024, results[1].Year)

	assert.Equal(t, "100", rawCell(t, fx.path(t, domain.ModeQuantity, 2023), "P2-12", "C92"))
	assert.Equal(t, "200", rawCell(t, fx.path(t, domain.ModeQuantity, 2024), "P2-01", "C62"))
}

func TestMergeAcrossYearsIsAllOrNothing(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	dec31 := domain.NewDate(2023, time.December, 31)
	jan1 := domain.NewDate(2024, time.January, 1)

	path2023 := fx.path(t, domain.ModeQuantity, 2023)
	path2024 := fx.path(t, domain.ModeQuantity, 2024)
	require.NoError(t, os.MkdirAll(filepath.Dir(path2024), 0755))
	require.NoError(t, os.WriteFile(path2024, []byte("not a workbook"), 0644))

	m := newMatrix(t, domain.ModeQuantity, dec31, jan1,
		report.Cell{Key: key(dec31, "Perići", "volume_in", domain.AggMax), Value: domain.Some(100)},
		report.Cell{Key: key(jan1, "Perići", "volume_in", domain.AggMax), Value: domain.Some(200)},
	)
	results, err := fx.merger.Merge(context.Background(), m)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeWorkbookAccess))

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, StatusFailed, res.Status, res.Year)
		assert.False(t, res.Created, res.Year)
		assert.Zero(t, res.CellsWritten, res.Year)
	}
	assert.Contains(t, results[0].Error, "rolled back")

	_, err = os.Stat(path2023)
	assert.True(t, errors.Is(err, os.ErrNotExist), "2023 workbook must not be committed")
	data, err := os.ReadFile(path2024)
	require.NoError(t, err)
	assert.Equal(t, "not a workbook", string(data))

	entries, err := os.ReadDir(filepath.Dir(path2024))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path2024), entries[0].Name())

	require.NoError(t, os.Remove(path2024))
	results, err = fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, results[0].Status)
	assert.Equal(t, StatusWritten, results[1].Status)
	assert.Equal(t, "100", rawCell(t, path2023, "P2-12", "C92"))
}

func TestMergeLockedWorkbook(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.February, 1)
	k := key(day, "PK Barbat", "klor", domain.AggMax)

	_, err := fx.merger.Merge(context.Background(), newMatrix(t, domain.ModeQuality, day, day, report.Cell{Key: k, Value: domain.Some(1)}))
	require.NoError(t, err)

	path := fx.path(t, domain.ModeQuality, 2024)
	before := snapshotFile(t, path)
	owner := filepath.Join(filepath.Dir(path), OwnerFilePrefix+filepath.Base(path))
	require.NoError(t, os.WriteFile(owner, []byte("user"), 0644))

	m := newMatrix(t, domain.ModeQuality, day, day, report.Cell{Key: k, Value: domain.Some(2)})
	results, err := fx.merger.Merge(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrFileLocked))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeWorkbookAccess))
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, before, snapshotFile(t, path))

	require.NoError(t, os.Remove(owner))
	results, err = fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, results[0].Status)
	assert.Equal(t, "2", rawCell(t, path, "P-02", "C13"))
}

func TestMergeTemplateMissing(t *testing.T) {
	fx := newFixture(t, Options{})
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(fx.dir), "templates", "quality_template.xlsx")))

	day := domain.NewDate(2024, time.February, 1)
	m := newMatrix(t, domain.ModeQuality, day, day,
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMax), Value: domain.Some(1)})

	_, err := fx.merger.Merge(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTemplateMissing))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestMergeLeavesNoTempFiles(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.February, 1)
	m := newMatrix(t, domain.ModeQuality, day, day,
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMax), Value: domain.Some(1)})

	_, err := fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(fx.dir, "kvaliteta_vode"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kvaliteta_vode_2024.xlsx", entries[0].Name())
}

// randomMatrix fills a quality matrix with a random mix of values, no-data and
// failed cells over a random span of 2024.
func randomMatrix(t *testing.T, rnd *rand.Rand) *report.Matrix {
	t.Helper()
	from := domain.NewDate(2024, time.January, 1).AddDays(rnd.Intn(300))
	to := from.AddDays(rnd.Intn(40))
	if to.Year != 2024 {
		to = domain.NewDate(2024, time.December, 31)
	}

	m := newMatrix(t, domain.ModeQuality, from, to)
	rng, err := domain.NewDateRange(from, to)
	require.NoError(t, err)
	first := true
	for _, d := range rng.Days() {
		for _, lp := range [][2]string{{"PK Barbat", "klor"}, {"VS Lopar", "temp"}} {
			for _, fn := range domain.KindQuality.Functions() {
				c := report.Cell{Key: key(d, lp[0], lp[1], fn)}
				pick := rnd.Intn(4)
				if first {
					// at least one cell is written so the workbook exists
					pick, first = 2, false
				}
				switch pick {
				case 0:
				case 1:
					c.Reason, c.Error = report.ReasonQuery, "failed"
				default:
					c.Value = domain.Some(report.Round(rnd.Float64()*20-2, 2))
				}
				require.NoError(t, m.Put(c))
			}
		}
	}
	return m
}

func TestMergeIdempotent(t *testing.T) {
	rnd := rand.New(rand.NewSource(20240101))

	for i := 0; i < 10; i++ {
		t.Run(fmt.Sprintf("matrix-%d", i), func(t *testing.T) {
			fx := newFixture(t, Options{Verify: true})
			base := randomMatrix(t, rnd)
			m := randomMatrix(t, rnd)

			_, err := fx.merger.Merge(context.Background(), base)
			require.NoError(t, err)
			_, err = fx.merger.Merge(context.Background(), m)
			require.NoError(t, err)

			path := fx.path(t, domain.ModeQuality, 2024)
			once := snapshotFile(t, path)

			_, err = fx.merger.Merge(context.Background(), m)
			require.NoError(t, err)
			assert.Equal(t, once, snapshotFile(t, path))

			layout, err := fx.registry.Layout(domain.ModeQuality)
			require.NoError(t, err)
			for _, c := range m.Cells() {
				if c.Status() == report.CellError {
					continue
				}
				sheet, axis, err := layout.Cell(c.Key.Date, c.Key.Location, c.Key.Parameter, c.Key.Func)
				require.NoError(t, err)
				col, row, err := excelize.CellNameToCoordinates(axis)
				require.NoError(t, err)
				assert.Equal(t, fx.merger.Expected(c.Value), cellAt(once[sheet].rows, col, row), "%s", c.Key)
			}
		})
	}
}

func TestMergeNonDestructive(t *testing.T) {
	fx := newFixture(t, Options{Verify: true})
	day := domain.NewDate(2024, time.April, 20)

	_, err := fx.merger.Merge(context.Background(), newMatrix(t, domain.ModeQuality, day, day,
		report.Cell{Key: key(day, "PK Barbat", "klor", domain.AggMax), Value: domain.Some(1)}))
	require.NoError(t, err)

	path := fx.path(t, domain.ModeQuality, 2024)
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("P-04", "J40", "manual remark"))
	require.NoError(t, f.SetCellValue("P-05", "C13", 9.5))
	require.NoError(t, f.Save())
	require.NoError(t, f.Close())
	before := snapshotFile(t, path)

	next := day.AddDays(1)
	m := newMatrix(t, domain.ModeQuality, next, next,
		report.Cell{Key: key(next, "PK Barbat", "klor", domain.AggAvg), Value: domain.Some(0.7)})
	_, err = fx.merger.Merge(context.Background(), m)
	require.NoError(t, err)
	after := snapshotFile(t, path)

	changed := diffOutside(before, after, map[string]map[string]struct{}{"P-04": {"E33": {}}})
	assert.Empty(t, changed)
	assert.Equal(t, "manual remark", cellAt(after["P-04"].rows, 10, 40))
	assert.Equal(t, "9.5", cellAt(after["P-05"].rows, 3, 13))
	assert.Equal(t, "0.7", cellAt(after["P-04"].rows, 5, 33))
}

func TestDiffOutsideDetectsStrayWrites(t *testing.T) {
	sheet := func(rows [][]string) sheetSnapshot {
		return sheetSnapshot{rows: rows, digest: digestRows(rows)}
	}
	before := snapshot{
		"P-01":     sheet([][]string{{"a", "b"}, {"c"}}),
		"Napomene": sheet([][]string{{"x"}}),
	}
	after := snapshot{
		"P-01":     sheet([][]string{{"a", "B"}, {"c", "new"}}),
		"Napomene": sheet([][]string{{"y"}}),
	}

	changed := diffOutside(before, after, map[string]map[string]struct{}{"P-01": {"B1": {}}})
	assert.Equal(t, []string{"Napomene", "P-01!B2"}, changed)

	assert.Equal(t, digestRows([][]string{{"a", ""}, {}}), digestRows([][]string{{"a"}}))
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")

	assert.NoError(t, CheckWritable(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.NoError(t, CheckWritable(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$book.xlsx"), []byte("x"), 0644))
	err := CheckWritable(path)
	assert.True(t, errors.Is(err, apperrors.ErrFileLocked))
}
