// Package testutil holds fixtures shared by package tests: small mode
// layouts, spreadsheet templates built with excelize and in-memory sqlite
// reading stores.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"aquaexport/internal/config"
)

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// QuietLogger discards everything
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Modes returns a two-location quality layout and a one-location quantity
// layout. Column D of the quantity block holds formulas in the templates
// written by WriteTemplates.
func Modes() map[string]config.ModeConfig {
	return map[string]config.ModeConfig{
		"kvaliteta_vode": {
			Template:    "quality_template.xlsx",
			FilePattern: "kvaliteta_vode_%d.xlsx",
			SheetPrefix: "P-",
			YearCells:   []string{"B9", "B57"},
			Locations: []config.LocationConfig{
				{Name: "PK Barbat", Anchor: 11, Metrics: []config.MetricConfig{
					{Parameter: "klor", Tag: IntPtr(21), Kind: "quality", Precision: 2, PositiveOnly: true, Columns: map[string]string{"MAX": "C", "MIN": "D", "AVG": "E"}},
				}},
				{Name: "VS Lopar", Anchor: 59, Metrics: []config.MetricConfig{
					{Parameter: "temp", Tag: IntPtr(155), Kind: "quality", Precision: 2, PositiveOnly: true, Columns: map[string]string{"MAX": "C", "MIN": "D", "AVG": "E"}},
				}},
			},
		},
		"zahvacene_kolicine_vode": {
			Template:    "quantity_template.xlsx",
			FilePattern: "zahvacene_kolicine_%d.xlsx",
			SheetPrefix: "P2-",
			Locations: []config.LocationConfig{
				{Name: "Perići", Anchor: 60, Metrics: []config.MetricConfig{
					{Parameter: "volume_in", Tag: IntPtr(67), Kind: "counter", Unit: "m3", Columns: map[string]string{"MAX": "C"}},
					{Parameter: "max_flow_in", Tag: IntPtr(68), Kind: "flow", Unit: "l/s", Precision: 2, Columns: map[string]string{"MAX": "E"}},
				}},
			},
		},
	}
}

// WriteTemplate builds a template with twelve month sheets named prefix+MM,
// a notes sheet, header text and, when formulaRows is set, formulas in
// column D rows 62 to 92.
func WriteTemplate(t *testing.T, path, prefix string, formulaRows bool) {
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
		for day := 1; day <= 31; day++ {
			require.NoError(t, f.SetCellValue(name, fmt.Sprintf("A%d", 12+day), day))
		}
		if formulaRows {
			for day := 1; day <= 31; day++ {
				row := 62 + day - 1
				require.NoError(t, f.SetCellFormula(name, fmt.Sprintf("D%d", row), fmt.Sprintf("C%d/24", row)))
			}
		}
	}
	_, err := f.NewSheet("Napomene")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Napomene", "A1", "unrelated data"))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, f.SaveAs(path))
}

// WriteTemplates writes both templates of Modes into dir
func WriteTemplates(t *testing.T, dir string) {
	t.Helper()
	WriteTemplate(t, filepath.Join(dir, "quality_template.xlsx"), "P-", false)
	WriteTemplate(t, filepath.Join(dir, "quantity_template.xlsx"), "P2-", true)
}

// CellValue reads the raw value of one cell
func CellValue(t *testing.T, path, sheet, axis string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheet, axis, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}
