// Package workbook merges report matrices into yearly spreadsheet workbooks.
//
// A workbook is created from its mode template on first write. Later merges
// load the whole file, overwrite only the cells of the matrix and write the
// file back through a temporary file and a rename. The workbooks of one merge
// are either all updated or all left untouched.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/registry"
	"aquaexport/internal/report"
	"aquaexport/pkg/contracts/domain"
)

// Status is the outcome of one workbook in a merge.
type Status string

const (
	StatusWritten Status = "WRITTEN"
	StatusFailed  Status = "FAILED"
	// StatusSkipped means the year had no mergeable cells.
	StatusSkipped Status = "SKIPPED"
)

// Result describes what happened to one yearly workbook.
type Result struct {
	Year         int    `json:"year"`
	Path         string `json:"path"`
	Status       Status `json:"status"`
	Created      bool   `json:"created"`
	CellsWritten int    `json:"cells_written"`
	Error        string `json:"error,omitempty"`
}

// Layouts resolves the workbook layout of a mode.
type Layouts interface {
	Layout(mode domain.Mode) (*registry.ModeLayout, error)
}

// Options tune how cells are written.
type Options struct {
	// NoDataMarker is written for days without readings. Empty clears the cell.
	NoDataMarker string
	// Verify compares the workbook before and after patching and rejects
	// changes outside the patched cells.
	Verify bool
}

// Merger writes report matrices into workbooks under a base directory, one
// sub-directory per mode.
type Merger struct {
	layouts Layouts
	baseDir string
	opts    Options
	logger  *slog.Logger
}

// NewMerger creates a new workbook merger
func NewMerger(layouts Layouts, baseDir string, opts Options, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		layouts: layouts,
		baseDir: baseDir,
		opts:    opts,
		logger:  logger.With(slog.String("component", "workbook_merger")),
	}
}

// PathFor returns the workbook path of a mode and year.
func (m *Merger) PathFor(layout *registry.ModeLayout, year int) string {
	return filepath.Join(m.baseDir, layout.Mode.String(), layout.WorkbookName(year))
}

type patch struct {
	sheet    string
	axis     string
	value    domain.Value
	day      int
	location string
}

// Merge writes every mergeable cell of the matrix into the workbooks of the
// years it covers. Error cells are skipped so stored values survive a failed
// query. All target files are checked for locks before any is written.
//
// Every year is patched and saved to a temporary file first. The temporary
// files replace their targets only once all years have been staged, so a
// failure in any year leaves every workbook untouched.
func (m *Merger) Merge(ctx context.Context, matrix *report.Matrix) ([]Result, error) {
	layout, err := m.layouts.Layout(matrix.Mode)
	if err != nil {
		return nil, err
	}

	years := matrix.Years()
	results := make([]Result, len(years))
	for i, year := range years {
		results[i] = Result{Year: year, Path: m.PathFor(layout, year)}
	}

	for i := range results {
		if err := CheckWritable(results[i].Path); err != nil {
			for j := range results {
				results[j].Status = StatusFailed
				results[j].Error = "not attempted: another workbook is locked"
			}
			results[i].Error = err.Error()
			m.logger.WarnContext(ctx, "workbook locked", slog.String("path", results[i].Path))
			return results, err
		}
	}

	unlock := lockPaths(results)
	defer unlock()

	start := time.Now()
	stages := make([]stage, 0, len(years))
	for i, year := range years {
		st, err := m.prepare(layout, year, matrix.ForYear(year), &results[i])
		if err != nil {
			discard(stages)
			m.fail(ctx, results, i, err)
			return results, err
		}
		if st != nil {
			st.index = i
			stages = append(stages, *st)
		}
	}

	for k, st := range stages {
		if err := os.Rename(st.tmp, st.path); err != nil {
			err = apperrors.NewWorkbookAccessError(st.path, errors.Join(apperrors.ErrFileLocked, err))
			discard(stages[k:])
			for _, rest := range stages[k:] {
				results[rest.index].Status = StatusFailed
				results[rest.index].Error = "not committed: " + err.Error()
			}
			m.logger.ErrorContext(ctx, "workbook commit failed",
				slog.String("path", st.path),
				slog.Int("committed", k),
				slog.String("error", err.Error()))
			return results, err
		}
		res := &results[st.index]
		res.Status = StatusWritten
		m.logger.InfoContext(ctx, "workbook saved",
			slog.String("path", st.path),
			slog.Int("cells", res.CellsWritten),
			slog.Bool("created", res.Created),
			slog.Duration("duration", time.Since(start)))
	}
	return results, nil
}

// stage is a patched workbook saved next to its target, waiting to be
// renamed over it.
type stage struct {
	index int
	path  string
	tmp   string
}

func discard(stages []stage) {
	for _, st := range stages {
		os.Remove(st.tmp)
	}
}

// fail marks every year of the merge failed after year i failed.
func (m *Merger) fail(ctx context.Context, results []Result, i int, err error) {
	for j := range results {
		if results[j].Status == StatusSkipped {
			continue
		}
		results[j].Status = StatusFailed
		results[j].Created = false
		results[j].CellsWritten = 0
		if j < i {
			results[j].Error = fmt.Sprintf("rolled back: workbook %d failed", results[i].Year)
		} else {
			results[j].Error = fmt.Sprintf("not attempted: workbook %d failed", results[i].Year)
		}
	}
	results[i].Error = err.Error()
	m.logger.ErrorContext(ctx, "workbook merge failed",
		slog.String("path", results[i].Path),
		slog.String("error", err.Error()))
}

// lockPaths takes the process lock of every result path in sorted order and
// returns a function releasing them all.
func lockPaths(results []Result) func() {
	keys := make([]string, 0, len(results))
	for _, r := range results {
		abs, err := filepath.Abs(r.Path)
		if err != nil {
			abs = r.Path
		}
		keys = append(keys, abs)
	}
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for _, k := range keys {
		unlocks = append(unlocks, workbookLocks.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// prepare patches the workbook of one year and saves it to a temporary file.
// It returns nil when the year has nothing to write.
func (m *Merger) prepare(layout *registry.ModeLayout, year int, cells []report.Cell, res *Result) (*stage, error) {
	patches, err := m.patches(layout, cells)
	if err != nil {
		return nil, err
	}
	if len(patches) == 0 {
		res.Status = StatusSkipped
		return nil, nil
	}

	created, tmp, err := m.write(layout, year, res.Path, patches)
	if err != nil {
		return nil, err
	}
	res.Created = created
	res.CellsWritten = len(patches)
	return &stage{path: res.Path, tmp: tmp}, nil
}

func (m *Merger) patches(layout *registry.ModeLayout, cells []report.Cell) ([]patch, error) {
	out := make([]patch, 0, len(cells))
	for _, c := range cells {
		if c.Status() == report.CellError {
			continue
		}
		sheet, axis, err := layout.Cell(c.Key.Date, c.Key.Location, c.Key.Parameter, c.Key.Func)
		if err != nil {
			return nil, err
		}
		out = append(out, patch{sheet: sheet, axis: axis, value: c.Value, day: c.Key.Date.Day, location: c.Key.Location})
	}
	return out, nil
}

// write applies the patches and saves the workbook to a temporary file next
// to path. It reports whether the workbook was created from the template.
func (m *Merger) write(layout *registry.ModeLayout, year int, path string, patches []patch) (bool, string, error) {
	f, created, err := m.open(layout, path)
	if err != nil {
		return false, "", err
	}
	defer f.Close()

	var before snapshot
	if m.opts.Verify {
		if before, err = takeSnapshot(f); err != nil {
			return created, "", apperrors.NewWorkbookAccessError(path, err)
		}
	}

	allowed := make(map[string]map[string]struct{})
	allow := func(sheet, axis string) {
		if allowed[sheet] == nil {
			allowed[sheet] = make(map[string]struct{})
		}
		allowed[sheet][axis] = struct{}{}
	}

	if created {
		for _, sheet := range layout.SheetNames {
			if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
				continue
			}
			for _, axis := range layout.YearCells {
				if err := f.SetCellValue(sheet, axis, year); err != nil {
					return created, "", fmt.Errorf("failed to stamp year in %s!%s: %w", sheet, axis, err)
				}
				allow(sheet, axis)
			}
		}
	}

	for _, p := range patches {
		if err := m.apply(f, p); err != nil {
			return created, "", err
		}
		allow(p.sheet, p.axis)
	}
	for _, p := range patches {
		labels, err := label(f, p)
		if err != nil {
			return created, "", err
		}
		for _, axis := range labels {
			allow(p.sheet, axis)
		}
	}

	if m.opts.Verify {
		if err := m.verify(f, before, allowed, patches); err != nil {
			return created, "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return created, "", apperrors.NewWorkbookAccessError(path, err)
	}
	tmp, err := saveTemp(f, path)
	if err != nil {
		return created, "", err
	}
	return created, tmp, nil
}

func (m *Merger) open(layout *registry.ModeLayout, path string) (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, apperrors.NewWorkbookAccessError(path, err)
	}

	if err := layout.CheckTemplate(); err != nil {
		return nil, false, err
	}
	f, err = excelize.OpenFile(layout.TemplatePath)
	if err != nil {
		return nil, false, apperrors.NewConfigError(
			fmt.Sprintf("failed to open template %s", layout.TemplatePath),
			errors.Join(apperrors.ErrTemplateMissing, err))
	}
	m.logger.Info("creating workbook from template",
		slog.String("path", path),
		slog.String("template", layout.TemplatePath))
	return f, true, nil
}

func (m *Merger) apply(f *excelize.File, p patch) error {
	if idx, err := f.GetSheetIndex(p.sheet); err != nil || idx < 0 {
		return apperrors.NewConfigError(fmt.Sprintf("sheet %s missing from workbook", p.sheet), err)
	}
	formula, err := f.GetCellFormula(p.sheet, p.axis)
	if err != nil {
		return fmt.Errorf("failed to read %s!%s: %w", p.sheet, p.axis, err)
	}
	if formula != "" {
		return apperrors.NewConfigError(
			fmt.Sprintf("layout targets formula cell %s!%s", p.sheet, p.axis), nil).
			WithContext("formula", formula)
	}

	if p.value.Present {
		err = f.SetCellFloat(p.sheet, p.axis, p.value.Float, -1, 64)
	} else if m.opts.NoDataMarker != "" {
		err = f.SetCellStr(p.sheet, p.axis, m.opts.NoDataMarker)
	} else {
		err = f.SetCellDefault(p.sheet, p.axis, "")
	}
	if err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", p.sheet, p.axis, err)
	}
	return nil
}

// label numbers the day row of a patch and, on day 1, names its location
// block. Label cells holding formulas are left alone. It returns the cells
// written.
func label(f *excelize.File, p patch) ([]string, error) {
	_, row, err := excelize.CellNameToCoordinates(p.axis)
	if err != nil {
		return nil, err
	}
	var written []string
	set := func(col string, value interface{}) error {
		axis := col + strconv.Itoa(row)
		if formula, err := f.GetCellFormula(p.sheet, axis); err != nil || formula != "" {
			return err
		}
		if err := f.SetCellValue(p.sheet, axis, value); err != nil {
			return fmt.Errorf("failed to label %s!%s: %w", p.sheet, axis, err)
		}
		written = append(written, axis)
		return nil
	}

	if err := set(registry.DayColumn, p.day); err != nil {
		return nil, err
	}
	if p.day == 1 {
		if err := set(registry.LocationColumn, p.location); err != nil {
			return nil, err
		}
	}
	return written, nil
}

// Expected returns the raw text a patch leaves in its cell.
func (m *Merger) Expected(v domain.Value) string {
	if v.Present {
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	}
	return m.opts.NoDataMarker
}

func (m *Merger) verify(f *excelize.File, before snapshot, allowed map[string]map[string]struct{}, patches []patch) error {
	after, err := takeSnapshot(f)
	if err != nil {
		return fmt.Errorf("failed to snapshot patched workbook: %w", err)
	}

	if changed := diffOutside(before, after, allowed); len(changed) > 0 {
		return apperrors.NewIdempotenceViolation(fmt.Sprintf("merge changed %d cells outside the patch set", len(changed))).
			WithContext("cells", changed)
	}

	for _, p := range patches {
		col, row, err := excelize.CellNameToCoordinates(p.axis)
		if err != nil {
			return err
		}
		got := cellAt(after[p.sheet].rows, col, row)
		if want := m.Expected(p.value); got != want {
			return apperrors.NewIdempotenceViolation(
				fmt.Sprintf("%s!%s holds %q after merge, want %q", p.sheet, p.axis, got, want))
		}
	}
	return nil
}

// saveTemp writes f to a new temporary file in the directory of path and
// returns its name. Nothing is left behind when any step fails.
func saveTemp(f *excelize.File, path string) (name string, err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return "", apperrors.NewWorkbookAccessError(path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = f.WriteTo(tmp); err != nil {
		return "", apperrors.NewWorkbookAccessError(path, fmt.Errorf("failed to write workbook: %w", err))
	}
	if err = tmp.Sync(); err != nil {
		return "", apperrors.NewWorkbookAccessError(path, err)
	}
	if err = tmp.Close(); err != nil {
		return "", apperrors.NewWorkbookAccessError(path, err)
	}
	return tmp.Name(), nil
}
