// Package registry resolves (mode, location, parameter) to a tag and a worksheet
// position. Everything is validated when the registry is built so that a run
// never discovers a bad mapping halfway through.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"aquaexport/internal/config"
	apperrors "aquaexport/internal/errors"
	"aquaexport/pkg/contracts/domain"
)

// DaysPerBlock is the number of day rows reserved under every location anchor.
const DaysPerBlock = 31

// Label columns of a location block. Column A numbers the day rows and
// column B names the location on the row of day 1.
const (
	DayColumn      = "A"
	LocationColumn = "B"
)

// Binding is a metric together with its place in the monthly sheet.
type Binding struct {
	domain.Metric
	// Anchor is the header row of the location block.
	Anchor  int
	Columns map[domain.AggFunc]string
}

// Row returns the worksheet row of a day of the month.
func (b Binding) Row(day int) int {
	return b.Anchor + 2 + (day - 1)
}

// ModeLayout is the workbook layout and metric table of one mode.
type ModeLayout struct {
	Mode         domain.Mode
	TemplatePath string
	FilePattern  string
	SheetNames   [12]string
	// YearCells receive the report year when a workbook is created from the template.
	YearCells []string
	Bindings  []Binding

	index map[string]int
}

// SheetFor returns the sheet holding a month.
func (l *ModeLayout) SheetFor(month time.Month) string {
	return l.SheetNames[month-1]
}

// WorkbookName returns the file name of the yearly workbook.
func (l *ModeLayout) WorkbookName(year int) string {
	return fmt.Sprintf(l.FilePattern, year)
}

// Lookup returns the binding of a location/parameter pair.
func (l *ModeLayout) Lookup(location, parameter string) (Binding, error) {
	i, ok := l.index[location+"/"+parameter]
	if !ok {
		return Binding{}, apperrors.NewConfigError(
			fmt.Sprintf("no tag mapping for %s %s/%s", l.Mode, location, parameter),
			apperrors.ErrMissingTag)
	}
	return l.Bindings[i], nil
}

// Cell returns the sheet and cell reference of one aggregate of one day.
func (l *ModeLayout) Cell(d domain.Date, location, parameter string, fn domain.AggFunc) (string, string, error) {
	b, err := l.Lookup(location, parameter)
	if err != nil {
		return "", "", err
	}
	col, ok := b.Columns[fn]
	if !ok {
		return "", "", apperrors.NewConfigError(
			fmt.Sprintf("%s/%s has no %s column", location, parameter, fn), nil)
	}
	axis, err := excelize.JoinCellName(col, b.Row(d.Day))
	if err != nil {
		return "", "", fmt.Errorf("failed to build cell name: %w", err)
	}
	return l.SheetFor(d.Month), axis, nil
}

// Metrics returns the metrics of the layout in configuration order.
func (l *ModeLayout) Metrics() []domain.Metric {
	metrics := make([]domain.Metric, len(l.Bindings))
	for i, b := range l.Bindings {
		metrics[i] = b.Metric
	}
	return metrics
}

// Registry holds one layout per configured mode.
type Registry struct {
	layouts map[domain.Mode]*ModeLayout
}

// FromConfig builds the registry from the loaded configuration.
func FromConfig(cfg *config.Config) (*Registry, error) {
	return New(cfg.Modes, cfg.Export.TemplateDir)
}

// New validates the mode tables and builds the registry. Any problem is
// returned as a configuration error.
func New(modes map[string]config.ModeConfig, templateDir string) (*Registry, error) {
	if len(modes) == 0 {
		return nil, apperrors.NewConfigError("no export modes configured", nil)
	}

	r := &Registry{layouts: make(map[domain.Mode]*ModeLayout, len(modes))}
	for name, mc := range modes {
		mode, err := domain.ParseMode(name)
		if err != nil {
			return nil, apperrors.NewConfigError("invalid mode", err)
		}
		if _, dup := r.layouts[mode]; dup {
			return nil, apperrors.NewConfigError(fmt.Sprintf("mode %s configured twice", mode), nil)
		}
		layout, err := buildLayout(mode, mc, templateDir)
		if err != nil {
			return nil, err
		}
		r.layouts[mode] = layout
	}
	return r, nil
}

// Modes lists the configured modes in a stable order.
func (r *Registry) Modes() []domain.Mode {
	modes := make([]domain.Mode, 0, len(r.layouts))
	for m := range r.layouts {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// Layout returns the layout of a mode.
func (r *Registry) Layout(mode domain.Mode) (*ModeLayout, error) {
	l, ok := r.layouts[mode]
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("mode %s is not configured", mode), nil)
	}
	return l, nil
}

// Metrics returns the metrics of a mode.
func (r *Registry) Metrics(mode domain.Mode) ([]domain.Metric, error) {
	l, err := r.Layout(mode)
	if err != nil {
		return nil, err
	}
	return l.Metrics(), nil
}

// Lookup resolves a location/parameter pair of a mode to its binding.
func (r *Registry) Lookup(mode domain.Mode, location, parameter string) (Binding, error) {
	l, err := r.Layout(mode)
	if err != nil {
		return Binding{}, err
	}
	return l.Lookup(location, parameter)
}

// CheckTemplates verifies that every mode template exists and is a regular file.
func (r *Registry) CheckTemplates() error {
	for _, mode := range r.Modes() {
		if err := r.layouts[mode].CheckTemplate(); err != nil {
			return err
		}
	}
	return nil
}

// CheckTemplate verifies the template of one layout.
func (l *ModeLayout) CheckTemplate() error {
	info, err := os.Stat(l.TemplatePath)
	if err != nil || !info.Mode().IsRegular() {
		return apperrors.NewConfigError(
			fmt.Sprintf("template for %s not found at %s", l.Mode, l.TemplatePath),
			apperrors.ErrTemplateMissing).WithContext("path", l.TemplatePath)
	}
	return nil
}

func buildLayout(mode domain.Mode, mc config.ModeConfig, templateDir string) (*ModeLayout, error) {
	if mc.Template == "" {
		return nil, apperrors.NewConfigError(fmt.Sprintf("mode %s has no template", mode), nil)
	}
	if !strings.Contains(mc.FilePattern, "%d") {
		return nil, apperrors.NewConfigError(fmt.Sprintf("file pattern %q of %s lacks %%d", mc.FilePattern, mode), nil)
	}

	templatePath := mc.Template
	if !filepath.IsAbs(templatePath) {
		templatePath = filepath.Join(templateDir, templatePath)
	}

	l := &ModeLayout{
		Mode:         mode,
		TemplatePath: templatePath,
		FilePattern:  mc.FilePattern,
		YearCells:    append([]string(nil), mc.YearCells...),
		index:        make(map[string]int),
	}

	switch {
	case len(mc.SheetNames) == 12:
		copy(l.SheetNames[:], mc.SheetNames)
	case len(mc.SheetNames) == 0 && mc.SheetPrefix != "":
		for m := 0; m < 12; m++ {
			l.SheetNames[m] = fmt.Sprintf("%s%02d", mc.SheetPrefix, m+1)
		}
	default:
		return nil, apperrors.NewConfigError(
			fmt.Sprintf("mode %s needs a sheet prefix or exactly 12 sheet names", mode), nil)
	}

	for _, cell := range l.YearCells {
		if _, _, err := excelize.CellNameToCoordinates(cell); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("invalid year cell %q", cell), err)
		}
	}

	if err := l.addLocations(mc.Locations); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *ModeLayout) addLocations(locations []config.LocationConfig) error {
	if len(locations) == 0 {
		return apperrors.NewConfigError(fmt.Sprintf("mode %s has no locations", l.Mode), nil)
	}

	anchors := make([]int, 0, len(locations))
	for _, lc := range locations {
		if lc.Anchor < 1 {
			return apperrors.NewConfigError(fmt.Sprintf("location %q has invalid anchor %d", lc.Name, lc.Anchor), nil)
		}
		anchors = append(anchors, lc.Anchor)

		used := make(map[string]string)
		for _, mc := range lc.Metrics {
			b, err := l.bindMetric(lc, mc)
			if err != nil {
				return err
			}
			key := b.Key()
			if _, dup := l.index[key]; dup {
				return apperrors.NewConfigError(fmt.Sprintf("duplicate mapping for %s", key), nil)
			}
			for fn, col := range b.Columns {
				if owner, taken := used[col]; taken {
					return apperrors.NewConfigError(
						fmt.Sprintf("column %s of %q used by both %s and %s/%s", col, lc.Name, owner, mc.Parameter, fn), nil)
				}
				used[col] = fmt.Sprintf("%s/%s", mc.Parameter, fn)
			}
			l.index[key] = len(l.Bindings)
			l.Bindings = append(l.Bindings, b)
		}
	}

	sort.Ints(anchors)
	for i := 1; i < len(anchors); i++ {
		if anchors[i]-anchors[i-1] < DaysPerBlock+2 {
			return apperrors.NewConfigError(
				fmt.Sprintf("location blocks at rows %d and %d of %s overlap", anchors[i-1], anchors[i], l.Mode), nil)
		}
	}
	return nil
}

func (l *ModeLayout) bindMetric(lc config.LocationConfig, mc config.MetricConfig) (Binding, error) {
	where := fmt.Sprintf("%s %s/%s", l.Mode, lc.Name, mc.Parameter)
	if mc.Tag == nil {
		return Binding{}, apperrors.NewConfigError("no tag for "+where, apperrors.ErrMissingTag)
	}
	if *mc.Tag < 0 {
		return Binding{}, apperrors.NewConfigError(fmt.Sprintf("negative tag %d for %s", *mc.Tag, where), nil)
	}

	kind := domain.MetricKind(mc.Kind)
	if !kind.Valid() {
		return Binding{}, apperrors.NewConfigError(fmt.Sprintf("unknown kind %q for %s", mc.Kind, where), nil)
	}
	if mc.Precision < 0 {
		return Binding{}, apperrors.NewConfigError("negative precision for "+where, nil)
	}

	columns := make(map[domain.AggFunc]string, len(mc.Columns))
	for name, col := range mc.Columns {
		fn, err := domain.ParseAggFunc(name)
		if err != nil {
			return Binding{}, apperrors.NewConfigError("invalid column function for "+where, err)
		}
		col = strings.ToUpper(strings.TrimSpace(col))
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return Binding{}, apperrors.NewConfigError(fmt.Sprintf("invalid column %q for %s", col, where), err)
		}
		if col == DayColumn || col == LocationColumn {
			return Binding{}, apperrors.NewConfigError(fmt.Sprintf("column %s of %s holds block labels", col, where), nil)
		}
		columns[fn] = col
	}
	for _, fn := range kind.Functions() {
		if _, ok := columns[fn]; !ok {
			return Binding{}, apperrors.NewConfigError(fmt.Sprintf("%s needs a %s column", where, fn), nil)
		}
	}
	if len(columns) != len(kind.Functions()) {
		return Binding{}, apperrors.NewConfigError(
			fmt.Sprintf("%s maps functions not reported for %s metrics", where, kind), nil)
	}

	return Binding{
		Metric: domain.Metric{
			Mode:         l.Mode,
			Location:     lc.Name,
			Parameter:    mc.Parameter,
			Tag:          domain.TagID(*mc.Tag),
			Kind:         kind,
			Unit:         mc.Unit,
			Precision:    mc.Precision,
			PositiveOnly: mc.PositiveOnly,
		},
		Anchor:  lc.Anchor,
		Columns: columns,
	}, nil
}
