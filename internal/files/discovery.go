package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/registry"
	"aquaexport/pkg/contracts/domain"
)

// WorkbookFile represents a yearly workbook found in the export directory
type WorkbookFile struct {
	Mode    domain.Mode `json:"mode"`
	Year    int         `json:"year"`
	Name    string      `json:"name"`
	Path    string      `json:"-"`
	Size    int64       `json:"size"`
	ModTime time.Time   `json:"mod_time"`
}

// Layouts resolves the workbook layout of a mode
type Layouts interface {
	Modes() []domain.Mode
	Layout(mode domain.Mode) (*registry.ModeLayout, error)
}

// Discovery lists the workbooks written by the merger. Files are expected
// under <baseDir>/<mode>/ and named after the mode's file pattern.
type Discovery struct {
	baseDir string
	layouts Layouts
}

// NewDiscovery creates a new workbook discovery instance
func NewDiscovery(baseDir string, layouts Layouts) *Discovery {
	return &Discovery{baseDir: baseDir, layouts: layouts}
}

// List returns the workbooks of the given modes, or of every mode when none
// are given, ordered by mode then year.
func (d *Discovery) List(modes ...domain.Mode) ([]WorkbookFile, error) {
	if len(modes) == 0 {
		modes = d.layouts.Modes()
	}

	var files []WorkbookFile
	for _, mode := range modes {
		layout, err := d.layouts.Layout(mode)
		if err != nil {
			return nil, err
		}
		found, err := d.scan(layout)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Mode != files[j].Mode {
			return files[i].Mode < files[j].Mode
		}
		return files[i].Year < files[j].Year
	})
	return files, nil
}

// Find returns the workbook of one mode and year
func (d *Discovery) Find(mode domain.Mode, year int) (WorkbookFile, error) {
	layout, err := d.layouts.Layout(mode)
	if err != nil {
		return WorkbookFile{}, err
	}
	name := layout.WorkbookName(year)
	path := filepath.Join(d.dir(mode), name)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return WorkbookFile{}, apperrors.NewNotFoundError(fmt.Sprintf("workbook %s", name), apperrors.ErrWorkbookNotFound)
	}
	if err != nil {
		return WorkbookFile{}, apperrors.NewStorageError(fmt.Sprintf("failed to stat %s", path), err)
	}
	return newWorkbookFile(mode, year, path, info), nil
}

func (d *Discovery) dir(mode domain.Mode) string {
	return filepath.Join(d.baseDir, mode.String())
}

// scan reads one mode directory. Temporary files and names that do not
// match the pattern exactly are ignored.
func (d *Discovery) scan(layout *registry.ModeLayout) ([]WorkbookFile, error) {
	dir := d.dir(layout.Mode)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read directory %s", dir), err)
	}

	var files []WorkbookFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		year, ok := YearOf(layout, entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, newWorkbookFile(layout.Mode, year, filepath.Join(dir, entry.Name()), info))
	}
	return files, nil
}

// YearOf extracts the year from a workbook name produced by the layout's
// file pattern.
func YearOf(layout *registry.ModeLayout, name string) (int, bool) {
	var year int
	if _, err := fmt.Sscanf(name, layout.FilePattern, &year); err != nil {
		return 0, false
	}
	if year < 1 || layout.WorkbookName(year) != name {
		return 0, false
	}
	return year, true
}

func newWorkbookFile(mode domain.Mode, year int, path string, info fs.FileInfo) WorkbookFile {
	return WorkbookFile{
		Mode:    mode,
		Year:    year,
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}
}
