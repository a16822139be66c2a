package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"aquaexport/internal/report"
)

// Headers is the column order of a matrix CSV
var Headers = []string{"date", "location", "parameter", "function", "status", "value", "reason", "error"}

// bom makes Excel read the file as UTF-8
var bom = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	// BOMPrefix adds a UTF-8 BOM for Excel compatibility.
	BOMPrefix bool
}

// WriteMatrix writes one row per cell in key order. No-data and error cells
// have an empty value column.
func WriteMatrix(w io.Writer, m *report.Matrix, opts WriteOptions) error {
	if opts.BOMPrefix {
		if _, err := w.Write(bom); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, cell := range m.Cells() {
		if err := writer.Write(record(cell)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMatrixFile writes the matrix CSV to path, creating parent directories
func WriteMatrixFile(path string, m *report.Matrix, opts WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	if err := WriteMatrix(file, m, opts); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	slog.Info("Wrote matrix CSV",
		slog.String("path", path),
		slog.String("mode", m.Mode.String()),
		slog.Int("cells", m.Len()))
	return nil
}

func record(c report.Cell) []string {
	value := ""
	if c.Status() == report.CellValue {
		value = strconv.FormatFloat(c.Value.Float, 'f', -1, 64)
	}
	return []string{
		c.Key.Date.String(),
		c.Key.Location,
		c.Key.Parameter,
		string(c.Key.Func),
		string(c.Status()),
		value,
		c.Reason,
		c.Error,
	}
}
