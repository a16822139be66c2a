package workbook

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/xuri/excelize/v2"
)

// sheetSnapshot holds the raw cell values of one sheet and their digest.
type sheetSnapshot struct {
	rows   [][]string
	digest uint64
}

// snapshot is the raw content of every sheet of a workbook.
type snapshot map[string]sheetSnapshot

func takeSnapshot(f *excelize.File) (snapshot, error) {
	snap := make(snapshot)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		snap[name] = sheetSnapshot{rows: rows, digest: digestRows(rows)}
	}
	return snap, nil
}

// digestRows hashes the rows with trailing empty cells and rows ignored, so a
// cleared cell at the end of a row hashes the same as a missing one.
func digestRows(rows [][]string) uint64 {
	d := xxhash.New()
	last := len(rows) - 1
	for last >= 0 && trimRow(rows[last]) == 0 {
		last--
	}
	for i := 0; i <= last; i++ {
		row := rows[i]
		for _, v := range row[:trimRow(row)] {
			_, _ = d.WriteString(v)
			_, _ = d.WriteString("\x1f")
		}
		_, _ = d.WriteString("\x1e")
	}
	return d.Sum64()
}

func trimRow(row []string) int {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return n
}

func cellAt(rows [][]string, col, row int) string {
	if row < 1 || row > len(rows) {
		return ""
	}
	r := rows[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// diffOutside lists cells that differ between before and after and are not in
// allowed, which maps sheet to the set of patched cell references.
func diffOutside(before, after snapshot, allowed map[string]map[string]struct{}) []string {
	var changed []string

	names := make(map[string]struct{})
	for name := range before {
		names[name] = struct{}{}
	}
	for name := range after {
		names[name] = struct{}{}
	}

	for name := range names {
		b, inBefore := before[name]
		a, inAfter := after[name]
		if !inBefore || !inAfter {
			changed = append(changed, name)
			continue
		}
		patched := allowed[name]
		if len(patched) == 0 {
			if a.digest != b.digest {
				changed = append(changed, name)
			}
			continue
		}

		maxRow := len(a.rows)
		if len(b.rows) > maxRow {
			maxRow = len(b.rows)
		}
		for r := 1; r <= maxRow; r++ {
			maxCol := 0
			if r <= len(a.rows) {
				maxCol = len(a.rows[r-1])
			}
			if r <= len(b.rows) && len(b.rows[r-1]) > maxCol {
				maxCol = len(b.rows[r-1])
			}
			for c := 1; c <= maxCol; c++ {
				if cellAt(a.rows, c, r) == cellAt(b.rows, c, r) {
					continue
				}
				axis, err := excelize.CoordinatesToCellName(c, r)
				if err != nil {
					continue
				}
				if _, ok := patched[axis]; !ok {
					changed = append(changed, name+"!"+axis)
				}
			}
		}
	}

	sort.Strings(changed)
	return changed
}
