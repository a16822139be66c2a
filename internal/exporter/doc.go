// Package exporter dumps a run's report matrix as CSV.
//
// Each cell becomes one row in key order (date, location, parameter,
// function). The status column is value, no_data or error; only value rows
// carry a number. WriteOptions.BOMPrefix prepends a UTF-8 BOM so Excel
// opens the file with the right encoding.
//
// Example usage:
//
//	run, _ := manager.GetRun(id)
//	err := exporter.WriteMatrixFile("out/cells.csv", run.Matrix, exporter.WriteOptions{BOMPrefix: true})
package exporter
