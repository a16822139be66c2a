// Package files discovers the yearly workbooks in the export directory.
//
// The merger writes one workbook per mode and year under
// <export dir>/<mode>/, named after the mode's file pattern. Discovery lists
// them for the HTTP API and resolves a single workbook for download:
//
//	discovery := files.NewDiscovery(cfg.Export.Directory, registry)
//	all, err := discovery.List()
//	wb, err := discovery.Find(domain.ModeQuality, 2024)
package files
