// Package api contains the HTTP contract of the export service.
// Version v1 represents the current stable API version.
package api

import (
	"fmt"

	"aquaexport/pkg/contracts/domain"
)

// ExportRequest starts an export run for an inclusive date range
type ExportRequest struct {
	Mode string `json:"mode" validate:"required,oneof=kvaliteta_vode zahvacene_kolicine_vode"`
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// Target parses the request into a mode and date range
func (r ExportRequest) Target() (domain.Mode, domain.DateRange, error) {
	mode, err := domain.ParseMode(r.Mode)
	if err != nil {
		return 0, domain.DateRange{}, err
	}
	from, err := domain.ParseDate(r.From)
	if err != nil {
		return 0, domain.DateRange{}, fmt.Errorf("from: %w", err)
	}
	to, err := domain.ParseDate(r.To)
	if err != nil {
		return 0, domain.DateRange{}, fmt.Errorf("to: %w", err)
	}
	rng, err := domain.NewDateRange(from, to)
	if err != nil {
		return 0, domain.DateRange{}, err
	}
	return mode, rng, nil
}

// RunListRequest filters the run history
type RunListRequest struct {
	Mode   string `query:"mode" validate:"omitempty,oneof=kvaliteta_vode zahvacene_kolicine_vode"`
	Status string `query:"status" validate:"omitempty,oneof=PENDING BUILDING MERGING DONE DONE_WITH_ERRORS FAILED CANCELLED"`
	Limit  int    `query:"limit" validate:"min=0,max=500"`
}
