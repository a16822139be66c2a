package api

import "time"

// ListResponse wraps a collection with its size
type ListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// HealthResponse is returned by the liveness and readiness probes
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Health statuses
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)
