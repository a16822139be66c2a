package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"aquaexport/pkg/contracts"
	api "aquaexport/pkg/contracts/api/v1"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// HealthHandler serves liveness, readiness and version endpoints
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. Readiness runs every check.
func NewHealthHandler(checks map[string]Check, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		checks:  checks,
		timeout: 3 * time.Second,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// LivenessCheck handles GET /healthz
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.HealthResponse{
		Status:    api.HealthStatusOK,
		Version:   contracts.Version,
		Timestamp: time.Now().UTC(),
	})
}

// ReadinessCheck handles GET /readyz
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := api.HealthResponse{
		Status:    api.HealthStatusOK,
		Version:   contracts.Version,
		Checks:    make(map[string]string, len(names)),
		Timestamp: time.Now().UTC(),
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()))
			resp.Checks[name] = err.Error()
			resp.Status = api.HealthStatusDegraded
			continue
		}
		resp.Checks[name] = api.HealthStatusOK
	}

	if resp.Status != api.HealthStatusOK {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

// Version handles GET /api/v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
