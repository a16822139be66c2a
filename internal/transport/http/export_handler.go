package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/infrastructure"
	"aquaexport/internal/exporter"
	"aquaexport/internal/middleware"
	"aquaexport/internal/operations"
	api "aquaexport/pkg/contracts/api/v1"
	"aquaexport/pkg/contracts/domain"
)

// ExportHandler serves the export run endpoints
type ExportHandler struct {
	service   ExportService
	validator *middleware.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(service ExportService, logger *slog.Logger) *ExportHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("handler", "exports"))
	return &ExportHandler{
		service:   service,
		validator: middleware.NewValidator(),
		errors:    apperrors.NewErrorHandler(logger, false),
		logger:    logger,
	}
}

// Routes returns a chi router for the export endpoints
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.StartExport)
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	r.Get("/{id}/cells.csv", h.DownloadCells)
	r.Delete("/{id}", h.CancelRun)
	r.Post("/{id}/cancel", h.CancelRun)
	r.Post("/{id}/retry-merge", h.RetryMerge)
	return r
}

// StartExport handles POST /api/v1/exports. The run continues after the
// response; clients poll the run or follow it over the websocket.
func (h *ExportHandler) StartExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("export-handler").Start(r.Context(), "export_handler.start",
		trace.WithAttributes(attribute.String("request_id", middleware.GetReqID(r.Context()))))
	defer span.End()
	r = r.WithContext(ctx)

	var req api.ExportRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		h.errors.HandleError(w, r, err)
		return
	}
	mode, rng, err := req.Target()
	if err != nil {
		span.SetStatus(codes.Error, "invalid request")
		h.errors.HandleError(w, r, apperrors.NewAppValidationError(err.Error()))
		return
	}

	run, err := h.service.Start(operations.WithTrigger(ctx, operations.TriggerAPI), rng, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		h.errors.HandleError(w, r, err)
		return
	}
	span.SetAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.mode", mode.String()),
	)
	h.logger.InfoContext(ctx, "export started",
		slog.String("run_id", run.ID),
		slog.String("mode", mode.String()),
		slog.String("range", rng.String()),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	w.Header().Set("Location", r.URL.Path+"/"+run.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, run)
}

// ListRuns handles GET /api/v1/exports?mode=&status=&limit=
func (h *ExportHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := api.RunListRequest{Mode: q.Get("mode"), Status: q.Get("status")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.errors.HandleError(w, r, apperrors.ErrValidation("limit", "limit must be an integer"))
			return
		}
		req.Limit = limit
	}
	if err := h.validator.Struct(req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	filter := operations.RunFilter{Status: operations.RunStatus(req.Status), Limit: req.Limit}
	if req.Mode != "" {
		mode, err := domain.ParseMode(req.Mode)
		if err != nil {
			h.errors.HandleError(w, r, apperrors.ErrValidation("mode", err.Error()))
			return
		}
		filter.Mode = mode
	}

	runs, err := h.service.ListRuns(r.Context(), filter)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse{Items: runs, Count: len(runs)})
}

// GetRun handles GET /api/v1/exports/{id}. The cell matrix is included only
// with ?matrix=true.
func (h *ExportHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if r.URL.Query().Get("matrix") != "true" {
		run = run.Summary()
	}
	render.JSON(w, r, run)
}

// DownloadCells handles GET /api/v1/exports/{id}/cells.csv
func (h *ExportHandler) DownloadCells(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if run.Matrix == nil {
		h.errors.HandleError(w, r, apperrors.NewNotFoundError("cell matrix of run "+id, nil))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-cells.csv"`)
	if err := exporter.WriteMatrix(w, run.Matrix, exporter.WriteOptions{BOMPrefix: true}); err != nil {
		h.logger.ErrorContext(r.Context(), "cell export failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()))
	}
}

// CancelRun handles DELETE /api/v1/exports/{id} and POST .../cancel
func (h *ExportHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "export cancel requested", slog.String("run_id", id))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"id": id, "status": "cancelling"})
}

// RetryMerge handles POST /api/v1/exports/{id}/retry-merge. A merge that
// fails again is reported through the returned run, not as an HTTP error.
func (h *ExportHandler) RetryMerge(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.RetryMerge(r.Context(), chi.URLParam(r, "id"))
	if err != nil && (run == nil || errors.Is(err, apperrors.ErrInvalidState) || errors.Is(err, apperrors.ErrNothingToMerge)) {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, run.Summary())
}
