package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "aquaexport/internal/errors"
	api "aquaexport/pkg/contracts/api/v1"
	"aquaexport/pkg/contracts/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WorkbookHandler serves the exported yearly workbooks
type WorkbookHandler struct {
	service WorkbookService
	errors  *apperrors.ErrorHandler
	logger  *slog.Logger
}

// NewWorkbookHandler creates a new workbook handler
func NewWorkbookHandler(service WorkbookService, logger *slog.Logger) *WorkbookHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("handler", "workbooks"))
	return &WorkbookHandler{
		service: service,
		errors:  apperrors.NewErrorHandler(logger, false),
		logger:  logger,
	}
}

// Routes returns a chi router for the workbook endpoints
func (h *WorkbookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListWorkbooks)
	r.Get("/{mode}/{year}", h.DownloadWorkbook)
	return r
}

// ListWorkbooks handles GET /api/v1/workbooks?mode=
func (h *WorkbookHandler) ListWorkbooks(w http.ResponseWriter, r *http.Request) {
	var modes []domain.Mode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, err := domain.ParseMode(raw)
		if err != nil {
			h.errors.HandleError(w, r, apperrors.ErrValidation("mode", err.Error()))
			return
		}
		modes = append(modes, mode)
	}

	workbooks, err := h.service.List(modes...)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse{Items: workbooks, Count: len(workbooks)})
}

// DownloadWorkbook handles GET /api/v1/workbooks/{mode}/{year}
func (h *WorkbookHandler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.ErrValidation("mode", err.Error()))
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 {
		h.errors.HandleError(w, r, apperrors.ErrValidation("year", "year must be a positive integer"))
		return
	}

	wb, err := h.service.Find(mode, year)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	f, err := os.Open(wb.Path)
	if err != nil {
		h.errors.HandleError(w, r, apperrors.NewStorageError("failed to open workbook", err))
		return
	}
	defer f.Close()

	h.logger.InfoContext(r.Context(), "workbook download",
		slog.String("mode", mode.String()),
		slog.Int("year", year),
		slog.Int64("size", wb.Size))

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wb.Name))
	http.ServeContent(w, r, wb.Name, wb.ModTime, f)
}
