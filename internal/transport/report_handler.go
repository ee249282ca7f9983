package transport

import (
	"net/http"
	"time"

	"dreampuff/internal/middleware"
	"dreampuff/internal/report"
	"dreampuff/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReportHandler serves report summaries and the manual day close
type ReportHandler struct {
	reports service.ReportService
	loc     *time.Location
	logger  *zap.Logger
}

// NewReportHandler creates a ReportHandler interpreting dates in loc
func NewReportHandler(reports service.ReportService, loc *time.Location, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		loc:     loc,
		logger:  logger,
	}
}

// RegisterRoutes registers report routes; management guards the day close
func (h *ReportHandler) RegisterRoutes(r chi.Router, management func(http.Handler) http.Handler) {
	r.Get("/reports/summary", h.Summary)
	r.Get("/reports", h.Recent)
	r.With(management).Post("/reports/close-day", h.CloseDay)
}

// Summary aggregates daily reports between ?start= and ?end= (YYYY-MM-DD, both inclusive)
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, end := query.Get("start"), query.Get("end")
	if start == "" || end == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "start and end dates are required")
		return
	}

	from, to, err := report.ParseDayRange(start, end, h.loc)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.reports.Summary(r.Context(), from, to)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to summarize reports")
		return
	}

	if summary.Empty() {
		middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message": "no data for range",
			"summary": summary,
		})
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *ReportHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 5)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	reports, err := h.reports.Recent(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load reports")
		return
	}
	if reports == nil {
		reports = []service.ReportView{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, reports)
}

// CloseDay writes today's report now instead of waiting for the daily reset
func (h *ReportHandler) CloseDay(w http.ResponseWriter, r *http.Request) {
	daily, err := h.reports.CloseDay(r.Context(), time.Now())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to close day")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, daily)
}
