package transport

import (
	"fmt"
	"net/http"

	"dreampuff/internal/domain"
	"dreampuff/internal/middleware"
	"dreampuff/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockUpdateItem overrides the stock of one product
type StockUpdateItem struct {
	ID    string `json:"id" validate:"required,uuid"`
	Stock *int   `json:"stock" validate:"required,gte=0"`
}

// StockUpdateRequest is an all-or-nothing batch of stock overrides
type StockUpdateRequest struct {
	Updates []StockUpdateItem `json:"updates" validate:"required,min=1,dive"`
}

// UpdateByNameRequest overrides the stock of the product with the given name
type UpdateByNameRequest struct {
	Name  string `json:"name" validate:"required"`
	Stock *int   `json:"stock" validate:"required,gte=0"`
}

// StockHandler serves the integration API used by automation workflows
type StockHandler struct {
	ledger  service.LedgerService
	reports service.ReportService
	logger  *zap.Logger
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(ledger service.LedgerService, reports service.ReportService, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		ledger:  ledger,
		reports: reports,
		logger:  logger,
	}
}

// RegisterRoutes registers the integration routes behind the given guards
func (h *StockHandler) RegisterRoutes(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(guards...)
		r.Get("/api/stock", h.ListStock)
		r.Post("/api/stock", h.UpdateStock)
		r.Post("/api/stock/update-by-name", h.UpdateStockByName)
		r.Get("/api/history", h.StockTotals)
		r.Get("/api/reports", h.RecentReports)
	})
}

// ListStock returns every product
func (h *StockHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.ListProducts(r.Context(), nil)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list stock")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// UpdateStock applies a batch of overrides; an unknown id applies nothing
func (h *StockHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req StockUpdateRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Stock update validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	updates := make([]domain.StockUpdate, len(req.Updates))
	for i, item := range req.Updates {
		updates[i] = domain.StockUpdate{ID: uuid.MustParse(item.ID), Stock: *item.Stock}
	}

	if err := h.ledger.SetStock(r.Context(), updates); err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update stock")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "stock updated",
		"updated": len(updates),
	})
}

// UpdateStockByName overrides one product found by case-insensitive name
func (h *StockHandler) UpdateStockByName(w http.ResponseWriter, r *http.Request) {
	var req UpdateByNameRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.ledger.SetStockByName(r.Context(), req.Name, *req.Stock)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update stock")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Stock for %s set to %d", product.Name, product.Stock),
	})
}

// StockTotals sums stock movement over the trailing hours (default 24)
func (h *StockHandler) StockTotals(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "hours must be a positive integer")
		return
	}

	totals, err := h.ledger.StockTotals(r.Context(), hours)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load stock history")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, totals)
}

// RecentReports returns the newest daily reports (default 5)
func (h *StockHandler) RecentReports(w http.ResponseWriter, r *http.Request) {
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
