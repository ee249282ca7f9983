package transport

import (
	"net/http"

	"dreampuff/internal/domain"
	"dreampuff/internal/middleware"
	"dreampuff/internal/service"
	"dreampuff/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SaleLineRequest is one product of a sale
type SaleLineRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// SaleRequest records a sale of one or more products
type SaleRequest struct {
	Items []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

// StockAdditionRequest adds freshly baked stock to one product
type StockAdditionRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// LedgerHandler serves stock writes and their history
type LedgerHandler struct {
	ledger service.LedgerService
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledger service.LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger,
	}
}

// RegisterRoutes registers ledger routes
func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sales", h.RecordSale)
	r.Post("/stock-additions", h.AddStock)
	r.Get("/history/sales", h.RecentSales)
	r.Get("/history/stock-updates", h.RecentStockUpdates)
}

// actorFromRequest combines the signed in identity with the active session set by SessionGate
func actorFromRequest(r *http.Request) (service.Actor, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	info, ok := session.InfoFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{UserID: identity.UserID, Session: info.Snapshot()}, true
}

func (h *LedgerHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		middleware.RespondWithRedirect(w, http.StatusUnauthorized, "no active session", session.EntryPoint)
		return
	}

	var req SaleRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	lines := make([]domain.SaleLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = domain.SaleLine{ProductID: uuid.MustParse(item.ProductID), Quantity: item.Quantity}
	}

	entry, err := h.ledger.RecordSale(r.Context(), actor, lines)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to record sale")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, entry)
}

func (h *LedgerHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		middleware.RespondWithRedirect(w, http.StatusUnauthorized, "no active session", session.EntryPoint)
		return
	}

	var req StockAdditionRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	entry, err := h.ledger.AddStock(r.Context(), actor, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to add stock")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, entry)
}

func (h *LedgerHandler) RecentSales(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	entries, err := h.ledger.RecentSales(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load sales history")
		return
	}
	if entries == nil {
		entries = []domain.SaleHistoryEntry{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *LedgerHandler) RecentStockUpdates(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	entries, err := h.ledger.RecentStockUpdates(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load stock update history")
		return
	}
	if entries == nil {
		entries = []domain.StockUpdateHistoryEntry{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, entries)
}
