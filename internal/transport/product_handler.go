package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/feed"
	"dreampuff/internal/middleware"
	"dreampuff/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const streamHeartbeat = 25 * time.Second

// CreateProductRequest adds a product to the catalog
type CreateProductRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Stock    int    `json:"stock" validate:"gte=0"`
	Image    string `json:"image" validate:"omitempty,url"`
	Category string `json:"category" validate:"required,oneof=puff cake bread pastry beverage other"`
}

// ProductHandler serves the catalog and its live stream
type ProductHandler struct {
	ledger service.LedgerService
	hub    *feed.Hub
	logger *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(ledger service.LedgerService, hub *feed.Hub, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		ledger: ledger,
		hub:    hub,
		logger: logger,
	}
}

// RegisterRoutes registers catalog routes; management guards the destructive ones
func (h *ProductHandler) RegisterRoutes(r chi.Router, management func(http.Handler) http.Handler) {
	r.Get("/products", h.ListProducts)
	r.Post("/products", h.CreateProduct)
	r.Get("/products/stream", h.StreamProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.With(management).Delete("/products/{id}", h.DeleteProduct)
	r.Get("/categories", h.ListCategories)
}

// ListProducts returns the catalog ordered by name, optionally filtered by ?category=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var category *domain.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := domain.Category(raw)
		category = &c
	}

	products, err := h.ledger.ListProducts(r.Context(), category)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list products")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.ledger.CreateProduct(r.Context(), req.Name, req.Stock, req.Image, domain.Category(req.Category))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to create product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.ledger.GetProduct(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.ledger.DeleteProduct(r.Context(), id); err != nil {
		respondWithServiceError(w, h.logger, err, "failed to delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.ledger.CategorySummaries(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list categories")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, summaries)
}

// StreamProducts pushes a full product snapshot as a server-sent event after every change
func (h *ProductHandler) StreamProducts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The stream outlives the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Could not clear write deadline for product stream", zap.Error(err))
	}

	sub := h.hub.Subscribe(r.Context())
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snapshot, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSnapshotEvent(w, snapshot); err != nil {
				h.logger.Debug("Product stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeSnapshotEvent(w http.ResponseWriter, snapshot feed.Snapshot) error {
	if snapshot == nil {
		snapshot = feed.Snapshot{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: products\ndata: %s\n\n", data)
	return err
}
