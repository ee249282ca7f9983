package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/repository"
	"dreampuff/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrEmptySale        = errors.New("sale has no items")
	ErrEmptyBatch       = errors.New("no stock updates given")
	ErrInvalidCategory  = errors.New("unknown product category")
	ErrNameRequired     = errors.New("product name is required")
	ErrInvalidTimeframe = errors.New("timeframe must be a positive number of hours")

	// ErrInsufficientStock is matched by every shortage, whichever layer detected it
	ErrInsufficientStock = repository.ErrInsufficientStock
)

// Actor is the staff member performing a ledger write
type Actor struct {
	UserID  uuid.UUID
	Session domain.SessionSnapshot
}

// LedgerService is the only writer of product stock
type LedgerService interface {
	RecordSale(ctx context.Context, actor Actor, lines []domain.SaleLine) (*domain.SaleHistoryEntry, error)
	AddStock(ctx context.Context, actor Actor, productID uuid.UUID, quantity int) (*domain.StockUpdateHistoryEntry, error)
	AdjustStock(ctx context.Context, actor Actor, productID uuid.UUID, delta int) error
	SetStock(ctx context.Context, updates []domain.StockUpdate) error
	SetStockByName(ctx context.Context, name string, stock int) (*domain.Product, error)

	CreateProduct(ctx context.Context, name string, stock int, image string, category domain.Category) (*domain.Product, error)
	ListProducts(ctx context.Context, category *domain.Category) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	CategorySummaries(ctx context.Context) ([]domain.CategorySummary, error)

	RecentSales(ctx context.Context, limit int) ([]domain.SaleHistoryEntry, error)
	RecentStockUpdates(ctx context.Context, limit int) ([]domain.StockUpdateHistoryEntry, error)
	StockTotals(ctx context.Context, hours int) (*domain.StockTotals, error)
}

type ledgerService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	ledger     repository.LedgerRepository
	history    repository.HistoryRepository
	guard      session.SaveGuard
	logger     *zap.Logger
	now        func() time.Time
}

// NewLedgerService creates a new instance of LedgerService
func NewLedgerService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	ledger repository.LedgerRepository,
	history repository.HistoryRepository,
	guard session.SaveGuard,
	logger *zap.Logger,
) LedgerService {
	return &ledgerService{
		products:   products,
		categories: categories,
		ledger:     ledger,
		history:    history,
		guard:      guard,
		logger:     logger.Named("ledger"),
		now:        time.Now,
	}
}

// normalizeSaleLines merges duplicate products in first-seen order and drops zero quantities
func normalizeSaleLines(lines []domain.SaleLine) ([]domain.SaleLine, error) {
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]domain.SaleLine, 0, len(lines))

	for _, line := range lines {
		if line.Quantity < 0 {
			return nil, ErrInvalidQuantity
		}
		if line.Quantity == 0 {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}

	if len(merged) == 0 {
		return nil, ErrEmptySale
	}
	return merged, nil
}

// RecordSale validates every line against current stock before writing anything,
// then commits the decrements and one sale history entry atomically.
func (s *ledgerService) RecordSale(ctx context.Context, actor Actor, lines []domain.SaleLine) (*domain.SaleHistoryEntry, error) {
	merged, err := normalizeSaleLines(lines)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(merged))
	for i, line := range merged {
		ids[i] = line.ProductID
	}

	current, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	entry := &domain.SaleHistoryEntry{
		ID:              uuid.New(),
		SessionSnapshot: actor.Session,
		Items:           make(domain.SaleItems, 0, len(merged)),
	}
	for _, line := range merged {
		product, ok := current[line.ProductID]
		if !ok {
			return nil, repository.ErrProductNotFound
		}
		if line.Quantity > product.Stock {
			return nil, &repository.StockShortageError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Stock,
			}
		}
		entry.Items = append(entry.Items, domain.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Image:       product.Image,
		})
		entry.TotalItems += line.Quantity
	}

	release, err := s.guard.Acquire(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.ledger.ApplySale(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Sale recorded",
		zap.String("sale_id", entry.ID.String()),
		zap.String("session_name", actor.Session.Name),
		zap.Int("total_items", entry.TotalItems),
	)
	return entry, nil
}

// AddStock increments one product and records the addition with the resulting stock
func (s *ledgerService) AddStock(ctx context.Context, actor Actor, productID uuid.UUID, quantity int) (*domain.StockUpdateHistoryEntry, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	release, err := s.guard.Acquire(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	entry := &domain.StockUpdateHistoryEntry{
		ID:              uuid.New(),
		SessionSnapshot: actor.Session,
		ProductID:       productID,
		QuantityAdded:   quantity,
	}
	if err := s.ledger.ApplyStockAddition(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Stock added",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
		zap.Int("stock_after", entry.StockAfter),
	)
	return entry, nil
}

// AdjustStock applies a signed delta: positive adds stock, negative records a sale
func (s *ledgerService) AdjustStock(ctx context.Context, actor Actor, productID uuid.UUID, delta int) error {
	switch {
	case delta > 0:
		_, err := s.AddStock(ctx, actor, productID, delta)
		return err
	case delta < 0:
		_, err := s.RecordSale(ctx, actor, []domain.SaleLine{{ProductID: productID, Quantity: -delta}})
		return err
	default:
		return ErrInvalidQuantity
	}
}

// SetStock overwrites stock levels without history. Last write wins.
func (s *ledgerService) SetStock(ctx context.Context, updates []domain.StockUpdate) error {
	if len(updates) == 0 {
		return ErrEmptyBatch
	}
	for _, update := range updates {
		if update.Stock < 0 {
			return repository.ErrNegativeStock
		}
	}

	if err := s.ledger.SetStock(ctx, updates); err != nil {
		return err
	}

	s.logger.Info("Stock overwritten", zap.Int("products", len(updates)))
	return nil
}

func (s *ledgerService) SetStockByName(ctx context.Context, name string, stock int) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if stock < 0 {
		return nil, repository.ErrNegativeStock
	}

	product, err := s.ledger.SetStockByName(ctx, name, stock)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock overwritten by name", zap.String("product", product.Name), zap.Int("stock", stock))
	return product, nil
}

func (s *ledgerService) CreateProduct(ctx context.Context, name string, stock int, image string, category domain.Category) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if stock < 0 {
		return nil, repository.ErrNegativeStock
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}

	now := s.now().UTC()
	product := &domain.Product{
		ID:        uuid.New(),
		Name:      name,
		Stock:     stock,
		Image:     strings.TrimSpace(image),
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("name", name))
	return product, nil
}

func (s *ledgerService) ListProducts(ctx context.Context, category *domain.Category) ([]*domain.Product, error) {
	if category != nil && !category.Valid() {
		return nil, ErrInvalidCategory
	}
	return s.products.List(ctx, category)
}

func (s *ledgerService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

func (s *ledgerService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

func (s *ledgerService) CategorySummaries(ctx context.Context) ([]domain.CategorySummary, error) {
	return s.categories.Summaries(ctx)
}

func (s *ledgerService) RecentSales(ctx context.Context, limit int) ([]domain.SaleHistoryEntry, error) {
	return s.history.RecentSales(ctx, clampLimit(limit))
}

func (s *ledgerService) RecentStockUpdates(ctx context.Context, limit int) ([]domain.StockUpdateHistoryEntry, error) {
	return s.history.RecentStockUpdates(ctx, clampLimit(limit))
}

// StockTotals sums stock in and out over the trailing window of the given hours
func (s *ledgerService) StockTotals(ctx context.Context, hours int) (*domain.StockTotals, error) {
	if hours <= 0 {
		return nil, ErrInvalidTimeframe
	}

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	stockIn, stockOut, err := s.history.StockTotalsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	return &domain.StockTotals{
		TotalStockIn:   stockIn,
		TotalStockOut:  stockOut,
		TimeframeHours: hours,
	}, nil
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
