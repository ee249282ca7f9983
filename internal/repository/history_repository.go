package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dreampuff/internal/domain"

	"github.com/jmoiron/sqlx"
)

// HistoryRepository reads the append-only sale and stock update history
type HistoryRepository interface {
	RecentSales(ctx context.Context, limit int) ([]domain.SaleHistoryEntry, error)
	RecentStockUpdates(ctx context.Context, limit int) ([]domain.StockUpdateHistoryEntry, error)
	StockTotalsSince(ctx context.Context, since time.Time) (stockIn int, stockOut int, err error)
}

type historyRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new instance of HistoryRepository
func NewHistoryRepository(db *sql.DB) HistoryRepository {
	return &historyRepository{db: sqlx.NewDb(db, "pgx")}
}

func (r *historyRepository) RecentSales(ctx context.Context, limit int) ([]domain.SaleHistoryEntry, error) {
	query := `
		SELECT id, created_at, session_name, session_position, items, total_items
		FROM sale_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	entries := []domain.SaleHistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list sale history: %w", err)
	}

	return entries, nil
}

func (r *historyRepository) RecentStockUpdates(ctx context.Context, limit int) ([]domain.StockUpdateHistoryEntry, error) {
	query := `
		SELECT id, created_at, session_name, session_position, product_id, product_name, image,
		       quantity_added, stock_after
		FROM stock_update_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	entries := []domain.StockUpdateHistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list stock update history: %w", err)
	}

	return entries, nil
}

// StockTotalsSince sums quantities added and sold from the given instant on
func (r *historyRepository) StockTotalsSince(ctx context.Context, since time.Time) (int, int, error) {
	var stockIn, stockOut int

	err := r.db.GetContext(ctx, &stockIn,
		`SELECT COALESCE(SUM(quantity_added), 0) FROM stock_update_history WHERE created_at >= $1`, since)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum stock additions: %w", err)
	}

	err = r.db.GetContext(ctx, &stockOut,
		`SELECT COALESCE(SUM(total_items), 0) FROM sale_history WHERE created_at >= $1`, since)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum sales: %w", err)
	}

	return stockIn, stockOut, nil
}
