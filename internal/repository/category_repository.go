package repository

import (
	"context"
	"database/sql"
	"fmt"

	"dreampuff/internal/domain"
)

// CategoryRepository defines the interface for per-category catalog figures
type CategoryRepository interface {
	Summaries(ctx context.Context) ([]domain.CategorySummary, error)
}

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// Summaries returns one row for every known category, including empty ones,
// in display order
func (r *categoryRepository) Summaries(ctx context.Context) ([]domain.CategorySummary, error) {
	query := `
		SELECT category, COUNT(*), COALESCE(SUM(stock), 0)
		FROM products
		GROUP BY category
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize categories: %w", err)
	}
	defer rows.Close()

	found := map[domain.Category]domain.CategorySummary{}
	for rows.Next() {
		var summary domain.CategorySummary
		err := rows.Scan(
			&summary.Category,
			&summary.ProductCount,
			&summary.TotalStock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category summary: %w", err)
		}
		found[summary.Category] = summary
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category summaries: %w", err)
	}

	summaries := make([]domain.CategorySummary, 0, len(domain.Categories))
	for _, category := range domain.Categories {
		summary, ok := found[category]
		if !ok {
			summary = domain.CategorySummary{Category: category}
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}
