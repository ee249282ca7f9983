package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dreampuff/internal/domain"

	"github.com/jmoiron/sqlx"
)

const reportColumns = `id, created_at, session_name, session_position, items_sold, items_rejected, total_sold, total_rejected, period_start, period_end`

// ReportRepository reads daily reports; they are written by LedgerRepository.CloseDay
type ReportRepository interface {
	FindBetween(ctx context.Context, start, end time.Time) ([]domain.DailyReport, error)
	Recent(ctx context.Context, limit int) ([]domain.DailyReport, error)
}

type reportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository
func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: sqlx.NewDb(db, "pgx")}
}

// FindBetween returns reports created within [start, end], oldest first
func (r *reportRepository) FindBetween(ctx context.Context, start, end time.Time) ([]domain.DailyReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM daily_reports
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC
	`

	reports := []domain.DailyReport{}
	if err := r.db.SelectContext(ctx, &reports, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to find reports in range: %w", err)
	}

	return reports, nil
}

// Recent returns the newest reports first
func (r *reportRepository) Recent(ctx context.Context, limit int) ([]domain.DailyReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM daily_reports
		ORDER BY created_at DESC
		LIMIT $1
	`

	reports := []domain.DailyReport{}
	if err := r.db.SelectContext(ctx, &reports, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent reports: %w", err)
	}

	return reports, nil
}
