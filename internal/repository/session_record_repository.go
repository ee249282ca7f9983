package repository

import (
	"context"
	"database/sql"
	"fmt"

	"dreampuff/internal/domain"

	"github.com/jmoiron/sqlx"
)

// SessionRecordRepository persists the append-only log of started work sessions
type SessionRecordRepository interface {
	Create(ctx context.Context, record *domain.SessionRecord) error
	Recent(ctx context.Context, limit int) ([]domain.SessionRecord, error)
}

type sessionRecordRepository struct {
	db *sqlx.DB
}

// NewSessionRecordRepository creates a new instance of SessionRecordRepository
func NewSessionRecordRepository(db *sql.DB) SessionRecordRepository {
	return &sessionRecordRepository{db: sqlx.NewDb(db, "pgx")}
}

// Create inserts a session record; login_time is assigned by the database
func (r *sessionRecordRepository) Create(ctx context.Context, record *domain.SessionRecord) error {
	query := `
		INSERT INTO session_records (id, user_id, name, position, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING login_time
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		record.Name,
		record.Position,
		record.Status,
	).Scan(&record.LoginTime)

	if err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}

	return nil
}

func (r *sessionRecordRepository) Recent(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	query := `
		SELECT id, user_id, name, position, login_time, status
		FROM session_records
		ORDER BY login_time DESC
		LIMIT $1
	`

	records := []domain.SessionRecord{}
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}

	return records, nil
}
