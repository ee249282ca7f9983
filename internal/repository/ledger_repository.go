package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dreampuff/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNegativeStock     = errors.New("stock cannot be negative")
	ErrDayAlreadyClosed  = errors.New("business day is already closed")
)

// closeDayLockKey serializes daily closes across server instances
const closeDayLockKey = 4_041_904

// StockShortageError names the product whose stock cannot cover a requested quantity
type StockShortageError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockShortageError) Unwrap() error {
	return ErrInsufficientStock
}

// LedgerRepository applies stock mutations together with their history records.
// Every method is a single transaction.
type LedgerRepository interface {
	ApplySale(ctx context.Context, entry *domain.SaleHistoryEntry) error
	ApplyStockAddition(ctx context.Context, entry *domain.StockUpdateHistoryEntry) error
	SetStock(ctx context.Context, updates []domain.StockUpdate) error
	SetStockByName(ctx context.Context, name string, stock int) (*domain.Product, error)
	CloseDay(ctx context.Context, report *domain.DailyReport, since, until time.Time) error
}

type ledgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new instance of LedgerRepository
func NewLedgerRepository(db *sql.DB) LedgerRepository {
	return &ledgerRepository{db: sqlx.NewDb(db, "pgx")}
}

type lockedProduct struct {
	id    uuid.UUID
	name  string
	image string
	stock int
}

// lockProducts takes row locks in ID order so concurrent sales never deadlock
func lockProducts(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]lockedProduct, error) {
	query := `
		SELECT id, name, image, stock
		FROM products
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.QueryContext(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	defer rows.Close()

	locked := make(map[uuid.UUID]lockedProduct, len(ids))
	for rows.Next() {
		var p lockedProduct
		if err := rows.Scan(&p.id, &p.name, &p.image, &p.stock); err != nil {
			return nil, fmt.Errorf("failed to scan locked product: %w", err)
		}
		locked[p.id] = p
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locked products: %w", err)
	}

	return locked, nil
}

// ApplySale decrements every sold product and appends exactly one sale history entry.
// The item snapshots (name, image) are refreshed from the locked rows.
func (r *ledgerRepository) ApplySale(ctx context.Context, entry *domain.SaleHistoryEntry) error {
	ids := make([]uuid.UUID, len(entry.Items))
	for i, item := range entry.Items {
		ids[i] = item.ProductID
	}

	return withTx(ctx, r.db.DB, func(tx *sql.Tx) error {
		locked, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		for i, item := range entry.Items {
			product, ok := locked[item.ProductID]
			if !ok {
				return ErrProductNotFound
			}
			if item.Quantity > product.stock {
				return &StockShortageError{
					ProductID:   product.id,
					ProductName: product.name,
					Requested:   item.Quantity,
					Available:   product.stock,
				}
			}
			entry.Items[i].ProductName = product.name
			entry.Items[i].Image = product.image
		}

		now := time.Now().UTC()
		for _, item := range entry.Items {
			_, err := tx.ExecContext(
				ctx,
				`UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1`,
				item.ProductID,
				item.Quantity,
				now,
			)
			if err != nil {
				if isCheckViolation(err) {
					return ErrNegativeStock
				}
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
		}

		query := `
			INSERT INTO sale_history (id, session_name, session_position, items, total_items)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`

		err = tx.QueryRowContext(
			ctx,
			query,
			entry.ID,
			entry.Name,
			entry.Position,
			entry.Items,
			entry.TotalItems,
		).Scan(&entry.CreatedAt)

		if err != nil {
			return fmt.Errorf("failed to create sale history entry: %w", err)
		}

		return nil
	})
}

// ApplyStockAddition increments one product and appends a stock update history entry
// carrying the resulting stock level.
func (r *ledgerRepository) ApplyStockAddition(ctx context.Context, entry *domain.StockUpdateHistoryEntry) error {
	return withTx(ctx, r.db.DB, func(tx *sql.Tx) error {
		locked, err := lockProducts(ctx, tx, []uuid.UUID{entry.ProductID})
		if err != nil {
			return err
		}

		product, ok := locked[entry.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		entry.ProductName = product.name
		entry.Image = product.image

		err = tx.QueryRowContext(
			ctx,
			`UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1 RETURNING stock`,
			entry.ProductID,
			entry.QuantityAdded,
			time.Now().UTC(),
		).Scan(&entry.StockAfter)

		if err != nil {
			return fmt.Errorf("failed to increment stock: %w", err)
		}

		query := `
			INSERT INTO stock_update_history
				(id, session_name, session_position, product_id, product_name, image, quantity_added, stock_after)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at
		`

		err = tx.QueryRowContext(
			ctx,
			query,
			entry.ID,
			entry.Name,
			entry.Position,
			entry.ProductID,
			entry.ProductName,
			entry.Image,
			entry.QuantityAdded,
			entry.StockAfter,
		).Scan(&entry.CreatedAt)

		if err != nil {
			return fmt.Errorf("failed to create stock update history entry: %w", err)
		}

		return nil
	})
}

// SetStock overwrites stock levels for a batch of products.
// A single unknown ID aborts the whole batch.
func (r *ledgerRepository) SetStock(ctx context.Context, updates []domain.StockUpdate) error {
	return withTx(ctx, r.db.DB, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, update := range updates {
			result, err := tx.ExecContext(
				ctx,
				`UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1`,
				update.ID,
				update.Stock,
				now,
			)
			if err != nil {
				if isCheckViolation(err) {
					return ErrNegativeStock
				}
				return fmt.Errorf("failed to set stock: %w", err)
			}

			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}

			if rowsAffected == 0 {
				return ErrProductNotFound
			}
		}
		return nil
	})
}

// SetStockByName overwrites the stock of the product whose name matches ignoring case
func (r *ledgerRepository) SetStockByName(ctx context.Context, name string, stock int) (*domain.Product, error) {
	query := `
		UPDATE products
		SET stock = $2, updated_at = $3
		WHERE LOWER(name) = LOWER($1)
		RETURNING ` + productColumns

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, strings.TrimSpace(name), stock, time.Now().UTC()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		if isCheckViolation(err) {
			return nil, ErrNegativeStock
		}
		return nil, fmt.Errorf("failed to set stock by name: %w", err)
	}

	return product, nil
}

type soldRow struct {
	ProductName string          `db:"product_name"`
	Category    domain.Category `db:"category"`
	Image       string          `db:"image"`
	Quantity    int             `db:"quantity"`
}

// CloseDay snapshots the day into a daily report and clears leftover stock.
// Sold quantities are summed from sale history in [since, until), starting instead where
// the previous report ended when that is later; whatever stock remains is recorded as
// rejected and zeroed. ErrDayAlreadyClosed is returned when nothing is left to close.
func (r *ledgerRepository) CloseDay(ctx context.Context, report *domain.DailyReport, since, until time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, closeDayLockKey); err != nil {
		return fmt.Errorf("failed to lock daily close: %w", err)
	}

	var lastEnd sql.NullTime
	if err := tx.GetContext(ctx, &lastEnd, `SELECT MAX(period_end) FROM daily_reports`); err != nil {
		return fmt.Errorf("failed to load last closed period: %w", err)
	}

	// Stored periods have microsecond precision.
	until = until.Truncate(time.Microsecond)
	from := since
	if lastEnd.Valid && lastEnd.Time.After(from) {
		from = lastEnd.Time
	}
	if !from.Before(until) {
		return ErrDayAlreadyClosed
	}

	var rejected []soldRow
	err = tx.SelectContext(ctx, &rejected, `
		SELECT name AS product_name, category, image, stock AS quantity
		FROM products
		WHERE stock > 0
		ORDER BY id
		FOR UPDATE
	`)
	if err != nil {
		return fmt.Errorf("failed to load remaining stock: %w", err)
	}

	var sold []soldRow
	err = tx.SelectContext(ctx, &sold, `
		SELECT item->>'productName' AS product_name,
		       COALESCE(MAX(p.category), 'other') AS category,
		       COALESCE(MAX(item->>'image'), '') AS image,
		       SUM((item->>'quantity')::int) AS quantity
		FROM sale_history h
		CROSS JOIN LATERAL jsonb_array_elements(h.items) AS item
		LEFT JOIN products p ON p.id = (item->>'productId')::uuid
		WHERE h.created_at >= $1 AND h.created_at < $2
		GROUP BY item->>'productName'
	`, from, until)
	if err != nil {
		return fmt.Errorf("failed to sum sales: %w", err)
	}

	report.ItemsSold, report.TotalSold = toReportItems(sold)
	report.ItemsRejected, report.TotalRejected = toReportItems(rejected)
	report.PeriodStart, report.PeriodEnd = from, until

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO daily_reports
			(id, session_name, session_position, items_sold, items_rejected, total_sold, total_rejected,
			 period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		report.ID,
		report.Name,
		report.Position,
		report.ItemsSold,
		report.ItemsRejected,
		report.TotalSold,
		report.TotalRejected,
		report.PeriodStart,
		report.PeriodEnd,
	).Scan(&report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create daily report: %w", err)
	}

	if len(rejected) > 0 {
		_, err = tx.ExecContext(ctx, `UPDATE products SET stock = 0, updated_at = $1 WHERE stock > 0`, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to clear remaining stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toReportItems(rows []soldRow) (domain.ReportItems, int) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductName < rows[j].ProductName })

	items := make(domain.ReportItems, 0, len(rows))
	total := 0
	for _, row := range rows {
		items = append(items, domain.ReportItem{
			ProductName: row.ProductName,
			Category:    row.Category,
			Quantity:    row.Quantity,
			Image:       row.Image,
		})
		total += row.Quantity
	}
	return items, total
}
