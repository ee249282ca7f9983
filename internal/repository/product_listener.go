package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ProductChangesChannel is raised by the products trigger after every committed statement
const ProductChangesChannel = "product_changes"

// ProductChangeListener waits for product change notifications on a dedicated connection
type ProductChangeListener struct {
	db      *sql.DB
	logger  *zap.Logger
	backoff time.Duration
}

// NewProductChangeListener creates a listener borrowing its connection from db
func NewProductChangeListener(db *sql.DB, logger *zap.Logger) *ProductChangeListener {
	return &ProductChangeListener{
		db:      db,
		logger:  logger.Named("product_listener"),
		backoff: 2 * time.Second,
	}
}

// Listen blocks until ctx is cancelled, calling onChange once subscribed and after every
// notification. It returns nil on cancellation and the connection error otherwise.
func (l *ProductChangeListener) Listen(ctx context.Context, onChange func(ctx context.Context)) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn interface{}) error {
		stdConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		pgxConn := stdConn.Conn()

		if _, err := pgxConn.Exec(ctx, "LISTEN "+pgx.Identifier{ProductChangesChannel}.Sanitize()); err != nil {
			return fmt.Errorf("failed to listen for product changes: %w", err)
		}
		defer func() {
			// The connection goes back to the pool; stop receiving on it.
			unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = pgxConn.Exec(unlistenCtx, "UNLISTEN *")
		}()

		l.logger.Info("Listening for product changes")

		// Changes made while no connection was listening were never delivered.
		onChange(ctx)

		for {
			notification, err := pgxConn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to wait for notification: %w", err)
			}

			l.logger.Debug("Product change received", zap.String("operation", notification.Payload))
			onChange(ctx)
		}
	})
}

// Run keeps Listen alive, reconnecting with capped exponential backoff until ctx is cancelled
func (l *ProductChangeListener) Run(ctx context.Context, onChange func(ctx context.Context)) {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(l.backoff))

	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := l.Listen(ctx, onChange)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		l.logger.Error("Product listener stopped, reconnecting", zap.Error(err))
		return retry.RetryableError(err)
	})
}
