package worker

import (
	"context"
	"errors"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/service"
	"dreampuff/internal/timeframe"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// DayCloser writes the daily report for the business day ending at the given boundary
type DayCloser interface {
	CloseDay(ctx context.Context, at time.Time) (*domain.DailyReport, error)
}

// DailyReset closes the business day at every reset boundary
type DailyReset struct {
	closer  DayCloser
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) bool
	retries uint64
	backoff time.Duration
}

// NewDailyReset creates a worker evaluating the boundary in loc
func NewDailyReset(closer DayCloser, loc *time.Location, logger *zap.Logger) *DailyReset {
	return &DailyReset{
		closer:  closer,
		loc:     loc,
		logger:  logger.Named("daily_reset"),
		now:     time.Now,
		sleep:   sleepContext,
		retries: 3,
		backoff: 30 * time.Second,
	}
}

// sleepContext waits for d and reports false if ctx ended first
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Run blocks until ctx is cancelled
func (w *DailyReset) Run(ctx context.Context) {
	for {
		now := w.now().In(w.loc)
		next := timeframe.NextReset(now)

		w.logger.Info("Next daily reset scheduled", zap.Time("at", next))
		if !w.sleep(ctx, next.Sub(now)) {
			w.logger.Info("Daily reset stopped")
			return
		}

		w.closeDay(ctx, next)
	}
}

func (w *DailyReset) closeDay(ctx context.Context, boundary time.Time) {
	backoff := retry.WithMaxRetries(w.retries, retry.NewExponential(w.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		report, err := w.closer.CloseDay(ctx, boundary)
		if errors.Is(err, service.ErrDayAlreadyClosed) {
			w.logger.Info("Business day already closed", zap.Time("boundary", boundary))
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			w.logger.Warn("Daily close failed", zap.Time("boundary", boundary), zap.Error(err))
			return retry.RetryableError(err)
		}

		w.logger.Info("Business day closed",
			zap.Time("boundary", boundary),
			zap.String("report_id", report.ID.String()),
			zap.Int("total_sold", report.TotalSold),
			zap.Int("total_rejected", report.TotalRejected),
		)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		w.logger.Error("Giving up on daily close", zap.Time("boundary", boundary), zap.Error(err))
	}
}
