package service

import (
	"context"
	"fmt"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/report"
	"dreampuff/internal/repository"
	"dreampuff/internal/timeframe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultRecentReports = 5

// ErrDayAlreadyClosed is returned when every sale up to the requested instant is already reported
var ErrDayAlreadyClosed = repository.ErrDayAlreadyClosed

// DailyResetSession is the snapshot stamped on reports written by the daily reset
var DailyResetSession = domain.SessionSnapshot{Name: "Daily reset", Position: domain.PositionManagement}

// ReportView is a daily report annotated for display
type ReportView struct {
	domain.DailyReport
	ReadableDate string `json:"readableDate"`
}

// ReportSummary is the aggregate of every daily report in a date range
type ReportSummary struct {
	Start   time.Time              `json:"start"`
	End     time.Time              `json:"end"`
	Reports int                    `json:"reports"`
	Items   []domain.ProductTotals `json:"items"`
}

// Empty reports whether no daily report fell inside the range
func (s *ReportSummary) Empty() bool {
	return s.Reports == 0
}

// ReportService reads and writes daily reports
type ReportService interface {
	Summary(ctx context.Context, start, end time.Time) (*ReportSummary, error)
	Recent(ctx context.Context, limit int) ([]ReportView, error)
	CloseDay(ctx context.Context, at time.Time) (*domain.DailyReport, error)
}

type reportService struct {
	reports repository.ReportRepository
	ledger  repository.LedgerRepository
	loc     *time.Location
	logger  *zap.Logger
}

// NewReportService creates a ReportService rendering dates in loc
func NewReportService(reports repository.ReportRepository, ledger repository.LedgerRepository, loc *time.Location, logger *zap.Logger) ReportService {
	return &reportService{
		reports: reports,
		ledger:  ledger,
		loc:     loc,
		logger:  logger.Named("report"),
	}
}

// Summary aggregates the reports created between the start of start's day and the end of end's day
func (s *reportService) Summary(ctx context.Context, start, end time.Time) (*ReportSummary, error) {
	from, to, err := report.DayRange(start, end, s.loc)
	if err != nil {
		return nil, err
	}

	reports, err := s.reports.FindBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	return &ReportSummary{
		Start:   from,
		End:     to,
		Reports: len(reports),
		Items:   report.Aggregate(reports),
	}, nil
}

// Recent returns the newest reports first
func (s *reportService) Recent(ctx context.Context, limit int) ([]ReportView, error) {
	if limit <= 0 {
		limit = defaultRecentReports
	}

	reports, err := s.reports.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent reports: %w", err)
	}

	views := make([]ReportView, len(reports))
	for i, r := range reports {
		views[i] = ReportView{DailyReport: r, ReadableDate: report.ReadableDate(r.CreatedAt, s.loc)}
	}
	return views, nil
}

// CloseDay writes the report of the business day containing the instant just before at,
// covering sales up to at, and clears leftover stock. A close earlier the same day moves
// the start of the covered period to where that report ended.
func (s *reportService) CloseDay(ctx context.Context, at time.Time) (*domain.DailyReport, error) {
	since := timeframe.EffectiveWindowStart(at.In(s.loc).Add(-time.Nanosecond))

	daily := &domain.DailyReport{
		ID:              uuid.New(),
		SessionSnapshot: DailyResetSession,
	}
	if err := s.ledger.CloseDay(ctx, daily, since, at); err != nil {
		return nil, err
	}

	s.logger.Info("Business day closed",
		zap.String("report_id", daily.ID.String()),
		zap.Time("period_start", daily.PeriodStart),
		zap.Time("period_end", daily.PeriodEnd),
		zap.Int("total_sold", daily.TotalSold),
		zap.Int("total_rejected", daily.TotalRejected),
	)
	return daily, nil
}
