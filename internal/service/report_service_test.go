package service

import (
	"context"
	"testing"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/report"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockReportRepository struct {
	reports    []domain.DailyReport
	start, end time.Time
}

func (m *mockReportRepository) FindBetween(ctx context.Context, start, end time.Time) ([]domain.DailyReport, error) {
	m.start, m.end = start, end
	var found []domain.DailyReport
	for _, r := range m.reports {
		if !r.CreatedAt.Before(start) && !r.CreatedAt.After(end) {
			found = append(found, r)
		}
	}
	return found, nil
}

func (m *mockReportRepository) Recent(ctx context.Context, limit int) ([]domain.DailyReport, error) {
	if limit > len(m.reports) {
		limit = len(m.reports)
	}
	return m.reports[:limit], nil
}

// closeDayLedger records the window the daily reset was asked to close
type closeDayLedger struct {
	*mockProductStore
	since, until time.Time
}

func (l *closeDayLedger) CloseDay(ctx context.Context, daily *domain.DailyReport, since, until time.Time) error {
	l.since, l.until = since, until
	daily.TotalSold = 4
	daily.CreatedAt = time.Now()
	daily.PeriodStart, daily.PeriodEnd = since, until
	return nil
}

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	return loc
}

func TestReportService_SummaryAggregatesRange(t *testing.T) {
	loc := jakarta(t)
	repo := &mockReportRepository{reports: []domain.DailyReport{
		{
			ID:        uuid.New(),
			CreatedAt: time.Date(2026, 10, 18, 4, 0, 0, 0, loc),
			ItemsSold: domain.ReportItems{{ProductName: "Puff", Quantity: 5}},
		},
		{
			ID:            uuid.New(),
			CreatedAt:     time.Date(2026, 10, 19, 4, 0, 0, 0, loc),
			ItemsSold:     domain.ReportItems{{ProductName: "Puff", Quantity: 3}},
			ItemsRejected: domain.ReportItems{{ProductName: "Choux", Quantity: 2}},
		},
	}}
	svc := NewReportService(repo, &closeDayLedger{}, loc, zap.NewNop())

	summary, err := svc.Summary(context.Background(),
		time.Date(2026, 10, 18, 0, 0, 0, 0, loc),
		time.Date(2026, 10, 19, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.Reports != 2 || len(summary.Items) != 2 {
		t.Fatalf("Unexpected summary: %+v", summary)
	}
	if summary.Items[0].ProductName != "Choux" || summary.Items[0].TotalRejected != 2 {
		t.Errorf("Unexpected first row: %+v", summary.Items[0])
	}
	if summary.Items[1].ProductName != "Puff" || summary.Items[1].TotalSold != 8 {
		t.Errorf("Unexpected second row: %+v", summary.Items[1])
	}

	wantEnd := time.Date(2026, 10, 19, 23, 59, 59, int(999*time.Millisecond), loc)
	if !repo.end.Equal(wantEnd) {
		t.Errorf("Expected range end %v, got %v", wantEnd, repo.end)
	}
}

func TestReportService_SummaryEmptyAndInvalid(t *testing.T) {
	loc := jakarta(t)
	svc := NewReportService(&mockReportRepository{}, &closeDayLedger{}, loc, zap.NewNop())
	ctx := context.Background()

	summary, err := svc.Summary(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, loc), time.Date(2026, 1, 2, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Empty range must not fail: %v", err)
	}
	if !summary.Empty() || len(summary.Items) != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}

	_, err = svc.Summary(ctx, time.Date(2026, 1, 2, 0, 0, 0, 0, loc), time.Date(2026, 1, 1, 0, 0, 0, 0, loc))
	if err != report.ErrInvalidRange {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestReportService_RecentAddsReadableDate(t *testing.T) {
	loc := jakarta(t)
	repo := &mockReportRepository{reports: []domain.DailyReport{
		{ID: uuid.New(), CreatedAt: time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)},
	}}
	svc := NewReportService(repo, &closeDayLedger{}, loc, zap.NewNop())

	views, err := svc.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("Expected one report, got %d", len(views))
	}
	if views[0].ReadableDate != "Senin, 19 Oktober 2026 04.00" {
		t.Errorf("Unexpected readable date: %q", views[0].ReadableDate)
	}
}

func TestReportService_CloseDayWindow(t *testing.T) {
	loc := jakarta(t)
	ledger := &closeDayLedger{}
	svc := NewReportService(&mockReportRepository{}, ledger, loc, zap.NewNop())
	ctx := context.Background()

	// Fired by the scheduler exactly on the boundary: closes the previous business day
	daily, err := svc.CloseDay(ctx, time.Date(2026, 10, 19, 4, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("CloseDay failed: %v", err)
	}
	if want := time.Date(2026, 10, 18, 4, 0, 0, 0, loc); !ledger.since.Equal(want) {
		t.Errorf("Expected window start %v, got %v", want, ledger.since)
	}
	if want := time.Date(2026, 10, 19, 4, 0, 0, 0, loc); !ledger.until.Equal(want) {
		t.Errorf("Expected window end %v, got %v", want, ledger.until)
	}
	if daily.SessionSnapshot != DailyResetSession || daily.TotalSold != 4 {
		t.Errorf("Unexpected report: %+v", daily)
	}

	// Closed by hand mid-day: closes the current business day
	if _, err := svc.CloseDay(ctx, time.Date(2026, 10, 19, 15, 30, 0, 0, loc)); err != nil {
		t.Fatalf("CloseDay failed: %v", err)
	}
	if want := time.Date(2026, 10, 19, 4, 0, 0, 0, loc); !ledger.since.Equal(want) {
		t.Errorf("Expected window start %v, got %v", want, ledger.since)
	}
	if want := time.Date(2026, 10, 19, 15, 30, 0, 0, loc); !ledger.until.Equal(want) {
		t.Errorf("Expected window end %v, got %v", want, ledger.until)
	}
}
