package report

import (
	"errors"
	"fmt"
	"time"

	"dreampuff/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var ErrInvalidRange = errors.New("end date is before start date")

// Aggregate folds daily reports into per-product totals sorted by product name.
// A report is counted once even if it appears more than once in the input.
func Aggregate(reports []domain.DailyReport) []domain.ProductTotals {
	seen := make(map[uuid.UUID]struct{}, len(reports))
	totals := make(map[string]*domain.ProductTotals)

	entry := func(item domain.ReportItem) *domain.ProductTotals {
		t, ok := totals[item.ProductName]
		if !ok {
			t = &domain.ProductTotals{ProductName: item.ProductName}
			totals[item.ProductName] = t
		}
		if t.Category == "" {
			t.Category = item.Category
		}
		if t.Image == "" {
			t.Image = item.Image
		}
		return t
	}

	for _, r := range reports {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		for _, item := range r.ItemsSold {
			entry(item).TotalSold += item.Quantity
		}
		for _, item := range r.ItemsRejected {
			entry(item).TotalRejected += item.Quantity
		}
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	collate.New(language.Indonesian).SortStrings(names)

	result := make([]domain.ProductTotals, 0, len(names))
	for _, name := range names {
		result = append(result, *totals[name])
	}
	return result
}

// DayRange expands calendar dates to [start 00:00:00.000, end 23:59:59.999] in loc
func DayRange(start, end time.Time, loc *time.Location) (time.Time, time.Time, error) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), loc)

	if to.Before(from) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

// ParseDayRange parses YYYY-MM-DD bounds and expands them with DayRange
func ParseDayRange(start, end string, loc *time.Location) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(time.DateOnly, start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
	}
	to, err := time.ParseInLocation(time.DateOnly, end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
	}
	return DayRange(from, to, loc)
}
