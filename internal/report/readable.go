package report

import (
	"fmt"
	"time"
)

var indonesianWeekdays = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// ReadableDate renders t in loc as an Indonesian long date, e.g. "Senin, 19 Oktober 2026 04.00"
func ReadableDate(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%s, %d %s %d %02d.%02d",
		indonesianWeekdays[t.Weekday()],
		t.Day(),
		indonesianMonths[t.Month()-1],
		t.Year(),
		t.Hour(),
		t.Minute(),
	)
}
