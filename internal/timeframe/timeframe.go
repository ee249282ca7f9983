// Package timeframe decides whether a work session started inside the current
// business day. A business day runs from 04:00 local time to 04:00 the next day.
package timeframe

import "time"

// ResetHour is the local hour at which one business day ends and the next begins
const ResetHour = 4

// EffectiveWindowStart returns the start of the business day containing now,
// evaluated in now's location.
func EffectiveWindowStart(now time.Time) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), ResetHour, 0, 0, 0, now.Location())
	if now.Before(boundary) {
		return boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// IsSessionValid reports whether lastStart falls inside the business day
// containing now. A start exactly on the boundary is valid.
func IsSessionValid(lastStart, now time.Time) bool {
	return !lastStart.Before(EffectiveWindowStart(now))
}

// NextReset returns the first boundary strictly after now
func NextReset(now time.Time) time.Time {
	return EffectiveWindowStart(now).AddDate(0, 0, 1)
}
