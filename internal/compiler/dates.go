package compiler

import (
	"time"

	"github.com/rebelice/kioskquery/internal/models"
)

// resolvePreset computes the concrete [start, end] pair a date preset
// denotes relative to now. Weeks start on Monday.
func resolvePreset(preset models.DatePreset, now time.Time) (time.Time, time.Time, bool) {
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch preset {
	case models.PresetToday:
		return dayStart, dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond), true
	case models.PresetWeek:
		offset := (int(now.Weekday()) + 6) % 7
		weekStart := dayStart.AddDate(0, 0, -offset)
		return weekStart, weekStart.AddDate(0, 0, 7).Add(-time.Nanosecond), true
	case models.PresetMonth:
		monthStart := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return monthStart, monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond), true
	case models.PresetYear:
		yearStart := time.Date(y, 1, 1, 0, 0, 0, 0, now.Location())
		return yearStart, yearStart.AddDate(1, 0, 0).Add(-time.Nanosecond), true
	default:
		return time.Time{}, time.Time{}, false
	}
}
