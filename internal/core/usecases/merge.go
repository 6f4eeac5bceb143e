package usecases

import (
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// MergeLatestHistory keeps only the newest trip of cur. When cur parsed no
// rows, the previous trip, kcal box and period bounds are carried forward.
func MergeLatestHistory(cur, prev domain.UsagePeriod) domain.UsagePeriod {
	out := cur
	switch {
	case len(cur.History) > 0:
		latest := cur.History[0]
		out.History = []domain.HistoryEntry{latest}
		out.Last = &latest
	case len(prev.History) > 0:
		latest := prev.History[0]
		out.History = []domain.HistoryEntry{latest}
		out.Last = &latest
	default:
		out.History = []domain.HistoryEntry{}
		out.Last = prev.Last
	}
	if len(out.Kcal) == 0 && len(prev.Kcal) > 0 {
		out.Kcal = prev.Kcal
	}
	if out.PeriodStart == "" {
		out.PeriodStart = prev.PeriodStart
	}
	if out.PeriodEnd == "" {
		out.PeriodEnd = prev.PeriodEnd
	}
	if out.MoveRoute == nil && out.Last != nil && prev.MoveRoute != nil &&
		prev.MoveRoute.Error == "" && prev.MoveRoute.HistoryID == out.Last.HistoryID {
		out.MoveRoute = prev.MoveRoute
	}
	return out
}

// DefaultPeriodRange is the window shown when the page carries no bounds:
// seven days for "1w", one calendar month otherwise.
func DefaultPeriodRange(period string, today time.Time) (start, end string) {
	var from time.Time
	if period == domain.PeriodWeek {
		from = today.AddDate(0, 0, -7)
	} else {
		from = subtractMonths(today, 1)
	}
	return from.Format("2006-01-02"), today.Format("2006-01-02")
}

// subtractMonths moves back whole months, clamping the day to the target
// month's length.
func subtractMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(d, last), 0, 0, 0, 0, t.Location())
}
