package engine

import "time"

// Regular session bounds in UTC (13:30-20:00, i.e. 9:30-16:00 US/Eastern
// without DST adjustment; good enough for the after-hours policy gate).
const (
	sessionOpenMinute  = 13*60 + 30
	sessionCloseMinute = 20 * 60
)

// MarketOpen reports whether t falls inside the regular trading session.
// Weekends are always closed. Positions whose order policy allows after-hours
// trading never consult this.
func MarketOpen(t time.Time) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= sessionOpenMinute && minute < sessionCloseMinute
}
