package clock

import "time"

// Clock supplies the current time. Services take a Clock instead of calling
// time.Now directly so that date-sensitive rules (rate effectivity, same-day
// reconciliation windows) are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// DayBounds returns the inclusive start and exclusive end of the calendar day
// containing t, in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// WeekBounds returns the bounds of the calendar week containing t, with the
// week starting on Sunday.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	dayStart, _ := DayBounds(t)
	start := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
	return start, start.AddDate(0, 0, 7)
}

// MonthBounds returns the bounds of the calendar month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// SameDay reports whether a and b fall on the same calendar day in a's
// location.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
