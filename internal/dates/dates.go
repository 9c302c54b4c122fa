// Package dates implements whole-day calendar arithmetic for rental periods.
//
// Dates are timezone-naive: only the year, month and day of a time.Time are
// used, anchored at UTC midnight so that every day is exactly 24 hours long.
package dates

import (
	"math"
	"strings"
	"time"

	"machrent/internal/clock"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
)

const day = 24 * time.Hour

// Midnight drops the time-of-day component of t.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current calendar date as seen by c.
func Today(c clock.Clock) time.Time {
	return Midnight(c.Now())
}

// DaysBetween counts whole days from start to end, rounding partial days up.
// It never returns a negative number: end before start yields 0 and callers
// must reject that case themselves.
func DaysBetween(start, end time.Time) int {
	diff := Midnight(end).Sub(Midnight(start))
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(float64(diff) / float64(day)))
}

// Before reports whether a's calendar date precedes b's.
func Before(a, b time.Time) bool {
	return Midnight(a).Before(Midnight(b))
}

func Equal(a, b time.Time) bool {
	return Midnight(a).Equal(Midnight(b))
}

func Parse(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.Newf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return Midnight(t).Format(models.DateLayout)
}

// ParseRange accepts "YYYY-MM-DD YYYY-MM-DD" or "YYYY-MM-DD..YYYY-MM-DD".
func ParseRange(s string) (time.Time, time.Time, error) {
	s = strings.ReplaceAll(s, "..", " ")
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, errors.Newf("expected two dates, got %d", len(parts))
	}
	start, err := Parse(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := Parse(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
