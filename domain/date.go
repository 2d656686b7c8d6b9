package domain

import (
	"strings"
	"time"

	"secret-santa/errors"
)

// DateLayout is the day.month.year format users type.
const DateLayout = "02.01.2006"

// ParseGiftDate reads a calendar date typed as DD.MM.YYYY.
// The result is midnight UTC so that dates compare as calendar days.
func ParseGiftDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, errors.ErrInvalidDate
	}
	return d, nil
}

// CalendarDay truncates t to its calendar date, as seen in t's own location.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePassed reports whether the exchange day is today or earlier.
func DatePassed(giftDate, now time.Time) bool {
	return !CalendarDay(now).Before(CalendarDay(giftDate))
}

// FormatDate renders a gift date the way users typed it.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
