// Package reminder computes wasooli (collection due) dates. It only decides
// the date; nothing here sends notifications.
package reminder

import (
	"errors"
	"fmt"
	"time"
)

type Preset string

const (
	NextWeek  Preset = "next_week"
	NextMonth Preset = "next_month"
	Custom    Preset = "custom"
	Clear     Preset = "clear"
)

var (
	ErrUnknownPreset = errors.New("unknown reminder preset")
	ErrMissingDate   = errors.New("custom reminder needs a date")
)

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Resolve turns a preset into a due date. A nil result with a nil error
// means the reminder is cleared.
func Resolve(p Preset, now time.Time, custom *time.Time, loc *time.Location) (*time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := StartOfDay(now, loc)

	var due time.Time
	switch p {
	case NextWeek:
		due = today.AddDate(0, 0, 7)
	case NextMonth:
		due = today.AddDate(0, 1, 0)
	case Custom:
		if custom == nil || custom.IsZero() {
			return nil, ErrMissingDate
		}
		due = StartOfDay(*custom, loc)
	case Clear:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, p)
	}
	return &due, nil
}

// DaysUntil counts calendar days from now to due in loc; negative when overdue.
func DaysUntil(now, due time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	a := StartOfDay(now, loc)
	b := StartOfDay(due, loc)
	// Compare as UTC dates so DST shifts do not leave a 23h or 25h day.
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

func Overdue(now, due time.Time, loc *time.Location) bool {
	return DaysUntil(now, due, loc) < 0
}

// Label describes a due date relative to now.
func Label(now, due time.Time, loc *time.Location) string {
	switch n := DaysUntil(now, due, loc); {
	case n == 0:
		return "due today"
	case n == 1:
		return "due tomorrow"
	case n > 1:
		return fmt.Sprintf("due in %d days", n)
	case n == -1:
		return "overdue by 1 day"
	default:
		return fmt.Sprintf("overdue by %d days", -n)
	}
}
