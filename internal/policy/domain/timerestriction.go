package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DayStart is assumed when a blocked range omits its start.
	DayStart = "00:00"
	// DayEnd is assumed when a blocked range omits its end.
	DayEnd = "23:59"
)

// TimeRange is an inclusive "HH:MM" window within a single day.
type TimeRange struct {
	Start string `json:"start" koanf:"start"`
	End   string `json:"end" koanf:"end"`
}

// DayRestriction lists the blocked windows for one weekday.
type DayRestriction struct {
	BlockedHours []TimeRange `json:"blocked_hours" koanf:"blocked_hours"`
}

// TimeRestrictions maps a lower-case English weekday name ("monday") to its blocked windows.
type TimeRestrictions map[string]DayRestriction

// DayKey returns the lower-case weekday name used as a TimeRestrictions key.
func DayKey(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

// bounds resolves a range's start and end, filling the day defaults.
func (r TimeRange) bounds() (string, string) {
	start, end := r.Start, r.End
	if start == "" {
		start = DayStart
	}
	if end == "" {
		end = DayEnd
	}
	return start, end
}

// Contains reports whether hhmm falls inside the range, inclusive on both ends.
//
// Comparison is lexicographic on zero-padded "HH:MM" strings. A range whose
// start is after its end (one that wraps past midnight) never matches.
func (r TimeRange) Contains(hhmm string) bool {
	start, end := r.bounds()
	return start <= hhmm && hhmm <= end
}

// Wraps reports whether the range crosses midnight and therefore never matches.
func (r TimeRange) Wraps() bool {
	start, end := r.bounds()
	return start > end
}

// Validate checks both ends are well-formed 24h "HH:MM" values.
func (r TimeRange) Validate() error {
	start, end := r.bounds()
	for _, v := range []string{start, end} {
		if _, err := time.Parse("15:04", v); err != nil || len(v) != 5 {
			return fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidInput, v)
		}
	}
	return nil
}

// IsRestrictedAt reports whether any blocked window for now's weekday contains now's HH:MM.
func (tr TimeRestrictions) IsRestrictedAt(now time.Time) bool {
	day, ok := tr[DayKey(now)]
	if !ok {
		return false
	}
	hhmm := now.Format("15:04")
	for _, r := range day.BlockedHours {
		if r.Contains(hhmm) {
			return true
		}
	}
	return false
}

// Validate checks day names and every range.
func (tr TimeRestrictions) Validate() error {
	for day, d := range tr {
		if !validDay(day) {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, day)
		}
		for _, r := range d.BlockedHours {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%s: %w", day, err)
			}
		}
	}
	return nil
}

func validDay(day string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == day {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (tr TimeRestrictions) Clone() TimeRestrictions {
	if tr == nil {
		return nil
	}
	out := make(TimeRestrictions, len(tr))
	for day, d := range tr {
		hours := make([]TimeRange, len(d.BlockedHours))
		copy(hours, d.BlockedHours)
		out[day] = DayRestriction{BlockedHours: hours}
	}
	return out
}
