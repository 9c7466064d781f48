package slots

import (
	"fmt"
	"strings"
	"time"

	"servedate/internal/servedate"
)

// Separator joins the start and end of a slot label ("11:30～11:45").
const Separator = "～"

// TimeSlot is a half-open intraday interval [Start, End) in minutes after
// business-local midnight.
type TimeSlot struct {
	Start int
	End   int
}

// ParseTimeSlot parses "HH:MM～HH:MM". An ASCII "~" is accepted as well.
func ParseTimeSlot(s string) (TimeSlot, error) {
	s = strings.TrimSpace(s)
	s = strings.Replace(s, "~", Separator, 1)

	parts := strings.Split(s, Separator)
	if len(parts) != 2 {
		return TimeSlot{}, fmt.Errorf("invalid time slot: %q", s)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return TimeSlot{}, fmt.Errorf("parse slot start: %w", err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return TimeSlot{}, fmt.Errorf("parse slot end: %w", err)
	}
	if end <= start {
		return TimeSlot{}, fmt.Errorf("invalid time slot: %q ends before it starts", s)
	}

	return TimeSlot{Start: start, End: end}, nil
}

func (s TimeSlot) String() string {
	return formatClock(s.Start) + Separator + formatClock(s.End)
}

// StartLabel returns the start as "HH:MM".
func (s TimeSlot) StartLabel() string { return formatClock(s.Start) }

// EndLabel returns the end as "HH:MM".
func (s TimeSlot) EndLabel() string { return formatClock(s.End) }

// StartOn returns the instant the slot opens on the given business day.
// It returns the zero time when day is not a valid key.
func (s TimeSlot) StartOn(day servedate.Key) time.Time {
	midnight := day.Time()
	if midnight.IsZero() {
		return time.Time{}
	}
	return midnight.Add(time.Duration(s.Start) * time.Minute)
}

// Duration returns the slot length.
func (s TimeSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Overlaps reports whether the two half-open intervals share any minute.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start < o.End && o.Start < s.End
}
