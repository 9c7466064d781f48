package slots

import (
	"fmt"
	"strings"
)

// Band distinguishes regular lunch slots from the afternoon cafe band.
type Band string

const (
	BandRegular Band = "regular"
	BandCafe    Band = "cafe"
)

// Schedule describes the fixed slot grid of a business day.
type Schedule struct {
	Open         string // "11:30"
	Close        string // "14:00"
	CafeClose    string // "18:15" (optional; cafe band runs Close..CafeClose)
	DailyCutoff  string // "18:14"
	SlotDuration int    // minutes
}

// DefaultSchedule returns the production grid.
func DefaultSchedule() Schedule {
	return Schedule{
		Open:         "11:30",
		Close:        "14:00",
		CafeClose:    "18:15",
		DailyCutoff:  "18:14",
		SlotDuration: 15,
	}
}

// grid is a validated, expanded Schedule.
type grid struct {
	regular []TimeSlot
	cafe    []TimeSlot
	cutoff  int
}

func (s Schedule) compile() (*grid, error) {
	if s.SlotDuration <= 0 {
		s.SlotDuration = 15
	}

	open, err := parseClock(s.Open)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	closeAt, err := parseClock(s.Close)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}
	if closeAt <= open {
		return nil, fmt.Errorf("close time %s must be after open time %s", s.Close, s.Open)
	}
	cutoff, err := parseClock(s.DailyCutoff)
	if err != nil {
		return nil, fmt.Errorf("parse daily cutoff: %w", err)
	}

	g := &grid{
		regular: generate(open, closeAt, s.SlotDuration),
		cutoff:  cutoff,
	}
	if len(g.regular) == 0 {
		return nil, fmt.Errorf("no %d-minute slot fits between %s and %s", s.SlotDuration, s.Open, s.Close)
	}

	if s.CafeClose != "" {
		cafeClose, err := parseClock(s.CafeClose)
		if err != nil {
			return nil, fmt.Errorf("parse cafe close time: %w", err)
		}
		if cafeClose < closeAt {
			return nil, fmt.Errorf("cafe close time %s must not be before close time %s", s.CafeClose, s.Close)
		}
		g.cafe = generate(closeAt, cafeClose, s.SlotDuration)
	}

	return g, nil
}

// generate lays consecutive slots from start while a whole slot still fits before end.
func generate(start, end, step int) []TimeSlot {
	var out []TimeSlot
	for cursor := start; cursor+step <= end; cursor += step {
		out = append(out, TimeSlot{Start: cursor, End: cursor + step})
	}
	return out
}

// lookup resolves "HH:MM" (a slot start) or "HH:MM～HH:MM" against the grid.
func (g *grid) lookup(value string) (TimeSlot, Band, bool) {
	value = strings.TrimSpace(value)

	var want TimeSlot
	exact := strings.ContainsAny(value, "~"+Separator)
	if exact {
		ts, err := ParseTimeSlot(value)
		if err != nil {
			return TimeSlot{}, "", false
		}
		want = ts
	} else {
		start, err := parseClock(value)
		if err != nil {
			return TimeSlot{}, "", false
		}
		want = TimeSlot{Start: start}
	}

	for _, band := range []struct {
		name  Band
		slots []TimeSlot
	}{{BandRegular, g.regular}, {BandCafe, g.cafe}} {
		for _, s := range band.slots {
			if s.Start != want.Start {
				continue
			}
			if exact && s.End != want.End {
				return TimeSlot{}, "", false
			}
			return s, band.name, true
		}
	}
	return TimeSlot{}, "", false
}
