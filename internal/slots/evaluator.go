package slots

import (
	"time"

	"servedate/internal/clock"
	"servedate/internal/servedate"
)

// Reasons a slot is disabled.
const (
	ReasonDailyCutoff = "cafe_time_closed"
	ReasonExpired     = "expired"
)

// SlotInfo is a slot annotated for display. Every slot is returned; unavailable
// ones carry Disabled and a Reason instead of being filtered out.
type SlotInfo struct {
	Value    string `json:"value"` // "11:30～11:45"
	Start    string `json:"start"` // "11:30"
	End      string `json:"end"`   // "11:45"
	Band     Band   `json:"band"`
	Disabled bool   `json:"disabled"`
	Reason   string `json:"reason,omitempty"`
}

// Evaluator decides slot availability against the business-local clock.
type Evaluator struct {
	clock clock.Clock
	grid  *grid
}

// NewEvaluator validates schedule and binds it to c. Pass the authoritative
// clock.Source so that every comparison uses server time once it is known.
func NewEvaluator(c clock.Clock, schedule Schedule) (*Evaluator, error) {
	g, err := schedule.compile()
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.System{}
	}
	return &Evaluator{clock: c, grid: g}, nil
}

func (e *Evaluator) now() time.Time {
	return e.clock.Now().In(servedate.Location)
}

// Today returns the current business day.
func (e *Evaluator) Today() servedate.Key {
	return servedate.KeyOf(e.now())
}

// CutoffAt returns today's hard cutoff instant.
func (e *Evaluator) CutoffAt() time.Time {
	return e.cutoffOn(e.now())
}

func (e *Evaluator) cutoffOn(now time.Time) time.Time {
	return servedate.DayStart(now).Add(time.Duration(e.grid.cutoff) * time.Minute)
}

// IsDailyCutoffExpired reports whether the business-local clock has reached
// today's cutoff. Past it no slot for any day may be selected; callers check
// this before any per-slot expiry.
func (e *Evaluator) IsDailyCutoffExpired() bool {
	now := e.now()
	return !now.Before(e.cutoffOn(now))
}

// IsSlotExpired reports whether slot has already opened today. An empty target
// means today. Slots on any other day are never expired here.
func (e *Evaluator) IsSlotExpired(slot TimeSlot, target servedate.Key) bool {
	now := e.now()
	today := servedate.KeyOf(now)
	if target == "" {
		target = today
	}
	if target != today {
		return false
	}
	return !now.Before(slot.StartOn(today))
}

// Lookup resolves a requested time ("12:30" or "12:30～12:45") to a slot of the grid.
func (e *Evaluator) Lookup(value string) (TimeSlot, Band, bool) {
	return e.grid.lookup(value)
}

// Regular returns the fixed ascending list of regular slots.
func (e *Evaluator) Regular() []TimeSlot {
	return append([]TimeSlot(nil), e.grid.regular...)
}

// Cafe returns the afternoon cafe band, possibly empty.
func (e *Evaluator) Cafe() []TimeSlot {
	return append([]TimeSlot(nil), e.grid.cafe...)
}

// Slots returns the regular slots for target, each with its availability.
func (e *Evaluator) Slots(target servedate.Key) []SlotInfo {
	return e.annotate(e.grid.regular, BandRegular, target)
}

// CafeSlots returns the cafe band for target, each with its availability.
func (e *Evaluator) CafeSlots(target servedate.Key) []SlotInfo {
	return e.annotate(e.grid.cafe, BandCafe, target)
}

func (e *Evaluator) annotate(list []TimeSlot, band Band, target servedate.Key) []SlotInfo {
	closed := e.IsDailyCutoffExpired()

	result := make([]SlotInfo, len(list))
	for i, s := range list {
		info := SlotInfo{
			Value: s.String(),
			Start: s.StartLabel(),
			End:   s.EndLabel(),
			Band:  band,
		}
		switch {
		case closed:
			info.Disabled = true
			info.Reason = ReasonDailyCutoff
		case e.IsSlotExpired(s, target):
			info.Disabled = true
			info.Reason = ReasonExpired
		}
		result[i] = info
	}
	return result
}

// Available returns only the enabled entries of infos.
func Available(infos []SlotInfo) []SlotInfo {
	var out []SlotInfo
	for _, s := range infos {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}
