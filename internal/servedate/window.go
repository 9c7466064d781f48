package servedate

import "time"

// Window lengths used by the ordering and browsing views.
const (
	DefaultWindowDays  = 7
	ExtendedWindowDays = 10
)

// Window is an ordered run of consecutive business days with no gaps or duplicates.
type Window []Key

// BuildWindow returns n consecutive business days starting at the business
// day that contains anchor. It depends only on its arguments.
func BuildWindow(anchor time.Time, n int) Window {
	if n <= 0 {
		return nil
	}
	start := DayStart(anchor)
	w := make(Window, n)
	for i := range w {
		w[i] = KeyOf(start.AddDate(0, 0, i))
	}
	return w
}

// BuildWindowFrom is BuildWindow anchored at an existing key.
func BuildWindowFrom(start Key, n int) (Window, error) {
	t, err := start.parse()
	if err != nil {
		return nil, err
	}
	return BuildWindow(t, n), nil
}

// Start returns the first day, or "" for an empty window.
func (w Window) Start() Key {
	if len(w) == 0 {
		return ""
	}
	return w[0]
}

// End returns the last day, or "" for an empty window.
func (w Window) End() Key {
	if len(w) == 0 {
		return ""
	}
	return w[len(w)-1]
}

// Range returns the inclusive bounds of w.
func (w Window) Range() Range {
	return Range{Start: w.Start(), End: w.End()}
}

// Contains reports whether k lies within the window bounds.
func (w Window) Contains(k Key) bool {
	if len(w) == 0 {
		return false
	}
	return InRange(w.Start(), w.End(), k)
}

// Snap returns k when it lies in the window and the window start otherwise.
// A selection that drifts out of range always lands on the first day.
func (w Window) Snap(k Key) Key {
	if w.Contains(k) {
		return k
	}
	return w.Start()
}

// Strings returns the keys as plain strings.
func (w Window) Strings() []string {
	out := make([]string, len(w))
	for i, k := range w {
		out[i] = string(k)
	}
	return out
}
