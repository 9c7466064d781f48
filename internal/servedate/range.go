package servedate

// InRange reports whether start <= key <= end. Both bounds are inclusive.
// Plain string comparison is correct because Key order is chronological.
func InRange(start, end, key Key) bool {
	return start <= key && key <= end
}

// Range is the inclusive span of days covered by one fetch.
type Range struct {
	Start Key `json:"start"`
	End   Key `json:"end"`
}

// Contains reports whether k falls inside r.
func (r Range) Contains(k Key) bool {
	return InRange(r.Start, r.End, k)
}
