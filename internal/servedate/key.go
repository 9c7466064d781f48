// Package servedate maps instants onto the business calendar. Every day
// boundary is taken in the fixed UTC+9 business timezone, never in the
// caller's local zone.
package servedate

import (
	"regexp"
	"time"

	"servedate/internal/clock"
)

// Layout is the lexical form of a Key.
const Layout = "2006-01-02"

// Location is the business timezone. It is a fixed offset: no DST is ever applied.
var Location = time.FixedZone("Asia/Tokyo", 9*60*60)

var dateOnlyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Key identifies one business day as YYYY-MM-DD. Lexical order of two keys
// equals chronological order of the days they denote.
type Key string

// KeyOf returns the business day containing t.
func KeyOf(t time.Time) Key {
	return Key(t.In(Location).Format(Layout))
}

// Today returns the business day containing c.Now().
func Today(c clock.Clock) Key {
	return KeyOf(c.Now())
}

// DayStart returns midnight of the business day containing t, in Location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

func (k Key) String() string { return string(k) }

// Valid reports whether k is a well-formed, existing calendar date.
func (k Key) Valid() bool {
	_, err := k.parse()
	return err == nil
}

// Time returns the business-local midnight of k, or the zero time if k is invalid.
func (k Key) Time() time.Time {
	t, err := k.parse()
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the key n calendar days after k (n may be negative).
// An invalid k is returned unchanged.
func (k Key) AddDays(n int) Key {
	t, err := k.parse()
	if err != nil {
		return k
	}
	return KeyOf(t.AddDate(0, 0, n))
}

func (k Key) parse() (time.Time, error) {
	if !dateOnlyPattern.MatchString(string(k)) {
		return time.Time{}, parseError(string(k), nil)
	}
	t, err := time.ParseInLocation(Layout, string(k), Location)
	if err != nil {
		return time.Time{}, parseError(string(k), err)
	}
	return t, nil
}
