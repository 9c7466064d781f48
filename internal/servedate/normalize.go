package servedate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrParse is returned when an input cannot be read as an instant or a date-only key.
var ErrParse = errors.New("servedate: cannot parse input")

// epochMillisThreshold separates epoch seconds from epoch milliseconds for numeric input.
const epochMillisThreshold = 1e12

// Epoch milliseconds bounding the instants whose business day fits in a Key
// (years 0000 through 9999).
var (
	minEpochMillis = time.Date(0, 1, 1, 0, 0, 0, 0, Location).UnixMilli()
	maxEpochMillis = time.Date(10000, 1, 1, 0, 0, 0, 0, Location).UnixMilli() - 1
)

// timestampLayouts are tried in order for strings that are neither
// date-only nor epoch digits. Layouts without a zone are read as business-local.
var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
	{time.RFC1123Z, true},
	{time.RFC1123, true},
}

func parseError(input string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %q: %v", ErrParse, input, cause)
	}
	return fmt.Errorf("%w: %q", ErrParse, input)
}

// ToKey converts input to the business day it denotes.
//
// A well-formed YYYY-MM-DD string (or Key) is returned as-is: it is already a
// business-local date and is never shifted through a timezone. Everything else
// goes through ParseInstant and is projected into Location.
func ToKey(input any) (Key, error) {
	switch v := input.(type) {
	case Key:
		return dateOnly(string(v))
	case string:
		s := strings.TrimSpace(v)
		if dateOnlyPattern.MatchString(s) {
			return dateOnly(s)
		}
	}

	t, err := ParseInstant(input)
	if err != nil {
		return "", err
	}
	k := KeyOf(t)
	if !k.Valid() {
		return "", parseError(fmt.Sprintf("%v", input), fmt.Errorf("day %q out of range", k))
	}
	return k, nil
}

func dateOnly(s string) (Key, error) {
	k := Key(s)
	if _, err := k.parse(); err != nil {
		return "", err
	}
	return k, nil
}

// ParseInstant converts input to an absolute instant.
//
// Accepted inputs: time.Time, *time.Time, int, int64, float64 (epoch seconds
// below 1e12, epoch milliseconds otherwise), and strings: exactly 10 digits are
// epoch seconds, exactly 13 digits epoch milliseconds, YYYY-MM-DD is
// business-local midnight, anything else must match a known timestamp layout.
func ParseInstant(input any) (time.Time, error) {
	switch v := input.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, parseError("zero time", nil)
		}
		return v, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, parseError("nil time", nil)
		}
		return *v, nil
	case int:
		return fromEpochNumber(float64(v))
	case int64:
		return fromEpochNumber(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, parseError(strconv.FormatFloat(v, 'g', -1, 64), nil)
		}
		return fromEpochNumber(v)
	case Key:
		return v.parse()
	case string:
		return parseInstantString(strings.TrimSpace(v))
	case nil:
		return time.Time{}, parseError("nil", nil)
	default:
		return time.Time{}, parseError(fmt.Sprintf("%v", v), fmt.Errorf("unsupported type %T", v))
	}
}

func fromEpochNumber(n float64) (time.Time, error) {
	ms := n
	if math.Abs(n) < epochMillisThreshold {
		ms = math.Round(n * 1000)
	}
	if ms < float64(minEpochMillis) || ms > float64(maxEpochMillis) {
		return time.Time{}, parseError(strconv.FormatFloat(n, 'g', -1, 64), errors.New("epoch out of range"))
	}
	return time.UnixMilli(int64(ms)), nil
}

func parseInstantString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, parseError(s, nil)
	}

	if isDigits(s) {
		switch len(s) {
		case 10:
			sec, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, parseError(s, err)
			}
			return time.Unix(sec, 0), nil
		case 13:
			ms, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, parseError(s, err)
			}
			return time.UnixMilli(ms), nil
		}
	}

	if dateOnlyPattern.MatchString(s) {
		return Key(s).parse()
	}

	for _, l := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, Location)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, parseError(s, nil)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
