// Package timeslot holds the pure time-of-day interval primitives shared by
// the authoritative validator and the advisory conflict preview. It must stay
// free of project dependencies so both consumers use identical semantics.
package timeslot

import (
	"encoding/json"
	"fmt"
)

// MinutesPerDay bounds a minute-of-day value; ranges never cross midnight.
const MinutesPerDay = 24 * 60

// Minutes is a minute-of-day value (0 = 00:00, 1439 = 23:59).
type Minutes int

// Parse converts an "HH:MM" clock string into Minutes.
func Parse(raw string) (Minutes, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(raw, "%2d:%2d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("parse time %q: expected HH:MM", raw)
	}
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("parse time %q: expected HH:MM", raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("parse time %q: out of range", raw)
	}
	return Minutes(hour*60 + minute), nil
}

// String renders the value as "HH:MM".
func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Valid reports whether the value lies within a single day.
func (m Minutes) Valid() bool {
	return m >= 0 && m <= MinutesPerDay
}

// MarshalJSON encodes the value as an "HH:MM" string.
func (m Minutes) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts an "HH:MM" string.
func (m *Minutes) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) intersect. A range ending exactly when another begins does
// not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd Minutes) bool {
	return aStart < bEnd && bStart < aEnd
}

// ValidDay reports whether d is a usable ISO day of week (Monday=1).
func ValidDay(d int) bool {
	return d >= 1 && d <= 7
}

// ValidRange reports whether [start, end) is a non-empty range within a
// single day. Inverted and zero-length ranges are invalid.
func ValidRange(start, end Minutes) bool {
	return start.Valid() && end.Valid() && start < end
}
