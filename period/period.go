// Package period defines the calendar-month period type used to partition
// allocations, earnings, and payouts.
//
// A Period is a UTC calendar month in "YYYY-MM" form. All period math is
// done in UTC so that month boundaries are unambiguous regardless of where
// the process runs.
package period

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Layout is the canonical string form of a Period.
const Layout = "2006-01"

// Period is a calendar month in "YYYY-MM" form, always UTC.
type Period string

// Parse parses a "YYYY-MM" string into a Period.
func Parse(s string) (Period, error) {
	if s == "" {
		return "", fmt.Errorf("period: parse %q: empty string", s)
	}

	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("period: parse %q: %w", s, err)
	}

	return FromTime(t), nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return p
}

// FromTime returns the Period containing t, evaluated in UTC.
func FromTime(t time.Time) Period {
	return Period(t.UTC().Format(Layout))
}

// Current returns the Period containing the current instant.
func Current() Period {
	return FromTime(time.Now())
}

// String returns the "YYYY-MM" form.
func (p Period) String() string { return string(p) }

// IsZero reports whether p is the empty period.
func (p Period) IsZero() bool { return p == "" }

// Validate returns an error if p is not a well-formed "YYYY-MM" period.
func (p Period) Validate() error {
	_, err := Parse(string(p))

	return err
}

// Start returns the first instant of the month, UTC.
func (p Period) Start() time.Time {
	t, err := time.Parse(Layout, string(p))
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}

// End returns the first instant of the following month, UTC.
// The period covers [Start, End).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	return FromTime(p.Start().AddDate(0, 1, 0))
}

// Prev returns the preceding calendar month.
func (p Period) Prev() Period {
	return FromTime(p.Start().AddDate(0, -1, 0))
}

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	u := t.UTC()

	return !u.Before(p.Start()) && u.Before(p.End())
}

// Before reports whether p is chronologically before other.
// Lexicographic comparison is correct for the "YYYY-MM" layout.
func (p Period) Before(other Period) bool { return p < other }

// After reports whether p is chronologically after other.
func (p Period) After(other Period) bool { return p > other }

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*p = ""

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
func (p Period) Value() (driver.Value, error) {
	if p == "" {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return string(p), nil
}

// Scan implements sql.Scanner for database retrieval.
func (p *Period) Scan(src any) error {
	if src == nil {
		*p = ""

		return nil
	}

	switch v := src.(type) {
	case string:
		*p = Period(v)

		return nil
	case []byte:
		*p = Period(v)

		return nil
	default:
		return fmt.Errorf("period: cannot scan %T into Period", src)
	}
}
