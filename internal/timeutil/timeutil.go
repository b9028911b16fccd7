package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultZone is the zone used for day boundaries when none is configured.
const DefaultZone = "Asia/Kolkata"

const dayLayout = "2006-01-02"

var ErrInvalidDay = errors.New("invalid day")

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// LoadLocation resolves a zone name, falling back to DefaultZone when empty.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// TruncateToDay normalizes the timestamp to midnight in the provided zone.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Day is a calendar date with no time-of-day component. The zone it was
// resolved in is the caller's concern; two Days compare by date only.
type Day struct {
	Year  int
	Month time.Month
	Dom   int
}

// DayOf returns the calendar day t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	t = t.In(EnsureLocation(loc))
	return Day{Year: t.Year(), Month: t.Month(), Dom: t.Day()}
}

// ParseDay parses the YYYY-MM-DD form produced by Day.String.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Day{}, ErrInvalidDay
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %s", ErrInvalidDay, s)
	}
	return Day{Year: t.Year(), Month: t.Month(), Dom: t.Day()}, nil
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d == Day{} }

// String formats the day as YYYY-MM-DD. The zero Day formats as "".
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Dom)
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Dom < other.Dom
}

// Start returns midnight of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Dom, 0, 0, 0, 0, EnsureLocation(loc))
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	t := time.Date(d.Year, d.Month, d.Dom+1, 0, 0, 0, 0, time.UTC)
	return Day{Year: t.Year(), Month: t.Month(), Dom: t.Day()}
}

// Clock resolves calendar days in a pinned zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock builds a clock pinned to loc. A nil now uses time.Now.
func NewClock(loc *time.Location, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{loc: EnsureLocation(loc), now: now}
}

// Now returns the current instant in the pinned zone.
func (c *Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c.now().In(c.loc)
}

// Today returns the current calendar day in the pinned zone.
func (c *Clock) Today() Day {
	if c == nil {
		return DayOf(time.Now(), time.UTC)
	}
	return DayOf(c.now(), c.loc)
}

// NextMidnight returns the instant the current day ends.
func (c *Clock) NextMidnight() time.Time {
	return c.Today().Next().Start(c.Location())
}

// Location returns the pinned zone.
func (c *Clock) Location() *time.Location {
	if c == nil {
		return time.UTC
	}
	return c.loc
}
