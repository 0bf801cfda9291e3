package habits

import (
	"fmt"
	"time"
)

// DayLayout is the canonical string form of a Day, also used as the key format of DailyTasks.
const DayLayout = "2006-01-02"

// Day is a calendar date without time of day or zone. Days are ordered
// chronologically and are safe to use as map keys. The zero value means "no date".
type Day struct {
	t time.Time
}

// NewDay returns the given calendar date.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar date of t as observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if t.IsZero() {
		return Day{}
	}
	if loc != nil {
		t = t.In(loc)
	}
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return NewDay(t.Year(), t.Month(), t.Day()), nil
}

// MustParseDay is ParseDay for literals; it panics on malformed input.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DayLayout)
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return d.t }

func (d Day) Weekday() time.Weekday { return d.t.Weekday() }

func (d Day) AddDays(n int) Day {
	if d.IsZero() {
		return d
	}
	return NewDay(d.t.Year(), d.t.Month(), d.t.Day()+n)
}

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }

// Compare returns -1, 0 or +1.
func (d Day) Compare(o Day) int {
	switch {
	case d.Before(o):
		return -1
	case d.After(o):
		return 1
	default:
		return 0
	}
}

// DaysBetween returns the number of calendar days from a to b (negative if b is earlier).
func DaysBetween(a, b Day) int {
	return int(b.t.Sub(a.t).Hours() / 24)
}

// MaxDay and MinDay return the later and earlier of two days. Zero days lose.
func MaxDay(a, b Day) Day {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.After(b) {
		return a
	}
	return b
}

func MinDay(a, b Day) Day {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}

// StartOfISOWeek returns the Monday on or before d.
func (d Day) StartOfISOWeek() Day {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func (d Day) StartOfMonth() Day {
	return NewDay(d.t.Year(), d.t.Month(), 1)
}

func (d Day) EndOfMonth() Day {
	return NewDay(d.t.Year(), d.t.Month()+1, 0)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DayRange is an inclusive range of calendar days.
type DayRange struct {
	Start Day `json:"start"`
	End   Day `json:"end"`
}

// Window returns the trailing range of n days ending at (and including) end.
func Window(end Day, n int) DayRange {
	if n < 1 {
		n = 1
	}
	return DayRange{Start: end.AddDays(-(n - 1)), End: end}
}

func (r DayRange) IsEmpty() bool {
	return r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start)
}

// Len is the number of days in the range, 0 when empty.
func (r DayRange) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

func (r DayRange) Contains(d Day) bool {
	return !r.IsEmpty() && !d.Before(r.Start) && !d.After(r.End)
}

// Clip narrows the range to [max(Start, lo), min(End, hi)]. Zero bounds are ignored.
func (r DayRange) Clip(lo, hi Day) DayRange {
	out := r
	if !lo.IsZero() && lo.After(out.Start) {
		out.Start = lo
	}
	if !hi.IsZero() && hi.Before(out.End) {
		out.End = hi
	}
	return out
}

// Days lists every day in the range in ascending order.
func (r DayRange) Days() []Day {
	n := r.Len()
	out := make([]Day, 0, n)
	for d := r.Start; n > 0; n-- {
		out = append(out, d)
		d = d.AddDays(1)
	}
	return out
}

func (r DayRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start, r.End)
}
