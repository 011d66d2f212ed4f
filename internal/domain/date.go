package domain

import (
	"fmt"
	"time"
)

// DateFormat is the ISO-8601 day format used everywhere dates cross a
// boundary (JSON, SQL, query parameters).
const DateFormat = "2006-01-02"

// Date is a calendar day with no clock. Prices, fx rates and history points
// are keyed by Date; transactions carry a full timestamp and collapse to a
// Date when they meet the market data.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date (out-of-range day/month values roll over,
// same as time.Date).
func NewDate(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.UTC().Date())
}

// Today returns the current UTC day.
func Today() Date { return DateOf(time.Now()) }

// ParseDate parses an ISO-8601 day ("2025-03-01").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want %s): %w", s, DateFormat, err)
	}
	return NewDate(t.Date()), nil
}

// Time returns midnight UTC of the day, the canonical instant used for
// ordering.
func (d Date) Time() time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC)
}

func (d Date) Year() int        { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int         { return d.d }

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Before(x Date) bool { return d.Time().Before(x.Time()) }
func (d Date) After(x Date) bool  { return d.Time().After(x.Time()) }
func (d Date) Equal(x Date) bool  { return d == x }

// AddDays returns the day n days after d (n may be negative).
func (d Date) AddDays(n int) Date { return NewDate(d.y, d.m, d.d+n) }

func (d Date) String() string { return d.Time().Format(DateFormat) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
