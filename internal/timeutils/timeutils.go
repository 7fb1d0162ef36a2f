// Package timeutils converts the date-like values accepted at the edges of the
// toolkit (strings, YYYYMMDD integers, Unix timestamps) into calendar days and
// renders days back into file names.
package timeutils

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// BusinessTimezone is the zone "today" is evaluated in.
	BusinessTimezone = "Asia/Shanghai"

	// DefaultStart is used when a range has no lower bound.
	DefaultStart = "2010-01-01"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidRange = errors.New("start date is after end date")
)

var layouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"20060102 15:04:05",
}

// BusinessLocation returns the business timezone. The zone has no DST, so a
// fixed +08:00 offset stands in when tzdata is unavailable.
func BusinessLocation() *time.Location {
	loc, err := time.LoadLocation(BusinessTimezone)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Today returns midnight of the current day in loc.
func Today(loc *time.Location) time.Time {
	return Day(time.Now().In(loc), loc)
}

// Day truncates t to midnight, keeping its wall-clock date, in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Parse converts a date-like value into a calendar day in loc.
//
// Integers in [19000101, 99991231] that form a valid date are read as
// YYYYMMDD; any other integer, and any float, is a Unix timestamp in seconds.
func Parse(v any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = BusinessLocation()
	}

	switch val := v.(type) {
	case time.Time:
		return Day(val, loc), nil
	case *time.Time:
		if val == nil {
			return time.Time{}, fmt.Errorf("%w: nil time", ErrInvalidDate)
		}
		return Day(*val, loc), nil
	case string:
		return ParseString(val, loc)
	case int:
		return parseInt(int64(val), loc)
	case int32:
		return parseInt(int64(val), loc)
	case int64:
		return parseInt(val, loc)
	case uint32:
		return parseInt(int64(val), loc)
	case float64:
		// JSON numbers decode as float64; whole values follow the int rules.
		if val == math.Trunc(val) {
			return parseInt(int64(val), loc)
		}
		sec := int64(val)
		nsec := int64((val - float64(sec)) * 1e9)
		return Day(time.Unix(sec, nsec).In(loc), loc), nil
	case float32:
		return Parse(float64(val), loc)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, v)
	}
}

// ParseString parses the string forms accepted on the command line and API.
func ParseString(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = BusinessLocation()
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidDate)
	}
	if strings.EqualFold(s, "today") {
		return Today(loc), nil
	}

	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return parseInt(n, loc)
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Day(t, loc), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func parseInt(n int64, loc *time.Location) (time.Time, error) {
	if n >= 19000101 && n <= 99991231 {
		y, m, d := int(n/10000), time.Month((n/100)%100), int(n%100)
		t := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if t.Year() != y || t.Month() != m || t.Day() != d {
			return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDate, n)
		}
		return t, nil
	}
	if n < 0 {
		return time.Time{}, fmt.Errorf("%w: negative timestamp %d", ErrInvalidDate, n)
	}
	return Day(time.Unix(n, 0).In(loc), loc), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Range returns every day in [start, end] inclusive.
func Range(start, end time.Time) ([]time.Time, error) {
	start = Day(start, start.Location())
	end = Day(end, start.Location())

	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	days := Diff(start, end) + 1
	dates := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return dates, nil
}

// Diff returns the number of calendar days from start to end.
func Diff(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}
