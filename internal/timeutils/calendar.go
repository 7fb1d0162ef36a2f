package timeutils

import (
	"sort"
	"time"
)

// Calendar generates the valid dates inside [start, end].
type Calendar interface {
	Dates(start, end time.Time) []time.Time
}

// DailyCalendar yields every day of the range.
type DailyCalendar struct{}

func (DailyCalendar) Dates(start, end time.Time) []time.Time {
	dates, err := Range(start, end)
	if err != nil {
		return nil
	}
	return dates
}

// BusinessCalendar yields weekdays that are not holidays.
type BusinessCalendar struct {
	holidays map[string]bool
}

func NewBusinessCalendar(holidays ...time.Time) *BusinessCalendar {
	c := &BusinessCalendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format("2006-01-02")] = true
	}
	return c
}

func (c *BusinessCalendar) IsBusinessDay(date time.Time) bool {
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[date.Format("2006-01-02")]
}

func (c *BusinessCalendar) Dates(start, end time.Time) []time.Time {
	var dates []time.Time
	for _, d := range (DailyCalendar{}).Dates(start, end) {
		if c.IsBusinessDay(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// Normalize sorts dates ascending and drops repeated days.
func Normalize(dates []time.Time, loc *time.Location) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, Day(d, loc))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	uniq := out[:0]
	for i, d := range out {
		if i > 0 && d.Equal(uniq[len(uniq)-1]) {
			continue
		}
		uniq = append(uniq, d)
	}
	return uniq
}
