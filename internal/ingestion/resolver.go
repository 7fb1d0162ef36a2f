package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeovahfialho/lntools/internal/timeutils"
)

// DatePlaceholder is replaced by the rendered date in a file pattern.
const DatePlaceholder = "{date}"

// Candidate is a file the resolver expects for a date. It may not exist.
type Candidate struct {
	Date time.Time `json:"date"`
	Path string    `json:"path"`
}

// Selector picks the dates to resolve.
//
// A nil Start defaults to 2010-01-01 and a nil End to today in the business
// timezone. A non-nil Dates slice is an explicit trading calendar: it is
// intersected with whichever bounds were given, and an empty one selects
// nothing. Calendar generates dates when Dates is nil; nil means every day.
type Selector struct {
	Start    *time.Time
	End      *time.Time
	Dates    []time.Time
	Calendar timeutils.Calendar
	Location *time.Location
}

func (s Selector) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return timeutils.BusinessLocation()
}

// Resolve renders one candidate path per selected date, ascending by date.
func Resolve(dir, pattern, dateFormat string, sel Selector) ([]Candidate, error) {
	absDir, err := checkDirectory(dir)
	if err != nil {
		return nil, err
	}

	if err := checkPattern(pattern); err != nil {
		return nil, err
	}

	format, err := timeutils.Compile(dateFormat)
	if err != nil {
		return nil, &ConfigurationError{Field: "date_format", Reason: dateFormat, Err: err}
	}

	dates, err := selectDates(sel)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(dates))
	seen := make(map[string]bool, len(dates))

	for _, date := range dates {
		rendered := format.FormatString(date)
		path := filepath.Join(absDir, strings.Replace(pattern, DatePlaceholder, rendered, 1))

		// Coarse formats (%Y%m) map several days onto one file; keep the earliest.
		if seen[path] {
			continue
		}
		seen[path] = true

		candidates = append(candidates, Candidate{Date: date, Path: path})
	}

	return candidates, nil
}

func selectDates(sel Selector) ([]time.Time, error) {
	loc := sel.location()

	var start, end *time.Time
	if sel.Start != nil {
		s := timeutils.Day(*sel.Start, loc)
		start = &s
	}
	if sel.End != nil {
		e := timeutils.Day(*sel.End, loc)
		end = &e
	}

	if sel.Dates != nil {
		if start != nil && end != nil && start.After(*end) {
			return nil, rangeError(*start, *end)
		}

		var dates []time.Time
		for _, d := range timeutils.Normalize(sel.Dates, loc) {
			if start != nil && d.Before(*start) {
				continue
			}
			if end != nil && d.After(*end) {
				continue
			}
			dates = append(dates, d)
		}
		return dates, nil
	}

	if start == nil {
		s, _ := timeutils.ParseString(timeutils.DefaultStart, loc)
		start = &s
	}
	if end == nil {
		e := timeutils.Today(loc)
		end = &e
	}
	if start.After(*end) {
		return nil, rangeError(*start, *end)
	}

	cal := sel.Calendar
	if cal == nil {
		cal = timeutils.DailyCalendar{}
	}
	return timeutils.Normalize(cal.Dates(*start, *end), loc), nil
}

func rangeError(start, end time.Time) error {
	return &ConfigurationError{
		Field:  "range",
		Reason: fmt.Sprintf("start %s is after end %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		Err:    timeutils.ErrInvalidRange,
	}
}

func checkDirectory(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotADirectory, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory %s: %w", dir, err)
	}
	return abs, nil
}

func checkPattern(pattern string) error {
	switch n := strings.Count(pattern, DatePlaceholder); {
	case n == 0:
		return &ConfigurationError{Field: "file_pattern", Reason: fmt.Sprintf("%q has no %s placeholder", pattern, DatePlaceholder)}
	case n > 1:
		return &ConfigurationError{Field: "file_pattern", Reason: fmt.Sprintf("%q has %d %s placeholders", pattern, n, DatePlaceholder)}
	}

	if filepath.IsAbs(pattern) {
		return &ConfigurationError{Field: "file_pattern", Reason: "pattern must be relative to the directory"}
	}
	return nil
}

// ListFiles returns every regular file in dir whose name fits the literal
// prefix and suffix around the placeholder, sorted by name. Candidates from
// a listing carry no date.
func ListFiles(dir, pattern string) ([]Candidate, error) {
	absDir, err := checkDirectory(dir)
	if err != nil {
		return nil, err
	}
	if err := checkPattern(pattern); err != nil {
		return nil, err
	}

	prefix, suffix, _ := strings.Cut(pattern, DatePlaceholder)

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %w", absDir, err)
	}

	var candidates []Candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) < len(prefix)+len(suffix) || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		candidates = append(candidates, Candidate{Path: filepath.Join(absDir, name)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, nil
}
