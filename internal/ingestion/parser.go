package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/shopspring/decimal"
)

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
}

// Parser reads delimited text files with a header row. Column kinds are
// inferred from the cells, one column per worker.
type Parser struct {
	delimiter rune
	workers   int
	location  *time.Location
}

func NewParser(delimiter rune, workers int) *Parser {
	if delimiter == 0 {
		delimiter = ','
	}
	if workers < 1 {
		workers = 1
	}
	return &Parser{
		delimiter: delimiter,
		workers:   workers,
		location:  time.UTC,
	}
}

// WithLocation sets the zone for timestamps without an offset.
func (p *Parser) WithLocation(loc *time.Location) *Parser {
	if loc != nil {
		p.location = loc
	}
	return p
}

func (p *Parser) Read(ctx context.Context, path string) (*domain.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	frame, err := p.ParseFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return frame, nil
}

// ParseFile parses a whole document. Input without a header yields an
// empty frame; short rows are padded with nulls.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) (*domain.Frame, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comma = p.delimiter
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return domain.NewFrame(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(record) > len(header) {
			line, _ := csvReader.FieldPos(0)
			return nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), len(header))
		}
		records = append(records, record)
	}

	inf := inferrer{workers: p.workers, location: p.location, decimalComma: p.delimiter != ','}
	return inf.build(ctx, header, records)
}

type inferrer struct {
	workers      int
	location     *time.Location
	decimalComma bool
}

type column struct {
	kind   domain.Kind
	values []any
}

// build converts string records into a typed frame. Columns are inferred in
// parallel; each worker owns the slots of the columns it receives.
func (inf inferrer) build(ctx context.Context, header []string, records [][]string) (*domain.Frame, error) {
	names, err := columnNames(header)
	if err != nil {
		return nil, err
	}

	columns := make([]column, len(names))
	jobs := make(chan int, len(names))

	workers := inf.workers
	if workers > len(names) {
		workers = len(names)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				columns[idx] = inf.inferColumn(cells(records, idx))
			}
		}()
	}

	for idx := range names {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := domain.NewFrame()
	for i, name := range names {
		frame.Fields = append(frame.Fields, domain.Field{Name: name, Kind: columns[i].kind})
	}

	frame.Rows = make([][]any, len(records))
	for r := range records {
		row := make([]any, len(names))
		for c := range names {
			row[c] = columns[c].values[r]
		}
		frame.Rows[r] = row
	}

	return frame, nil
}

func columnNames(header []string) ([]string, error) {
	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))

	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = true
		names[i] = h
	}
	return names, nil
}

func cells(records [][]string, idx int) []string {
	out := make([]string, len(records))
	for i, record := range records {
		if idx < len(record) {
			out[i] = strings.TrimSpace(record[idx])
		}
	}
	return out
}

// inferColumn picks the narrowest kind every non-empty cell parses as:
// int, decimal, bool, time, then string. Empty cells are nulls.
func (inf inferrer) inferColumn(raw []string) column {
	candidates := []struct {
		kind  domain.Kind
		parse func(string) (any, bool)
	}{
		{domain.KindInt, parseIntCell},
		{domain.KindDecimal, inf.parseDecimalCell},
		{domain.KindBool, parseBoolCell},
		{domain.KindTime, inf.parseTimeCell},
	}

	if allEmpty(raw) {
		return column{kind: domain.KindNull, values: make([]any, len(raw))}
	}

	for _, c := range candidates {
		if values, ok := convertAll(raw, c.parse); ok {
			return column{kind: c.kind, values: values}
		}
	}

	values := make([]any, len(raw))
	for i, s := range raw {
		if s != "" {
			values[i] = s
		}
	}
	return column{kind: domain.KindString, values: values}
}

func allEmpty(raw []string) bool {
	for _, s := range raw {
		if s != "" {
			return false
		}
	}
	return true
}

func convertAll(raw []string, parse func(string) (any, bool)) ([]any, bool) {
	values := make([]any, len(raw))
	for i, s := range raw {
		if s == "" {
			continue
		}
		v, ok := parse(s)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func parseIntCell(s string) (any, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, false
	}
	return n, true
}

func (inf inferrer) parseDecimalCell(s string) (any, bool) {
	if inf.decimalComma && strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, false
	}
	return d, true
}

func parseBoolCell(s string) (any, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return nil, false
}

func (inf inferrer) parseTimeCell(s string) (any, bool) {
	loc := inf.location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return nil, false
}
