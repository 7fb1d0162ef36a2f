package ingestion

import (
	"fmt"
	"sort"

	"github.com/jeovahfialho/lntools/internal/domain"
)

type ConcatOptions struct {
	// Schema is the expected layout. It is returned as-is when no file
	// contributes rows, and its columns lead the union otherwise.
	Schema []domain.Field

	// SortKey stable-sorts the aggregate by a column. Empty keeps file order.
	// A key absent from a frame that has columns is ErrUnknownSortKey.
	SortKey string

	// DateColumn, when set, adds the candidate date to every row.
	DateColumn string
}

// Concatenate stacks the frames of successful outcomes vertically, in
// outcome order. Columns are the union of all inputs in first-seen order,
// missing cells are nulls, and int columns meeting decimal ones widen to
// decimal. Any other kind mismatch is a SchemaConflictError.
func Concatenate(outcomes []Outcome, opts ConcatOptions) (*domain.Frame, error) {
	var parts []Outcome
	for _, o := range outcomes {
		if o.Status == StatusOK && !o.Frame.IsEmpty() {
			parts = append(parts, o)
		}
	}

	if len(parts) == 0 {
		out := domain.NewFrame(append([]domain.Field(nil), opts.Schema...)...)
		if opts.SortKey != "" && out.Width() > 0 {
			if err := sortFrame(out, opts.SortKey); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	fields, err := unionFields(parts, opts)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}

	total := 0
	for _, p := range parts {
		total += p.Frame.Len()
	}

	out := domain.NewFrame(fields...)
	out.Rows = make([][]any, 0, total)

	for _, p := range parts {
		positions := make([]int, len(p.Frame.Fields))
		for i, f := range p.Frame.Fields {
			positions[i] = index[f.Name]
		}

		dateIdx := -1
		if opts.DateColumn != "" && p.Frame.ColumnIndex(opts.DateColumn) < 0 {
			dateIdx = index[opts.DateColumn]
		}

		for _, src := range p.Frame.Rows {
			row := make([]any, len(fields))
			for i, v := range src {
				pos := positions[i]
				row[pos] = domain.Convert(v, fields[pos].Kind)
			}
			if dateIdx >= 0 && !p.Candidate.Date.IsZero() {
				row[dateIdx] = p.Candidate.Date
			}
			out.Rows = append(out.Rows, row)
		}
	}

	if opts.SortKey != "" {
		if err := sortFrame(out, opts.SortKey); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func unionFields(parts []Outcome, opts ConcatOptions) ([]domain.Field, error) {
	var fields []domain.Field
	index := make(map[string]int)
	kinds := make(map[string][]domain.Kind)
	paths := make(map[string][]string)

	add := func(f domain.Field, path string) error {
		kinds[f.Name] = appendKind(kinds[f.Name], f.Kind)
		if path != "" {
			paths[f.Name] = append(paths[f.Name], path)
		}

		i, ok := index[f.Name]
		if !ok {
			index[f.Name] = len(fields)
			fields = append(fields, f)
			return nil
		}

		widened, ok := domain.Widen(fields[i].Kind, f.Kind)
		if !ok {
			return &SchemaConflictError{Column: f.Name, Kinds: kinds[f.Name], Paths: paths[f.Name]}
		}
		fields[i].Kind = widened
		return nil
	}

	for _, f := range opts.Schema {
		if err := add(f, ""); err != nil {
			return nil, err
		}
	}

	for _, p := range parts {
		for _, f := range p.Frame.Fields {
			if err := add(f, p.Candidate.Path); err != nil {
				return nil, err
			}
		}
		if opts.DateColumn != "" && p.Frame.ColumnIndex(opts.DateColumn) < 0 {
			if err := add(domain.Field{Name: opts.DateColumn, Kind: domain.KindTime}, p.Candidate.Path); err != nil {
				return nil, err
			}
		}
	}

	return fields, nil
}

func appendKind(kinds []domain.Kind, k domain.Kind) []domain.Kind {
	for _, existing := range kinds {
		if existing == k {
			return kinds
		}
	}
	return append(kinds, k)
}

func sortFrame(f *domain.Frame, key string) error {
	idx := f.ColumnIndex(key)
	if idx < 0 {
		return fmt.Errorf("%w: column %q not found", ErrUnknownSortKey, key)
	}
	sort.SliceStable(f.Rows, func(i, j int) bool {
		return domain.Compare(f.Rows[i][idx], f.Rows[j][idx]) < 0
	})
	return nil
}
