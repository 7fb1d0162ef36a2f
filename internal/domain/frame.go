package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Kind is the value type of a Frame column.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindTime
	KindString
)

var kindNames = map[Kind]string{
	KindNull:    "null",
	KindBool:    "bool",
	KindInt:     "int",
	KindDecimal: "decimal",
	KindTime:    "time",
	KindString:  "string",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown column kind %q", s)
}

// KindOf reports the Kind of a cell value. Values are nil, bool, int64,
// decimal.Decimal, time.Time or string.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInt
	case decimal.Decimal:
		return KindDecimal
	case time.Time:
		return KindTime
	case string:
		return KindString
	default:
		return KindString
	}
}

// Widen returns the kind able to hold both a and b. Null joins anything and
// int widens to decimal; every other mismatch cannot be widened.
func Widen(a, b Kind) (Kind, bool) {
	switch {
	case a == b:
		return a, true
	case a == KindNull:
		return b, true
	case b == KindNull:
		return a, true
	case (a == KindInt && b == KindDecimal) || (a == KindDecimal && b == KindInt):
		return KindDecimal, true
	default:
		return KindNull, false
	}
}

// Convert casts v to kind to. Only the widenings accepted by Widen are
// supported; other values are returned unchanged.
func Convert(v any, to Kind) any {
	if to == KindDecimal {
		if i, ok := v.(int64); ok {
			return decimal.NewFromInt(i)
		}
	}
	return v
}

// Compare orders two cells of the same kind. Nulls sort first.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y)
		case decimal.Decimal:
			return decimal.NewFromInt(x).Cmp(y)
		}
	case decimal.Decimal:
		switch y := b.(type) {
		case decimal.Decimal:
			return x.Cmp(y)
		case int64:
			return x.Cmp(decimal.NewFromInt(y))
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Frame is a row-major table with named, typed columns.
type Frame struct {
	Fields []Field
	Rows   [][]any
}

func NewFrame(fields ...Field) *Frame {
	return &Frame{Fields: fields}
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

func (f *Frame) Width() int {
	if f == nil {
		return 0
	}
	return len(f.Fields)
}

func (f *Frame) IsEmpty() bool {
	return f.Len() == 0
}

func (f *Frame) Names() []string {
	names := make([]string, 0, f.Width())
	for _, field := range f.Fields {
		names = append(names, field.Name)
	}
	return names
}

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, field := range f.Fields {
		if field.Name == name {
			return i
		}
	}
	return -1
}

func (f *Frame) Column(name string) []any {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	col := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		col[i] = row[idx]
	}
	return col
}

// Append adds a row. The row must have one cell per field.
func (f *Frame) Append(row ...any) error {
	if len(row) != len(f.Fields) {
		return fmt.Errorf("row has %d cells, frame has %d columns", len(row), len(f.Fields))
	}
	f.Rows = append(f.Rows, row)
	return nil
}

// Validate checks that field names are unique and every row has one cell
// per field.
func (f *Frame) Validate() error {
	if f == nil {
		return nil
	}

	seen := make(map[string]bool, len(f.Fields))
	for _, field := range f.Fields {
		if seen[field.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrMalformedFrame, field.Name)
		}
		seen[field.Name] = true
	}

	for i, row := range f.Rows {
		if len(row) != len(f.Fields) {
			return fmt.Errorf("%w: row %d has %d cells, frame has %d columns",
				ErrMalformedFrame, i, len(row), len(f.Fields))
		}
	}
	return nil
}

// Head returns a frame sharing the first n rows. A negative n or one past
// the end returns f itself.
func (f *Frame) Head(n int) *Frame {
	if f == nil || n < 0 || n >= len(f.Rows) {
		return f
	}
	return &Frame{Fields: f.Fields, Rows: f.Rows[:n]}
}
