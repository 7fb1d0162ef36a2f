package ingestion

import (
	"errors"
	"testing"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okOutcome(date int, path string, fields []domain.Field, rows ...[]any) Outcome {
	f := domain.NewFrame(fields...)
	f.Rows = rows
	return Outcome{
		Candidate: Candidate{Date: day(2024, 1, date), Path: path},
		Frame:     f,
		Status:    StatusOK,
	}
}

func TestConcatenateUnionInFirstSeenOrder(t *testing.T) {
	a := okOutcome(1, "a.csv",
		[]domain.Field{{Name: "code", Kind: domain.KindString}, {Name: "qty", Kind: domain.KindInt}},
		[]any{"600000", int64(1)})
	b := okOutcome(2, "b.csv",
		[]domain.Field{{Name: "qty", Kind: domain.KindInt}, {Name: "note", Kind: domain.KindString}},
		[]any{int64(2), "late"})

	got, err := Concatenate([]Outcome{a, b}, ConcatOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "qty", "note"}, got.Names())
	assert.Equal(t, [][]any{
		{"600000", int64(1), nil},
		{nil, int64(2), "late"},
	}, got.Rows)
}

func TestConcatenateWidensIntToDecimal(t *testing.T) {
	a := okOutcome(1, "a.csv", []domain.Field{{Name: "px", Kind: domain.KindInt}}, []any{int64(10)})
	b := okOutcome(2, "b.csv", []domain.Field{{Name: "px", Kind: domain.KindDecimal}}, []any{decimal.RequireFromString("10.5")})
	c := okOutcome(3, "c.csv", []domain.Field{{Name: "px", Kind: domain.KindNull}}, []any{nil})

	got, err := Concatenate([]Outcome{a, b, c}, ConcatOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.KindDecimal, got.Fields[0].Kind)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Rows[0][0].(decimal.Decimal)))
	assert.Nil(t, got.Rows[2][0])
}

func TestConcatenateSchemaConflict(t *testing.T) {
	a := okOutcome(1, "a.csv", []domain.Field{{Name: "code", Kind: domain.KindInt}}, []any{int64(600000)})
	b := okOutcome(2, "b.csv", []domain.Field{{Name: "code", Kind: domain.KindString}}, []any{"SH600000"})

	_, err := Concatenate([]Outcome{a, b}, ConcatOptions{})

	var conflict *SchemaConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "code", conflict.Column)
	assert.Equal(t, []domain.Kind{domain.KindInt, domain.KindString}, conflict.Kinds)
	assert.Equal(t, []string{"a.csv", "b.csv"}, conflict.Paths)
}

func TestConcatenateSkipsProblemsAndEmptyFrames(t *testing.T) {
	a := okOutcome(1, "a.csv", []domain.Field{{Name: "n", Kind: domain.KindInt}}, []any{int64(1)})
	missing := Outcome{Candidate: Candidate{Path: "b.csv"}, Status: StatusMissing, Problem: &Problem{Kind: ProblemMissing}}
	empty := Outcome{Candidate: Candidate{Path: "c.csv"}, Status: StatusEmpty, Frame: domain.NewFrame(domain.Field{Name: "other", Kind: domain.KindString})}

	got, err := Concatenate([]Outcome{missing, a, empty}, ConcatOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, got.Names())
	assert.Equal(t, 1, got.Len())
}

func TestConcatenateNothingRead(t *testing.T) {
	missing := Outcome{Status: StatusMissing, Problem: &Problem{Kind: ProblemMissing}}

	got, err := Concatenate([]Outcome{missing}, ConcatOptions{})
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.Equal(t, 0, got.Width())

	schema := []domain.Field{{Name: "code", Kind: domain.KindString}, {Name: "px", Kind: domain.KindDecimal}}
	got, err = Concatenate(nil, ConcatOptions{Schema: schema})
	require.NoError(t, err)
	assert.Equal(t, schema, got.Fields)
	assert.True(t, got.IsEmpty())
}

func TestConcatenateSchemaLeadsUnion(t *testing.T) {
	a := okOutcome(1, "a.csv", []domain.Field{{Name: "px", Kind: domain.KindInt}}, []any{int64(3)})

	got, err := Concatenate([]Outcome{a}, ConcatOptions{Schema: []domain.Field{
		{Name: "code", Kind: domain.KindString},
		{Name: "px", Kind: domain.KindDecimal},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "px"}, got.Names())
	assert.Equal(t, domain.KindDecimal, got.Fields[1].Kind)
	assert.Nil(t, got.Rows[0][0])
}

func TestConcatenateDateColumnAndSort(t *testing.T) {
	fields := []domain.Field{{Name: "px", Kind: domain.KindInt}}
	a := okOutcome(1, "a.csv", fields, []any{int64(5)}, []any{int64(2)})
	b := okOutcome(2, "b.csv", fields, []any{int64(3)})

	got, err := Concatenate([]Outcome{a, b}, ConcatOptions{DateColumn: "trade_date"})
	require.NoError(t, err)
	assert.Equal(t, []string{"px", "trade_date"}, got.Names())
	assert.Equal(t, domain.KindTime, got.Fields[1].Kind)
	assert.Equal(t, day(2024, 1, 1), got.Rows[1][1])
	assert.Equal(t, day(2024, 1, 2), got.Rows[2][1])

	sorted, err := Concatenate([]Outcome{a, b}, ConcatOptions{SortKey: "px"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(3), int64(5)}, sorted.Column("px"))

	_, err = Concatenate([]Outcome{a, b}, ConcatOptions{SortKey: "volume"})
	assert.ErrorIs(t, err, ErrUnknownSortKey)
	var cfgErr *ConfigurationError
	assert.False(t, errors.As(err, &cfgErr))
}

func TestConcatenateSortKeyWithNothingRead(t *testing.T) {
	schema := []domain.Field{{Name: "px", Kind: domain.KindInt}}

	got, err := Concatenate(nil, ConcatOptions{Schema: schema, SortKey: "px"})
	require.NoError(t, err)
	assert.Equal(t, []string{"px"}, got.Names())

	_, err = Concatenate(nil, ConcatOptions{Schema: schema, SortKey: "volume"})
	assert.ErrorIs(t, err, ErrUnknownSortKey)

	got, err = Concatenate(nil, ConcatOptions{SortKey: "volume"})
	require.NoError(t, err)
	assert.Zero(t, got.Width())
}
