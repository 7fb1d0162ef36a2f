package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWiden(t *testing.T) {
	tests := []struct {
		a, b Kind
		want Kind
		ok   bool
	}{
		{KindInt, KindInt, KindInt, true},
		{KindNull, KindString, KindString, true},
		{KindTime, KindNull, KindTime, true},
		{KindInt, KindDecimal, KindDecimal, true},
		{KindDecimal, KindInt, KindDecimal, true},
		{KindString, KindInt, KindNull, false},
		{KindBool, KindDecimal, KindNull, false},
		{KindTime, KindString, KindNull, false},
	}

	for _, tt := range tests {
		got, ok := Widen(tt.a, tt.b)
		assert.Equal(t, tt.ok, ok, "%s+%s", tt.a, tt.b)
		assert.Equal(t, tt.want, got, "%s+%s", tt.a, tt.b)
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(nil, int64(1)))
	assert.Equal(t, 1, Compare(int64(2), int64(1)))
	assert.Equal(t, 0, Compare(int64(2), decimal.RequireFromString("2.0")))
	assert.Equal(t, -1, Compare("a", "b"))

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, -1, Compare(early, early.Add(time.Hour)))
}

func TestFrameAppend(t *testing.T) {
	f := NewFrame(Field{"code", KindString}, Field{"px", KindDecimal})

	require.NoError(t, f.Append("600000", decimal.RequireFromString("10.5")))
	assert.Error(t, f.Append("600000"))

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, []string{"code", "px"}, f.Names())
	assert.Equal(t, 1, f.ColumnIndex("px"))
	assert.Equal(t, -1, f.ColumnIndex("missing"))
	assert.Equal(t, []any{"600000"}, f.Column("code"))
}

func TestFrameJSONKeepsCellTypes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	f := NewFrame(
		Field{"code", KindString},
		Field{"qty", KindInt},
		Field{"px", KindDecimal},
		Field{"ts", KindTime},
		Field{"halted", KindBool},
	)
	require.NoError(t, f.Append("600000", int64(300), decimal.RequireFromString("10.25"), ts, false))
	require.NoError(t, f.Append(nil, nil, nil, nil, nil))

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var got Frame
	require.NoError(t, json.Unmarshal(data, &got))

	require.Equal(t, f.Fields, got.Fields)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "600000", got.Rows[0][0])
	assert.Equal(t, int64(300), got.Rows[0][1])
	assert.True(t, decimal.RequireFromString("10.25").Equal(got.Rows[0][2].(decimal.Decimal)))
	assert.True(t, ts.Equal(got.Rows[0][3].(time.Time)))
	assert.Equal(t, false, got.Rows[0][4])
	assert.Equal(t, []any{nil, nil, nil, nil, nil}, got.Rows[1])
}

func TestFrameHead(t *testing.T) {
	f := NewFrame(Field{"n", KindInt})
	for i := int64(0); i < 5; i++ {
		require.NoError(t, f.Append(i))
	}

	head := f.Head(2)
	assert.Equal(t, 2, head.Len())
	assert.Equal(t, f.Fields, head.Fields)
	assert.Equal(t, 5, f.Len())

	assert.Same(t, f, f.Head(5))
	assert.Same(t, f, f.Head(-1))
	assert.Equal(t, 0, f.Head(0).Len())

	var nilFrame *Frame
	assert.Nil(t, nilFrame.Head(3))
}

func TestFrameValidate(t *testing.T) {
	f := NewFrame(Field{Name: "a", Kind: KindInt})
	require.NoError(t, f.Append(int64(1)))
	assert.NoError(t, f.Validate())

	var empty *Frame
	assert.NoError(t, empty.Validate())

	f.Rows = append(f.Rows, []any{int64(1), int64(2)})
	assert.ErrorIs(t, f.Validate(), ErrMalformedFrame)

	dup := &Frame{Fields: []Field{{Name: "a", Kind: KindInt}, {Name: "a", Kind: KindString}}}
	assert.ErrorIs(t, dup.Validate(), ErrMalformedFrame)
}
