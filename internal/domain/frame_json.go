package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type frameJSON struct {
	Columns []Field `json:"columns"`
	Rows    [][]any `json:"rows"`
}

func (f Frame) MarshalJSON() ([]byte, error) {
	out := frameJSON{Columns: f.Fields, Rows: f.Rows}
	if out.Columns == nil {
		out.Columns = []Field{}
	}
	if out.Rows == nil {
		out.Rows = [][]any{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores cell types from the column kinds, so a Frame
// survives a round trip through the cache.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []Field             `json:"columns"`
		Rows    [][]json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Fields = raw.Columns
	f.Rows = make([][]any, 0, len(raw.Rows))

	for i, rawRow := range raw.Rows {
		if len(rawRow) != len(raw.Columns) {
			return fmt.Errorf("row %d has %d cells, expected %d", i, len(rawRow), len(raw.Columns))
		}

		row := make([]any, len(rawRow))
		for j, cell := range rawRow {
			v, err := decodeCell(cell, raw.Columns[j].Kind)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, raw.Columns[j].Name, err)
			}
			row[j] = v
		}
		f.Rows = append(f.Rows, row)
	}

	return nil
}

func decodeCell(cell json.RawMessage, kind Kind) (any, error) {
	if string(cell) == "null" {
		return nil, nil
	}

	switch kind {
	case KindBool:
		var b bool
		err := json.Unmarshal(cell, &b)
		return b, err
	case KindInt:
		return strconv.ParseInt(string(cell), 10, 64)
	case KindDecimal:
		var d decimal.Decimal
		err := d.UnmarshalJSON(cell)
		return d, err
	case KindTime:
		var t time.Time
		err := json.Unmarshal(cell, &t)
		return t, err
	case KindString:
		var s string
		err := json.Unmarshal(cell, &s)
		return s, err
	default:
		return nil, nil
	}
}
