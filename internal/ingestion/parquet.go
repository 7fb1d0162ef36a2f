package ingestion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/types"
)

// ParquetReader reads flat parquet files column by column. Nested and
// repeated columns are rejected.
type ParquetReader struct {
	Parallelism int64
	Location    *time.Location
}

type parquetColumn struct {
	name    string
	kind    domain.Kind
	element *parquet.SchemaElement
}

func (r *ParquetReader) Read(ctx context.Context, path string) (*domain.Frame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer fr.Close()

	np := r.Parallelism
	if np < 1 {
		np = 4
	}

	pr, err := reader.NewParquetColumnReader(fr, np)
	if err != nil {
		return nil, fmt.Errorf("parquet reader %s: %w", path, err)
	}
	defer pr.ReadStop()

	numRows := pr.GetNumRows()
	sh := pr.SchemaHandler

	columns := make([]parquetColumn, 0, len(sh.ValueColumns))
	for _, colPath := range sh.ValueColumns {
		idx, ok := sh.MapIndex[colPath]
		if !ok {
			return nil, fmt.Errorf("parquet %s: unknown column path %q", path, colPath)
		}
		el := sh.SchemaElements[idx]
		columns = append(columns, parquetColumn{
			name:    sh.Infos[idx].ExName,
			kind:    parquetKind(el),
			element: el,
		})
	}

	frame := domain.NewFrame()
	for _, c := range columns {
		frame.Fields = append(frame.Fields, domain.Field{Name: c.name, Kind: c.kind})
	}
	if numRows == 0 {
		return frame, nil
	}

	frame.Rows = make([][]any, numRows)
	for i := range frame.Rows {
		frame.Rows[i] = make([]any, len(columns))
	}

	for c, col := range columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, _, _, err := pr.ReadColumnByIndex(int64(c), numRows)
		if err != nil {
			return nil, fmt.Errorf("parquet %s column %q: %w", path, col.name, err)
		}
		if int64(len(values)) != numRows {
			return nil, fmt.Errorf("parquet %s column %q: %d values for %d rows, nested columns are not supported",
				path, col.name, len(values), numRows)
		}

		for i, v := range values {
			frame.Rows[i][c] = r.cell(v, col)
		}
	}

	return frame, nil
}

func parquetKind(el *parquet.SchemaElement) domain.Kind {
	if el.ConvertedType != nil {
		switch *el.ConvertedType {
		case parquet.ConvertedType_DECIMAL:
			return domain.KindDecimal
		case parquet.ConvertedType_DATE, parquet.ConvertedType_TIMESTAMP_MILLIS, parquet.ConvertedType_TIMESTAMP_MICROS:
			return domain.KindTime
		case parquet.ConvertedType_UTF8:
			return domain.KindString
		}
	}
	if el.LogicalType != nil && el.LogicalType.TIMESTAMP != nil {
		return domain.KindTime
	}
	if el.Type == nil {
		return domain.KindString
	}

	switch *el.Type {
	case parquet.Type_BOOLEAN:
		return domain.KindBool
	case parquet.Type_INT32, parquet.Type_INT64:
		return domain.KindInt
	case parquet.Type_FLOAT, parquet.Type_DOUBLE:
		return domain.KindDecimal
	case parquet.Type_INT96:
		return domain.KindTime
	default:
		return domain.KindString
	}
}

func (r *ParquetReader) cell(v any, col parquetColumn) any {
	if v == nil {
		return nil
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	el := col.element
	var converted parquet.ConvertedType = -1
	if el.ConvertedType != nil {
		converted = *el.ConvertedType
	}

	switch val := v.(type) {
	case bool:
		return val
	case int32:
		return r.integerCell(int64(val), el, converted, loc)
	case int64:
		return r.integerCell(val, el, converted, loc)
	case float32:
		return floatCell(float64(val))
	case float64:
		return floatCell(val)
	case string:
		if el.Type != nil && *el.Type == parquet.Type_INT96 {
			return types.INT96ToTime(val).In(loc)
		}
		if converted == parquet.ConvertedType_DECIMAL {
			return decimalBytesCell(val, el)
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

func (r *ParquetReader) integerCell(n int64, el *parquet.SchemaElement, converted parquet.ConvertedType, loc *time.Location) any {
	switch converted {
	case parquet.ConvertedType_DECIMAL:
		var scale int32
		if el.Scale != nil {
			scale = *el.Scale
		}
		return decimal.New(n, -scale)
	case parquet.ConvertedType_DATE:
		d := time.Unix(n*86400, 0).UTC()
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	case parquet.ConvertedType_TIMESTAMP_MILLIS:
		return time.UnixMilli(n).In(loc)
	case parquet.ConvertedType_TIMESTAMP_MICROS:
		return time.UnixMicro(n).In(loc)
	}

	if el.LogicalType != nil && el.LogicalType.TIMESTAMP != nil && el.LogicalType.TIMESTAMP.Unit != nil {
		unit := el.LogicalType.TIMESTAMP.Unit
		switch {
		case unit.MILLIS != nil:
			return time.UnixMilli(n).In(loc)
		case unit.MICROS != nil:
			return time.UnixMicro(n).In(loc)
		case unit.NANOS != nil:
			return time.Unix(0, n).In(loc)
		}
	}

	return n
}

func decimalBytesCell(raw string, el *parquet.SchemaElement) any {
	var precision, scale int32
	if el.Precision != nil {
		precision = *el.Precision
	}
	if el.Scale != nil {
		scale = *el.Scale
	}
	d, err := decimal.NewFromString(types.DECIMAL_BYTE_ARRAY_ToString([]byte(raw), int(precision), int(scale)))
	if err != nil {
		return nil
	}
	return d
}

// floatCell converts a float to a decimal. NaN and infinities become nulls.
func floatCell(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return decimal.NewFromFloat(f)
}
