package ingestion

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/shopspring/decimal"
)

// ArrowReader reads Arrow IPC files (Feather v2). Stream-format files are
// accepted as a fallback.
type ArrowReader struct {
	Location *time.Location
}

func (r *ArrowReader) Read(ctx context.Context, path string) (*domain.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open arrow %s: %w", path, err)
	}
	defer file.Close()

	alloc := memory.NewGoAllocator()

	if fr, err := ipc.NewFileReader(file, ipc.WithAllocator(alloc)); err == nil {
		defer fr.Close()

		frame := r.frameFor(fr.Schema())
		for i := 0; i < fr.NumRecords(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := fr.Record(i)
			if err != nil {
				return nil, fmt.Errorf("arrow %s batch %d: %w", path, i, err)
			}
			r.appendRecord(frame, rec)
		}
		return frame, nil
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind arrow %s: %w", path, err)
	}

	sr, err := ipc.NewReader(file, ipc.WithAllocator(alloc))
	if err != nil {
		return nil, fmt.Errorf("arrow %s is neither an IPC file nor a stream: %w", path, err)
	}
	defer sr.Release()

	frame := r.frameFor(sr.Schema())
	for sr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.appendRecord(frame, sr.Record())
	}
	if err := sr.Err(); err != nil {
		return nil, fmt.Errorf("arrow stream %s: %w", path, err)
	}
	return frame, nil
}

func (r *ArrowReader) frameFor(schema *arrow.Schema) *domain.Frame {
	frame := domain.NewFrame()
	for _, f := range schema.Fields() {
		frame.Fields = append(frame.Fields, domain.Field{Name: f.Name, Kind: arrowKind(f.Type)})
	}
	return frame
}

func (r *ArrowReader) appendRecord(frame *domain.Frame, rec arrow.Record) {
	rows := int(rec.NumRows())
	cols := int(rec.NumCols())

	start := len(frame.Rows)
	for i := 0; i < rows; i++ {
		frame.Rows = append(frame.Rows, make([]any, cols))
	}

	for c := 0; c < cols; c++ {
		arr := rec.Column(c)
		for i := 0; i < rows; i++ {
			frame.Rows[start+i][c] = r.cell(arr, i)
		}
	}
}

func arrowKind(dt arrow.DataType) domain.Kind {
	switch dt.ID() {
	case arrow.NULL:
		return domain.KindNull
	case arrow.BOOL:
		return domain.KindBool
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return domain.KindInt
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128:
		return domain.KindDecimal
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return domain.KindTime
	default:
		return domain.KindString
	}
}

func (r *ArrowReader) cell(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float16:
		return floatCell(float64(a.Value(i).Float32()))
	case *array.Float32:
		return floatCell(float64(a.Value(i)))
	case *array.Float64:
		return floatCell(a.Value(i))
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return decimal.NewFromBigInt(a.Value(i).BigInt(), -scale)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).In(loc)
	case *array.Date32:
		d := a.Value(i).ToTime()
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	case *array.Date64:
		d := a.Value(i).ToTime()
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	default:
		return arr.ValueStr(i)
	}
}
