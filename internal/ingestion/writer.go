package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/shopspring/decimal"
)

// WriteCSV writes frame with a header row. Nulls are empty cells.
func WriteCSV(w io.Writer, frame *domain.Frame) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(frame.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, frame.Width())
	for _, row := range frame.Rows {
		for i, v := range row {
			record[i] = FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatCell renders a cell as text. Times at midnight print as dates.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case decimal.Decimal:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}
