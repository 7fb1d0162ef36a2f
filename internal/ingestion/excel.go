package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ExcelReader reads one worksheet of an xlsx workbook. The first non-empty
// row is the header.
type ExcelReader struct {
	// Sheet defaults to the first sheet of the workbook.
	Sheet    string
	Workers  int
	Location *time.Location
}

func (r *ExcelReader) Read(ctx context.Context, path string) (*domain.Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return domain.NewFrame(), nil
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}

	for len(rows) > 0 && len(rows[0]) == 0 {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return domain.NewFrame(), nil
	}

	header, records := rows[0], rows[1:]
	for i, record := range records {
		if len(record) > len(header) {
			return nil, fmt.Errorf("sheet %q row %d has %d cells, header has %d", sheet, i+2, len(record), len(header))
		}
	}

	inf := inferrer{workers: r.Workers, location: r.Location}
	return inf.build(ctx, header, records)
}
