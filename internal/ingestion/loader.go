package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/pkg/metrics"
	"github.com/shopspring/decimal"
)

// BulkLoader copies aggregated frames into Postgres.
type BulkLoader struct {
	pool      *pgxpool.Pool
	batchSize int
}

func NewBulkLoader(pool *pgxpool.Pool, batchSize int) *BulkLoader {
	if batchSize < 1 {
		batchSize = 10000
	}
	return &BulkLoader{
		pool:      pool,
		batchSize: batchSize,
	}
}

// LoadFrame creates table from the frame layout when missing and copies
// every row, one transaction per batch.
func (l *BulkLoader) LoadFrame(ctx context.Context, table string, frame *domain.Frame) (int64, error) {
	if frame.IsEmpty() {
		return 0, nil
	}

	if err := l.EnsureTable(ctx, table, frame.Fields); err != nil {
		return 0, err
	}

	return l.LoadFrameConcurrent(ctx, table, frame)
}

// EnsureTable runs CREATE TABLE IF NOT EXISTS for fields.
func (l *BulkLoader) EnsureTable(ctx context.Context, table string, fields []domain.Field) error {
	timer := metrics.NewTimer()

	_, err := l.pool.Exec(ctx, createTableSQL(table, fields))
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDatabaseQuery("create_table", status, timer.Elapsed().Seconds())

	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (l *BulkLoader) LoadRows(ctx context.Context, table string, fields []domain.Field, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	timer := metrics.NewTimer()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	copyCount, err := tx.CopyFrom(
		ctx,
		tableIdentifier(table),
		fieldNames(fields),
		&frameSource{rows: rows},
	)
	if err != nil {
		metrics.RecordDatabaseQuery("copy", "error", timer.Elapsed().Seconds())
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDatabaseQuery("copy", "error", timer.Elapsed().Seconds())
		return 0, fmt.Errorf("commit: %w", err)
	}

	metrics.RecordDatabaseQuery("copy", "success", timer.Elapsed().Seconds())
	return copyCount, nil
}

func (l *BulkLoader) LoadFrameConcurrent(ctx context.Context, table string, frame *domain.Frame) (int64, error) {
	chunks := splitIntoChunks(frame.Rows, l.batchSize)

	results := make(chan int64, len(chunks))
	errs := make(chan error, len(chunks))

	for _, chunk := range chunks {
		go func(chunk [][]any) {
			count, err := l.LoadRows(ctx, table, frame.Fields, chunk)
			if err != nil {
				errs <- err
				return
			}
			results <- count
		}(chunk)
	}

	var totalCount int64
	for i := 0; i < len(chunks); i++ {
		select {
		case count := <-results:
			totalCount += count
		case err := <-errs:
			return totalCount, err
		case <-ctx.Done():
			return totalCount, ctx.Err()
		}
	}

	return totalCount, nil
}

func splitIntoChunks(rows [][]any, size int) [][][]any {
	var chunks [][][]any

	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[i:end])
	}

	return chunks
}

// frameSource feeds frame rows to CopyFrom.
type frameSource struct {
	rows  [][]any
	index int
}

func (fs *frameSource) Next() bool {
	fs.index++
	return fs.index <= len(fs.rows)
}

func (fs *frameSource) Values() ([]any, error) {
	if fs.index > len(fs.rows) {
		return nil, nil
	}

	row := fs.rows[fs.index-1]
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = pgValue(v)
	}
	return values, nil
}

func (fs *frameSource) Err() error {
	return nil
}

func pgValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
	}
	return v
}

func tableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

func fieldNames(fields []domain.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func pgType(k domain.Kind) string {
	switch k {
	case domain.KindBool:
		return "BOOLEAN"
	case domain.KindInt:
		return "BIGINT"
	case domain.KindDecimal:
		return "NUMERIC"
	case domain.KindTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func createTableSQL(table string, fields []domain.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = pgx.Identifier{f.Name}.Sanitize() + " " + pgType(f.Kind)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		tableIdentifier(table).Sanitize(), strings.Join(cols, ", "))
}
