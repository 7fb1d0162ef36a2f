package ingestion

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, files map[string]string, opts Options) *Directory {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	d, err := NewDirectory(dir, opts)
	require.NoError(t, err)
	return d
}

func TestDirectoryReadsAroundMissingDay(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"20240101.csv": "code,px\n600000,10.1\n",
		"20240103.csv": "code,px\n600000,10.3\n",
	}, Options{DateFormat: "%Y%m%d"})

	report, err := d.Read(context.Background(), ReadRequest{Start: "2024-01-01", End: "2024-01-03"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 2, report.FilesRead)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, ProblemMissing, report.Problems[0].Kind)
	assert.Equal(t, "20240102.csv", filepath.Base(report.Problems[0].Path))
	assert.Equal(t, []string{filepath.Join(d.Path(), "20240102.csv")}, report.Missing())

	assert.Equal(t, 2, report.Frame.Len())
	assert.Equal(t, "10.1", FormatCell(report.Frame.Rows[0][1]))
	assert.Equal(t, "10.3", FormatCell(report.Frame.Rows[1][1]))
}

func TestDirectoryAllMissing(t *testing.T) {
	d := newTestDirectory(t, nil, Options{DateFormat: "%Y%m%d"})

	report, err := d.Read(context.Background(), ReadRequest{Start: 20240101, End: 20240103})
	require.NoError(t, err)

	assert.True(t, report.Frame.IsEmpty())
	assert.Equal(t, 0, report.FilesRead)
	assert.Len(t, report.Problems, 3)
	for _, p := range report.Problems {
		assert.Equal(t, ProblemMissing, p.Kind)
	}
}

func TestDirectoryExplicitDatesIntersectRange(t *testing.T) {
	files := map[string]string{}
	for i := 1; i <= 10; i++ {
		files[day(2024, 1, i).Format("20060102")+".csv"] = "n\n1\n"
	}
	d := newTestDirectory(t, files, Options{DateFormat: "%Y%m%d"})

	req := ReadRequest{
		Start: "2024-01-01",
		End:   "2024-01-10",
		Dates: []any{"2024-01-02", "2024-01-05"},
	}

	candidates, err := d.Candidates(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240102.csv", "20240105.csv"}, candidateNames(candidates))

	report, err := d.Read(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Frame.Len())
	assert.Empty(t, report.Problems)
}

func TestDirectoryTwoOfFiveMissing(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"2024-01-01.csv": "n\n1\n",
		"2024-01-03.csv": "n\n3\n",
		"2024-01-05.csv": "n\n5\n",
	}, Options{})

	report, err := d.Read(context.Background(), ReadRequest{Start: "2024-01-01", End: "2024-01-05", Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []any{int64(1), int64(3), int64(5)}, report.Frame.Column("n"))
	assert.Len(t, report.Missing(), 2)
}

func TestDirectoryReadIsIdempotent(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"20240101.csv": "code,px\n600000,10.1\n",
		"20240102.csv": "code,px,vol\n600000,10.2,300\n",
	}, Options{DateFormat: "compact"})

	req := ReadRequest{Start: "20240101", End: "20240104"}

	first, err := d.Read(context.Background(), req)
	require.NoError(t, err)
	second, err := d.Read(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Frame, second.Frame)
	assert.Equal(t, first.Problems, second.Problems)
	assert.Equal(t, []string{"code", "px", "vol"}, first.Frame.Names())
}

func TestDirectoryPerCallOverrides(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"pos_20240102.csv": "n\n2\n",
		"20240102.csv":     "n\n99\n",
	}, Options{DateFormat: "%Y%m%d"})

	report, err := d.Read(context.Background(), ReadRequest{
		Start:      "2024-01-02",
		End:        "2024-01-02",
		Pattern:    "pos_{date}.csv",
		DateColumn: "trade_date",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"n", "trade_date"}, report.Frame.Names())
	assert.Equal(t, int64(2), report.Frame.Rows[0][0])
	assert.Equal(t, day(2024, 1, 2), report.Frame.Rows[0][1])
}

func TestDirectoryAllFiles(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"b.csv":     "n\n2\n",
		"a.csv":     "n\n1\n",
		"notes.txt": "ignored",
	}, Options{})

	report, err := d.Read(context.Background(), ReadRequest{AllFiles: true})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, report.Frame.Column("n"))
}

func TestDirectorySchemaConflictKeepsReport(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"20240101.csv": "code\n600000\n",
		"20240102.csv": "code\nSH600000\n",
	}, Options{DateFormat: "%Y%m%d"})

	report, err := d.Read(context.Background(), ReadRequest{Start: "2024-01-01", End: "2024-01-03"})

	var conflict *SchemaConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotNil(t, report)
	assert.Nil(t, report.Frame)
	assert.Len(t, report.Problems, 1)
}

func TestDirectoryTimeoutKeepsPartialResult(t *testing.T) {
	files := map[string]string{}
	for i := 1; i <= 6; i++ {
		files[day(2024, 1, i).Format("20060102")+".csv"] = "n\n1\n"
	}
	d := newTestDirectory(t, files, Options{
		DateFormat: "%Y%m%d",
		Workers:    1,
		Reader:     tagReader(func(string) time.Duration { return 40 * time.Millisecond }),
	})

	report, err := d.Read(context.Background(), ReadRequest{
		Start:   "2024-01-01",
		End:     "2024-01-06",
		Timeout: 60 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NotNil(t, report.Frame)
	assert.Greater(t, report.Frame.Len(), 0)
	assert.Equal(t, "20240101.csv", report.Frame.Rows[0][0])
	assert.Equal(t, report.FilesRead, report.Frame.Len())

	assert.True(t, report.HasTimeouts())
	assert.Empty(t, report.Missing())
	assert.Empty(t, report.Failed())
	assert.Equal(t, 6, report.Candidates)
	assert.Equal(t, report.Candidates, report.FilesRead+len(report.Problems)+report.Empty)
}

func TestDirectoryUnknownSortKeyKeepsReport(t *testing.T) {
	d := newTestDirectory(t, map[string]string{
		"20240101.csv": "code,px\n600000,10.1\n",
	}, Options{DateFormat: "%Y%m%d"})

	report, err := d.Read(context.Background(), ReadRequest{
		Start:   "2024-01-01",
		End:     "2024-01-02",
		SortKey: "volume",
	})

	assert.ErrorIs(t, err, ErrUnknownSortKey)
	var cfgErr *ConfigurationError
	assert.False(t, errors.As(err, &cfgErr))
	require.NotNil(t, report)
	assert.Nil(t, report.Frame)
	assert.Equal(t, 1, report.FilesRead)
	assert.Len(t, report.Missing(), 1)
}

func TestDirectoryConfigurationErrors(t *testing.T) {
	d := newTestDirectory(t, nil, Options{})
	ctx := context.Background()

	var cfgErr *ConfigurationError

	_, err := d.Read(ctx, ReadRequest{Start: "2024-01-05", End: "2024-01-01"})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = d.Read(ctx, ReadRequest{Start: "yesterday-ish"})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = d.Read(ctx, ReadRequest{Start: "2024-01-01", End: "2024-01-02", Pattern: "fixed.csv"})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewDirectory(filepath.Join(d.Path(), "nope"), Options{})
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestDirectoryUsesCustomReader(t *testing.T) {
	d := newTestDirectory(t, map[string]string{"20240101.bin": "x"}, Options{
		Pattern:    "{date}.bin",
		DateFormat: "%Y%m%d",
		Reader: ReaderFunc(func(ctx context.Context, path string) (*domain.Frame, error) {
			f := domain.NewFrame(domain.Field{Name: "size", Kind: domain.KindInt})
			_ = f.Append(int64(1))
			return f, nil
		}),
	})

	report, err := d.Read(context.Background(), ReadRequest{Start: "2024-01-01", End: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Frame.Len())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report.Frame))
	assert.Equal(t, "size\n1\n", buf.String())
}
