package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
)

// Reader turns one file into a Frame. Implementations must be safe for
// concurrent use; the worker pool calls Read from several goroutines.
type Reader interface {
	Read(ctx context.Context, path string) (*domain.Frame, error)
}

// ReaderFunc adapts a plain function to Reader.
type ReaderFunc func(ctx context.Context, path string) (*domain.Frame, error)

func (f ReaderFunc) Read(ctx context.Context, path string) (*domain.Frame, error) {
	return f(ctx, path)
}

// ReaderOptions tunes the built-in readers.
type ReaderOptions struct {
	Delimiter rune
	Workers   int
	Location  *time.Location
}

// ExtensionReader dispatches on the lower-cased file extension.
type ExtensionReader struct {
	readers map[string]Reader
}

// NewExtensionReader registers the CSV, Excel, Parquet and Arrow readers.
func NewExtensionReader(opts ReaderOptions) *ExtensionReader {
	csvReader := NewParser(opts.Delimiter, opts.Workers).WithLocation(opts.Location)
	excel := &ExcelReader{Workers: opts.Workers, Location: opts.Location}
	parquet := &ParquetReader{Location: opts.Location}
	arrow := &ArrowReader{Location: opts.Location}

	r := &ExtensionReader{readers: make(map[string]Reader)}
	r.Register(csvReader, ".csv", ".txt")
	r.Register(excel, ".xlsx", ".xlsm")
	r.Register(parquet, ".parquet")
	r.Register(arrow, ".arrow", ".feather", ".ipc")
	return r
}

// Register binds reader to the given extensions, replacing any previous one.
func (r *ExtensionReader) Register(reader Reader, exts ...string) {
	for _, ext := range exts {
		r.readers[normalizeExt(ext)] = reader
	}
}

func (r *ExtensionReader) Extensions() []string {
	exts := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		exts = append(exts, ext)
	}
	return exts
}

func (r *ExtensionReader) Read(ctx context.Context, path string) (*domain.Frame, error) {
	reader, ok := r.readers[Format(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return reader.Read(ctx, path)
}

// Format returns the normalized extension of path, used as a metrics label.
func Format(path string) string {
	return normalizeExt(filepath.Ext(path))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
