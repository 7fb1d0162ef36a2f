package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/internal/timeutils"
	"github.com/jeovahfialho/lntools/pkg/metrics"
	"go.uber.org/zap"
)

const (
	DefaultPattern    = "{date}.csv"
	DefaultDateFormat = "%Y-%m-%d"
	DefaultWorkers    = 10
)

// Options are the per-directory defaults. Every field can be overridden for
// a single call through ReadRequest.
type Options struct {
	Pattern    string
	DateFormat string
	Workers    int
	Timeout    time.Duration
	Location   *time.Location
	Calendar   timeutils.Calendar
	Reader     Reader
	Schema     []domain.Field
	SortKey    string
	DateColumn string
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Pattern == "" {
		o.Pattern = DefaultPattern
	}
	if o.DateFormat == "" {
		o.DateFormat = DefaultDateFormat
	}
	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.Location == nil {
		o.Location = timeutils.BusinessLocation()
	}
	if o.Reader == nil {
		o.Reader = NewExtensionReader(ReaderOptions{Workers: 4, Location: o.Location})
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ReadRequest selects the files of one read. Start, End and the entries of
// Dates accept anything timeutils.Parse does. A non-nil Dates is an explicit
// trading calendar. AllFiles reads every file matching the pattern instead
// of resolving dates.
type ReadRequest struct {
	Start    any
	End      any
	Dates    []any
	AllFiles bool

	Pattern    string
	DateFormat string
	Workers    int
	Timeout    time.Duration
	Calendar   timeutils.Calendar
	Reader     Reader
	SortKey    string
	DateColumn string
}

// Report is the aggregate of one read plus every candidate left out of it.
type Report struct {
	Frame      *domain.Frame `json:"frame"`
	Problems   []Problem     `json:"problems"`
	Candidates int           `json:"candidates"`
	FilesRead  int           `json:"files_read"`
	Empty      int           `json:"empty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Missing returns the paths of candidates that did not exist.
func (r *Report) Missing() []string {
	return r.pathsOf(ProblemMissing)
}

// Failed returns the paths of candidates that could not be read.
func (r *Report) Failed() []string {
	return r.pathsOf(ProblemFailed)
}

func (r *Report) HasTimeouts() bool {
	return len(r.pathsOf(ProblemTimeout)) > 0
}

func (r *Report) pathsOf(kind ProblemKind) []string {
	var paths []string
	for _, p := range r.Problems {
		if p.Kind == kind {
			paths = append(paths, p.Path)
		}
	}
	return paths
}

// Directory reads date-partitioned files from one directory.
type Directory struct {
	path string
	opts Options
	log  *zap.Logger
}

func NewDirectory(path string, opts Options) (*Directory, error) {
	abs, err := checkDirectory(path)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	return &Directory{
		path: abs,
		opts: opts,
		log:  opts.Logger.With(zap.String("directory", abs)),
	}, nil
}

func (d *Directory) Path() string {
	return d.path
}

// settings merges the per-call overrides of req into the directory options.
func (d *Directory) settings(req ReadRequest) Options {
	o := d.opts
	if req.Pattern != "" {
		o.Pattern = req.Pattern
	}
	if req.DateFormat != "" {
		o.DateFormat = req.DateFormat
	}
	if req.Workers > 0 {
		o.Workers = req.Workers
	}
	if req.Timeout > 0 {
		o.Timeout = req.Timeout
	}
	if req.Calendar != nil {
		o.Calendar = req.Calendar
	}
	if req.Reader != nil {
		o.Reader = req.Reader
	}
	if req.SortKey != "" {
		o.SortKey = req.SortKey
	}
	if req.DateColumn != "" {
		o.DateColumn = req.DateColumn
	}
	return o
}

// Candidates resolves the files a read would open, without opening them.
func (d *Directory) Candidates(req ReadRequest) ([]Candidate, error) {
	return d.candidates(req, d.settings(req))
}

func (d *Directory) candidates(req ReadRequest, o Options) ([]Candidate, error) {
	if req.AllFiles {
		return ListFiles(d.path, o.Pattern)
	}

	sel, err := d.selector(req, o)
	if err != nil {
		return nil, err
	}
	return Resolve(d.path, o.Pattern, o.DateFormat, sel)
}

func (d *Directory) selector(req ReadRequest, o Options) (Selector, error) {
	sel := Selector{Calendar: o.Calendar, Location: o.Location}

	parse := func(field string, v any) (*time.Time, error) {
		if v == nil {
			return nil, nil
		}
		if s, ok := v.(string); ok && s == "" {
			return nil, nil
		}
		t, err := timeutils.Parse(v, o.Location)
		if err != nil {
			return nil, &ConfigurationError{Field: field, Reason: fmt.Sprintf("%v", v), Err: err}
		}
		return &t, nil
	}

	var err error
	if sel.Start, err = parse("start", req.Start); err != nil {
		return sel, err
	}
	if sel.End, err = parse("end", req.End); err != nil {
		return sel, err
	}

	if req.Dates != nil {
		sel.Dates = make([]time.Time, 0, len(req.Dates))
		for _, v := range req.Dates {
			t, err := timeutils.Parse(v, o.Location)
			if err != nil {
				return sel, &ConfigurationError{Field: "dates", Reason: fmt.Sprintf("%v", v), Err: err}
			}
			sel.Dates = append(sel.Dates, t)
		}
	}

	return sel, nil
}

// Read resolves, reads and concatenates. Missing or unreadable files are
// reported in the Report and never fail the call. A SchemaConflictError or
// ErrUnknownSortKey is returned together with the report so its problems
// stay visible.
func (d *Directory) Read(ctx context.Context, req ReadRequest) (*Report, error) {
	timer := metrics.NewTimer()
	o := d.settings(req)

	stage := metrics.NewTimer()
	candidates, err := d.candidates(req, o)
	if err != nil {
		return nil, err
	}
	stage.ObserveDuration(metrics.DirectoryReadDuration.WithLabelValues("resolve"))

	d.log.Info("reading directory",
		zap.Int("files", len(candidates)),
		zap.String("pattern", o.Pattern),
		zap.Int("workers", o.Workers))

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	stage = metrics.NewTimer()
	pool := NewWorkerPool(o.Workers, o.Reader, d.log)
	outcomes := pool.ReadAll(ctx, candidates)
	stage.ObserveDuration(metrics.DirectoryReadDuration.WithLabelValues("read"))

	report := &Report{Candidates: len(candidates)}
	for _, out := range outcomes {
		switch {
		case out.Problem != nil:
			report.Problems = append(report.Problems, *out.Problem)
		case out.Status == StatusEmpty:
			report.Empty++
		default:
			report.FilesRead++
		}
	}

	if len(report.Problems) > 0 {
		d.log.Warn("some files were skipped",
			zap.Int("missing", len(report.Missing())),
			zap.Int("failed", len(report.Failed())),
			zap.Int("skipped", len(report.Problems)))
	}

	stage = metrics.NewTimer()
	frame, err := Concatenate(outcomes, ConcatOptions{
		Schema:     o.Schema,
		SortKey:    o.SortKey,
		DateColumn: o.DateColumn,
	})
	stage.ObserveDuration(metrics.DirectoryReadDuration.WithLabelValues("concat"))
	report.Elapsed = timer.Elapsed()

	if err != nil {
		var conflict *SchemaConflictError
		if errors.As(err, &conflict) {
			d.log.Error("schema conflict", zap.String("column", conflict.Column), zap.Strings("paths", conflict.Paths))
		}
		return report, err
	}

	report.Frame = frame

	d.log.Info("directory read",
		zap.Int("rows", frame.Len()),
		zap.Int("files_read", report.FilesRead),
		zap.Duration("elapsed", report.Elapsed))

	return report, nil
}
