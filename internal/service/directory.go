package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/storage/cache"
	"github.com/jeovahfialho/lntools/internal/timeutils"
	"github.com/jeovahfialho/lntools/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrOutsideDataDir    = errors.New("directory is outside the data directory")
	ErrLoaderUnavailable = errors.New("database loader not configured")
	ErrInvalidTableName  = errors.New("invalid table name")
)

const (
	cacheKeyPrefix = "directory:"
	cacheKeyDigits = 32
)

// ReportCache stores JSON-encoded reports. RedisCache satisfies it.
type ReportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error
	Delete(ctx context.Context, key string) error
}

type FrameLoader interface {
	LoadFrame(ctx context.Context, table string, frame *domain.Frame) (int64, error)
}

// Request is the transport form of a directory read. Start, End and Dates
// accept strings or YYYYMMDD numbers.
type Request struct {
	Directory    string        `json:"directory"`
	Start        any           `json:"start,omitempty"`
	End          any           `json:"end,omitempty"`
	Dates        []any         `json:"dates,omitempty"`
	AllFiles     bool          `json:"all_files,omitempty"`
	Pattern      string        `json:"pattern,omitempty"`
	DateFormat   string        `json:"date_format,omitempty"`
	Workers      int           `json:"workers,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	BusinessDays bool          `json:"business_days,omitempty"`
	SortKey      string        `json:"sort_key,omitempty"`
	DateColumn   string        `json:"date_column,omitempty"`
}

func (r Request) readRequest() ingestion.ReadRequest {
	return ingestion.ReadRequest{
		Start:      r.Start,
		End:        r.End,
		Dates:      r.Dates,
		AllFiles:   r.AllFiles,
		Pattern:    r.Pattern,
		DateFormat: r.DateFormat,
		Workers:    r.Workers,
		Timeout:    r.Timeout,
		SortKey:    r.SortKey,
		DateColumn: r.DateColumn,
	}
}

type LoadResult struct {
	Table     string              `json:"table"`
	Rows      int64               `json:"rows"`
	FilesRead int                 `json:"files_read"`
	Problems  []ingestion.Problem `json:"problems"`
}

type DirectoryService struct {
	opts     ingestion.Options
	root     string
	business timeutils.Calendar
	cache    ReportCache
	loader   FrameLoader
	log      *zap.Logger
}

// NewDirectoryService serves reads below root. An empty root allows any
// directory.
func NewDirectoryService(root string, opts ingestion.Options, log *zap.Logger) *DirectoryService {
	if log == nil {
		log = zap.NewNop()
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	opts.Logger = log
	return &DirectoryService{
		opts:     opts,
		root:     root,
		business: timeutils.NewBusinessCalendar(),
		log:      log,
	}
}

func (s *DirectoryService) WithCache(c ReportCache) *DirectoryService {
	s.cache = c
	return s
}

func (s *DirectoryService) WithLoader(l FrameLoader) *DirectoryService {
	s.loader = l
	return s
}

// WithBusinessCalendar sets the calendar used by business-day requests.
func (s *DirectoryService) WithBusinessCalendar(cal timeutils.Calendar) *DirectoryService {
	if cal != nil {
		s.business = cal
	}
	return s
}

func (s *DirectoryService) Root() string {
	return s.root
}

func (s *DirectoryService) open(req Request) (*ingestion.Directory, ingestion.ReadRequest, error) {
	path, err := s.resolvePath(req.Directory)
	if err != nil {
		return nil, ingestion.ReadRequest{}, err
	}

	dir, err := ingestion.NewDirectory(path, s.opts)
	if err != nil {
		// Keep the data root out of errors that reach clients.
		if s.root != "" && errors.Is(err, ingestion.ErrNotADirectory) {
			s.log.Debug("directory not found", zap.String("path", path), zap.Error(err))
			return nil, ingestion.ReadRequest{}, fmt.Errorf("%w: %s", ingestion.ErrNotADirectory, req.Directory)
		}
		return nil, ingestion.ReadRequest{}, err
	}

	rr := req.readRequest()
	if req.BusinessDays {
		rr.Calendar = s.business
	}
	return dir, rr, nil
}

func (s *DirectoryService) resolvePath(dir string) (string, error) {
	if s.root == "" {
		if dir == "" {
			return "", &ingestion.ConfigurationError{Field: "directory", Reason: "required"}
		}
		return dir, nil
	}

	path := dir
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDataDir, dir)
	}
	return path, nil
}

func (s *DirectoryService) Resolve(ctx context.Context, req Request) ([]ingestion.Candidate, error) {
	dir, rr, err := s.open(req)
	if err != nil {
		return nil, err
	}
	return dir.Candidates(rr)
}

// Read serves a report, from the cache when possible. The second result
// reports a cache hit.
func (s *DirectoryService) Read(ctx context.Context, req Request) (*ingestion.Report, bool, error) {
	dir, rr, err := s.open(req)
	if err != nil {
		return nil, false, err
	}

	key := s.cacheKey(dir.Path(), req)

	if s.cache != nil {
		var cached ingestion.Report
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			metrics.RecordCacheHit()
			s.log.Debug("report served from cache", zap.String("key", key))
			return &cached, true, nil
		}
		switch {
		case errors.Is(err, cache.ErrCacheCorrupt):
			s.log.Warn("evicting undecodable cache entry", zap.String("key", key), zap.Error(err))
			if err := s.cache.Delete(ctx, key); err != nil {
				s.log.Warn("cache eviction failed", zap.String("key", key), zap.Error(err))
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			s.log.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		metrics.RecordCacheMiss()
	}

	report, err := dir.Read(ctx, rr)
	if err != nil {
		return report, false, err
	}

	if s.cache != nil && !report.HasTimeouts() {
		if err := s.cache.Set(ctx, key, report); err != nil {
			s.log.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		}
	}

	return report, false, nil
}

// Load reads the directory and copies the aggregate into table.
func (s *DirectoryService) Load(ctx context.Context, req Request, table string) (*LoadResult, error) {
	if s.loader == nil {
		return nil, ErrLoaderUnavailable
	}
	if !validTableName(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}

	dir, rr, err := s.open(req)
	if err != nil {
		return nil, err
	}

	report, err := dir.Read(ctx, rr)
	if err != nil {
		return nil, err
	}

	rows, err := s.loader.LoadFrame(ctx, table, report.Frame)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}

	s.log.Info("directory loaded",
		zap.String("table", table),
		zap.Int64("rows", rows),
		zap.Int("files_read", report.FilesRead))

	return &LoadResult{
		Table:     table,
		Rows:      rows,
		FilesRead: report.FilesRead,
		Problems:  report.Problems,
	}, nil
}

// cacheKey hashes the request. Open-ended ranges include today's date so
// they roll over at midnight.
func (s *DirectoryService) cacheKey(path string, req Request) string {
	req.Directory = path
	payload, _ := json.Marshal(req)

	h := sha256.New()
	h.Write(payload)
	if req.End == nil && !req.AllFiles {
		loc := s.opts.Location
		if loc == nil {
			loc = timeutils.BusinessLocation()
		}
		h.Write([]byte(timeutils.Today(loc).Format("2006-01-02")))
	}

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))[:cacheKeyDigits]
}

// CachePattern turns a user pattern into a key glob inside the report
// namespace.
func CachePattern(pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	return cacheKeyPrefix + pattern
}

func validTableName(table string) bool {
	if table == "" {
		return false
	}
	for _, part := range strings.Split(table, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}
