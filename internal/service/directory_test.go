package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/storage/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	deletes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrCacheCorrupt, err)
	}
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes++
	return nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	c.sets++
	return nil
}

type recordingLoader struct {
	table string
	frame *domain.Frame
	err   error
}

func (l *recordingLoader) LoadFrame(ctx context.Context, table string, frame *domain.Frame) (int64, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.table = table
	l.frame = frame
	return int64(frame.Len()), nil
}

func setupDataDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "quotes")
	require.NoError(t, os.Mkdir(dir, 0o755))

	files := map[string]string{
		"2024-01-01.csv": "code,px\n600000,10.1\n",
		"2024-01-02.csv": "code,px\n600000,10.2\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return root
}

func newService(root string) *DirectoryService {
	return NewDirectoryService(root, ingestion.Options{Location: time.UTC}, nil)
}

func TestDirectoryServiceReadUsesCache(t *testing.T) {
	root := setupDataDir(t)
	c := newMemoryCache()
	svc := newService(root).WithCache(c)

	req := Request{Directory: "quotes", Start: "2024-01-01", End: "2024-01-03"}

	first, cached, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, first.Frame.Len())
	assert.Len(t, first.Problems, 1)
	assert.Equal(t, 1, c.sets)

	second, cached, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Frame.Names(), second.Frame.Names())
	assert.Equal(t, first.Frame.Len(), second.Frame.Len())
	assert.Equal(t, first.Problems[0].Path, second.Problems[0].Path)
	assert.Equal(t, "10.2", ingestion.FormatCell(second.Frame.Rows[1][1]))

	other := req
	other.End = "2024-01-02"
	_, cached, err = svc.Read(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestDirectoryServiceEvictsCorruptEntries(t *testing.T) {
	root := setupDataDir(t)
	c := newMemoryCache()
	svc := newService(root).WithCache(c)

	req := Request{Directory: "quotes", Start: "2024-01-01", End: "2024-01-02"}

	_, _, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, c.data, 1)

	for key := range c.data {
		c.data[key] = []byte("{")
	}

	report, cached, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, report.Frame.Len())
	assert.Equal(t, 1, c.deletes)
	assert.Equal(t, 2, c.sets)

	_, cached, err = svc.Read(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestDirectoryServiceRejectsEscapes(t *testing.T) {
	root := setupDataDir(t)
	svc := newService(root)

	_, _, err := svc.Read(context.Background(), Request{Directory: "../", Start: "2024-01-01", End: "2024-01-01"})
	assert.ErrorIs(t, err, ErrOutsideDataDir)

	_, err = svc.Resolve(context.Background(), Request{Directory: "/etc", Start: "2024-01-01", End: "2024-01-01"})
	assert.ErrorIs(t, err, ErrOutsideDataDir)

	_, err = svc.Resolve(context.Background(), Request{Directory: "missing"})
	assert.ErrorIs(t, err, ingestion.ErrNotADirectory)
	assert.Contains(t, err.Error(), "missing")
	assert.NotContains(t, err.Error(), root)
}

func TestDirectoryServiceResolve(t *testing.T) {
	root := setupDataDir(t)
	svc := newService(root)

	candidates, err := svc.Resolve(context.Background(), Request{
		Directory:    filepath.Join(root, "quotes"),
		Start:        "2024-01-05",
		End:          "2024-01-08",
		BusinessDays: true,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "2024-01-05.csv", filepath.Base(candidates[0].Path))
	assert.Equal(t, "2024-01-08.csv", filepath.Base(candidates[1].Path))
}

func TestDirectoryServiceLoad(t *testing.T) {
	root := setupDataDir(t)
	req := Request{Directory: "quotes", Start: "2024-01-01", End: "2024-01-02", DateColumn: "trade_date"}

	_, err := newService(root).Load(context.Background(), req, "quotes")
	assert.ErrorIs(t, err, ErrLoaderUnavailable)

	loader := &recordingLoader{}
	svc := newService(root).WithLoader(loader)

	_, err = svc.Load(context.Background(), req, "quotes; DROP TABLE x")
	assert.ErrorIs(t, err, ErrInvalidTableName)

	result, err := svc.Load(context.Background(), req, "market.daily_quotes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Rows)
	assert.Equal(t, 2, result.FilesRead)
	assert.Equal(t, "market.daily_quotes", loader.table)
	assert.Equal(t, []string{"code", "px", "trade_date"}, loader.frame.Names())

	failing := newService(root).WithLoader(&recordingLoader{err: errors.New("connection refused")})
	_, err = failing.Load(context.Background(), req, "quotes")
	assert.Error(t, err)
}

func TestValidTableName(t *testing.T) {
	assert.True(t, validTableName("quotes"))
	assert.True(t, validTableName("market.quotes_2024"))
	assert.False(t, validTableName(""))
	assert.False(t, validTableName("2024quotes"))
	assert.False(t, validTableName("market..quotes"))
	assert.False(t, validTableName("quotes-daily"))
}

func TestCachePattern(t *testing.T) {
	assert.Equal(t, "directory:*", CachePattern(""))
	assert.Equal(t, "directory:ab*", CachePattern("ab*"))
}
