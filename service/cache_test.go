package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/google/go-cmp/cmp"
)

// fakeSource returns rows (or err) and counts calls
type fakeSource struct {
	mu    sync.Mutex
	rows  []model.Row
	err   error
	calls int
	delay time.Duration
}

func (f *fakeSource) FetchRows(ctx context.Context, spreadsheet, worksheet string) ([]model.Row, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeSource) set(rows []model.Row, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.err = rows, err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]model.Row
	getErr  error
	setErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]model.Row)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]model.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	rows, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return rows, nil
}

func (c *memoryCache) Set(_ context.Context, key string, rows []model.Row, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = rows
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func TestCachedSourceHitAndMiss(t *testing.T) {
	rows := []model.Row{{"Lead ID": "L001"}}
	src := &fakeSource{rows: rows}
	cached := NewCachedSource(src, newMemoryCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cached.FetchRows(ctx, "sheet", "Lead Tracker")
		if err != nil {
			t.Fatalf("FetchRows() error = %v", err)
		}
		if diff := cmp.Diff(rows, got); diff != "" {
			t.Errorf("FetchRows() mismatch (-want +got):\n%s", diff)
		}
	}
	if src.callCount() != 1 {
		t.Errorf("Expected 1 source call, got %d", src.callCount())
	}

	// a different worksheet is a different key
	if _, err := cached.FetchRows(ctx, "sheet", "Archive"); err != nil {
		t.Fatalf("FetchRows() error = %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("Expected 2 source calls, got %d", src.callCount())
	}
}

func TestCachedSourceForget(t *testing.T) {
	src := &fakeSource{rows: []model.Row{{"Lead ID": "L001"}}}
	cached := NewCachedSource(src, newMemoryCache(), time.Minute)
	ctx := context.Background()

	cached.FetchRows(ctx, "sheet", "Lead Tracker")
	if err := cached.Forget(ctx, "sheet", "Lead Tracker"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}

	src.set([]model.Row{{"Lead ID": "L002"}}, nil)
	got, err := cached.FetchRows(ctx, "sheet", "Lead Tracker")
	if err != nil {
		t.Fatalf("FetchRows() error = %v", err)
	}
	if got[0]["Lead ID"] != "L002" {
		t.Errorf("Expected fresh rows after Forget, got %v", got)
	}
}

func TestCachedSourceCacheFailuresFallThrough(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")

	src := &fakeSource{rows: []model.Row{{"Lead ID": "L001"}}}
	cached := NewCachedSource(src, cache, time.Minute)

	got, err := cached.FetchRows(context.Background(), "sheet", "Lead Tracker")
	if err != nil {
		t.Fatalf("FetchRows() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 row, got %d", len(got))
	}
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	cache := newMemoryCache()
	src := &fakeSource{err: ErrConnection}
	cached := NewCachedSource(src, cache, time.Minute)

	_, err := cached.FetchRows(context.Background(), "sheet", "Lead Tracker")
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
	if len(cache.entries) != 0 {
		t.Errorf("Expected empty cache, got %v", cache.entries)
	}
}

// Runs against a real redis when REDIS_ADDR is set
func TestRedisRowCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	cache := NewRedisRowCache(&config.RedisConfig{Addr: addr, KeyPrefix: "leaddash:test:"})
	defer cache.Close()
	ctx := context.Background()

	if err := cache.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	key := "sheet|Lead Tracker"
	defer cache.Delete(ctx, key)

	if _, err := cache.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Expected ErrCacheMiss, got %v", err)
	}

	rows := []model.Row{{"Lead ID": "L001", "Notes": ""}}
	if err := cache.Set(ctx, key, rows, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}
