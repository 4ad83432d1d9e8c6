package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"matchBack/internal/models"
)

type fakeCache struct {
	data   map[string]string
	getErr error
	sets   int
}

func (f *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.sets++
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Infof(string, ...interface{}) {}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

type countingSource struct {
	entries []models.CatalogEntry
	err     error
	calls   int
}

func (s *countingSource) ActiveEntries(context.Context) ([]models.CatalogEntry, error) {
	s.calls++
	return s.entries, s.err
}

func TestCachedCatalogReadThrough(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{entries: []models.CatalogEntry{{ID: 1, Name: "Boost x5", ProductType: "consumable", AndroidProductID: "boost_5", Active: true}}}
	cache := &fakeCache{data: map[string]string{}}
	logger := &recordingLogger{}
	c := NewCachedCatalog(src, cache, time.Minute, logger)

	for i := 0; i < 3; i++ {
		got, err := c.ActiveEntries(ctx)
		if err != nil {
			t.Fatalf("ActiveEntries: %v", err)
		}
		if len(got) != 1 || got[0].AndroidProductID != "boost_5" {
			t.Fatalf("unexpected entries: %+v", got)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := c.ActiveEntries(ctx); err != nil {
		t.Fatalf("ActiveEntries: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", src.calls)
	}
}

func TestCachedCatalogRedisDown(t *testing.T) {
	src := &countingSource{entries: []models.CatalogEntry{{ID: 1, Name: "x"}}}
	cache := &fakeCache{data: map[string]string{}, getErr: errors.New("connection refused")}
	logger := &recordingLogger{}
	c := NewCachedCatalog(src, cache, time.Minute, logger)

	got, err := c.ActiveEntries(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("expected source rows, got %v, %v", got, err)
	}
	if len(logger.errors) == 0 || !strings.Contains(logger.errors[0], "connection refused") {
		t.Fatalf("redis failure should reach the logger, got %v", logger.errors)
	}
}

func TestCachedCatalogSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	cache := &fakeCache{data: map[string]string{}}
	logger := &recordingLogger{}
	c := NewCachedCatalog(src, cache, time.Minute, logger)

	if _, err := c.ActiveEntries(context.Background()); err == nil {
		t.Fatal("expected source error")
	}
	if cache.sets != 0 {
		t.Fatal("failed loads must not be cached")
	}
}
