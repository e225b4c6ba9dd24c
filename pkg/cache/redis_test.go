package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("Addr = %v, want %v", cfg.Addr, "localhost:6379")
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %v, want %v", cfg.PoolSize, 10)
	}
	if cfg.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want %v", cfg.ReadTimeout, 3*time.Second)
	}
}

func TestConfigFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
		wantErr  bool
	}{
		{"host only", "redis://localhost:6379", "localhost:6379", "", 0, false},
		{"with db", "redis://cache.internal:6380/2", "cache.internal:6380", "", 2, false},
		{"with password", "redis://:s3cret@cache.internal:6379/1", "cache.internal:6379", "s3cret", 1, false},
		{"wrong scheme", "http://localhost:6379", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ConfigFromURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfigFromURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Addr != tt.addr {
				t.Errorf("Addr = %v, want %v", cfg.Addr, tt.addr)
			}
			if cfg.Password != tt.password {
				t.Errorf("Password = %v, want %v", cfg.Password, tt.password)
			}
			if cfg.DB != tt.db {
				t.Errorf("DB = %v, want %v", cfg.DB, tt.db)
			}
			if cfg.PoolSize != 10 {
				t.Errorf("PoolSize = %v, want default 10", cfg.PoolSize)
			}
		})
	}
}

func TestPrefixKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{"no prefix", "", "mykey", "mykey"},
		{"with prefix", "cache", "mykey", "cache:mykey"},
		{"empty key", "prefix", "", "prefix:"},
		{"complex prefix", "perftrace:v1", "analysis:abc", "perftrace:v1:analysis:abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prefixKey(tt.prefix, tt.key); got != tt.want {
				t.Errorf("prefixKey(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"string value", "hello", "hello"},
		{"byte slice", []byte("bytes"), "bytes"},
		{"struct value", struct{ Name string }{"test"}, `{"Name":"test"}`},
		{"int value", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(tt.value)
			if err != nil {
				t.Fatalf("encodeValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("encodeValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnect_InvalidAddress(t *testing.T) {
	cfg := &Config{
		Addr:         "invalid:99999",
		PoolSize:     1,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := Connect(ctx, cfg); err == nil {
		t.Error("expected error when connecting to invalid address")
	}
}

// memoryKV is an in-process KV for exercising CacheAside without Redis.
type memoryKV struct {
	data    map[string]string
	getErr  error
	setErr  error
	sets    int
	lastTTL time.Duration
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.data[key], nil
}

func (m *memoryKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	m.data[key] = data
	m.sets++
	m.lastTTL = expiration
	return nil
}

func (m *memoryKV) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type report struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCacheAside_MissThenHit(t *testing.T) {
	kv := newMemoryKV()
	ca := NewCacheAside[*report](kv, 5*time.Minute).WithLogger(discard())
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (*report, error) {
		calls++
		return &report{ID: "r1", Duration: 3.5}, nil
	}

	got, hit, err := ca.Get(ctx, "k", loader)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hit {
		t.Error("first Get() hit = true, want false")
	}
	if got.ID != "r1" {
		t.Errorf("Get().ID = %v, want r1", got.ID)
	}
	if kv.lastTTL != 5*time.Minute {
		t.Errorf("TTL = %v, want %v", kv.lastTTL, 5*time.Minute)
	}

	got, hit, err = ca.Get(ctx, "k", loader)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !hit {
		t.Error("second Get() hit = false, want true")
	}
	if got.Duration != 3.5 {
		t.Errorf("Get().Duration = %v, want 3.5", got.Duration)
	}
	if calls != 1 {
		t.Errorf("loader calls = %d, want 1", calls)
	}
}

func TestCacheAside_KeyFunc(t *testing.T) {
	kv := newMemoryKV()
	ca := NewCacheAside[report](kv, time.Minute).
		WithLogger(discard()).
		WithKeyFunc(func(k string) string { return "analysis:" + k })

	_, _, err := ca.Get(context.Background(), "abc", func(ctx context.Context) (report, error) {
		return report{ID: "x"}, nil
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := kv.data["analysis:abc"]; !ok {
		t.Errorf("keys = %v, want analysis:abc", kv.data)
	}

	if err := ca.Invalidate(context.Background(), "abc"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if len(kv.data) != 0 {
		t.Errorf("keys after Invalidate = %v, want none", kv.data)
	}
}

func TestCacheAside_BackendFailuresFallThrough(t *testing.T) {
	kv := newMemoryKV()
	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	ca := NewCacheAside[report](kv, time.Minute).WithLogger(discard())

	got, hit, err := ca.Get(context.Background(), "k", func(ctx context.Context) (report, error) {
		return report{ID: "fresh"}, nil
	})
	if err != nil {
		t.Fatalf("Get() error = %v, want nil when the cache is down", err)
	}
	if hit {
		t.Error("hit = true, want false")
	}
	if got.ID != "fresh" {
		t.Errorf("Get().ID = %v, want fresh", got.ID)
	}
}

func TestCacheAside_LoaderErrorNotCached(t *testing.T) {
	kv := newMemoryKV()
	ca := NewCacheAside[report](kv, time.Minute).WithLogger(discard())
	wantErr := errors.New("boom")

	_, _, err := ca.Get(context.Background(), "k", func(ctx context.Context) (report, error) {
		return report{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Get() error = %v, want %v", err, wantErr)
	}
	if kv.sets != 0 {
		t.Errorf("sets = %d, want 0", kv.sets)
	}
}

func TestCacheAside_UndecodableEntryReloads(t *testing.T) {
	kv := newMemoryKV()
	kv.data["k"] = "{not json"
	ca := NewCacheAside[report](kv, time.Minute).WithLogger(discard())

	got, hit, err := ca.Get(context.Background(), "k", func(ctx context.Context) (report, error) {
		return report{ID: "reloaded"}, nil
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hit || got.ID != "reloaded" {
		t.Errorf("Get() = %+v, hit %v; want reloaded, miss", got, hit)
	}
}
