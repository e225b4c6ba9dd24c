// Package cache provides Redis-based caching utilities.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ConfigFromURL builds a Config from a redis:// URL, keeping the default pool settings.
func ConfigFromURL(rawURL string) (*Config, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Addr = opts.Addr
	cfg.Password = opts.Password
	cfg.DB = opts.DB
	return cfg, nil
}

// KV is the subset of a key-value store CacheAside needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Client wraps redis.Client with key prefixing and JSON values.
type Client struct {
	*redis.Client
	logger    *slog.Logger
	keyPrefix string
}

// Connect creates a new Redis connection.
func Connect(ctx context.Context, cfg *Config) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{
		Client: client,
		logger: slog.Default(),
	}, nil
}

// WithLogger sets the logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithKeyPrefix sets a prefix for all keys.
func (c *Client) WithKeyPrefix(prefix string) *Client {
	c.keyPrefix = prefix
	return c
}

func (c *Client) prefixedKey(key string) string {
	return prefixKey(c.keyPrefix, key)
}

func prefixKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// Get retrieves a value from the cache. A missing key yields "" and no error.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	result, err := c.Client.Get(ctx, c.prefixedKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return result, err
}

// Set stores a value with an expiration. Values other than strings and
// byte slices are stored as JSON.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.prefixedKey(key), data, expiration).Err()
}

func encodeValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(b), nil
	}
}

// Delete removes keys from the cache.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.prefixedKey(k)
	}
	return c.Client.Del(ctx, prefixedKeys...).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// CacheAside implements the cache-aside pattern over JSON-encoded values.
// Cache failures are logged and never fail the caller; the loader result is returned instead.
type CacheAside[T any] struct {
	kv         KV
	defaultTTL time.Duration
	keyFunc    func(key string) string
	logger     *slog.Logger
}

// NewCacheAside creates a new cache-aside helper.
func NewCacheAside[T any](kv KV, ttl time.Duration) *CacheAside[T] {
	return &CacheAside[T]{
		kv:         kv,
		defaultTTL: ttl,
		keyFunc:    func(k string) string { return k },
		logger:     slog.Default(),
	}
}

// WithKeyFunc sets a custom key transformation function.
func (ca *CacheAside[T]) WithKeyFunc(fn func(string) string) *CacheAside[T] {
	ca.keyFunc = fn
	return ca
}

// WithLogger sets the logger used for cache failures.
func (ca *CacheAside[T]) WithLogger(logger *slog.Logger) *CacheAside[T] {
	ca.logger = logger
	return ca
}

// Get returns the cached value for key, or calls loader and caches its result.
// The second return value reports a cache hit.
func (ca *CacheAside[T]) Get(ctx context.Context, key string, loader func(ctx context.Context) (T, error)) (T, bool, error) {
	cacheKey := ca.keyFunc(key)

	var result T
	data, err := ca.kv.Get(ctx, cacheKey)
	if err != nil {
		ca.logger.WarnContext(ctx, "cache get failed", "key", cacheKey, "error", err)
	} else if data != "" {
		if err := json.Unmarshal([]byte(data), &result); err == nil {
			return result, true, nil
		}
		ca.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", cacheKey)
	}

	result, err = loader(ctx)
	if err != nil {
		return result, false, err
	}

	if err := ca.kv.Set(ctx, cacheKey, result, ca.defaultTTL); err != nil {
		ca.logger.WarnContext(ctx, "cache set failed", "key", cacheKey, "error", err)
	}

	return result, false, nil
}

// Invalidate removes a key from the cache.
func (ca *CacheAside[T]) Invalidate(ctx context.Context, key string) error {
	return ca.kv.Delete(ctx, ca.keyFunc(key))
}
