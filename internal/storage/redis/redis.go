package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/timetrack/internal/config"
	"github.com/goodtune/timetrack/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "timetrack:"
	defaultCacheSize = 512
)

// Store implements the storage.Store interface using Redis.
//
// Reads go through a write-through LRU cache. The tracker assumes it is the
// only writer for its keys, so cached values are never invalidated from the
// outside.
type Store struct {
	client   *redis.Client
	prefix   string
	indexKey string
	cache    *lru.Cache[string, []byte]
	setValue *redis.Script
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create read cache: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &Store{
		client:   client,
		prefix:   prefix,
		indexKey: prefix + "index",
		cache:    cache,
		setValue: redis.NewScript(setValueScript),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the value stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := s.cache.Get(key); ok {
		return append([]byte(nil), value...), nil
	}

	value, err := s.client.Get(ctx, s.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, value)
	return append([]byte(nil), value...), nil
}

// Set stores value under key and records the key in the index set
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	keys := []string{s.valueKey(key), s.indexKey}
	if err := s.setValue.Run(ctx, s.client, keys, key, value).Err(); err != nil {
		s.cache.Remove(key)
		return err
	}

	s.cache.Add(key, append([]byte(nil), value...))
	return nil
}

// Keys returns every key recorded in the index set
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.indexKey).Result()
}

func (s *Store) valueKey(key string) string {
	return s.prefix + "kv:" + key
}
