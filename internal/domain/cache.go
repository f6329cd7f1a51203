package domain

import (
	"context"
	"time"
)

// GlobalScope is the cache/bus scope for data not owned by one user,
// such as the leaderboard.
const GlobalScope = "*"

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods take a scope: a user ID, or GlobalScope for shared keys.
// Replaces any process-global mutable state so tests run in isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, scope string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, scope string, key string) error

	// GetSummary retrieves a cached reward summary for a user.
	GetSummary(ctx context.Context, userID string) (*RewardSummary, error)

	// SetSummary caches a reward summary.
	SetSummary(ctx context.Context, userID string, summary *RewardSummary, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the
	// new value. Used to track alert-check passes per window.
	IncrementCounter(ctx context.Context, scope string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `yaml:"localMaxSize"`
	LocalTTL     time.Duration `yaml:"localTTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enableTwoPhase"` // If true, check local first, then Redis
}
