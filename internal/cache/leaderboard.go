// Package cache keeps computed leaderboards in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
)

// Custom error types
var (
	ErrCacheMiss     = errors.New("cache: key not found")
	ErrInvalidConfig = errors.New("cache: invalid configuration")
)

// Config holds the configuration for the Redis client
type Config struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	KeyPrefix   string
	ConnTimeout time.Duration
}

// LeaderboardCache stores one ranked list per window
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewLeaderboardCache connects to Redis and checks the connection
func NewLeaderboardCache(ctx context.Context, cfg Config) (*LeaderboardCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 3,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewLeaderboardCacheFromClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewLeaderboardCacheFromClient wraps an existing client
func NewLeaderboardCacheFromClient(client *redis.Client, ttl time.Duration, prefix string) *LeaderboardCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "collabdesk:"
	}
	return &LeaderboardCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *LeaderboardCache) key(w ranking.Window) string {
	return c.prefix + "leaderboard:" + string(w)
}

// Get returns the cached leaderboard of a window or ErrCacheMiss
func (c *LeaderboardCache) Get(ctx context.Context, w ranking.Window) ([]models.LeaderboardEntry, error) {
	raw, err := c.client.Get(ctx, c.key(w)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard %s: %w", w, err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard %s: %w", w, err)
	}
	return entries, nil
}

// Set stores the leaderboard of a window for the configured TTL
func (c *LeaderboardCache) Set(ctx context.Context, w ranking.Window, entries []models.LeaderboardEntry) error {
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard %s: %w", w, err)
	}
	if err := c.client.Set(ctx, c.key(w), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set leaderboard %s: %w", w, err)
	}
	return nil
}

// Invalidate drops every cached window
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	keys := make([]string, len(ranking.Windows))
	for i, w := range ranking.Windows {
		keys[i] = c.key(w)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboards: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable
func (c *LeaderboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}
