package report

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisConfig contains settings for the Redis-backed dedupe key set.
type RedisConfig struct {
	URL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string        `yaml:"redis_key_prefix" mapstructure:"redis_key_prefix"`
	TTL       time.Duration `yaml:"redis_ttl" mapstructure:"redis_ttl"`
}

// RedisSet stores dedupe keys in a single run-scoped Redis set, for runs
// whose key population would not fit in process memory. The set key carries
// a TTL as a safety net and is deleted on Close; nothing persists across
// runs.
type RedisSet struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSet connects to Redis and prepares a fresh run-scoped set.
func NewRedisSet(cfg RedisConfig, logger *zap.Logger) (*RedisSet, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	runID := make([]byte, 8)
	if _, err := rand.Read(runID); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "piisweep"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	set := &RedisSet{
		client: client,
		key:    fmt.Sprintf("%s:dedupe:%s", prefix, hex.EncodeToString(runID)),
		ttl:    ttl,
		logger: logger,
	}

	logger.Info("Redis dedupe set initialized",
		zap.String("key", set.key),
		zap.Duration("ttl", ttl),
	)

	return set, nil
}

// Add records key via SADD; a reply of 1 means first sighting. Redis errors
// are returned to the caller and end the run (the dedupe guarantee cannot be
// kept on a broken backend).
func (r *RedisSet) Add(ctx context.Context, key string) (bool, error) {
	added, err := r.client.SAdd(ctx, r.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis SADD failed: %w", err)
	}
	if added == 1 {
		// Refresh the safety-net TTL as the set grows.
		if err := r.client.Expire(ctx, r.key, r.ttl).Err(); err != nil {
			return false, fmt.Errorf("redis EXPIRE failed: %w", err)
		}
	}
	return added == 1, nil
}

// Close deletes the run's set and closes the connection.
func (r *RedisSet) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		r.logger.Warn("Failed to delete dedupe set, TTL will expire it",
			zap.String("key", r.key),
			zap.Error(err),
		)
	}
	return r.client.Close()
}
