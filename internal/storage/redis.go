// Package storage holds the Redis score cache and the sqlite question
// history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScoreKeyPrefix namespaces cached content scores.
const ScoreKeyPrefix = "repox:score:"

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("not found in cache")

// Redis stores float scores under a key prefix.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// CacheStats summarizes the cached entries.
type CacheStats struct {
	Entries    int64  `json:"entries"`
	MemoryUsed string `json:"memory_used,omitempty"`
}

// NewRedis connects to url (redis://host:port/db) and checks the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, keyPrefix: ScoreKeyPrefix}, nil
}

// GetScore returns the score cached under key, or ErrCacheMiss.
func (r *Redis) GetScore(ctx context.Context, key string) (float64, error) {
	raw, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	} else if err != nil {
		return 0, fmt.Errorf("failed to get score: %w", err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse cached score %q: %w", raw, err)
	}
	return v, nil
}

// GetScores fetches many keys in one round trip. Missing or unparseable
// entries are left out of the result.
func (r *Redis) GetScores(ctx context.Context, keys []string) (map[string]float64, error) {
	if len(keys) == 0 {
		return map[string]float64{}, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.keyPrefix + k
	}

	values, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get scores: %w", err)
	}

	out := make(map[string]float64, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out[keys[i]] = f
		}
	}
	return out, nil
}

// SetScores writes every score with the same ttl in one pipeline.
func (r *Redis) SetScores(ctx context.Context, scores map[string]float64, ttl time.Duration) error {
	if len(scores) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for k, v := range scores {
		pipe.Set(ctx, r.keyPrefix+k, strconv.FormatFloat(v, 'f', -1, 64), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache scores: %w", err)
	}
	return nil
}

// Clear removes every key under the prefix and returns how many were removed.
func (r *Redis) Clear(ctx context.Context) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
		removed += n
	}
	return removed, iter.Err()
}

// Stats counts cached entries. Memory usage is best effort.
func (r *Redis) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Entries++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache: %w", err)
	}

	if info, err := r.client.Info(ctx, "memory").Result(); err == nil {
		stats.MemoryUsed = infoField(info, "used_memory_human")
	}

	return stats, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func infoField(info, name string) string {
	for _, line := range strings.Split(info, "\n") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(line), name+":"); ok {
			return value
		}
	}
	return ""
}
