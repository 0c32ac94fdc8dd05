// Package cache memoizes external relevance scores.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/checksum"
	"github.com/Whopus/Repox/internal/rank"
	"github.com/Whopus/Repox/internal/storage"
)

// Store is the persistence ScoreCache needs. storage.Redis implements it.
type Store interface {
	GetScores(ctx context.Context, keys []string) (map[string]float64, error)
	SetScores(ctx context.Context, scores map[string]float64, ttl time.Duration) error
	Stats(ctx context.Context) (*storage.CacheStats, error)
	Clear(ctx context.Context) (int64, error)
}

// ScoreCache wraps a rank.Scorer and serves repeated (model, question,
// path, sample) lookups from the store.
type ScoreCache struct {
	inner  rank.Scorer
	store  Store
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

var _ rank.Scorer = (*ScoreCache)(nil)

func NewScoreCache(inner rank.Scorer, store Store, model string, ttl time.Duration, logger *zap.Logger) *ScoreCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreCache{inner: inner, store: store, model: model, ttl: ttl, logger: logger}
}

// Key is the cache key of one sample.
func Key(model, question, path, sample string) string {
	return checksum.String(model + "\x00" + question + "\x00" + path + "\x00" + sample)
}

// Score answers cached samples from the store and forwards only the misses.
// When the inner scorer fails after some hits, the hits are returned and the
// misses are left out so they fall back individually.
func (c *ScoreCache) Score(ctx context.Context, req rank.ScoreRequest) (map[string]float64, error) {
	keys := make([]string, len(req.Samples))
	for i, s := range req.Samples {
		keys[i] = Key(c.model, req.Question, s.Path, s.Text)
	}

	cached, err := c.store.GetScores(ctx, keys)
	if err != nil {
		c.logger.Warn("Score cache read failed", zap.Error(err))
		cached = nil
	}

	scores := make(map[string]float64, len(req.Samples))
	missReq := rank.ScoreRequest{Question: req.Question, Keywords: req.Keywords}
	missKeys := make(map[string]string)
	for i, s := range req.Samples {
		if v, ok := cached[keys[i]]; ok {
			scores[s.Path] = v
			continue
		}
		missReq.Samples = append(missReq.Samples, s)
		missKeys[s.Path] = keys[i]
	}

	c.logger.Debug("score cache lookup",
		zap.Int("hits", len(scores)),
		zap.Int("misses", len(missReq.Samples)))

	if len(missReq.Samples) == 0 {
		return scores, nil
	}

	fresh, err := c.inner.Score(ctx, missReq)
	if err != nil {
		if len(scores) == 0 {
			return nil, err
		}
		c.logger.Warn("Content scoring failed for uncached files",
			zap.Int("files", len(missReq.Samples)),
			zap.Error(err))
		return scores, nil
	}

	toStore := make(map[string]float64, len(fresh))
	for path, v := range fresh {
		key, ok := missKeys[path]
		if !ok {
			continue
		}
		scores[path] = v
		toStore[key] = v
	}

	if err := c.store.SetScores(ctx, toStore, c.ttl); err != nil {
		c.logger.Warn("Score cache write failed", zap.Error(err))
	}

	return scores, nil
}

func (c *ScoreCache) Stats(ctx context.Context) (*storage.CacheStats, error) {
	return c.store.Stats(ctx)
}

func (c *ScoreCache) Clear(ctx context.Context) (int64, error) {
	return c.store.Clear(ctx)
}
