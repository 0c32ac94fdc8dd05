package rank

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/query"
)

const (
	DefaultBatchSize   = 50
	DefaultSampleChars = 1000
)

// Sample pairs a path with its content sample.
type Sample struct {
	Path string
	Text string
}

// ScoreRequest is one round trip to a Scorer.
type ScoreRequest struct {
	Question string
	Keywords []string
	Samples  []Sample
}

// Scorer rates how relevant each sample is to the question. Implementations
// may omit paths and may return values outside [0,1]; both are tolerated by
// ContentScorer. Any error sends the whole batch to the local fallback.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (map[string]float64, error)
}

// Provenance records where a content score came from.
type Provenance int

const (
	ProvenanceNone Provenance = iota
	ProvenanceExternal
	ProvenanceFallback
)

func (p Provenance) String() string {
	return [...]string{"none", "external", "fallback"}[p]
}

func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ContentScore is a content relevance value in [0,1] and its source.
type ContentScore struct {
	Value  float64    `json:"value"`
	Source Provenance `json:"source"`
}

// ContentScorer turns samples into content scores.
type ContentScorer struct {
	scorer      Scorer
	batchSize   int
	sampleChars int
	timeout     time.Duration
	logger      *zap.Logger
}

type ContentOptions struct {
	BatchSize   int
	SampleChars int
	Timeout     time.Duration
}

// NewContentScorer wraps scorer. A nil scorer scores everything locally.
func NewContentScorer(scorer Scorer, opts ContentOptions, logger *zap.Logger) *ContentScorer {
	if opts.BatchSize <= 0 || opts.BatchSize > DefaultBatchSize {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.SampleChars <= 0 {
		opts.SampleChars = DefaultSampleChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentScorer{
		scorer:      scorer,
		batchSize:   opts.BatchSize,
		sampleChars: opts.SampleChars,
		timeout:     opts.Timeout,
		logger:      logger,
	}
}

// Score returns one ContentScore per sample path. Empty samples score zero
// with ProvenanceNone and are never sent to the Scorer.
func (cs *ContentScorer) Score(ctx context.Context, q query.Query, samples []Sample) map[string]ContentScore {
	scores := make(map[string]ContentScore, len(samples))

	usable := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Text == "" {
			scores[s.Path] = ContentScore{Source: ProvenanceNone}
			continue
		}
		usable = append(usable, s)
	}

	for start := 0; start < len(usable); start += cs.batchSize {
		end := min(start+cs.batchSize, len(usable))
		cs.scoreBatch(ctx, q, usable[start:end], scores)
	}

	return scores
}

func (cs *ContentScorer) scoreBatch(ctx context.Context, q query.Query, batch []Sample, out map[string]ContentScore) {
	external, err := cs.callScorer(ctx, q, batch)
	if err != nil {
		cs.logger.Warn("Content scoring failed, using keyword fallback",
			zap.Int("files", len(batch)),
			zap.Error(err))
	}

	missing := 0
	for _, s := range batch {
		if v, ok := external[s.Path]; ok && err == nil {
			out[s.Path] = ContentScore{Value: clamp01(v), Source: ProvenanceExternal}
			continue
		}
		if err == nil {
			missing++
		}
		out[s.Path] = ContentScore{Value: FallbackScore(q.Keywords, s.Text), Source: ProvenanceFallback}
	}

	if missing > 0 {
		cs.logger.Debug("Scorer omitted files, scored locally", zap.Int("files", missing))
	}
}

func (cs *ContentScorer) callScorer(ctx context.Context, q query.Query, batch []Sample) (map[string]float64, error) {
	if cs.scorer == nil {
		return nil, fmt.Errorf("no scorer configured")
	}

	if cs.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cs.timeout)
		defer cancel()
	}

	req := ScoreRequest{
		Question: q.Text,
		Keywords: q.Keywords,
		Samples:  make([]Sample, len(batch)),
	}
	for i, s := range batch {
		req.Samples[i] = Sample{Path: s.Path, Text: truncateRunes(s.Text, cs.sampleChars)}
	}

	return cs.scorer.Score(ctx, req)
}

// FallbackScore counts keyword hits in the sample. Each keyword contributes
// at most 1.0, the sum is normalized per 1000 characters and capped at 1.0.
func FallbackScore(keywords []string, sample string) float64 {
	length := utf8.RuneCountInString(sample)
	if length == 0 {
		return 0
	}

	lower := strings.ToLower(sample)
	score := 0.0
	for _, kw := range keywords {
		score += min(float64(strings.Count(lower, kw))*0.1, 1.0)
	}

	score /= float64(length) / 1000
	return min(score, 1.0)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
