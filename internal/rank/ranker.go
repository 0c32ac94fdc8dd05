package rank

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Whopus/Repox/internal/query"
)

const (
	DefaultTopK          = 15
	DefaultPathWeight    = 0.3
	DefaultContentWeight = 0.6
)

// FileScore is the immutable ranking record of one file.
type FileScore struct {
	Path          string     `json:"path"`
	Size          int64      `json:"size"`
	PathScore     float64    `json:"path_score"`
	ContentScore  float64    `json:"content_score"`
	ContentSource Provenance `json:"content_source"`
	SizePenalty   float64    `json:"size_penalty"`
	FinalScore    float64    `json:"final_score"`
}

// Reasoning summarizes the score components.
func (f FileScore) Reasoning() string {
	return fmt.Sprintf("Path: %.2f, Content: %.2f (%s), Size penalty: %.2f",
		f.PathScore, f.ContentScore, f.ContentSource, f.SizePenalty)
}

// Ranking is the full order of a ranking run, best first.
type Ranking struct {
	Query  query.Query `json:"-"`
	Scores []FileScore `json:"scores"`
}

// Top returns the first k scores. k <= 0 selects DefaultTopK.
func (r *Ranking) Top(k int) []FileScore {
	if k <= 0 {
		k = DefaultTopK
	}
	if k > len(r.Scores) {
		k = len(r.Scores)
	}
	return r.Scores[:k]
}

func (r *Ranking) Len() int {
	return len(r.Scores)
}

type Options struct {
	Workers       int
	PathWeight    float64
	ContentWeight float64
	Penalty       PenaltyTable
}

func DefaultOptions() Options {
	return Options{
		Workers:       runtime.NumCPU(),
		PathWeight:    DefaultPathWeight,
		ContentWeight: DefaultContentWeight,
		Penalty:       DefaultPenalty,
	}
}

// Ranker combines path, content and size signals into one order.
type Ranker struct {
	paths   *PathScorer
	sampler *Sampler
	content *ContentScorer
	opts    Options
	logger  *zap.Logger
}

func NewRanker(sampler *Sampler, content *ContentScorer, opts Options, logger *zap.Logger) *Ranker {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if len(opts.Penalty.Steps) == 0 {
		opts.Penalty = DefaultPenalty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if content == nil {
		content = NewContentScorer(nil, ContentOptions{}, logger)
	}
	return &Ranker{
		paths:   NewPathScorer(),
		sampler: sampler,
		content: content,
		opts:    opts,
		logger:  logger,
	}
}

type fileSignals struct {
	raw     float64
	size    int64
	sample  string
	missing bool
}

// Rank scores every candidate and sorts them by final score, keeping the
// candidate order among ties.
func (r *Ranker) Rank(ctx context.Context, q query.Query, candidates []Candidate) (*Ranking, error) {
	ranking := &Ranking{Query: q, Scores: []FileScore{}}
	if len(candidates) == 0 {
		return ranking, nil
	}

	r.logger.Debug("Ranking candidates",
		zap.Int("files", len(candidates)),
		zap.String("class", q.Class.String()),
		zap.Strings("keywords", q.Keywords))

	signals := make([]fileSignals, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			signals[i] = r.collect(q, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	raw := make([]float64, len(signals))
	samples := make([]Sample, len(signals))
	for i, s := range signals {
		raw[i] = s.raw
		samples[i] = Sample{Path: candidates[i].Path, Text: s.sample}
	}
	pathScores := Normalize(raw)

	contentScores := r.content.Score(ctx, q, samples)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, c := range candidates {
		cs := contentScores[c.Path]
		penalty := r.opts.Penalty.Apply(signals[i].size)
		final := Combine(pathScores[i], cs.Value, penalty, r.opts.PathWeight, r.opts.ContentWeight)
		if signals[i].missing {
			final = 0
		}
		ranking.Scores = append(ranking.Scores, FileScore{
			Path:          c.Path,
			Size:          signals[i].size,
			PathScore:     pathScores[i],
			ContentScore:  cs.Value,
			ContentSource: cs.Source,
			SizePenalty:   penalty,
			FinalScore:    final,
		})
	}

	sort.SliceStable(ranking.Scores, func(i, j int) bool {
		return ranking.Scores[i].FinalScore > ranking.Scores[j].FinalScore
	})

	return ranking, nil
}

func (r *Ranker) collect(q query.Query, c Candidate) fileSignals {
	s := fileSignals{raw: r.paths.Raw(q, c.Path), size: c.Size}

	if r.sampler == nil {
		if s.size < 0 {
			s.size = 0
		}
		return s
	}

	size, ok := r.sampler.Size(c.Path)
	if !ok {
		r.logger.Debug("Candidate unreadable", zap.String("path", c.Path))
		s.size = 0
		s.missing = true
		return s
	}
	if s.size < 0 {
		s.size = size
	}
	s.sample = r.sampler.Sample(c.Path)
	return s
}

// Combine weights the path and content scores and applies the size penalty.
func Combine(pathScore, contentScore, penalty, pathWeight, contentWeight float64) float64 {
	return (pathScore*pathWeight + contentScore*contentWeight) * penalty
}
