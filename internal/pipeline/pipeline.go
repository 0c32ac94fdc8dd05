// Package pipeline wires repository analysis, ranking, extraction and
// packing into the single operation every command builds on.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/config"
	"github.com/Whopus/Repox/internal/extract"
	"github.com/Whopus/Repox/internal/pack"
	"github.com/Whopus/Repox/internal/query"
	"github.com/Whopus/Repox/internal/rank"
	"github.com/Whopus/Repox/internal/repository"
	"github.com/Whopus/Repox/internal/types"
)

// Result is everything a question produced before answer generation.
type Result struct {
	Query    query.Query          `json:"-"`
	Ranking  *rank.Ranking        `json:"ranking"`
	Selected []rank.FileScore     `json:"selected"`
	Packed   *types.PackedContext `json:"packed"`
	Rendered string               `json:"-"`
	Elapsed  time.Duration        `json:"elapsed"`
}

type Pipeline struct {
	analyzer  *repository.Analyzer
	sampler   *rank.Sampler
	ranker    *rank.Ranker
	extractor *extract.Extractor
	packer    *pack.Packer
	limit     int
	logger    *zap.Logger
}

// New builds a pipeline over root. A nil scorer ranks content with the
// local keyword fallback only.
func New(root string, cfg *config.Config, scorer rank.Scorer, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	analyzer, err := repository.NewAnalyzer(root, cfg.Repository, logger)
	if err != nil {
		return nil, err
	}

	sampler := rank.NewSampler(analyzer.Root(), cfg.Ranking.MaxSampleLines, cfg.Repository.MaxFileSize)
	content := rank.NewContentScorer(scorer, rank.ContentOptions{
		BatchSize:   cfg.Ranking.BatchSize,
		SampleChars: cfg.Ranking.SampleChars,
		Timeout:     cfg.ScoringTimeout(),
	}, logger)

	ranker := rank.NewRanker(sampler, content, rank.Options{
		Workers:       cfg.Ranking.Workers,
		PathWeight:    cfg.Ranking.PathWeight,
		ContentWeight: cfg.Ranking.ContentWeight,
		Penalty:       penaltyTable(cfg.Ranking.SizePenalty),
	}, logger)

	budget := pack.BudgetForContext(cfg.Context.MaxContextSize)
	if cfg.Context.MinTruncationChars > 0 {
		budget.MinChars = cfg.Context.MinTruncationChars
	}

	return &Pipeline{
		analyzer:  analyzer,
		sampler:   sampler,
		ranker:    ranker,
		extractor: extract.NewExtractor(),
		packer:    pack.NewPacker(budget, logger),
		limit:     cfg.SelectionLimit(),
		logger:    logger,
	}, nil
}

func (p *Pipeline) Analyzer() *repository.Analyzer {
	return p.analyzer
}

// Rank scores every processable file against question.
func (p *Pipeline) Rank(ctx context.Context, question string) (*rank.Ranking, error) {
	candidates, err := p.analyzer.ProcessableFiles()
	if err != nil {
		return nil, err
	}

	q := query.Parse(question)
	p.logger.Debug("ranking repository",
		zap.String("class", q.Class.String()),
		zap.Strings("keywords", q.Keywords),
		zap.Int("candidates", len(candidates)))

	return p.ranker.Rank(ctx, q, candidates)
}

// Build ranks, selects, extracts and packs the context for question.
func (p *Pipeline) Build(ctx context.Context, question string) (*Result, error) {
	start := time.Now()

	ranking, err := p.Rank(ctx, question)
	if err != nil {
		return nil, err
	}
	return p.pack(question, ranking, relevant(ranking.Top(p.limit)), start), nil
}

func penaltyTable(c config.SizePenaltyConfig) rank.PenaltyTable {
	steps := make([]rank.PenaltyStep, len(c.Steps))
	for i, s := range c.Steps {
		steps[i] = rank.PenaltyStep{Below: s.Below, Factor: s.Factor}
	}
	return rank.PenaltyTable{Steps: steps, Floor: c.Floor}
}

// relevant drops zero-score files, so a question nothing matches packs an
// empty context.
func relevant(scores []rank.FileScore) []rank.FileScore {
	out := make([]rank.FileScore, 0, len(scores))
	for _, s := range scores {
		if s.FinalScore > 0 {
			out = append(out, s)
		}
	}
	return out
}

// BuildFiles packs an explicit file list instead of the whole repository.
// Unusable paths are returned as rejections. The accepted files are still
// ranked so the budget goes to the most relevant ones first.
func (p *Pipeline) BuildFiles(ctx context.Context, question string, files []string) (*Result, []repository.Rejection, error) {
	start := time.Now()

	valid, rejected := p.analyzer.Validate(files)
	q := query.Parse(question)
	ranking, err := p.ranker.Rank(ctx, q, rank.Candidates(valid...))
	if err != nil {
		return nil, rejected, err
	}
	return p.pack(question, ranking, ranking.Scores, start), rejected, nil
}

func (p *Pipeline) pack(question string, ranking *rank.Ranking, selected []rank.FileScore, start time.Time) *Result {
	paths := make([]string, len(selected))
	for i, fs := range selected {
		paths[i] = fs.Path
	}

	keywords := ranking.Query.Keywords
	packed := p.packer.PackPaths(paths, func(i int) []types.ContentChunk {
		content, ok := p.sampler.Read(paths[i])
		if !ok {
			p.logger.Debug("skipping unreadable selection", zap.String("file", paths[i]))
			return nil
		}
		return p.extractor.Extract(paths[i], content, keywords)
	})

	return &Result{
		Query:    ranking.Query,
		Ranking:  ranking,
		Selected: selected,
		Packed:   packed,
		Rendered: pack.Render(question, packed),
		Elapsed:  time.Since(start),
	}
}
