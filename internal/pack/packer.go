// Package pack assembles ranked file excerpts into a context document that
// fits a token budget.
package pack

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/extract"
	"github.com/Whopus/Repox/internal/types"
)

const (
	// DefaultContextChars mirrors the default max_context_size setting.
	DefaultContextChars = 50000
	// DefaultMinChars is the smallest truncated excerpt worth including.
	DefaultMinChars = 100
	// CharsPerToken is the fixed token estimate ratio.
	CharsPerToken = 4

	TruncationMarker = "\n... [truncated]"
)

// Budget bounds a packing run. A zero MinChars takes the default; a zero
// Tokens budget packs nothing.
type Budget struct {
	Tokens   int
	MinChars int
}

// DefaultBudget returns the budget for the default context size.
func DefaultBudget() Budget {
	return Budget{Tokens: DefaultContextChars / CharsPerToken, MinChars: DefaultMinChars}
}

// BudgetForContext converts a character allowance into a token budget.
func BudgetForContext(maxContextChars int) Budget {
	return Budget{Tokens: maxContextChars / CharsPerToken, MinChars: DefaultMinChars}
}

// FileContent is one ranked file's extracted chunks.
type FileContent struct {
	Path   string
	Chunks []types.ContentChunk
}

// Packer greedily fills the budget in rank order.
type Packer struct {
	budget Budget
	logger *zap.Logger
}

func NewPacker(budget Budget, logger *zap.Logger) *Packer {
	defaults := DefaultBudget()
	if budget.Tokens < 0 {
		budget.Tokens = 0
	}
	if budget.MinChars <= 0 {
		budget.MinChars = defaults.MinChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packer{budget: budget, logger: logger}
}

func (p *Packer) Budget() Budget {
	return p.budget
}

// Pack appends whole files while they fit, then at most one truncated file.
// The returned TotalTokens never exceeds the budget.
func (p *Packer) Pack(files []FileContent) *types.PackedContext {
	return p.PackPaths(pathsOf(files), func(i int) []types.ContentChunk {
		return files[i].Chunks
	})
}

// PackPaths packs paths in order, calling load for a file's chunks only
// while the packer still accepts input.
func (p *Packer) PackPaths(paths []string, load func(i int) []types.ContentChunk) *types.PackedContext {
	packed := &types.PackedContext{
		Entries: []types.PackedEntry{},
		Budget:  p.budget.Tokens,
		State:   types.StateAccumulating,
	}

	for i, path := range paths {
		if packed.State == types.StateDone {
			packed.Dropped = append(packed.Dropped, paths[i:]...)
			break
		}

		text := extract.Joined(load(i))
		if text == "" {
			continue
		}
		tokens := extract.EstimateTokens(text)

		if packed.TotalTokens+tokens <= p.budget.Tokens {
			packed.Entries = append(packed.Entries, types.PackedEntry{
				File:    path,
				Content: text,
				Tokens:  tokens,
			})
			packed.TotalTokens += tokens
			continue
		}

		remaining := (p.budget.Tokens - packed.TotalTokens) * CharsPerToken
		if remaining > p.budget.MinChars {
			packed.State = types.StateTruncating
			packed.Entries = append(packed.Entries, types.PackedEntry{
				File:      path,
				Content:   prefixRunes(text, remaining) + TruncationMarker,
				Tokens:    p.budget.Tokens - packed.TotalTokens,
				Truncated: true,
			})
			packed.TotalTokens = p.budget.Tokens
			p.logger.Debug("truncated final file",
				zap.String("file", path),
				zap.Int("kept_chars", remaining),
				zap.Int("file_tokens", tokens))
		} else {
			packed.Dropped = append(packed.Dropped, path)
		}
		packed.State = types.StateDone
	}
	packed.State = types.StateDone

	p.logger.Debug("packed context",
		zap.Int("files", len(packed.Entries)),
		zap.Int("tokens", packed.TotalTokens),
		zap.Int("budget", packed.Budget),
		zap.Int("dropped", len(packed.Dropped)))

	return packed
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func pathsOf(files []FileContent) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}
