package rank

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/Whopus/Repox/internal/query"
)

// PathScorer scores a file from its path alone.
type PathScorer struct {
	extPriorities  map[query.Class]map[string]float64
	namePriorities map[query.Class][]namePattern
}

type namePattern struct {
	prefix string
	suffix string
	weight float64
}

func NewPathScorer() *PathScorer {
	return &PathScorer{
		extPriorities: map[query.Class]map[string]float64{
			query.ClassImplementation: {".py": 1.0, ".js": 1.0, ".ts": 1.0, ".java": 1.0, ".cpp": 0.9, ".c": 0.9},
			query.ClassConfiguration:  {".json": 1.0, ".yaml": 1.0, ".yml": 1.0, ".toml": 1.0, ".ini": 0.8, ".cfg": 0.8},
			query.ClassDocumentation:  {".md": 1.0, ".rst": 0.9, ".txt": 0.7},
		},
		namePriorities: map[query.Class][]namePattern{
			query.ClassTesting: {
				{prefix: "test_", weight: 1.0},
				{suffix: "_test", weight: 1.0},
				{prefix: "spec_", weight: 0.9},
				{suffix: "_spec", weight: 0.9},
			},
		},
	}
}

// Raw returns the unnormalized score of one path.
func (p *PathScorer) Raw(q query.Query, filePath string) float64 {
	pathLower := strings.ToLower(filepath.ToSlash(filePath))
	segments := strings.Split(pathLower, "/")

	score := 0.0
	for _, keyword := range q.Keywords {
		if strings.Contains(pathLower, keyword) {
			score += 1.0
		} else if containsSegment(segments, keyword) {
			score += 0.5
		}
	}

	score += p.typeBonus(q.Class, pathLower)

	if q.Mentions("test") && containsAny(pathLower, "test", "spec") {
		score += 1.0
	}
	if q.Mentions("config") && containsAny(pathLower, "config", "setting", "env") {
		score += 1.0
	}
	if q.Mentions("api") && containsAny(pathLower, "api", "endpoint", "route") {
		score += 1.0
	}

	return score
}

func (p *PathScorer) typeBonus(class query.Class, pathLower string) float64 {
	if table, ok := p.extPriorities[class]; ok {
		return table[path.Ext(pathLower)]
	}

	base := path.Base(pathLower)
	stem := strings.TrimSuffix(base, path.Ext(base))

	best := 0.0
	for _, np := range p.namePriorities[class] {
		hit := (np.prefix != "" && strings.HasPrefix(stem, np.prefix)) ||
			(np.suffix != "" && strings.HasSuffix(stem, np.suffix))
		if hit && np.weight > best {
			best = np.weight
		}
	}
	return best
}

// ScoreAll returns batch-normalized path scores in input order.
func (p *PathScorer) ScoreAll(q query.Query, paths []string) []float64 {
	raw := make([]float64, len(paths))
	for i, fp := range paths {
		raw[i] = p.Raw(q, fp)
	}
	return Normalize(raw)
}

// Normalize divides every score by the batch maximum in place. A batch whose
// maximum is zero is left untouched.
func Normalize(scores []float64) []float64 {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return scores
	}
	for i := range scores {
		scores[i] /= max
	}
	return scores
}

func containsSegment(segments []string, keyword string) bool {
	for _, s := range segments {
		if s == keyword {
			return true
		}
	}
	return false
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
