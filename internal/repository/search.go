package repository

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/Whopus/Repox/internal/query"
)

const contextLines = 2

var (
	quotedPattern = regexp.MustCompile(`"([^"]+)"`)
	callPattern   = regexp.MustCompile(`\b(\w+)\s*\(`)
	classPattern  = regexp.MustCompile(`(?i)\bclass\s+(\w+)`)
)

// ContentMatch is one line containing a search term.
type ContentMatch struct {
	Line    int      `json:"line_number"`
	Text    string   `json:"line_content"`
	Term    string   `json:"search_term"`
	Context []string `json:"context"`
}

// FileMatches groups the matches found in one file.
type FileMatches struct {
	Path    string         `json:"path"`
	Matches []ContentMatch `json:"matches"`
}

// PathMatch is a fuzzy hit on a file path. Indexes are the matched byte
// offsets in Path.
type PathMatch struct {
	Path    string `json:"path"`
	Score   int    `json:"score"`
	Indexes []int  `json:"-"`
}

// SearchTerms derives literal search terms from a question: its keywords,
// quoted phrases, called names and class names.
func SearchTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(term string) {
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	for _, kw := range query.ExtractKeywords(text) {
		add(kw)
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range callPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range classPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return terms
}

// SearchContent finds case-insensitive occurrences of terms in paths,
// skipping files that cannot be read. Results keep the order of paths.
func (a *Analyzer) SearchContent(terms []string, paths []string) []FileMatches {
	var results []FileMatches

	for _, p := range paths {
		lines, err := readLines(filepath.Join(a.root, filepath.FromSlash(p)))
		if err != nil {
			continue
		}

		var matches []ContentMatch
		for _, term := range terms {
			needle := strings.ToLower(term)
			for i, line := range lines {
				if !strings.Contains(strings.ToLower(line), needle) {
					continue
				}
				lo := max(0, i-contextLines)
				hi := min(len(lines), i+contextLines+1)
				matches = append(matches, ContentMatch{
					Line:    i + 1,
					Text:    strings.TrimSpace(line),
					Term:    term,
					Context: append([]string(nil), lines[lo:hi]...),
				})
			}
		}

		if len(matches) > 0 {
			results = append(results, FileMatches{Path: p, Matches: matches})
		}
	}
	return results
}

// FuzzyFind ranks paths against pattern, best match first.
func FuzzyFind(pattern string, paths []string, limit int) []PathMatch {
	found := fuzzy.Find(pattern, paths)

	out := make([]PathMatch, 0, len(found))
	for _, m := range found {
		out = append(out, PathMatch{Path: m.Str, Score: m.Score, Indexes: m.MatchedIndexes})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
