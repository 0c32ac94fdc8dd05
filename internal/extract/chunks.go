// Package extract cuts a selected file down to the lines most likely to
// answer a question.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Whopus/Repox/internal/types"
)

const (
	// SmallFileChars is the size below which files are kept whole.
	SmallFileChars = 2000
	// FallbackLines is how much of a file is kept when nothing matched.
	FallbackLines = 50
)

var definitionPrefixes = []string{"def ", "class ", "function ", "const ", "let ", "var "}

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#\s*Table of Contents`),
	regexp.MustCompile(`^#\s*Installation`),
	regexp.MustCompile(`^#\s*License`),
	regexp.MustCompile(`^#\s*Contributing`),
	regexp.MustCompile(`^\s*\*\s*\[.*\]\(.*\)`),
	regexp.MustCompile("^\\s*```\\s*$"),
	regexp.MustCompile(`^\s*---\s*$`),
}

// Extractor selects keyword and definition runs from file content.
type Extractor struct {
	smallFile     int
	fallbackLines int
}

func NewExtractor() *Extractor {
	return &Extractor{smallFile: SmallFileChars, fallbackLines: FallbackLines}
}

// Extract returns the relevant chunks of content in line order. Files under
// the small-file threshold come back as a single cleaned chunk.
func (e *Extractor) Extract(path, content string, keywords []string) []types.ContentChunk {
	if utf8.RuneCountInString(content) < e.smallFile {
		return []types.ContentChunk{newChunk(path, Clean(content))}
	}

	lines := strings.Split(content, "\n")
	var runs [][]string
	var current []string
	inRun := false

	closeRun := func(keepSingle bool) {
		if len(current) > 1 || (keepSingle && len(current) > 0) {
			runs = append(runs, current)
		}
		current = nil
		inRun = false
	}

	for _, line := range lines {
		isDef := isDefinition(line)
		hasKeyword := containsKeyword(strings.ToLower(line), keywords)

		switch {
		case isDef || hasKeyword:
			inRun = true
			current = append(current, line)
		case inRun:
			current = append(current, line)
			if strings.TrimSpace(line) == "" {
				closeRun(false)
			}
		}
	}
	closeRun(true)

	chunks := make([]types.ContentChunk, 0, len(runs))
	for _, run := range runs {
		text := Clean(strings.TrimRight(strings.Join(run, "\n"), "\n"))
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, newChunk(path, text))
	}

	if len(chunks) == 0 {
		head := lines[:min(e.fallbackLines, len(lines))]
		return []types.ContentChunk{newChunk(path, Clean(strings.Join(head, "\n")))}
	}

	return chunks
}

// Clean drops boilerplate lines such as table-of-contents headers, bare
// rules, empty fences and bullet links.
func Clean(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		if isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Joined concatenates a file's chunks in order with blank-line separators.
func Joined(chunks []types.ContentChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}

// EstimateTokens approximates tokens as characters divided by four.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

func newChunk(path, text string) types.ContentChunk {
	return types.ContentChunk{File: path, Content: text, Tokens: EstimateTokens(text)}
}

func isDefinition(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range definitionPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func containsKeyword(lineLower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lineLower, kw) {
			return true
		}
	}
	return false
}

func isNoise(line string) bool {
	for _, p := range noisePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
