package query

import (
	"regexp"
	"strings"
)

// MaxKeywords bounds the keyword set of a single question.
const MaxKeywords = 10

var wordPattern = regexp.MustCompile(`\b\w+\b`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "how": true, "what": true, "where": true,
	"when": true, "why": true, "is": true, "are": true, "was": true,
	"were": true, "do": true, "does": true, "did": true,
}

// ExtractKeywords returns at most MaxKeywords lowercase terms of the query in
// order of first appearance. Stop words and terms of two characters or fewer
// are dropped.
func ExtractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	seen := make(map[string]bool, len(words))
	keywords := []string{}
	for _, word := range words {
		if len(word) <= 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == MaxKeywords {
			break
		}
	}

	return keywords
}

// Query is a question with its derived keyword set and class.
type Query struct {
	Text     string
	Lower    string
	Keywords []string
	Class    Class
}

func Parse(text string) Query {
	return Query{
		Text:     text,
		Lower:    strings.ToLower(text),
		Keywords: ExtractKeywords(text),
		Class:    Classify(text),
	}
}

// Mentions reports whether the lowercased question contains term.
func (q Query) Mentions(term string) bool {
	return strings.Contains(q.Lower, term)
}
