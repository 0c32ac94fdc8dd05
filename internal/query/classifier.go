package query

import (
	"strings"
)

// Class labels the intent of a question. It selects the file-type priors
// used by path scoring.
type Class int

const (
	ClassImplementation Class = iota
	ClassConfiguration
	ClassDocumentation
	ClassTesting
)

func (c Class) String() string {
	return [...]string{
		"implementation",
		"configuration",
		"documentation",
		"testing",
	}[c]
}

// ParseClass maps a class name back to its value. Unknown names fall back to
// ClassImplementation.
func ParseClass(name string) Class {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "configuration":
		return ClassConfiguration
	case "documentation":
		return ClassDocumentation
	case "testing":
		return ClassTesting
	default:
		return ClassImplementation
	}
}

type termGroup struct {
	class Class
	terms []string
}

// Classifier checks term groups in priority order. The first group with a
// hit decides the class.
type Classifier struct {
	groups   []termGroup
	fallback Class
}

func QuerySheriff() *Classifier {
	return &Classifier{
		groups: []termGroup{
			{class: ClassTesting, terms: []string{"test", "testing", "spec", "unit test"}},
			{class: ClassConfiguration, terms: []string{"config", "configuration", "setting", "setup"}},
			{class: ClassDocumentation, terms: []string{"document", "readme", "guide", "how to"}},
		},
		fallback: ClassImplementation,
	}
}

func (c *Classifier) Classify(query string) Class {
	queryLower := strings.ToLower(query)

	for _, g := range c.groups {
		if containsAny(queryLower, g.terms) {
			return g.class
		}
	}

	return c.fallback
}

var defaultClassifier = QuerySheriff()

// Classify labels query with the default term groups.
func Classify(query string) Class {
	return defaultClassifier.Classify(query)
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
