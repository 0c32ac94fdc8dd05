// Package rank scores candidate files against a question and orders them.
//
// Path scoring, sampling and size lookup run on a bounded worker pool. The
// content scorer delegates to an injected Scorer and falls back to local
// keyword counting per file when the Scorer fails or omits a path.
package rank

import (
	"path"
	"path/filepath"
	"strings"
)

// Candidate is a repository-relative file offered for ranking. A negative
// Size means the size has not been read yet.
type Candidate struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Candidates builds candidates with unknown sizes.
func Candidates(paths ...string) []Candidate {
	out := make([]Candidate, len(paths))
	for i, p := range paths {
		out[i] = Candidate{Path: p, Size: -1}
	}
	return out
}

// Ext returns the lowercased extension including the dot.
func (c Candidate) Ext() string {
	return strings.ToLower(path.Ext(filepath.ToSlash(c.Path)))
}
