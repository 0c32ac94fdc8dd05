package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Whopus/Repox/internal/repository"
)

var matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

// highlight renders the matched byte offsets of path in matchStyle.
func highlight(path string, indexes []int) string {
	if len(indexes) == 0 {
		return path
	}
	hit := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		hit[i] = true
	}

	var b strings.Builder
	for i, r := range path {
		if hit[i] {
			b.WriteString(matchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// runFind searches paths by fuzzy name or, with content set, by the terms
// derived from pattern.
func runFind(w io.Writer, a *repository.Analyzer, pattern string, content bool, limit int, format string) error {
	paths, err := a.Paths()
	if err != nil {
		return err
	}

	if !content {
		matches := repository.FuzzyFind(pattern, paths, limit)
		switch format {
		case "json":
			return writeJSON(w, matches)
		case "simple":
			for _, m := range matches {
				fmt.Fprintln(w, m.Path)
			}
			return nil
		}
		if len(matches) == 0 {
			fmt.Fprintf(w, "No files match %q.\n", pattern)
			return nil
		}
		for _, m := range matches {
			fmt.Fprintln(w, highlight(m.Path, m.Indexes))
		}
		return nil
	}

	terms := repository.SearchTerms(pattern)
	if len(terms) == 0 {
		terms = []string{pattern}
	}
	found := a.SearchContent(terms, paths)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	switch format {
	case "json":
		return writeJSON(w, found)
	case "simple":
		for _, f := range found {
			for _, m := range f.Matches {
				fmt.Fprintf(w, "%s:%d:%s\n", f.Path, m.Line, m.Text)
			}
		}
		return nil
	}

	if len(found) == 0 {
		fmt.Fprintf(w, "No content matches for %s.\n", strings.Join(terms, ", "))
		return nil
	}
	fmt.Fprintln(w, dimStyle.Render("Search terms: "+strings.Join(terms, ", ")))
	for _, f := range found {
		fmt.Fprintln(w)
		fmt.Fprintln(w, pathStyle.Render(f.Path))
		for _, m := range f.Matches {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%4d:", m.Line)), truncateString(m.Text, 100))
		}
	}
	return nil
}
