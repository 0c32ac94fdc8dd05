package pack

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Whopus/Repox/internal/types"
)

const documentTitle = "# Repository Context (Hierarchically Filtered)"

var fenceLanguages = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".cpp":  "cpp",
	".c":    "c",
	".h":    "c",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".ini":  "ini",
	".cfg":  "ini",
	".go":   "go",
}

// Language returns the fence tag for a file path.
func Language(path string) string {
	if lang, ok := fenceLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// Render formats packed entries as a markdown document in pack order.
func Render(question string, packed *types.PackedContext) string {
	var b strings.Builder

	b.WriteString(documentTitle + "\n")
	fmt.Fprintf(&b, "**Question:** %s\n", question)

	entries := 0
	if packed != nil {
		entries = len(packed.Entries)
	}
	fmt.Fprintf(&b, "**Files analyzed:** %d\n\n", entries)

	if packed == nil {
		return b.String()
	}

	for _, e := range packed.Entries {
		fmt.Fprintf(&b, "## File: %s\n", e.File)
		fmt.Fprintf(&b, "```%s\n", Language(e.File))
		b.WriteString(e.Content)
		b.WriteString("\n```\n\n")
	}

	return b.String()
}
