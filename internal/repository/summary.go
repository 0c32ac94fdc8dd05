package repository

import (
	"path/filepath"
	"sort"
	"strings"
)

const noExtension = "(no extension)"

var languageNames = map[string]string{
	".py": "Python", ".js": "JavaScript", ".ts": "TypeScript",
	".java": "Java", ".cpp": "C++", ".c": "C", ".cs": "C#",
	".go": "Go", ".rs": "Rust", ".php": "PHP", ".rb": "Ruby",
	".swift": "Swift", ".kt": "Kotlin", ".scala": "Scala",
	".html": "HTML", ".css": "CSS", ".scss": "SCSS",
	".json": "JSON", ".xml": "XML", ".yaml": "YAML", ".yml": "YAML",
	".md": "Markdown", ".txt": "Text", ".sh": "Shell",
	".sql": "SQL", ".r": "R", ".m": "MATLAB",
}

// FileSize is a path with its byte size.
type FileSize struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Summary describes the processable part of a repository.
type Summary struct {
	Root         string         `json:"repository_path"`
	TotalFiles   int            `json:"total_files"`
	TotalSize    int64          `json:"total_size"`
	FileTypes    map[string]int `json:"file_types"`
	Languages    []string       `json:"languages"`
	LargestFiles []FileSize     `json:"largest_files"`
}

// Summary aggregates ProcessableFiles by extension and size.
func (a *Analyzer) Summary() (*Summary, error) {
	candidates, err := a.ProcessableFiles()
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Root:      a.root,
		FileTypes: make(map[string]int),
	}
	languages := make(map[string]bool)
	sizes := make([]FileSize, 0, len(candidates))

	for _, c := range candidates {
		s.TotalFiles++
		s.TotalSize += c.Size
		sizes = append(sizes, FileSize{Path: c.Path, Size: c.Size})

		ext := strings.ToLower(filepath.Ext(c.Path))
		if ext == "" {
			s.FileTypes[noExtension]++
			continue
		}
		s.FileTypes[ext]++
		languages[LanguageName(ext)] = true
	}

	for lang := range languages {
		s.Languages = append(s.Languages, lang)
	}
	sort.Strings(s.Languages)

	sort.SliceStable(sizes, func(i, j int) bool { return sizes[i].Size > sizes[j].Size })
	s.LargestFiles = sizes[:min(10, len(sizes))]

	return s, nil
}

// LanguageName maps an extension to a display language. Unknown
// extensions are upper-cased without the dot.
func LanguageName(ext string) string {
	ext = strings.ToLower(ext)
	if name, ok := languageNames[ext]; ok {
		return name
	}
	return strings.ToUpper(strings.TrimPrefix(ext, "."))
}

// SortedTypes returns extension counts ordered by count, then extension.
func (s *Summary) SortedTypes() []TypeCount {
	types := make([]TypeCount, 0, len(s.FileTypes))
	for ext, n := range s.FileTypes {
		types = append(types, TypeCount{Ext: ext, Count: n})
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Count != types[j].Count {
			return types[i].Count > types[j].Count
		}
		return types[i].Ext < types[j].Ext
	})
	return types
}

type TypeCount struct {
	Ext   string `json:"ext"`
	Count int    `json:"count"`
}
