// Package repository walks a repository and decides which files are worth
// ranking.
package repository

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/config"
	"github.com/Whopus/Repox/internal/rank"
)

// IgnoreFileName holds extra exclude patterns, one per line.
const IgnoreFileName = ".repoxignore"

var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".o": true, ".a": true, ".obj": true, ".class": true, ".jar": true,
	".pyc": true, ".pyo": true, ".wasm": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true,
}

// Analyzer applies the exclude rules to a repository tree.
type Analyzer struct {
	root         string
	maxFileSize  int64
	dirThreshold int
	skipDirs     map[string]bool
	excludes     *ignore.GitIgnore
	logger       *zap.Logger
}

func NewAnalyzer(root string, cfg config.RepositoryConfig, logger *zap.Logger) (*Analyzer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path %s is not a directory", abs)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	patterns := append([]string{}, cfg.ExcludePatterns...)
	extra, err := readIgnoreFile(filepath.Join(abs, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, extra...)

	skip := make(map[string]bool, len(cfg.SkipLargeDirs))
	for _, name := range cfg.SkipLargeDirs {
		skip[name] = true
	}

	return &Analyzer{
		root:         abs,
		maxFileSize:  cfg.MaxFileSize,
		dirThreshold: cfg.LargeDirThreshold,
		skipDirs:     skip,
		excludes:     ignore.CompileIgnoreLines(patterns...),
		logger:       logger,
	}, nil
}

func (a *Analyzer) Root() string {
	return a.root
}

// ProcessableFiles walks the tree and returns every rankable file with its
// size, sorted by path.
func (a *Analyzer) ProcessableFiles() ([]rank.Candidate, error) {
	var candidates []rank.Candidate

	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == a.root {
				return err
			}
			a.logger.Debug("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == a.root {
			return nil
		}

		rel := a.rel(path)
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if a.excluded(rel, true) || a.isLargeDir(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || a.excluded(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > a.maxFileSize {
			return nil
		}
		if a.isBinary(path) {
			return nil
		}

		candidates = append(candidates, rank.Candidate{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, nil
}

// Paths is ProcessableFiles without the sizes.
func (a *Analyzer) Paths() ([]string, error) {
	candidates, err := a.ProcessableFiles()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}
	return paths, nil
}

// Rejection explains why a requested path cannot be used.
type Rejection struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s (%s)", r.Path, r.Reason)
}

// Validate splits paths into usable files and rejections. Accepted paths
// are returned repository-relative with forward slashes, and pass the same
// rules as ProcessableFiles.
func (a *Analyzer) Validate(paths []string) ([]string, []Rejection) {
	var valid []string
	var invalid []Rejection

	for _, p := range paths {
		rel, ok := a.contained(p)
		if !ok {
			invalid = append(invalid, Rejection{p, "outside repository"})
			continue
		}

		full := filepath.Join(a.root, filepath.FromSlash(rel))
		info, err := os.Lstat(full)
		switch {
		case err != nil:
			invalid = append(invalid, Rejection{p, "not found"})
		case !info.Mode().IsRegular():
			invalid = append(invalid, Rejection{p, "not a file"})
		case hidden(rel):
			invalid = append(invalid, Rejection{p, "hidden"})
		case a.excluded(rel, false):
			invalid = append(invalid, Rejection{p, "excluded by patterns"})
		case info.Size() > a.maxFileSize:
			invalid = append(invalid, Rejection{p, fmt.Sprintf("too large - %d bytes", info.Size())})
		case a.isBinary(full):
			invalid = append(invalid, Rejection{p, "binary"})
		default:
			valid = append(valid, rel)
		}
	}
	return valid, invalid
}

// contained resolves p against the root. Paths that leave the root are
// refused.
func (a *Analyzer) contained(p string) (string, bool) {
	var rel string
	if filepath.IsAbs(p) {
		r, err := filepath.Rel(a.root, filepath.Clean(p))
		if err != nil {
			return "", false
		}
		rel = r
	} else {
		rel = filepath.Clean(filepath.FromSlash(p))
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// hidden reports whether any segment of rel starts with a dot.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (a *Analyzer) rel(path string) string {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (a *Analyzer) excluded(rel string, dir bool) bool {
	if dir {
		return a.excludes.MatchesPath(rel + "/")
	}
	return a.excludes.MatchesPath(rel)
}

// isLargeDir is never applied to the root itself.
func (a *Analyzer) isLargeDir(path, name string) bool {
	if a.skipDirs[name] {
		return true
	}
	if a.dirThreshold <= 0 {
		return false
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return true
	}
	return len(entries) > a.dirThreshold
}

func (a *Analyzer) isBinary(path string) bool {
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return true
	}
	return rank.IsBinary(head[:n])
}

func readIgnoreFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}
