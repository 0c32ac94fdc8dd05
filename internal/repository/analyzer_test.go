package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whopus/Repox/internal/config"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func newAnalyzer(t *testing.T, root string, mutate ...func(*config.RepositoryConfig)) *Analyzer {
	t.Helper()
	cfg := config.DefaultConfig().Repository
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := NewAnalyzer(root, cfg, nil)
	require.NoError(t, err)
	return a
}

func paths(t *testing.T, a *Analyzer) []string {
	t.Helper()
	p, err := a.Paths()
	require.NoError(t, err)
	return p
}

func TestProcessableFilesFilters(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":                 "package main\n",
		"src/auth.py":             "def login(): pass\n",
		"README.md":               "# Demo\n",
		".env":                    "SECRET=1\n",
		".hidden/notes.txt":       "hidden\n",
		"node_modules/x/index.js": "module.exports = 1\n",
		"build/out.txt":           "artifact\n",
		"app.log":                 "log line\n",
		"logo.png":                "not really png",
		"data.raw":                "abc\x00def",
		"package-lock.json":       "{}",
	})

	assert.Equal(t, []string{"README.md", "main.go", "src/auth.py"}, paths(t, newAnalyzer(t, root)))
}

func TestProcessableFilesSizes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.txt": "12345",
		"big.txt":   fmt.Sprintf("%0200d", 0),
	})

	a := newAnalyzer(t, root, func(c *config.RepositoryConfig) { c.MaxFileSize = 100 })
	candidates, err := a.ProcessableFiles()
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "small.txt", candidates[0].Path)
	assert.Equal(t, int64(5), candidates[0].Size)
}

func TestLargeDirectorySkipped(t *testing.T) {
	files := map[string]string{"keep/a.go": "package keep\n"}
	for i := 0; i < 6; i++ {
		files[fmt.Sprintf("crowded/f%d.go", i)] = "package crowded\n"
	}
	root := writeTree(t, files)

	a := newAnalyzer(t, root, func(c *config.RepositoryConfig) { c.LargeDirThreshold = 5 })
	assert.Equal(t, []string{"keep/a.go"}, paths(t, a))
}

func TestRootExemptFromLargeDirRule(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 4; i++ {
		files[fmt.Sprintf("f%d.go", i)] = "package root\n"
	}
	root := writeTree(t, files)

	a := newAnalyzer(t, root, func(c *config.RepositoryConfig) { c.LargeDirThreshold = 2 })
	assert.Len(t, paths(t, a), 4)
}

func TestRepoxIgnore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".repoxignore":      "# generated\nfixtures/\n*.gen.go\n",
		"fixtures/big.json": "{}",
		"api.gen.go":        "package api\n",
		"api.go":            "package api\n",
	})

	assert.Equal(t, []string{"api.go"}, paths(t, newAnalyzer(t, root)))
}

func TestNewAnalyzerErrors(t *testing.T) {
	_, err := NewAnalyzer(filepath.Join(t.TempDir(), "missing"), config.DefaultConfig().Repository, nil)
	assert.Error(t, err)

	root := writeTree(t, map[string]string{"file.txt": "x"})
	_, err = NewAnalyzer(filepath.Join(root, "file.txt"), config.DefaultConfig().Repository, nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	root := writeTree(t, map[string]string{
		"ok.go":      "package ok\n",
		"dir/x.go":   "package dir\n",
		"secret.pem": "key",
		"huge.txt":   fmt.Sprintf("%0300d", 1),
	})
	a := newAnalyzer(t, root, func(c *config.RepositoryConfig) { c.MaxFileSize = 200 })

	valid, invalid := a.Validate([]string{"ok.go", "missing.go", "dir", "secret.pem", "huge.txt"})

	assert.Equal(t, []string{"ok.go"}, valid)
	require.Len(t, invalid, 4)
	assert.Equal(t, "missing.go (not found)", invalid[0].String())
	assert.Equal(t, "not a file", invalid[1].Reason)
	assert.Equal(t, "excluded by patterns", invalid[2].Reason)
	assert.Equal(t, "too large - 300 bytes", invalid[3].Reason)
}

func TestValidateRefusesPathsOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("TOP SECRET\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0644))
	a := newAnalyzer(t, root)

	valid, invalid := a.Validate([]string{
		"../secret.txt",
		"src/../../secret.txt",
		filepath.Join(parent, "secret.txt"),
		"./src/main.go",
		filepath.Join(a.Root(), "src", "main.go"),
	})

	assert.Equal(t, []string{"src/main.go", "src/main.go"}, valid)
	require.Len(t, invalid, 3)
	for _, r := range invalid {
		assert.Equal(t, "outside repository", r.Reason, r.Path)
	}
}

func TestValidateAppliesDiscoveryRules(t *testing.T) {
	root := writeTree(t, map[string]string{
		".env":          "TOKEN=x\n",
		".git/config":   "[core]\n",
		"img/logo.png":  "png",
		"data/blob.dat": "a\x00b\x00c",
		"ok.txt":        "fine\n",
	})
	a := newAnalyzer(t, root)

	valid, invalid := a.Validate([]string{".env", ".git/config", "img/logo.png", "data/blob.dat", "ok.txt"})

	assert.Equal(t, []string{"ok.txt"}, valid)
	reasons := map[string]string{}
	for _, r := range invalid {
		reasons[r.Path] = r.Reason
	}
	assert.Equal(t, "hidden", reasons[".env"])
	assert.Equal(t, "hidden", reasons[".git/config"])
	assert.Contains(t, []string{"binary", "excluded by patterns"}, reasons["img/logo.png"])
	assert.Equal(t, "binary", reasons["data/blob.dat"])
}

func TestSummary(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py":     "print(1)\n",
		"b.py":     "print(22)\n",
		"c.go":     "package c\n",
		"Makefile": "all:\n",
		"x.zig":    "const x = 1;\n",
	})

	s, err := newAnalyzer(t, root).Summary()
	require.NoError(t, err)

	assert.Equal(t, 5, s.TotalFiles)
	assert.Equal(t, int64(9+10+10+5+13), s.TotalSize)
	assert.Equal(t, map[string]int{".py": 2, ".go": 1, ".zig": 1, noExtension: 1}, s.FileTypes)
	assert.Equal(t, []string{"Go", "Python", "ZIG"}, s.Languages)
	assert.Equal(t, "x.zig", s.LargestFiles[0].Path)
	assert.Len(t, s.LargestFiles, 5)
	assert.Equal(t, TypeCount{Ext: ".py", Count: 2}, s.SortedTypes()[0])
}
