package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestString(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", String(""))
	assert.Len(t, String("repox"), 64)
	assert.NotEqual(t, String("a"), String("b"))
}

func TestCalculate(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.go", "package a\n\nfunc A() {}\n")
	write(t, root, "sub/b.py", "x = 1\n")

	d := NewDetector(root)
	sum, err := d.Calculate([]string{"a.go", "sub/b.py", "missing.txt"})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.TotalFiles)
	assert.Equal(t, 4, sum.TotalLines)
	assert.Contains(t, sum.FileHashes, "sub/b.py")
	assert.Equal(t, String("x = 1\n"), sum.FileHashes["sub/b.py"])

	again, err := d.Calculate([]string{"sub/b.py", "a.go"})
	require.NoError(t, err)
	assert.Equal(t, sum.Hash, again.Hash)
}

func TestCompareAndSnapshot(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.go", "one\n")
	write(t, root, "b.go", "two\n")

	d := NewDetector(root)
	before, err := d.Calculate([]string{"a.go", "b.go"})
	require.NoError(t, err)
	require.NoError(t, d.Save(before))

	loaded, err := d.Load()
	require.NoError(t, err)
	assert.Equal(t, before.Hash, loaded.Hash)

	write(t, root, "a.go", "changed\n")
	write(t, root, "c.go", "three\n")
	after, err := d.Calculate([]string{"a.go", "c.go"})
	require.NoError(t, err)

	changes := d.Compare(loaded, after)
	assert.Equal(t, Changes{Added: 1, Deleted: 1, Modified: 1, Ratio: 1.5}, changes)
	assert.Equal(t, 1.0, d.Compare(nil, after).Ratio)
}

func TestLoadMissing(t *testing.T) {
	_, err := NewDetector(t.TempDir()).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
