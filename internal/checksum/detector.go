// Package checksum fingerprints repository files so runs can tell what
// changed and caches can key on content.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const snapshotVersion = "1.0.0"

// SnapshotFile is where Save keeps the last snapshot, relative to the root.
var SnapshotFile = filepath.Join(".repox", "checksum.json")

type Checksum struct {
	ProjectPath     string            `json:"project_path"`
	TotalFiles      int               `json:"total_files"`
	TotalLines      int               `json:"total_lines"`
	Hash            string            `json:"hash"`
	FileHashes      map[string]string `json:"file_hashes"`
	LastAnalyzed    time.Time         `json:"last_analyzed"`
	AnalysisVersion string            `json:"analysis_version"`
}

type Detector struct {
	projectPath string
}

func NewDetector(projectPath string) *Detector {
	return &Detector{projectPath: projectPath}
}

// String returns the hex sha256 of s.
func String(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Calculate hashes the given repository-relative files. Unreadable files
// are skipped. The project hash depends only on paths and contents.
func (d *Detector) Calculate(files []string) (*Checksum, error) {
	fileHashes := make(map[string]string, len(files))
	totalLines := 0

	for _, rel := range files {
		hash, lines, err := hashFile(filepath.Join(d.projectPath, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		fileHashes[rel] = hash
		totalLines += lines
	}

	paths := make([]string, 0, len(fileHashes))
	for p := range fileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		io.WriteString(h, p)
		h.Write([]byte{0})
		io.WriteString(h, fileHashes[p])
		h.Write([]byte{'\n'})
	}

	return &Checksum{
		ProjectPath:     d.projectPath,
		TotalFiles:      len(fileHashes),
		TotalLines:      totalLines,
		Hash:            hex.EncodeToString(h.Sum(nil)),
		FileHashes:      fileHashes,
		LastAnalyzed:    time.Now(),
		AnalysisVersion: snapshotVersion,
	}, nil
}

func (d *Detector) Save(checksum *Checksum) error {
	checksumPath := filepath.Join(d.projectPath, SnapshotFile)
	if err := os.MkdirAll(filepath.Dir(checksumPath), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(checksum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return os.WriteFile(checksumPath, data, 0644)
}

func (d *Detector) Load() (*Checksum, error) {
	data, err := os.ReadFile(filepath.Join(d.projectPath, SnapshotFile))
	if err != nil {
		return nil, err
	}

	var checksum Checksum
	if err := json.Unmarshal(data, &checksum); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &checksum, nil
}

// Changes counts files added, deleted and modified between two snapshots.
type Changes struct {
	Added    int     `json:"added"`
	Deleted  int     `json:"deleted"`
	Modified int     `json:"modified"`
	Ratio    float64 `json:"ratio"`
}

// Compare reports the change set from stored to current. Ratio is the
// number of changes over the stored file count, or 1 with no baseline.
func (d *Detector) Compare(stored, current *Checksum) Changes {
	var c Changes
	if stored == nil || current == nil {
		c.Ratio = 1.0
		return c
	}

	for file, hash := range current.FileHashes {
		if storedHash, exists := stored.FileHashes[file]; !exists {
			c.Added++
		} else if storedHash != hash {
			c.Modified++
		}
	}
	for file := range stored.FileHashes {
		if _, exists := current.FileHashes[file]; !exists {
			c.Deleted++
		}
	}

	if stored.TotalFiles == 0 {
		c.Ratio = 1.0
		return c
	}
	c.Ratio = float64(c.Added+c.Deleted+c.Modified) / float64(stored.TotalFiles)
	return c
}

func hashFile(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	lines := 0

	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			for i := 0; i < n; i++ {
				if buf[i] == '\n' {
					lines++
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), lines, nil
}
