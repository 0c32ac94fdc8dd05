package rank

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultMaxSampleLines = 50

	sampleHeadLines = 20
	sampleMidLines  = 10
	sampleTailLines = 20

	binarySniffBytes = 1024
)

// Sampler reads bounded, deterministic slices of files under a root.
type Sampler struct {
	root     string
	maxLines int
	maxBytes int64
}

// NewSampler returns a sampler rooted at root. maxBytes bounds every read; a
// value <= 0 leaves reads unbounded.
func NewSampler(root string, maxLines int, maxBytes int64) *Sampler {
	if maxLines <= 0 {
		maxLines = DefaultMaxSampleLines
	}
	return &Sampler{root: root, maxLines: maxLines, maxBytes: maxBytes}
}

// Sample returns the head, middle and tail of the file, or its whole content
// when it has at most maxLines lines. Unreadable and binary files yield "".
func (s *Sampler) Sample(path string) string {
	content, ok := s.Read(path)
	if !ok {
		return ""
	}
	return SampleContent(content, s.maxLines)
}

// Read returns the file content decoded leniently as UTF-8.
func (s *Sampler) Read(path string) (string, bool) {
	f, err := os.Open(s.resolve(path))
	if err != nil {
		return "", false
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxBytes > 0 {
		r = io.LimitReader(f, s.maxBytes)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	if IsBinary(data) {
		return "", false
	}

	return strings.ToValidUTF8(string(data), ""), true
}

// Size stats the file. Missing files report false.
func (s *Sampler) Size(path string) (int64, bool) {
	info, err := os.Stat(s.resolve(path))
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

func (s *Sampler) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// SampleContent applies the 20/10/20 head/middle/tail split. Overlapping
// regions are not deduplicated.
func SampleContent(content string, maxLines int) string {
	lines := splitLinesKeepEnds(content)
	n := len(lines)
	if n <= maxLines {
		return content
	}

	var b strings.Builder
	writeLines(&b, lines[:min(sampleHeadLines, n)])

	mid := n / 2
	writeLines(&b, lines[max(0, mid-sampleMidLines/2):min(n, mid+sampleMidLines/2)])

	writeLines(&b, lines[max(0, n-sampleTailLines):])
	return b.String()
}

// IsBinary reports a NUL byte within the first KiB.
func IsBinary(data []byte) bool {
	if len(data) > binarySniffBytes {
		data = data[:binarySniffBytes]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func splitLinesKeepEnds(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
	}
}
