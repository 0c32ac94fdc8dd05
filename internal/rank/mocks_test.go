package rank

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// MockScorer returns fixed scores and records every request.
type MockScorer struct {
	mu       sync.Mutex
	Scores   map[string]float64
	Default  *float64
	Err      error
	Requests []ScoreRequest
}

func (m *MockScorer) Score(ctx context.Context, req ScoreRequest) (map[string]float64, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	out := make(map[string]float64)
	for _, s := range req.Samples {
		if v, ok := m.Scores[s.Path]; ok {
			out[s.Path] = v
		} else if m.Default != nil {
			out[s.Path] = *m.Default
		}
	}
	return out, nil
}

// blockingScorer waits for its context to end.
type blockingScorer struct{}

func (blockingScorer) Score(ctx context.Context, req ScoreRequest) (map[string]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func ptr(v float64) *float64 { return &v }

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}
