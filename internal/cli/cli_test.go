package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/config"
	"github.com/Whopus/Repox/internal/pipeline"
	"github.com/Whopus/Repox/internal/rank"
	"github.com/Whopus/Repox/internal/repository"
	"github.com/Whopus/Repox/internal/storage"
	"github.com/Whopus/Repox/internal/types"
)

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func sampleRepo(t *testing.T) string {
	return writeRepo(t, map[string]string{
		"src/auth.py":   "def authenticate(user, password):\n    return check_password(user, password)\n",
		"src/models.py": "class User:\n    name = ''\n",
		"README.md":     "# Demo\nA small demo project.\n",
	})
}

func testEnv(t *testing.T, root string, cfg *config.Config) *runtimeEnv {
	t.Helper()
	env := &runtimeEnv{root: root, cfg: cfg, logger: zap.NewNop()}
	t.Cleanup(env.Close)
	return env
}

func answerServer(t *testing.T, answer string, bodies *[]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*bodies = append(*bodies, string(body))
		resp, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": answer}}},
		})
		w.Write(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func sampleBuild() *pipeline.Result {
	return &pipeline.Result{
		Ranking: &rank.Ranking{Scores: []rank.FileScore{
			{Path: "src/a.go", FinalScore: 0.9},
			{Path: "src/b.go", FinalScore: 0.4},
		}},
		Selected: []rank.FileScore{
			{Path: "src/a.go", FinalScore: 0.9},
			{Path: "src/b.go", FinalScore: 0.4},
		},
		Packed: &types.PackedContext{
			Entries:     []types.PackedEntry{{File: "src/a.go", Content: "package a", Tokens: 40, Truncated: true}},
			TotalTokens: 40,
			Budget:      40,
			State:       types.StateDone,
			Dropped:     []string{"src/b.go"},
		},
		Rendered: "# Repository Context (Hierarchically Filtered)\n",
	}
}

func TestInitStepsCreatesLayout(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()

	for _, step := range initSteps(root, cfg, false) {
		require.NoError(t, step.run(), step.name)
	}

	assert.DirExists(t, filepath.Join(root, metadataDir))
	assert.FileExists(t, filepath.Join(root, repository.IgnoreFileName))
	assert.FileExists(t, filepath.Join(root, config.FileName))
	assert.FileExists(t, filepath.Join(root, ".repox", "history.db"))

	loaded, err := config.Load(filepath.Join(root, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, cfg.Ranking.TopK, loaded.Ranking.TopK)
}

func TestInitStepsRespectsForce(t *testing.T) {
	root := t.TempDir()
	ignorePath := filepath.Join(root, repository.IgnoreFileName)
	require.NoError(t, os.WriteFile(ignorePath, []byte("custom/\n"), 0644))

	for _, step := range initSteps(root, config.DefaultConfig(), false) {
		require.NoError(t, step.run())
	}
	data, err := os.ReadFile(ignorePath)
	require.NoError(t, err)
	assert.Equal(t, "custom/\n", string(data))

	for _, step := range initSteps(root, config.DefaultConfig(), true) {
		require.NoError(t, step.run())
	}
	data, err = os.ReadFile(ignorePath)
	require.NoError(t, err)
	assert.Equal(t, defaultIgnore, string(data))
}

func TestInitModelAdvances(t *testing.T) {
	ran := 0
	step := initStep{name: "count", run: func() error { ran++; return nil }}
	m := initModel{steps: []initStep{step, step}}

	msg := m.Init()()
	next, cmd := m.Update(msg)
	m = next.(initModel)
	assert.Equal(t, 1, m.step)
	require.NotNil(t, cmd)

	next, _ = m.Update(cmd())
	m = next.(initModel)
	assert.True(t, m.complete)
	assert.Equal(t, 2, ran)
	assert.Contains(t, m.View(), "Repox initialized successfully")
}

func TestLoadEnvReadsRepoConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName),
		[]byte("[ranking]\ntop_k = 7\n"), 0644))

	cmd := &cobra.Command{}
	cmd.Flags().String("repo", root, "")
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("verbose", true, "")

	env, err := loadEnv(cmd)
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, 7, env.cfg.Ranking.TopK)
	assert.True(t, env.cfg.Logging.Verbose)
	assert.True(t, filepath.IsAbs(env.root))
}

func TestScorerWithoutModel(t *testing.T) {
	cfg := config.DefaultConfig()
	env := testEnv(t, t.TempDir(), cfg)
	assert.Nil(t, env.scorer(context.Background(), false))

	cfg.LLM.APIKey = ""
	cfg.LLM.Provider = "openai"
	assert.Nil(t, env.scorer(context.Background(), true))
}

func TestAskQuestionAnswersAndRecords(t *testing.T) {
	var bodies []string
	server := answerServer(t, "Authentication lives in `src/auth.py`.", &bodies)

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = server.URL
	env := testEnv(t, sampleRepo(t), cfg)

	result, err := askQuestion(context.Background(), env, "where is the password check",
		askOptions{useModel: false, record: true})
	require.NoError(t, err)

	assert.Equal(t, "Authentication lives in `src/auth.py`.", result.Answer)
	assert.Equal(t, "src/auth.py", result.Build.Packed.Sources()[0])
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "Repository Context")

	h, err := env.history()
	require.NoError(t, err)
	records, err := h.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "where is the password check", records[0].Question)
	assert.Contains(t, []string(records[0].Files), "src/auth.py")
	assert.Equal(t, result.Build.Packed.TotalTokens, records[0].Tokens)
}

func TestAskQuestionNoContext(t *testing.T) {
	var bodies []string
	server := answerServer(t, "unused", &bodies)

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = server.URL
	env := testEnv(t, t.TempDir(), cfg)

	_, err := askQuestion(context.Background(), env, "anything", askOptions{})
	assert.ErrorIs(t, err, errNoContext)
	assert.Empty(t, bodies)
}

func TestAskQuestionMissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	env := testEnv(t, sampleRepo(t), cfg)

	_, err := askQuestion(context.Background(), env, "anything", askOptions{})
	assert.Error(t, err)
}

func TestPrintRankingFormats(t *testing.T) {
	scores := []rank.FileScore{
		{Path: "src/a.go", Size: 2048, FinalScore: 0.9, ContentSource: rank.ProvenanceFallback},
		{Path: "README.md", Size: 10, FinalScore: 0.25},
	}

	var buf bytes.Buffer
	require.NoError(t, printRanking(&buf, scores, "simple"))
	assert.Equal(t, "src/a.go\t0.900\nREADME.md\t0.250\n", buf.String())

	buf.Reset()
	require.NoError(t, printRanking(&buf, scores, "json"))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "src/a.go", decoded[0]["path"])
	assert.Equal(t, "fallback", decoded[0]["content_source"])

	buf.Reset()
	require.NoError(t, printRanking(&buf, scores, "table"))
	assert.Contains(t, buf.String(), "src/a.go")
	assert.Contains(t, buf.String(), "0.900")
	assert.Contains(t, buf.String(), "2.0 kB")

	buf.Reset()
	require.NoError(t, printRanking(&buf, nil, "table"))
	assert.Equal(t, "No files to rank.\n", buf.String())
}

func TestPrintPreviewMarksDropped(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPreview(&buf, sampleBuild(), "text"))

	out := buf.String()
	assert.Contains(t, out, "src/a.go")
	assert.Contains(t, out, "dropped")
	assert.Contains(t, out, "40 of 40 tokens used")
	assert.Contains(t, out, "last file truncated")
}

func TestWriteContext(t *testing.T) {
	build := sampleBuild()

	var buf bytes.Buffer
	require.NoError(t, writeContext(&buf, build, "markdown"))
	assert.Equal(t, build.Rendered, buf.String())

	buf.Reset()
	require.NoError(t, writeContext(&buf, build, "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "packed")
	assert.Contains(t, decoded, "selected")
}

func TestPrintAnswerFormats(t *testing.T) {
	result := &askResult{
		Question: "q",
		Answer:   "The entry point is main.",
		Build:    sampleBuild(),
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, printAnswer(&buf, result, "markdown"))
	assert.Equal(t, "The entry point is main.\n\n- `src/a.go`\n", buf.String())

	buf.Reset()
	require.NoError(t, printAnswer(&buf, result, "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "The entry point is main.", decoded["answer"])

	buf.Reset()
	require.NoError(t, printAnswer(&buf, result, "text"))
	assert.Contains(t, buf.String(), "entry point")
	assert.Contains(t, buf.String(), "src/a.go (40 tokens) [truncated]")
	assert.Contains(t, buf.String(), "1.50s")
}

func TestFormatSources(t *testing.T) {
	assert.Empty(t, formatSources(nil))
	assert.Equal(t,
		"≡ Sources:\n  • src/a.go (40 tokens) [truncated]\n  40/40 tokens from 1 of 2 ranked files\n\n",
		formatSources(sampleBuild()))
}

func TestRunFind(t *testing.T) {
	root := sampleRepo(t)
	a, err := repository.NewAnalyzer(root, config.DefaultConfig().Repository, zap.NewNop())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runFind(&buf, a, "auth", false, 5, "simple"))
	assert.Equal(t, "src/auth.py", strings.Split(buf.String(), "\n")[0])

	buf.Reset()
	require.NoError(t, runFind(&buf, a, "authenticate", true, 5, "simple"))
	assert.Equal(t, "src/auth.py:1:def authenticate(user, password):\n", buf.String())

	buf.Reset()
	require.NoError(t, runFind(&buf, a, "zzzzqqq", false, 5, "text"))
	assert.Contains(t, buf.String(), "No files match")
}

func TestRunInfoTracksChanges(t *testing.T) {
	root := sampleRepo(t)
	a, err := repository.NewAnalyzer(root, config.DefaultConfig().Repository, zap.NewNop())
	require.NoError(t, err)

	run := func() repoInfo {
		var buf bytes.Buffer
		require.NoError(t, runInfo(&buf, a, infoOptions{stats: true, files: true, format: "json"}))
		var info repoInfo
		require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
		return info
	}

	first := run()
	assert.Equal(t, 3, first.Summary.TotalFiles)
	assert.Len(t, first.Files, 3)
	require.NotNil(t, first.Changes)
	assert.Equal(t, 1.0, first.Changes.Ratio)

	second := run()
	require.NotNil(t, second.Changes)
	assert.Zero(t, second.Changes.Added+second.Changes.Modified+second.Changes.Deleted)

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Changed\n"), 0644))
	third := run()
	assert.Equal(t, 1, third.Changes.Modified)
}

func TestRunInfoText(t *testing.T) {
	root := sampleRepo(t)
	a, err := repository.NewAnalyzer(root, config.DefaultConfig().Repository, zap.NewNop())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runInfo(&buf, a, infoOptions{format: "text"}))
	assert.Contains(t, buf.String(), "Python")
	assert.Contains(t, buf.String(), ".py")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, nil, "text"))
	assert.Contains(t, buf.String(), "history is empty")

	records := []storage.Record{{
		ID:        "id-1",
		Question:  "where is auth",
		Class:     "search",
		Files:     storage.FileList{"src/auth.py"},
		Tokens:    1234,
		Answer:    "In src/auth.py.",
		CreatedAt: time.Now(),
	}}

	buf.Reset()
	require.NoError(t, printHistory(&buf, records, "text"))
	assert.Contains(t, buf.String(), "where is auth")
	assert.Contains(t, buf.String(), "1,234 tokens")

	buf.Reset()
	require.NoError(t, printHistory(&buf, records, "json"))
	var decoded []storage.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "id-1", decoded[0].ID)
}

func TestCacheCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := storage.NewRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SetScores(ctx, map[string]float64{"a": 0.1, "b": 0.2}, time.Hour))

	var buf bytes.Buffer
	require.NoError(t, RunCacheStats(ctx, &buf, store, 24, "text"))
	assert.Contains(t, buf.String(), "Cached scores: 2")
	assert.Contains(t, buf.String(), "24h")

	buf.Reset()
	require.NoError(t, RunCacheClear(ctx, &buf, store, true))
	assert.Contains(t, buf.String(), "cleared 2 cached scores")

	buf.Reset()
	require.NoError(t, RunCacheStats(ctx, &buf, store, 24, "json"))
	var stats storage.CacheStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &stats))
	assert.Zero(t, stats.Entries)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdefgh", 5))
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))

	assert.NoError(t, checkFormat("json", "text", "json"))
	assert.Error(t, checkFormat("xml", "text", "json"))

	assert.Equal(t, "src", highlight("src", nil))
}
