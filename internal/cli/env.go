package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/cache"
	"github.com/Whopus/Repox/internal/config"
	"github.com/Whopus/Repox/internal/llm"
	"github.com/Whopus/Repox/internal/logging"
	"github.com/Whopus/Repox/internal/pipeline"
	"github.com/Whopus/Repox/internal/rank"
	"github.com/Whopus/Repox/internal/storage"
)

// runtimeEnv is what every command needs before doing real work.
type runtimeEnv struct {
	root   string
	cfg    *config.Config
	logger *zap.Logger

	closers []func()
}

func loadEnv(cmd *cobra.Command) (*runtimeEnv, error) {
	root, _ := cmd.Flags().GetString("repo")
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if configPath == "" {
		configPath = filepath.Join(abs, config.FileName)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Verbose = true
	}

	logger, err := logging.New(cfg.Logging.Verbose)
	if err != nil {
		return nil, err
	}

	return &runtimeEnv{root: abs, cfg: cfg, logger: logger}, nil
}

// Close releases everything opened through the env.
func (e *runtimeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	_ = e.logger.Sync()
}

func (e *runtimeEnv) client() (*llm.Client, error) {
	if e.cfg.RequiresAPIKey() && e.cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %s: set [llm] api_key in %s or the provider's environment variable",
			e.cfg.LLM.Provider, config.FileName)
	}
	return llm.NewClient(e.cfg.LLM, e.cfg.LLMTimeout())
}

// scorer returns the model-backed scorer, optionally behind the Redis cache.
// A nil scorer means local keyword scoring; missing credentials degrade to
// that with a warning instead of failing.
func (e *runtimeEnv) scorer(ctx context.Context, useModel bool) rank.Scorer {
	if !useModel || !e.cfg.Ranking.UseModel {
		return nil
	}

	client, err := e.client()
	if err != nil {
		e.logger.Warn("Model scoring unavailable, using keyword scoring", zap.Error(err))
		return nil
	}

	var scorer rank.Scorer = llm.NewRelevanceScorer(client, e.cfg.LLM.WeakModel, e.logger)
	if store := e.redis(ctx); store != nil {
		scorer = cache.NewScoreCache(scorer, store, e.cfg.LLM.WeakModel, e.cfg.CacheTTL(), e.logger)
	}
	return scorer
}

// redis connects to the score cache when enabled. Failures are logged and
// yield nil.
func (e *runtimeEnv) redis(ctx context.Context) *storage.Redis {
	if !e.cfg.Cache.Redis.Enabled {
		return nil
	}
	store, err := storage.NewRedis(ctx, e.cfg.Cache.Redis.URL)
	if err != nil {
		e.logger.Warn("Redis cache unavailable", zap.Error(err))
		return nil
	}
	e.closers = append(e.closers, func() { store.Close() })
	return store
}

// history opens the question history when enabled.
func (e *runtimeEnv) history() (*storage.History, error) {
	if !e.cfg.Cache.SQL.Enabled {
		return nil, fmt.Errorf("history is disabled in %s ([cache.sql] enabled = false)", config.FileName)
	}

	dsn := e.cfg.Cache.SQL.DSN
	if dsn != ":memory:" && !filepath.IsAbs(dsn) {
		dsn = filepath.Join(e.root, dsn)
	}

	h, err := storage.OpenHistory(dsn)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { h.Close() })
	return h, nil
}

func (e *runtimeEnv) pipeline(scorer rank.Scorer) (*pipeline.Pipeline, error) {
	return pipeline.New(e.root, e.cfg, scorer, e.logger)
}
