package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the config file looked up in the repository root.
const FileName = "repox.toml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Repository RepositoryConfig `toml:"repository"`
	Ranking    RankingConfig    `toml:"ranking"`
	Context    ContextConfig    `toml:"context"`
	Cache      CacheConfig      `toml:"cache"`
	Logging    LoggingConfig    `toml:"logging"`
}

type LLMConfig struct {
	Provider       string  `toml:"provider"`
	StrongModel    string  `toml:"strong_model"`
	WeakModel      string  `toml:"weak_model"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

type RepositoryConfig struct {
	MaxFileSize       int64    `toml:"max_file_size"`
	LargeDirThreshold int      `toml:"large_dir_threshold"`
	SkipLargeDirs     []string `toml:"skip_large_dirs"`
	ExcludePatterns   []string `toml:"exclude_patterns"`
}

type RankingConfig struct {
	TopK                  int     `toml:"top_k"`
	MaxFilesPerRequest    int     `toml:"max_files_per_request"`
	MaxSampleLines        int     `toml:"max_sample_lines"`
	BatchSize             int     `toml:"batch_size"`
	SampleChars           int     `toml:"sample_chars"`
	Workers               int     `toml:"workers"`
	PathWeight            float64 `toml:"path_weight"`
	ContentWeight         float64 `toml:"content_weight"`
	ScoringTimeoutSeconds int     `toml:"scoring_timeout_seconds"`
	UseModel              bool    `toml:"use_model"`

	SizePenalty SizePenaltyConfig `toml:"size_penalty"`
}

// SizePenaltyConfig discounts large files. A file smaller than a step's
// Below gets that step's factor; anything past the last step gets Floor.
type SizePenaltyConfig struct {
	Steps []PenaltyStepConfig `toml:"steps"`
	Floor float64             `toml:"floor"`
}

type PenaltyStepConfig struct {
	Below  int64   `toml:"below"`
	Factor float64 `toml:"factor"`
}

func (p SizePenaltyConfig) validate() []string {
	var problems []string
	if len(p.Steps) == 0 {
		return []string{"size_penalty needs at least one step"}
	}

	prev := PenaltyStepConfig{Factor: 1}
	for i, step := range p.Steps {
		if step.Below <= prev.Below {
			problems = append(problems, fmt.Sprintf("size_penalty step %d: below must be greater than %d", i, prev.Below))
		}
		if step.Factor <= 0 || step.Factor > 1 {
			problems = append(problems, fmt.Sprintf("size_penalty step %d: factor must be in (0, 1]", i))
		} else if step.Factor > prev.Factor {
			problems = append(problems, fmt.Sprintf("size_penalty step %d: factor must not increase", i))
		}
		prev = step
	}

	if p.Floor <= 0 || p.Floor > 1 {
		problems = append(problems, "size_penalty floor must be in (0, 1]")
	} else if p.Floor > prev.Factor {
		problems = append(problems, "size_penalty floor must not exceed the last factor")
	}
	return problems
}

type ContextConfig struct {
	MaxContextSize     int `toml:"max_context_size"`
	MinTruncationChars int `toml:"min_truncation_chars"`
}

type CacheConfig struct {
	Redis RedisConfig `toml:"redis"`
	SQL   SQLConfig   `toml:"sql"`
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url"`
	TTLHours int    `toml:"ttl_hours"`
}

type SQLConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

type LoggingConfig struct {
	Verbose bool `toml:"verbose"`
}

// Load reads path, falling back to defaults when the file does not exist,
// then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg as TOML. The API key is never persisted.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	out := *cfg
	out.LLM.APIKey = ""

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString("# Repox Configuration\n\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if c.LLM.APIKey == "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("REPOX_STRONG_MODEL"); v != "" {
		c.LLM.StrongModel = v
	}
	if v := os.Getenv("REPOX_WEAK_MODEL"); v != "" {
		c.LLM.WeakModel = v
	}
	if v := os.Getenv("REPOX_REDIS_URL"); v != "" {
		c.Cache.Redis.URL = v
	}

	ints := []struct {
		name   string
		target func(int)
	}{
		{"REPOX_MAX_FILE_SIZE", func(n int) { c.Repository.MaxFileSize = int64(n) }},
		{"REPOX_MAX_CONTEXT_SIZE", func(n int) { c.Context.MaxContextSize = n }},
		{"REPOX_MAX_FILES_PER_REQUEST", func(n int) { c.Ranking.MaxFilesPerRequest = n }},
	}
	for _, env := range ints {
		raw := os.Getenv(env.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, env.name, raw)
		}
		env.target(n)
	}

	if v := os.Getenv("REPOX_VERBOSE"); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			c.Logging.Verbose = true
		}
	}
	return nil
}

// Validate checks ranges on every tunable.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Repository.MaxFileSize > 0, "max_file_size must be positive")
	check(c.Repository.MaxFileSize <= 10_000_000, "max_file_size too large (max 10MB)")
	check(c.Context.MaxContextSize >= 1000, "max_context_size must be at least 1000")
	check(c.Context.MaxContextSize <= 1_000_000, "max_context_size too large (max 1M)")
	check(c.Context.MinTruncationChars >= 0, "min_truncation_chars must not be negative")
	check(c.Ranking.TopK >= 1, "top_k must be at least 1")
	check(c.Ranking.MaxFilesPerRequest >= 1, "max_files_per_request must be at least 1")
	check(c.Ranking.PathWeight >= 0 && c.Ranking.ContentWeight >= 0, "weights must not be negative")
	check(c.Ranking.PathWeight+c.Ranking.ContentWeight <= 1+1e-9, "path_weight + content_weight must not exceed 1")
	check(c.Ranking.Workers >= 0, "workers must not be negative")
	check(c.Ranking.BatchSize >= 1 && c.Ranking.BatchSize <= 50, "batch_size must be between 1 and 50")
	check(c.Ranking.MaxSampleLines >= 1, "max_sample_lines must be at least 1")
	check(c.Ranking.SampleChars >= 1, "sample_chars must be at least 1")
	check(c.Repository.LargeDirThreshold >= 0, "large_dir_threshold must not be negative")
	problems = append(problems, c.Ranking.SizePenalty.validate()...)

	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.BaseURL != "" && !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		problems = append(problems, "base_url must start with http:// or https://")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RequiresAPIKey reports whether the configured provider needs credentials.
func (c *Config) RequiresAPIKey() bool {
	return c.LLM.Provider != "ollama"
}

func (c *Config) LLMTimeout() time.Duration {
	return secondsOr(c.LLM.TimeoutSeconds, 60)
}

func (c *Config) ScoringTimeout() time.Duration {
	return secondsOr(c.Ranking.ScoringTimeoutSeconds, 30)
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.Redis.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Cache.Redis.TTLHours) * time.Hour
}

// SelectionLimit is how many ranked files feed the packer.
func (c *Config) SelectionLimit() int {
	return min(c.Ranking.TopK, c.Ranking.MaxFilesPerRequest)
}

func secondsOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			StrongModel:    "gpt-4",
			WeakModel:      "gpt-3.5-turbo",
			BaseURL:        "https://api.openai.com/v1",
			Temperature:    0.7,
			MaxTokens:      2000,
			TimeoutSeconds: 60,
		},
		Repository: RepositoryConfig{
			MaxFileSize:       100000,
			LargeDirThreshold: 100,
			SkipLargeDirs: []string{
				"node_modules", "__pycache__", ".git", ".venv", "venv",
				"build", "dist", "target", "out", "bin", "obj",
				"logs", "tmp", "temp", "cache",
			},
			ExcludePatterns: DefaultExcludePatterns(),
		},
		Ranking: RankingConfig{
			TopK:                  15,
			MaxFilesPerRequest:    20,
			MaxSampleLines:        50,
			BatchSize:             50,
			SampleChars:           1000,
			PathWeight:            0.3,
			ContentWeight:         0.6,
			ScoringTimeoutSeconds: 30,
			UseModel:              true,
			SizePenalty: SizePenaltyConfig{
				Steps: []PenaltyStepConfig{
					{Below: 10_000, Factor: 1.0},
					{Below: 50_000, Factor: 0.9},
					{Below: 100_000, Factor: 0.8},
					{Below: 500_000, Factor: 0.6},
				},
				Floor: 0.4,
			},
		},
		Context: ContextConfig{
			MaxContextSize:     50000,
			MinTruncationChars: 100,
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				Enabled:  false,
				URL:      "redis://localhost:6379",
				TTLHours: 24,
			},
			SQL: SQLConfig{
				Enabled: true,
				DSN:     ".repox/history.db",
			},
		},
	}
}

// DefaultExcludePatterns are gitignore-style patterns for files that never
// carry useful context.
func DefaultExcludePatterns() []string {
	return []string{
		// version control
		".git/", ".svn/", ".hg/", ".bzr/",
		// build output
		"build/", "dist/", "out/", "target/",
		"*.pyc", "*.pyo", "*.pyd", "*.so", "*.dll", "*.dylib",
		"*.class", "*.o", "*.obj", "*.exe", "*.bin",
		// dependencies
		"node_modules/", "__pycache__/", ".venv/", "venv/",
		"vendor/", "bower_components/",
		"*.log", "*.tmp", "*.cache", "*.pid",
		"logs/", "tmp/", "temp/", "cache/",
		// media and documents
		"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp", "*.ico", "*.svg",
		"*.mp3", "*.mp4", "*.avi", "*.mov", "*.wmv", "*.flv",
		"*.pdf", "*.doc", "*.docx", "*.xls", "*.xlsx", "*.ppt", "*.pptx",
		"*.zip", "*.tar", "*.gz", "*.rar", "*.7z", "*.bz2",
		"*.db", "*.sqlite", "*.sqlite3", "*.mdb",
		// secrets
		".env", ".env.*", "*.key", "*.pem", "*.cert", "*.crt",
		"*.p12", "*.pfx", "*.jks", "*.keystore",
		".idea/", ".vscode/", "*.swp", "*.swo", "*~", "*.bak",
		".project", ".settings/", ".classpath", "*.sublime-*",
		".DS_Store", "Thumbs.db", "desktop.ini",
		"package-lock.json", "yarn.lock", "Pipfile.lock", "poetry.lock",
		".coverage", "htmlcov/", ".pytest_cache/", ".tox/",
		"coverage.xml", "*.cover",
	}
}
