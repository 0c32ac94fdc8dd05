package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Whopus/Repox/internal/storage"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "repox",
	Short: "Repox - ask questions about your repository",
	Long: `Repox ranks the files of a repository against a question, packs the most
relevant excerpts into a token budget and asks a language model to answer.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize repox in the repository",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRepository(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		root, _ := cmd.Flags().GetString("repo")
		force, _ := cmd.Flags().GetBool("force")

		if err := RunInit(root, force); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the repository",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRepository(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return checkFormat(format, "text", "markdown", "json")
	},
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.Join(args, " ")
		preview, _ := cmd.Flags().GetBool("preview")
		format, _ := cmd.Flags().GetString("format")
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		noModel, _ := cmd.Flags().GetBool("no-model")

		env := mustEnv(cmd)
		defer env.Close()

		ctx, stop := signalContext()
		defer stop()

		opts := askOptions{useModel: !noModel, record: true}

		var err error
		switch {
		case preview:
			err = runPreview(ctx, env, question, opts, format)
		case format == "text" && !noTUI:
			err = RunAsk(ctx, env, question, opts)
		default:
			var result *askResult
			result, err = askQuestion(ctx, env, question, opts)
			if err == nil {
				err = printAnswer(os.Stdout, result, format)
			}
		}

		if errors.Is(err, errNoContext) {
			fmt.Println(warnStyle.Render(err.Error()))
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank <question>",
	Short: "Rank repository files by relevance to a question",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRepository(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return checkFormat(format, "table", "json", "simple")
	},
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.Join(args, " ")
		top, _ := cmd.Flags().GetInt("top")
		format, _ := cmd.Flags().GetString("format")
		noModel, _ := cmd.Flags().GetBool("no-model")

		env := mustEnv(cmd)
		defer env.Close()

		ctx, stop := signalContext()
		defer stop()

		if top <= 0 {
			top = env.cfg.Ranking.TopK
		}

		p, err := env.pipeline(env.scorer(ctx, !noModel))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ranking failed: %v\n", err)
			os.Exit(1)
		}

		ranking, err := p.Rank(ctx, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ranking failed: %v\n", err)
			os.Exit(1)
		}

		if err := printRanking(os.Stdout, ranking.Top(top), format); err != nil {
			fmt.Fprintf(os.Stderr, "Ranking failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <question>",
	Short: "Build the packed context for a question without asking the model",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRepository(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return checkFormat(format, "markdown", "json")
	},
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.Join(args, " ")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		files, _ := cmd.Flags().GetStringSlice("files")
		noModel, _ := cmd.Flags().GetBool("no-model")

		env := mustEnv(cmd)
		defer env.Close()

		ctx, stop := signalContext()
		defer stop()

		if err := runContext(ctx, env, question, files, !noModel, format, output); err != nil {
			fmt.Fprintf(os.Stderr, "Context failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var findCmd = &cobra.Command{
	Use:   "find <pattern>",
	Short: "Find files by fuzzy path or by content",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRepository(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return checkFormat(format, "text", "json", "simple")
	},
	Run: func(cmd *cobra.Command, args []string) {
		pattern := strings.Join(args, " ")
		content, _ := cmd.Flags().GetBool("content")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		env := mustEnv(cmd)
		defer env.Close()

		p, err := env.pipeline(nil)
		if err == nil {
			err = runFind(os.Stdout, p.Analyzer(), pattern, content, limit, format)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Find failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Summarize the repository",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRepository(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return checkFormat(format, "text", "json")
	},
	Run: func(cmd *cobra.Command, args []string) {
		files, _ := cmd.Flags().GetBool("files")
		stats, _ := cmd.Flags().GetBool("stats")
		format, _ := cmd.Flags().GetString("format")

		env := mustEnv(cmd)
		defer env.Close()

		p, err := env.pipeline(nil)
		if err == nil {
			err = runInfo(os.Stdout, p.Analyzer(), infoOptions{files: files, stats: stats, format: format})
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Info failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View question history interactively",
	Long:  "Launch an interactive TUI to browse previously answered questions",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRepository(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		format, _ := cmd.Flags().GetString("format")

		env := mustEnv(cmd)
		defer env.Close()

		h := mustHistory(env)
		if err := RunHistory(cmd.Context(), h, noTUI, format, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history entries",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRepository(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		env := mustEnv(cmd)
		defer env.Close()

		h := mustHistory(env)
		if err := ClearHistory(cmd.Context(), h, force); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear history: %v\n", err)
			os.Exit(1)
		}
	},
}

// Cache command group

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the relevance score cache",
	Long:  `View and clear relevance scores cached in Redis`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRepository(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		env := mustEnv(cmd)
		defer env.Close()

		store := mustRedis(cmd.Context(), env)
		if err := RunCacheStats(cmd.Context(), os.Stdout, store, env.cfg.Cache.Redis.TTLHours, format); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached scores",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRepository(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		env := mustEnv(cmd)
		defer env.Close()

		store := mustRedis(cmd.Context(), env)
		if err := RunCacheClear(cmd.Context(), os.Stdout, store, force); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the repox version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("repox %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("repo", "r", ".", "Repository root")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default <repo>/repox.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")

	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration")

	askCmd.Flags().Bool("preview", false, "Show the selected context without calling the model")
	askCmd.Flags().String("format", "text", "Output format: text, markdown or json")
	askCmd.Flags().Bool("no-tui", false, "Print the answer instead of opening the viewer")
	askCmd.Flags().Bool("no-model", false, "Rank content with keywords instead of the model")

	rankCmd.Flags().IntP("top", "k", 0, "Number of files to show (default ranking.top_k)")
	rankCmd.Flags().String("format", "table", "Output format: table, json or simple")
	rankCmd.Flags().Bool("no-model", false, "Rank content with keywords instead of the model")

	contextCmd.Flags().StringP("output", "o", "", "Write the context to a file instead of stdout")
	contextCmd.Flags().String("format", "markdown", "Output format: markdown or json")
	contextCmd.Flags().StringSlice("files", nil, "Pack these files instead of ranking the repository")
	contextCmd.Flags().Bool("no-model", false, "Rank content with keywords instead of the model")

	findCmd.Flags().Bool("content", false, "Search file contents instead of paths")
	findCmd.Flags().IntP("limit", "n", 20, "Maximum number of results")
	findCmd.Flags().String("format", "text", "Output format: text, json or simple")

	infoCmd.Flags().Bool("files", false, "List every processable file")
	infoCmd.Flags().Bool("stats", false, "Compare against the last snapshot and save a new one")
	infoCmd.Flags().String("format", "text", "Output format: text or json")

	historyCmd.Flags().Bool("no-tui", false, "Print history as text")
	historyCmd.Flags().String("format", "text", "Output format: text or json")
	historyClearCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	historyCmd.AddCommand(historyClearCmd)

	cacheStatsCmd.Flags().String("format", "text", "Output format: text or json")
	cacheClearCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

func Execute() error {
	return rootCmd.Execute()
}

// checkRepository verifies --repo names a directory.
func checkRepository(cmd *cobra.Command) error {
	root, _ := cmd.Flags().GetString("repo")
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("repository %s not found", root)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository %s is not a directory", root)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func mustEnv(cmd *cobra.Command) *runtimeEnv {
	env, err := loadEnv(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return env
}

func mustHistory(env *runtimeEnv) *storage.History {
	h, err := env.history()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		os.Exit(1)
	}
	return h
}

func mustRedis(ctx context.Context, env *runtimeEnv) *storage.Redis {
	if !env.cfg.Cache.Redis.Enabled {
		fmt.Fprintln(os.Stderr, "Score cache is disabled ([cache.redis] enabled = false)")
		os.Exit(1)
	}
	store, err := storage.NewRedis(ctx, env.cfg.Cache.Redis.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	env.closers = append(env.closers, func() { store.Close() })
	return store
}
