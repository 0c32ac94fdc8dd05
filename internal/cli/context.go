package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/pipeline"
)

// buildContext packs the whole repository, or only files when given.
func buildContext(ctx context.Context, env *runtimeEnv, question string, files []string, useModel bool) (*pipeline.Result, error) {
	p, err := env.pipeline(env.scorer(ctx, useModel))
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return p.Build(ctx, question)
	}

	build, rejected, err := p.BuildFiles(ctx, question, files)
	for _, r := range rejected {
		env.logger.Warn("Skipping file", zap.String("file", r.Path), zap.String("reason", r.Reason))
	}
	return build, err
}

func runContext(ctx context.Context, env *runtimeEnv, question string, files []string, useModel bool, format, output string) error {
	build, err := buildContext(ctx, env, question, files, useModel)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if err := writeContext(w, build, format); err != nil {
		return err
	}

	if output != "" {
		fmt.Fprintln(os.Stderr, successStyle.Render(fmt.Sprintf("✓ Wrote %d files (%d/%d tokens) to %s",
			len(build.Packed.Entries), build.Packed.TotalTokens, build.Packed.Budget, output)))
	}
	return nil
}

func runPreview(ctx context.Context, env *runtimeEnv, question string, opts askOptions, format string) error {
	build, err := buildContext(ctx, env, question, nil, opts.useModel)
	if err != nil {
		return err
	}
	return printPreview(os.Stdout, build, format)
}
