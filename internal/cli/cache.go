package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/Whopus/Repox/internal/storage"
)

// ScoreStore is the part of the score cache the cache commands use.
type ScoreStore interface {
	Stats(ctx context.Context) (*storage.CacheStats, error)
	Clear(ctx context.Context) (int64, error)
}

// RunCacheStats reports the cached relevance scores.
func RunCacheStats(ctx context.Context, w io.Writer, store ScoreStore, ttlHours int, format string) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	if format == "json" {
		return writeJSON(w, stats)
	}

	fmt.Fprintln(w, "Score Cache Statistics:")
	fmt.Fprintf(w, "  Cached scores: %d\n", stats.Entries)
	if stats.MemoryUsed != "" {
		fmt.Fprintf(w, "  Redis memory:  %s\n", stats.MemoryUsed)
	}
	fmt.Fprintf(w, "  Entry TTL:     %dh\n", ttlHours)
	return nil
}

// RunCacheClear removes every cached score after confirmation.
func RunCacheClear(ctx context.Context, w io.Writer, store ScoreStore, force bool) error {
	if !force && !confirm("Are you sure you want to clear all cached scores?") {
		fmt.Fprintln(w, "Operation cancelled.")
		return nil
	}

	n, err := store.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Successfully cleared %d cached scores.", n)))
	return nil
}
