package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/Whopus/Repox/internal/storage"
	"github.com/Whopus/Repox/internal/tui"
)

const historyLimit = 200

// printHistory lists records as plain text or JSON.
func printHistory(w io.Writer, records []storage.Record, format string) error {
	if format == "json" {
		return writeJSON(w, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No history found. Your question history is empty.")
		return nil
	}

	fmt.Fprintf(w, "Question History (%d entries):\n", len(records))
	fmt.Fprintln(w, strings.Repeat("=", 80))

	for i, rec := range records {
		fmt.Fprintf(w, "\n[Entry %d] %s\n", i+1, dimStyle.Render(rec.ID))
		fmt.Fprintf(w, "Asked: %s (%s)\n", rec.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(rec.CreatedAt))
		fmt.Fprintf(w, "Class: %s • %d files • %s tokens\n", rec.Class, len(rec.Files), humanize.Comma(int64(rec.Tokens)))
		fmt.Fprintf(w, "\nQuestion:\n%s\n", wrapText(rec.Question, 76))
		fmt.Fprintf(w, "\nAnswer:\n%s\n", wrapText(truncateString(rec.Answer, 600), 76))
		fmt.Fprintln(w, strings.Repeat("-", 80))
	}
	return nil
}

// RunHistory shows the question history, interactively unless noTUI.
func RunHistory(ctx context.Context, h *storage.History, noTUI bool, format string, w io.Writer) error {
	records, err := h.List(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if noTUI || format == "json" || len(records) == 0 {
		return printHistory(w, records, format)
	}

	_, err = tea.NewProgram(tui.HistoryView(records, h), tea.WithAltScreen()).Run()
	return err
}

// ClearHistory deletes every record after confirmation.
func ClearHistory(ctx context.Context, h *storage.History, force bool) error {
	if !force && !confirm("Are you sure you want to clear the question history?") {
		fmt.Println("Operation cancelled.")
		return nil
	}

	n, err := h.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Successfully cleared %d history entries.", n)))
	return nil
}
