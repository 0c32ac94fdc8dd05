package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/Whopus/Repox/internal/pipeline"
	"github.com/Whopus/Repox/internal/rank"
)

func scoreTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

// printRanking writes scores as a table, tab-separated lines or JSON.
func printRanking(w io.Writer, scores []rank.FileScore, format string) error {
	switch format {
	case "json":
		return writeJSON(w, scores)
	case "simple":
		for _, s := range scores {
			fmt.Fprintf(w, "%s\t%.3f\n", s.Path, s.FinalScore)
		}
		return nil
	}

	if len(scores) == 0 {
		fmt.Fprintln(w, "No files to rank.")
		return nil
	}

	rows := make([][]string, 0, len(scores))
	for i, s := range scores {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncateString(s.Path, 60),
			fmt.Sprintf("%.3f", s.FinalScore),
			fmt.Sprintf("%.2f", s.PathScore),
			fmt.Sprintf("%.2f %s", s.ContentScore, s.ContentSource),
			fmt.Sprintf("%.2f", s.SizePenalty),
			humanize.Bytes(uint64(max(s.Size, 0))),
		})
	}
	fmt.Fprintln(w, scoreTable([]string{"#", "File", "Score", "Path", "Content", "Penalty", "Size"}, rows))
	return nil
}

// printPreview shows what would be sent to the model without calling it.
func printPreview(w io.Writer, build *pipeline.Result, format string) error {
	if format == "json" {
		return writeJSON(w, build)
	}

	fmt.Fprintln(w, titleStyle.Render("Context preview"))

	packed := make(map[string]int, len(build.Packed.Entries))
	for _, e := range build.Packed.Entries {
		packed[e.File] = e.Tokens
	}

	rows := make([][]string, 0, len(build.Selected))
	for i, s := range build.Selected {
		tokens := "dropped"
		if t, ok := packed[s.Path]; ok {
			tokens = humanize.Comma(int64(t))
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncateString(s.Path, 60),
			fmt.Sprintf("%.3f", s.FinalScore),
			humanize.Bytes(uint64(max(s.Size, 0))),
			tokens,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, scoreTable([]string{"#", "File", "Score", "Size", "Tokens"}, rows))
	}

	summary := fmt.Sprintf("%s of %s tokens used, %d files packed (%s)",
		humanize.Comma(int64(build.Packed.TotalTokens)),
		humanize.Comma(int64(build.Packed.Budget)),
		len(build.Packed.Entries),
		build.Packed.State)
	if build.Packed.Truncated() {
		summary += ", last file truncated"
	}
	fmt.Fprintln(w, dimStyle.Render(summary))
	return nil
}

// writeContext writes the packed context as the rendered markdown document
// or as JSON.
func writeContext(w io.Writer, build *pipeline.Result, format string) error {
	if format == "json" {
		return writeJSON(w, build)
	}
	_, err := io.WriteString(w, build.Rendered)
	return err
}

// printAnswer writes an answer without the interactive viewer.
func printAnswer(w io.Writer, result *askResult, format string) error {
	switch format {
	case "json":
		return writeJSON(w, result)
	case "markdown":
		fmt.Fprintln(w, result.Answer)
		fmt.Fprintln(w)
		for _, src := range result.Build.Packed.Sources() {
			fmt.Fprintf(w, "- `%s`\n", src)
		}
		return nil
	}

	fmt.Fprint(w, renderMarkdown(result.Answer, 80))
	fmt.Fprint(w, sourceStyle.Render(formatSources(result.Build)))
	fmt.Fprintln(w, sourceStyle.Render(fmt.Sprintf("⏱ Response time: %.2fs", result.Duration.Seconds())))
	return nil
}
