package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Whopus/Repox/internal/checksum"
	"github.com/Whopus/Repox/internal/repository"
)

type infoOptions struct {
	files  bool
	stats  bool
	format string
}

type repoInfo struct {
	Summary *repository.Summary `json:"summary"`
	Files   []string            `json:"files,omitempty"`
	Changes *checksum.Changes   `json:"changes,omitempty"`
}

// runInfo summarizes the repository. With stats set it also compares the
// files against the last snapshot in .repox and saves a new one.
func runInfo(w io.Writer, a *repository.Analyzer, opts infoOptions) error {
	summary, err := a.Summary()
	if err != nil {
		return err
	}
	info := repoInfo{Summary: summary}

	if opts.files || opts.stats {
		paths, err := a.Paths()
		if err != nil {
			return err
		}
		if opts.files {
			info.Files = paths
		}
		if opts.stats {
			changes, err := snapshotChanges(a.Root(), paths)
			if err != nil {
				return err
			}
			info.Changes = &changes
		}
	}

	if opts.format == "json" {
		return writeJSON(w, info)
	}

	fmt.Fprintln(w, titleStyle.Render("Repository: "+summary.Root))
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Files:"), humanize.Comma(int64(summary.TotalFiles)))
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Size: "), humanize.Bytes(uint64(summary.TotalSize)))
	if len(summary.Languages) > 0 {
		fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Languages:"), strings.Join(summary.Languages, ", "))
	}

	if types := summary.SortedTypes(); len(types) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("File types:"))
		for _, t := range types {
			fmt.Fprintf(w, "  %-16s %d\n", t.Ext, t.Count)
		}
	}

	if len(summary.LargestFiles) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Largest files:"))
		for _, f := range summary.LargestFiles {
			fmt.Fprintf(w, "  %-10s %s\n", humanize.Bytes(uint64(f.Size)), f.Path)
		}
	}

	if info.Changes != nil {
		c := info.Changes
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Since last snapshot:"))
		fmt.Fprintf(w, "  %d added, %d modified, %d deleted (%.0f%% changed)\n",
			c.Added, c.Modified, c.Deleted, c.Ratio*100)
	}

	if len(info.Files) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Processable files:"))
		for _, p := range info.Files {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	return nil
}

// snapshotChanges diffs paths against the saved snapshot and replaces it.
func snapshotChanges(root string, paths []string) (checksum.Changes, error) {
	d := checksum.NewDetector(root)

	stored, err := d.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return checksum.Changes{}, err
	}

	current, err := d.Calculate(paths)
	if err != nil {
		return checksum.Changes{}, err
	}
	changes := d.Compare(stored, current)

	if err := d.Save(current); err != nil {
		return changes, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return changes, nil
}
