package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/morphaven/claude-recontext/internal/journal"
)

func runJournal(args []string) {
	fs := newFlagSet("journal", os.Stderr)
	limit := fs.Int("n", 20, "Number of entries to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fatal("%v", err)
	}
	cfg := mustLoadConfig(fs)

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		fatal("opening journal: %v", err)
	}
	defer j.Close()

	entries, err := j.List(context.Background(), *limit)
	if err != nil {
		fatal("%v", err)
	}
	writeJournal(os.Stdout, entries)
}

func writeJournal(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No migrations recorded.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "#%d  %s  %s\n",
			e.ID, e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Status)
		fmt.Fprintf(w, "    %s\n    -> %s\n", e.FromPath, e.ToPath)
		fmt.Fprintf(w, "    %d file(s), %d line(s)", e.FilesUpdated, e.LinesChanged)
		if e.Residues > 0 {
			fmt.Fprintf(w, ", %d residue(s)", e.Residues)
		}
		fmt.Fprintln(w)
		if e.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", e.Error)
		}
	}
}
