package main

import (
	"fmt"
	"io"
	"os"

	"github.com/morphaven/claude-recontext/internal/config"
	"github.com/morphaven/claude-recontext/internal/scanner"
)

// runCheck reports projects whose recovered path no longer exists.
// It is meant to run as a session-start hook, so it prints nothing
// and exits 0 when all is well or anything goes wrong.
func runCheck(args []string) {
	fs := newFlagSet("check", io.Discard)
	if err := fs.Parse(args); err != nil {
		return
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return
	}
	writeBroken(os.Stdout, scanner.New(cfg.ProjectsDir).Broken())
}

func writeBroken(w io.Writer, broken []scanner.ProjectRecord) {
	if len(broken) == 0 {
		return
	}
	fmt.Fprintf(w, "%d broken Claude Code project(s) detected:\n", len(broken))
	for _, p := range broken {
		fmt.Fprintf(w, "  - %s\n", p.Path())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run `recontext` to move their history to the new location.")
}
