package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/morphaven/claude-recontext/internal/journal"
	"github.com/morphaven/claude-recontext/internal/migrate"
	"github.com/morphaven/claude-recontext/internal/pathcodec"
	"github.com/morphaven/claude-recontext/internal/scanner"
	"github.com/morphaven/claude-recontext/internal/ui"
)

var (
	errNoProjects    = errors.New("no projects found")
	errInvalidChoice = errors.New("invalid selection")
	errEmptyNewPath  = errors.New("new path cannot be empty")
)

func runInteractive(args []string) {
	fs := newFlagSet("recontext", os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fatal("%v", err)
	}
	cfg := mustLoadConfig(fs)
	j := openJournal(cfg)
	if j != nil {
		defer j.Close()
	}

	ctx, stop := signalContext()
	defer stop()

	u := newUI()
	it := &Interactive{
		Scanner: scanner.New(cfg.ProjectsDir),
		Journal: j,
		UI:      u,
		Migrator: &Migrator{
			Engine: newEngine(cfg, u, migrate.WithJournal(j)),
			UI:     u,
		},
	}
	if err := it.Run(ctx); err != nil {
		u.Fail("%v", err)
		os.Exit(1)
	}
}

// Interactive lets the user pick a project from the store and
// type its new location.
type Interactive struct {
	Scanner *scanner.Scanner
	// Journal is optional.
	Journal  *journal.Journal
	Migrator *Migrator
	UI       *ui.UI
}

// Run lists the projects, asks for a selection and a new path,
// confirms, and migrates.
func (it *Interactive) Run(ctx context.Context) error {
	it.UI.Heading("Move a Claude Code project")

	projects := it.Scanner.ListAll()
	if len(projects) == 0 {
		return errNoProjects
	}
	width := len(fmt.Sprint(len(projects)))
	for i, p := range projects {
		it.UI.ProjectLine(i+1, width, p.Path(), !p.Recovered())
	}
	it.UI.Blank()

	answer, err := it.UI.Prompt("Project number: ")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(projects) {
		return errInvalidChoice
	}
	selected := projects[n-1]
	it.UI.Blank()
	it.UI.Info("Selected: %s", selected.Path())
	if !selected.Recovered() {
		it.UI.Warn("This path was estimated from the directory name; check it before continuing.")
	}
	it.showPreviousMove(ctx, selected.Path())
	it.UI.Blank()

	answer, err = it.UI.Prompt("New project path: ")
	if err != nil {
		return err
	}
	newPath, err := pathcodec.Normalize(answer)
	if err != nil {
		return fmt.Errorf("resolving new path: %w", err)
	}
	if newPath == "" {
		return errEmptyNewPath
	}

	return it.Migrator.Run(ctx, MigrateConfig{
		From: selected.Path(),
		To:   newPath,
	})
}

// showPreviousMove mentions the last committed migration that
// brought the project to path.
func (it *Interactive) showPreviousMove(ctx context.Context, path string) {
	if it.Journal == nil {
		return
	}
	prev, err := it.Journal.LastCommitted(ctx, path)
	if err != nil {
		log.Printf("warning: reading journal: %v", err)
		return
	}
	if prev == nil {
		return
	}
	it.UI.Info("Moved here from %s on %s.",
		prev.FromPath, prev.StartedAt.Local().Format("2006-01-02"))
}
