package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/morphaven/claude-recontext/internal/pathcodec"
	"github.com/morphaven/claude-recontext/internal/scanner"
	"github.com/morphaven/claude-recontext/internal/ui"
)

const watcherDebounce = 500 * time.Millisecond

func runList(args []string) {
	fs := newFlagSet("list", os.Stderr)
	watch := fs.Bool("watch", false, "Keep listing as the store changes")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fatal("%v", err)
	}
	cfg := mustLoadConfig(fs)

	u := newUI()
	sc := scanner.New(cfg.ProjectsDir)
	printProjects(u, sc.ListAll(), true)
	if !*watch {
		return
	}

	ctx, stop := signalContext()
	defer stop()

	w, err := scanner.NewWatcher(watcherDebounce, func(changed []string) {
		u.Blank()
		u.Info("Changed: %s", strings.Join(changed, ", "))
		printProjects(u, sc.ListAll(), true)
	})
	if err != nil {
		fatal("starting watcher: %v", err)
	}
	if _, unwatched, err := w.WatchStore(sc.ProjectsDir()); err != nil {
		fatal("%v", err)
	} else if unwatched > 0 {
		u.Warn("%d project directories could not be watched", unwatched)
	}
	w.Start()
	defer w.Stop()

	u.Info("Watching %s (Ctrl-C to stop)", sc.ProjectsDir())
	<-ctx.Done()
}

// printProjects prints a numbered project listing. Estimated paths
// are marked; with details set the encoded name and, for
// recovered paths, whether they still exist are shown.
func printProjects(u *ui.UI, projects []scanner.ProjectRecord, details bool) {
	u.Heading("Claude Code projects")
	if len(projects) == 0 {
		u.Info("No projects found.")
		return
	}

	width := len(fmt.Sprint(len(projects)))
	for i, p := range projects {
		u.ProjectLine(i+1, width, p.Path(), !p.Recovered())
		if !details {
			continue
		}
		u.Detail(width, projectDetail(p))
	}
	u.Blank()
	u.Info("%d project(s).", len(projects))
}

// projectDetail describes where a listed path came from. For
// estimates it adds a short name guessed from the directory.
func projectDetail(p scanner.ProjectRecord) string {
	if !p.Recovered() {
		return fmt.Sprintf("%s  (name guessed: %s)",
			p.EncodedName, pathcodec.ShortName(p.EncodedName))
	}
	detail := fmt.Sprintf("%s  (from %s)", p.EncodedName, p.Source)
	if p.Exists == scanner.ExistsNo {
		detail += "  (path missing)"
	}
	return detail
}
