package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/morphaven/claude-recontext/internal/config"
	"github.com/morphaven/claude-recontext/internal/journal"
	"github.com/morphaven/claude-recontext/internal/ui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 30
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrate(os.Args[2:])
			return
		case "list":
			runList(os.Args[2:])
			return
		case "check":
			runCheck(os.Args[2:])
			return
		case "journal":
			runJournal(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("recontext %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	if hasDirectFlags(os.Args[1:]) {
		runMigrate(os.Args[1:])
		return
	}
	runInteractive(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`recontext %s - move Claude Code history to a new project path

Claude Code keeps each project's conversations under
~/.claude/projects/<encoded path>/. When a project directory moves,
recontext renames that store directory and rewrites every reference
to the old path so the history follows the project.

Usage:
  recontext                             Pick a project interactively
  recontext migrate -from OLD -to NEW   Move a project's history
  recontext migrate OLD NEW             Same, with positional paths
  recontext list [-watch]               List known projects
  recontext check                       Report projects whose path is gone
  recontext journal [-n N]              Show past migrations
  recontext version                     Show version information
  recontext help                        Show this help

Migrate flags:
  -from string        Old project path
  -to string          New project path
  -dry-run, -n        Show what would change without writing
  -yes                Skip confirmation prompt

Store flags (all commands):
  -claude-dir string    Claude Code directory (default ~/.claude)
  -projects-dir string  Project store (default <claude-dir>/projects)
  -history-file string  Global history log (default <claude-dir>/history.jsonl)

Environment variables:
  CLAUDE_CONFIG_DIR     Claude Code directory
  CLAUDE_PROJECTS_DIR   Project store directory
  RECONTEXT_DATA_DIR    Data directory (journal, log, config)

Data is stored in ~/.recontext/ by default.
`, version)
}

// hasDirectFlags reports whether args request a direct migration
// without the migrate subcommand.
func hasDirectFlags(args []string) bool {
	for _, a := range args {
		name := strings.TrimLeft(a, "-")
		name, _, _ = strings.Cut(name, "=")
		if a != name && (name == "from" || name == "to") {
			return true
		}
	}
	return false
}

func mustLoadConfig(fs *flag.FlagSet) config.Config {
	cfg, err := config.Load(fs)
	if err != nil {
		fatal("loading config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fatal("creating data dir: %v", err)
	}
	setupLogging(cfg)
	return cfg
}

// setupLogging sends the standard logger to a size-rotated file
// in the data directory. Terminal output goes through ui.
func setupLogging(cfg config.Config) {
	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	})
	log.SetFlags(log.LstdFlags)
}

// openJournal opens the migration journal. The journal is an
// audit trail only, so failure to open it is logged and the
// caller continues without one.
func openJournal(cfg config.Config) *journal.Journal {
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Printf("warning: opening journal: %v", err)
		return nil
	}
	return j
}

func newUI() *ui.UI {
	return ui.New(color.Output, os.Stdin)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func fatal(format string, args ...any) {
	newUI().Fail(format, args...)
	os.Exit(1)
}

// newFlagSet returns a FlagSet with the store flags registered.
func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	config.RegisterStoreFlags(fs)
	return fs
}
