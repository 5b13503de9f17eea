package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/morphaven/claude-recontext/internal/config"
	"github.com/morphaven/claude-recontext/internal/migrate"
	"github.com/morphaven/claude-recontext/internal/ui"
)

// MigrateConfig holds parsed CLI options for the migrate command.
type MigrateConfig struct {
	From   string
	To     string
	DryRun bool
	Yes    bool
}

func parseMigrateFlags(
	args []string, out io.Writer,
) (MigrateConfig, *flag.FlagSet, error) {
	fs := newFlagSet("migrate", out)
	from := fs.String("from", "", "Old project path")
	to := fs.String("to", "", "New project path")
	dryRun := fs.Bool(
		"dry-run", false,
		"Show what would change without writing",
	)
	fs.BoolVar(dryRun, "n", false, "Shorthand for -dry-run")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return MigrateConfig{}, nil, err
	}

	cfg := MigrateConfig{
		From:   *from,
		To:     *to,
		DryRun: *dryRun,
		Yes:    *yes,
	}

	rest := fs.Args()
	switch {
	case cfg.From == "" && cfg.To == "" && len(rest) == 2:
		cfg.From, cfg.To = rest[0], rest[1]
	case len(rest) > 0:
		return MigrateConfig{}, nil, fmt.Errorf(
			"unexpected arguments: %v", rest,
		)
	}

	if cfg.From == "" || cfg.To == "" {
		return MigrateConfig{}, nil, fmt.Errorf(
			"-from and -to must be used together",
		)
	}
	return cfg, fs, nil
}

func runMigrate(args []string) {
	u := newUI()
	mc, fs, err := parseMigrateFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fatal("%v", err)
	}

	cfg := mustLoadConfig(fs)
	j := openJournal(cfg)
	if j != nil {
		defer j.Close()
	}

	ctx, stop := signalContext()
	defer stop()

	m := &Migrator{
		Engine: newEngine(cfg, u, migrate.WithJournal(j)),
		UI:     u,
	}
	if err := m.Run(ctx, mc); err != nil {
		u.Fail("%v", err)
		os.Exit(1)
	}
}

func newEngine(
	cfg config.Config, u *ui.UI, opts ...migrate.Option,
) *migrate.Engine {
	opts = append(opts, migrate.WithReporter(&uiReporter{ui: u}))
	return migrate.New(migrate.Paths{
		ProjectsDir: cfg.ProjectsDir,
		HistoryFile: cfg.HistoryFile,
		LockPath:    cfg.LockPath,
	}, opts...)
}

// Migrator runs one migration and prints its outcome.
type Migrator struct {
	Engine *migrate.Engine
	UI     *ui.UI
}

// Run migrates mc.From to mc.To. Unless mc.Yes or mc.DryRun is
// set the plan is previewed and the user is asked to confirm
// first.
func (m *Migrator) Run(ctx context.Context, mc MigrateConfig) error {
	opts := migrate.Options{From: mc.From, To: mc.To, DryRun: mc.DryRun}

	if !mc.Yes && !mc.DryRun {
		preview, err := m.Engine.Migrate(ctx, migrate.Options{
			From: mc.From, To: mc.To, DryRun: true,
		})
		if err != nil {
			return err
		}
		m.printPlan(preview.Plan)
		m.UI.Blank()
		ok, err := m.UI.Confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			m.UI.Info("Cancelled.")
			return nil
		}
	}

	if opts.DryRun {
		m.UI.DryRunBanner()
	}
	out, err := m.Engine.Migrate(ctx, opts)
	if err != nil {
		return err
	}

	if out.Plan != nil {
		m.printPlan(out.Plan)
		return nil
	}
	m.printResult(out.Result)
	return nil
}

func (m *Migrator) printPlan(p *migrate.PlanResult) {
	m.UI.Heading("Migration plan")
	m.UI.Info("Source: %s", p.From)
	m.UI.Info("Target: %s", p.To)
	m.UI.Info("Old encoding: %s", p.OldEncoded)
	m.UI.Info("New encoding: %s", p.NewEncoded)
	m.UI.Blank()
	for _, a := range p.Actions {
		switch a.Kind {
		case migrate.ActionRenameDir:
			m.UI.Info("Directory will be renamed:")
			m.UI.Migration(a.Path, a.To)
		case migrate.ActionUpdateFile:
			m.UI.FileUpdated(a.Path + " (will be updated)")
		}
	}
	m.UI.Blank()
	m.UI.Info("%d change(s) would be made.", len(p.Actions))
}

func (m *Migrator) printResult(r *migrate.Result) {
	m.UI.Blank()
	if len(r.Residues) == 0 {
		m.UI.Success("Migration complete. No references to the old path remain.")
	} else {
		m.UI.Warn("%d file(s) still reference the old path:", len(r.Residues))
		for _, f := range r.Residues {
			m.UI.Bullet(f)
		}
	}
	m.UI.Info("%d file(s) updated, %d log line(s) changed.",
		r.FilesUpdated(), r.LinesChanged+r.HistoryLinesChanged)
}

// uiReporter prints engine progress.
type uiReporter struct {
	ui          *ui.UI
	rollingBack bool
}

func (r *uiReporter) StepStarted(s migrate.Step, n, total int) {
	r.ui.Heading("Step %d/%d: %s", n, total, s)
}

func (r *uiReporter) Renamed(from, to string) { r.ui.Migration(from, to) }

func (r *uiReporter) FileUpdated(path string, lines int) {
	if lines > 0 {
		r.ui.FileUpdated(fmt.Sprintf("%s (%d lines)", path, lines))
		return
	}
	r.ui.FileUpdated(path)
}

func (r *uiReporter) Info(msg string) { r.ui.Info("%s", msg) }

func (r *uiReporter) Undone(o migrate.UndoOutcome) {
	if !r.rollingBack {
		r.rollingBack = true
		r.ui.Heading("Error, rolling back")
	}
	if o.Err != nil {
		r.ui.Fail("undo failed: %s: %v", o.Action, o.Err)
		return
	}
	r.ui.Success("undone: %s", o.Action)
}
