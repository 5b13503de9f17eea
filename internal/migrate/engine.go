// Package migrate moves a project's Claude Code history from one
// source path to another as a single transaction: the store
// directory is renamed and every reference to the old path in the
// project's files and the global history log is rewritten. Any
// failure unwinds the steps already applied.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/morphaven/claude-recontext/internal/journal"
	"github.com/morphaven/claude-recontext/internal/pathcodec"
	"github.com/morphaven/claude-recontext/internal/rewrite"
	"github.com/morphaven/claude-recontext/internal/scanner"
)

// Paths locates the store and the files around it.
type Paths struct {
	ProjectsDir string
	// HistoryFile is the global history log. Empty disables
	// the history step.
	HistoryFile string
	// LockPath, when set, is locked for the duration of a live
	// migration.
	LockPath string
}

// Options describes one migration request.
type Options struct {
	From   string
	To     string
	DryRun bool
}

// Result summarizes a committed migration.
type Result struct {
	From                string
	To                  string
	OldEncoded          string
	NewEncoded          string
	IndexUpdated        bool
	LogFilesUpdated     int
	LinesChanged        int
	NotesUpdated        int
	HistoryUpdated      bool
	HistoryLinesChanged int
	// Residues lists files that still mention the old path after
	// all steps completed. They need manual attention.
	Residues []string
}

// FilesUpdated returns the number of files rewritten.
func (r *Result) FilesUpdated() int {
	n := r.LogFilesUpdated + r.NotesUpdated
	if r.IndexUpdated {
		n++
	}
	if r.HistoryUpdated {
		n++
	}
	return n
}

// Outcome holds the result of Migrate: Result for a live run or
// Plan for a dry run.
type Outcome struct {
	Result *Result
	Plan   *PlanResult
}

// Engine runs migrations against one store.
type Engine struct {
	paths   Paths
	scanner *scanner.Scanner
	journal *journal.Journal
	rep     Reporter
	now     func() time.Time

	// rewriteLog is replaceable in tests to inject failures.
	rewriteLog func(path, oldPath, newPath string) (rewrite.LogResult, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithReporter sends progress to r.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.rep = r }
}

// WithJournal records every live attempt in j.
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// New returns an Engine for the store described by paths.
func New(paths Paths, opts ...Option) *Engine {
	e := &Engine{
		paths:      paths,
		scanner:    scanner.New(paths.ProjectsDir),
		rep:        NopReporter{},
		now:        time.Now,
		rewriteLog: rewrite.RewriteLogWithBackup,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Migrate moves the history of opts.From to opts.To. With
// DryRun set nothing is written and the returned Outcome holds
// the plan. Precondition failures are returned as
// *PreconditionError before anything is touched; failures after
// that are returned as *StepError once every applied step has
// been rolled back.
func (e *Engine) Migrate(ctx context.Context, opts Options) (Outcome, error) {
	from, err := pathcodec.Normalize(opts.From)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving source path: %w", err)
	}
	to, err := pathcodec.Normalize(opts.To)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving destination path: %w", err)
	}
	if from == "" || to == "" {
		return Outcome{}, ErrMissingPath
	}
	if from == to {
		return Outcome{}, ErrSamePath
	}

	oldEnc, newEnc := pathcodec.Encode(from), pathcodec.Encode(to)
	if oldEnc == newEnc {
		return Outcome{}, fmt.Errorf(
			"%w: %q and %q both encode to %s",
			ErrSamePath, from, to, oldEnc,
		)
	}
	oldDir := e.scanner.ProjectDir(oldEnc)
	newDir := e.scanner.ProjectDir(newEnc)

	if !opts.DryRun {
		unlock, err := e.lock()
		if err != nil {
			return Outcome{}, err
		}
		defer unlock()
	}

	if !e.scanner.DirectoryExistsFor(oldEnc) {
		return Outcome{}, &PreconditionError{
			Err: ErrSourceNotFound, Path: from,
			Encoded: oldEnc, Dir: oldDir,
		}
	}
	if _, err := os.Lstat(newDir); err == nil {
		return Outcome{}, &PreconditionError{
			Err: ErrDestinationExists, Path: to,
			Encoded: newEnc, Dir: newDir,
		}
	}

	if opts.DryRun {
		return Outcome{Plan: &PlanResult{
			From:       from,
			To:         to,
			OldEncoded: oldEnc,
			NewEncoded: newEnc,
			Actions:    e.PlanOnly(oldDir, newDir, from, to),
		}}, nil
	}

	res, err := e.run(ctx, &Result{
		From: from, To: to, OldEncoded: oldEnc, NewEncoded: newEnc,
	}, oldDir, newDir)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: res}, nil
}

// lock takes the store lock without blocking.
func (e *Engine) lock() (func(), error) {
	if e.paths.LockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(e.paths.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(e.paths.LockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking store: %w", err)
	}
	if !ok {
		return nil, ErrMigrationInProgress
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Printf("warning: releasing store lock: %v", err)
		}
	}, nil
}

type stepFunc struct {
	step Step
	run  func(*undoLog) error
}

func (e *Engine) run(
	ctx context.Context, res *Result, oldDir, newDir string,
) (*Result, error) {
	started := e.now()
	log.Printf("migrate: %s -> %s (%s -> %s)",
		res.From, res.To, res.OldEncoded, res.NewEncoded)

	steps := []stepFunc{
		{StepRename, func(u *undoLog) error {
			return e.renameDir(oldDir, newDir, u)
		}},
		{StepIndex, func(u *undoLog) error {
			return e.rewriteIndex(newDir, res, u)
		}},
		{StepLogs, func(u *undoLog) error {
			return e.rewriteLogs(newDir, res, u)
		}},
		{StepNotes, func(u *undoLog) error {
			return e.rewriteNotes(newDir, res, u)
		}},
		{StepHistory, func(u *undoLog) error {
			return e.rewriteHistory(res, u)
		}},
	}
	total := len(steps) + 1

	var undo undoLog
	for i, s := range steps {
		err := ctx.Err()
		if err == nil {
			e.rep.StepStarted(s.step, i+1, total)
			err = s.run(&undo)
		}
		if err != nil {
			log.Printf("migrate: %s failed: %v; rolling back", s.step, err)
			stepErr := &StepError{Step: s.step, Err: err}
			stepErr.Undo = undo.unwind(e.rep)
			e.record(ctx, started, res, stepErr)
			return nil, stepErr
		}
	}

	e.rep.StepStarted(StepVerify, total, total)
	res.Residues = e.verify(newDir, res)
	undo.commit()
	e.record(ctx, started, res, nil)
	log.Printf("migrate: committed, %d file(s) updated, %d residue(s)",
		res.FilesUpdated(), len(res.Residues))
	return res, nil
}

func (e *Engine) renameDir(oldDir, newDir string, u *undoLog) error {
	if err := os.Rename(oldDir, newDir); err != nil {
		return fmt.Errorf("renaming project directory: %w", err)
	}
	u.push(UndoAction{Kind: UndoRename, From: newDir, To: oldDir})
	e.rep.Renamed(oldDir, newDir)
	return nil
}

func (e *Engine) rewriteIndex(dir string, res *Result, u *undoLog) error {
	r, err := rewrite.RewriteIndex(
		dir, res.From, res.To, res.OldEncoded, res.NewEncoded,
	)
	if err != nil {
		return fmt.Errorf("rewriting index: %w", err)
	}
	if !r.Changed {
		e.rep.Info("sessions-index.json not found or already up to date")
		return nil
	}
	u.push(UndoAction{Kind: UndoRestoreContent, Path: r.Path, Prior: r.Prior})
	res.IndexUpdated = true
	e.rep.FileUpdated(r.Path, 0)
	return nil
}

func (e *Engine) rewriteLogs(dir string, res *Result, u *undoLog) error {
	for _, file := range rewrite.FindLogFiles(dir) {
		r, err := e.rewriteLog(file, res.From, res.To)
		if err != nil {
			return fmt.Errorf("rewriting %s: %w", file, err)
		}
		if !r.Changed {
			continue
		}
		pushLogUndo(u, r)
		res.LogFilesUpdated++
		res.LinesChanged += r.LinesChanged
		e.rep.FileUpdated(r.Path, r.LinesChanged)
	}
	if res.LogFilesUpdated == 0 {
		e.rep.Info("no session log needed changes")
	}
	return nil
}

func (e *Engine) rewriteNotes(dir string, res *Result, u *undoLog) error {
	for _, file := range rewrite.FindFiles(dir, ".md") {
		r, err := rewrite.RewriteTextBlob(file, res.From, res.To)
		if err != nil {
			return fmt.Errorf("rewriting %s: %w", file, err)
		}
		if !r.Changed {
			continue
		}
		u.push(UndoAction{Kind: UndoRestoreContent, Path: r.Path, Prior: r.Prior})
		res.NotesUpdated++
		e.rep.FileUpdated(r.Path, 0)
	}
	return nil
}

func (e *Engine) rewriteHistory(res *Result, u *undoLog) error {
	path := e.paths.HistoryFile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		e.rep.Info("history.jsonl not found")
		return nil
	}
	r, err := e.rewriteLog(path, res.From, res.To)
	if err != nil {
		return fmt.Errorf("rewriting history: %w", err)
	}
	if !r.Changed {
		e.rep.Info("history.jsonl already up to date")
		return nil
	}
	pushLogUndo(u, r)
	res.HistoryUpdated = true
	res.HistoryLinesChanged = r.LinesChanged
	e.rep.FileUpdated(r.Path, r.LinesChanged)
	return nil
}

func pushLogUndo(u *undoLog, r rewrite.LogResult) {
	if r.BackupPath == "" {
		log.Printf("warning: %s rewritten without a backup", r.Path)
		return
	}
	u.push(UndoAction{
		Kind: UndoRestoreBackup, Path: r.Path, Backup: r.BackupPath,
	})
}

// verify rescans everything the migration could have touched and
// returns the files that still mention the old path.
func (e *Engine) verify(dir string, res *Result) []string {
	var residues []string
	check := func(
		path string, scan func(path, oldPath, newPath string) (bool, error),
	) {
		found, err := scan(path, res.From, res.To)
		if err != nil {
			log.Printf("warning: verifying %s: %v", path, err)
			return
		}
		if found {
			residues = append(residues, path)
		}
	}

	for _, file := range rewrite.FindLogFiles(dir) {
		check(file, rewrite.ScanLogForResidue)
	}
	if index := filepath.Join(dir, rewrite.IndexFileName); fileExists(index) {
		check(index, rewrite.ScanTextForResidue)
	}
	for _, file := range rewrite.FindFiles(dir, ".md") {
		check(file, rewrite.ScanTextForResidue)
	}
	if res.HistoryUpdated {
		check(e.paths.HistoryFile, rewrite.ScanLogForResidue)
	}

	for _, r := range residues {
		log.Printf("migrate: residue in %s", r)
	}
	return residues
}

func (e *Engine) record(
	ctx context.Context, started time.Time, res *Result, stepErr *StepError,
) {
	if e.journal == nil {
		return
	}
	entry := journal.Entry{
		StartedAt:    started,
		FinishedAt:   e.now(),
		FromPath:     res.From,
		ToPath:       res.To,
		OldEncoded:   res.OldEncoded,
		NewEncoded:   res.NewEncoded,
		Status:       journal.StatusCommitted,
		FilesUpdated: res.FilesUpdated(),
		LinesChanged: res.LinesChanged + res.HistoryLinesChanged,
		Residues:     len(res.Residues),
	}
	if stepErr != nil {
		entry.Status = journal.StatusRolledBack
		if stepErr.UndoFailures() > 0 {
			entry.Status = journal.StatusFailed
		}
		entry.Error = stepErr.Error()
	}
	if _, err := e.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("warning: recording migration: %v", err)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
