package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"github.com/morphaven/claude-recontext/internal/journal"
	"github.com/morphaven/claude-recontext/internal/rewrite"
	"github.com/morphaven/claude-recontext/internal/testjsonl"
)

const (
	oldPath    = `C:\Users\Old\project`
	newPath    = `C:\Users\New\project`
	oldEncoded = "C--Users-Old-project"
	newEncoded = "C--Users-New-project"
	tsZero     = "2024-01-01T00:00:00Z"

	matchingLine  = `{"cwd":"C:\\Users\\Old\\project","type":"user"}`
	unrelatedLine = `{ "type": "assistant", "message": "unrelated" }`
)

type store struct {
	root     string
	projects string
	history  string
	lock     string
}

func (s store) paths() Paths {
	return Paths{
		ProjectsDir: s.projects,
		HistoryFile: s.history,
		LockPath:    s.lock,
	}
}

func (s store) dir(encoded string) string {
	return filepath.Join(s.projects, encoded)
}

// newStore builds the canonical fixture: one Windows project with
// an index, a session log with two matching lines and one
// unrelated line, a memory note and a history log.
func newStore(t *testing.T) store {
	t.Helper()
	root := t.TempDir()
	s := store{
		root:     root,
		projects: filepath.Join(root, ".claude", "projects"),
		history:  filepath.Join(root, ".claude", "history.jsonl"),
		lock:     filepath.Join(root, ".recontext", "recontext.lock"),
	}
	dir := s.dir(oldEncoded)
	testjsonl.WriteFile(t, dir, rewrite.IndexFileName,
		testjsonl.SessionsIndexJSON(oldPath, testjsonl.IndexEntry{
			SessionID:   "abc",
			FullPath:    `C:\Users\me\.claude\projects\` + oldEncoded + `\abc.jsonl`,
			ProjectPath: oldPath,
		}))
	testjsonl.WriteFile(t, dir, "session.jsonl",
		testjsonl.JoinJSONL(matchingLine, unrelatedLine, matchingLine))
	testjsonl.WriteFile(t, dir, "memory/MEMORY.md",
		"Project root: C:/Users/Old/project\n")
	testjsonl.WriteFile(t, filepath.Dir(s.history), "history.jsonl",
		testjsonl.JoinJSONL(
			testjsonl.HistoryJSON("fix bug", oldPath, 1),
			testjsonl.HistoryJSON("other", `C:\Users\Old\elsewhere`, 2),
		))
	return s
}

// snapshot returns every file under root keyed by relative path.
// The lock directory is skipped.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".recontext" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = testjsonl.ReadFile(t, path)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return files
}

type recordingReporter struct {
	steps   []Step
	updated []string
	renamed [][2]string
	undone  []UndoOutcome
}

func (r *recordingReporter) StepStarted(s Step, _, _ int) { r.steps = append(r.steps, s) }
func (r *recordingReporter) Renamed(from, to string)     { r.renamed = append(r.renamed, [2]string{from, to}) }
func (r *recordingReporter) FileUpdated(p string, _ int) { r.updated = append(r.updated, p) }
func (r *recordingReporter) Info(string)                 {}
func (r *recordingReporter) Undone(o UndoOutcome)        { r.undone = append(r.undone, o) }

func TestMigrateEndToEnd(t *testing.T) {
	s := newStore(t)
	rep := &recordingReporter{}
	e := New(s.paths(), WithReporter(rep))

	out, err := e.Migrate(context.Background(), Options{From: oldPath, To: newPath})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	res := out.Result
	if res == nil || out.Plan != nil {
		t.Fatalf("expected live result, got %+v", out)
	}

	if _, err := os.Stat(s.dir(oldEncoded)); !os.IsNotExist(err) {
		t.Errorf("old directory still present: %v", err)
	}
	dir := s.dir(newEncoded)

	wantIndex := testjsonl.SessionsIndexJSON(newPath, testjsonl.IndexEntry{
		SessionID:   "abc",
		FullPath:    `C:\Users\me\.claude\projects\` + newEncoded + `\abc.jsonl`,
		ProjectPath: newPath,
	})
	if got := testjsonl.ReadFile(t, filepath.Join(dir, rewrite.IndexFileName)); got != wantIndex {
		t.Errorf("index:\n%s\nwant:\n%s", got, wantIndex)
	}

	newLine := `{"cwd":"C:\\Users\\New\\project","type":"user"}`
	wantLog := testjsonl.JoinJSONL(newLine, unrelatedLine, newLine)
	if got := testjsonl.ReadFile(t, filepath.Join(dir, "session.jsonl")); got != wantLog {
		t.Errorf("session log:\n%s\nwant:\n%s", got, wantLog)
	}
	if got := testjsonl.ReadFile(t, filepath.Join(dir, "memory", "MEMORY.md")); got != "Project root: C:/Users/New/project\n" {
		t.Errorf("memory note = %q", got)
	}
	wantHistory := testjsonl.JoinJSONL(
		testjsonl.HistoryJSON("fix bug", newPath, 1),
		testjsonl.HistoryJSON("other", `C:\Users\Old\elsewhere`, 2),
	)
	if got := testjsonl.ReadFile(t, s.history); got != wantHistory {
		t.Errorf("history:\n%s\nwant:\n%s", got, wantHistory)
	}

	want := &Result{
		From:                oldPath,
		To:                  newPath,
		OldEncoded:          oldEncoded,
		NewEncoded:          newEncoded,
		IndexUpdated:        true,
		LogFilesUpdated:     1,
		LinesChanged:        2,
		NotesUpdated:        1,
		HistoryUpdated:      true,
		HistoryLinesChanged: 1,
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if res.FilesUpdated() != 4 {
		t.Errorf("FilesUpdated = %d, want 4", res.FilesUpdated())
	}

	wantSteps := []Step{StepRename, StepIndex, StepLogs, StepNotes, StepHistory, StepVerify}
	if !slices.Equal(rep.steps, wantSteps) {
		t.Errorf("steps = %v, want %v", rep.steps, wantSteps)
	}

	for rel := range snapshot(t, s.root) {
		if strings.Contains(rel, rewrite.BackupSuffix) || strings.Contains(rel, ".tmp.") {
			t.Errorf("leftover file %s", rel)
		}
	}
}

func TestMigrateDryRun(t *testing.T) {
	s := newStore(t)
	before := snapshot(t, s.root)

	out, err := New(s.paths()).Migrate(context.Background(),
		Options{From: oldPath, To: newPath, DryRun: true})
	if err != nil {
		t.Fatalf("Migrate dry run: %v", err)
	}
	if out.Result != nil || out.Plan == nil {
		t.Fatalf("expected plan only, got %+v", out)
	}
	if diff := cmp.Diff(before, snapshot(t, s.root)); diff != "" {
		t.Fatalf("dry run modified files (-before +after):\n%s", diff)
	}

	oldDir := s.dir(oldEncoded)
	want := []PlannedAction{
		{Kind: ActionRenameDir, Path: oldDir, To: s.dir(newEncoded)},
		{Kind: ActionUpdateFile, Path: filepath.Join(oldDir, rewrite.IndexFileName)},
		{Kind: ActionUpdateFile, Path: filepath.Join(oldDir, "session.jsonl")},
		{Kind: ActionUpdateFile, Path: filepath.Join(oldDir, "memory", "MEMORY.md")},
		{Kind: ActionUpdateFile, Path: s.history},
	}
	if diff := cmp.Diff(want, out.Plan.Actions); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}

	// A live run on an identical store touches the same files.
	assertPlanMatchesLive(t, newStore)
}

// assertPlanMatchesLive dry-runs one store built by build and
// migrates a second, then checks both name the same files.
func assertPlanMatchesLive(t *testing.T, build func(*testing.T) store) {
	t.Helper()
	planStore := build(t)
	out, err := New(planStore.paths()).Migrate(context.Background(),
		Options{From: oldPath, To: newPath, DryRun: true})
	if err != nil {
		t.Fatalf("Migrate dry run: %v", err)
	}

	live := build(t)
	rep := &recordingReporter{}
	if _, err := New(live.paths(), WithReporter(rep)).Migrate(
		context.Background(), Options{From: oldPath, To: newPath},
	); err != nil {
		t.Fatalf("live Migrate: %v", err)
	}
	rel := func(root string, paths []string, from, to string) []string {
		var out []string
		for _, p := range paths {
			r, _ := filepath.Rel(root, p)
			out = append(out, strings.Replace(filepath.ToSlash(r), from, to, 1))
		}
		return out
	}
	planned := rel(planStore.root, out.Plan.Files(), oldEncoded, newEncoded)
	updated := rel(live.root, rep.updated, "", "")
	if diff := cmp.Diff(planned, updated); diff != "" {
		t.Errorf("dry run and live run disagree (-plan +live):\n%s", diff)
	}
}

func TestMigrateDryRunIndexLayout(t *testing.T) {
	tests := []struct {
		name      string
		index     string
		wantIndex bool
	}{
		{
			name:  "compact index without the old path",
			index: `{"version":1,"entries":[]}`,
		},
		{
			name:  "tab indented index without the old path",
			index: "{\n\t\"originalPath\": \"C:\\\\Users\\\\Else\"\n}\n",
		},
		{
			name:      "compact index with the old path",
			index:     `{"originalPath":"C:\\Users\\Old\\project","entries":[]}`,
			wantIndex: true,
		},
		{
			name:  "old path only in an unrelated field",
			index: `{"note":"C:\\Users\\Old\\project"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			build := func(t *testing.T) store {
				s := newStore(t)
				testjsonl.WriteFile(t, s.dir(oldEncoded), rewrite.IndexFileName, tt.index)
				return s
			}
			assertPlanMatchesLive(t, build)

			s := build(t)
			out, err := New(s.paths()).Migrate(context.Background(),
				Options{From: oldPath, To: newPath, DryRun: true})
			if err != nil {
				t.Fatalf("Migrate dry run: %v", err)
			}
			index := filepath.Join(s.dir(oldEncoded), rewrite.IndexFileName)
			if got := slices.Contains(out.Plan.Files(), index); got != tt.wantIndex {
				t.Errorf("index planned = %v, want %v", got, tt.wantIndex)
			}
		})
	}
}

func TestMigrateSymlinkedProjectDir(t *testing.T) {
	s := newStore(t)
	realDir := filepath.Join(s.root, "elsewhere", oldEncoded)
	if err := os.MkdirAll(filepath.Dir(realDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(s.dir(oldEncoded), realDir); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realDir, s.dir(oldEncoded)); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	out, err := New(s.paths()).Migrate(context.Background(),
		Options{From: oldPath, To: newPath, DryRun: true})
	if err != nil {
		t.Fatalf("Migrate dry run: %v", err)
	}
	if n := len(out.Plan.Files()); n != 4 {
		t.Errorf("planned %d files, want 4: %v", n, out.Plan.Files())
	}

	out, err = New(s.paths()).Migrate(context.Background(),
		Options{From: oldPath, To: newPath})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	res := out.Result
	if res.LogFilesUpdated != 1 || res.NotesUpdated != 1 || !res.IndexUpdated {
		t.Errorf("result = %+v, want index, 1 log and 1 note updated", res)
	}
	if len(res.Residues) != 0 {
		t.Errorf("residues = %v", res.Residues)
	}

	info, err := os.Lstat(s.dir(newEncoded))
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("new project dir is not the moved link: %v", err)
	}
	got := testjsonl.ReadFile(t, filepath.Join(realDir, "session.jsonl"))
	if strings.Contains(got, `Old`) {
		t.Errorf("session log behind link not rewritten:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(realDir, "session.jsonl"+rewrite.BackupSuffix)); !os.IsNotExist(err) {
		t.Errorf("backup left behind: %v", err)
	}
}

func TestMigratePreconditions(t *testing.T) {
	t.Run("destination exists", func(t *testing.T) {
		s := newStore(t)
		testjsonl.WriteFile(t, s.dir(newEncoded), "keep.jsonl", "{}\n")
		before := snapshot(t, s.root)

		_, err := New(s.paths()).Migrate(context.Background(),
			Options{From: oldPath, To: newPath})
		if !errors.Is(err, ErrDestinationExists) {
			t.Fatalf("err = %v, want ErrDestinationExists", err)
		}
		var pe *PreconditionError
		if !errors.As(err, &pe) || pe.Encoded != newEncoded {
			t.Errorf("expected PreconditionError for %s, got %#v", newEncoded, err)
		}
		if diff := cmp.Diff(before, snapshot(t, s.root)); diff != "" {
			t.Errorf("files changed (-before +after):\n%s", diff)
		}
	})

	t.Run("source missing", func(t *testing.T) {
		s := newStore(t)
		_, err := New(s.paths()).Migrate(context.Background(),
			Options{From: `C:\Users\Nobody\proj`, To: newPath})
		if !errors.Is(err, ErrSourceNotFound) {
			t.Fatalf("err = %v, want ErrSourceNotFound", err)
		}
		if !strings.Contains(err.Error(), "C--Users-Nobody-proj") {
			t.Errorf("error should name the encoded form: %v", err)
		}
	})

	t.Run("same path", func(t *testing.T) {
		s := newStore(t)
		_, err := New(s.paths()).Migrate(context.Background(),
			Options{From: oldPath, To: `"` + oldPath + `\"`})
		if !errors.Is(err, ErrSamePath) {
			t.Fatalf("err = %v, want ErrSamePath", err)
		}
	})

	t.Run("same encoding", func(t *testing.T) {
		s := newStore(t)
		_, err := New(s.paths()).Migrate(context.Background(),
			Options{From: oldPath, To: `C:\Users\Old.project`})
		if !errors.Is(err, ErrSamePath) {
			t.Fatalf("err = %v, want ErrSamePath", err)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		s := newStore(t)
		_, err := New(s.paths()).Migrate(context.Background(),
			Options{From: oldPath, To: "  "})
		if !errors.Is(err, ErrMissingPath) {
			t.Fatalf("err = %v, want ErrMissingPath", err)
		}
	})

	t.Run("store locked", func(t *testing.T) {
		s := newStore(t)
		if err := os.MkdirAll(filepath.Dir(s.lock), 0o755); err != nil {
			t.Fatal(err)
		}
		held := flock.New(s.lock)
		ok, err := held.TryLock()
		if err != nil || !ok {
			t.Fatalf("TryLock: %v %v", ok, err)
		}
		defer held.Unlock()

		before := snapshot(t, s.projects)
		_, err = New(s.paths()).Migrate(context.Background(),
			Options{From: oldPath, To: newPath})
		if !errors.Is(err, ErrMigrationInProgress) {
			t.Fatalf("err = %v, want ErrMigrationInProgress", err)
		}
		if diff := cmp.Diff(before, snapshot(t, s.projects)); diff != "" {
			t.Errorf("files changed (-before +after):\n%s", diff)
		}
	})
}

func TestMigrateRollback(t *testing.T) {
	s := newStore(t)
	testjsonl.WriteFile(t, s.dir(oldEncoded), "z-second.jsonl",
		testjsonl.JoinJSONL(matchingLine))
	before := snapshot(t, s.root)

	rep := &recordingReporter{}
	e := New(s.paths(), WithReporter(rep))
	diskFull := errors.New("disk full")
	e.rewriteLog = func(path, from, to string) (rewrite.LogResult, error) {
		if filepath.Base(path) == "z-second.jsonl" {
			return rewrite.LogResult{}, diskFull
		}
		return rewrite.RewriteLogWithBackup(path, from, to)
	}

	_, err := e.Migrate(context.Background(), Options{From: oldPath, To: newPath})
	if !errors.Is(err, diskFull) {
		t.Fatalf("err = %v, want wrapped disk full", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if stepErr.Step != StepLogs {
		t.Errorf("failed step = %v, want %v", stepErr.Step, StepLogs)
	}
	if stepErr.UndoFailures() != 0 {
		t.Errorf("undo failures: %+v", stepErr.Undo)
	}

	wantKinds := []UndoKind{UndoRestoreBackup, UndoRestoreContent, UndoRename}
	var gotKinds []UndoKind
	for _, o := range stepErr.Undo {
		gotKinds = append(gotKinds, o.Action.Kind)
	}
	if !slices.Equal(gotKinds, wantKinds) {
		t.Errorf("undo order = %v, want %v", gotKinds, wantKinds)
	}
	if len(rep.undone) != len(wantKinds) {
		t.Errorf("reporter saw %d undo outcomes, want %d", len(rep.undone), len(wantKinds))
	}

	if _, err := os.Stat(s.dir(newEncoded)); !os.IsNotExist(err) {
		t.Errorf("new directory still present: %v", err)
	}
	if diff := cmp.Diff(before, snapshot(t, s.root)); diff != "" {
		t.Errorf("store not restored (-before +after):\n%s", diff)
	}
}

func TestMigrateCancelledContext(t *testing.T) {
	s := newStore(t)
	before := snapshot(t, s.root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(s.paths()).Migrate(ctx, Options{From: oldPath, To: newPath})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff(before, snapshot(t, s.root)); diff != "" {
		t.Errorf("files changed (-before +after):\n%s", diff)
	}
}

func TestMigrateWithoutHistory(t *testing.T) {
	s := newStore(t)
	if err := os.Remove(s.history); err != nil {
		t.Fatal(err)
	}

	out, err := New(s.paths()).Migrate(context.Background(),
		Options{From: oldPath, To: newPath})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if out.Result.HistoryUpdated {
		t.Error("history reported updated but does not exist")
	}
	if _, err := os.Stat(s.history); !os.IsNotExist(err) {
		t.Errorf("history file was created: %v", err)
	}
}

func TestMigrateReportsResidues(t *testing.T) {
	s := newStore(t)
	// A key is never rewritten, so this line keeps the old path.
	testjsonl.WriteFile(t, s.dir(oldEncoded), "keys.jsonl",
		`{"C:\\Users\\Old\\project":1}`+"\n")

	out, err := New(s.paths()).Migrate(context.Background(),
		Options{From: oldPath, To: newPath})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	want := []string{filepath.Join(s.dir(newEncoded), "keys.jsonl")}
	if diff := cmp.Diff(want, out.Result.Residues); diff != "" {
		t.Errorf("residues (-want +got):\n%s", diff)
	}
}

func TestMigrateNestedNewPath(t *testing.T) {
	root := t.TempDir()
	projects := filepath.Join(root, "projects")
	testjsonl.WriteFile(t, filepath.Join(projects, "-srv-app"), "s.jsonl",
		testjsonl.JoinJSONL(testjsonl.ClaudeUserJSON("hi", tsZero, "/srv/app")))

	out, err := New(Paths{ProjectsDir: projects}).Migrate(context.Background(),
		Options{From: "/srv/app", To: "/srv/app/v2"})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(out.Result.Residues) != 0 {
		t.Errorf("new path containing the old one reported as residue: %v", out.Result.Residues)
	}
	got := testjsonl.ReadFile(t, filepath.Join(projects, "-srv-app-v2", "s.jsonl"))
	if !strings.Contains(got, `"cwd":"/srv/app/v2"`) {
		t.Errorf("log not rewritten: %s", got)
	}
}

func TestMigrateJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()
	ctx := context.Background()

	s := newStore(t)
	e := New(s.paths(), WithJournal(j))
	e.rewriteLog = func(string, string, string) (rewrite.LogResult, error) {
		return rewrite.LogResult{}, fmt.Errorf("boom")
	}
	if _, err := e.Migrate(ctx, Options{From: oldPath, To: newPath}); err == nil {
		t.Fatal("expected failure")
	}

	e = New(s.paths(), WithJournal(j))
	if _, err := e.Migrate(ctx, Options{From: oldPath, To: newPath}); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	entries, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d journal entries, want 2", len(entries))
	}
	if entries[0].Status != journal.StatusCommitted || entries[0].FilesUpdated != 4 {
		t.Errorf("latest entry = %+v", entries[0])
	}
	if entries[1].Status != journal.StatusRolledBack || !strings.Contains(entries[1].Error, "boom") {
		t.Errorf("first entry = %+v", entries[1])
	}
}
