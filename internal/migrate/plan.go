package migrate

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/morphaven/claude-recontext/internal/rewrite"
)

// ActionKind is the type of a planned change.
type ActionKind string

const (
	ActionRenameDir  ActionKind = "rename-directory"
	ActionUpdateFile ActionKind = "update-file"
)

// PlannedAction is one change a live migration would make.
type PlannedAction struct {
	Kind ActionKind
	Path string
	// To is the rename target for ActionRenameDir.
	To string
}

// PlanResult is the outcome of a dry run.
type PlanResult struct {
	From       string
	To         string
	OldEncoded string
	NewEncoded string
	Actions    []PlannedAction
}

// Files returns the paths of the files that would be updated.
func (p *PlanResult) Files() []string {
	var files []string
	for _, a := range p.Actions {
		if a.Kind == ActionUpdateFile {
			files = append(files, a.Path)
		}
	}
	return files
}

// PlanOnly lists the changes migrating oldPath in oldDir to
// newPath in newDir would make, without writing anything. Every
// log is scanned in full; unreadable files are left out of the
// plan.
func (e *Engine) PlanOnly(
	oldDir, newDir, oldPath, newPath string,
) []PlannedAction {
	actions := []PlannedAction{
		{Kind: ActionRenameDir, Path: oldDir, To: newDir},
	}
	update := func(path string) {
		actions = append(actions, PlannedAction{Kind: ActionUpdateFile, Path: path})
	}
	scan := func(
		path string, fn func(path, oldPath string) (bool, error), needles ...string,
	) {
		for _, needle := range needles {
			found, err := fn(path, needle)
			if err != nil {
				log.Printf("plan: skipping %s: %v", path, err)
				return
			}
			if found {
				update(path)
				return
			}
		}
	}

	index := rewrite.IndexPath(oldDir)
	if data, err := os.ReadFile(index); err == nil {
		_, changed := rewrite.RewriteIndexData(data, oldPath, newPath,
			filepath.Base(oldDir), filepath.Base(newDir))
		if changed {
			update(index)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("plan: skipping %s: %v", index, err)
	}
	for _, file := range rewrite.FindLogFiles(oldDir) {
		scan(file, rewrite.ScanLogForMatch, oldPath)
	}
	for _, file := range rewrite.FindFiles(oldDir, ".md") {
		scan(file, rewrite.ScanTextForMatch, oldPath)
	}
	if h := e.paths.HistoryFile; h != "" && fileExists(h) {
		scan(h, rewrite.ScanLogForMatch, oldPath)
	}
	return actions
}
