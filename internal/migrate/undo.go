package migrate

import (
	"fmt"
	"log"
	"os"

	"github.com/morphaven/claude-recontext/internal/rewrite"
)

// UndoKind identifies how an undo action reverts a step.
type UndoKind int

const (
	// UndoRename renames From back to To.
	UndoRename UndoKind = iota
	// UndoRestoreContent writes Prior back to Path.
	UndoRestoreContent
	// UndoRestoreBackup moves Backup back over Path.
	UndoRestoreBackup
)

// UndoAction reverts one completed mutation.
type UndoAction struct {
	Kind   UndoKind
	From   string
	To     string
	Path   string
	Prior  []byte
	Backup string
}

func (a UndoAction) String() string {
	switch a.Kind {
	case UndoRename:
		return fmt.Sprintf("rename %s -> %s", a.From, a.To)
	case UndoRestoreContent:
		return "restore " + a.Path
	case UndoRestoreBackup:
		return fmt.Sprintf("restore %s from %s", a.Path, a.Backup)
	default:
		return "unknown undo action"
	}
}

func (a UndoAction) apply() error {
	switch a.Kind {
	case UndoRename:
		return os.Rename(a.From, a.To)
	case UndoRestoreContent:
		return rewrite.RestoreContent(a.Path, a.Prior)
	case UndoRestoreBackup:
		return rewrite.RestoreBackup(a.Path, a.Backup)
	default:
		return fmt.Errorf("unknown undo kind %d", a.Kind)
	}
}

// undoLog is a stack of undo actions for one migration.
type undoLog struct {
	actions []UndoAction
}

func (u *undoLog) push(a UndoAction) {
	u.actions = append(u.actions, a)
}

// unwind applies every action in reverse order. Failures are
// logged and collected; unwinding always runs to the end.
func (u *undoLog) unwind(rep Reporter) []UndoOutcome {
	outcomes := make([]UndoOutcome, 0, len(u.actions))
	for i := len(u.actions) - 1; i >= 0; i-- {
		a := u.actions[i]
		err := a.apply()
		if err != nil {
			log.Printf("rollback: %s failed: %v", a, err)
		} else {
			log.Printf("rollback: %s", a)
		}
		o := UndoOutcome{Action: a, Err: err}
		rep.Undone(o)
		outcomes = append(outcomes, o)
	}
	u.actions = nil
	return outcomes
}

// commit drops the backups that were kept for rollback.
func (u *undoLog) commit() {
	for _, a := range u.actions {
		if a.Kind != UndoRestoreBackup {
			continue
		}
		if err := rewrite.DiscardBackup(a.Backup); err != nil {
			log.Printf("warning: removing backup %s: %v", a.Backup, err)
		}
	}
	u.actions = nil
}
