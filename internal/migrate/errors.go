package migrate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceNotFound means the store has no directory for the
	// source path's encoded name.
	ErrSourceNotFound = errors.New("source project directory not found")
	// ErrDestinationExists means the destination's encoded
	// directory is already present; it is never overwritten.
	ErrDestinationExists = errors.New("destination project directory already exists")
	// ErrMigrationInProgress means another process holds the
	// store lock.
	ErrMigrationInProgress = errors.New("another migration is in progress")
	ErrSamePath            = errors.New("source and destination are the same")
	ErrMissingPath         = errors.New("both source and destination paths are required")
)

// PreconditionError reports a check that failed before anything
// on disk was touched.
type PreconditionError struct {
	Err     error
	Path    string // user-supplied path the check was about
	Encoded string // its encoded directory name
	Dir     string // the store directory that was checked
}

func (e *PreconditionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrSourceNotFound):
		return fmt.Sprintf(
			"%v: %s (encoded name for %q is %s)",
			e.Err, e.Dir, e.Path, e.Encoded,
		)
	case errors.Is(e.Err, ErrDestinationExists):
		return fmt.Sprintf(
			"%v: %s; refusing to overwrite", e.Err, e.Dir,
		)
	default:
		return e.Err.Error()
	}
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// UndoOutcome is the result of applying one undo action during
// rollback.
type UndoOutcome struct {
	Action UndoAction
	Err    error
}

// StepError reports a failure during a mutating step. By the time
// it is returned every completed step has been unwound; Undo
// lists each undo action in the order it was applied.
type StepError struct {
	Step Step
	Err  error
	Undo []UndoOutcome
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Step, e.Err)
	if failed := e.UndoFailures(); failed > 0 {
		fmt.Fprintf(&b,
			" (rollback incomplete: %d of %d undo actions failed)",
			failed, len(e.Undo),
		)
	} else if len(e.Undo) > 0 {
		fmt.Fprintf(&b, " (rolled back %d actions)", len(e.Undo))
	}
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// UndoFailures returns the number of undo actions that failed.
func (e *StepError) UndoFailures() int {
	n := 0
	for _, o := range e.Undo {
		if o.Err != nil {
			n++
		}
	}
	return n
}
