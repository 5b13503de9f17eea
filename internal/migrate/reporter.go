package migrate

// Step names a phase of a live migration.
type Step int

const (
	StepRename Step = iota + 1
	StepIndex
	StepLogs
	StepNotes
	StepHistory
	StepVerify
)

func (s Step) String() string {
	switch s {
	case StepRename:
		return "renaming project directory"
	case StepIndex:
		return "updating sessions-index.json"
	case StepLogs:
		return "updating session logs"
	case StepNotes:
		return "updating memory notes"
	case StepHistory:
		return "updating history.jsonl"
	case StepVerify:
		return "verifying"
	default:
		return "unknown step"
	}
}

// Reporter receives progress from the engine. Implementations
// must not block.
type Reporter interface {
	StepStarted(step Step, n, total int)
	Renamed(from, to string)
	FileUpdated(path string, linesChanged int)
	Info(msg string)
	Undone(o UndoOutcome)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) StepStarted(Step, int, int) {}
func (NopReporter) Renamed(string, string)     {}
func (NopReporter) FileUpdated(string, int)    {}
func (NopReporter) Info(string)                {}
func (NopReporter) Undone(UndoOutcome)         {}
