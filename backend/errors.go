package backend

import "fmt"

// Stage identifies the pipeline phase an engine was in when it failed.
type Stage string

const (
	StageLoad      Stage = "load"
	StageTransform Stage = "transform"
	StagePersist   Stage = "persist"
)

// StageError is a pipeline failure attributed to one stage, with the
// engine's own diagnostic attached. Adapters wrap every engine failure in
// one of these so the executor can attribute it without parsing messages.
type StageError struct {
	Stage Stage
	Err   error

	// LogTail holds the last lines of the engine's combined output, kept
	// for diagnostic display in the report.
	LogTail []string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
