package pipeline

import "fmt"

// Stage is a step of a conversion run.
type Stage int

const (
	StageStart Stage = iota
	StageTranslate
	StageOptimize
	StageCompile
	StageExport
	StageDone
	StageFailed
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageTranslate:
		return "translate"
	case StageOptimize:
		return "optimize"
	case StageCompile:
		return "compile"
	case StageExport:
		return "export"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// dataKey is the run record data key marking the stage as done.
func (s Stage) dataKey() string {
	switch s {
	case StageTranslate:
		return "Translation"
	case StageOptimize:
		return "Optimizing Model"
	case StageCompile:
		return "Compiling Model"
	case StageExport:
		return "Exporting Model"
	default:
		return ""
	}
}

// StageError is a failure of one engine stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns the error taxonomy name of the failed stage.
func (e *StageError) Kind() string {
	switch e.Stage {
	case StageTranslate:
		return "EngineTranslationError"
	case StageOptimize:
		return "EngineOptimizationError"
	case StageCompile:
		return "EngineCompilationError"
	case StageExport:
		return "EngineExportError"
	default:
		return "EngineError"
	}
}
