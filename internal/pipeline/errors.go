package pipeline

import "errors"

// Sentinel errors for pipeline failure classification.
var (
	// ErrStoreUnavailable indicates the index store could not be created or cleared.
	ErrStoreUnavailable = errors.New("index store unavailable")
	// ErrMissingExtract indicates a required primary extract is absent.
	ErrMissingExtract = errors.New("required extract missing")
)

// Stage names used in error context and telemetry events.
const (
	StageReset     = "reset"
	StageNormalize = "normalize"
	StageClean     = "clean"
	StageMerge     = "merge"
	StageResolve   = "resolve"
	StageMetrics   = "metrics"
	StageIndex     = "index"
)

// StageError records which pipeline stage failed and, when known, the table
// it was working on. Lower stages never swallow fatal conditions; they are
// wrapped here so the caller can diagnose without reading the run log.
type StageError struct {
	Stage string
	Table string
	Err   error
}

// Error returns a human-readable string including stage and table context.
func (e *StageError) Error() string {
	if e.Table != "" {
		return "pipeline: stage " + e.Stage + " (table " + e.Table + "): " + e.Err.Error()
	}
	return "pipeline: stage " + e.Stage + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Table: table, Err: err}
}
