package pipeline

import (
	"errors"
	"fmt"
)

// ErrUnknownReport is returned for a report key that is not configured.
var ErrUnknownReport = errors.New("unknown report")

// Stage names used in errors, logs and metrics.
const (
	StageSchema    = "schema"
	StageFetch     = "fetch"
	StageAnnotate  = "annotate"
	StageTransform = "transform"
	StageMerge     = "merge"
	StagePostMerge = "post_merge"
)

// StageError reports which stage of a run failed. Report is empty for
// run-wide stages; Step is the merge step index for merge failures and -1
// otherwise.
type StageError struct {
	Report string
	Stage  string
	Step   int
	Err    error
}

func (e *StageError) Error() string {
	switch {
	case e.Stage == StageMerge && e.Step >= 0:
		return fmt.Sprintf("merge step %d (%s): %v", e.Step, e.Report, e.Err)
	case e.Report != "":
		return fmt.Sprintf("report %q: %s: %v", e.Report, e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(report, stage string, err error) error {
	return &StageError{Report: report, Stage: stage, Step: -1, Err: err}
}
