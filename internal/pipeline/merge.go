package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"redcapetl/internal/config"
	"redcapetl/internal/table"
)

// MergeStep joins one report's transformed table onto the accumulator.
type MergeStep struct {
	Report string
	Join   table.JoinOptions
}

// MergeSpec is the ordered join plan.
type MergeSpec struct {
	IndexColumns []string
	Steps        []MergeStep
}

// NewMergeSpec converts the configured plan, filling join keys with the
// index columns when none are given.
func NewMergeSpec(m config.Merge) MergeSpec {
	spec := MergeSpec{IndexColumns: append([]string(nil), m.IndexColumns...)}
	for _, s := range m.Steps {
		opts := table.JoinOptions{
			How:     table.JoinHow(s.Options.How),
			On:      s.Options.On,
			LeftOn:  s.Options.LeftOn,
			RightOn: s.Options.RightOn,
		}
		if len(opts.On) == 0 && len(opts.LeftOn) == 0 && len(opts.RightOn) == 0 {
			opts.On = spec.IndexColumns
		}
		if len(s.Options.Suffixes) == 2 {
			opts.Suffixes = [2]string{s.Options.Suffixes[0], s.Options.Suffixes[1]}
		}
		spec.Steps = append(spec.Steps, MergeStep{Report: s.Report, Join: opts})
	}
	return spec
}

// Merge seeds the result with the first step's table restricted to the index
// columns, joins every step (the first included) onto it in order, then keeps
// the first row of each index tuple. lookup returns a report's transformed
// table.
//
// Merge returns a nil table when the plan has no steps.
func Merge(spec MergeSpec, lookup func(key string) (*table.Table, error), log *zap.Logger) (*table.Table, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(spec.Steps) == 0 {
		log.Warn("merge plan has no steps; no merged table produced")
		return nil, nil
	}

	first := spec.Steps[0]
	seed, err := lookup(first.Report)
	if err != nil {
		return nil, &StageError{Report: first.Report, Stage: StageMerge, Step: 0, Err: err}
	}
	for _, c := range spec.IndexColumns {
		if !seed.Has(c) {
			return nil, &StageError{Report: first.Report, Stage: StageMerge, Step: 0,
				Err: fmt.Errorf("%w: receiving report lacks index column %q", table.ErrMissingKey, c)}
		}
	}
	acc := seed.Select(spec.IndexColumns...)

	for i, step := range spec.Steps {
		right, err := lookup(step.Report)
		if err != nil {
			return nil, &StageError{Report: step.Report, Stage: StageMerge, Step: i, Err: err}
		}
		joined, err := table.Join(acc, right, step.Join)
		if err != nil {
			return nil, &StageError{Report: step.Report, Stage: StageMerge, Step: i, Err: err}
		}
		log.Debug("merged report",
			zap.Int("step", i),
			zap.String("merge_report", step.Report),
			zap.String("how", string(step.Join.How)),
			zap.Int("rows", joined.Len()),
			zap.Int("columns", joined.Width()))
		acc = joined
	}

	// Key columns named differently on each side may have replaced the index
	// columns; dedup only on those still present.
	var keys []string
	for _, c := range spec.IndexColumns {
		if acc.Has(c) {
			keys = append(keys, c)
		}
	}
	if len(keys) == 0 {
		return acc, nil
	}
	out, dropped, err := acc.DropDuplicates(keys...)
	if err != nil {
		return nil, &StageError{Stage: StageMerge, Step: -1, Err: err}
	}
	if dropped > 0 {
		log.Warn("merged table had duplicate index rows; kept the first of each",
			zap.Strings("index_columns", keys), zap.Int("dropped", dropped))
	}
	return out, nil
}
