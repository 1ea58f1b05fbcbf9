// Package transformer defines the table transform contract and the chain that
// folds a configured sequence of transforms over a report.
package transformer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"redcapetl/internal/schema"
	"redcapetl/internal/table"
)

// ErrUnknownTransform is returned when a configured transform name has no
// implementation. It is a configuration error and aborts the run.
var ErrUnknownTransform = errors.New("unknown transform")

// Kind names a transform.
type Kind string

const (
	DropColumns             Kind = "drop_columns"
	KeepColumns             Kind = "keep_columns"
	AppendColumnSuffix      Kind = "append_column_suffix"
	PrependColumnPrefix     Kind = "prepend_column_prefix"
	RemapValuesByColumns    Kind = "remap_values_by_columns"
	MapMissingValues        Kind = "map_missing_values_by_columns"
	DropRows                Kind = "drop_rows"
	AggregateRepeatByIndex  Kind = "aggregate_repeat_instrument_by_index"
	BinaryPositiveClass     Kind = "new_column_from_binary_columns_positive_class"
	BinaryNegativeClass     Kind = "new_column_from_binary_columns_negative_class"
	TransformValuesByColumn Kind = "transform_values_by_column"
)

// Transformer is a pure function from table to table. Implementations must
// not modify the input table and must fall back to a safe default (logging a
// warning) instead of failing on absent or partial configuration.
type Transformer interface {
	Kind() Kind
	Apply(env Env, t *table.Table) (*table.Table, error)
}

// Settings are the run-wide values transforms consult.
type Settings struct {
	// Separator joins multi-valued cells after remapping.
	Separator string
	// Missing recognises and labels missing values.
	Missing schema.Missing
	// IndexColumns identify a record.
	IndexColumns []string
}

// Env is the context a transform runs in.
type Env struct {
	Logger *zap.Logger
	// Report is the key of the report being transformed; empty post-merge.
	Report string
	// Annotations is nil for post-merge transforms.
	Annotations schema.Annotations
	Settings    Settings
}

// Log returns the env logger annotated with the report and transform kind.
func (e Env) Log(k Kind) *zap.Logger {
	l := e.Logger
	if l == nil {
		l = zap.NewNop()
	}
	report := e.Report
	if report == "" {
		report = "merged"
	}
	return l.With(zap.String("report", report), zap.String("transform", string(k)))
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// StepError identifies the failing step of a chain.
type StepError struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("transform[%d] %s: %v", e.Index, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Apply folds the chain left to right, each step consuming the previous
// step's output.
func (c Chain) Apply(env Env, in *table.Table) (*table.Table, error) {
	out := in
	for i, t := range c {
		next, err := t.Apply(env, out)
		if err != nil {
			return nil, &StepError{Index: i, Kind: t.Kind(), Err: err}
		}
		out = next
	}
	return out, nil
}
