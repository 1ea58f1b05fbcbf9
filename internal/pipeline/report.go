package pipeline

import (
	"redcapetl/internal/schema"
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

// State is a report's position in its lifecycle.
type State int

const (
	Unfetched State = iota
	Fetched
	Annotated
	Transformed
)

func (s State) String() string {
	switch s {
	case Fetched:
		return "fetched"
	case Annotated:
		return "annotated"
	case Transformed:
		return "transformed"
	default:
		return "unfetched"
	}
}

// Report is one configured report and the tables derived from it during a
// run. Callers must treat the tables as read-only.
type Report struct {
	Key      string
	ReportID string
	// FetchParameters are the user-configured export options, before the
	// pinned defaults are applied.
	FetchParameters map[string]string

	Raw         *table.Table
	Annotations schema.Annotations
	Transformed *table.Table
	State       State

	chain transformer.Chain
}

func (r *Report) reset() {
	r.Raw, r.Annotations, r.Transformed = nil, nil, nil
	r.State = Unfetched
}
