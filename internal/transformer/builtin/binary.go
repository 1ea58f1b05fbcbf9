package builtin

import (
	"strings"

	"go.uber.org/zap"

	"redcapetl/internal/config"
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

// PositiveLabel is the indicator value that marks a positive class.
const PositiveLabel = "Yes"

// PositiveClass collapses a set of yes/no indicator columns into one column
// listing the labels of every indicator that is "Yes".
//
// When no indicator is positive the new column is DefaultValue if any
// indicator holds it, otherwise AllNegativeValue.
type PositiveClass struct {
	Columns          []config.Pair
	NewColumn        string
	AllNegativeValue string
	DefaultValue     string
}

func (PositiveClass) Kind() transformer.Kind { return transformer.BinaryPositiveClass }

func (p PositiveClass) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	log := env.Log(p.Kind())
	cols := presentPairs(log, t, p.Columns)
	if len(cols) == 0 {
		log.Warn("no indicator columns to combine; leaving table unchanged")
		return t, nil
	}
	name := newColumnName(p.NewColumn, p.Columns)
	sep := env.Settings.Separator
	if sep == "" {
		sep = "|"
	}
	def := p.DefaultValue
	if def == "" {
		def = env.Settings.Missing.Label
	}

	vals := make([]any, t.Len())
	for i := range vals {
		var labels []string
		for _, c := range cols {
			if v, _ := t.Value(i, c.Key); table.String(v) == PositiveLabel {
				labels = append(labels, c.Value)
			}
		}
		if len(labels) > 0 {
			vals[i] = strings.Join(labels, sep)
			continue
		}
		vals[i] = p.AllNegativeValue
		if def == "" {
			continue
		}
		for _, c := range cols {
			if v, _ := t.Value(i, c.Key); table.String(v) == def {
				vals[i] = def
				break
			}
		}
	}
	return t.WithColumn(name, vals)
}

// NegativeClass writes, per row, the name of the indicator column holding the
// smallest value. Cells compare numerically when both parse as numbers and as
// text otherwise; ties resolve to the earlier column.
type NegativeClass struct {
	Columns   []config.Pair
	NewColumn string
}

func (NegativeClass) Kind() transformer.Kind { return transformer.BinaryNegativeClass }

func (n NegativeClass) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	log := env.Log(n.Kind())
	cols := presentPairs(log, t, n.Columns)
	if len(cols) == 0 {
		log.Warn("no indicator columns to compare; leaving table unchanged")
		return t, nil
	}
	name := newColumnName(n.NewColumn, n.Columns)

	vals := make([]any, t.Len())
	for i := range vals {
		best := -1
		var bestV any
		for j, c := range cols {
			v, _ := t.Value(i, c.Key)
			if table.IsMissing(v) {
				continue
			}
			if best < 0 || less(v, bestV) {
				best, bestV = j, v
			}
		}
		if best >= 0 {
			vals[i] = cols[best].Key
		}
	}
	return t.WithColumn(name, vals)
}

func less(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa < fb
	}
	return table.String(a) < table.String(b)
}

func presentPairs(log *zap.Logger, t *table.Table, pairs []config.Pair) []config.Pair {
	out := make([]config.Pair, 0, len(pairs))
	var missing []string
	for _, p := range pairs {
		if t.Has(p.Key) {
			out = append(out, p)
		} else {
			missing = append(missing, p.Key)
		}
	}
	if len(missing) > 0 {
		log.Warn("indicator columns do not exist; ignoring them", zap.Strings("missing", missing))
	}
	return out
}

func newColumnName(name string, pairs []config.Pair) string {
	if name != "" {
		return name
	}
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return strings.Join(keys, "_")
}
