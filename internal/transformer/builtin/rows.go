package builtin

import (
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

// ConditionOp selects the row predicate used by DropRows.
type ConditionOp string

const (
	OpEquals    ConditionOp = "equals"
	OpNotEquals ConditionOp = "not_equals"
	OpMissing   ConditionOp = "missing"
	OpIn        ConditionOp = "in"
)

// Condition is a predicate over a single cell.
type Condition struct {
	Op     ConditionOp
	Value  string
	Values []string
}

// Match reports whether v satisfies the condition. The zero Condition
// matches the empty string.
func (c Condition) Match(env transformer.Env, v any) bool {
	s := table.String(v)
	switch c.Op {
	case OpNotEquals:
		return s != c.Value
	case OpMissing:
		return env.Settings.Missing.Is(v)
	case OpIn:
		for _, x := range c.Values {
			if s == x {
				return true
			}
		}
		return false
	default:
		return s == c.Value
	}
}

// DropRows removes rows where any of Columns satisfies Condition.
type DropRows struct {
	Columns   []string
	Condition Condition
}

func (DropRows) Kind() transformer.Kind { return transformer.DropRows }

func (d DropRows) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, d.Kind(), t, d.Columns, nil)
	if len(cols) == 0 {
		return t, nil
	}
	return t.Filter(func(i int) bool {
		for _, c := range cols {
			v, _ := t.Value(i, c)
			if d.Condition.Match(env, v) {
				return false
			}
		}
		return true
	}), nil
}
