// Package builtin contains the table transforms the pipeline can be
// configured with. Each transform is a small struct holding its parameters;
// Build turns a configured step into one.
package builtin

import (
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

// DropColumns removes the named columns. No columns means no-op.
type DropColumns struct {
	Columns []string
}

func (DropColumns) Kind() transformer.Kind { return transformer.DropColumns }

func (d DropColumns) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, d.Kind(), t, d.Columns, nil)
	return t.Drop(cols...), nil
}

// KeepColumns removes every column not named. No columns keeps everything.
type KeepColumns struct {
	Columns []string
}

func (KeepColumns) Kind() transformer.Kind { return transformer.KeepColumns }

func (k KeepColumns) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, k.Kind(), t, k.Columns, t.Columns())
	keep := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		keep[c] = struct{}{}
	}
	// Preserve table order rather than request order.
	ordered := make([]string, 0, len(cols))
	for _, c := range t.Columns() {
		if _, ok := keep[c]; ok {
			ordered = append(ordered, c)
		}
	}
	return t.Select(ordered...), nil
}

// AppendColumnSuffix renames name to name+Separator+Suffix.
type AppendColumnSuffix struct {
	Columns   []string
	Suffix    string
	Separator string
}

func (AppendColumnSuffix) Kind() transformer.Kind { return transformer.AppendColumnSuffix }

func (a AppendColumnSuffix) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, a.Kind(), t, a.Columns, nil)
	return renameSet(t, cols, func(n string) string { return n + a.Separator + a.Suffix }), nil
}

// PrependColumnPrefix renames name to Prefix+Separator+name.
type PrependColumnPrefix struct {
	Columns   []string
	Prefix    string
	Separator string
}

func (PrependColumnPrefix) Kind() transformer.Kind { return transformer.PrependColumnPrefix }

func (p PrependColumnPrefix) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, p.Kind(), t, p.Columns, nil)
	return renameSet(t, cols, func(n string) string { return p.Prefix + p.Separator + n }), nil
}

func renameSet(t *table.Table, cols []string, fn func(string) string) *table.Table {
	if len(cols) == 0 {
		return t
	}
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return t.Rename(func(n string) string {
		if _, ok := set[n]; ok {
			return fn(n)
		}
		return n
	})
}
