// Package table implements the small in-memory, column-named table the ETL
// pipeline passes between stages.
//
// Cells hold nil (missing), string, float64 or int64. Every
// operation returns a new *Table; a table handed to a caller is never modified
// afterwards, so transforms can be chained without defensive copies at the
// call site.
package table

import (
	"fmt"
	"math"
	"strconv"
)

// Table is an ordered set of named columns over a slice of rows.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New builds a table from column names and row values. Rows shorter than the
// header are padded with nil; longer rows are truncated. Duplicate column
// names keep their first position.
func New(columns []string, rows [][]any) *Table {
	t := &Table{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	keep := make([]int, 0, len(columns))
	for i, c := range columns {
		if _, dup := t.index[c]; dup {
			continue
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
		keep = append(keep, i)
	}
	t.rows = make([][]any, len(rows))
	for r, src := range rows {
		row := make([]any, len(keep))
		for j, i := range keep {
			if i < len(src) {
				row[j] = src[i]
			}
		}
		t.rows[r] = row
	}
	return t
}

// FromStrings builds a table whose cells are all text, as delivered by the
// source system.
func FromStrings(columns []string, rows [][]string) *Table {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(r))
		for j, s := range r {
			row[j] = s
		}
		vals[i] = row
	}
	return New(columns, vals)
}

// Empty returns a table with the given columns and no rows.
func Empty(columns ...string) *Table { return New(columns, nil) }

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Width is the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Len is the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Value returns the cell at row i in column name. ok is false when the column
// does not exist.
func (t *Table) Value(i int, name string) (v any, ok bool) {
	j, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.rows[i][j], true
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []any {
	return append([]any(nil), t.rows[i]...)
}

// Column returns a copy of the named column's values, or nil when absent.
func (t *Table) Column(name string) []any {
	j, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out
}

// Rows returns a deep copy of all rows.
func (t *Table) Rows() [][]any {
	out := make([][]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

// Select returns a table with only the named columns, in the order given.
// Unknown names are skipped.
func (t *Table) Select(names ...string) *Table {
	pick := make([]int, 0, len(names))
	cols := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		j, ok := t.index[n]
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		pick = append(pick, j)
		cols = append(cols, n)
	}
	rows := make([][]any, len(t.rows))
	for i, r := range t.rows {
		row := make([]any, len(pick))
		for k, j := range pick {
			row[k] = r[j]
		}
		rows[i] = row
	}
	return New(cols, rows)
}

// Drop returns a table without the named columns.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	keep := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	return t.Select(keep...)
}

// Rename returns a table whose columns are renamed by fn. Columns for which fn
// returns the same name are untouched. When a new name collides with an
// existing column, the later column is dropped by New.
func (t *Table) Rename(fn func(string) string) *Table {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		cols[i] = fn(c)
	}
	return New(cols, t.Rows())
}

// WithColumn returns a table where column name holds values. An existing
// column is replaced in place; a new one is appended. values must have Len()
// entries.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("table: column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	cols := t.Columns()
	j, exists := t.index[name]
	if !exists {
		cols = append(cols, name)
		j = len(cols) - 1
	}
	rows := make([][]any, len(t.rows))
	for i, r := range t.rows {
		row := make([]any, len(cols))
		copy(row, r)
		row[j] = values[i]
		rows[i] = row
	}
	return New(cols, rows), nil
}

// MapColumn returns a table where every cell of column name is replaced by
// fn(cell). It is a no-op when the column is absent.
func (t *Table) MapColumn(name string, fn func(any) any) *Table {
	j, ok := t.index[name]
	if !ok {
		return t
	}
	rows := t.Rows()
	for _, r := range rows {
		r[j] = fn(r[j])
	}
	return New(t.columns, rows)
}

// Filter returns the rows for which keep returns true, preserving order.
func (t *Table) Filter(keep func(i int) bool) *Table {
	rows := make([][]any, 0, len(t.rows))
	for i, r := range t.rows {
		if keep(i) {
			rows = append(rows, append([]any(nil), r...))
		}
	}
	return New(t.columns, rows)
}

// Equal reports whether two tables have the same columns in the same order
// and identical cell values.
func Equal(a, b *Table) bool {
	if a.Width() != b.Width() || a.Len() != b.Len() {
		return false
	}
	for i, c := range a.columns {
		if b.columns[i] != c {
			return false
		}
	}
	for i := range a.rows {
		for j := range a.rows[i] {
			if !sameCell(a.rows[i][j], b.rows[i][j]) {
				return false
			}
		}
	}
	return true
}

func sameCell(x, y any) bool {
	fx, xf := x.(float64)
	fy, yf := y.(float64)
	if xf && yf && math.IsNaN(fx) && math.IsNaN(fy) {
		return true
	}
	return x == y
}

// String renders a cell as text: nil → "", float64 in shortest form.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return "nan"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// IsMissing reports whether v is nil or a float NaN.
func IsMissing(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}
