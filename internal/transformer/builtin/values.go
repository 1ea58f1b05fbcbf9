package builtin

import (
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"redcapetl/internal/schema"
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

// RemapValuesByColumns replaces raw codes with display labels. Cells are
// split on commas so multi-choice values map code by code; codes without a
// mapping are dropped and the survivors are joined with the run's multi-value
// separator.
//
// ValueMap, when set, applies to every resolved column. Otherwise each column
// uses its own annotation map and columns without one are left alone.
type RemapValuesByColumns struct {
	Columns  []string
	ValueMap schema.ValueMap
}

func (RemapValuesByColumns) Kind() transformer.Kind { return transformer.RemapValuesByColumns }

func (r RemapValuesByColumns) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, r.Kind(), t, r.Columns, env.Annotations.MappableColumns())
	sep := env.Settings.Separator
	if sep == "" {
		sep = "|"
	}
	out := t
	for _, c := range cols {
		vm := r.ValueMap
		if len(vm) == 0 {
			a, ok := env.Annotations.Lookup(c)
			if !ok || !a.Mappable() {
				continue
			}
			vm = a.Options
		}
		out = out.MapColumn(c, func(v any) any { return remapCell(v, vm, sep) })
	}
	return out, nil
}

func remapCell(v any, vm schema.ValueMap, sep string) any {
	s := table.String(v)
	if strings.TrimSpace(s) == "" {
		return vm[""]
	}
	var codes []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			codes = append(codes, p)
		}
	}
	allKnown := true
	for _, c := range codes {
		if _, ok := vm[c]; !ok {
			allKnown = false
			break
		}
	}
	// A cell already made of labels is the output of an earlier remap.
	if !allKnown && allLabels(s, vm, sep) {
		return s
	}
	mapped := make([]string, 0, len(codes))
	for _, c := range codes {
		if label, ok := vm[c]; ok {
			mapped = append(mapped, label)
		}
	}
	return strings.Join(mapped, sep)
}

func allLabels(s string, vm schema.ValueMap, sep string) bool {
	for _, part := range strings.Split(s, sep) {
		if !vm.HasLabel(part) {
			return false
		}
	}
	return true
}

// MapMissingValues replaces missing cells (nil, NaN, or a sentinel such as
// "", "nan", "-") with MissingValue, or the run's missing label when unset.
type MapMissingValues struct {
	Columns      []string
	MissingValue string
}

func (MapMissingValues) Kind() transformer.Kind { return transformer.MapMissingValues }

func (m MapMissingValues) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	cols := transformer.ResolveColumns(env, m.Kind(), t, m.Columns, nil)
	label := m.MissingValue
	if label == "" {
		label = env.Settings.Missing.Label
	}
	if label == "" {
		label = schema.DefaultMissingValue
	}
	missing := env.Settings.Missing
	if len(missing.Sentinels) == 0 {
		missing = schema.NewMissing(label)
	}
	out := t
	for _, c := range cols {
		out = out.MapColumn(c, func(v any) any {
			if missing.Is(v) {
				return label
			}
			return v
		})
	}
	return out, nil
}

// ValueFunc names a per-cell function for TransformValuesByColumn.
type ValueFunc string

const (
	FuncLowercase      ValueFunc = "lowercase"
	FuncUppercase      ValueFunc = "uppercase"
	FuncTrim           ValueFunc = "trim"
	FuncTitle          ValueFunc = "title"
	FuncFoldDiacritics ValueFunc = "fold_diacritics"
	FuncNumber         ValueFunc = "number"
)

// TransformValuesByColumn writes Func(Column) into NewColumn. Cells equal to
// MissingValue are carried over unchanged, and cells the function cannot
// handle become MissingValue.
type TransformValuesByColumn struct {
	Column       string
	NewColumn    string
	Func         ValueFunc
	MissingValue string
}

func (TransformValuesByColumn) Kind() transformer.Kind { return transformer.TransformValuesByColumn }

func (f TransformValuesByColumn) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	log := env.Log(f.Kind())
	if !t.Has(f.Column) {
		log.Warn("source column does not exist; skipping", zap.String("column", f.Column))
		return t, nil
	}
	fn, ok := valueFuncs[f.Func]
	if !ok {
		log.Warn("unknown value function; skipping", zap.String("func", string(f.Func)))
		return t, nil
	}
	missing := f.MissingValue
	if missing == "" {
		missing = env.Settings.Missing.Label
	}
	dst := f.NewColumn
	if dst == "" {
		dst = f.Column
	}
	src := t.Column(f.Column)
	vals := make([]any, len(src))
	failed := 0
	for i, v := range src {
		if table.IsMissing(v) || table.String(v) == missing {
			vals[i] = missing
			continue
		}
		out, ok := fn(table.String(v))
		if !ok {
			failed++
			vals[i] = missing
			continue
		}
		vals[i] = out
	}
	if failed > 0 {
		log.Warn("value function could not convert some cells",
			zap.String("column", f.Column), zap.Int("cells", failed))
	}
	return t.WithColumn(dst, vals)
}

var valueFuncs = map[ValueFunc]func(string) (any, bool){
	FuncLowercase: func(s string) (any, bool) { return strings.ToLower(s), true },
	FuncUppercase: func(s string) (any, bool) { return strings.ToUpper(s), true },
	FuncTrim:      func(s string) (any, bool) { return strings.TrimSpace(s), true },
	FuncTitle: func(s string) (any, bool) {
		return cases.Title(language.Und).String(s), true
	},
	FuncFoldDiacritics: func(s string) (any, bool) { return FoldDiacritics(s), true },
	FuncNumber: func(s string) (any, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	},
}

// FoldDiacritics strips combining marks: "Mühle" → "Muhle".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
