package builtin

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"redcapetl/internal/config"
	"redcapetl/internal/schema"
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

const missingLabel = schema.DefaultMissingValue

func testEnv(t *testing.T) (transformer.Env, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	missing := schema.NewMissing("")
	yesNo := schema.ValueMap{"1": "Yes", "0": "No"}.Union(missing.Map())
	return transformer.Env{
		Logger: zap.New(core),
		Report: "dashboard",
		Annotations: schema.Annotations{
			{Name: "record_id", Type: schema.TypeText, Options: schema.ValueMap{}},
			{Name: "cough", Type: schema.TypeBinary, Options: yesNo},
			{Name: "fever", Type: schema.TypeBinary, Options: yesNo},
			{Name: "symptoms", Type: schema.TypeEnumeratedMulti, Options: yesNo},
		},
		Settings: transformer.Settings{
			Separator:    "|",
			Missing:      missing,
			IndexColumns: []string{"record_id"},
		},
	}, logs
}

func apply(t *testing.T, tr transformer.Transformer, env transformer.Env, in *table.Table) *table.Table {
	t.Helper()
	out, err := tr.Apply(env, in)
	if err != nil {
		t.Fatalf("%s: %v", tr.Kind(), err)
	}
	return out
}

func TestDropAndKeepColumnsIdempotent(t *testing.T) {
	env, _ := testEnv(t)
	in := table.FromStrings([]string{"record_id", "a", "b", "c"}, [][]string{{"1", "x", "y", "z"}})

	drop := DropColumns{Columns: []string{"b", "nope"}}
	once := apply(t, drop, env, in)
	twice := apply(t, drop, env, once)
	if !reflect.DeepEqual(once.Columns(), []string{"record_id", "a", "c"}) || !table.Equal(once, twice) {
		t.Fatalf("drop: once %v twice %v", once.Columns(), twice.Columns())
	}

	keep := KeepColumns{Columns: []string{"c", "record_id"}}
	once = apply(t, keep, env, in)
	twice = apply(t, keep, env, once)
	if !reflect.DeepEqual(once.Columns(), []string{"record_id", "c"}) || !table.Equal(once, twice) {
		t.Fatalf("keep: once %v twice %v", once.Columns(), twice.Columns())
	}

	if all := apply(t, KeepColumns{}, env, in); !table.Equal(all, in) {
		t.Fatalf("keep with no columns should keep everything, got %v", all.Columns())
	}
	if same := apply(t, DropColumns{}, env, in); !table.Equal(same, in) {
		t.Fatal("drop with no columns should be a no-op")
	}
}

func TestRenameColumns(t *testing.T) {
	env, _ := testEnv(t)
	in := table.Empty("record_id", "a", "b")

	got := apply(t, AppendColumnSuffix{Columns: []string{"a", "b"}, Suffix: "v1", Separator: "_"}, env, in)
	if want := []string{"record_id", "a_v1", "b_v1"}; !reflect.DeepEqual(got.Columns(), want) {
		t.Fatalf("suffix: got %v", got.Columns())
	}
	got = apply(t, PrependColumnPrefix{Columns: []string{"a"}, Prefix: "pre", Separator: "__"}, env, in)
	if want := []string{"record_id", "pre__a", "b"}; !reflect.DeepEqual(got.Columns(), want) {
		t.Fatalf("prefix: got %v", got.Columns())
	}
	if got := apply(t, AppendColumnSuffix{Suffix: "x"}, env, in); !table.Equal(got, in) {
		t.Fatal("no columns should leave names alone")
	}
}

func TestRemapValuesByColumns(t *testing.T) {
	env, _ := testEnv(t)
	in := table.New([]string{"record_id", "symptoms", "cough"}, [][]any{
		{"1", "1, 0", "1"},
		{"2", "1,2", "0"},
		{"3", nil, "nan"},
	})

	once := apply(t, RemapValuesByColumns{}, env, in)
	want := [][]any{
		{"1", "Yes|No", "Yes"},
		{"2", "Yes", "No"},
		{"3", missingLabel, missingLabel},
	}
	if !reflect.DeepEqual(once.Rows(), want) {
		t.Fatalf("got %v want %v", once.Rows(), want)
	}

	twice := apply(t, RemapValuesByColumns{}, env, once)
	if !table.Equal(once, twice) {
		t.Fatalf("remap is not idempotent: %v", twice.Rows())
	}
}

func TestRemapExplicitValueMap(t *testing.T) {
	env, _ := testEnv(t)
	env.Annotations = nil
	in := table.FromStrings([]string{"grade"}, [][]string{{"a"}, {"b"}})
	got := apply(t, RemapValuesByColumns{Columns: []string{"grade"}, ValueMap: schema.ValueMap{"a": "High", "b": "Low"}}, env, in)
	if !reflect.DeepEqual(got.Column("grade"), []any{"High", "Low"}) {
		t.Fatalf("got %v", got.Column("grade"))
	}
}

func TestMapMissingValues(t *testing.T) {
	env, _ := testEnv(t)
	in := table.New([]string{"a", "b"}, [][]any{{nil, nil}, {"nan", "x"}, {"-", ""}, {"ok", "0"}})

	got := apply(t, MapMissingValues{Columns: []string{"a"}}, env, in)
	if want := []any{missingLabel, missingLabel, missingLabel, "ok"}; !reflect.DeepEqual(got.Column("a"), want) {
		t.Fatalf("got %v", got.Column("a"))
	}
	if !reflect.DeepEqual(got.Column("b"), in.Column("b")) {
		t.Fatal("unrequested column changed")
	}

	got = apply(t, MapMissingValues{Columns: []string{"b"}, MissingValue: "NA"}, env, in)
	if want := []any{"NA", "x", "NA", "0"}; !reflect.DeepEqual(got.Column("b"), want) {
		t.Fatalf("got %v", got.Column("b"))
	}
}

func TestDropRows(t *testing.T) {
	env, _ := testEnv(t)
	in := table.New([]string{"record_id", "a"}, [][]any{{"1", ""}, {"2", "x"}, {"3", nil}, {"4", "y"}})

	got := apply(t, DropRows{Columns: []string{"a"}}, env, in)
	if want := []any{"2", "4"}; !reflect.DeepEqual(got.Column("record_id"), want) {
		t.Fatalf("equals empty: got %v", got.Column("record_id"))
	}

	got = apply(t, DropRows{Columns: []string{"a"}, Condition: Condition{Op: OpIn, Values: []string{"x", "y"}}}, env, in)
	if want := []any{"1", "3"}; !reflect.DeepEqual(got.Column("record_id"), want) {
		t.Fatalf("in: got %v", got.Column("record_id"))
	}

	got = apply(t, DropRows{Columns: []string{"a"}, Condition: Condition{Op: OpNotEquals, Value: "x"}}, env, in)
	if want := []any{"2"}; !reflect.DeepEqual(got.Column("record_id"), want) {
		t.Fatalf("not_equals: got %v", got.Column("record_id"))
	}

	if same := apply(t, DropRows{}, env, in); !table.Equal(same, in) {
		t.Fatal("no columns should be a no-op")
	}
}

func repeatTable() *table.Table {
	return table.New(
		[]string{"record_id", schema.ColumnRepeatInstrument, schema.ColumnRepeatInstance, "sex"},
		[][]any{
			{"1", nil, nil, "1"},
			{"1", "visits", "1", nil},
			{"1", "visits", "3", nil},
			{"1", "labs", "2", nil},
			{"2", nil, nil, "2"},
			{"2", "visits", "x", nil},
			{"2", "", "4", nil},
		})
}

func TestAggregateRepeatInstrument(t *testing.T) {
	env, logs := testEnv(t)
	got := apply(t, AggregateRepeatInstrument{}, env, repeatTable())

	if want := []string{"record_id", schema.ColumnRepeatInstrument, schema.ColumnRepeatInstance, "sex", "visits", "labs"}; !reflect.DeepEqual(got.Columns(), want) {
		t.Fatalf("columns: got %v", got.Columns())
	}
	if got.Len() != 2 {
		t.Fatalf("want one row per record, got %d", got.Len())
	}
	if want := []any{3.0, nil}; !reflect.DeepEqual(got.Column("visits"), want) {
		t.Fatalf("visits: got %v", got.Column("visits"))
	}
	if want := []any{2.0, nil}; !reflect.DeepEqual(got.Column("labs"), want) {
		t.Fatalf("labs: got %v", got.Column("labs"))
	}
	if want := []any{"1", "2"}; !reflect.DeepEqual(got.Column("sex"), want) {
		t.Fatalf("first row per record should be kept: %v", got.Column("sex"))
	}
	if logs.FilterMessageSnippet("not numeric").Len() != 1 {
		t.Fatalf("want a warning for the non-numeric instance, got %v", logs.All())
	}
}

func TestAggregateRepeatInstrumentOptions(t *testing.T) {
	env, _ := testEnv(t)
	cases := []struct {
		agg  Aggregator
		dt   DType
		want any
	}{
		{AggMin, DTypeFloat, 1.0},
		{AggSum, DTypeFloat, 4.0},
		{AggMean, DTypeInt, int64(2)},
		{AggCount, DTypeString, "2"},
		{AggFirst, DTypeFloat, 1.0},
		{AggLast, DTypeFloat, 3.0},
		{"median", DTypeFloat, 3.0},
	}
	for _, c := range cases {
		t.Run(string(c.agg), func(t *testing.T) {
			got := apply(t, AggregateRepeatInstrument{Aggregator: c.agg, DType: c.dt}, env, repeatTable())
			if v, _ := got.Value(0, "visits"); v != c.want {
				t.Fatalf("got %#v want %#v", v, c.want)
			}
		})
	}
}

func TestAggregateRepeatInstrumentIntTruncation(t *testing.T) {
	env, logs := testEnv(t)
	in := table.New(
		[]string{"record_id", schema.ColumnRepeatInstrument, schema.ColumnRepeatInstance},
		[][]any{
			{"1", "visits", "1"},
			{"1", "visits", "2"},
			{"2", "visits", "4"},
		})
	got := apply(t, AggregateRepeatInstrument{Aggregator: AggMean, DType: DTypeInt}, env, in)
	if want := []any{int64(1), int64(4)}; !reflect.DeepEqual(got.Column("visits"), want) {
		t.Fatalf("visits: got %v", got.Column("visits"))
	}
	warn := logs.FilterMessageSnippet("not integral")
	if warn.Len() != 1 {
		t.Fatalf("want one truncation warning, got %v", logs.All())
	}
	if f := warn.All()[0].ContextMap(); f["column"] != "visits" || f["cells"] != int64(1) {
		t.Fatalf("warning fields: %v", f)
	}
}

func TestAggregateRepeatInstrumentMissingColumns(t *testing.T) {
	env, logs := testEnv(t)
	in := table.FromStrings([]string{"record_id"}, [][]string{{"1"}, {"1"}})
	if got := apply(t, AggregateRepeatInstrument{}, env, in); !table.Equal(got, in) {
		t.Fatal("table without repeat columns should be unchanged")
	}
	if logs.FilterMessageSnippet("required column does not exist").Len() != 1 {
		t.Fatalf("want warning, got %v", logs.All())
	}
}

func TestPositiveClass(t *testing.T) {
	env, _ := testEnv(t)
	in := table.New([]string{"record_id", "cough", "fever"}, [][]any{
		{"1", "Yes", "No"},
		{"2", "Yes", "Yes"},
		{"3", "No", missingLabel},
		{"4", "No", "No"},
	})
	tr := PositiveClass{
		Columns:          []config.Pair{{Key: "cough", Value: "Cough"}, {Key: "fever", Value: "Fever"}},
		AllNegativeValue: "None",
	}
	got := apply(t, tr, env, in)
	want := []any{"Cough", "Cough|Fever", missingLabel, "None"}
	if !reflect.DeepEqual(got.Column("cough_fever"), want) {
		t.Fatalf("got %v want %v", got.Column("cough_fever"), want)
	}
}

func TestPositiveClassIgnoresMissingColumns(t *testing.T) {
	env, logs := testEnv(t)
	in := table.FromStrings([]string{"cough"}, [][]string{{"Yes"}})
	got := apply(t, PositiveClass{
		Columns:   []config.Pair{{Key: "cough", Value: "Cough"}, {Key: "rash", Value: "Rash"}},
		NewColumn: "symptom_list",
	}, env, in)
	if v, _ := got.Value(0, "symptom_list"); v != "Cough" {
		t.Fatalf("got %v", v)
	}
	if logs.FilterMessageSnippet("indicator columns do not exist").Len() != 1 {
		t.Fatalf("want warning, got %v", logs.All())
	}
}

func TestBinaryClassWithoutIndicatorColumns(t *testing.T) {
	in := table.FromStrings([]string{"record_id"}, [][]string{{"1"}})
	for _, tr := range []transformer.Transformer{
		PositiveClass{AllNegativeValue: "None"},
		PositiveClass{Columns: []config.Pair{{Key: "rash", Value: "Rash"}}},
		NegativeClass{Columns: []config.Pair{{Key: "rash"}}},
	} {
		env, logs := testEnv(t)
		got := apply(t, tr, env, in)
		if !table.Equal(got, in) {
			t.Fatalf("%s: table should be unchanged, got columns %q", tr.Kind(), got.Columns())
		}
		if logs.FilterMessageSnippet("no indicator columns").Len() != 1 {
			t.Fatalf("%s: want warning, got %v", tr.Kind(), logs.All())
		}
	}
}

func TestBinaryClassObjectColumnMapFromYAML(t *testing.T) {
	const doc = `
- kind: new_column_from_binary_columns_positive_class
  options:
    column_name_map: {fever: Fever, cough: Cough}
    all_negative_value: None
- kind: remap_values_by_columns
  options:
    columns: [answer]
    value_map: {Y: "Yes", N: "No"}
`
	var steps []config.Transform
	if err := yaml.Unmarshal([]byte(doc), &steps); err != nil {
		t.Fatal(err)
	}
	chain, err := BuildChain(steps)
	if err != nil {
		t.Fatal(err)
	}
	env, _ := testEnv(t)
	in := table.FromStrings([]string{"record_id", "fever", "cough", "answer"}, [][]string{{"1", "Yes", "Yes", "Y"}})
	got, err := chain.Apply(env, in)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"record_id", "fever", "cough", "answer", "fever_cough"}; !reflect.DeepEqual(got.Columns(), want) {
		t.Fatalf("columns: got %q", got.Columns())
	}
	if v, _ := got.Value(0, "fever_cough"); v != "Fever|Cough" {
		t.Fatalf("labels should follow configured order, got %v", v)
	}
	if v, _ := got.Value(0, "answer"); v != "Yes" {
		t.Fatalf("value_map not applied: %v", v)
	}
}

func TestNegativeClass(t *testing.T) {
	env, _ := testEnv(t)
	in := table.New([]string{"a", "b", "c"}, [][]any{
		{"3", "1", "1"},
		{"10", "9", nil},
		{nil, nil, nil},
		{"b", "a", "c"},
	})
	got := apply(t, NegativeClass{
		Columns:   []config.Pair{{Key: "a"}, {Key: "b"}, {Key: "c"}},
		NewColumn: "lowest",
	}, env, in)
	want := []any{"b", "b", nil, "b"}
	if !reflect.DeepEqual(got.Column("lowest"), want) {
		t.Fatalf("got %v want %v", got.Column("lowest"), want)
	}
}

func TestTransformValuesByColumn(t *testing.T) {
	env, logs := testEnv(t)
	in := table.New([]string{"name", "score"}, [][]any{{"Mühle", "1.5"}, {missingLabel, "n/a"}, {nil, " 2 "}})

	got := apply(t, TransformValuesByColumn{Column: "name", NewColumn: "name_ascii", Func: FuncFoldDiacritics}, env, in)
	if want := []any{"Muhle", missingLabel, missingLabel}; !reflect.DeepEqual(got.Column("name_ascii"), want) {
		t.Fatalf("fold: got %v", got.Column("name_ascii"))
	}

	got = apply(t, TransformValuesByColumn{Column: "score", Func: FuncNumber}, env, in)
	if want := []any{1.5, missingLabel, 2.0}; !reflect.DeepEqual(got.Column("score"), want) {
		t.Fatalf("number: got %v", got.Column("score"))
	}
	if logs.FilterMessageSnippet("could not convert").Len() != 1 {
		t.Fatalf("want conversion warning, got %v", logs.All())
	}

	if same := apply(t, TransformValuesByColumn{Column: "nope", Func: FuncTrim}, env, in); !table.Equal(same, in) {
		t.Fatal("missing source column should be a no-op")
	}
}

func TestBuild(t *testing.T) {
	cases := []struct {
		step config.Transform
		want transformer.Transformer
	}{
		{config.Transform{Kind: "drop_columns", Options: config.Options{"columns": []any{"a"}}}, DropColumns{Columns: []string{"a"}}},
		{config.Transform{Kind: "keep_columns"}, KeepColumns{}},
		{config.Transform{Kind: "append_column_suffix", Options: config.Options{"columns": "a", "suffix": "s", "separator": "_"}},
			AppendColumnSuffix{Columns: []string{"a"}, Suffix: "s", Separator: "_"}},
		{config.Transform{Kind: "map_missing_values_by_columns", Options: config.Options{"missing_value": "NA"}},
			MapMissingValues{MissingValue: "NA"}},
		{config.Transform{Kind: "drop_rows", Options: config.Options{"condition": map[string]any{"op": "in", "values": []any{"x"}}}},
			DropRows{Condition: Condition{Op: OpIn, Values: []string{"x"}}}},
		{config.Transform{Kind: "aggregate_repeat_instrument_by_index"}, AggregateRepeatInstrument{Aggregator: AggMax, DType: DTypeFloat}},
		{config.Transform{Kind: "new_column_from_binary_columns_positive_class", Options: config.Options{
			"column_name_map": []any{[]any{"fever", "Fever"}, []any{"cough", "Cough"}},
		}}, PositiveClass{Columns: []config.Pair{{Key: "fever", Value: "Fever"}, {Key: "cough", Value: "Cough"}}}},
		{config.Transform{Kind: "new_column_from_binary_columns_positive_class", Options: config.Options{
			"column_name_map": config.Mapping{{Key: "fever", Value: "Fever"}, {Key: "cough", Value: "Cough"}},
			"new_column_name": "s",
		}}, PositiveClass{Columns: []config.Pair{{Key: "fever", Value: "Fever"}, {Key: "cough", Value: "Cough"}}, NewColumn: "s"}},
		{config.Transform{Kind: "new_column_from_binary_columns_negative_class", Options: config.Options{
			"column_name_map": map[string]any{"b": "B", "a": "A"}, "new_column_name": "n",
		}}, NegativeClass{Columns: []config.Pair{{Key: "a", Value: "A"}, {Key: "b", Value: "B"}}, NewColumn: "n"}},
		{config.Transform{Kind: "transform_values_by_column", Options: config.Options{"column": "a", "func": "trim"}},
			TransformValuesByColumn{Column: "a", Func: FuncTrim}},
	}
	for _, c := range cases {
		t.Run(c.step.Kind, func(t *testing.T) {
			got, err := Build(c.step)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("got %#v want %#v", got, c.want)
			}
			if string(got.Kind()) != c.step.Kind {
				t.Fatalf("kind %q", got.Kind())
			}
		})
	}
}

func TestBuildKnowsEveryConfiguredKind(t *testing.T) {
	for _, k := range config.TransformKinds {
		if _, err := Build(config.Transform{Kind: k}); err != nil {
			t.Errorf("%s: %v", k, err)
		}
	}
}

func TestBuildUnknownKind(t *testing.T) {
	_, err := Build(config.Transform{Kind: "explode"})
	if !errors.Is(err, transformer.ErrUnknownTransform) {
		t.Fatalf("want ErrUnknownTransform, got %v", err)
	}
	_, err = BuildChain([]config.Transform{{Kind: "drop_columns"}, {Kind: "explode"}})
	if !errors.Is(err, transformer.ErrUnknownTransform) || !strings.Contains(err.Error(), "transforms[1]") {
		t.Fatalf("got %v", err)
	}
}
