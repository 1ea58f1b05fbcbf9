package builtin

import (
	"fmt"

	"redcapetl/internal/config"
	"redcapetl/internal/schema"
	"redcapetl/internal/transformer"
)

// Build returns the transformer for a configured step. Unknown kinds wrap
// transformer.ErrUnknownTransform.
func Build(tc config.Transform) (transformer.Transformer, error) {
	o := tc.Options
	if o == nil {
		o = config.Options{}
	}
	switch transformer.Kind(tc.Kind) {
	case transformer.DropColumns:
		return DropColumns{Columns: o.StringSlice("columns")}, nil
	case transformer.KeepColumns:
		return KeepColumns{Columns: o.StringSlice("columns")}, nil
	case transformer.AppendColumnSuffix:
		return AppendColumnSuffix{
			Columns:   o.StringSlice("columns"),
			Suffix:    o.String("suffix", ""),
			Separator: o.String("separator", ""),
		}, nil
	case transformer.PrependColumnPrefix:
		return PrependColumnPrefix{
			Columns:   o.StringSlice("columns"),
			Prefix:    o.String("prefix", ""),
			Separator: o.String("separator", ""),
		}, nil
	case transformer.RemapValuesByColumns:
		var vm schema.ValueMap
		if o.Has("value_map") {
			vm = schema.ValueMap(o.StringMap("value_map"))
		}
		return RemapValuesByColumns{Columns: o.StringSlice("columns"), ValueMap: vm}, nil
	case transformer.MapMissingValues:
		return MapMissingValues{
			Columns:      o.StringSlice("columns"),
			MissingValue: o.String("missing_value", ""),
		}, nil
	case transformer.DropRows:
		c := o.Sub("condition")
		return DropRows{
			Columns: o.StringSlice("columns"),
			Condition: Condition{
				Op:     ConditionOp(c.String("op", string(OpEquals))),
				Value:  c.String("value", ""),
				Values: c.StringSlice("values"),
			},
		}, nil
	case transformer.AggregateRepeatByIndex:
		return AggregateRepeatInstrument{
			Aggregator: Aggregator(o.String("aggregator", string(AggMax))),
			DType:      DType(o.String("dtype", string(DTypeFloat))),
		}, nil
	case transformer.BinaryPositiveClass:
		return PositiveClass{
			Columns:          o.Pairs("column_name_map"),
			NewColumn:        o.String("new_column_name", ""),
			AllNegativeValue: o.String("all_negative_value", ""),
			DefaultValue:     o.String("default_value", ""),
		}, nil
	case transformer.BinaryNegativeClass:
		return NegativeClass{
			Columns:   o.Pairs("column_name_map"),
			NewColumn: o.String("new_column_name", ""),
		}, nil
	case transformer.TransformValuesByColumn:
		return TransformValuesByColumn{
			Column:       o.String("column", ""),
			NewColumn:    o.String("new_column_name", ""),
			Func:         ValueFunc(o.String("func", "")),
			MissingValue: o.String("missing_value", ""),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", transformer.ErrUnknownTransform, tc.Kind)
}

// BuildChain builds every step in order.
func BuildChain(steps []config.Transform) (transformer.Chain, error) {
	chain := make(transformer.Chain, 0, len(steps))
	for i, s := range steps {
		t, err := Build(s)
		if err != nil {
			return nil, fmt.Errorf("transforms[%d]: %w", i, err)
		}
		chain = append(chain, t)
	}
	return chain, nil
}
