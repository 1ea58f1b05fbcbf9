package builtin

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"redcapetl/internal/schema"
	"redcapetl/internal/table"
	"redcapetl/internal/transformer"
)

// Aggregator reduces the repeat-instance numbers of one record and instrument.
type Aggregator string

const (
	AggMax   Aggregator = "max"
	AggMin   Aggregator = "min"
	AggSum   Aggregator = "sum"
	AggMean  Aggregator = "mean"
	AggCount Aggregator = "count"
	AggFirst Aggregator = "first"
	AggLast  Aggregator = "last"
)

// DType is the type new pivot columns are cast to.
type DType string

const (
	DTypeFloat  DType = "float"
	DTypeInt    DType = "int"
	DTypeString DType = "string"
)

// AggregateRepeatInstrument pivots repeating-instrument rows so each
// instrument becomes a column holding Aggregator over the repeat-instance
// numbers of that record, then keeps one row per index tuple (the first).
type AggregateRepeatInstrument struct {
	Aggregator Aggregator
	DType      DType
}

func (AggregateRepeatInstrument) Kind() transformer.Kind { return transformer.AggregateRepeatByIndex }

type aggState struct {
	n      int
	sum    float64
	min    float64
	max    float64
	first  float64
	last   float64
	seeded bool
}

func (s *aggState) add(v float64) {
	if !s.seeded {
		s.min, s.max, s.first, s.seeded = v, v, v, true
	}
	s.n++
	s.sum += v
	s.min = math.Min(s.min, v)
	s.max = math.Max(s.max, v)
	s.last = v
}

func (s *aggState) result(a Aggregator) float64 {
	switch a {
	case AggMin:
		return s.min
	case AggSum:
		return s.sum
	case AggMean:
		return s.sum / float64(s.n)
	case AggCount:
		return float64(s.n)
	case AggFirst:
		return s.first
	case AggLast:
		return s.last
	default:
		return s.max
	}
}

func (a AggregateRepeatInstrument) Apply(env transformer.Env, t *table.Table) (*table.Table, error) {
	log := env.Log(a.Kind())
	index := env.Settings.IndexColumns
	for _, c := range append([]string{schema.ColumnRepeatInstrument, schema.ColumnRepeatInstance}, index...) {
		if !t.Has(c) {
			log.Warn("required column does not exist; skipping aggregation", zap.String("column", c))
			return t, nil
		}
	}
	if len(index) == 0 {
		log.Warn("no index columns configured; skipping aggregation")
		return t, nil
	}
	agg := a.Aggregator
	switch agg {
	case AggMax, AggMin, AggSum, AggMean, AggCount, AggFirst, AggLast:
	case "":
		agg = AggMax
	default:
		log.Warn("unknown aggregator; using max", zap.String("aggregator", string(agg)))
		agg = AggMax
	}

	missing := env.Settings.Missing
	var instruments []string
	known := map[string]struct{}{}
	groups := map[string]map[string]*aggState{}
	badInstance := 0

	for i := 0; i < t.Len(); i++ {
		iv, _ := t.Value(i, schema.ColumnRepeatInstrument)
		inst := strings.TrimSpace(table.String(iv))
		if inst == "" || missing.Is(iv) {
			continue
		}
		if _, ok := known[inst]; !ok {
			known[inst] = struct{}{}
			instruments = append(instruments, inst)
		}
		nv, _ := t.Value(i, schema.ColumnRepeatInstance)
		n, ok := toFloat(nv)
		if !ok {
			if !missing.Is(nv) {
				badInstance++
			}
			continue
		}
		key := indexKey(t, i, index)
		g, ok := groups[key]
		if !ok {
			g = map[string]*aggState{}
			groups[key] = g
		}
		st, ok := g[inst]
		if !ok {
			st = &aggState{}
			g[inst] = st
		}
		st.add(n)
	}
	if badInstance > 0 {
		log.Warn("repeat instance values are not numeric; cells ignored",
			zap.String("column", schema.ColumnRepeatInstance), zap.Int("cells", badInstance))
	}

	out := t
	for _, inst := range instruments {
		vals := make([]any, t.Len())
		truncated := 0
		for i := range vals {
			st := groups[indexKey(t, i, index)][inst]
			if st == nil {
				continue
			}
			v, exact := cast(st.result(agg), a.DType)
			if !exact {
				truncated++
			}
			vals[i] = v
		}
		if truncated > 0 {
			log.Warn("aggregate is not integral; truncated to int",
				zap.String("column", inst), zap.Int("cells", truncated))
		}
		var err error
		if out, err = out.WithColumn(inst, vals); err != nil {
			return nil, err
		}
	}

	deduped, dropped, err := out.DropDuplicates(index...)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Debug("collapsed repeat rows onto their index", zap.Int("rows", dropped))
	}
	return deduped, nil
}

func indexKey(t *table.Table, i int, index []string) string {
	var b strings.Builder
	for n, c := range index {
		if n > 0 {
			b.WriteByte('\x1f')
		}
		v, _ := t.Value(i, c)
		b.WriteString(table.String(v))
	}
	return b.String()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// cast converts an aggregate to dt. exact is false when the int cast drops a
// fractional part.
func cast(f float64, dt DType) (v any, exact bool) {
	switch dt {
	case DTypeInt:
		return int64(f), f == math.Trunc(f)
	case DTypeString:
		return strconv.FormatFloat(f, 'f', -1, 64), true
	default:
		return f, true
	}
}
