package schema

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// numericLike matches codes and labels the source system treats as numbers.
var numericLike = regexp.MustCompile(`^[0-9.]{1,17}$`)

// Extractor derives column annotations from field definitions.
type Extractor struct {
	Missing Missing
	Logger  *zap.Logger
}

// NewExtractor returns an Extractor using the given missing-value policy.
func NewExtractor(m Missing, logger *zap.Logger) Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Extractor{Missing: m, Logger: logger}
}

// SystemAnnotations are prepended to every annotation list.
func SystemAnnotations() Annotations {
	return Annotations{
		{Name: ColumnDataAccessGroup, Type: TypeText, SourceType: "text", Options: ValueMap{}},
		{Name: ColumnRepeatInstrument, Type: TypeText, SourceType: "text", Options: ValueMap{}},
		{Name: ColumnRepeatInstance, Type: TypeNumber, SourceType: "number", Options: ValueMap{}},
	}
}

// Extract returns the annotations for the fields present in columns: the
// three system columns first, then matching fields sorted by field name.
// Fields of an unrecognised type are left out and logged.
func (e Extractor) Extract(fields []FieldDefinition, columns []string) Annotations {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}

	sorted := append([]FieldDefinition(nil), fields...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FieldName < sorted[j].FieldName })

	missing := e.Missing.Map()
	out := SystemAnnotations()
	for _, f := range sorted {
		if _, ok := present[f.FieldName]; !ok {
			continue
		}
		a := Annotation{Name: f.FieldName, SourceType: f.FieldType, Type: ClassifyFieldType(f.FieldType)}
		switch a.Type {
		case TypeEnumerated, TypeEnumeratedMulti:
			a.Options = ParseChoices(f.Choices).Union(missing)
		case TypeBinary:
			a.Options = ValueMap{"1": "Yes", "0": "No"}.Union(missing)
		case TypeText, TypeSkip:
			a.Options = ValueMap{}
		default:
			logger.Warn("schema: unsupported field type; column left unannotated",
				zap.String("field", f.FieldName),
				zap.String("field_type", f.FieldType),
			)
			continue
		}
		out = append(out, a)
	}
	return out
}

// ParseChoices parses a "code, label | code, label" choice string. Labels may
// themselves contain commas. Numeric-looking codes and labels are written in
// canonical form so "01" and "1" address the same entry.
func ParseChoices(s string) ValueMap {
	out := ValueMap{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	for _, opt := range strings.Split(s, "|") {
		code, label, _ := strings.Cut(opt, ",")
		code = canonicalNumber(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		out[code] = canonicalNumber(strings.TrimSpace(label))
	}
	return out
}

func canonicalNumber(s string) string {
	if !numericLike.MatchString(s) {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}
