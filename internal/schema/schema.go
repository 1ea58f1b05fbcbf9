// Package schema turns the source system's field-definition dictionary into
// per-column annotations: the declared type of each column and, for coded
// fields, the map from raw code to display label.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
)

// Names of the system columns the source system adds to every export.
const (
	ColumnDataAccessGroup  = "redcap_data_access_group"
	ColumnRepeatInstrument = "redcap_repeat_instrument"
	ColumnRepeatInstance   = "redcap_repeat_instance"
)

// DefaultMissingValue is the canonical label for any missing cell.
const DefaultMissingValue = "Value Unavailable"

// FieldType classifies a column for transform purposes.
type FieldType int

const (
	TypeUnknown FieldType = iota
	// TypeEnumerated is a single-choice coded field (dropdown, radio).
	TypeEnumerated
	// TypeEnumeratedMulti is a multi-choice coded field (checkbox).
	TypeEnumeratedMulti
	// TypeText is free text.
	TypeText
	// TypeBinary is a yes/no field.
	TypeBinary
	// TypeNumber is a numeric system column.
	TypeNumber
	// TypeSkip covers file, calc, descriptive and notes fields.
	TypeSkip
)

func (t FieldType) String() string {
	switch t {
	case TypeEnumerated:
		return "enumerated"
	case TypeEnumeratedMulti:
		return "enumerated-multi"
	case TypeText:
		return "text"
	case TypeBinary:
		return "binary"
	case TypeNumber:
		return "number"
	case TypeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ClassifyFieldType maps a source-system field type name to a FieldType.
func ClassifyFieldType(sourceType string) FieldType {
	switch sourceType {
	case "dropdown", "radio":
		return TypeEnumerated
	case "checkbox":
		return TypeEnumeratedMulti
	case "yesno":
		return TypeBinary
	case "text":
		return TypeText
	case "number":
		return TypeNumber
	case "file", "calc", "descriptive", "notes":
		return TypeSkip
	default:
		return TypeUnknown
	}
}

// FieldDefinition is one entry of the source system's metadata export.
type FieldDefinition struct {
	FieldName      string `json:"field_name"`
	FormName       string `json:"form_name"`
	FieldType      string `json:"field_type"`
	FieldLabel     string `json:"field_label"`
	Choices        string `json:"select_choices_or_calculations"`
	ValidationType string `json:"text_validation_type_or_show_slider_number"`
}

// DecodeFields reads a JSON array of field definitions.
func DecodeFields(r io.Reader) ([]FieldDefinition, error) {
	var out []FieldDefinition
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("schema: decode field definitions: %w", err)
	}
	return out, nil
}

// ValueMap maps a raw code to its display label.
type ValueMap map[string]string

// Clone returns an independent copy.
func (m ValueMap) Clone() ValueMap {
	out := make(ValueMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Union returns m with every entry of other added; other wins on key clashes.
func (m ValueMap) Union(other ValueMap) ValueMap {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// HasLabel reports whether label is one of the map's values.
func (m ValueMap) HasLabel(label string) bool {
	for _, v := range m {
		if v == label {
			return true
		}
	}
	return false
}

// Annotation describes one column's provenance in the source schema.
type Annotation struct {
	Name       string
	Type       FieldType
	SourceType string
	Options    ValueMap
}

// Mappable reports whether the annotation carries a non-empty value map.
func (a Annotation) Mappable() bool { return len(a.Options) > 0 }

// Annotations is an ordered annotation list.
type Annotations []Annotation

// Lookup returns the annotation for column name.
func (as Annotations) Lookup(name string) (Annotation, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return Annotation{}, false
}

// MappableColumns returns, in order, the names of columns with non-empty
// value maps.
func (as Annotations) MappableColumns() []string {
	var out []string
	for _, a := range as {
		if a.Mappable() {
			out = append(out, a.Name)
		}
	}
	return out
}
