package schema

import "redcapetl/internal/table"

// Missing recognises the raw representations of a missing value and names the
// single label they are canonicalised to.
type Missing struct {
	// Label is the canonical missing-value label.
	Label string
	// Sentinels are textual cell values treated as missing. nil and NaN cells
	// are always missing.
	Sentinels []string
}

// DefaultSentinels are the textual missing markers seen in exports.
var DefaultSentinels = []string{"", "nan", "NaN", "-"}

// NewMissing returns a Missing for label using DefaultSentinels. The label
// itself is also treated as a sentinel so canonicalisation is idempotent.
func NewMissing(label string) Missing {
	if label == "" {
		label = DefaultMissingValue
	}
	s := append([]string(nil), DefaultSentinels...)
	return Missing{Label: label, Sentinels: append(s, label)}
}

// Is reports whether v is missing: nil, NaN, or textually a sentinel.
func (m Missing) Is(v any) bool {
	if table.IsMissing(v) {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, x := range m.Sentinels {
		if s == x {
			return true
		}
	}
	return false
}

// Map returns sentinel → label for every textual sentinel.
func (m Missing) Map() ValueMap {
	out := make(ValueMap, len(m.Sentinels)+1)
	for _, s := range m.Sentinels {
		out[s] = m.Label
	}
	out[m.Label] = m.Label
	return out
}
