package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Options is a free-form option bag with typed accessors. Accessors return
// the provided default when a key is absent or holds an unexpected type, so
// transforms can treat partial configuration as "use the default".
type Options map[string]any

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64
// and YAML integers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringMap returns key as a map of strings. Scalar non-string values are
// rendered with fmt so that YAML `1: Yes` maps still work.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	v, ok := o[key]
	if !ok {
		return res
	}
	switch m := v.(type) {
	case Mapping:
		for _, it := range m {
			if s, ok := scalarString(it.Value); ok {
				res[it.Key] = s
			}
		}
	case Options:
		for k, vv := range m {
			if s, ok := scalarString(vv); ok {
				res[k] = s
			}
		}
	case map[string]any:
		for k, vv := range m {
			if s, ok := scalarString(vv); ok {
				res[k] = s
			}
		}
	case map[any]any:
		for k, vv := range m {
			if s, ok := scalarString(vv); ok {
				res[fmt.Sprint(k)] = s
			}
		}
	case map[string]string:
		for k, vv := range m {
			res[k] = vv
		}
	}
	return res
}

// StringSlice returns key as a []string. A lone string becomes a one-element
// slice. Returns nil when the key is missing.
func (o Options) StringSlice(key string) []string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := scalarString(x); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	case string:
		return []string{vv}
	}
	return nil
}

// Pair is an ordered key/value entry.
type Pair struct {
	Key   string
	Value string
}

// Pairs returns key as ordered pairs. An object decoded from a config file
// and an array of two-element arrays both keep the configured order; a plain
// Go map yields its entries sorted by key.
func (o Options) Pairs(key string) []Pair {
	v, ok := o[key]
	if !ok {
		return nil
	}
	if m, ok := v.(Mapping); ok {
		out := make([]Pair, 0, len(m))
		for _, it := range m {
			if s, ok := scalarString(it.Value); ok {
				out = append(out, Pair{Key: it.Key, Value: s})
			}
		}
		return out
	}
	if arr, ok := v.([]any); ok {
		out := make([]Pair, 0, len(arr))
		for _, item := range arr {
			kv, ok := item.([]any)
			if !ok || len(kv) != 2 {
				continue
			}
			k, kok := scalarString(kv[0])
			val, vok := scalarString(kv[1])
			if kok && vok {
				out = append(out, Pair{Key: k, Value: val})
			}
		}
		return out
	}
	m := o.StringMap(key)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Pair, len(keys))
	for i, k := range keys {
		out[i] = Pair{Key: k, Value: m[k]}
	}
	return out
}

// Sub returns a nested option bag, or an empty one.
func (o Options) Sub(key string) Options {
	switch m := o[key].(type) {
	case map[string]any:
		return Options(m)
	case Options:
		return m
	case Mapping:
		return m.Options()
	}
	return Options{}
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// Mapping is a nested option object that keeps its configured key order.
type Mapping []MapItem

// MapItem is one entry of a Mapping.
type MapItem struct {
	Key   string
	Value any
}

// Options converts m to an unordered option bag.
func (m Mapping) Options() Options {
	o := make(Options, len(m))
	for _, it := range m {
		o[it.Key] = it.Value
	}
	return o
}

// UnmarshalJSON makes a missing or null "options" decode to an empty map.
// Nested objects decode to Mapping.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(bytes.TrimSpace(b)) == 0 || string(bytes.TrimSpace(b)) == "null" {
		*o = Options{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	v, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	m, ok := v.(Mapping)
	if !ok {
		return fmt.Errorf("options: expected an object, got %T", v)
	}
	*o = m.Options()
	return nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		m := Mapping{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			k, _ := kt.(string)
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			m = append(m, MapItem{Key: k, Value: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return m, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("options: unexpected %v", d)
}

// UnmarshalYAML decodes the option bag, keeping nested objects as Mapping.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	v, err := decodeYAMLValue(n)
	if err != nil {
		return err
	}
	switch m := v.(type) {
	case nil:
		*o = Options{}
	case Mapping:
		*o = m.Options()
	default:
		return fmt.Errorf("options: line %d: expected a mapping", n.Line)
	}
	return nil
}

func decodeYAMLValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeYAMLValue(n.Content[0])
	case yaml.AliasNode:
		return decodeYAMLValue(n.Alias)
	case yaml.MappingNode:
		m := make(Mapping, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var k string
			if err := n.Content[i].Decode(&k); err != nil {
				return nil, err
			}
			v, err := decodeYAMLValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m = append(m, MapItem{Key: k, Value: v})
		}
		return m, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeYAMLValue(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return fmt.Sprint(x), true
	case int:
		return fmt.Sprint(x), true
	case float64:
		return fmt.Sprint(x), true
	}
	return "", false
}
