package entry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is one metadata value: String, Number, Bool, List or Map.
type Value interface {
	isValue()
}

type (
	String string
	Number float64
	Bool   bool
	List   []Value
	Map    map[string]Value
)

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (Map) isValue()    {}

// Metadata is the key/value map extracted from a file by the build pipeline.
// Keys are lower-case.
type Metadata map[string]Value

// String returns the value under key rendered as text.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case String:
		return string(t), true
	case Number:
		return strconv.FormatFloat(float64(t), 'f', -1, 64), true
	case Bool:
		return strconv.FormatBool(bool(t)), true
	}
	return "", false
}

// Strings returns a list value, or a comma separated string split into parts.
func (m Metadata) Strings(key string) []string {
	switch t := m[key].(type) {
	case List:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(String); ok && strings.TrimSpace(string(s)) != "" {
				out = append(out, strings.TrimSpace(string(s)))
			}
		}
		return out
	case String:
		var out []string
		for _, part := range strings.Split(string(t), ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Bool interprets the value under key as a flag. Strings such as "yes",
// "true", "on" and "1" count as set.
func (m Metadata) Bool(key string) bool {
	switch t := m[key].(type) {
	case Bool:
		return bool(t)
	case Number:
		return t != 0
	case String:
		switch strings.ToLower(strings.TrimSpace(string(t))) {
		case "yes", "y", "true", "on", "1":
			return true
		}
	}
	return false
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(Metadata, len(raw))
	for k, v := range raw {
		val, err := ValueOf(v)
		if err != nil {
			return fmt.Errorf("metadata %q: %w", k, err)
		}
		out[k] = val
	}
	*m = out
	return nil
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValueOf converts a decoded JSON value into a metadata Value.
func ValueOf(v any) (Value, error) {
	switch t := v.(type) {
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(t), nil
	case int64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case []string:
		list := make(List, len(t))
		for i, s := range t {
			list[i] = String(s)
		}
		return list, nil
	case []any:
		list := make(List, 0, len(t))
		for _, item := range t {
			val, err := ValueOf(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case map[string]any:
		out := make(Map, len(t))
		for k, item := range t {
			val, err := ValueOf(item)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	case Value:
		return t, nil
	}
	return nil, fmt.Errorf("unsupported metadata value %T", v)
}

func plain(v Value) any {
	switch t := v.(type) {
	case String:
		return string(t)
	case Number:
		return float64(t)
	case Bool:
		return bool(t)
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	case Map:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plain(item)
		}
		return out
	}
	return nil
}
