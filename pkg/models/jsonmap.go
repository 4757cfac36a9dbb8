// Package models contains domain types for sentinel-engine.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is an opaque, schema-free JSON object column.
//
// Reads never fail: NULL, empty, malformed or non-object payloads scan to an
// empty map. Writes store an empty map as SQL NULL rather than "{}".
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	*m = decodeJSONMap(value)
	return nil
}

// MarshalJSON always renders an object, never null.
func (m JSONMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// Clone returns a shallow copy.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the string value at key, or "" when absent or not a string.
func (m JSONMap) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns the bool value at key, or false when absent or not a bool.
func (m JSONMap) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

func decodeJSONMap(value any) JSONMap {
	raw, ok := rawBytes(value)
	if !ok || len(raw) == 0 {
		return JSONMap{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return JSONMap{}
	}
	return JSONMap(decoded)
}

// JSONStrings is an ordered list of strings stored as a JSON array,
// with the same never-fail read policy as JSONMap.
type JSONStrings []string

// Value implements driver.Valuer.
func (s JSONStrings) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json strings: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (s *JSONStrings) Scan(value any) error {
	raw, ok := rawBytes(value)
	if !ok || len(raw) == 0 {
		*s = JSONStrings{}
		return nil
	}
	var decoded []string
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		*s = JSONStrings{}
		return nil
	}
	*s = JSONStrings(decoded)
	return nil
}

// MarshalJSON always renders an array, never null.
func (s JSONStrings) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

func rawBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
