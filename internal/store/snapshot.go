package store

import (
	"encoding/json"
	"sort"
)

// Snapshot is an immutable copy of the value at a path
type Snapshot struct {
	key string
	raw json.RawMessage
}

func newSnapshot(path string, value any) (*Snapshot, error) {
	s := &Snapshot{key: lastSegment(path)}
	if value == nil {
		return s, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	s.raw = data
	return s, nil
}

// Key is the last segment of the snapshot path
func (s *Snapshot) Key() string { return s.key }

// Exists reports whether a value was present
func (s *Snapshot) Exists() bool { return len(s.raw) > 0 }

// Raw returns the JSON encoding of the value, nil when missing
func (s *Snapshot) Raw() json.RawMessage { return s.raw }

// Decode unmarshals the value into v. Missing values leave v untouched.
func (s *Snapshot) Decode(v any) error {
	if !s.Exists() {
		return nil
	}
	return json.Unmarshal(s.raw, v)
}

// Children returns the child keys in lexical order
func (s *Snapshot) Children() []string {
	if !s.Exists() {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(s.raw, &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child returns the snapshot of a direct child
func (s *Snapshot) Child(key string) *Snapshot {
	c := &Snapshot{key: key}
	if !s.Exists() {
		return c
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(s.raw, &m); err != nil {
		return c
	}
	c.raw = m[key]
	return c
}
