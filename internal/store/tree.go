package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Values are kept as generic JSON trees: map[string]any for branches and
// json.Number, string, bool or []any for leaves. Nulls and empty branches
// are never stored.

func decodeTree(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalize converts an arbitrary Go value into a stored tree
func normalize(value any, now int64) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode value: %w", err)
	}
	v, err := decodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode value: %w", err)
	}
	return prune(resolveTimestamps(v, now)), nil
}

func normalizeFields(fields map[string]any, now int64) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		n, err := normalize(v, now)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func resolveTimestamps(v any, now int64) any {
	switch t := v.(type) {
	case map[string]any:
		if isTimestampPlaceholder(t) {
			return json.Number(strconv.FormatInt(now, 10))
		}
		for k, c := range t {
			t[k] = resolveTimestamps(c, now)
		}
		return t
	case []any:
		for i, c := range t {
			t[i] = resolveTimestamps(c, now)
		}
		return t
	default:
		return v
	}
}

func isTimestampPlaceholder(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	sv, ok := m[".sv"].(string)
	return ok && sv == "timestamp"
}

func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, c := range m {
		c = prune(c)
		if c == nil {
			delete(m, k)
			continue
		}
		m[k] = c
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func getAt(root any, parts []string) any {
	cur := root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

// setAt returns root with value placed at parts. Branches left empty are dropped.
func setAt(root any, parts []string, value any) any {
	if len(parts) == 0 {
		return value
	}
	m, ok := root.(map[string]any)
	if !ok {
		if value == nil {
			return root
		}
		m = make(map[string]any)
	}
	child := setAt(m[parts[0]], parts[1:], value)
	if child == nil {
		delete(m, parts[0])
	} else {
		m[parts[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func updateAt(root any, parts []string, fields map[string]any) any {
	for k, v := range fields {
		sub := make([]string, 0, len(parts)+1)
		sub = append(sub, parts...)
		sub = append(sub, Split(k)...)
		root = setAt(root, sub, v)
	}
	return root
}

func incrementAt(root any, parts []string, delta int64) (any, int64, error) {
	var cur int64
	switch v := getAt(root, parts).(type) {
	case nil:
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return root, 0, ErrNotNumeric
			}
			n = int64(f)
		}
		cur = n
	default:
		return root, 0, ErrNotNumeric
	}
	cur += delta
	return setAt(root, parts, json.Number(strconv.FormatInt(cur, 10))), cur, nil
}

func pushKey(seq int64) string {
	return fmt.Sprintf("k%012d", seq)
}

func marshalTree(v any) ([]byte, error) {
	return json.Marshal(v)
}
