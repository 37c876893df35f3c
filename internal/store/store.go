// Package store is the realtime tree store game sessions live in.
//
// A Store addresses values by slash separated paths. Reads return
// snapshots of a whole subtree, writes either replace (Set) or merge
// (Update) and every change is fanned out to subscribers of the path,
// its ancestors and its descendants.
package store

import (
	"context"
	"errors"
	"strings"
)

// ServerTimestamp is a placeholder resolved to the store clock
// (unix milliseconds) when it is written, at any depth of a value.
var ServerTimestamp = map[string]any{".sv": "timestamp"}

var (
	ErrUnsupportedPath = errors.New("store: unsupported path")
	ErrNotNumeric      = errors.New("store: value is not numeric")
)

// Unsubscribe stops a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Store is the contract the session services depend on
type Store interface {
	// Get reads the value at path. A missing value is a snapshot whose Exists is false.
	Get(ctx context.Context, path string) (*Snapshot, error)
	// Set replaces the value at path. A nil value removes it.
	Set(ctx context.Context, path string, value any) error
	// Update merge-patches children of path. Keys may be nested paths; nil values remove.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push appends value under path with a generated key ordered after every earlier key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Increment atomically adds delta to the number at path and returns the result.
	Increment(ctx context.Context, path string, delta int64) (int64, error)
	// Remove deletes the value at path.
	Remove(ctx context.Context, path string) error
	// Subscribe calls fn with the current value and again after every change.
	Subscribe(ctx context.Context, path string, fn func(*Snapshot)) (Unsubscribe, error)
}

// Join builds a path from segments, ignoring empty ones
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Split breaks a path into its segments
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// related reports whether a change at one path is visible from the other
func related(a, b string) bool {
	a, b = Join(a), Join(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

func lastSegment(path string) string {
	parts := Split(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
