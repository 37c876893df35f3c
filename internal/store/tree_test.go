package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinSplit(t *testing.T) {
	assert.Equal(t, "sessions/a/moves", Join("sessions", "/a/", "", "moves"))
	assert.Equal(t, []string{"sessions", "a"}, Split("/sessions//a/"))
	assert.Nil(t, Split("/"))
}

func TestRelated(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"sessions/a", "sessions/a", true},
		{"sessions/a", "sessions/a/moves/k1", true},
		{"sessions/a/moves", "sessions/a", true},
		{"sessions", "sessions/b/status", true},
		{"sessions/a", "sessions/ab", false},
		{"sessions/a/moves", "sessions/a/currentTurn", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, related(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestSetAtDropsEmptyBranches(t *testing.T) {
	root := setAt(nil, []string{"a", "b", "c"}, "v")
	assert.Equal(t, map[string]any{"a": map[string]any{"b": map[string]any{"c": "v"}}}, root)

	root = setAt(root, []string{"a", "b", "c"}, nil)
	assert.Nil(t, root)
}

func TestSetAtReplacesLeafWithBranch(t *testing.T) {
	root := setAt(map[string]any{"a": "leaf"}, []string{"a", "b"}, "v")
	assert.Equal(t, map[string]any{"a": map[string]any{"b": "v"}}, root)
}

func TestPushKeyOrdering(t *testing.T) {
	assert.Less(t, pushKey(9), pushKey(10))
	assert.Less(t, pushKey(99), pushKey(100))
}
