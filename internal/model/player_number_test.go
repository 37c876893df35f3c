package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerNumber(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		assigned bool
	}{
		{name: "positive", in: 3, assigned: true},
		{name: "zero is reserved", in: 0, assigned: false},
		{name: "negative", in: -2, assigned: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := NumberOf(tt.in).Get()
			assert.Equal(t, tt.assigned, ok)
			if ok {
				assert.Equal(t, tt.in, n)
			}
		})
	}

	var zero PlayerNumber
	assert.False(t, zero.Assigned())
	assert.Equal(t, "unassigned", zero.String())
}

func TestPlayerNumberJSON(t *testing.T) {
	data, err := json.Marshal(Player{ID: "u1", Name: "Ana", Number: NumberOf(2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Ana","number":2}`, string(data))

	data, err = json.Marshal(Player{ID: "u1", Name: "Ana"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Ana","number":null}`, string(data))

	for _, raw := range []string{`null`, `0`, `-1`} {
		var p Player
		require.NoError(t, json.Unmarshal([]byte(`{"id":"u","number":`+raw+`}`), &p))
		assert.False(t, p.Number.Assigned(), raw)
	}

	var p Player
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u","number":4}`), &p))
	n, ok := p.Number.Get()
	assert.True(t, ok)
	assert.Equal(t, 4, n)
}

func TestValidNumbersSkipsUnassigned(t *testing.T) {
	s := &Session{Players: map[string]*Player{
		"a": {ID: "a", Number: NumberOf(3)},
		"b": {ID: "b", Number: NumberOf(1)},
		"c": {ID: "c"},
		"d": nil,
	}}
	assert.Equal(t, []int{1, 3}, s.ValidNumbers())
	assert.Equal(t, "a", s.PlayerByNumber(3).ID)
	assert.Nil(t, s.PlayerByNumber(0))
}

func TestSessionStatusTransitions(t *testing.T) {
	assert.True(t, SessionWaiting.CanTransition(SessionActive))
	assert.True(t, SessionWaiting.CanTransition(SessionFinished))
	assert.True(t, SessionActive.CanTransition(SessionFinished))
	assert.False(t, SessionActive.CanTransition(SessionWaiting))
	assert.False(t, SessionFinished.CanTransition(SessionActive))
	assert.False(t, SessionActive.CanTransition(SessionActive))
	assert.False(t, SessionStatus("paused").CanTransition(SessionActive))
}

func TestOrderedMovesFillsIDs(t *testing.T) {
	s := &Session{Moves: map[string]*Move{
		"k000000000002": {Type: MoveVote},
		"k000000000001": {Type: MoveAnswer},
	}}
	moves := s.OrderedMoves()
	require.Len(t, moves, 2)
	assert.Equal(t, "k000000000001", moves[0].ID)
	assert.Equal(t, MoveAnswer, moves[0].Type)
	assert.Equal(t, "k000000000002", moves[1].ID)
}
