package presence

import (
	"classplay/internal/model"
	"classplay/internal/service"
	"classplay/internal/store"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func baseSession() *model.Session {
	return &model.Session{
		ID:         "s1",
		ClassID:    "c1",
		GameType:   model.GameQuestion,
		Status:     model.SessionWaiting,
		MaxPlayers: 4,
		Players: map[string]*model.Player{
			"a": {ID: "a", Name: "Ana", Number: model.NumberOf(1)},
		},
	}
}

func TestApplySessionDiff(t *testing.T) {
	m := NewMirror("s1", nil)

	d := m.ApplySession(baseSession())
	assert.True(t, d.StatusChanged)
	assert.Equal(t, []string{"a"}, d.PlayersJoined)

	assert.True(t, m.ApplySession(baseSession()).Empty())

	next := baseSession()
	next.Status = model.SessionActive
	next.CurrentTurn = model.NewTurn(1, 2)
	next.Players["b"] = &model.Player{ID: "b", Name: "Ben", Number: model.NumberOf(2)}
	d = m.ApplySession(next)
	assert.True(t, d.StatusChanged)
	assert.True(t, d.TurnChanged)
	assert.False(t, d.MaxPlayersChanged)
	assert.Equal(t, []string{"b"}, d.PlayersJoined)

	after := baseSession()
	after.Status = model.SessionActive
	after.CurrentTurn = model.NewTurn(1, 2)
	after.CurrentTurn.Question = strPtr("why?")
	after.Players["a"].Name = "Ana K"
	d = m.ApplySession(after)
	assert.False(t, d.StatusChanged)
	assert.True(t, d.TurnChanged)
	assert.Equal(t, []string{"a"}, d.PlayersUpdated)
	assert.Equal(t, []string{"b"}, d.PlayersLeft)

	d = m.ApplySession(nil)
	assert.True(t, d.Removed)
	assert.Nil(t, m.Snapshot().Session)
}

func TestApplySessionKeepsLocalState(t *testing.T) {
	m := NewMirror("s1", nil)
	m.SetLocal("draft", "my question")
	m.SetLocal("tab", 2)

	m.ApplySession(baseSession())
	next := baseSession()
	next.Status = model.SessionFinished
	m.ApplySession(next)

	v, ok := m.Local("draft")
	require.True(t, ok)
	assert.Equal(t, "my question", v)
	assert.Equal(t, map[string]any{"draft": "my question", "tab": 2}, m.Snapshot().Local)

	m.SetLocal("tab", nil)
	_, ok = m.Local("tab")
	assert.False(t, ok)
}

func TestApplyMoveDedupesAndOrders(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	m := NewMirror("s1", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	assert.True(t, m.ApplyMove(&model.Move{ID: "k2", CreatedAt: 20, Description: "second"}))
	assert.True(t, m.ApplyMove(&model.Move{ID: "k1", CreatedAt: 10, Description: "first"}))
	assert.True(t, m.ApplyMove(&model.Move{ID: "k3", CreatedAt: 20, Description: "third"}))
	assert.False(t, m.ApplyMove(&model.Move{ID: "k2", CreatedAt: 20, Description: "second"}))
	assert.False(t, m.ApplyMove(&model.Move{Description: "no id"}))
	assert.False(t, m.ApplyMove(nil))

	view := m.Snapshot()
	require.Len(t, view.Moves, 3)
	assert.Equal(t, "first", view.Moves[0].Description)
	assert.Equal(t, "second", view.Moves[1].Description)
	assert.Equal(t, "third", view.Moves[2].Description)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, EventMove, e.Kind)
	}
}

func TestSnapshotCarriesSequence(t *testing.T) {
	var events []Event
	m := NewMirror("s1", func(e Event) { events = append(events, e) })
	assert.Zero(t, m.Snapshot().Seq)

	m.ApplySession(baseSession())
	m.ApplyMove(&model.Move{ID: "k1", CreatedAt: 10})
	m.ApplyMove(&model.Move{ID: "k1", CreatedAt: 10})

	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
	assert.Equal(t, uint64(2), m.Snapshot().Seq, "the view includes every emitted change")
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewMirror("s1", nil)
	s := baseSession()
	s.CurrentTurn = model.NewTurn(1, 2)
	m.ApplySession(s)
	m.ApplyMove(&model.Move{ID: "k1", Payload: map[string]any{"x": 1}})

	// neither the input nor the snapshot alias the mirror
	s.Players["a"].Name = "changed"
	view := m.Snapshot()
	view.Session.CurrentTurn.Asker = 9
	view.Moves[0].Payload["x"] = 2

	again := m.Snapshot()
	assert.Equal(t, "Ana", again.Session.Players["a"].Name)
	assert.Equal(t, 1, again.Session.CurrentTurn.Asker)
	assert.Equal(t, 1, again.Moves[0].Payload["x"])
}

func TestClosedMirrorIgnoresUpdates(t *testing.T) {
	m := NewMirror("s1", nil)
	m.Close()
	m.Close()
	assert.True(t, m.ApplySession(baseSession()).Empty())
	assert.False(t, m.ApplyMove(&model.Move{ID: "k1"}))
}

func TestAttachFollowsStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sessions := service.NewSessionService(st, nil)
	moves := service.NewMoveLog(st, 10)
	turns := service.NewTurnCoordinator(st, moves)

	id, err := sessions.CreateSession(ctx, service.CreateSessionParams{
		ClassID: "c1", CreatorID: "p1", CreatorName: "One", GameType: model.GameQuestion, MaxPlayers: 3,
	})
	require.NoError(t, err)
	_, err = sessions.JoinSession(ctx, id, "p2", "Two")
	require.NoError(t, err)
	require.NoError(t, sessions.StartSession(ctx, id))

	events := make(chan Event, 64)
	m, err := Attach(ctx, id, sessions, moves, func(e Event) { events <- e })
	require.NoError(t, err)
	defer m.Close()
	m.SetLocal("draft", "hello")

	require.Eventually(t, func() bool {
		v := m.Snapshot()
		return v.Session != nil && v.Session.Status == model.SessionActive
	}, 2*time.Second, 5*time.Millisecond)

	p1 := &model.Player{ID: "p1", Name: "One"}
	res, err := turns.AdvanceTurn(ctx, id, p1, model.MoveAnswer, "first answer", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v := m.Snapshot()
		return len(v.Moves) == 1 && v.Session.CurrentTurn != nil && *v.Session.CurrentTurn == *res.Turn
	}, 2*time.Second, 5*time.Millisecond)

	view := m.Snapshot()
	assert.Equal(t, res.MoveID, view.Moves[0].ID)
	assert.Empty(t, view.Session.Moves)
	assert.Equal(t, "hello", view.Local["draft"])

	sawMove := false
	for len(events) > 0 {
		if e := <-events; e.Kind == EventMove {
			sawMove = true
		}
	}
	assert.True(t, sawMove)

	m.Close()
	_, err = moves.AppendMove(ctx, id, &model.Move{PlayerID: "p2", Type: model.MoveVote})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, m.Snapshot().Moves, 1)
}
