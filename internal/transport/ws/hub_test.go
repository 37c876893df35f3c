package ws

import (
	"classplay/internal/model"
	"classplay/internal/store"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	active   int
	attached int
	onAppend func(*model.Move)
}

func (f *fakeSource) track() store.Unsubscribe {
	f.mu.Lock()
	f.active++
	f.attached++
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.active--
			f.mu.Unlock()
		})
	}
}

func (f *fakeSource) counts() (active, attached int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.attached
}

func (f *fakeSource) SubscribeSession(ctx context.Context, sessionID string, onChange func(*model.Session)) (store.Unsubscribe, error) {
	onChange(&model.Session{ID: sessionID, Status: model.SessionWaiting, MaxPlayers: 3})
	return f.track(), nil
}

func (f *fakeSource) SubscribeMoves(ctx context.Context, sessionID string, onAppend func(*model.Move)) (store.Unsubscribe, error) {
	f.mu.Lock()
	f.onAppend = onAppend
	f.mu.Unlock()
	onAppend(&model.Move{ID: "k1", Type: model.MoveVote})
	return f.track(), nil
}

// appendMove feeds a move to the last move subscription
func (f *fakeSource) appendMove(mv *model.Move) {
	f.mu.Lock()
	fn := f.onAppend
	f.mu.Unlock()
	fn(mv)
}

func (f *fakeSource) SubscribeActiveSessions(ctx context.Context, classID string, onUpdate func([]*model.Session)) (store.Unsubscribe, error) {
	onUpdate([]*model.Session{{ID: "s1", ClassID: classID}})
	return f.track(), nil
}

func newConn(h *Hub, sessionID, playerID string) *Connection {
	return &Connection{SessionID: sessionID, PlayerID: playerID, Send: make(chan []byte, 16), Hub: h}
}

func nextMessage(t *testing.T, c *Connection) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

// nextOfType skips frames until one of type want arrives
func nextOfType(t *testing.T, c *Connection, want MessageType) Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		if msg := nextMessage(t, c); msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message", want)
	return Message{}
}

func TestHubSharesOneMirrorPerSession(t *testing.T) {
	src := &fakeSource{}
	h := NewHub(src, src)
	defer h.Close()
	ctx := context.Background()

	a := newConn(h, "s1", "p1")
	b := newConn(h, "s1", "p2")
	require.NoError(t, h.AttachSession(ctx, a))
	require.NoError(t, h.AttachSession(ctx, b))

	assert.Equal(t, 1, h.MirrorCount())
	active, attached := src.counts()
	assert.Equal(t, 2, active)
	assert.Equal(t, 2, attached)

	state := nextOfType(t, b, MsgSessionState)
	var view struct {
		Session *model.Session `json:"session"`
		Moves   []*model.Move  `json:"moves"`
	}
	require.NoError(t, json.Unmarshal(state.Payload, &view))
	assert.Equal(t, "s1", view.Session.ID)
	assert.Len(t, view.Moves, 1)

	h.DetachSession(a)
	assert.Equal(t, 1, h.MirrorCount())
	h.DetachSession(b)
	assert.Equal(t, 0, h.MirrorCount())
	active, _ = src.counts()
	assert.Equal(t, 0, active)
}

func TestHubStateThenOnlyNewerMoves(t *testing.T) {
	src := &fakeSource{}
	h := NewHub(src, src)
	defer h.Close()
	ctx := context.Background()

	// keeps the mirror alive across iterations
	keeper := newConn(h, "s1", "keeper")
	require.NoError(t, h.AttachSession(ctx, keeper))
	defer h.DetachSession(keeper)

	for i := 0; i < 20; i++ {
		c := newConn(h, "s1", "p1")
		require.NoError(t, h.AttachSession(ctx, c))

		first := nextMessage(t, c)
		require.Equal(t, MsgSessionState, first.Type)
		var view struct {
			Moves []*model.Move `json:"moves"`
			Seq   uint64        `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(first.Payload, &view))
		require.Len(t, view.Moves, i+1)

		id := fmt.Sprintf("n%02d", i)
		src.appendMove(&model.Move{ID: id, CreatedAt: int64(i + 1), Type: model.MoveVote})

		// the move in the state is not repeated, the new one follows
		next := nextMessage(t, c)
		require.Equal(t, MsgMoveAppended, next.Type)
		var mv model.Move
		require.NoError(t, json.Unmarshal(next.Payload, &mv))
		assert.Equal(t, id, mv.ID)

		h.DetachSession(c)
	}
}

func TestHubBroadcastToPlayer(t *testing.T) {
	src := &fakeSource{}
	h := NewHub(src, src)
	defer h.Close()
	ctx := context.Background()

	a := newConn(h, "s1", "p1")
	b := newConn(h, "s1", "p2")
	require.NoError(t, h.AttachSession(ctx, a))
	require.NoError(t, h.AttachSession(ctx, b))
	nextOfType(t, a, MsgSessionState)
	nextOfType(t, b, MsgSessionState)

	h.BroadcastToPlayer("s1", "p2", "your_turn", map[string]int{"asker": 1, "target": 2})
	h.BroadcastToSession("s1", "session_started", nil)

	assert.Equal(t, MessageType("your_turn"), nextMessage(t, b).Type)
	assert.Equal(t, MessageType("session_started"), nextMessage(t, b).Type)
	assert.Equal(t, MessageType("session_started"), nextMessage(t, a).Type)
}

func TestHubClassSubscription(t *testing.T) {
	src := &fakeSource{}
	h := NewHub(src, src)
	defer h.Close()

	c := &Connection{ClassID: "c1", PlayerID: "p1", Send: make(chan []byte, 4), Hub: h}
	unsub, err := h.SubscribeClass(context.Background(), c)
	require.NoError(t, err)

	msg := nextMessage(t, c)
	assert.Equal(t, MsgActiveSessions, msg.Type)
	assert.Contains(t, string(msg.Payload), `"classId":"c1"`)

	unsub()
	h.Unregister(c)
	for {
		select {
		case _, ok := <-c.Send:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("send channel not closed")
		}
	}
}
