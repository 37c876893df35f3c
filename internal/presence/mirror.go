// Package presence keeps a live view of one session for connected clients.
//
// A Mirror merges server pushes of the session record and its move log
// into a View. Moves redelivered by the store are dropped, and client-only
// state stored with SetLocal survives every server update.
package presence

import (
	"classplay/internal/model"
	"classplay/internal/store"
	"context"
	"fmt"
	"sort"
	"sync"
)

// SessionSubscriber streams a session record
type SessionSubscriber interface {
	SubscribeSession(ctx context.Context, sessionID string, onChange func(*model.Session)) (store.Unsubscribe, error)
}

// MoveSubscriber streams appended moves
type MoveSubscriber interface {
	SubscribeMoves(ctx context.Context, sessionID string, onAppend func(*model.Move)) (store.Unsubscribe, error)
}

// EventKind tells listeners what part of the view changed
type EventKind string

const (
	EventSession EventKind = "session"
	EventMove    EventKind = "move"
)

// Event is passed to the mirror listener after the view changed
type Event struct {
	Kind    EventKind
	Diff    *Diff
	Session *model.Session // server fields after the change, nil once removed
	Move    *model.Move
	Seq     uint64 // position in the mirror's change sequence
}

// Diff lists the server fields an update changed
type Diff struct {
	Removed           bool     `json:"removed,omitempty"`
	StatusChanged     bool     `json:"statusChanged,omitempty"`
	MaxPlayersChanged bool     `json:"maxPlayersChanged,omitempty"`
	TurnChanged       bool     `json:"turnChanged,omitempty"`
	PlayersJoined     []string `json:"playersJoined,omitempty"`
	PlayersLeft       []string `json:"playersLeft,omitempty"`
	PlayersUpdated    []string `json:"playersUpdated,omitempty"`
}

// Empty reports whether nothing changed
func (d Diff) Empty() bool {
	return !d.Removed && !d.StatusChanged && !d.MaxPlayersChanged && !d.TurnChanged &&
		len(d.PlayersJoined) == 0 && len(d.PlayersLeft) == 0 && len(d.PlayersUpdated) == 0
}

// View is a point in time copy of a mirrored session
type View struct {
	Session *model.Session `json:"session"`
	Moves   []*model.Move  `json:"moves"`
	Local   map[string]any `json:"local,omitempty"`
	Seq     uint64         `json:"seq"` // last change included
}

// Mirror is the client side view of one session
type Mirror struct {
	sessionID string
	onEvent   func(Event)

	mu      sync.Mutex
	session *model.Session
	moves   []*model.Move
	seen    map[string]struct{}
	local   map[string]any
	seq     uint64
	unsubs  []store.Unsubscribe
	closed  bool
}

// NewMirror returns a detached mirror. onEvent may be nil.
func NewMirror(sessionID string, onEvent func(Event)) *Mirror {
	return &Mirror{
		sessionID: sessionID,
		onEvent:   onEvent,
		seen:      make(map[string]struct{}),
		local:     make(map[string]any),
	}
}

// Attach creates a mirror fed by the session and move subscriptions
func Attach(ctx context.Context, sessionID string, sessions SessionSubscriber, moves MoveSubscriber, onEvent func(Event)) (*Mirror, error) {
	m := NewMirror(sessionID, onEvent)

	unsubSession, err := sessions.SubscribeSession(ctx, sessionID, func(s *model.Session) {
		m.ApplySession(s)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe session: %w", err)
	}
	unsubMoves, err := moves.SubscribeMoves(ctx, sessionID, func(mv *model.Move) {
		m.ApplyMove(mv)
	})
	if err != nil {
		unsubSession()
		return nil, fmt.Errorf("failed to subscribe moves: %w", err)
	}

	m.mu.Lock()
	m.unsubs = []store.Unsubscribe{unsubSession, unsubMoves}
	closed := m.closed
	m.mu.Unlock()
	if closed {
		unsubSession()
		unsubMoves()
	}
	return m, nil
}

// SessionID is the mirrored session
func (m *Mirror) SessionID() string { return m.sessionID }

// ApplySession merges a server push of the session record.
// Local state is left alone.
func (m *Mirror) ApplySession(s *model.Session) Diff {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Diff{}
	}
	diff := diffSession(m.session, s)
	var current *model.Session
	if s == nil {
		m.session = nil
	} else {
		m.session = copySession(s)
		current = copySession(s)
	}
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if !diff.Empty() {
		m.emit(Event{Kind: EventSession, Diff: &diff, Session: current, Seq: seq})
	}
	return diff
}

// ApplyMove adds a move to the view. It returns false for moves already seen.
func (m *Mirror) ApplyMove(mv *model.Move) bool {
	if mv == nil || mv.ID == "" {
		return false
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.seen[mv.ID]; ok {
		m.mu.Unlock()
		return false
	}
	m.seen[mv.ID] = struct{}{}

	c := mv.Clone()
	i := sort.Search(len(m.moves), func(i int) bool { return moveBefore(c, m.moves[i]) })
	m.moves = append(m.moves, nil)
	copy(m.moves[i+1:], m.moves[i:])
	m.moves[i] = c
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	m.emit(Event{Kind: EventMove, Move: c.Clone(), Seq: seq})
	return true
}

// SetLocal stores client-only state next to the server view
func (m *Mirror) SetLocal(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.local, key)
		return
	}
	m.local[key] = value
}

// Local reads client-only state
func (m *Mirror) Local(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.local[key]
	return v, ok
}

// Snapshot returns a copy of the current view
func (m *Mirror) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		Moves: make([]*model.Move, 0, len(m.moves)),
		Local: make(map[string]any, len(m.local)),
		Seq:   m.seq,
	}
	if m.session != nil {
		v.Session = copySession(m.session)
	}
	for _, mv := range m.moves {
		v.Moves = append(v.Moves, mv.Clone())
	}
	for k, val := range m.local {
		v.Local[k] = val
	}
	return v
}

// Close detaches from the store. Safe to call more than once.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

func (m *Mirror) emit(e Event) {
	if m.onEvent != nil {
		m.onEvent(e)
	}
}

// moveBefore orders by store time, then push key
func moveBefore(a, b *model.Move) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}
