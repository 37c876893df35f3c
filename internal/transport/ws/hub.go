package ws

import (
	"classplay/internal/model"
	"classplay/internal/presence"
	"classplay/internal/store"
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Session channel message types
const (
	MsgSessionState  MessageType = "session_state"
	MsgSessionUpdate MessageType = "session_update"
	MsgMoveAppended  MessageType = "move_appended"
	MsgError         MessageType = "error"
)

// Class channel message types
const (
	MsgActiveSessions MessageType = "active_sessions"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SessionSource is what the hub subscribes to
type SessionSource interface {
	presence.SessionSubscriber
	SubscribeActiveSessions(ctx context.Context, classID string, onUpdate func([]*model.Session)) (store.Unsubscribe, error)
}

// Hub manages WebSocket connections for sessions and class lobbies
type Hub struct {
	sessions SessionSource
	moves    presence.MoveSubscriber

	// sessionID -> connections
	sessionConns map[string]map[*Connection]struct{}
	mu           sync.RWMutex

	// one mirror per session with at least one connection
	mirrors  map[string]*sessionMirror
	mirrorMu sync.Mutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	closeOnce  sync.Once
}

type sessionMirror struct {
	mirror *presence.Mirror
	refs   int
}

// Connection represents a WebSocket connection
type Connection struct {
	SessionID string // empty for class lobby connections
	ClassID   string
	PlayerID  string
	Send      chan []byte
	Hub       *Hub

	mu     sync.Mutex
	closed bool

	// owned by the hub loop
	mirror   *presence.Mirror
	stateSeq uint64
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	SessionID string
	ToPlayer  string      // empty means every connection of the session
	ToConn    *Connection // set for direct frames
	Seq       uint64      // mirror change carried, zero for service events
	Message   *Message
}

// sessionUpdate is the payload of MsgSessionUpdate
type sessionUpdate struct {
	Session *model.Session `json:"session"`
	Diff    *presence.Diff `json:"diff"`
}

// NewHub creates a new WebSocket hub
func NewHub(sessions SessionSource, moves presence.MoveSubscriber) *Hub {
	h := &Hub{
		sessions:     sessions,
		moves:        moves,
		sessionConns: make(map[string]map[*Connection]struct{}),
		mirrors:      make(map[string]*sessionMirror),
		register:     make(chan *Connection),
		unregister:   make(chan *Connection),
		broadcast:    make(chan *BroadcastMessage, 256),
		done:         make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case conn := <-h.register:
			if conn.SessionID == "" {
				continue
			}
			h.mu.Lock()
			if h.sessionConns[conn.SessionID] == nil {
				h.sessionConns[conn.SessionID] = make(map[*Connection]struct{})
			}
			h.sessionConns[conn.SessionID][conn] = struct{}{}
			h.mu.Unlock()
			h.sendState(conn)
			log.Debug().Str("session", conn.SessionID).Str("player", conn.PlayerID).Msg("ws connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.sessionConns[conn.SessionID]; ok {
				delete(conns, conn)
				if len(conns) == 0 {
					delete(h.sessionConns, conn.SessionID)
				}
			}
			h.mu.Unlock()
			conn.close()
			log.Debug().Str("session", conn.SessionID).Str("class", conn.ClassID).Str("player", conn.PlayerID).Msg("ws disconnected")

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				log.Error().Err(err).Str("type", string(msg.Message.Type)).Msg("failed to encode ws message")
				continue
			}
			if msg.ToConn != nil {
				msg.ToConn.trySend(data)
				continue
			}
			h.mu.RLock()
			for conn := range h.sessionConns[msg.SessionID] {
				if msg.ToPlayer != "" && conn.PlayerID != msg.ToPlayer {
					continue
				}
				if msg.Seq != 0 && msg.Seq <= conn.stateSeq {
					// already part of the state this connection started from
					continue
				}
				conn.trySend(data)
			}
			h.mu.RUnlock()
		}
	}
}

// sendState queues the current view for a connection that just joined.
// It runs on the hub loop, so every later mirror frame is either newer
// than the view or filtered by its sequence.
func (h *Hub) sendState(conn *Connection) {
	if conn.mirror == nil {
		return
	}
	view := conn.mirror.Snapshot()
	if view.Session == nil {
		return
	}
	data, err := json.Marshal(newMessage(MsgSessionState, view))
	if err != nil {
		log.Error().Err(err).Str("session", conn.SessionID).Msg("failed to encode session state")
		return
	}
	conn.stateSeq = view.Seq
	conn.trySend(data)
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.close()
	}
}

// AttachSession registers conn and makes sure the session is mirrored.
// The connection first receives the current view, then only changes made
// after it, so no move is delivered twice.
func (h *Hub) AttachSession(ctx context.Context, conn *Connection) error {
	m, err := h.acquireMirror(ctx, conn.SessionID)
	if err != nil {
		return err
	}
	conn.mirror = m
	h.Register(conn)
	return nil
}

// DetachSession unregisters conn and drops the mirror with the last connection
func (h *Hub) DetachSession(conn *Connection) {
	h.Unregister(conn)
	h.releaseMirror(conn.SessionID)
}

func (h *Hub) acquireMirror(ctx context.Context, sessionID string) (*presence.Mirror, error) {
	h.mirrorMu.Lock()
	defer h.mirrorMu.Unlock()

	if sm, ok := h.mirrors[sessionID]; ok {
		sm.refs++
		return sm.mirror, nil
	}

	m, err := presence.Attach(ctx, sessionID, h.sessions, h.moves, func(e presence.Event) {
		h.forward(sessionID, e)
	})
	if err != nil {
		return nil, err
	}
	h.mirrors[sessionID] = &sessionMirror{mirror: m, refs: 1}
	log.Info().Str("session", sessionID).Msg("mirroring session")
	return m, nil
}

func (h *Hub) releaseMirror(sessionID string) {
	h.mirrorMu.Lock()
	defer h.mirrorMu.Unlock()

	sm, ok := h.mirrors[sessionID]
	if !ok {
		return
	}
	sm.refs--
	if sm.refs > 0 {
		return
	}
	delete(h.mirrors, sessionID)
	sm.mirror.Close()
	log.Info().Str("session", sessionID).Msg("stopped mirroring session")
}

// forward turns mirror events into session frames
func (h *Hub) forward(sessionID string, e presence.Event) {
	msg := &BroadcastMessage{SessionID: sessionID, Seq: e.Seq}
	switch e.Kind {
	case presence.EventSession:
		msg.Message = newMessage(MsgSessionUpdate, sessionUpdate{Session: e.Session, Diff: e.Diff})
	case presence.EventMove:
		msg.Message = newMessage(MsgMoveAppended, e.Move)
	default:
		return
	}
	h.enqueue(msg)
}

// MirrorCount is the number of sessions currently mirrored
func (h *Hub) MirrorCount() int {
	h.mirrorMu.Lock()
	defer h.mirrorMu.Unlock()
	return len(h.mirrors)
}

// SubscribeClass streams the active sessions of conn's class to conn
func (h *Hub) SubscribeClass(ctx context.Context, conn *Connection) (store.Unsubscribe, error) {
	return h.sessions.SubscribeActiveSessions(ctx, conn.ClassID, func(sessions []*model.Session) {
		h.SendTo(conn, MsgActiveSessions, sessions)
	})
}

// SendTo queues a frame for one connection
func (h *Hub) SendTo(conn *Connection, msgType MessageType, payload interface{}) {
	h.enqueue(&BroadcastMessage{ToConn: conn, Message: newMessage(msgType, payload)})
}

// BroadcastToSession sends a message to every connection of a session (implements service.Broadcaster)
func (h *Hub) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	h.enqueue(&BroadcastMessage{
		SessionID: sessionID,
		Message:   newMessage(MessageType(msgType), payload),
	})
}

// BroadcastToPlayer sends a message to a specific player (implements service.Broadcaster)
func (h *Hub) BroadcastToPlayer(sessionID, playerID string, msgType string, payload interface{}) {
	h.enqueue(&BroadcastMessage{
		SessionID: sessionID,
		ToPlayer:  playerID,
		Message:   newMessage(MessageType(msgType), payload),
	})
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Close stops the hub and every mirror
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mirrorMu.Lock()
		for id, sm := range h.mirrors {
			sm.mirror.Close()
			delete(h.mirrors, id)
		}
		h.mirrorMu.Unlock()
	})
}

func newMessage(msgType MessageType, payload interface{}) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(msgType)).Msg("failed to encode ws payload")
		data = json.RawMessage(`null`)
	}
	return &Message{Type: msgType, Payload: data}
}

func (c *Connection) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		// Drop message if buffer full
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
