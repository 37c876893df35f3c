package ws

import (
	"classplay/internal/model"
	"classplay/internal/service"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Handler handles WebSocket connections
type Handler struct {
	hub        *Hub
	authSvc    *service.AuthService
	sessionSvc *service.SessionService
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. An empty origin list or
// "*" accepts every origin.
func NewHandler(hub *Hub, authSvc *service.AuthService, sessionSvc *service.SessionService, allowedOrigins []string) *Handler {
	return &Handler{
		hub:        hub,
		authSvc:    authSvc,
		sessionSvc: sessionSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*model.ParticipantClaims, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.authSvc.ValidateParticipantToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// SessionWS handles GET /v1/ws/sessions/{id}
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	sess, err := h.sessionSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session", sessionID).Msg("failed to load session for ws")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sess.ClassID != claims.ClassID {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &Connection{
		SessionID: sessionID,
		ClassID:   claims.ClassID,
		PlayerID:  claims.ParticipantID,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}

	// subscriptions outlive the upgrade request
	if err := h.hub.AttachSession(context.WithoutCancel(r.Context()), conn); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("failed to attach session mirror")
		wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		wsConn.Close()
		return
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, func() { h.hub.DetachSession(conn) })
}

// ClassWS handles GET /v1/ws/classes/{classId}
func (h *Handler) ClassWS(w http.ResponseWriter, r *http.Request) {
	classID := mux.Vars(r)["classId"]
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if claims.ClassID != classID {
		http.Error(w, "token not valid for this class", http.StatusForbidden)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &Connection{
		ClassID:  classID,
		PlayerID: claims.ParticipantID,
		Send:     make(chan []byte, 256),
		Hub:      h.hub,
	}

	unsub, err := h.hub.SubscribeClass(context.WithoutCancel(r.Context()), conn)
	if err != nil {
		log.Error().Err(err).Str("class", classID).Msg("failed to subscribe class")
		wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		wsConn.Close()
		return
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, func() {
		unsub()
		h.hub.Unregister(conn)
	})
}

func (h *Handler) readPump(wsConn *websocket.Conn, onClose func()) {
	defer func() {
		onClose()
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			break
		}
		// Clients act through the REST API; frames are only read for liveness.
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
