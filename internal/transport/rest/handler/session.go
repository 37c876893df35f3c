package handler

import (
	"classplay/internal/model"
	"classplay/internal/service"
	"classplay/internal/transport/rest/middleware"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// SessionHandler handles session lifecycle endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// CreateSessionRequest is the request body for creating a session
type CreateSessionRequest struct {
	GameType   model.GameType `json:"gameType"`
	MaxPlayers int            `json:"maxPlayers"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetParticipant(r.Context())

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.sessionSvc.CreateSession(r.Context(), service.CreateSessionParams{
		ClassID:     p.ClassID,
		CreatorID:   p.ParticipantID,
		CreatorName: p.Name,
		GameType:    req.GameType,
		MaxPlayers:  req.MaxPlayers,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": id})
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Join handles POST /v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.load(w, r); !ok {
		return
	}
	p := middleware.GetParticipant(r.Context())

	player, err := h.sessionSvc.JoinSession(r.Context(), mux.Vars(r)["id"], p.ParticipantID, p.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

// Leave handles POST /v1/sessions/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetParticipant(r.Context())
	if err := h.sessionSvc.LeaveSession(r.Context(), mux.Vars(r)["id"], p.ParticipantID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadAsMember(w, r); !ok {
		return
	}
	if err := h.sessionSvc.StartSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Finish handles POST /v1/sessions/{id}/finish
func (h *SessionHandler) Finish(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadAsMember(w, r); !ok {
		return
	}
	if err := h.sessionSvc.FinishSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /v1/classes/{classId}/history
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	classID := mux.Vars(r)["classId"]
	if p := middleware.GetParticipant(r.Context()); p.ClassID != classID {
		writeError(w, http.StatusForbidden, "not a member of this class")
		return
	}

	limit := int64(20)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.sessionSvc.ListArchived(r.Context(), classID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*model.ArchivedSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Archived handles GET /v1/classes/{classId}/history/{id}
func (h *SessionHandler) Archived(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if p := middleware.GetParticipant(r.Context()); p.ClassID != vars["classId"] {
		writeError(w, http.StatusForbidden, "not a member of this class")
		return
	}

	archived, err := h.sessionSvc.GetArchived(r.Context(), vars["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if archived.ClassID != vars["classId"] {
		writeServiceError(w, service.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

// load fetches the session and checks it belongs to the caller's class
func (h *SessionHandler) load(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	return loadClassSession(w, r, h.sessionSvc)
}

// loadAsMember is load restricted to players of the session. Every member
// may start or finish it.
func (h *SessionHandler) loadAsMember(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	sess, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	if p, ok := sess.Players[middleware.GetParticipant(r.Context()).ParticipantID]; !ok || p == nil {
		writeServiceError(w, service.ErrPlayerNotInSession)
		return nil, false
	}
	return sess, true
}

func loadClassSession(w http.ResponseWriter, r *http.Request, svc *service.SessionService) (*model.Session, bool) {
	sess, err := svc.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if sess.ClassID != middleware.GetParticipant(r.Context()).ClassID {
		writeError(w, http.StatusForbidden, "not a member of this class")
		return nil, false
	}
	return sess, true
}
