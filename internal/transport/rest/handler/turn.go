package handler

import (
	"classplay/internal/model"
	"classplay/internal/service"
	"classplay/internal/transport/rest/middleware"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// TurnHandler handles turn and move endpoints
type TurnHandler struct {
	authSvc    *service.AuthService
	sessionSvc *service.SessionService
	turns      *service.TurnCoordinator
	moves      *service.MoveLog
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(authSvc *service.AuthService, sessionSvc *service.SessionService, turns *service.TurnCoordinator, moves *service.MoveLog) *TurnHandler {
	return &TurnHandler{
		authSvc:    authSvc,
		sessionSvc: sessionSvc,
		turns:      turns,
		moves:      moves,
	}
}

// MoveRequest is the request body for submitting a move
type MoveRequest struct {
	Type        model.MoveType `json:"type"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// RetryRequest carries the retry token of a 502 advance response
type RetryRequest struct {
	RetryToken string `json:"retryToken"`
}

// TurnFieldRequest is the request body for filling the current turn
type TurnFieldRequest struct {
	Field model.TurnField `json:"field"`
	Value string          `json:"value"`
}

// Advance handles POST /v1/sessions/{id}/turns
func (h *TurnHandler) Advance(w http.ResponseWriter, r *http.Request) {
	player, ok := h.member(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.turns.AdvanceTurn(r.Context(), mux.Vars(r)["id"], player, req.Type, req.Description, req.Payload)
	var perr *service.PartialWriteError
	if errors.As(err, &perr) {
		token, terr := h.authSvc.IssueRetryToken(perr)
		if terr != nil {
			writeServiceError(w, err)
			return
		}
		writePartialWrite(w, perr, token)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RetryMove handles POST /v1/sessions/{id}/turns/retry. Only the move
// signed into the retry token of a 502 advance response is appended.
func (h *TurnHandler) RetryMove(w http.ResponseWriter, r *http.Request) {
	player, ok := h.member(w, r)
	if !ok {
		return
	}
	var req RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := mux.Vars(r)["id"]
	move, err := h.authSvc.ValidateRetryToken(req.RetryToken, sessionID, player.ID)
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid or expired retry token")
		return
	}
	move.ID = ""
	move.PlayerID = player.ID
	move.PlayerName = player.Name
	if n, ok := player.Number.Get(); ok {
		move.PlayerNumber = n
	}

	id, err := h.turns.RetryMove(r.Context(), &service.PartialWriteError{SessionID: sessionID, Move: move})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"moveId": id})
}

// SetField handles PATCH /v1/sessions/{id}/turn
func (h *TurnHandler) SetField(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.member(w, r); !ok {
		return
	}
	var req TurnFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.turns.SetTurnField(r.Context(), mux.Vars(r)["id"], req.Field, req.Value); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppendMove handles POST /v1/sessions/{id}/moves for moves that do not
// conclude a turn
func (h *TurnHandler) AppendMove(w http.ResponseWriter, r *http.Request) {
	player, ok := h.member(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	move := &model.Move{
		PlayerID:    player.ID,
		PlayerName:  player.Name,
		Type:        req.Type,
		Description: req.Description,
		Payload:     req.Payload,
	}
	if n, ok := player.Number.Get(); ok {
		move.PlayerNumber = n
	}
	id, err := h.moves.AppendMove(r.Context(), mux.Vars(r)["id"], move)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"moveId": id})
}

// ListMoves handles GET /v1/sessions/{id}/moves
func (h *TurnHandler) ListMoves(w http.ResponseWriter, r *http.Request) {
	if _, ok := loadClassSession(w, r, h.sessionSvc); !ok {
		return
	}
	moves, err := h.moves.ListMoves(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

// member returns the caller's player record in the session
func (h *TurnHandler) member(w http.ResponseWriter, r *http.Request) (*model.Player, bool) {
	sess, ok := loadClassSession(w, r, h.sessionSvc)
	if !ok {
		return nil, false
	}
	p := middleware.GetParticipant(r.Context())
	player, ok := sess.Players[p.ParticipantID]
	if !ok || player == nil {
		writeServiceError(w, service.ErrPlayerNotInSession)
		return nil, false
	}
	return player, true
}
