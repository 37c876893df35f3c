package service

import (
	"classplay/internal/model"
	"classplay/internal/store"
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// DefaultMoveBacklog bounds the burst a new move subscriber receives
const DefaultMoveBacklog = 50

// MoveLog is the append-only move history of every session
type MoveLog struct {
	store   store.Store
	backlog int
}

// NewMoveLog creates a move log. backlog <= 0 uses DefaultMoveBacklog.
func NewMoveLog(st store.Store, backlog int) *MoveLog {
	if backlog <= 0 {
		backlog = DefaultMoveBacklog
	}
	return &MoveLog{store: st, backlog: backlog}
}

// AppendMove pushes move under the session and stamps it with the push key.
func (l *MoveLog) AppendMove(ctx context.Context, sessionID string, move *model.Move) (string, error) {
	const op = "appendMove"
	if move == nil {
		return "", NewValidationError(errInvalidInput, FieldError{Field: "move", Error: "this field is required"})
	}
	if err := validateStruct(moveInput{PlayerID: move.PlayerID, Type: move.Type}); err != nil {
		return "", err
	}

	if !validID(sessionID) {
		return "", ErrSessionNotFound
	}
	snap, err := l.store.Get(ctx, statusPath(sessionID))
	if err != nil {
		return "", opError(op, err)
	}
	if !snap.Exists() {
		return "", ErrSessionNotFound
	}

	key, err := l.store.Push(ctx, movesPath(sessionID), moveValue(move))
	if err != nil {
		return "", opError(op, err)
	}
	move.ID = key
	return key, nil
}

// ListMoves returns every move of the session in push order
func (l *MoveLog) ListMoves(ctx context.Context, sessionID string) ([]*model.Move, error) {
	if !validID(sessionID) {
		return nil, ErrSessionNotFound
	}
	snap, err := l.store.Get(ctx, movesPath(sessionID))
	if err != nil {
		return nil, opError("listMoves", err)
	}
	var all map[string]*model.Move
	if err := snap.Decode(&all); err != nil {
		return nil, opError("listMoves", err)
	}
	return orderMoves(all), nil
}

// SubscribeMoves calls onAppend once per move in push order. The newest
// backlog moves already stored are delivered first as a burst.
func (l *MoveLog) SubscribeMoves(ctx context.Context, sessionID string, onAppend func(*model.Move)) (store.Unsubscribe, error) {
	if !validID(sessionID) {
		return nil, ErrSessionNotFound
	}

	// Store callbacks are serialized per subscription, so seen needs no lock.
	seen := make(map[string]struct{})
	attached := false

	unsub, err := l.store.Subscribe(ctx, movesPath(sessionID), func(snap *store.Snapshot) {
		var all map[string]*model.Move
		if err := snap.Decode(&all); err != nil {
			log.Error().Err(err).Str("session", sessionID).Msg("failed to decode moves")
			return
		}
		moves := orderMoves(all)
		if !attached {
			attached = true
			if skip := len(moves) - l.backlog; skip > 0 {
				for _, m := range moves[:skip] {
					seen[m.ID] = struct{}{}
				}
			}
		}
		for _, m := range moves {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			onAppend(m)
		}
	})
	if err != nil {
		return nil, opError("subscribeMoves", err)
	}
	return unsub, nil
}

type moveInput struct {
	PlayerID string         `json:"playerId" validate:"required"`
	Type     model.MoveType `json:"type" validate:"required,movetype"`
}

func moveValue(m *model.Move) map[string]any {
	v := map[string]any{
		"playerId":     m.PlayerID,
		"playerName":   m.PlayerName,
		"playerNumber": m.PlayerNumber,
		"type":         m.Type,
		"description":  m.Description,
		"createdAt":    store.ServerTimestamp,
	}
	if len(m.Payload) > 0 {
		v["payload"] = m.Payload
	}
	if m.Turn != nil {
		v["turn"] = m.Turn
	}
	return v
}

func orderMoves(all map[string]*model.Move) []*model.Move {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*model.Move, 0, len(keys))
	for _, k := range keys {
		m := all[k]
		if m == nil {
			continue
		}
		m.ID = k
		out = append(out, m)
	}
	return out
}
