package service

import (
	"classplay/internal/model"
	"classplay/internal/store"
	"context"

	"github.com/rs/zerolog/log"
)

// TurnResult is the outcome of a successful advance
type TurnResult struct {
	Turn   *model.Turn `json:"turn"`
	MoveID string      `json:"moveId"`
	Move   *model.Move `json:"move"`
}

// TurnOption configures a TurnCoordinator
type TurnOption func(*TurnCoordinator)

// WithRand sets the randomness used for turn selection
func WithRand(r Rand) TurnOption {
	return func(c *TurnCoordinator) {
		c.rnd = r
	}
}

// TurnCoordinator picks the next asker/target pair whenever a player acts.
// Concurrent advances on one session are last-write-wins on currentTurn.
type TurnCoordinator struct {
	store       store.Store
	moves       *MoveLog
	rnd         Rand
	broadcaster Broadcaster
}

// NewTurnCoordinator creates a coordinator writing moves through moves
func NewTurnCoordinator(st store.Store, moves *MoveLog, opts ...TurnOption) *TurnCoordinator {
	c := &TurnCoordinator{
		store: st,
		moves: moves,
		rnd:   newRand(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBroadcaster sets the WebSocket broadcaster
func (c *TurnCoordinator) SetBroadcaster(b Broadcaster) {
	c.broadcaster = b
}

// AdvanceTurn concludes the current turn with a move by submitter and
// publishes a freshly selected turn. The new turn is written before the
// move; if only the move fails a *PartialWriteError is returned.
func (c *TurnCoordinator) AdvanceTurn(ctx context.Context, sessionID string, submitter *model.Player, moveType model.MoveType, description string, payload map[string]any) (*TurnResult, error) {
	const op = "advanceTurn"
	if submitter == nil {
		return nil, NewValidationError(errInvalidInput, FieldError{Field: "player", Error: "this field is required"})
	}
	if err := validateStruct(moveInput{PlayerID: submitter.ID, Type: moveType}); err != nil {
		return nil, err
	}

	sess, err := loadSession(ctx, c.store, op, sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.Players) == 0 {
		return nil, ErrSessionNotFound
	}
	if sess.Status == model.SessionFinished {
		return nil, ErrSessionFinished
	}

	valid := sess.ValidNumbers()
	if len(valid) < 2 {
		return nil, ErrInsufficientPlayers
	}
	recent := RecentTurns(sess.CurrentTurn, sess.OrderedMoves(), RecentWindowSize(len(valid)))
	turn, err := SelectTurn(valid, recent, c.rnd)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, currentTurnPath(sessionID), turn); err != nil {
		return nil, opError(op, err)
	}

	move := &model.Move{
		PlayerID:    submitter.ID,
		PlayerName:  submitter.Name,
		Type:        moveType,
		Description: description,
		Payload:     payload,
		Turn:        sess.CurrentTurn.Ref(),
	}
	number := submitter.Number
	if p, ok := sess.Players[submitter.ID]; ok && p != nil {
		number = p.Number
		if move.PlayerName == "" {
			move.PlayerName = p.Name
		}
	}
	if n, ok := number.Get(); ok {
		move.PlayerNumber = n
	}

	moveID, err := c.moves.AppendMove(ctx, sessionID, move)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Str("player", submitter.ID).Msg("turn published without its move")
		return nil, &PartialWriteError{SessionID: sessionID, Turn: turn, Move: move, Err: err}
	}

	log.Debug().Str("session", sessionID).Int("asker", turn.Asker).Int("target", turn.Target).Msg("turn advanced")
	if c.broadcaster != nil {
		c.broadcaster.BroadcastToSession(sessionID, EventTurnAdvanced, turn)
		notifyTurn(c.broadcaster, sess, turn)
	}
	return &TurnResult{Turn: turn, MoveID: moveID, Move: move}, nil
}

// RetryMove appends the move of a partially applied advance
func (c *TurnCoordinator) RetryMove(ctx context.Context, perr *PartialWriteError) (string, error) {
	if perr == nil || perr.Move == nil {
		return "", NewValidationError(errInvalidInput, FieldError{Field: "move", Error: "this field is required"})
	}
	return c.moves.AppendMove(ctx, perr.SessionID, perr.Move)
}

type turnFieldInput struct {
	Field model.TurnField `json:"field" validate:"required,turnfield"`
	Value string          `json:"value" validate:"required"`
}

// SetTurnField records the choice, question or answer of the current turn
func (c *TurnCoordinator) SetTurnField(ctx context.Context, sessionID string, field model.TurnField, value string) error {
	const op = "setTurnField"
	if err := validateStruct(turnFieldInput{Field: field, Value: value}); err != nil {
		return err
	}
	sess, err := loadSession(ctx, c.store, op, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == model.SessionFinished {
		return ErrSessionFinished
	}
	if sess.CurrentTurn == nil {
		return ErrNoActiveTurn
	}
	if err := c.store.Update(ctx, currentTurnPath(sessionID), map[string]any{string(field): value}); err != nil {
		return opError(op, err)
	}
	return nil
}
