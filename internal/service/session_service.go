package service

import (
	"classplay/internal/model"
	"classplay/internal/repository"
	"classplay/internal/store"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateSessionParams describes a new session
type CreateSessionParams struct {
	ClassID     string         `json:"classId" validate:"required,excludes=/"`
	CreatorID   string         `json:"creatorId" validate:"required,excludes=/"`
	CreatorName string         `json:"creatorName" validate:"required"`
	GameType    model.GameType `json:"gameType" validate:"required,gametype"`
	MaxPlayers  int            `json:"maxPlayers" validate:"min=1"`
}

type joinParams struct {
	PlayerID   string `json:"playerId" validate:"required,excludes=/"`
	PlayerName string `json:"playerName" validate:"required"`
}

// SessionService handles session lifecycle operations
type SessionService struct {
	store       store.Store
	archive     repository.SessionArchive
	rnd         Rand
	broadcaster Broadcaster
	now         func() time.Time
}

// NewSessionService creates a new session service. archive may be nil.
func NewSessionService(st store.Store, archive repository.SessionArchive) *SessionService {
	return &SessionService{
		store:   st,
		archive: archive,
		rnd:     newRand(),
		now:     time.Now,
	}
}

// SetBroadcaster sets the WebSocket broadcaster
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetRand replaces the generator used for the opening turn
func (s *SessionService) SetRand(r Rand) {
	s.rnd = r
}

// CreateSession writes a waiting session with the creator as player 1
func (s *SessionService) CreateSession(ctx context.Context, p CreateSessionParams) (string, error) {
	if err := validateStruct(p); err != nil {
		return "", err
	}

	id := uuid.New().String()
	creator := &model.Player{ID: p.CreatorID, Name: p.CreatorName, Number: model.NumberOf(1)}
	value := map[string]any{
		"id":         id,
		"classId":    p.ClassID,
		"creatorId":  p.CreatorID,
		"gameType":   p.GameType,
		"status":     model.SessionWaiting,
		"maxPlayers": p.MaxPlayers,
		"players":    map[string]any{creator.ID: playerValue(creator)},
		"nextNumber": 2,
		"seats":      1,
		"createdAt":  store.ServerTimestamp,
	}
	if err := s.store.Set(ctx, sessionPath(id), value); err != nil {
		return "", opError("createSession", err)
	}

	log.Info().Str("session", id).Str("class", p.ClassID).Str("game", string(p.GameType)).Msg("session created")
	return id, nil
}

// GetSession reads the session with its players, turn and moves
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return loadSession(ctx, s.store, "getSession", sessionID)
}

// JoinSession adds a player and hands out the next number.
// Joining again returns the existing record unchanged.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, playerID, playerName string) (*model.Player, error) {
	const op = "joinSession"
	if err := validateStruct(joinParams{PlayerID: playerID, PlayerName: playerName}); err != nil {
		return nil, err
	}

	sess, err := loadSession(ctx, s.store, op, sessionID)
	if err != nil {
		return nil, err
	}
	if existing, ok := sess.Players[playerID]; ok && existing != nil {
		if existing.ID == "" {
			existing.ID = playerID
		}
		return existing, nil
	}
	if sess.Status == model.SessionFinished {
		return nil, ErrSessionFinished
	}
	if sess.IsFull() {
		return nil, ErrSessionFull
	}
	if err := s.claimSeat(ctx, sess); err != nil {
		if errors.Is(err, ErrSessionFull) {
			return nil, err
		}
		return nil, opError(op, err)
	}

	number, err := s.nextNumber(ctx, sess)
	if err != nil {
		s.releaseSeat(ctx, sessionID)
		return nil, opError(op, err)
	}

	player := &model.Player{ID: playerID, Name: playerName, Number: model.NumberOf(number)}
	if err := s.store.Set(ctx, playerPath(sessionID, playerID), playerValue(player)); err != nil {
		s.releaseSeat(ctx, sessionID)
		return nil, opError(op, err)
	}
	if stored, err := s.store.Get(ctx, playerPath(sessionID, playerID)); err == nil {
		var rec model.Player
		if stored.Decode(&rec) == nil {
			player.JoinedAt = rec.JoinedAt
		}
	}

	log.Info().Str("session", sessionID).Str("player", playerID).Int("number", number).Msg("player joined")
	s.broadcast(sessionID, EventPlayerJoined, player)
	return player, nil
}

// claimSeat reserves room for one more player on the session seat
// counter. The player record is only written once a seat is held, so
// concurrent joins cannot overfill the session.
func (s *SessionService) claimSeat(ctx context.Context, sess *model.Session) error {
	seats, err := s.store.Increment(ctx, seatsPath(sess.ID), 1)
	if err != nil {
		return err
	}
	// records without a counter start from the players already present
	if held := int64(len(sess.Players)); sess.Seats == 0 && seats <= held {
		seats, err = s.store.Increment(ctx, seatsPath(sess.ID), held-seats+1)
		if err != nil {
			return err
		}
	}
	if seats > int64(sess.MaxPlayers) {
		s.releaseSeat(ctx, sess.ID)
		return ErrSessionFull
	}
	return nil
}

func (s *SessionService) releaseSeat(ctx context.Context, sessionID string) {
	if _, err := s.store.Increment(ctx, seatsPath(sessionID), -1); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("failed to release seat")
	}
}

// nextNumber draws a handle from the session counter. Counters missing
// from older records are bumped past every number already handed out.
func (s *SessionService) nextNumber(ctx context.Context, sess *model.Session) (int, error) {
	next, err := s.store.Increment(ctx, nextNumberPath(sess.ID), 1)
	if err != nil {
		return 0, err
	}
	number := int(next) - 1

	highest := 0
	if nums := sess.ValidNumbers(); len(nums) > 0 {
		highest = nums[len(nums)-1]
	}
	if number <= highest {
		next, err = s.store.Increment(ctx, nextNumberPath(sess.ID), int64(highest-number+1))
		if err != nil {
			return 0, err
		}
		number = int(next) - 1
	}
	return number, nil
}

// LeaveSession removes a player. The session finishes when nobody is left.
func (s *SessionService) LeaveSession(ctx context.Context, sessionID, playerID string) error {
	const op = "leaveSession"
	sess, err := loadSession(ctx, s.store, op, sessionID)
	if err != nil {
		return err
	}
	if p, ok := sess.Players[playerID]; !ok || p == nil {
		return ErrPlayerNotInSession
	}

	if err := s.store.Remove(ctx, playerPath(sessionID, playerID)); err != nil {
		return opError(op, err)
	}
	s.releaseSeat(ctx, sessionID)
	log.Info().Str("session", sessionID).Str("player", playerID).Msg("player left")
	s.broadcast(sessionID, EventPlayerLeft, map[string]string{"playerId": playerID})

	if len(sess.Players) == 1 && sess.Status != model.SessionFinished {
		return s.finish(ctx, op, sessionID)
	}
	return nil
}

// StartSession moves a waiting session to active. Question games get
// their opening turn here.
func (s *SessionService) StartSession(ctx context.Context, sessionID string) error {
	const op = "startSession"
	sess, err := loadSession(ctx, s.store, op, sessionID)
	if err != nil {
		return err
	}
	if err := checkTransition(sess.Status, model.SessionActive); err != nil {
		return err
	}

	fields := map[string]any{
		"status":    model.SessionActive,
		"startedAt": store.ServerTimestamp,
	}
	var turn *model.Turn
	if sess.GameType.HasTurns() {
		turn, err = SelectTurn(sess.ValidNumbers(), nil, s.rnd)
		if err != nil {
			return err
		}
		fields["currentTurn"] = turn
	}
	if err := s.store.Update(ctx, sessionPath(sessionID), fields); err != nil {
		return opError(op, err)
	}

	log.Info().Str("session", sessionID).Msg("session started")
	s.broadcast(sessionID, EventSessionStarted, map[string]any{"sessionId": sessionID, "turn": turn})
	if turn != nil {
		notifyTurn(s.broadcaster, sess, turn)
	}
	return nil
}

// FinishSession ends the session and archives it when an archive is configured
func (s *SessionService) FinishSession(ctx context.Context, sessionID string) error {
	const op = "finishSession"
	sess, err := loadSession(ctx, s.store, op, sessionID)
	if err != nil {
		return err
	}
	if err := checkTransition(sess.Status, model.SessionFinished); err != nil {
		return err
	}
	return s.finish(ctx, op, sessionID)
}

func (s *SessionService) finish(ctx context.Context, op, sessionID string) error {
	fields := map[string]any{
		"status":     model.SessionFinished,
		"finishedAt": store.ServerTimestamp,
	}
	if err := s.store.Update(ctx, sessionPath(sessionID), fields); err != nil {
		return opError(op, err)
	}
	log.Info().Str("session", sessionID).Msg("session finished")
	s.broadcast(sessionID, EventSessionFinished, map[string]string{"sessionId": sessionID})

	if s.archive == nil {
		return nil
	}
	sess, err := loadSession(ctx, s.store, op, sessionID)
	if err != nil {
		return err
	}
	if err := s.archive.Save(ctx, model.Archive(sess, s.now())); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("failed to archive session")
		return opError(op, err)
	}
	return nil
}

// SubscribeActiveSessions reports the unfinished sessions of a class,
// newest first, on attach and after every change.
func (s *SessionService) SubscribeActiveSessions(ctx context.Context, classID string, onUpdate func([]*model.Session)) (store.Unsubscribe, error) {
	unsub, err := s.store.Subscribe(ctx, sessionsRoot, func(snap *store.Snapshot) {
		var all map[string]*model.Session
		if err := snap.Decode(&all); err != nil {
			log.Error().Err(err).Str("class", classID).Msg("failed to decode sessions")
			return
		}
		onUpdate(activeSessions(all, classID))
	})
	if err != nil {
		return nil, opError("subscribeActiveSessions", err)
	}
	return unsub, nil
}

// SubscribeSession reports the session record on attach and after every
// change. A removed session is reported as nil. Moves are left out, see
// MoveLog.SubscribeMoves.
func (s *SessionService) SubscribeSession(ctx context.Context, sessionID string, onChange func(*model.Session)) (store.Unsubscribe, error) {
	if !validID(sessionID) {
		return nil, ErrSessionNotFound
	}
	unsub, err := s.store.Subscribe(ctx, sessionPath(sessionID), func(snap *store.Snapshot) {
		if !snap.Exists() {
			onChange(nil)
			return
		}
		var sess model.Session
		if err := snap.Decode(&sess); err != nil {
			log.Error().Err(err).Str("session", sessionID).Msg("failed to decode session")
			return
		}
		fillIDs(&sess, sessionID)
		sess.Moves = nil
		onChange(&sess)
	})
	if err != nil {
		return nil, opError("subscribeSession", err)
	}
	return unsub, nil
}

// GetArchived reads one finished session with its moves from the archive
func (s *SessionService) GetArchived(ctx context.Context, sessionID string) (*model.ArchivedSession, error) {
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}
	if !validID(sessionID) {
		return nil, ErrSessionNotFound
	}
	archived, err := s.archive.GetByID(ctx, sessionID)
	if err != nil {
		return nil, opError("getArchived", err)
	}
	if archived == nil {
		return nil, ErrSessionNotFound
	}
	return archived, nil
}

// ListArchived returns finished sessions of a class from the archive
func (s *SessionService) ListArchived(ctx context.Context, classID string, limit int64) ([]*model.ArchivedSession, error) {
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}
	sessions, err := s.archive.ListByClass(ctx, classID, limit)
	if err != nil {
		return nil, opError("listArchived", err)
	}
	return sessions, nil
}

func (s *SessionService) broadcast(sessionID, msgType string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(sessionID, msgType, payload)
	}
}

func activeSessions(all map[string]*model.Session, classID string) []*model.Session {
	out := make([]*model.Session, 0)
	for id, sess := range all {
		if sess == nil {
			continue
		}
		if sess.ID == "" {
			sess.ID = id
		}
		if sess.ClassID != classID || sess.Status == model.SessionFinished {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func checkTransition(from, to model.SessionStatus) error {
	if from.CanTransition(to) {
		return nil
	}
	if from == model.SessionFinished {
		return ErrSessionFinished
	}
	return ErrInvalidTransition
}

func loadSession(ctx context.Context, st store.Store, op, sessionID string) (*model.Session, error) {
	if !validID(sessionID) {
		return nil, ErrSessionNotFound
	}
	snap, err := st.Get(ctx, sessionPath(sessionID))
	if err != nil {
		return nil, opError(op, err)
	}
	if !snap.Exists() {
		return nil, ErrSessionNotFound
	}
	var sess model.Session
	if err := snap.Decode(&sess); err != nil {
		return nil, opError(op, err)
	}
	fillIDs(&sess, sessionID)
	return &sess, nil
}

// fillIDs restores ids that only live in the record keys
func fillIDs(sess *model.Session, sessionID string) {
	if sess.ID == "" {
		sess.ID = sessionID
	}
	for id, p := range sess.Players {
		if p != nil && p.ID == "" {
			p.ID = id
		}
	}
}

func playerValue(p *model.Player) map[string]any {
	return map[string]any{
		"id":       p.ID,
		"name":     p.Name,
		"number":   p.Number,
		"joinedAt": store.ServerTimestamp,
	}
}

// notifyTurn tells the asker and target that the turn is theirs
func notifyTurn(b Broadcaster, sess *model.Session, turn *model.Turn) {
	if b == nil || turn == nil {
		return
	}
	for _, n := range []int{turn.Asker, turn.Target} {
		if p := sess.PlayerByNumber(n); p != nil {
			b.BroadcastToPlayer(sess.ID, p.ID, EventYourTurn, turn)
		}
	}
}
