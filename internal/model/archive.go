package model

import "time"

// ArchivedPlayer is the stored form of a player in a finished session
type ArchivedPlayer struct {
	ID     string `json:"id" bson:"id"`
	Name   string `json:"name" bson:"name"`
	Number int    `json:"number" bson:"number"`
}

// ArchivedSession is a finished session frozen in the document database
type ArchivedSession struct {
	ID         string           `json:"id" bson:"_id"`
	ClassID    string           `json:"classId" bson:"classId"`
	CreatorID  string           `json:"creatorId" bson:"creatorId"`
	GameType   GameType         `json:"gameType" bson:"gameType"`
	MaxPlayers int              `json:"maxPlayers" bson:"maxPlayers"`
	Players    []ArchivedPlayer `json:"players" bson:"players"`
	Moves      []*Move          `json:"moves" bson:"moves"`
	CreatedAt  time.Time        `json:"createdAt" bson:"createdAt"`
	StartedAt  *time.Time       `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	FinishedAt time.Time        `json:"finishedAt" bson:"finishedAt"`
	ArchivedAt time.Time        `json:"archivedAt" bson:"archivedAt"`
}

// Archive freezes s and its ordered moves
func Archive(s *Session, now time.Time) *ArchivedSession {
	a := &ArchivedSession{
		ID:         s.ID,
		ClassID:    s.ClassID,
		CreatorID:  s.CreatorID,
		GameType:   s.GameType,
		MaxPlayers: s.MaxPlayers,
		Players:    make([]ArchivedPlayer, 0, len(s.Players)),
		Moves:      s.OrderedMoves(),
		CreatedAt:  time.UnixMilli(s.CreatedAt).UTC(),
		FinishedAt: time.UnixMilli(s.FinishedAt).UTC(),
		ArchivedAt: now.UTC(),
	}
	if s.StartedAt > 0 {
		t := time.UnixMilli(s.StartedAt).UTC()
		a.StartedAt = &t
	}
	if s.FinishedAt == 0 {
		a.FinishedAt = now.UTC()
	}
	for _, n := range s.ValidNumbers() {
		p := s.PlayerByNumber(n)
		a.Players = append(a.Players, ArchivedPlayer{ID: p.ID, Name: p.Name, Number: n})
	}
	return a
}
