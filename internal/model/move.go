package model

// MoveType identifies what a player did
type MoveType string

const (
	MoveAnswer     MoveType = "answer" // concludes a turn
	MoveVote       MoveType = "vote"
	MoveRoleAction MoveType = "role_action"
	MoveQuestion   MoveType = "question"
	MoveChoice     MoveType = "choice"
)

// Valid reports whether t is a known move type
func (t MoveType) Valid() bool {
	switch t {
	case MoveAnswer, MoveVote, MoveRoleAction, MoveQuestion, MoveChoice:
		return true
	}
	return false
}

// Move is an immutable history entry. ID is the store push key.
type Move struct {
	ID           string         `json:"id,omitempty" bson:"id"`
	PlayerID     string         `json:"playerId" bson:"playerId"`
	PlayerName   string         `json:"playerName" bson:"playerName"`
	PlayerNumber int            `json:"playerNumber" bson:"playerNumber"`
	Type         MoveType       `json:"type" bson:"type"`
	Description  string         `json:"description" bson:"description"`
	Payload      map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	Turn         *TurnRef       `json:"turn,omitempty" bson:"turn,omitempty"`
	CreatedAt    int64          `json:"createdAt" bson:"createdAt"`
}

// Clone returns a copy that shares nothing mutable with m
func (m *Move) Clone() *Move {
	if m == nil {
		return nil
	}
	c := *m
	if m.Payload != nil {
		c.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			c.Payload[k] = v
		}
	}
	if m.Turn != nil {
		t := *m.Turn
		c.Turn = &t
	}
	return &c
}
