package model

// Player is a participant of a session.
// Number is the anonymized handle used by every game-facing record.
type Player struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Number   PlayerNumber `json:"number"`
	JoinedAt int64        `json:"joinedAt,omitempty"`
}
