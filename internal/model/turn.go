package model

// Turn is the active asker/target assignment of a question-style game.
// It is always written as a whole; the nullable fields start empty.
type Turn struct {
	Asker    int     `json:"asker"`
	Target   int     `json:"target"`
	Choice   *string `json:"choice"`
	Question *string `json:"question"`
	Answer   *string `json:"answer"`
}

// NewTurn returns a fresh turn with every nullable field cleared
func NewTurn(asker, target int) *Turn {
	return &Turn{Asker: asker, Target: target}
}

// Ref returns the asker/target pair of the turn
func (t *Turn) Ref() *TurnRef {
	if t == nil {
		return nil
	}
	return &TurnRef{Asker: t.Asker, Target: t.Target}
}

// TurnField names the in-turn fields players fill before the turn advances
type TurnField string

const (
	TurnChoice   TurnField = "choice"
	TurnQuestion TurnField = "question"
	TurnAnswer   TurnField = "answer"
)

// Valid reports whether f is a writable turn field
func (f TurnField) Valid() bool {
	return f == TurnChoice || f == TurnQuestion || f == TurnAnswer
}

// TurnRef records which pair a move concluded
type TurnRef struct {
	Asker  int `json:"asker" bson:"asker"`
	Target int `json:"target" bson:"target"`
}
