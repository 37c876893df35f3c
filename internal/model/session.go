package model

import "sort"

// SessionStatus is the lifecycle state of a game session
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

var statusRank = map[SessionStatus]int{
	SessionWaiting:  0,
	SessionActive:   1,
	SessionFinished: 2,
}

// Valid reports whether s is one of the known states
func (s SessionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from s to next goes forward.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// GameType is the closed set of game variants
type GameType string

const (
	GameQuestion GameType = "question" // asker/target turns
	GameQuiz     GameType = "quiz"
	GameMafia    GameType = "mafia" // social deduction
)

// GameTypes lists every supported variant
var GameTypes = []GameType{GameQuestion, GameQuiz, GameMafia}

// Valid reports whether g is a known variant
func (g GameType) Valid() bool {
	for _, t := range GameTypes {
		if g == t {
			return true
		}
	}
	return false
}

// HasTurns reports whether the variant keeps a currentTurn record
func (g GameType) HasTurns() bool {
	return g == GameQuestion
}

// Session is one game instance bound to a class.
// Timestamps are unix milliseconds assigned by the store.
type Session struct {
	ID          string             `json:"id"`
	ClassID     string             `json:"classId"`
	CreatorID   string             `json:"creatorId"`
	GameType    GameType           `json:"gameType"`
	Status      SessionStatus      `json:"status"`
	MaxPlayers  int                `json:"maxPlayers"`
	Players     map[string]*Player `json:"players,omitempty"`
	CurrentTurn *Turn              `json:"currentTurn,omitempty"`
	Moves       map[string]*Move   `json:"moves,omitempty"`
	NextNumber  int                `json:"nextNumber,omitempty"` // next handle to hand out
	Seats       int                `json:"seats,omitempty"`      // claimed seats, at least len(Players)
	CreatedAt   int64              `json:"createdAt"`
	StartedAt   int64              `json:"startedAt,omitempty"`
	FinishedAt  int64              `json:"finishedAt,omitempty"`
}

// ValidNumbers returns the assigned player numbers in ascending order.
func (s *Session) ValidNumbers() []int {
	nums := make([]int, 0, len(s.Players))
	for _, p := range s.Players {
		if p == nil {
			continue
		}
		if n, ok := p.Number.Get(); ok {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums
}

// PlayerByNumber finds the player holding handle n
func (s *Session) PlayerByNumber(n int) *Player {
	for _, p := range s.Players {
		if p == nil {
			continue
		}
		if v, ok := p.Number.Get(); ok && v == n {
			return p
		}
	}
	return nil
}

// IsFull reports whether the session reached capacity
func (s *Session) IsFull() bool {
	return len(s.Players) >= s.MaxPlayers
}

// OrderedMoves returns the moves in store order (push keys sort lexically).
func (s *Session) OrderedMoves() []*Move {
	keys := make([]string, 0, len(s.Moves))
	for k := range s.Moves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Move, 0, len(keys))
	for _, k := range keys {
		m := s.Moves[k]
		if m == nil {
			continue
		}
		if m.ID == "" {
			m.ID = k
		}
		out = append(out, m)
	}
	return out
}
