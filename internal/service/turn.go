package service

import (
	"classplay/internal/model"
	crand "crypto/rand"
	"math/rand/v2"
	"sort"
	"sync"
)

// Rand is the source of randomness for turn selection
type Rand interface {
	IntN(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// newRand returns a goroutine safe generator seeded from crypto/rand
func newRand() Rand {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return &lockedRand{r: rand.New(rand.NewChaCha8(seed))}
}

// RecentWindowSize is how many concluded turns count as recent
func RecentWindowSize(validCount int) int {
	return max(2, validCount/2)
}

// RecentTurns collects the most recent concluded turns, newest first.
// The turn being concluded comes first, followed by the turns recorded on
// answer moves. An answer move without a turn reference stands for its
// submitter having just been a target.
func RecentTurns(current *model.Turn, moves []*model.Move, window int) []model.TurnRef {
	if window <= 0 {
		return nil
	}
	out := make([]model.TurnRef, 0, window)
	if current != nil {
		out = append(out, *current.Ref())
	}

	answers := make([]*model.Move, 0, len(moves))
	for _, m := range moves {
		if m != nil && m.Type == model.MoveAnswer {
			answers = append(answers, m)
		}
	}
	sort.SliceStable(answers, func(i, j int) bool {
		if answers[i].CreatedAt != answers[j].CreatedAt {
			return answers[i].CreatedAt > answers[j].CreatedAt
		}
		return answers[i].ID > answers[j].ID
	})

	for _, m := range answers {
		if len(out) >= window {
			break
		}
		if m.Turn != nil {
			out = append(out, *m.Turn)
			continue
		}
		if m.PlayerNumber > 0 {
			out = append(out, model.TurnRef{Target: m.PlayerNumber})
		}
	}
	if len(out) > window {
		out = out[:window]
	}
	return out
}

// SelectTurn picks the next asker and target among valid numbers, avoiding
// the askers and targets of recent turns until every candidate was used.
func SelectTurn(valid []int, recent []model.TurnRef, rnd Rand) (*model.Turn, error) {
	if len(valid) < 2 {
		return nil, ErrInsufficientPlayers
	}

	recentAskers := make(map[int]bool, len(recent))
	recentTargets := make(map[int]bool, len(recent))
	for _, r := range recent {
		recentAskers[r.Asker] = true
		recentTargets[r.Target] = true
	}

	askers := filter(valid, func(n int) bool { return !recentAskers[n] })
	if len(askers) == 0 {
		askers = valid
	}
	asker := askers[rnd.IntN(len(askers))]

	others := filter(valid, func(n int) bool { return n != asker })
	targets := filter(others, func(n int) bool { return !recentTargets[n] })
	if len(targets) == 0 {
		targets = others
	}
	target := targets[rnd.IntN(len(targets))]
	if target == asker {
		target = others[rnd.IntN(len(others))]
	}

	return model.NewTurn(asker, target), nil
}

func filter(nums []int, keep func(int) bool) []int {
	out := make([]int, 0, len(nums))
	for _, n := range nums {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
