package presence

import (
	"classplay/internal/model"
	"sort"
)

func diffSession(prev, next *model.Session) Diff {
	var d Diff
	if next == nil {
		d.Removed = prev != nil
		return d
	}
	if prev == nil {
		prev = &model.Session{}
	}

	d.StatusChanged = prev.Status != next.Status
	d.MaxPlayersChanged = prev.MaxPlayers != next.MaxPlayers
	d.TurnChanged = !sameTurn(prev.CurrentTurn, next.CurrentTurn)

	for id, p := range next.Players {
		old, ok := prev.Players[id]
		switch {
		case !ok:
			d.PlayersJoined = append(d.PlayersJoined, id)
		case !samePlayer(old, p):
			d.PlayersUpdated = append(d.PlayersUpdated, id)
		}
	}
	for id := range prev.Players {
		if _, ok := next.Players[id]; !ok {
			d.PlayersLeft = append(d.PlayersLeft, id)
		}
	}
	sort.Strings(d.PlayersJoined)
	sort.Strings(d.PlayersLeft)
	sort.Strings(d.PlayersUpdated)
	return d
}

func samePlayer(a, b *model.Player) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTurn(a, b *model.Turn) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Asker == b.Asker && a.Target == b.Target &&
		sameString(a.Choice, b.Choice) && sameString(a.Question, b.Question) && sameString(a.Answer, b.Answer)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// copySession copies the server fields a view keeps. Moves live in the
// mirror's own ordered list.
func copySession(s *model.Session) *model.Session {
	c := *s
	c.Moves = nil
	if s.Players != nil {
		c.Players = make(map[string]*model.Player, len(s.Players))
		for id, p := range s.Players {
			if p == nil {
				continue
			}
			pc := *p
			c.Players[id] = &pc
		}
	}
	if s.CurrentTurn != nil {
		t := *s.CurrentTurn
		t.Choice = cloneString(s.CurrentTurn.Choice)
		t.Question = cloneString(s.CurrentTurn.Question)
		t.Answer = cloneString(s.CurrentTurn.Answer)
		c.CurrentTurn = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
