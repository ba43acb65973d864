package match

import (
	"skirmish.gg/internal/protocol"
)

// evaluateVictory runs after the resolvers each tick. A player is eliminated
// when it has no units and no completed production-capable building left;
// the match ends when at most one player survives, or when the optional time
// limit expires, whichever comes first.
func (m *Match) evaluateVictory(nowTick uint64) {
	if m.Status() == StatusEnded {
		return
	}

	for _, p := range m.players {
		if p.Eliminated {
			continue
		}
		if m.hasPresence(p.ID) {
			continue
		}
		p.Eliminated = true
		m.addEvent(protocol.Event{
			Type:   protocol.EventPlayerEliminated,
			Tick:   nowTick,
			Player: string(p.ID),
		})
	}

	var alive []*Player
	for _, p := range m.players {
		if !p.Eliminated {
			alive = append(alive, p)
		}
	}
	switch len(alive) {
	case 0:
		// Mutual destruction on the same tick.
		m.endGame(nowTick, "", true, "all players eliminated")
		return
	case 1:
		if len(m.players) > 1 {
			m.endGame(nowTick, alive[0].ID, false, "last player standing")
			return
		}
	}

	if m.set.TimeLimitTicks > 0 && nowTick+1 >= m.set.TimeLimitTicks {
		winner, tied := m.scoreLeader(alive)
		if tied {
			m.endGame(nowTick, "", true, "time limit: tied score")
			return
		}
		m.endGame(nowTick, winner, false, "time limit: score leader")
	}
}

// hasPresence reports whether the player still owns any unit or any completed
// building able to train. A player down to foundations and turrets has no way
// back and counts as eliminated.
func (m *Match) hasPresence(id PlayerID) bool {
	for _, u := range m.units {
		if u.Owner == id {
			return true
		}
	}
	for _, b := range m.buildings {
		if b.Owner != id || b.UnderConstruction() {
			continue
		}
		if len(m.buildingDef(b).Trains) > 0 {
			return true
		}
	}
	return false
}

// scoreLeader ranks the surviving players by banked resources plus the
// catalog cost of everything they own. Roster order breaks nothing: a strict
// maximum wins, anything else is a tie.
func (m *Match) scoreLeader(alive []*Player) (PlayerID, bool) {
	if len(alive) == 0 {
		return "", true
	}
	best := PlayerID("")
	bestScore := -1
	tied := false
	for _, p := range alive {
		s := m.score(p.ID)
		switch {
		case s > bestScore:
			best, bestScore, tied = p.ID, s, false
		case s == bestScore:
			tied = true
		}
	}
	return best, tied
}

func (m *Match) score(id PlayerID) int {
	s := 0
	p := m.playersByID[id]
	for _, v := range p.Pool {
		s += v
	}
	for _, u := range m.units {
		if u.Owner == id {
			s += costValue(m.unitDef(u).Cost)
		}
	}
	for _, b := range m.buildings {
		if b.Owner == id {
			s += costValue(m.buildingDef(b).Cost)
		}
	}
	return s
}

func costValue(cost map[string]int) int {
	s := 0
	for _, v := range cost {
		s += v
	}
	return s
}

// endGame transitions to ENDED exactly once. Later calls, including ticks
// arriving after the end, change nothing and emit nothing.
func (m *Match) endGame(nowTick uint64, winner PlayerID, draw bool, reason string) {
	if m.endEmitted {
		return
	}
	m.endEmitted = true
	m.winner = winner
	m.draw = draw
	m.status.Store(int32(StatusEnded))
	m.addEvent(protocol.Event{
		Type:   protocol.EventGameEnded,
		Tick:   nowTick,
		Winner: string(winner),
		Draw:   draw,
		Reason: reason,
	})
}

// End forces the match to finish, for administrative shutdown or forfeit.
// An empty winner records a draw. The returned events include the GAME_ENDED
// notification when this call was the one that ended the match.
func (m *Match) End(winner PlayerID, reason string) []protocol.Event {
	before := len(m.events)
	m.endGame(m.tick.Load(), winner, winner == "", reason)
	evs := make([]protocol.Event, len(m.events)-before)
	copy(evs, m.events[before:])
	m.events = m.events[:before]
	return evs
}
