package match

import (
	"fmt"
	"sort"
	"time"

	"skirmish.gg/internal/protocol"
)

// TickResult is everything one tick produced for the outside world: the
// network delta (including discrete events) and drop diagnostics. Err is
// non-nil only when an entity-store invariant was violated, which aborts
// the match.
type TickResult struct {
	Delta   protocol.DeltaMsg
	Applied int
	Dropped []CommandDrop
	Err     error
}

// TickLogEntry is one line of the per-match tick log.
type TickLogEntry struct {
	Tick     uint64        `json:"tick"`
	Applied  int           `json:"applied"`
	Dropped  []CommandDrop `json:"dropped,omitempty"`
	Events   int           `json:"events,omitempty"`
	Digest   string        `json:"digest"`
}

// Tick advances the match by one step. It is invoked by an external
// fixed-rate scheduler; elapsed is the simulated duration of the step.
// Calling Tick on an ended match is a no-op.
func (m *Match) Tick(elapsed time.Duration) TickResult {
	if m.Status() == StatusEnded {
		return TickResult{Delta: m.emptyDelta()}
	}
	if m.Status() == StatusWaiting {
		m.status.Store(int32(StatusRunning))
	}
	nowTick := m.tick.Load()
	dt := elapsed.Seconds()

	// (1) Swap out the accumulated queue, (2) order by sequence number.
	// Stable FIFO over sequence numbers is the sole determinism guarantee
	// for command application.
	cmds := m.in.swap()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Seq < cmds[j].Seq })

	// (3) Dispatch each command to its resolver.
	applied := 0
	for _, cmd := range cmds {
		if m.Status() == StatusEnded {
			break // teardown mid-batch: drain and discard without error
		}
		m.apply(cmd)
		applied++
	}

	// (4) Resolvers in fixed order.
	if m.Status() != StatusEnded {
		m.resolveMovement(dt)
		m.resolveEconomy(dt, nowTick)
		m.resolveCombat(dt, nowTick)
	}

	var fatal error
	if err := m.checkInvariants(); err != nil {
		fatal = err
		m.abort(nowTick, err)
	}

	// (5) Victory evaluation, (6) delta emission.
	if fatal == nil {
		m.evaluateVictory(nowTick)
	}
	delta := m.emitDelta(nowTick)
	dropped := m.dropped
	m.dropped = nil

	m.tick.Add(1)
	return TickResult{Delta: delta, Applied: applied, Dropped: dropped, Err: fatal}
}

// checkInvariants probes for entity-store corruption. Any hit here is a bug
// in resolver logic, not a recoverable game condition.
func (m *Match) checkInvariants() error {
	for _, p := range m.players {
		for kind, amount := range p.Pool {
			if amount < 0 {
				return fmt.Errorf("player %s: negative %s pool (%d)", p.ID, kind, amount)
			}
		}
	}
	for id, u := range m.units {
		if m.playersByID[u.Owner] == nil {
			return fmt.Errorf("unit %d: owner %s not on roster", id, u.Owner)
		}
	}
	for id, b := range m.buildings {
		if m.playersByID[b.Owner] == nil {
			return fmt.Errorf("building %d: owner %s not on roster", id, b.Owner)
		}
	}
	return nil
}

// abort marks the match ended with an error status. It must never fire if
// resolver logic is correct.
func (m *Match) abort(nowTick uint64, err error) {
	if m.Status() == StatusEnded {
		return
	}
	m.corrupt = true
	m.status.Store(int32(StatusEnded))
	if !m.endEmitted {
		m.endEmitted = true
		m.addEvent(protocol.Event{
			Type:   protocol.EventGameEnded,
			Tick:   nowTick,
			Reason: protocol.ErrInternal + ": " + err.Error(),
		})
	}
}

func (m *Match) emptyDelta() protocol.DeltaMsg {
	return protocol.DeltaMsg{
		Type:            protocol.TypeDelta,
		ProtocolVersion: protocol.Version,
		MatchID:         m.id,
		Tick:            m.tick.Load(),
	}
}
