package match

import (
	"errors"
	"strings"
	"testing"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/tuning"
)

func TestAttackAttritionAndDisengage(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	// Mid-map, away from both bases so no third party joins in.
	attacker := m.spawnUnit("p1", "soldier", Vec2{X: 30, Y: 31})
	victim := m.spawnUnit("p2", "worker", Vec2{X: 30, Y: 30})

	if err := m.Submit("p1", Command{Kind: CmdAttack, UnitIDs: []EntityID{attacker.ID}, TargetID: victim.ID}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// 4 attack vs 0 armor against 30 hp: dead after 8 hits, one per second.
	results := runTicks(m, 3)
	if m.units[victim.ID] == nil {
		t.Fatal("victim died too early")
	}
	if victim.HP != 30-3*4 {
		t.Errorf("victim hp = %d, want %d", victim.HP, 30-3*4)
	}
	if attacker.State != StateAttacking {
		t.Errorf("attacker state = %v, want ATTACKING", attacker.State)
	}

	results = append(results, runTicks(m, 6)...)
	if m.units[victim.ID] != nil {
		t.Fatal("victim still alive after lethal damage")
	}
	if countEvents(results, protocol.EventUnitDied) != 1 {
		t.Errorf("expected one UNIT_DIED event")
	}
	if attacker.State != StateIdle {
		t.Errorf("attacker state = %v, want IDLE after the kill", attacker.State)
	}
	if attacker.TargetID != 0 {
		t.Errorf("attacker holds a stale target id %d", attacker.TargetID)
	}
}

func TestDamageFloorsAtOne(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	attacker := m.spawnUnit("p1", "soldier", Vec2{X: 30, Y: 31})
	victim := m.spawnUnit("p2", "soldier", Vec2{X: 30, Y: 30})
	// Crank the victim's effective armor past the attack stat.
	m.playersByID["p2"].Techs["plating"] = true

	m.Submit("p1", Command{Kind: CmdAttack, UnitIDs: []EntityID{attacker.ID}, TargetID: victim.ID})
	m.Tick(stepDt)

	if victim.HP != 40-1 {
		t.Errorf("victim hp = %d, want 39 (damage floored at 1)", victim.HP)
	}
}

func TestAttackOwnEntityRejected(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	s := m.spawnUnit("p1", "soldier", Vec2{X: 30, Y: 30})
	w := firstUnitOf(m, "p1", "worker")

	m.Submit("p1", Command{Kind: CmdAttack, UnitIDs: []EntityID{s.ID}, TargetID: w.ID})
	res := m.Tick(stepDt)

	if s.State == StateAttacking {
		t.Errorf("soldier attacking its own side")
	}
	if len(res.Dropped) == 0 {
		t.Errorf("expected a drop diagnostic for friendly fire")
	}
}

func TestHoldPositionNeverChases(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	holder := m.spawnUnit("p1", "soldier", Vec2{X: 30, Y: 30})
	// Inside aggro radius but outside weapon range.
	bait := m.spawnUnit("p2", "worker", Vec2{X: 34, Y: 30})

	m.Submit("p1", Command{Kind: CmdHold, UnitIDs: []EntityID{holder.ID}})
	runTicks(m, 5)

	if holder.Pos != (Vec2{X: 30, Y: 30}) {
		t.Errorf("holding unit moved to %v", holder.Pos)
	}
	if m.units[bait.ID] == nil {
		t.Errorf("holding unit killed a target out of weapon range")
	}
	if holder.State != StateHoldPosition {
		t.Errorf("holder state = %v, want HOLD", holder.State)
	}
}

func TestIdleAutoAcquireWithinAggro(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	s := m.spawnUnit("p1", "soldier", Vec2{X: 30, Y: 30})
	m.spawnUnit("p2", "worker", Vec2{X: 34, Y: 30})

	runTicks(m, 1)
	if s.State != StateMoving && s.State != StateAttacking {
		t.Errorf("idle soldier ignored an enemy in aggro range: state=%v", s.State)
	}
}

func TestEliminationEndsMatchOnce(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())

	// Wipe p2's presence directly.
	for _, id := range m.unitIDs() {
		if u := m.units[id]; u.Owner == "p2" {
			m.killUnit(u, "p1", m.tick.Load())
		}
	}
	for _, id := range m.buildingIDs() {
		if b := m.buildings[id]; b.Owner == "p2" {
			m.destroyBuilding(b, "p1", m.tick.Load())
		}
	}

	results := runTicks(m, 3)

	if m.Status() != StatusEnded {
		t.Fatalf("status = %v, want ENDED", m.Status())
	}
	if m.Winner() != "p1" {
		t.Fatalf("winner = %q, want p1", m.Winner())
	}
	if !m.playersByID["p2"].Eliminated {
		t.Errorf("p2 not marked eliminated")
	}
	if countEvents(results, protocol.EventPlayerEliminated) != 1 {
		t.Errorf("expected one PLAYER_ELIMINATED event")
	}
	if countEvents(results, protocol.EventGameEnded) != 1 {
		t.Errorf("expected exactly one GAME_ENDED event")
	}

	// Post-end behaviour: submissions fail, ticks are no-ops, End is idle.
	if err := m.Submit("p1", Command{Kind: CmdHold}); !errors.Is(err, ErrMatchEnded) {
		t.Errorf("post-end submit err = %v, want ErrMatchEnded", err)
	}
	res := m.Tick(stepDt)
	if len(res.Delta.Events) != 0 || len(res.Delta.ChangedUnits) != 0 {
		t.Errorf("post-end tick emitted changes: %+v", res.Delta)
	}
	if evs := m.End("", "admin shutdown"); len(evs) != 0 {
		t.Errorf("End after the match ended emitted %v", evs)
	}
}

func TestForcedEndEmitsGameEnded(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	runTicks(m, 2)

	evs := m.End("", "server shutdown")
	if len(evs) != 1 || evs[0].Type != protocol.EventGameEnded {
		t.Fatalf("End events = %v, want one GAME_ENDED", evs)
	}
	if !evs[0].Draw {
		t.Errorf("forced end without a winner should be a draw")
	}
	if m.Status() != StatusEnded {
		t.Errorf("status = %v, want ENDED", m.Status())
	}
}

func TestForcedEndWithWinnerRecordsWin(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	runTicks(m, 2)

	evs := m.End("p2", "p1 forfeited")
	if len(evs) != 1 || evs[0].Type != protocol.EventGameEnded {
		t.Fatalf("End events = %v, want one GAME_ENDED", evs)
	}
	if evs[0].Winner != "p2" || evs[0].Draw {
		t.Errorf("event winner = %q draw = %v, want p2 win", evs[0].Winner, evs[0].Draw)
	}
	if m.Winner() != "p2" {
		t.Errorf("winner = %q, want p2", m.Winner())
	}
}

func TestTimeLimitScoreLeaderWins(t *testing.T) {
	set := skirmishSettings()
	set.TimeLimitTicks = 4
	m := newTestMatch(t, set, tuning.Defaults())
	m.playersByID["p1"].Pool["gold"] += 100

	results := runTicks(m, 4)

	if m.Status() != StatusEnded {
		t.Fatalf("status = %v, want ENDED at the time limit", m.Status())
	}
	if m.Winner() != "p1" {
		t.Errorf("winner = %q, want score leader p1", m.Winner())
	}
	if countEvents(results, protocol.EventGameEnded) != 1 {
		t.Errorf("expected exactly one GAME_ENDED event")
	}
}

func TestTimeLimitTieIsDraw(t *testing.T) {
	set := skirmishSettings()
	set.TimeLimitTicks = 4
	m := newTestMatch(t, set, tuning.Defaults())

	results := runTicks(m, 4)

	if m.Status() != StatusEnded {
		t.Fatalf("status = %v, want ENDED at the time limit", m.Status())
	}
	if m.Winner() != "" {
		t.Errorf("winner = %q, want none on a tie", m.Winner())
	}
	drawSeen := false
	for _, r := range results {
		for _, ev := range r.Delta.Events {
			if ev.Type == protocol.EventGameEnded && ev.Draw {
				drawSeen = true
			}
		}
	}
	if !drawSeen {
		t.Errorf("GAME_ENDED event missing the draw flag")
	}
}

func TestInvariantViolationAbortsMatch(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	// Corrupt the store the way only a resolver bug could.
	m.playersByID["p1"].Pool["gold"] = -5

	res := m.Tick(stepDt)
	if res.Err == nil {
		t.Fatal("expected a fatal tick error")
	}
	if m.Status() != StatusEnded {
		t.Fatalf("status = %v, want ENDED after abort", m.Status())
	}
	ended := false
	for _, ev := range res.Delta.Events {
		if ev.Type == protocol.EventGameEnded && strings.Contains(ev.Reason, protocol.ErrInternal) {
			ended = true
		}
	}
	if !ended {
		t.Errorf("abort did not emit GAME_ENDED with %s", protocol.ErrInternal)
	}
}
