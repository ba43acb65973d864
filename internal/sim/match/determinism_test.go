package match

import (
	"testing"

	"skirmish.gg/internal/sim/tuning"
)

// scripted is a command scheduled for submission right before a given tick.
type scripted struct {
	tick  uint64
	actor PlayerID
	cmd   func(m *Match) Command
}

// runScripted plays a fresh match through n ticks, submitting the scripted
// commands in order, and returns the digest after every tick.
func runScripted(t *testing.T, script []scripted, n int) []string {
	t.Helper()
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	digests := make([]string, 0, n)
	for i := 0; i < n; i++ {
		for _, s := range script {
			if s.tick == uint64(i) {
				if err := m.Submit(s.actor, s.cmd(m)); err != nil {
					t.Fatalf("tick %d: submit: %v", i, err)
				}
			}
		}
		m.Tick(stepDt)
		digests = append(digests, m.StateDigest())
	}
	return digests
}

func TestIdenticalRunsProduceIdenticalDigests(t *testing.T) {
	script := []scripted{
		{0, "p1", func(m *Match) Command {
			w := firstUnitOf(m, "p1", "worker")
			n := m.nearestNode(w.Pos, "gold")
			return Command{Kind: CmdGather, UnitIDs: []EntityID{w.ID}, TargetID: n.ID}
		}},
		{0, "p2", func(m *Match) Command {
			hq := firstBuildingOf(m, "p2", "hq")
			return Command{Kind: CmdTrain, BuildingID: hq.ID, UnitType: "worker"}
		}},
		{3, "p1", func(m *Match) Command {
			hq := firstBuildingOf(m, "p1", "hq")
			return Command{Kind: CmdTrain, BuildingID: hq.ID, UnitType: "worker"}
		}},
		{8, "p2", func(m *Match) Command {
			w := firstUnitOf(m, "p2", "worker")
			dest := Vec2{X: 40, Y: 40}
			return Command{Kind: CmdMove, UnitIDs: []EntityID{w.ID}, TargetPos: &dest}
		}},
	}

	a := runScripted(t, script, 30)
	b := runScripted(t, script, 30)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("digest diverged at tick %d:\n  a=%s\n  b=%s", i, a[i], b[i])
		}
	}
}

func TestDivergentInputChangesDigest(t *testing.T) {
	base := runScripted(t, nil, 10)
	moved := runScripted(t, []scripted{
		{0, "p1", func(m *Match) Command {
			w := firstUnitOf(m, "p1", "worker")
			dest := Vec2{X: 20, Y: 20}
			return Command{Kind: CmdMove, UnitIDs: []EntityID{w.ID}, TargetPos: &dest}
		}},
	}, 10)

	if base[9] == moved[9] {
		t.Fatal("different command histories hashed to the same state")
	}
}

func TestDeltaIsEmptyWhenNothingChanges(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())

	// First tick reports the whole initial state as changed.
	first := m.Tick(stepDt)
	if len(first.Delta.ChangedUnits) == 0 || len(first.Delta.ChangedBuildings) == 0 {
		t.Fatalf("first delta should cover the initial entities: %+v", first.Delta)
	}

	// With every unit idle and no commands, the next delta carries nothing.
	second := m.Tick(stepDt)
	d := second.Delta
	if len(d.ChangedUnits)+len(d.ChangedBuildings)+len(d.ChangedPlayers)+len(d.ChangedNodes) != 0 {
		t.Errorf("quiet tick produced changes: %+v", d)
	}
	if len(d.Events) != 0 || len(d.RemovedUnits) != 0 || len(d.RemovedBuildings) != 0 {
		t.Errorf("quiet tick produced events or removals: %+v", d)
	}
}

func TestDeltaReportsOnlyTheMover(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	runTicks(m, 2) // settle the initial full delta

	w := firstUnitOf(m, "p1", "worker")
	dest := Vec2{X: 20, Y: 20}
	m.Submit("p1", Command{Kind: CmdMove, UnitIDs: []EntityID{w.ID}, TargetPos: &dest})
	res := m.Tick(stepDt)

	if len(res.Delta.ChangedUnits) != 1 {
		t.Fatalf("changed units = %d, want 1", len(res.Delta.ChangedUnits))
	}
	if res.Delta.ChangedUnits[0].ID != uint64(w.ID) {
		t.Errorf("changed unit = %d, want the mover %d", res.Delta.ChangedUnits[0].ID, w.ID)
	}
}

func TestSnapshotIsStableWithinATick(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	runTicks(m, 3)

	a := m.Snapshot()
	b := m.Snapshot()
	if a.Tick != b.Tick || len(a.Units) != len(b.Units) {
		t.Fatalf("snapshots differ: %+v vs %+v", a, b)
	}
	for i := range a.Units {
		if a.Units[i] != b.Units[i] {
			t.Fatalf("unit %d differs between snapshots", a.Units[i].ID)
		}
	}
	digest := m.StateDigest()
	if digest != m.StateDigest() {
		t.Fatal("digest not stable between calls")
	}
}
