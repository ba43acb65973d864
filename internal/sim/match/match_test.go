package match

import (
	"errors"
	"sync"
	"testing"
	"time"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/catalog"
	"skirmish.gg/internal/sim/tuning"
)

// Tests run with one simulated second per tick so timed behaviour (build
// times, cooldowns) resolves in a handful of steps.
const stepDt = time.Second

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Units: map[string]catalog.UnitDef{
			"worker": {
				Cost: map[string]int{"gold": 50}, BuildTime: 5,
				HP: 30, Speed: 3,
				CarryCap: 10, GatherRate: 10, CanBuild: true,
			},
			"soldier": {
				Cost: map[string]int{"gold": 50}, BuildTime: 4,
				HP: 40, Speed: 3,
				Attack: 4, Armor: 1, Range: 1.5, Cooldown: 1,
			},
		},
		Buildings: map[string]catalog.BuildingDef{
			"hq": {
				Cost: map[string]int{"gold": 300}, BuildTime: 30,
				HP: 500, Trains: []string{"worker"}, DropOff: true,
			},
			"barracks": {
				Cost: map[string]int{"gold": 100}, BuildTime: 10,
				HP: 200, Trains: []string{"soldier"},
				Researches: []string{"forged_blades"},
			},
			"tower": {
				Cost: map[string]int{"gold": 75}, BuildTime: 8,
				HP: 150, Attack: 6, Range: 7, Cooldown: 1,
			},
		},
		Techs: map[string]catalog.TechDef{
			"forged_blades": {
				Cost: map[string]int{"gold": 75}, Time: 20,
				AttackBonus: 2,
			},
			"plating": {
				Cost: map[string]int{"gold": 60}, Time: 15,
				ArmorBonus: 10,
			},
		},
		Digest: "test-catalog",
	}
}

func skirmishSettings() Settings {
	return Settings{
		MatchID:           "m-test",
		TickRateHz:        20,
		MapWidth:          64,
		MapHeight:         64,
		StartingResources: map[string]int{"gold": 200},
		StartPositions:    []Vec2{{X: 8, Y: 8}, {X: 56, Y: 56}},
		HQType:            "hq",
		StartingUnits:     []string{"worker"},
		Nodes: []NodeSpec{
			{Kind: "gold", Pos: Vec2{X: 12, Y: 8}, Amount: 500},
			{Kind: "gold", Pos: Vec2{X: 52, Y: 56}, Amount: 500},
		},
	}
}

func newTestMatch(t *testing.T, set Settings, tune tuning.Tuning) *Match {
	t.Helper()
	m, err := New(
		[]PlayerSlot{{ID: "p1"}, {ID: "p2"}},
		set, testCatalog(), tune,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func runTicks(m *Match, n int) []TickResult {
	out := make([]TickResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, m.Tick(stepDt))
	}
	return out
}

func firstUnitOf(m *Match, owner PlayerID, typ string) *Unit {
	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u.Owner == owner && u.Type == typ {
			return u
		}
	}
	return nil
}

func firstBuildingOf(m *Match, owner PlayerID, typ string) *Building {
	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		if b.Owner == owner && b.Type == typ {
			return b
		}
	}
	return nil
}

func countEvents(results []TickResult, kind string) int {
	n := 0
	for _, r := range results {
		for _, ev := range r.Delta.Events {
			if ev.Type == kind {
				n++
			}
		}
	}
	return n
}

func TestNewSpawnsRosterEntities(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())

	for _, p := range []PlayerID{"p1", "p2"} {
		if firstBuildingOf(m, p, "hq") == nil {
			t.Errorf("player %s: missing hq", p)
		}
		if firstUnitOf(m, p, "worker") == nil {
			t.Errorf("player %s: missing starting worker", p)
		}
		if got := m.playersByID[p].Pool["gold"]; got != 200 {
			t.Errorf("player %s: starting gold = %d, want 200", p, got)
		}
	}
	if len(m.nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(m.nodes))
	}
	if m.Status() != StatusWaiting {
		t.Fatalf("status = %v, want WAITING", m.Status())
	}
}

func TestSubmitValidation(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())

	if err := m.Submit("p1", Command{Kind: "TELEPORT"}); !errors.Is(err, ErrBadCommand) {
		t.Errorf("unknown kind: err = %v, want ErrBadCommand", err)
	}
	if err := m.Submit("ghost", Command{Kind: CmdHold}); !errors.Is(err, ErrUnknownActor) {
		t.Errorf("unknown actor: err = %v, want ErrUnknownActor", err)
	}
	if err := m.Submit("p1", Command{Kind: CmdHold}); err != nil {
		t.Errorf("valid submit: err = %v", err)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	tune := tuning.Defaults()
	tune.SubmitMax = 2
	m := newTestMatch(t, skirmishSettings(), tune)

	for i := 0; i < 2; i++ {
		if err := m.Submit("p1", Command{Kind: CmdHold}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := m.Submit("p1", Command{Kind: CmdHold}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over cap: err = %v, want ErrRateLimited", err)
	}
	// The cap is per actor, not global.
	if err := m.Submit("p2", Command{Kind: CmdHold}); err != nil {
		t.Fatalf("other actor blocked by p1's cap: %v", err)
	}
	// A new window resets the count.
	m.Tick(stepDt)
	if err := m.Submit("p1", Command{Kind: CmdHold}); err != nil {
		t.Fatalf("submit after window rollover: %v", err)
	}
}

func TestConcurrentSubmitAssignsUniqueSeqs(t *testing.T) {
	tune := tuning.Defaults()
	tune.SubmitMax = 0 // uncapped for this test
	m := newTestMatch(t, skirmishSettings(), tune)

	const producers = 8
	const perProducer = 25
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if err := m.Submit("p1", Command{Kind: CmdHold}); err != nil {
					t.Errorf("concurrent submit: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	m.in.mu.Lock()
	buf := m.in.buf
	seen := map[uint64]bool{}
	for _, c := range buf {
		if seen[c.Seq] {
			t.Errorf("duplicate seq %d", c.Seq)
		}
		seen[c.Seq] = true
	}
	n := len(buf)
	m.in.mu.Unlock()

	if n != producers*perProducer {
		t.Fatalf("queued = %d, want %d", n, producers*perProducer)
	}
	m.Tick(stepDt)
}

func TestMoveBatchAppliesValidSubset(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	mine := firstUnitOf(m, "p1", "worker")
	theirs := firstUnitOf(m, "p2", "worker")

	dest := Vec2{X: 20, Y: 20}
	err := m.Submit("p1", Command{
		Kind:      CmdMove,
		UnitIDs:   []EntityID{mine.ID, theirs.ID, 9999},
		TargetPos: &dest,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	m.Tick(stepDt)

	if mine.State != StateMoving && !(mine.Pos == dest) {
		t.Errorf("own unit not moving: state=%v pos=%v", mine.State, mine.Pos)
	}
	if theirs.State != StateIdle {
		t.Errorf("enemy unit obeyed a foreign command: state=%v", theirs.State)
	}
}

func TestTrainInsufficientFundsDropsWithoutSideEffects(t *testing.T) {
	set := skirmishSettings()
	set.StartingResources = map[string]int{"gold": 40}
	m := newTestMatch(t, set, tuning.Defaults())
	hq := firstBuildingOf(m, "p1", "hq")

	if err := m.Submit("p1", Command{Kind: CmdTrain, BuildingID: hq.ID, UnitType: "worker"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := m.Tick(stepDt)

	if got := m.playersByID["p1"].Pool["gold"]; got != 40 {
		t.Errorf("pool = %d, want 40 (unchanged)", got)
	}
	if len(hq.Queue) != 0 {
		t.Errorf("queue = %v, want empty", hq.Queue)
	}
	found := false
	for _, d := range res.Dropped {
		if d.Kind == CmdTrain && d.Code == protocol.ErrNoResource {
			found = true
		}
	}
	if !found {
		t.Errorf("expected E_NO_RESOURCE drop diagnostic, got %v", res.Dropped)
	}
}

func TestTrainDeductsOnAcceptAndSpawnsAdjacent(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	hq := firstBuildingOf(m, "p1", "hq")
	before := len(m.units)

	if err := m.Submit("p1", Command{Kind: CmdTrain, BuildingID: hq.ID, UnitType: "worker"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	m.Tick(stepDt)
	if got := m.playersByID["p1"].Pool["gold"]; got != 150 {
		t.Fatalf("pool after accept = %d, want 150", got)
	}

	// worker build_time is 5s.
	results := runTicks(m, 5)
	if countEvents(results, protocol.EventUnitTrained) != 1 {
		t.Fatalf("expected one UNIT_TRAINED event")
	}
	if len(m.units) != before+1 {
		t.Fatalf("units = %d, want %d", len(m.units), before+1)
	}
	if len(hq.Queue) != 0 {
		t.Fatalf("queue not drained: %v", hq.Queue)
	}
}

func TestRallySendsTrainedUnit(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	hq := firstBuildingOf(m, "p1", "hq")
	rally := Vec2{X: 30, Y: 30}

	if err := m.Submit("p1", Command{Kind: CmdSetRally, BuildingID: hq.ID, TargetPos: &rally}); err != nil {
		t.Fatalf("submit rally: %v", err)
	}
	if err := m.Submit("p1", Command{Kind: CmdTrain, BuildingID: hq.ID, UnitType: "worker"}); err != nil {
		t.Fatalf("submit train: %v", err)
	}
	before := len(m.units)
	runTicks(m, 6)

	var trained *Unit
	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u.Owner == "p1" && uint64(u.ID) > uint64(before) && u.Type == "worker" {
			trained = u
		}
	}
	if trained == nil {
		t.Fatal("trained worker not found")
	}
	if !trained.HasDest || trained.TargetPos != rally {
		if Dist(trained.Pos, rally) > 1 {
			t.Errorf("trained unit not headed to rally: pos=%v dest=%v", trained.Pos, trained.TargetPos)
		}
	}
}

func TestCancelProductionRefundsInFull(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	hq := firstBuildingOf(m, "p1", "hq")

	m.Submit("p1", Command{Kind: CmdTrain, BuildingID: hq.ID, UnitType: "worker"})
	m.Tick(stepDt)
	if got := m.playersByID["p1"].Pool["gold"]; got != 150 {
		t.Fatalf("pool after train = %d, want 150", got)
	}

	m.Submit("p1", Command{Kind: CmdCancelProduction, BuildingID: hq.ID})
	m.Tick(stepDt)
	if got := m.playersByID["p1"].Pool["gold"]; got != 200 {
		t.Errorf("pool after cancel = %d, want 200", got)
	}
	if len(hq.Queue) != 0 {
		t.Errorf("queue = %v, want empty", hq.Queue)
	}
}

func TestBuildLifecycle(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	w := firstUnitOf(m, "p1", "worker")
	site := Vec2{X: w.Pos.X + 1, Y: w.Pos.Y}

	err := m.Submit("p1", Command{
		Kind: CmdBuild, BuildingType: "barracks",
		UnitIDs: []EntityID{w.ID}, TargetPos: &site,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	m.Tick(stepDt)

	// Cost is deducted when the foundation is accepted.
	if got := m.playersByID["p1"].Pool["gold"]; got != 100 {
		t.Fatalf("pool after accept = %d, want 100", got)
	}
	b := firstBuildingOf(m, "p1", "barracks")
	if b == nil {
		t.Fatal("foundation not placed")
	}
	if !b.UnderConstruction() {
		t.Fatal("foundation should start under construction")
	}

	// barracks build_time is 10s; the first tick already progressed it.
	results := runTicks(m, 10)
	if countEvents(results, protocol.EventBuildingComplete) != 1 {
		t.Fatalf("expected one BUILDING_COMPLETE event")
	}
	if b.UnderConstruction() {
		t.Errorf("still under construction: remaining=%v", b.BuildRemaining)
	}
	if b.HP != 200 {
		t.Errorf("completed hp = %d, want 200", b.HP)
	}
	if w.State != StateIdle {
		t.Errorf("builder state = %v, want IDLE", w.State)
	}
}

func TestCancelFoundationRefundsAndRemoves(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	w := firstUnitOf(m, "p1", "worker")
	site := Vec2{X: w.Pos.X + 1, Y: w.Pos.Y}

	m.Submit("p1", Command{
		Kind: CmdBuild, BuildingType: "barracks",
		UnitIDs: []EntityID{w.ID}, TargetPos: &site,
	})
	m.Tick(stepDt)
	b := firstBuildingOf(m, "p1", "barracks")
	if b == nil {
		t.Fatal("foundation not placed")
	}

	m.Submit("p1", Command{Kind: CmdCancelProduction, BuildingID: b.ID})
	res := m.Tick(stepDt)

	if got := m.playersByID["p1"].Pool["gold"]; got != 200 {
		t.Errorf("pool after cancel = %d, want 200", got)
	}
	if m.buildings[b.ID] != nil {
		t.Errorf("foundation still in store")
	}
	found := false
	for _, id := range res.Delta.RemovedBuildings {
		if id == uint64(b.ID) {
			found = true
		}
	}
	if !found {
		t.Errorf("delta missing removed building %d", b.ID)
	}
	if w.State == StateBuilding {
		t.Errorf("builder still building a removed site")
	}
}

func TestResearchLifecycle(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	b := m.placeBuilding("p1", "barracks", Vec2{X: 14, Y: 14})
	b.BuildRemaining = 0
	b.HP = 200

	if err := m.Submit("p1", Command{Kind: CmdResearch, BuildingID: b.ID, TechID: "forged_blades"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	m.Tick(stepDt)
	if got := m.playersByID["p1"].Pool["gold"]; got != 125 {
		t.Fatalf("pool after accept = %d, want 125", got)
	}
	if b.Research == nil {
		t.Fatal("research slot empty")
	}

	// forged_blades takes 20s; the first tick already progressed it.
	results := runTicks(m, 20)
	if countEvents(results, protocol.EventResearchDone) != 1 {
		t.Fatalf("expected one RESEARCH_DONE event")
	}
	if !m.playersByID["p1"].Techs["forged_blades"] {
		t.Fatal("tech not granted")
	}
	if got := m.attackOf("p1", 4); got != 6 {
		t.Errorf("attack with bonus = %d, want 6", got)
	}

	// A second research of the same tech is a drop, not a double-grant.
	m.Submit("p1", Command{Kind: CmdResearch, BuildingID: b.ID, TechID: "forged_blades"})
	res := m.Tick(stepDt)
	if len(res.Dropped) == 0 {
		t.Errorf("re-research should be dropped")
	}
}

func TestCancelResearchRefunds(t *testing.T) {
	m := newTestMatch(t, skirmishSettings(), tuning.Defaults())
	b := m.placeBuilding("p1", "barracks", Vec2{X: 14, Y: 14})
	b.BuildRemaining = 0
	b.HP = 200

	m.Submit("p1", Command{Kind: CmdResearch, BuildingID: b.ID, TechID: "forged_blades"})
	m.Tick(stepDt)
	m.Submit("p1", Command{Kind: CmdCancelResearch, BuildingID: b.ID})
	m.Tick(stepDt)

	if got := m.playersByID["p1"].Pool["gold"]; got != 200 {
		t.Errorf("pool after cancel = %d, want 200", got)
	}
	if b.Research != nil {
		t.Errorf("research slot still occupied")
	}
	if m.playersByID["p1"].Techs["forged_blades"] {
		t.Errorf("canceled tech was granted")
	}
}
