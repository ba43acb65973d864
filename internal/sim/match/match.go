package match

import (
	"fmt"
	"sort"
	"sync/atomic"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/catalog"
	"skirmish.gg/internal/sim/tuning"
)

// Match is a single authoritative, tick-driven simulation. All mutable state
// is owned by whichever goroutine calls Tick; only Submit, Tick counter and
// status reads are safe from other goroutines.
type Match struct {
	id   string
	cat  *catalog.Catalog
	tune tuning.Tuning
	set  Settings

	tick   atomic.Uint64
	status atomic.Int32

	players     []*Player // roster order, fixed at creation
	playersByID map[PlayerID]*Player

	units     map[EntityID]*Unit
	buildings map[EntityID]*Building
	nodes     map[EntityID]*ResourceNode

	nextEntity uint64

	in inbox

	winner PlayerID
	draw   bool

	// Per-tick accumulators, drained by the delta emitter.
	events  []protocol.Event
	dropped []CommandDrop

	// Previous-tick tracks for the delta emitter.
	prevUnits     map[EntityID]unitTrack
	prevBuildings map[EntityID]buildingTrack
	prevNodes     map[EntityID]nodeTrack
	prevPlayers   map[PlayerID]playerTrack

	endEmitted bool
	corrupt    bool
}

func New(roster []PlayerSlot, set Settings, cat *catalog.Catalog, tune tuning.Tuning) (*Match, error) {
	if cat == nil {
		return nil, fmt.Errorf("nil catalog")
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("empty roster")
	}
	if set.TickRateHz <= 0 {
		set.TickRateHz = tune.TickRateHz
	}
	if set.MapWidth <= 0 {
		set.MapWidth = 128
	}
	if set.MapHeight <= 0 {
		set.MapHeight = 128
	}
	if set.TimeLimitTicks == 0 {
		set.TimeLimitTicks = tune.DefaultTimeLimitTicks
	}
	if set.HQType != "" {
		if _, ok := cat.Building(set.HQType); !ok {
			return nil, fmt.Errorf("unknown hq building type %q", set.HQType)
		}
	}
	for _, ut := range set.StartingUnits {
		if _, ok := cat.Unit(ut); !ok {
			return nil, fmt.Errorf("unknown starting unit type %q", ut)
		}
	}

	m := &Match{
		id:            set.MatchID,
		cat:           cat,
		tune:          tune,
		set:           set,
		playersByID:   map[PlayerID]*Player{},
		units:         map[EntityID]*Unit{},
		buildings:     map[EntityID]*Building{},
		nodes:         map[EntityID]*ResourceNode{},
		prevUnits:     map[EntityID]unitTrack{},
		prevBuildings: map[EntityID]buildingTrack{},
		prevNodes:     map[EntityID]nodeTrack{},
		prevPlayers:   map[PlayerID]playerTrack{},
	}
	m.in.counts = map[PlayerID]int{}

	for i, slot := range roster {
		if slot.ID == "" {
			return nil, fmt.Errorf("roster slot %d: empty player id", i)
		}
		if _, dup := m.playersByID[slot.ID]; dup {
			return nil, fmt.Errorf("duplicate player id %s", slot.ID)
		}
		p := &Player{
			ID:      slot.ID,
			Faction: slot.Faction,
			AI:      slot.AI,
			Pool:    map[string]int{},
			Techs:   map[string]bool{},
		}
		for k, v := range set.StartingResources {
			p.Pool[k] = v
		}
		m.players = append(m.players, p)
		m.playersByID[p.ID] = p
	}

	for i, p := range m.players {
		base := m.startPosition(i)
		if set.HQType != "" {
			b := m.placeBuilding(p.ID, set.HQType, base)
			b.BuildRemaining = 0 // pre-built
			def, _ := cat.Building(set.HQType)
			b.HP = def.HP
		}
		for j, ut := range set.StartingUnits {
			pos := Vec2{X: base.X + 2 + float64(j)*m.tune.SpawnSpacing, Y: base.Y + 2}
			m.spawnUnit(p.ID, ut, pos)
		}
	}

	for _, ns := range set.Nodes {
		if ns.Amount <= 0 {
			return nil, fmt.Errorf("resource node %s at %v: non-positive amount", ns.Kind, ns.Pos)
		}
		id := m.newEntityID()
		m.nodes[id] = &ResourceNode{ID: id, Kind: ns.Kind, Pos: ns.Pos, Remaining: ns.Amount}
	}

	m.status.Store(int32(StatusWaiting))
	return m, nil
}

func (m *Match) startPosition(i int) Vec2 {
	if i < len(m.set.StartPositions) {
		return m.set.StartPositions[i]
	}
	// Spread remaining players along the map diagonal.
	n := len(m.players)
	fx := (float64(i) + 0.5) / float64(n)
	return Vec2{X: fx * m.set.MapWidth, Y: fx * m.set.MapHeight}
}

func (m *Match) ID() string             { return m.id }
func (m *Match) CurrentTick() uint64    { return m.tick.Load() }
func (m *Match) Status() Status         { return Status(m.status.Load()) }
func (m *Match) TickRateHz() int        { return m.set.TickRateHz }
func (m *Match) Winner() PlayerID       { return m.winner }
func (m *Match) MapWidth() float64      { return m.set.MapWidth }
func (m *Match) MapHeight() float64     { return m.set.MapHeight }
func (m *Match) TimeLimitTicks() uint64 { return m.set.TimeLimitTicks }
func (m *Match) CatalogDigest() string  { return m.cat.Digest }

// HasPlayer reports whether id is on the roster. The roster is fixed at
// creation, so this is safe from any goroutine.
func (m *Match) HasPlayer(id PlayerID) bool {
	_, ok := m.playersByID[id]
	return ok
}

// Submit enqueues a command tagged with a fresh sequence number. Ownership
// and resource validation are deferred to tick processing so producers never
// block or fail eagerly; only ended-match, malformed-shape and rate-cap
// conditions reject at submission.
func (m *Match) Submit(actor PlayerID, cmd Command) error {
	if m.Status() == StatusEnded {
		return ErrMatchEnded
	}
	if _, ok := knownKinds[cmd.Kind]; !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrBadCommand, cmd.Kind)
	}
	if actor == "" {
		return fmt.Errorf("%w: empty actor", ErrBadCommand)
	}
	if _, ok := m.playersByID[actor]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActor, actor)
	}
	cmd.Actor = actor

	window := uint64(0)
	if m.tune.SubmitWindowTicks > 0 {
		window = m.tick.Load() / uint64(m.tune.SubmitWindowTicks)
	}
	_, err := m.in.submit(cmd, window, m.tune.SubmitMax)
	return err
}

func (m *Match) newEntityID() EntityID {
	m.nextEntity++
	return EntityID(m.nextEntity)
}

func (m *Match) spawnUnit(owner PlayerID, unitType string, pos Vec2) *Unit {
	def, ok := m.cat.Unit(unitType)
	if !ok {
		return nil
	}
	id := m.newEntityID()
	u := &Unit{
		ID:    id,
		Owner: owner,
		Type:  unitType,
		Pos:   m.clampPos(pos),
		HP:    def.HP,
		State: StateIdle,
	}
	m.units[id] = u
	return u
}

// placeBuilding creates a foundation. Callers decide whether it starts
// complete (match setup) or under construction (build command).
func (m *Match) placeBuilding(owner PlayerID, buildingType string, pos Vec2) *Building {
	def, ok := m.cat.Building(buildingType)
	if !ok {
		return nil
	}
	id := m.newEntityID()
	b := &Building{
		ID:             id,
		Owner:          owner,
		Type:           buildingType,
		Pos:            m.clampPos(pos),
		HP:             1,
		BuildRemaining: def.BuildTime,
	}
	m.buildings[id] = b
	return b
}

func (m *Match) clampPos(p Vec2) Vec2 {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.X > m.set.MapWidth {
		p.X = m.set.MapWidth
	}
	if p.Y > m.set.MapHeight {
		p.Y = m.set.MapHeight
	}
	return p
}

// Sorted id iteration keeps resolver order deterministic regardless of map
// iteration order.
func (m *Match) unitIDs() []EntityID {
	ids := make([]EntityID, 0, len(m.units))
	for id := range m.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Match) buildingIDs() []EntityID {
	ids := make([]EntityID, 0, len(m.buildings))
	for id := range m.buildings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Match) nodeIDs() []EntityID {
	ids := make([]EntityID, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Match) unitDef(u *Unit) catalog.UnitDef {
	def, _ := m.cat.Unit(u.Type)
	return def
}

func (m *Match) buildingDef(b *Building) catalog.BuildingDef {
	def, _ := m.cat.Building(b.Type)
	return def
}

// attackOf returns a unit's attack stat with the owner's tech bonuses.
func (m *Match) attackOf(owner PlayerID, base int) int {
	if base <= 0 {
		return base
	}
	return base + m.techBonus(owner, func(t catalog.TechDef) int { return t.AttackBonus })
}

func (m *Match) armorOf(owner PlayerID, base int) int {
	return base + m.techBonus(owner, func(t catalog.TechDef) int { return t.ArmorBonus })
}

func (m *Match) techBonus(owner PlayerID, pick func(catalog.TechDef) int) int {
	p := m.playersByID[owner]
	if p == nil {
		return 0
	}
	sum := 0
	for id, done := range p.Techs {
		if !done {
			continue
		}
		if def, ok := m.cat.Tech(id); ok {
			sum += pick(def)
		}
	}
	return sum
}

// entityPos resolves the position of a unit or building by id.
func (m *Match) entityPos(id EntityID) (Vec2, bool) {
	if u := m.units[id]; u != nil {
		return u.Pos, true
	}
	if b := m.buildings[id]; b != nil {
		return b.Pos, true
	}
	return Vec2{}, false
}

// nearestEnemy picks the closest enemy unit or building within radius,
// ties broken by lowest entity id for determinism.
func (m *Match) nearestEnemy(owner PlayerID, from Vec2, radius float64) EntityID {
	best := EntityID(0)
	bestDist := radius
	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u.Owner == owner {
			continue
		}
		if d := Dist(from, u.Pos); d < bestDist || (d == bestDist && (best == 0 || id < best)) {
			best, bestDist = id, d
		}
	}
	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		if b.Owner == owner {
			continue
		}
		if d := Dist(from, b.Pos); d < bestDist || (d == bestDist && (best == 0 || id < best)) {
			best, bestDist = id, d
		}
	}
	return best
}

// nearestDropOff finds the closest completed drop-off building of the owner.
func (m *Match) nearestDropOff(owner PlayerID, from Vec2) *Building {
	var best *Building
	bestDist := 0.0
	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		if b.Owner != owner || b.UnderConstruction() {
			continue
		}
		if !m.buildingDef(b).DropOff {
			continue
		}
		d := Dist(from, b.Pos)
		if best == nil || d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

// nearestNode finds the closest non-exhausted node, optionally restricted to
// a resource kind.
func (m *Match) nearestNode(from Vec2, kind string) *ResourceNode {
	var best *ResourceNode
	bestDist := 0.0
	for _, id := range m.nodeIDs() {
		n := m.nodes[id]
		if n.Exhausted {
			continue
		}
		if kind != "" && n.Kind != kind {
			continue
		}
		d := Dist(from, n.Pos)
		if best == nil || d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

func (m *Match) addEvent(ev protocol.Event) {
	m.events = append(m.events, ev)
}

func (m *Match) recordDrop(cmd Command, code, reason string) {
	m.dropped = append(m.dropped, CommandDrop{
		Seq:    cmd.Seq,
		Actor:  cmd.Actor,
		Kind:   cmd.Kind,
		Code:   code,
		Reason: reason,
	})
}

// canAfford / spend / refund implement deduct-on-accept. spend rejects
// rather than clamping so pools can never go negative.
func canAfford(pool map[string]int, cost map[string]int) bool {
	for k, v := range cost {
		if pool[k] < v {
			return false
		}
	}
	return true
}

func spend(pool map[string]int, cost map[string]int) bool {
	if !canAfford(pool, cost) {
		return false
	}
	for k, v := range cost {
		pool[k] -= v
	}
	return true
}

func refund(pool map[string]int, cost map[string]int) {
	for k, v := range cost {
		pool[k] += v
	}
}
