package match

import (
	"math"

	"skirmish.gg/internal/protocol"
)

// resolveEconomy processes deposits, gathering, construction progress,
// production queues and research. It is the only resolver that mutates
// player resource pools.
func (m *Match) resolveEconomy(dt float64, nowTick uint64) {
	// Deposits first, so a worker that arrived this tick can turn around
	// within the same step.
	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u != nil && u.dropPending {
			m.deposit(u)
		}
	}

	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u == nil {
			continue
		}
		switch u.State {
		case StateGathering:
			m.gather(u, dt, nowTick)
		case StateBuilding:
			m.construct(u, dt, nowTick)
		}
	}

	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		if b == nil || b.UnderConstruction() {
			continue
		}
		m.progressProduction(b, dt, nowTick)
		m.progressResearch(b, nowTick, dt)
	}
}

// deposit credits the worker's carry to the owner's pool atomically with the
// withdrawal from the carry buffer; no resource is created or destroyed.
func (m *Match) deposit(u *Unit) {
	u.dropPending = false
	if u.Carry > 0 && u.CarryKind != "" {
		p := m.playersByID[u.Owner]
		p.Pool[u.CarryKind] += u.Carry
		u.Carry = 0
	}
	// Return to the assigned node, or the nearest live one.
	node := m.nodes[u.nodeID]
	if node == nil || node.Exhausted {
		m.reassignNode(u)
		return
	}
	if Dist(u.Pos, node.Pos) <= m.tune.InteractRadius {
		u.State = StateGathering
		return
	}
	u.TargetID = node.ID
	u.intent = intentGather
	u.State = StateMoving
}

// gather accumulates throughput while in range of the assigned node, capped
// by carry room and by what the node still holds.
func (m *Match) gather(u *Unit, dt float64, nowTick uint64) {
	def := m.unitDef(u)
	node := m.nodes[u.nodeID]
	if node == nil || node.Exhausted {
		m.reassignNode(u)
		return
	}
	if Dist(u.Pos, node.Pos) > m.tune.InteractRadius {
		u.TargetID = node.ID
		u.intent = intentGather
		u.State = StateMoving
		return
	}

	u.gatherFrac += def.GatherRate * dt
	n := int(math.Floor(u.gatherFrac))
	if n > 0 {
		if room := def.CarryCap - u.Carry; n > room {
			n = room
		}
		if n > node.Remaining {
			n = node.Remaining
		}
		if n > 0 {
			u.gatherFrac -= float64(n)
			u.Carry += n
			u.CarryKind = node.Kind
			node.Remaining -= n
			if node.Remaining == 0 {
				node.Exhausted = true
				m.addEvent(protocol.Event{
					Type:     protocol.EventNodeExhausted,
					Tick:     nowTick,
					EntityID: uint64(node.ID),
				})
			}
		}
		// Keep the fractional accumulator bounded while blocked.
		if u.gatherFrac > 1 {
			u.gatherFrac = 1
		}
	}

	if u.Carry >= def.CarryCap {
		m.headToDropOff(u)
		return
	}
	if node.Exhausted {
		if u.Carry > 0 {
			m.headToDropOff(u)
			return
		}
		m.reassignNode(u)
	}
}

func (m *Match) headToDropOff(u *Unit) {
	drop := m.nearestDropOff(u.Owner, u.Pos)
	if drop == nil {
		// Nowhere to deposit; keep the carry and go idle.
		u.intent = intentNone
		u.TargetID = 0
		u.State = StateIdle
		return
	}
	if Dist(u.Pos, drop.Pos) <= m.tune.InteractRadius {
		u.dropPending = true
		u.State = StateIdle
		return
	}
	u.TargetID = drop.ID
	u.intent = intentDeposit
	u.State = StateMoving
}

// construct lets a builder advance its site. Health scales up with progress;
// the building becomes production-capable only when remaining time hits 0.
func (m *Match) construct(u *Unit, dt float64, nowTick uint64) {
	site := m.buildings[u.siteID]
	if site == nil || !site.UnderConstruction() {
		u.siteID = 0
		u.State = StateIdle
		return
	}
	if Dist(u.Pos, site.Pos) > m.tune.InteractRadius {
		u.intent = intentBuild
		u.TargetID = site.ID
		u.State = StateMoving
		return
	}
	def := m.buildingDef(site)
	site.BuildRemaining -= dt
	if site.BuildRemaining <= 0 {
		site.BuildRemaining = 0
		site.HP = def.HP
		m.addEvent(protocol.Event{
			Type:     protocol.EventBuildingComplete,
			Tick:     nowTick,
			EntityID: uint64(site.ID),
			Owner:    string(site.Owner),
		})
		u.siteID = 0
		u.State = StateIdle
		return
	}
	if def.BuildTime > 0 {
		progress := 1 - site.BuildRemaining/def.BuildTime
		hp := int(float64(def.HP) * progress)
		if hp < 1 {
			hp = 1
		}
		if hp > site.HP {
			site.HP = hp
		}
	}
}

// progressProduction advances the head of the FIFO queue and spawns the
// finished unit adjacent to the building.
func (m *Match) progressProduction(b *Building, dt float64, nowTick uint64) {
	if len(b.Queue) == 0 {
		return
	}
	head := &b.Queue[0]
	head.Remaining -= dt
	if head.Remaining > 0 {
		return
	}
	pos, ok := m.freeSpotNear(b.Pos)
	if !ok {
		// No room to spawn; hold the completed order and retry next tick.
		head.Remaining = 0
		return
	}
	u := m.spawnUnit(b.Owner, head.UnitType, pos)
	b.Queue = b.Queue[1:]
	if u == nil {
		return
	}
	m.addEvent(protocol.Event{
		Type:     protocol.EventUnitTrained,
		Tick:     nowTick,
		EntityID: uint64(u.ID),
		Owner:    string(u.Owner),
		UnitType: u.Type,
	})
	if b.HasRally {
		u.TargetPos = b.Rally
		u.HasDest = true
		u.State = StateMoving
	}
}

func (m *Match) progressResearch(b *Building, nowTick uint64, dt float64) {
	if b.Research == nil {
		return
	}
	b.Research.Remaining -= dt
	if b.Research.Remaining > 0 {
		return
	}
	tech := b.Research.TechID
	b.Research = nil
	p := m.playersByID[b.Owner]
	if p.Techs[tech] {
		return
	}
	p.Techs[tech] = true
	m.addEvent(protocol.Event{
		Type:   protocol.EventResearchDone,
		Tick:   nowTick,
		Owner:  string(b.Owner),
		TechID: tech,
	})
}

// freeSpotNear searches expanding rings around a position for the first spot
// not occupied by another entity. The scan order is fixed for determinism.
func (m *Match) freeSpotNear(center Vec2) (Vec2, bool) {
	spacing := m.tune.SpawnSpacing
	if spacing <= 0 {
		spacing = 1
	}
	for ring := 1; ring <= m.tune.SpawnSearchRings; ring++ {
		for dy := -ring; dy <= ring; dy++ {
			for dx := -ring; dx <= ring; dx++ {
				if dx > -ring && dx < ring && dy > -ring && dy < ring {
					continue // interior of the ring, already scanned
				}
				cand := m.clampPos(Vec2{X: center.X + float64(dx)*spacing, Y: center.Y + float64(dy)*spacing})
				if m.spotFree(cand, spacing/2) {
					return cand, true
				}
			}
		}
	}
	return Vec2{}, false
}

func (m *Match) spotFree(p Vec2, radius float64) bool {
	for _, u := range m.units {
		if Dist(u.Pos, p) < radius {
			return false
		}
	}
	for _, b := range m.buildings {
		if Dist(b.Pos, p) < radius {
			return false
		}
	}
	return true
}
