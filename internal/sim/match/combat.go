package match

import (
	"skirmish.gg/internal/protocol"
)

// resolveCombat decays weapon cooldowns, auto-acquires targets for idle,
// patrolling and holding units, fires armed buildings, and resolves attacks.
// Damage is max(attack-armor, 1) so no pairing ever stalls.
func (m *Match) resolveCombat(dt float64, nowTick uint64) {
	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u == nil {
			continue
		}
		if u.Cooldown > 0 {
			u.Cooldown -= dt
			if u.Cooldown < 0 {
				u.Cooldown = 0
			}
		}
		switch u.State {
		case StateIdle, StatePatrolling, StateHoldPosition:
			m.autoAcquire(u)
		}
	}

	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u == nil || u.State != StateAttacking {
			continue
		}
		m.fightUnit(u, nowTick)
	}

	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		if b == nil || b.UnderConstruction() {
			continue
		}
		if b.Cooldown > 0 {
			b.Cooldown -= dt
			if b.Cooldown < 0 {
				b.Cooldown = 0
			}
		}
		m.fightBuilding(b, nowTick)
	}
}

// autoAcquire scans for the nearest enemy. Holding units only engage inside
// weapon range and never leave their post; idle and patrolling units remember
// the state to resume after the fight.
func (m *Match) autoAcquire(u *Unit) {
	def := m.unitDef(u)
	if def.Attack <= 0 {
		return
	}
	radius := m.tune.AggroRadius
	if u.State == StateHoldPosition {
		radius = def.Range
	}
	target := m.nearestEnemy(u.Owner, u.Pos, radius)
	if target == 0 {
		return
	}
	u.resume = u.State
	u.TargetID = target
	pos, _ := m.entityPos(target)
	if Dist(u.Pos, pos) <= def.Range {
		u.State = StateAttacking
		return
	}
	if u.State == StateHoldPosition {
		// Inside aggro but outside weapon range; hold means hold.
		u.TargetID = 0
		u.resume = StateIdle
		return
	}
	u.intent = intentAttack
	u.State = StateMoving
}

func (m *Match) fightUnit(u *Unit, nowTick uint64) {
	def := m.unitDef(u)
	pos, alive := m.entityPos(u.TargetID)
	if !alive {
		// Target died; pick another nearby enemy or stand down.
		if next := m.nearestEnemy(u.Owner, u.Pos, m.tune.AggroRadius); next != 0 {
			u.TargetID = next
			pos, _ = m.entityPos(next)
		} else {
			m.disengage(u)
			return
		}
	}
	if Dist(u.Pos, pos) > def.Range {
		if u.resume == StateHoldPosition {
			// Never chase from a hold; wait for the target to come back.
			m.disengage(u)
			return
		}
		u.intent = intentAttack
		u.State = StateMoving
		return
	}
	if u.Cooldown > 0 {
		return
	}
	u.Cooldown = def.Cooldown
	m.strike(u.Owner, m.attackOf(u.Owner, def.Attack), u.TargetID, nowTick)
}

func (m *Match) fightBuilding(b *Building, nowTick uint64) {
	def := m.buildingDef(b)
	if def.Attack <= 0 {
		return
	}
	pos, alive := m.entityPos(b.TargetID)
	if !alive || Dist(b.Pos, pos) > def.Range {
		b.TargetID = m.nearestEnemy(b.Owner, b.Pos, def.Range)
	}
	if b.TargetID == 0 || b.Cooldown > 0 {
		return
	}
	b.Cooldown = def.Cooldown
	m.strike(b.Owner, m.attackOf(b.Owner, def.Attack), b.TargetID, nowTick)
}

// disengage returns a combat unit to whatever it was doing before the fight.
func (m *Match) disengage(u *Unit) {
	u.TargetID = 0
	u.intent = intentNone
	switch u.resume {
	case StatePatrolling:
		u.State = StatePatrolling
	case StateHoldPosition:
		u.State = StateHoldPosition
	default:
		u.State = StateIdle
	}
	u.resume = StateIdle
}

// strike applies one hit to a unit or building. Damage bottoms out at 1 so
// armor can never fully negate an attack.
func (m *Match) strike(attacker PlayerID, attack int, targetID EntityID, nowTick uint64) {
	if t := m.units[targetID]; t != nil {
		dmg := attack - m.armorOf(t.Owner, m.unitDef(t).Armor)
		if dmg < 1 {
			dmg = 1
		}
		t.HP -= dmg
		if t.HP <= 0 {
			m.killUnit(t, attacker, nowTick)
		}
		return
	}
	if t := m.buildings[targetID]; t != nil {
		dmg := attack - m.armorOf(t.Owner, m.buildingDef(t).Armor)
		if dmg < 1 {
			dmg = 1
		}
		t.HP -= dmg
		if t.HP <= 0 {
			m.destroyBuilding(t, attacker, nowTick)
		}
	}
}

// killUnit removes the unit from the store and clears every reference that
// pointed at it. Its id is never reused.
func (m *Match) killUnit(u *Unit, killer PlayerID, nowTick uint64) {
	u.State = StateDead
	delete(m.units, u.ID)
	m.clearRefsTo(u.ID)
	m.addEvent(protocol.Event{
		Type:     protocol.EventUnitDied,
		Tick:     nowTick,
		EntityID: uint64(u.ID),
		Owner:    string(u.Owner),
		Killer:   string(killer),
	})
}

func (m *Match) destroyBuilding(b *Building, killer PlayerID, nowTick uint64) {
	// Resources sunk into the queue and research are lost with the building.
	m.removeBuilding(b)
	m.addEvent(protocol.Event{
		Type:     protocol.EventBuildingDestroyed,
		Tick:     nowTick,
		EntityID: uint64(b.ID),
		Owner:    string(b.Owner),
		Killer:   string(killer),
	})
}

// removeBuilding deletes a building without emitting a destruction event;
// canceled foundations go through here too.
func (m *Match) removeBuilding(b *Building) {
	delete(m.buildings, b.ID)
	m.clearRefsTo(b.ID)
}

func (m *Match) clearRefsTo(id EntityID) {
	for _, u := range m.units {
		if u.TargetID == id {
			u.TargetID = 0
		}
		if u.siteID == id {
			u.siteID = 0
			if u.State == StateBuilding {
				u.State = StateIdle
			}
			if u.State == StateMoving && u.intent == intentBuild {
				u.intent = intentNone
				u.State = StateIdle
			}
		}
	}
	for _, b := range m.buildings {
		if b.TargetID == id {
			b.TargetID = 0
		}
	}
}
