package match

import (
	"skirmish.gg/internal/protocol"
)

// apply dispatches one command. Invalid references are dropped silently
// (recorded as diagnostics); batched unit commands apply to the valid subset
// and ignore invalid ids individually.
func (m *Match) apply(cmd Command) {
	switch cmd.Kind {
	case CmdMove:
		m.applyMove(cmd)
	case CmdAttack:
		m.applyAttack(cmd)
	case CmdPatrol:
		m.applyPatrol(cmd)
	case CmdHold:
		m.applyHold(cmd)
	case CmdGather:
		m.applyGather(cmd)
	case CmdBuild:
		m.applyBuild(cmd)
	case CmdTrain:
		m.applyTrain(cmd)
	case CmdCancelProduction:
		m.applyCancelProduction(cmd)
	case CmdSetRally:
		m.applySetRally(cmd)
	case CmdResearch:
		m.applyResearch(cmd)
	case CmdCancelResearch:
		m.applyCancelResearch(cmd)
	}
}

// ownedUnits filters a batch down to units that still exist and belong to
// the actor. Stale or foreign ids are skipped one by one.
func (m *Match) ownedUnits(cmd Command) []*Unit {
	out := make([]*Unit, 0, len(cmd.UnitIDs))
	for _, id := range cmd.UnitIDs {
		u := m.units[id]
		if u == nil || u.Owner != cmd.Actor {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (m *Match) ownedBuilding(cmd Command) *Building {
	b := m.buildings[cmd.BuildingID]
	if b == nil || b.Owner != cmd.Actor {
		return nil
	}
	return b
}

func clearOrders(u *Unit) {
	u.TargetID = 0
	u.HasDest = false
	u.intent = intentNone
	u.dropPending = false
	u.siteID = 0
	u.resume = StateIdle
}

func (m *Match) applyMove(cmd Command) {
	if cmd.TargetPos == nil {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "missing target position")
		return
	}
	units := m.ownedUnits(cmd)
	if len(units) == 0 {
		m.recordDrop(cmd, protocol.ErrNotOwner, "no valid units")
		return
	}
	dest := m.clampPos(*cmd.TargetPos)
	for _, u := range units {
		clearOrders(u)
		u.TargetPos = dest
		u.HasDest = true
		u.State = StateMoving
	}
}

func (m *Match) applyAttack(cmd Command) {
	target, ok := m.entityPos(cmd.TargetID)
	if !ok {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "target does not exist")
		return
	}
	if owner, _ := m.entityOwner(cmd.TargetID); owner == cmd.Actor {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "cannot attack own entity")
		return
	}
	units := m.ownedUnits(cmd)
	applied := 0
	for _, u := range units {
		def := m.unitDef(u)
		if def.Attack <= 0 {
			continue
		}
		clearOrders(u)
		u.TargetID = cmd.TargetID
		u.resume = StateIdle
		if Dist(u.Pos, target) <= def.Range {
			u.State = StateAttacking
		} else {
			u.State = StateMoving
			u.intent = intentAttack
		}
		applied++
	}
	if applied == 0 {
		m.recordDrop(cmd, protocol.ErrNotOwner, "no valid combat units")
	}
}

func (m *Match) applyPatrol(cmd Command) {
	if cmd.TargetPos == nil {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "missing target position")
		return
	}
	units := m.ownedUnits(cmd)
	if len(units) == 0 {
		m.recordDrop(cmd, protocol.ErrNotOwner, "no valid units")
		return
	}
	dest := m.clampPos(*cmd.TargetPos)
	for _, u := range units {
		clearOrders(u)
		u.patrolA = u.Pos
		u.patrolB = dest
		u.patrolLeg = 1 // head toward B first
		u.State = StatePatrolling
	}
}

func (m *Match) applyHold(cmd Command) {
	units := m.ownedUnits(cmd)
	if len(units) == 0 {
		m.recordDrop(cmd, protocol.ErrNotOwner, "no valid units")
		return
	}
	for _, u := range units {
		clearOrders(u)
		u.State = StateHoldPosition
	}
}

func (m *Match) applyGather(cmd Command) {
	node := m.nodes[cmd.TargetID]
	if node == nil || node.Exhausted {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "node missing or exhausted")
		return
	}
	units := m.ownedUnits(cmd)
	applied := 0
	for _, u := range units {
		def := m.unitDef(u)
		if def.CarryCap <= 0 {
			continue
		}
		clearOrders(u)
		u.nodeID = node.ID
		if Dist(u.Pos, node.Pos) <= m.tune.InteractRadius {
			u.State = StateGathering
		} else {
			u.State = StateMoving
			u.intent = intentGather
			u.TargetID = node.ID
		}
		applied++
	}
	if applied == 0 {
		m.recordDrop(cmd, protocol.ErrNotOwner, "no valid workers")
	}
}

func (m *Match) applyBuild(cmd Command) {
	if cmd.TargetPos == nil {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "missing build position")
		return
	}
	def, ok := m.cat.Building(cmd.BuildingType)
	if !ok {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "unknown building type")
		return
	}
	var builders []*Unit
	for _, u := range m.ownedUnits(cmd) {
		if m.unitDef(u).CanBuild {
			builders = append(builders, u)
		}
	}
	if len(builders) == 0 {
		m.recordDrop(cmd, protocol.ErrNotOwner, "no valid builders")
		return
	}
	p := m.playersByID[cmd.Actor]
	// Deduct the full cost when the foundation is accepted, not at
	// completion, so simultaneous orders cannot overcommit the pool.
	if !spend(p.Pool, def.Cost) {
		m.recordDrop(cmd, protocol.ErrNoResource, "insufficient resources")
		return
	}
	site := m.placeBuilding(cmd.Actor, cmd.BuildingType, *cmd.TargetPos)
	for _, u := range builders {
		clearOrders(u)
		u.siteID = site.ID
		if Dist(u.Pos, site.Pos) <= m.tune.InteractRadius {
			u.State = StateBuilding
		} else {
			u.State = StateMoving
			u.intent = intentBuild
			u.TargetID = site.ID
		}
	}
}

func (m *Match) applyTrain(cmd Command) {
	b := m.ownedBuilding(cmd)
	if b == nil {
		m.recordDrop(cmd, protocol.ErrNotOwner, "building missing or not owned")
		return
	}
	if b.UnderConstruction() {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "building under construction")
		return
	}
	bdef := m.buildingDef(b)
	if !contains(bdef.Trains, cmd.UnitType) {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "building cannot train unit type")
		return
	}
	udef, _ := m.cat.Unit(cmd.UnitType)
	p := m.playersByID[cmd.Actor]
	if !spend(p.Pool, udef.Cost) {
		m.recordDrop(cmd, protocol.ErrNoResource, "insufficient resources")
		return
	}
	b.Queue = append(b.Queue, ProductionOrder{UnitType: cmd.UnitType, Remaining: udef.BuildTime})
}

func (m *Match) applyCancelProduction(cmd Command) {
	b := m.ownedBuilding(cmd)
	if b == nil {
		m.recordDrop(cmd, protocol.ErrNotOwner, "building missing or not owned")
		return
	}
	p := m.playersByID[cmd.Actor]

	// Canceling a foundation removes it and refunds its full cost.
	if b.UnderConstruction() {
		refund(p.Pool, m.buildingDef(b).Cost)
		m.removeBuilding(b)
		return
	}
	if len(b.Queue) == 0 {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "empty production queue")
		return
	}
	// Remove the most recent matching order (or the tail when no type is
	// given) and refund in full; the queue stays FIFO for what remains.
	idx := len(b.Queue) - 1
	if cmd.UnitType != "" {
		idx = -1
		for i := len(b.Queue) - 1; i >= 0; i-- {
			if b.Queue[i].UnitType == cmd.UnitType {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.recordDrop(cmd, protocol.ErrInvalidTarget, "unit type not queued")
			return
		}
	}
	udef, _ := m.cat.Unit(b.Queue[idx].UnitType)
	refund(p.Pool, udef.Cost)
	b.Queue = append(b.Queue[:idx], b.Queue[idx+1:]...)
}

func (m *Match) applySetRally(cmd Command) {
	b := m.ownedBuilding(cmd)
	if b == nil {
		m.recordDrop(cmd, protocol.ErrNotOwner, "building missing or not owned")
		return
	}
	if cmd.TargetPos == nil {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "missing rally position")
		return
	}
	b.Rally = m.clampPos(*cmd.TargetPos)
	b.HasRally = true
}

func (m *Match) applyResearch(cmd Command) {
	b := m.ownedBuilding(cmd)
	if b == nil {
		m.recordDrop(cmd, protocol.ErrNotOwner, "building missing or not owned")
		return
	}
	if b.UnderConstruction() {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "building under construction")
		return
	}
	if b.Research != nil {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "research slot occupied")
		return
	}
	if !contains(m.buildingDef(b).Researches, cmd.TechID) {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "building cannot research tech")
		return
	}
	p := m.playersByID[cmd.Actor]
	if p.Techs[cmd.TechID] {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "tech already researched")
		return
	}
	tdef, _ := m.cat.Tech(cmd.TechID)
	if !spend(p.Pool, tdef.Cost) {
		m.recordDrop(cmd, protocol.ErrNoResource, "insufficient resources")
		return
	}
	b.Research = &ResearchOrder{TechID: cmd.TechID, Remaining: tdef.Time}
}

func (m *Match) applyCancelResearch(cmd Command) {
	b := m.ownedBuilding(cmd)
	if b == nil {
		m.recordDrop(cmd, protocol.ErrNotOwner, "building missing or not owned")
		return
	}
	if b.Research == nil {
		m.recordDrop(cmd, protocol.ErrInvalidTarget, "no research in progress")
		return
	}
	tdef, _ := m.cat.Tech(b.Research.TechID)
	refund(m.playersByID[cmd.Actor].Pool, tdef.Cost)
	b.Research = nil
}

func (m *Match) entityOwner(id EntityID) (PlayerID, bool) {
	if u := m.units[id]; u != nil {
		return u.Owner, true
	}
	if b := m.buildings[id]; b != nil {
		return b.Owner, true
	}
	return "", false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
