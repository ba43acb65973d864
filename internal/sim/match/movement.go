package match

// resolveMovement advances every moving or patrolling unit by speed*dt and
// performs arrival transitions. Resource and combat mutations belong to the
// later resolvers; movement only changes positions and states.
func (m *Match) resolveMovement(dt float64) {
	for _, id := range m.unitIDs() {
		u := m.units[id]
		if u == nil {
			continue
		}
		switch u.State {
		case StateMoving:
			m.stepMove(u, dt)
		case StatePatrolling:
			m.stepPatrol(u, dt)
		}
	}
}

func (m *Match) stepMove(u *Unit, dt float64) {
	def := m.unitDef(u)

	switch u.intent {
	case intentAttack:
		pos, ok := m.entityPos(u.TargetID)
		if !ok {
			clearOrders(u)
			u.State = StateIdle
			return
		}
		if Dist(u.Pos, pos) <= def.Range {
			u.State = StateAttacking
			return
		}
		m.advance(u, pos, def.Speed, dt)
		if Dist(u.Pos, pos) <= def.Range {
			u.State = StateAttacking
		}

	case intentGather:
		node := m.nodes[u.TargetID]
		if node == nil || node.Exhausted {
			m.reassignNode(u)
			return
		}
		m.advance(u, node.Pos, def.Speed, dt)
		if Dist(u.Pos, node.Pos) <= m.tune.InteractRadius {
			u.TargetID = 0
			u.intent = intentNone
			u.State = StateGathering
		}

	case intentDeposit:
		b := m.buildings[u.TargetID]
		if b == nil {
			if alt := m.nearestDropOff(u.Owner, u.Pos); alt != nil {
				u.TargetID = alt.ID
				return
			}
			clearOrders(u)
			u.State = StateIdle
			return
		}
		m.advance(u, b.Pos, def.Speed, dt)
		if Dist(u.Pos, b.Pos) <= m.tune.InteractRadius {
			// The deposit itself is an economy-resolver mutation.
			u.dropPending = true
			u.TargetID = 0
			u.intent = intentNone
			u.State = StateIdle
		}

	case intentBuild:
		site := m.buildings[u.siteID]
		if site == nil {
			clearOrders(u)
			u.State = StateIdle
			return
		}
		m.advance(u, site.Pos, def.Speed, dt)
		if Dist(u.Pos, site.Pos) <= m.tune.InteractRadius {
			u.TargetID = 0
			u.intent = intentNone
			u.State = StateBuilding
		}

	default:
		if !u.HasDest {
			u.State = StateIdle
			return
		}
		m.advance(u, u.TargetPos, def.Speed, dt)
		if Dist(u.Pos, u.TargetPos) <= m.tune.ArrivalTolerance {
			u.HasDest = false
			u.State = StateIdle
		}
	}
}

func (m *Match) stepPatrol(u *Unit, dt float64) {
	def := m.unitDef(u)
	wp := u.patrolA
	if u.patrolLeg == 1 {
		wp = u.patrolB
	}
	m.advance(u, wp, def.Speed, dt)
	if Dist(u.Pos, wp) <= m.tune.ArrivalTolerance {
		u.patrolLeg = 1 - u.patrolLeg
	}
}

// advance moves a unit toward a point by at most speed*dt.
func (m *Match) advance(u *Unit, to Vec2, speed, dt float64) {
	d := Dist(u.Pos, to)
	if d == 0 || speed <= 0 {
		return
	}
	step := speed * dt
	if step >= d {
		u.Pos = to
		return
	}
	u.Pos = m.clampPos(Vec2{
		X: u.Pos.X + (to.X-u.Pos.X)/d*step,
		Y: u.Pos.Y + (to.Y-u.Pos.Y)/d*step,
	})
}

// reassignNode points a worker at the nearest live node of its current
// resource kind, falling back to Idle when none remain.
func (m *Match) reassignNode(u *Unit) {
	kind := u.CarryKind
	node := m.nearestNode(u.Pos, kind)
	if node == nil && kind != "" && u.Carry == 0 {
		// Not carrying anything, so switching resource kind is safe.
		node = m.nearestNode(u.Pos, "")
	}
	if node == nil {
		clearOrders(u)
		u.nodeID = 0
		u.State = StateIdle
		return
	}
	u.nodeID = node.ID
	if Dist(u.Pos, node.Pos) <= m.tune.InteractRadius {
		u.TargetID = 0
		u.intent = intentNone
		u.State = StateGathering
		return
	}
	u.TargetID = node.ID
	u.intent = intentGather
	u.State = StateMoving
}
