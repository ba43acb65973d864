package match

import (
	"sort"
	"strconv"

	"skirmish.gg/internal/protocol"
)

// Track records are the previous tick's view of an entity, compared against
// the live store to decide what goes into the delta. Comparable structs keep
// the diff a single != per entity.
type unitTrack struct {
	Pos      Vec2
	HP       int
	State    UnitState
	TargetID EntityID
	Carry    int
}

type buildingTrack struct {
	HP             int
	BuildRemaining float64
	QueueLen       int
	QueueHead      string
	Research       string
	Rally          Vec2
	HasRally       bool
}

type nodeTrack struct {
	Remaining int
	Exhausted bool
}

type playerTrack struct {
	PoolSig    string
	TechCount  int
	Eliminated bool
}

// emitDelta diffs the store against the previous tick's tracks, drains the
// event accumulator and refreshes the tracks for the next tick.
func (m *Match) emitDelta(nowTick uint64) protocol.DeltaMsg {
	d := protocol.DeltaMsg{
		Type:            protocol.TypeDelta,
		ProtocolVersion: protocol.Version,
		MatchID:         m.id,
		Tick:            nowTick,
	}

	for _, id := range m.unitIDs() {
		u := m.units[id]
		now := unitTrack{Pos: u.Pos, HP: u.HP, State: u.State, TargetID: u.TargetID, Carry: u.Carry}
		if prev, seen := m.prevUnits[id]; !seen || prev != now {
			d.ChangedUnits = append(d.ChangedUnits, unitState(u))
		}
		m.prevUnits[id] = now
	}
	for id := range m.prevUnits {
		if m.units[id] == nil {
			d.RemovedUnits = append(d.RemovedUnits, uint64(id))
			delete(m.prevUnits, id)
		}
	}
	sort.Slice(d.RemovedUnits, func(i, j int) bool { return d.RemovedUnits[i] < d.RemovedUnits[j] })

	for _, id := range m.buildingIDs() {
		b := m.buildings[id]
		now := buildingTrackOf(b)
		if prev, seen := m.prevBuildings[id]; !seen || prev != now {
			d.ChangedBuildings = append(d.ChangedBuildings, buildingState(b))
		}
		m.prevBuildings[id] = now
	}
	for id := range m.prevBuildings {
		if m.buildings[id] == nil {
			d.RemovedBuildings = append(d.RemovedBuildings, uint64(id))
			delete(m.prevBuildings, id)
		}
	}
	sort.Slice(d.RemovedBuildings, func(i, j int) bool { return d.RemovedBuildings[i] < d.RemovedBuildings[j] })

	for _, id := range m.nodeIDs() {
		n := m.nodes[id]
		now := nodeTrack{Remaining: n.Remaining, Exhausted: n.Exhausted}
		if prev, seen := m.prevNodes[id]; !seen || prev != now {
			d.ChangedNodes = append(d.ChangedNodes, nodeState(n))
		}
		m.prevNodes[id] = now
	}

	for _, p := range m.players {
		now := playerTrack{PoolSig: poolSig(p.Pool), TechCount: techCount(p.Techs), Eliminated: p.Eliminated}
		if prev, seen := m.prevPlayers[p.ID]; !seen || prev != now {
			d.ChangedPlayers = append(d.ChangedPlayers, playerState(p))
		}
		m.prevPlayers[p.ID] = now
	}

	d.Events = m.events
	m.events = nil
	return d
}

// Snapshot builds the complete state message sent to joining observers.
// Ordering is by id throughout so two snapshots of the same tick are
// byte-identical.
func (m *Match) Snapshot() protocol.SnapshotMsg {
	s := protocol.SnapshotMsg{
		Type:            protocol.TypeSnapshot,
		ProtocolVersion: protocol.Version,
		MatchID:         m.id,
		Tick:            m.tick.Load(),
		Status:          m.Status().String(),
		Winner:          string(m.winner),
	}
	for _, p := range m.players {
		s.Players = append(s.Players, playerState(p))
	}
	for _, id := range m.unitIDs() {
		s.Units = append(s.Units, unitState(m.units[id]))
	}
	for _, id := range m.buildingIDs() {
		s.Buildings = append(s.Buildings, buildingState(m.buildings[id]))
	}
	for _, id := range m.nodeIDs() {
		s.Nodes = append(s.Nodes, nodeState(m.nodes[id]))
	}
	return s
}

func unitState(u *Unit) protocol.UnitState {
	return protocol.UnitState{
		ID:       uint64(u.ID),
		Owner:    string(u.Owner),
		Type:     u.Type,
		Pos:      u.Pos.ToArray(),
		HP:       u.HP,
		State:    u.State.String(),
		TargetID: uint64(u.TargetID),
		Carry:    u.Carry,
	}
}

func buildingState(b *Building) protocol.BuildingState {
	st := protocol.BuildingState{
		ID:             uint64(b.ID),
		Owner:          string(b.Owner),
		Type:           b.Type,
		Pos:            b.Pos.ToArray(),
		HP:             b.HP,
		BuildRemaining: b.BuildRemaining,
	}
	for _, o := range b.Queue {
		st.Queue = append(st.Queue, o.UnitType)
	}
	if b.Research != nil {
		st.Research = b.Research.TechID
	}
	if b.HasRally {
		r := b.Rally.ToArray()
		st.Rally = &r
	}
	return st
}

func nodeState(n *ResourceNode) protocol.NodeState {
	return protocol.NodeState{
		ID:        uint64(n.ID),
		Kind:      n.Kind,
		Pos:       n.Pos.ToArray(),
		Remaining: n.Remaining,
		Exhausted: n.Exhausted,
	}
}

func playerState(p *Player) protocol.PlayerState {
	st := protocol.PlayerState{
		ID:         string(p.ID),
		Faction:    p.Faction,
		AI:         p.AI,
		Resources:  map[string]int{},
		Eliminated: p.Eliminated,
	}
	for k, v := range p.Pool {
		st.Resources[k] = v
	}
	for t, done := range p.Techs {
		if done {
			st.Techs = append(st.Techs, t)
		}
	}
	sort.Strings(st.Techs)
	return st
}

func buildingTrackOf(b *Building) buildingTrack {
	t := buildingTrack{
		HP:             b.HP,
		BuildRemaining: b.BuildRemaining,
		QueueLen:       len(b.Queue),
		Rally:          b.Rally,
		HasRally:       b.HasRally,
	}
	if len(b.Queue) > 0 {
		t.QueueHead = b.Queue[0].UnitType
	}
	if b.Research != nil {
		t.Research = b.Research.TechID
	}
	return t
}

func poolSig(pool map[string]int) string {
	keys := make([]string, 0, len(pool))
	for k := range pool {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sig := ""
	for _, k := range keys {
		sig += k + "=" + strconv.Itoa(pool[k]) + ";"
	}
	return sig
}

func techCount(techs map[string]bool) int {
	n := 0
	for _, done := range techs {
		if done {
			n++
		}
	}
	return n
}
