package match

import "math"

// EntityID is unique within a match for its whole lifetime and never reused,
// even after the entity is destroyed. Stale ids in late commands therefore
// fail lookup instead of aliasing a new entity.
type EntityID uint64

type PlayerID string

type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) ToArray() [2]float64 { return [2]float64{v.X, v.Y} }

func Dist(a, b Vec2) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Status of a match.
type Status int32

const (
	StatusWaiting Status = iota
	StatusRunning
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusRunning:
		return "RUNNING"
	case StatusEnded:
		return "ENDED"
	}
	return "UNKNOWN"
}

// UnitState is the per-unit state machine. Dead is terminal; dead units are
// removed from the store, so it never appears on a live entity.
type UnitState int

const (
	StateIdle UnitState = iota
	StateMoving
	StateGathering
	StateAttacking
	StateBuilding
	StatePatrolling
	StateHoldPosition
	StateDead
)

func (s UnitState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMoving:
		return "MOVING"
	case StateGathering:
		return "GATHERING"
	case StateAttacking:
		return "ATTACKING"
	case StateBuilding:
		return "BUILDING"
	case StatePatrolling:
		return "PATROLLING"
	case StateHoldPosition:
		return "HOLD"
	case StateDead:
		return "DEAD"
	}
	return "UNKNOWN"
}

// moveIntent records why a unit is moving, so arrival can transition to the
// right follow-up state.
type moveIntent uint8

const (
	intentNone moveIntent = iota
	intentAttack
	intentGather
	intentDeposit
	intentBuild
)

type Player struct {
	ID      PlayerID
	Faction string
	AI      bool

	// Pool is mutated only by the economy resolver and command acceptance
	// (deduct-on-accept). Amounts are never negative; a step that would
	// drive one negative is rejected, not clamped.
	Pool map[string]int

	Techs      map[string]bool
	Eliminated bool
}

type Unit struct {
	ID    EntityID
	Owner PlayerID
	Type  string
	Pos   Vec2
	HP    int
	State UnitState

	// TargetID references an entity (enemy, node, drop-off or site)
	// depending on the current state/intent. Resolved through id lookup
	// each tick; a missing id means the reference went stale.
	TargetID  EntityID
	TargetPos Vec2
	HasDest   bool

	Carry     int
	CarryKind string

	// Cooldown is seconds until the weapon is ready again.
	Cooldown float64

	intent     moveIntent
	gatherFrac float64
	nodeID     EntityID
	dropPending bool
	siteID     EntityID
	patrolA    Vec2
	patrolB    Vec2
	patrolLeg  int
	resume     UnitState // state to return to after combat disengage
}

type ProductionOrder struct {
	UnitType  string
	Remaining float64 // seconds of build time left
}

type ResearchOrder struct {
	TechID    string
	Remaining float64
}

type Building struct {
	ID    EntityID
	Owner PlayerID
	Type  string
	Pos   Vec2
	HP    int

	// BuildRemaining > 0 while the foundation is under construction.
	// A building becomes production-capable only at 0.
	BuildRemaining float64

	Queue    []ProductionOrder // strictly FIFO
	Research *ResearchOrder

	Rally    Vec2
	HasRally bool

	Cooldown float64
	TargetID EntityID
}

func (b *Building) UnderConstruction() bool { return b.BuildRemaining > 0 }

type ResourceNode struct {
	ID        EntityID
	Kind      string
	Pos       Vec2
	Remaining int
	// Exhausted is set once Remaining reaches 0. Exhausted nodes are never
	// selected by new gather assignments.
	Exhausted bool
}

// PlayerSlot is one roster entry at match creation. The simulator treats
// human and AI slots identically; the flag is informational.
type PlayerSlot struct {
	ID      PlayerID
	Faction string
	AI      bool
}

type NodeSpec struct {
	Kind   string
	Pos    Vec2
	Amount int
}

// Settings describes the initial layout and limits of one match.
type Settings struct {
	MatchID    string
	TickRateHz int

	// TimeLimitTicks forces an early end with the score leader as winner
	// (draw if tied). 0 disables the limit.
	TimeLimitTicks uint64

	MapWidth  float64
	MapHeight float64

	StartingResources map[string]int
	StartPositions    []Vec2
	HQType            string
	StartingUnits     []string
	Nodes             []NodeSpec
}
