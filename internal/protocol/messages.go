package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MatchID         string `json:"match_id"`
	ActorID         string `json:"actor_id,omitempty"` // empty = pure observer
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	MatchID         string      `json:"match_id"`
	ActorID         string      `json:"actor_id,omitempty"`
	MatchParams     MatchParams `json:"match_params"`
	CatalogDigest   string      `json:"catalog_digest"`
}

type MatchParams struct {
	TickRateHz     int     `json:"tick_rate_hz"`
	MapWidth       float64 `json:"map_width"`
	MapHeight      float64 `json:"map_height"`
	TimeLimitTicks uint64  `json:"time_limit_ticks,omitempty"`
}

// COMMAND (producer -> server). Identical shape for human clients and bots.
type CommandMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ActorID         string      `json:"actor_id"`
	Kind            string      `json:"kind"`
	UnitIDs         []uint64    `json:"unit_ids,omitempty"`
	TargetID        uint64      `json:"target_id,omitempty"`
	TargetPos       *[2]float64 `json:"target_pos,omitempty"`
	UnitType        string      `json:"unit_type,omitempty"`
	BuildingType    string      `json:"building_type,omitempty"`
	BuildingID      uint64      `json:"building_id,omitempty"`
	TechID          string      `json:"tech_id,omitempty"`
}

// REJECT (server -> producer): submission-time rejection only.
// In-tick drops are diagnostics, not rejections.
type RejectMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// SNAPSHOT (server -> client): full match state, sent on join/reconnect.
type SnapshotMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	MatchID         string         `json:"match_id"`
	Tick            uint64         `json:"tick"`
	Status          string         `json:"status"`
	Winner          string         `json:"winner,omitempty"`
	Players         []PlayerState  `json:"players"`
	Units           []UnitState    `json:"units"`
	Buildings       []BuildingState `json:"buildings"`
	Nodes           []NodeState    `json:"nodes"`
}

type PlayerState struct {
	ID        string         `json:"id"`
	Faction   string         `json:"faction,omitempty"`
	AI        bool           `json:"ai,omitempty"`
	Resources map[string]int `json:"resources"`
	Techs     []string       `json:"techs,omitempty"`
	Eliminated bool          `json:"eliminated,omitempty"`
}

type UnitState struct {
	ID       uint64     `json:"id"`
	Owner    string     `json:"owner"`
	Type     string     `json:"unit_type"`
	Pos      [2]float64 `json:"pos"`
	HP       int        `json:"hp"`
	State    string     `json:"state"`
	TargetID uint64     `json:"target_id,omitempty"`
	Carry    int        `json:"carry,omitempty"`
}

type BuildingState struct {
	ID            uint64     `json:"id"`
	Owner         string     `json:"owner"`
	Type          string     `json:"building_type"`
	Pos           [2]float64 `json:"pos"`
	HP            int        `json:"hp"`
	BuildRemaining float64   `json:"build_remaining,omitempty"`
	Queue         []string   `json:"queue,omitempty"`
	Research      string     `json:"research,omitempty"`
	Rally         *[2]float64 `json:"rally,omitempty"`
}

type NodeState struct {
	ID        uint64     `json:"id"`
	Kind      string     `json:"kind"`
	Pos       [2]float64 `json:"pos"`
	Remaining int        `json:"remaining"`
	Exhausted bool       `json:"exhausted,omitempty"`
}

// DELTA (server -> client): fields changed since the previous tick, plus
// discrete notifications. Emitted every tick to subscribed observers.
type DeltaMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	MatchID         string          `json:"match_id"`
	Tick            uint64          `json:"tick"`
	ChangedUnits    []UnitState     `json:"changed_units,omitempty"`
	ChangedBuildings []BuildingState `json:"changed_buildings,omitempty"`
	ChangedPlayers  []PlayerState   `json:"changed_players,omitempty"`
	ChangedNodes    []NodeState     `json:"changed_nodes,omitempty"`
	RemovedUnits    []uint64        `json:"removed_units,omitempty"`
	RemovedBuildings []uint64       `json:"removed_buildings,omitempty"`
	Events          []Event         `json:"events,omitempty"`
}

// Event kinds carried in DeltaMsg.Events.
const (
	EventUnitDied          = "UNIT_DIED"
	EventBuildingDestroyed = "BUILDING_DESTROYED"
	EventBuildingComplete  = "BUILDING_COMPLETE"
	EventUnitTrained       = "UNIT_TRAINED"
	EventResearchDone      = "RESEARCH_DONE"
	EventNodeExhausted     = "NODE_EXHAUSTED"
	EventPlayerEliminated  = "PLAYER_ELIMINATED"
	EventGameEnded         = "GAME_ENDED"
)

// Event is a typed discrete notification. Exactly one of the optional
// payload fields is meaningful per kind.
type Event struct {
	Type     string `json:"type"`
	Tick     uint64 `json:"tick"`
	EntityID uint64 `json:"entity_id,omitempty"`
	Owner    string `json:"owner,omitempty"`
	Killer   string `json:"killer,omitempty"`
	UnitType string `json:"unit_type,omitempty"`
	TechID   string `json:"tech_id,omitempty"`
	Player   string `json:"player,omitempty"`
	Winner   string `json:"winner,omitempty"`
	Draw     bool   `json:"draw,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
