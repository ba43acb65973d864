package arena

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"skirmish.gg/internal/sim/match"
)

// Config describes the matches the server hosts at startup. Matches can also
// be created at runtime through the manager; this file covers the static set.
type Config struct {
	Matches []MatchSpec `yaml:"matches"`
}

type MatchSpec struct {
	ID             string  `yaml:"id"`
	TickRateHz     int     `yaml:"tick_rate_hz"`
	TimeLimitTicks uint64  `yaml:"time_limit_ticks"`
	MapWidth       float64 `yaml:"map_width"`
	MapHeight      float64 `yaml:"map_height"`
	HQType         string  `yaml:"hq_type"`

	StartingResources map[string]int `yaml:"starting_resources"`
	StartingUnits     []string       `yaml:"starting_units"`

	Players []PlayerSpec `yaml:"players"`
	Nodes   []NodeSpec   `yaml:"nodes"`
}

type PlayerSpec struct {
	ID      string     `yaml:"id"`
	Faction string     `yaml:"faction"`
	AI      bool       `yaml:"ai"`
	Start   [2]float64 `yaml:"start"`
}

type NodeSpec struct {
	Kind   string     `yaml:"kind"`
	Pos    [2]float64 `yaml:"pos"`
	Amount int        `yaml:"amount"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("matches.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("matches.yaml: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Matches) == 0 {
		return fmt.Errorf("matches must not be empty")
	}
	seen := map[string]bool{}
	for _, m := range c.Matches {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("match id must not be empty")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate match id: %s", m.ID)
		}
		seen[m.ID] = true
		if len(m.Players) < 2 {
			return fmt.Errorf("match %s needs at least two players", m.ID)
		}
		players := map[string]bool{}
		for _, p := range m.Players {
			if strings.TrimSpace(p.ID) == "" {
				return fmt.Errorf("match %s has empty player id", m.ID)
			}
			if players[p.ID] {
				return fmt.Errorf("match %s duplicate player id: %s", m.ID, p.ID)
			}
			players[p.ID] = true
		}
		for i, n := range m.Nodes {
			if n.Amount <= 0 {
				return fmt.Errorf("match %s nodes[%d] amount must be > 0", m.ID, i)
			}
			if strings.TrimSpace(n.Kind) == "" {
				return fmt.Errorf("match %s nodes[%d] missing kind", m.ID, i)
			}
		}
	}
	return nil
}

// Build turns a spec into the roster and settings the match constructor
// expects.
func (s MatchSpec) Build() ([]match.PlayerSlot, match.Settings) {
	roster := make([]match.PlayerSlot, 0, len(s.Players))
	starts := make([]match.Vec2, 0, len(s.Players))
	for _, p := range s.Players {
		roster = append(roster, match.PlayerSlot{
			ID:      match.PlayerID(p.ID),
			Faction: p.Faction,
			AI:      p.AI,
		})
		starts = append(starts, match.Vec2{X: p.Start[0], Y: p.Start[1]})
	}
	nodes := make([]match.NodeSpec, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		nodes = append(nodes, match.NodeSpec{
			Kind:   n.Kind,
			Pos:    match.Vec2{X: n.Pos[0], Y: n.Pos[1]},
			Amount: n.Amount,
		})
	}
	return roster, match.Settings{
		MatchID:           s.ID,
		TickRateHz:        s.TickRateHz,
		TimeLimitTicks:    s.TimeLimitTicks,
		MapWidth:          s.MapWidth,
		MapHeight:         s.MapHeight,
		StartingResources: s.StartingResources,
		StartPositions:    starts,
		HQType:            s.HQType,
		StartingUnits:     s.StartingUnits,
		Nodes:             nodes,
	}
}
