package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz       int     `yaml:"tick_rate_hz"`
	AggroRadius      float64 `yaml:"aggro_radius"`
	ArrivalTolerance float64 `yaml:"arrival_tolerance"`
	InteractRadius   float64 `yaml:"interact_radius"` // gather/deposit/build reach
	SpawnSearchRings int     `yaml:"spawn_search_rings"`
	SpawnSpacing     float64 `yaml:"spawn_spacing"`

	// Per-actor submission cap per tick window.
	SubmitWindowTicks int `yaml:"submit_window_ticks"`
	SubmitMax         int `yaml:"submit_max"`

	DefaultTimeLimitTicks uint64 `yaml:"default_time_limit_ticks"`

	// Tick budget overrun logging threshold, as a fraction of the tick
	// interval (0 disables the check).
	TickBudgetFraction float64 `yaml:"tick_budget_fraction"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:       "1.0",
		TickRateHz:            20,
		AggroRadius:           8,
		ArrivalTolerance:      0.5,
		InteractRadius:        1.5,
		SpawnSearchRings:      6,
		SpawnSpacing:          1.0,
		SubmitWindowTicks:     1,
		SubmitMax:             64,
		DefaultTimeLimitTicks: 0,
		TickBudgetFraction:    1.0,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickRateHz <= 0 {
		return t, fmt.Errorf("tuning.yaml: tick_rate_hz must be positive")
	}
	return t, nil
}
