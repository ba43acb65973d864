package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Catalog holds the static unit/building/tech definitions for a match.
// Definitions are immutable once loaded; the digest is advertised in WELCOME
// so clients can detect a mismatched data set.
type Catalog struct {
	Units     map[string]UnitDef     `yaml:"units"`
	Buildings map[string]BuildingDef `yaml:"buildings"`
	Techs     map[string]TechDef     `yaml:"techs"`

	Digest string `yaml:"-"`
}

type UnitDef struct {
	Cost      map[string]int `yaml:"cost"`
	BuildTime float64        `yaml:"build_time"`
	HP        int            `yaml:"hp"`
	Speed     float64        `yaml:"speed"`
	Attack    int            `yaml:"attack"`
	Armor     int            `yaml:"armor"`
	Range     float64        `yaml:"range"`
	Cooldown  float64        `yaml:"cooldown"`

	// Worker capabilities. A unit with CarryCap > 0 can gather.
	CarryCap   int     `yaml:"carry_cap"`
	GatherRate float64 `yaml:"gather_rate"` // resource units per second
	CanBuild   bool    `yaml:"can_build"`
}

type BuildingDef struct {
	Cost      map[string]int `yaml:"cost"`
	BuildTime float64        `yaml:"build_time"`
	HP        int            `yaml:"hp"`
	Armor     int            `yaml:"armor"`

	// Armed buildings (defense towers).
	Attack   int     `yaml:"attack"`
	Range    float64 `yaml:"range"`
	Cooldown float64 `yaml:"cooldown"`

	Trains     []string `yaml:"trains"`
	Researches []string `yaml:"researches"`
	DropOff    bool     `yaml:"drop_off"`
}

type TechDef struct {
	Cost        map[string]int `yaml:"cost"`
	Time        float64        `yaml:"time"`
	AttackBonus int            `yaml:"attack_bonus"`
	ArmorBonus  int            `yaml:"armor_bonus"`
}

// Load reads catalog.yaml from dir and validates cross-references.
func Load(dir string) (*Catalog, error) {
	path := filepath.Join(dir, "catalog.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog.yaml: %w", err)
	}
	sum := sha256.Sum256(raw)
	c.Digest = hex.EncodeToString(sum[:])
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("catalog.yaml: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Units) == 0 {
		return fmt.Errorf("no units defined")
	}
	if len(c.Buildings) == 0 {
		return fmt.Errorf("no buildings defined")
	}
	for name, b := range c.Buildings {
		for _, u := range b.Trains {
			if _, ok := c.Units[u]; !ok {
				return fmt.Errorf("building %s trains unknown unit %s", name, u)
			}
		}
		for _, t := range b.Researches {
			if _, ok := c.Techs[t]; !ok {
				return fmt.Errorf("building %s researches unknown tech %s", name, t)
			}
		}
	}
	for name, u := range c.Units {
		if u.HP <= 0 {
			return fmt.Errorf("unit %s: hp must be positive", name)
		}
		if u.CarryCap > 0 && u.GatherRate <= 0 {
			return fmt.Errorf("unit %s: carry_cap set without gather_rate", name)
		}
	}
	return nil
}

// Unit returns the definition for a unit type, or false for unknown types.
func (c *Catalog) Unit(name string) (UnitDef, bool) {
	d, ok := c.Units[name]
	return d, ok
}

func (c *Catalog) Building(name string) (BuildingDef, bool) {
	d, ok := c.Buildings[name]
	return d, ok
}

func (c *Catalog) Tech(name string) (TechDef, bool) {
	d, ok := c.Techs[name]
	return d, ok
}
