package game

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the immutable game content seeded into the store at startup.
type Catalog struct {
	Planets      []Planet      `yaml:"planets"`
	Upgrades     []Upgrade     `yaml:"upgrades"`
	Achievements []Achievement `yaml:"achievements"`
	Challenges   []Challenge   `yaml:"challenges"`
}

func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	SortPlanets(c.Planets)
	return c, nil
}

func (c Catalog) Validate() error {
	seen := map[int64]bool{}
	for _, p := range c.Planets {
		if p.ID <= 0 || seen[p.ID] {
			return fmt.Errorf("catalog: bad or duplicate planet id %d", p.ID)
		}
		seen[p.ID] = true
		if p.FuelRequired < 0 || p.DiscoveryReward < 0 {
			return fmt.Errorf("catalog: planet %d has negative cost or reward", p.ID)
		}
	}

	seen = map[int64]bool{}
	for _, u := range c.Upgrades {
		if u.ID <= 0 || seen[u.ID] {
			return fmt.Errorf("catalog: bad or duplicate upgrade id %d", u.ID)
		}
		seen[u.ID] = true
		if err := ValidateCategory(u.Category); err != nil || u.Category == "" {
			return fmt.Errorf("catalog: upgrade %d has category %q", u.ID, u.Category)
		}
		if u.PointsMultiplier.LessThan(one) {
			return fmt.Errorf("catalog: upgrade %d multiplier %s below 1", u.ID, u.PointsMultiplier)
		}
	}

	seen = map[int64]bool{}
	for _, a := range c.Achievements {
		if a.ID <= 0 || seen[a.ID] {
			return fmt.Errorf("catalog: bad or duplicate achievement id %d", a.ID)
		}
		seen[a.ID] = true
		if _, ok := StatFor(Stats{}, a.RequirementType); !ok {
			return fmt.Errorf("catalog: achievement %d has requirement type %q", a.ID, a.RequirementType)
		}
	}

	seen = map[int64]bool{}
	for _, ch := range c.Challenges {
		if ch.ID <= 0 || seen[ch.ID] {
			return fmt.Errorf("catalog: bad or duplicate challenge id %d", ch.ID)
		}
		seen[ch.ID] = true
		if err := ValidateChallenge(ch.Description, ch.Points); err != nil {
			return fmt.Errorf("catalog: challenge %d: %w", ch.ID, err)
		}
	}
	return nil
}
