package game

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if len(c.Planets) != 10 || len(c.Upgrades) != 10 || len(c.Achievements) != 11 || len(c.Challenges) != 7 {
		t.Fatalf("unexpected sizes: planets=%d upgrades=%d achievements=%d challenges=%d",
			len(c.Planets), len(c.Upgrades), len(c.Achievements), len(c.Challenges))
	}
	first := c.Planets[0]
	if first.Name != "Yavin IV" || first.FuelRequired != 0 {
		t.Fatalf("first planet should be free, got %+v", first)
	}
	for i := 1; i < len(c.Planets); i++ {
		if c.Planets[i-1].OrderIndex > c.Planets[i].OrderIndex {
			t.Fatal("planets not sorted by order_index")
		}
	}
	var warp Upgrade
	for _, u := range c.Upgrades {
		if u.ID == 2 {
			warp = u
		}
	}
	if warp.Name != "Warp Drive" || !warp.PointsMultiplier.Equal(decimal.RequireFromString("1.3")) || warp.UnlockRequirement != 3 {
		t.Fatalf("unexpected warp drive: %+v", warp)
	}
}

func TestParseCatalogRejectsBadContent(t *testing.T) {
	tests := map[string]string{
		"duplicate planet": `
planets:
  - {id: 1, name: A, fuel_required: 0, discovery_reward: 0, order_index: 1}
  - {id: 1, name: B, fuel_required: 0, discovery_reward: 0, order_index: 2}
`,
		"unknown category": `
upgrades:
  - {id: 1, name: Laser, category: weapons, price: 10, points_multiplier: "1.1"}
`,
		"multiplier below one": `
upgrades:
  - {id: 1, name: Anchor, category: hull, price: 10, points_multiplier: "0.5"}
`,
		"unknown requirement": `
achievements:
  - {id: 1, name: Streak, requirement_type: streak, requirement_value: 3, reward_points: 5}
`,
		"challenge over cap": `
challenges:
  - {id: 1, description: Run a marathon, points: 100}
`,
	}
	for name, raw := range tests {
		if _, err := ParseCatalog([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseCatalogChallengeErrorWrapsValidation(t *testing.T) {
	_, err := ParseCatalog([]byte("challenges:\n  - {id: 1, description: \"\", points: 5}\n"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "challenge 1") {
		t.Fatalf("error should name the challenge: %v", err)
	}
}
