package game

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ComputeMultiplier folds the equipped upgrades' multipliers into one product.
// Unequipped upgrades and non-positive multipliers count as 1.
func ComputeMultiplier(owned []OwnedUpgrade) decimal.Decimal {
	total := one
	for _, u := range owned {
		if !u.IsEquipped || !u.PointsMultiplier.IsPositive() {
			continue
		}
		total = total.Mul(u.PointsMultiplier)
	}
	return total
}

// Award applies a multiplier to a base reward, truncating toward zero.
func Award(base int64, multiplier decimal.Decimal) int64 {
	if base <= 0 {
		return 0
	}
	return decimal.NewFromInt(base).Mul(multiplier).Floor().IntPart()
}

func FormatMultiplier(m decimal.Decimal) string {
	return m.StringFixed(2) + "x"
}

// SortPlanets orders a catalog by order_index, then id.
func SortPlanets(planets []Planet) {
	sort.SliceStable(planets, func(i, j int) bool {
		if planets[i].OrderIndex != planets[j].OrderIndex {
			return planets[i].OrderIndex < planets[j].OrderIndex
		}
		return planets[i].ID < planets[j].ID
	})
}

// NextPlanet returns the first planet in progression order the user has not
// discovered. ok is false once every planet is charted.
func NextPlanet(discovered map[int64]struct{}, catalog []Planet) (next Planet, ok bool) {
	ordered := make([]Planet, len(catalog))
	copy(ordered, catalog)
	SortPlanets(ordered)
	for _, p := range ordered {
		if _, seen := discovered[p.ID]; !seen {
			return p, true
		}
	}
	return Planet{}, false
}

func CanDiscover(next Planet, ok bool, points int64) bool {
	return ok && points >= next.FuelRequired
}

func IsLocked(u Upgrade, discoveredCount int64) bool {
	return discoveredCount < u.UnlockRequirement
}

func Progress(have, total int64) string {
	return fmt.Sprintf("%d/%d", have, total)
}

func DiscoveredSet(planets []DiscoveredPlanet) map[int64]struct{} {
	out := make(map[int64]struct{}, len(planets))
	for _, p := range planets {
		out[p.ID] = struct{}{}
	}
	return out
}
