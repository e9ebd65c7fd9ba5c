package game

func BuildJourney(user User, catalog []Planet, discovered []DiscoveredPlanet) Journey {
	next, ok := NextPlanet(DiscoveredSet(discovered), catalog)
	j := Journey{
		User: JourneyUser{
			ID:       user.ID,
			Username: user.Username,
			Fuel:     user.Points,
		},
		DiscoveredPlanets: discovered,
		CanDiscoverNext:   CanDiscover(next, ok, user.Points),
		TotalPlanets:      len(catalog),
		DiscoveryProgress: Progress(int64(len(discovered)), int64(len(catalog))),
	}
	if j.DiscoveredPlanets == nil {
		j.DiscoveredPlanets = []DiscoveredPlanet{}
	}
	if ok {
		j.NextPlanet = &next
	}
	return j
}

func BuildShop(upgrades []Upgrade, owned []OwnedUpgrade, discoveredCount int64) []ShopItem {
	ownedIDs := make(map[int64]struct{}, len(owned))
	for _, o := range owned {
		ownedIDs[o.ID] = struct{}{}
	}
	items := make([]ShopItem, 0, len(upgrades))
	for _, u := range upgrades {
		_, isOwned := ownedIDs[u.ID]
		items = append(items, ShopItem{
			Upgrade:        u,
			IsOwned:        isOwned,
			IsLocked:       IsLocked(u, discoveredCount),
			UnlockProgress: Progress(discoveredCount, u.UnlockRequirement),
		})
	}
	return items
}

func BuildSpacecraft(owned []OwnedUpgrade) Spacecraft {
	grouped := make(map[string][]OwnedUpgrade, len(Categories))
	for _, c := range Categories {
		grouped[c] = []OwnedUpgrade{}
	}
	equipped := 0
	for _, o := range owned {
		grouped[o.Category] = append(grouped[o.Category], o)
		if o.IsEquipped {
			equipped++
		}
	}
	return Spacecraft{
		Upgrades:         grouped,
		TotalUpgrades:    len(owned),
		PointsMultiplier: FormatMultiplier(ComputeMultiplier(owned)),
		EquippedCount:    equipped,
	}
}
