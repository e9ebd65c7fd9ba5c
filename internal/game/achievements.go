package game

// StatFor returns the stat an achievement's requirement_type is measured on.
func StatFor(stats Stats, requirementType string) (int64, bool) {
	switch requirementType {
	case RequirementPlanets:
		return stats.PlanetsDiscovered, true
	case RequirementPoints:
		return stats.Points, true
	case RequirementChallenges:
		return stats.ChallengesCompleted, true
	case RequirementUpgrades:
		return stats.UpgradesOwned, true
	default:
		return 0, false
	}
}

// Evaluate returns the achievements not yet granted whose threshold the
// stats meet. Result order follows the catalog.
func Evaluate(stats Stats, catalog []Achievement, granted map[int64]struct{}) []Achievement {
	var out []Achievement
	for _, a := range catalog {
		if _, done := granted[a.ID]; done {
			continue
		}
		stat, known := StatFor(stats, a.RequirementType)
		if !known {
			continue
		}
		if stat >= a.RequirementValue {
			out = append(out, a)
		}
	}
	return out
}

func TotalReward(achievements []Achievement) int64 {
	var total int64
	for _, a := range achievements {
		total += a.RewardPoints
	}
	return total
}

func BuildAchievementBoard(catalog []Achievement, grants []Grant) AchievementBoard {
	earned := make(map[int64]Grant, len(grants))
	for _, g := range grants {
		earned[g.AchievementID] = g
	}
	board := AchievementBoard{
		Achievements: make([]AchievementStatus, 0, len(catalog)),
		TotalCount:   len(catalog),
	}
	for _, a := range catalog {
		st := AchievementStatus{Achievement: a}
		if g, ok := earned[a.ID]; ok {
			at := g.EarnedAt
			st.IsEarned = true
			st.EarnedAt = &at
			board.EarnedCount++
		}
		board.Achievements = append(board.Achievements, st)
	}
	board.Completion = Progress(int64(board.EarnedCount), int64(board.TotalCount))
	return board
}
