package game

import (
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	catalog := []Achievement{
		{ID: 1, RequirementType: RequirementPlanets, RequirementValue: 1, RewardPoints: 10},
		{ID: 2, RequirementType: RequirementPlanets, RequirementValue: 3, RewardPoints: 50},
		{ID: 5, RequirementType: RequirementPoints, RequirementValue: 100, RewardPoints: 25},
		{ID: 8, RequirementType: RequirementChallenges, RequirementValue: 10, RewardPoints: 75},
		{ID: 10, RequirementType: RequirementUpgrades, RequirementValue: 5, RewardPoints: 100},
		{ID: 99, RequirementType: "streak", RequirementValue: 0, RewardPoints: 1},
	}
	stats := Stats{Points: 100, PlanetsDiscovered: 3, ChallengesCompleted: 9, UpgradesOwned: 5}

	got := Evaluate(stats, catalog, map[int64]struct{}{1: {}})
	ids := make([]int64, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	want := []int64{2, 5, 10}
	if len(ids) != len(want) {
		t.Fatalf("got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v want %v", ids, want)
		}
	}
	if total := TotalReward(got); total != 175 {
		t.Fatalf("total reward %d", total)
	}
}

func TestEvaluateNothingNew(t *testing.T) {
	catalog := []Achievement{{ID: 1, RequirementType: RequirementPlanets, RequirementValue: 1, RewardPoints: 10}}
	if got := Evaluate(Stats{}, catalog, nil); len(got) != 0 {
		t.Fatalf("expected nothing for empty stats, got %d", len(got))
	}
	if got := Evaluate(Stats{PlanetsDiscovered: 4}, catalog, map[int64]struct{}{1: {}}); len(got) != 0 {
		t.Fatalf("expected nothing once granted, got %d", len(got))
	}
}

func TestBuildAchievementBoard(t *testing.T) {
	catalog := []Achievement{{ID: 1, Name: "First Launch"}, {ID: 2, Name: "Explorer"}, {ID: 3, Name: "Star Voyager"}}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	board := BuildAchievementBoard(catalog, []Grant{{AchievementID: 2, EarnedAt: at}})

	if board.EarnedCount != 1 || board.TotalCount != 3 || board.Completion != "1/3" {
		t.Fatalf("unexpected counts: %+v", board)
	}
	if board.Achievements[0].IsEarned || board.Achievements[0].EarnedAt != nil {
		t.Fatal("achievement 1 should not be earned")
	}
	if !board.Achievements[1].IsEarned || !board.Achievements[1].EarnedAt.Equal(at) {
		t.Fatal("achievement 2 should carry its earned time")
	}
}
