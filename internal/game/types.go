package game

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        string    `json:"user_id"`
	Username  string    `json:"username"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type Planet struct {
	ID              int64  `json:"planet_id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description" yaml:"description"`
	FuelRequired    int64  `json:"fuel_required" yaml:"fuel_required"`
	DiscoveryReward int64  `json:"discovery_reward" yaml:"discovery_reward"`
	Rarity          string `json:"rarity" yaml:"rarity"`
	OrderIndex      int64  `json:"order_index" yaml:"order_index"`
}

type DiscoveredPlanet struct {
	Planet
	DiscoveredAt time.Time `json:"discovered_at"`
}

type Upgrade struct {
	ID                int64           `json:"upgrade_id" yaml:"id"`
	Name              string          `json:"name" yaml:"name"`
	Description       string          `json:"description" yaml:"description"`
	Category          string          `json:"category" yaml:"category"`
	Price             int64           `json:"price" yaml:"price"`
	Rarity            string          `json:"rarity" yaml:"rarity"`
	PointsMultiplier  decimal.Decimal `json:"points_multiplier" yaml:"points_multiplier"`
	UnlockRequirement int64           `json:"unlock_requirement" yaml:"unlock_requirement"`
}

type OwnedUpgrade struct {
	Upgrade
	IsEquipped  bool      `json:"is_equipped"`
	PurchasedAt time.Time `json:"purchased_at"`
}

type Achievement struct {
	ID               int64  `json:"achievement_id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description" yaml:"description"`
	Icon             string `json:"icon" yaml:"icon"`
	RequirementType  string `json:"requirement_type" yaml:"requirement_type"`
	RequirementValue int64  `json:"requirement_value" yaml:"requirement_value"`
	RewardPoints     int64  `json:"reward_points" yaml:"reward_points"`
}

type Grant struct {
	AchievementID int64     `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

type Challenge struct {
	ID          int64     `json:"challenge_id" yaml:"id"`
	CreatorID   string    `json:"creator_id,omitempty" yaml:"-"`
	Description string    `json:"description" yaml:"description"`
	Points      int64     `json:"points" yaml:"points"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

type ChallengeView struct {
	Challenge
	CompletionCount int64 `json:"completion_count"`
}

type Completion struct {
	ID          int64     `json:"completion_id"`
	ChallengeID int64     `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Details     string    `json:"details"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats is the snapshot the achievement evaluator compares against.
type Stats struct {
	Points              int64 `json:"points"`
	PlanetsDiscovered   int64 `json:"planets_discovered"`
	ChallengesCompleted int64 `json:"challenges_completed"`
	UpgradesOwned       int64 `json:"upgrades_owned"`
}

type LeaderboardRow struct {
	Rank     int64  `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
}

type CompleteChallengeInput struct {
	UserID         string
	ChallengeID    int64
	Details        string
	IdempotencyKey string
}

type CompletionResult struct {
	Completion Completion      `json:"completion"`
	Reward     int64           `json:"reward"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Points     int64           `json:"points"`
}

type DiscoveryResult struct {
	Planet       Planet `json:"planet"`
	BonusReward  int64  `json:"bonus_reward"`
	NewFuelTotal int64  `json:"new_fuel_total"`
}

type PurchaseResult struct {
	UpgradeID     int64  `json:"upgrade_id"`
	Upgrade       string `json:"upgrade"`
	Cost          int64  `json:"cost"`
	RemainingFuel int64  `json:"remaining_fuel"`
}

type EvaluationResult struct {
	Granted     []Achievement `json:"granted"`
	BonusPoints int64         `json:"bonus_points"`
}

type JourneyUser struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	Fuel     int64  `json:"fuel"`
}

type Journey struct {
	User              JourneyUser        `json:"user"`
	DiscoveredPlanets []DiscoveredPlanet `json:"discovered_planets"`
	NextPlanet        *Planet            `json:"next_planet"`
	CanDiscoverNext   bool               `json:"can_discover_next"`
	TotalPlanets      int                `json:"total_planets"`
	DiscoveryProgress string             `json:"discovery_progress"`
}

type ShopItem struct {
	Upgrade
	IsOwned        bool   `json:"is_owned"`
	IsLocked       bool   `json:"is_locked"`
	UnlockProgress string `json:"unlock_progress"`
}

type Spacecraft struct {
	Upgrades         map[string][]OwnedUpgrade `json:"upgrades"`
	TotalUpgrades    int                       `json:"total_upgrades"`
	PointsMultiplier string                    `json:"points_multiplier"`
	EquippedCount    int                       `json:"equipped_count"`
}

type AchievementStatus struct {
	Achievement
	IsEarned bool       `json:"is_earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

type AchievementBoard struct {
	Achievements []AchievementStatus `json:"achievements"`
	EarnedCount  int                 `json:"earned_count"`
	TotalCount   int                 `json:"total_count"`
	Completion   string              `json:"completion"`
}
