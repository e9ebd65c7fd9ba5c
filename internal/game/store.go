package game

import "context"

// Store is the persistence collaborator. Reads run outside any user lock;
// every economic mutation goes through InUserTx.
type Store interface {
	EnsureUser(ctx context.Context, userID, username string) (User, error)
	User(ctx context.Context, userID string) (User, error)
	UpdateUsername(ctx context.Context, userID, username string) (User, error)
	UserIDs(ctx context.Context) ([]string, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)

	Planets(ctx context.Context) ([]Planet, error)
	Upgrades(ctx context.Context, category string) ([]Upgrade, error)
	Achievements(ctx context.Context) ([]Achievement, error)
	DiscoveredPlanets(ctx context.Context, userID string) ([]DiscoveredPlanet, error)
	OwnedUpgrades(ctx context.Context, userID string) ([]OwnedUpgrade, error)
	Grants(ctx context.Context, userID string) ([]Grant, error)
	SetEquipped(ctx context.Context, userID string, upgradeID int64, equipped bool) (bool, error)

	Challenges(ctx context.Context) ([]ChallengeView, error)
	Challenge(ctx context.Context, challengeID int64) (Challenge, error)
	CreateChallenge(ctx context.Context, creatorID, description string, points int64) (Challenge, error)
	UpdateChallenge(ctx context.Context, challengeID int64, description string, points int64) (Challenge, error)
	DeleteChallenge(ctx context.Context, challengeID int64) error
	Completions(ctx context.Context, challengeID int64, userID string) ([]Completion, error)

	SeedCatalog(ctx context.Context, c Catalog) error

	// InUserTx locks the user's row and runs fn in one atomic unit. fn's
	// writes are discarded when it returns an error.
	InUserTx(ctx context.Context, userID string, fn func(tx Tx, user User) error) error
}

// Tx is the set of reads and writes available inside a locked user
// transaction.
type Tx interface {
	Challenge(ctx context.Context, challengeID int64) (Challenge, error)
	Planet(ctx context.Context, planetID int64) (Planet, error)
	Upgrade(ctx context.Context, upgradeID int64) (Upgrade, error)
	Achievements(ctx context.Context) ([]Achievement, error)

	HasDiscovered(ctx context.Context, userID string, planetID int64) (bool, error)
	OwnsUpgrade(ctx context.Context, userID string, upgradeID int64) (bool, error)
	DiscoveredCount(ctx context.Context, userID string) (int64, error)
	OwnedUpgrades(ctx context.Context, userID string) ([]OwnedUpgrade, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	GrantedIDs(ctx context.Context, userID string) (map[int64]struct{}, error)

	ClaimIdempotency(ctx context.Context, userID, key, action string) error
	InsertCompletion(ctx context.Context, challengeID int64, userID, details string) (Completion, error)
	InsertDiscovery(ctx context.Context, userID string, planetID int64) (bool, error)
	InsertOwnership(ctx context.Context, userID string, upgradeID int64, equipped bool) (bool, error)
	InsertGrant(ctx context.Context, userID string, achievementID int64) (bool, error)
	SetPoints(ctx context.Context, userID string, points int64) error
}
