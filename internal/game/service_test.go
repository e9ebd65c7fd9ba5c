package game_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"spaceexplorers/internal/events"
	"spaceexplorers/internal/game"
	"spaceexplorers/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService(t *testing.T) (*game.Service, *store.Memory, *recorder) {
	t.Helper()
	mem := store.NewMemory()
	rec := &recorder{}
	svc := game.NewService(mem, slog.New(slog.NewTextHandler(io.Discard, nil)), game.WithPublisher(rec))
	require.NoError(t, svc.SeedCatalog(context.Background()))
	t.Cleanup(svc.Wait)
	return svc, mem, rec
}

func newPilot(t *testing.T, svc *game.Service, mem *store.Memory, id string, points int64) {
	t.Helper()
	_, err := svc.EnsureUser(context.Background(), id, id+"@example.com", "")
	require.NoError(t, err)
	mem.SetPoints(id, points)
}

func stageDiscoveries(t *testing.T, mem *store.Memory, userID string, planetIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	err := mem.InUserTx(ctx, userID, func(tx game.Tx, _ game.User) error {
		for _, id := range planetIDs {
			if _, err := tx.InsertDiscovery(ctx, userID, id); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestEnsureUserDerivesUsername(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.EnsureUser(ctx, "u1", "star.pilot@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "star_pilot", u.Username)
	assert.Zero(t, u.Points)

	again, err := svc.EnsureUser(ctx, "u1", "other@example.com", "renamed")
	require.NoError(t, err)
	assert.Equal(t, "star_pilot", again.Username, "existing users are returned unchanged")

	clash, err := svc.EnsureUser(ctx, "u2", "star.pilot@elsewhere.com", "")
	require.NoError(t, err)
	assert.NotEqual(t, "star_pilot", clash.Username)
	assert.Contains(t, clash.Username, "star_pilot_")

	_, err = svc.EnsureUser(ctx, "", "x@example.com", "")
	assert.ErrorIs(t, err, game.ErrUnauthorized)
}

func TestUpdateUsername(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 0)
	newPilot(t, svc, mem, "u2", 0)

	u, err := svc.UpdateUsername(ctx, "u1", "rogue_leader")
	require.NoError(t, err)
	assert.Equal(t, "rogue_leader", u.Username)

	_, err = svc.UpdateUsername(ctx, "u2", "Rogue_Leader")
	assert.ErrorIs(t, err, game.ErrUsernameTaken)

	_, err = svc.UpdateUsername(ctx, "u2", "no")
	assert.ErrorIs(t, err, game.ErrValidation)
}

func TestDiscoverPlanetDebitsAndRewards(t *testing.T) {
	svc, mem, rec := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 100)

	out, err := svc.DiscoverPlanet(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, "Tatooine", out.Planet.Name)
	assert.EqualValues(t, 20, out.BonusReward)
	assert.EqualValues(t, 70, out.NewFuelTotal)

	svc.Wait()
	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 80, u.Points, "First Launch adds 10")
	assert.Contains(t, rec.types(), events.TypePlanetDiscovered)
	assert.Contains(t, rec.types(), events.TypeAchievementGranted)

	_, err = svc.DiscoverPlanet(ctx, "u1", 2)
	assert.ErrorIs(t, err, game.ErrAlreadyDiscovered)
	assert.ErrorIs(t, err, game.ErrConflict)
}

func TestDiscoverPlanetInsufficientFuel(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 40)

	_, err := svc.DiscoverPlanet(ctx, "u1", 2)
	var funds *game.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.EqualValues(t, 50, funds.Required)
	assert.EqualValues(t, 40, funds.Current)
	assert.ErrorIs(t, err, game.ErrInsufficientFunds)

	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 40, u.Points)

	j, err := svc.Journey(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, j.DiscoveredPlanets)
}

func TestDiscoverUnknownPlanet(t *testing.T) {
	svc, mem, _ := newTestService(t)
	newPilot(t, svc, mem, "u1", 100)
	_, err := svc.DiscoverPlanet(context.Background(), "u1", 404)
	assert.ErrorIs(t, err, game.ErrPlanetNotFound)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestPurchaseUpgrade(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 100)

	_, err := svc.PurchaseUpgrade(ctx, "u1", 2)
	var locked *game.LockedError
	require.ErrorAs(t, err, &locked)
	assert.EqualValues(t, 3, locked.Required)
	assert.EqualValues(t, 0, locked.Current)

	out, err := svc.PurchaseUpgrade(ctx, "u1", 7)
	require.NoError(t, err)
	assert.Equal(t, "Golden Paint", out.Upgrade)
	assert.EqualValues(t, 25, out.Cost)
	assert.EqualValues(t, 75, out.RemainingFuel)

	_, err = svc.PurchaseUpgrade(ctx, "u1", 7)
	assert.ErrorIs(t, err, game.ErrAlreadyOwned)

	svc.Wait()
	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 75, u.Points, "failed purchases leave the balance alone")

	craft, err := svc.Spacecraft(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, craft.TotalUpgrades)
	assert.Equal(t, 1, craft.EquippedCount)
	assert.Equal(t, "1.00x", craft.PointsMultiplier)
}

func TestPurchaseUnknownUpgrade(t *testing.T) {
	svc, mem, _ := newTestService(t)
	newPilot(t, svc, mem, "u1", 1000)

	_, err := svc.PurchaseUpgrade(context.Background(), "u1", 404)
	assert.ErrorIs(t, err, game.ErrUpgradeNotFound)
	assert.ErrorIs(t, err, game.ErrNotFound)

	u, err := svc.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, u.Points)
}

func TestPurchaseOwnedBeforeLockCheck(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 0)
	err := mem.InUserTx(ctx, "u1", func(tx game.Tx, _ game.User) error {
		_, err := tx.InsertOwnership(ctx, "u1", 2, true)
		return err
	})
	require.NoError(t, err)

	// Warp Drive needs three planets and costs 200; ownership wins anyway.
	_, err = svc.PurchaseUpgrade(ctx, "u1", 2)
	assert.ErrorIs(t, err, game.ErrAlreadyOwned)
	assert.ErrorIs(t, err, game.ErrConflict)
	var locked *game.LockedError
	assert.False(t, errors.As(err, &locked))
}

func TestPurchaseInsufficientFuel(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 10)
	stageDiscoveries(t, mem, "u1", 1)

	_, err := svc.PurchaseUpgrade(ctx, "u1", 1)
	var funds *game.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.EqualValues(t, 50, funds.Required)
	assert.EqualValues(t, 10, funds.Current)
}

func TestCompleteChallengeAppliesMultiplier(t *testing.T) {
	svc, mem, rec := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 1000)
	stageDiscoveries(t, mem, "u1", 1, 2, 3)

	_, err := svc.PurchaseUpgrade(ctx, "u1", 1)
	require.NoError(t, err)
	_, err = svc.PurchaseUpgrade(ctx, "u1", 2)
	require.NoError(t, err)
	svc.Wait()

	before, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)

	out, err := svc.CompleteChallenge(ctx, game.CompleteChallengeInput{
		UserID:      "u1",
		ChallengeID: 1,
		Details:     "slept eight hours",
	})
	require.NoError(t, err)
	assert.True(t, out.Multiplier.Equal(decimal.RequireFromString("1.43")), "got %s", out.Multiplier)
	assert.EqualValues(t, 14, out.Reward)
	assert.Equal(t, before.Points+14, out.Points)
	assert.Equal(t, "slept eight hours", out.Completion.Details)
	assert.Contains(t, rec.types(), events.TypeChallengeCompleted)

	require.NoError(t, svc.ToggleEquip(ctx, "u1", 2, false))
	out, err = svc.CompleteChallenge(ctx, game.CompleteChallengeInput{UserID: "u1", ChallengeID: 2, Details: "stairs"})
	require.NoError(t, err)
	assert.EqualValues(t, 22, out.Reward, "20 x 1.10 with warp drive unequipped")
}

func TestCompleteChallengeValidation(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 0)

	_, err := svc.CompleteChallenge(ctx, game.CompleteChallengeInput{UserID: "u1", ChallengeID: 1, Details: "  "})
	assert.ErrorIs(t, err, game.ErrValidation)

	_, err = svc.CompleteChallenge(ctx, game.CompleteChallengeInput{UserID: "u1", ChallengeID: 999, Details: "x"})
	assert.ErrorIs(t, err, game.ErrChallengeNotFound)

	_, err = svc.CompleteChallenge(ctx, game.CompleteChallengeInput{UserID: "ghost", ChallengeID: 1, Details: "x"})
	assert.ErrorIs(t, err, game.ErrUserNotFound)
}

func TestCompleteChallengeIdempotency(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 0)
	newPilot(t, svc, mem, "u2", 0)

	in := game.CompleteChallengeInput{UserID: "u1", ChallengeID: 1, Details: "walked", IdempotencyKey: "k-1"}
	first, err := svc.CompleteChallenge(ctx, in)
	require.NoError(t, err)
	assert.EqualValues(t, 10, first.Points)

	_, err = svc.CompleteChallenge(ctx, in)
	assert.ErrorIs(t, err, game.ErrDuplicateIdempotency)

	in.UserID = "u2"
	_, err = svc.CompleteChallenge(ctx, in)
	assert.NoError(t, err, "keys are scoped per user")

	rows, err := svc.Completions(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	all, err := svc.Completions(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestChallengeOwnership(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 0)
	newPilot(t, svc, mem, "u2", 0)

	ch, err := svc.CreateChallenge(ctx, "u1", "  Drink water  ", 5)
	require.NoError(t, err)
	assert.Equal(t, "Drink water", ch.Description)
	assert.Greater(t, ch.ID, int64(7), "ids continue after the seeded challenges")

	_, err = svc.CreateChallenge(ctx, "u1", "Too generous", 51)
	assert.ErrorIs(t, err, game.ErrValidation)

	_, err = svc.UpdateChallenge(ctx, "u2", ch.ID, "Hijacked", 50)
	assert.ErrorIs(t, err, game.ErrNotCreator)
	assert.ErrorIs(t, err, game.ErrForbidden)

	_, err = svc.UpdateChallenge(ctx, "u1", 1, "Seeded", 10)
	assert.ErrorIs(t, err, game.ErrForbidden, "seeded challenges have no creator")

	updated, err := svc.UpdateChallenge(ctx, "u1", ch.ID, "Drink more water", 8)
	require.NoError(t, err)
	assert.EqualValues(t, 8, updated.Points)

	_, err = svc.CompleteChallenge(ctx, game.CompleteChallengeInput{UserID: "u2", ChallengeID: ch.ID, Details: "done"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteChallenge(ctx, "u1", ch.ID), game.ErrChallengeInUse)

	other, err := svc.CreateChallenge(ctx, "u1", "Stretch", 3)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteChallenge(ctx, "u2", other.ID), game.ErrNotCreator)
	require.NoError(t, svc.DeleteChallenge(ctx, "u1", other.ID))
	assert.ErrorIs(t, svc.DeleteChallenge(ctx, "u1", other.ID), game.ErrChallengeNotFound)

	views, err := svc.Challenges(ctx)
	require.NoError(t, err)
	for _, v := range views {
		if v.ID == ch.ID {
			assert.EqualValues(t, 1, v.CompletionCount)
		}
	}
}

func TestEvaluateAchievementsGrantsOnce(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 0)
	stageDiscoveries(t, mem, "u1", 1)

	res, err := svc.EvaluateAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, res.Granted, 1)
	assert.Equal(t, "First Launch", res.Granted[0].Name)
	assert.EqualValues(t, 10, res.BonusPoints)

	res, err = svc.EvaluateAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, res.Granted)
	assert.Zero(t, res.BonusPoints)

	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, u.Points)

	board, err := svc.Achievements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1/11", board.Completion)
}

func TestEvaluateAchievementsSumsRewards(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 100)
	stageDiscoveries(t, mem, "u1", 1, 2, 3)

	res, err := svc.EvaluateAchievements(ctx, "u1")
	require.NoError(t, err)
	// First Launch, Explorer and Fuel Collector.
	assert.Len(t, res.Granted, 3)
	assert.EqualValues(t, 85, res.BonusPoints)

	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 185, u.Points)
}

func TestSweepAchievements(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		newPilot(t, svc, mem, id, 0)
	}
	stageDiscoveries(t, mem, "a", 1)
	stageDiscoveries(t, mem, "b", 1)

	users, granted, err := svc.SweepAchievements(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, users)
	assert.EqualValues(t, 2, granted)

	_, granted, err = svc.SweepAchievements(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, granted)
}

func TestToggleEquip(t *testing.T) {
	svc, mem, rec := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 100)

	err := svc.ToggleEquip(ctx, "u1", 7, true)
	assert.ErrorIs(t, err, game.ErrOwnershipNotFound)
	assert.True(t, errors.Is(err, game.ErrNotFound))

	_, err = svc.PurchaseUpgrade(ctx, "u1", 7)
	require.NoError(t, err)
	require.NoError(t, svc.ToggleEquip(ctx, "u1", 7, false))

	craft, err := svc.Spacecraft(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, craft.EquippedCount)
	assert.Contains(t, rec.types(), events.TypeUpgradeToggled)
}

func TestShopAndJourneyViews(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 60)
	stageDiscoveries(t, mem, "u1", 1)

	items, err := svc.Shop(ctx, "u1", "ENGINE")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, game.CategoryEngine, it.Category)
	}
	assert.False(t, items[0].IsLocked)
	assert.True(t, items[1].IsLocked)

	_, err = svc.Shop(ctx, "u1", "weapons")
	assert.ErrorIs(t, err, game.ErrValidation)

	j, err := svc.Journey(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, j.NextPlanet)
	assert.Equal(t, "Tatooine", j.NextPlanet.Name)
	assert.True(t, j.CanDiscoverNext)
	assert.Equal(t, "1/10", j.DiscoveryProgress)

	_, err = svc.Journey(ctx, "ghost")
	assert.ErrorIs(t, err, game.ErrUserNotFound)
}

func TestLeaderboardClampsLimit(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "low", 10)
	newPilot(t, svc, mem, "high", 500)

	rows, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "high", rows[0].UserID)
	assert.EqualValues(t, 1, rows[0].Rank)

	rows, err = svc.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type brokenStats struct {
	*store.Memory
}

func (b brokenStats) InUserTx(ctx context.Context, userID string, fn func(tx game.Tx, user game.User) error) error {
	return b.Memory.InUserTx(ctx, userID, func(tx game.Tx, user game.User) error {
		return fn(brokenStatsTx{tx}, user)
	})
}

type brokenStatsTx struct {
	game.Tx
}

func (brokenStatsTx) Stats(context.Context, string) (game.Stats, error) {
	return game.Stats{}, errors.New("stats unavailable")
}

func TestEvaluationFailureDoesNotFailDiscovery(t *testing.T) {
	mem := store.NewMemory()
	svc := game.NewService(brokenStats{mem}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	require.NoError(t, svc.SeedCatalog(ctx))
	newPilot(t, svc, mem, "u1", 100)

	out, err := svc.DiscoverPlanet(ctx, "u1", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 70, out.NewFuelTotal)
	svc.Wait()

	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 70, u.Points, "no achievement credit")

	grants, err := mem.Grants(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, grants)

	_, err = svc.EvaluateAchievements(ctx, "u1")
	assert.ErrorContains(t, err, "stats unavailable")
}

func TestConcurrentDiscoverChargesOnce(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 60)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.DiscoverPlanet(ctx, "u1", 2)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
			assert.EqualValues(t, 30, out.NewFuelTotal)
		}()
	}
	wg.Wait()
	svc.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, n-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, game.ErrAlreadyDiscovered)
	}

	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	// 60 - 50 + 20, then First Launch.
	assert.EqualValues(t, 40, u.Points)
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	newPilot(t, svc, mem, "u1", 60)
	stageDiscoveries(t, mem, "u1", 1)

	// Ion Engine (50) and Golden Paint (25) together cost more than 60.
	ids := []int64{1, 7, 1, 7, 1, 7, 1, 7, 1, 7}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid []game.PurchaseResult
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			out, err := svc.PurchaseUpgrade(ctx, "u1", id)
			if err != nil {
				if !errors.Is(err, game.ErrAlreadyOwned) && !errors.Is(err, game.ErrInsufficientFunds) {
					t.Errorf("unexpected purchase error: %v", err)
				}
				return
			}
			mu.Lock()
			paid = append(paid, out)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	svc.Wait()

	require.Len(t, paid, 1)
	assert.Equal(t, 60-paid[0].Cost, paid[0].RemainingFuel)
	assert.GreaterOrEqual(t, paid[0].RemainingFuel, int64(0))

	craft, err := svc.Spacecraft(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, craft.TotalUpgrades)

	u, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	// First Launch credits 10 after the purchase.
	assert.Equal(t, paid[0].RemainingFuel+10, u.Points)
}
