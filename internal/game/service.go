package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"spaceexplorers/internal/events"
	"spaceexplorers/internal/metrics"

	"golang.org/x/sync/errgroup"
)

const (
	defaultEvaluationTimeout = 10 * time.Second
	publishTimeout           = 2 * time.Second
)

type Service struct {
	store       Store
	log         *slog.Logger
	bus         events.Publisher
	evalTimeout time.Duration
	evals       sync.WaitGroup
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.bus = p
		}
	}
}

func WithEvaluationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.evalTimeout = d
		}
	}
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       store,
		log:         logger,
		bus:         events.Nop{},
		evalTimeout: defaultEvaluationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until every in-flight background evaluation has finished.
func (s *Service) Wait() {
	s.evals.Wait()
}

func (s *Service) SeedCatalog(ctx context.Context) error {
	c, err := DefaultCatalog()
	if err != nil {
		return err
	}
	return s.store.SeedCatalog(ctx, c)
}

func (s *Service) EnsureUser(ctx context.Context, userID, email, username string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrUnauthorized
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = UsernameFromEmail(email)
	}
	if ValidateUsername(username) != nil {
		username = SanitizeUsername(username)
	}

	candidate := username
	for attempt := 0; attempt < 4; attempt++ {
		user, err := s.store.EnsureUser(ctx, userID, candidate)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrUsernameTaken) {
			return User{}, err
		}
		suffix, err := randomSuffix()
		if err != nil {
			return User{}, err
		}
		base := username
		if len(base) > 19 {
			base = base[:19]
		}
		candidate = base + "_" + suffix
	}
	return User{}, ErrUsernameTaken
}

func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.store.User(ctx, userID)
}

func (s *Service) UpdateUsername(ctx context.Context, userID, username string) (User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return User{}, err
	}
	return s.store.UpdateUsername(ctx, userID, username)
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return s.store.Leaderboard(ctx, limit)
}

func (s *Service) Journey(ctx context.Context, userID string) (Journey, error) {
	var (
		user       User
		planets    []Planet
		discovered []DiscoveredPlanet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.store.User(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		planets, err = s.store.Planets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		discovered, err = s.store.DiscoveredPlanets(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Journey{}, err
	}
	return BuildJourney(user, planets, discovered), nil
}

func (s *Service) Shop(ctx context.Context, userID, category string) ([]ShopItem, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	var (
		upgrades   []Upgrade
		owned      []OwnedUpgrade
		discovered []DiscoveredPlanet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		upgrades, err = s.store.Upgrades(gctx, category)
		return err
	})
	g.Go(func() error {
		var err error
		owned, err = s.store.OwnedUpgrades(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		discovered, err = s.store.DiscoveredPlanets(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return BuildShop(upgrades, owned, int64(len(discovered))), nil
}

func (s *Service) Spacecraft(ctx context.Context, userID string) (Spacecraft, error) {
	if _, err := s.store.User(ctx, userID); err != nil {
		return Spacecraft{}, err
	}
	owned, err := s.store.OwnedUpgrades(ctx, userID)
	if err != nil {
		return Spacecraft{}, err
	}
	return BuildSpacecraft(owned), nil
}

func (s *Service) Achievements(ctx context.Context, userID string) (AchievementBoard, error) {
	var (
		catalog []Achievement
		grants  []Grant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.store.User(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = s.store.Achievements(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = s.store.Grants(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return AchievementBoard{}, err
	}
	return BuildAchievementBoard(catalog, grants), nil
}

func (s *Service) Challenges(ctx context.Context) ([]ChallengeView, error) {
	return s.store.Challenges(ctx)
}

func (s *Service) CreateChallenge(ctx context.Context, userID, description string, points int64) (Challenge, error) {
	description = strings.TrimSpace(description)
	if err := ValidateChallenge(description, points); err != nil {
		return Challenge{}, err
	}
	return s.store.CreateChallenge(ctx, userID, description, points)
}

func (s *Service) UpdateChallenge(ctx context.Context, userID string, challengeID int64, description string, points int64) (Challenge, error) {
	description = strings.TrimSpace(description)
	if err := ValidateChallenge(description, points); err != nil {
		return Challenge{}, err
	}
	if err := s.requireCreator(ctx, userID, challengeID); err != nil {
		return Challenge{}, err
	}
	return s.store.UpdateChallenge(ctx, challengeID, description, points)
}

func (s *Service) DeleteChallenge(ctx context.Context, userID string, challengeID int64) error {
	if err := s.requireCreator(ctx, userID, challengeID); err != nil {
		return err
	}
	return s.store.DeleteChallenge(ctx, challengeID)
}

func (s *Service) requireCreator(ctx context.Context, userID string, challengeID int64) error {
	ch, err := s.store.Challenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if ch.CreatorID == "" || ch.CreatorID != userID {
		return ErrNotCreator
	}
	return nil
}

// Completions lists completions of a challenge, optionally only userID's.
func (s *Service) Completions(ctx context.Context, challengeID int64, userID string) ([]Completion, error) {
	if _, err := s.store.Challenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return s.store.Completions(ctx, challengeID, userID)
}

func (s *Service) CompleteChallenge(ctx context.Context, in CompleteChallengeInput) (CompletionResult, error) {
	var out CompletionResult
	in.Details = strings.TrimSpace(in.Details)
	if in.Details == "" {
		return out, fmt.Errorf("%w: details is required", ErrValidation)
	}

	start := time.Now()
	err := s.store.InUserTx(ctx, in.UserID, func(tx Tx, user User) error {
		ch, err := tx.Challenge(ctx, in.ChallengeID)
		if err != nil {
			return err
		}
		if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
			if err := tx.ClaimIdempotency(ctx, in.UserID, key, "challenge_completion"); err != nil {
				return err
			}
		}
		completion, err := tx.InsertCompletion(ctx, ch.ID, in.UserID, in.Details)
		if err != nil {
			return err
		}
		owned, err := tx.OwnedUpgrades(ctx, in.UserID)
		if err != nil {
			return err
		}
		multiplier := ComputeMultiplier(owned)
		reward := Award(ch.Points, multiplier)
		points := user.Points + reward
		if err := tx.SetPoints(ctx, in.UserID, points); err != nil {
			return err
		}
		out = CompletionResult{
			Completion: completion,
			Reward:     reward,
			Multiplier: multiplier,
			Points:     points,
		}
		return nil
	})
	s.finish("complete_challenge", start, err)
	if err != nil {
		return CompletionResult{}, err
	}

	metrics.RecordPoints("challenge", out.Reward)
	s.publish(ctx, events.New(events.TypeChallengeCompleted, in.UserID, out))
	s.triggerEvaluation(ctx, in.UserID)
	return out, nil
}

func (s *Service) DiscoverPlanet(ctx context.Context, userID string, planetID int64) (DiscoveryResult, error) {
	var out DiscoveryResult
	start := time.Now()
	err := s.store.InUserTx(ctx, userID, func(tx Tx, user User) error {
		seen, err := tx.HasDiscovered(ctx, userID, planetID)
		if err != nil {
			return err
		}
		if seen {
			return ErrAlreadyDiscovered
		}
		planet, err := tx.Planet(ctx, planetID)
		if err != nil {
			return err
		}
		if user.Points < planet.FuelRequired {
			return &InsufficientFundsError{Required: planet.FuelRequired, Current: user.Points}
		}
		created, err := tx.InsertDiscovery(ctx, userID, planetID)
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyDiscovered
		}
		owned, err := tx.OwnedUpgrades(ctx, userID)
		if err != nil {
			return err
		}
		reward := Award(planet.DiscoveryReward, ComputeMultiplier(owned))
		points := user.Points - planet.FuelRequired + reward
		if err := tx.SetPoints(ctx, userID, points); err != nil {
			return err
		}
		out = DiscoveryResult{
			Planet:       planet,
			BonusReward:  reward,
			NewFuelTotal: points,
		}
		return nil
	})
	s.finish("discover_planet", start, err)
	if err != nil {
		return DiscoveryResult{}, err
	}

	metrics.RecordPoints("discovery", out.BonusReward)
	s.publish(ctx, events.New(events.TypePlanetDiscovered, userID, out))
	s.triggerEvaluation(ctx, userID)
	return out, nil
}

func (s *Service) PurchaseUpgrade(ctx context.Context, userID string, upgradeID int64) (PurchaseResult, error) {
	var out PurchaseResult
	start := time.Now()
	err := s.store.InUserTx(ctx, userID, func(tx Tx, user User) error {
		owns, err := tx.OwnsUpgrade(ctx, userID, upgradeID)
		if err != nil {
			return err
		}
		if owns {
			return ErrAlreadyOwned
		}
		upgrade, err := tx.Upgrade(ctx, upgradeID)
		if err != nil {
			return err
		}
		discovered, err := tx.DiscoveredCount(ctx, userID)
		if err != nil {
			return err
		}
		if IsLocked(upgrade, discovered) {
			return &LockedError{Required: upgrade.UnlockRequirement, Current: discovered}
		}
		if user.Points < upgrade.Price {
			return &InsufficientFundsError{Required: upgrade.Price, Current: user.Points}
		}
		points := user.Points - upgrade.Price
		if err := tx.SetPoints(ctx, userID, points); err != nil {
			return err
		}
		created, err := tx.InsertOwnership(ctx, userID, upgradeID, true)
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyOwned
		}
		out = PurchaseResult{
			UpgradeID:     upgrade.ID,
			Upgrade:       upgrade.Name,
			Cost:          upgrade.Price,
			RemainingFuel: points,
		}
		return nil
	})
	s.finish("purchase_upgrade", start, err)
	if err != nil {
		return PurchaseResult{}, err
	}

	s.publish(ctx, events.New(events.TypeUpgradePurchased, userID, out))
	s.triggerEvaluation(ctx, userID)
	return out, nil
}

func (s *Service) ToggleEquip(ctx context.Context, userID string, upgradeID int64, equipped bool) error {
	start := time.Now()
	ok, err := s.store.SetEquipped(ctx, userID, upgradeID, equipped)
	if err == nil && !ok {
		err = ErrOwnershipNotFound
	}
	s.finish("toggle_equip", start, err)
	if err != nil {
		return err
	}
	s.publish(ctx, events.New(events.TypeUpgradeToggled, userID, map[string]any{
		"upgrade_id":  upgradeID,
		"is_equipped": equipped,
	}))
	return nil
}

// EvaluateAchievements grants every newly qualifying achievement and
// credits the summed reward of the grants it actually created in one
// balance update.
func (s *Service) EvaluateAchievements(ctx context.Context, userID string) (EvaluationResult, error) {
	var out EvaluationResult
	err := s.store.InUserTx(ctx, userID, func(tx Tx, user User) error {
		out = EvaluationResult{}
		stats, err := tx.Stats(ctx, userID)
		if err != nil {
			return fmt.Errorf("user stats: %w", err)
		}
		catalog, err := tx.Achievements(ctx)
		if err != nil {
			return fmt.Errorf("achievement catalog: %w", err)
		}
		granted, err := tx.GrantedIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("granted achievements: %w", err)
		}

		for _, a := range Evaluate(stats, catalog, granted) {
			created, err := tx.InsertGrant(ctx, userID, a.ID)
			if err != nil {
				return err
			}
			if created {
				out.Granted = append(out.Granted, a)
			}
		}
		out.BonusPoints = TotalReward(out.Granted)
		if out.BonusPoints == 0 {
			return nil
		}
		return tx.SetPoints(ctx, userID, user.Points+out.BonusPoints)
	})
	if err != nil {
		metrics.RecordEvaluation("error", 0)
		return EvaluationResult{}, err
	}

	metrics.RecordEvaluation("ok", len(out.Granted))
	metrics.RecordPoints("achievement", out.BonusPoints)
	for _, a := range out.Granted {
		s.publish(ctx, events.New(events.TypeAchievementGranted, userID, a))
	}
	return out, nil
}

// SweepAchievements re-evaluates every user. Per-user failures are logged
// and skipped.
func (s *Service) SweepAchievements(ctx context.Context, concurrency int) (users int, granted int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordSweep(time.Since(start)) }()

	ids, err := s.store.UserIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	if concurrency <= 0 {
		concurrency = 8
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.EvaluateAchievements(gctx, id)
			if err != nil {
				s.log.Warn("sweep evaluation failed", "user_id", id, "err", err)
				return nil
			}
			total.Add(int64(len(res.Granted)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(ids), total.Load(), err
	}
	return len(ids), total.Load(), nil
}

func (s *Service) triggerEvaluation(ctx context.Context, userID string) {
	s.evals.Add(1)
	go func() {
		defer s.evals.Done()
		evalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.evalTimeout)
		defer cancel()
		if _, err := s.EvaluateAchievements(evalCtx, userID); err != nil {
			s.log.Warn("achievement evaluation failed", "user_id", userID, "err", err)
		}
	}()
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := s.bus.Publish(pubCtx, ev)
	metrics.RecordEvent(ev.Type, err)
	if err != nil {
		s.log.Warn("event publish failed", "type", ev.Type, "user_id", ev.UserID, "err", err)
	}
}

func (s *Service) finish(kind string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case isRejection(err):
		outcome = "rejected"
	default:
		outcome = "error"
		s.log.Error("transaction failed", "kind", kind, "err", err)
	}
	metrics.RecordTransaction(kind, outcome, time.Since(start))
}

func isRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrValidation)
}

func randomSuffix() (string, error) {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
