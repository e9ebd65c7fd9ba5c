package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spaceexplorers/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	_ game.Store = (*Postgres)(nil)
	_ game.Store = (*Memory)(nil)
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, log: logger}
}

func (p *Postgres) EnsureUser(ctx context.Context, userID, username string) (game.User, error) {
	_, err := p.db.Exec(ctx, `
		INSERT INTO space.users (user_id, username)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, username)
	if err != nil {
		if isUniqueViolation(err, "users_username_lower_idx") {
			return game.User{}, game.ErrUsernameTaken
		}
		return game.User{}, err
	}
	return p.User(ctx, userID)
}

func (p *Postgres) User(ctx context.Context, userID string) (game.User, error) {
	return scanUser(p.db.QueryRow(ctx, `
		SELECT user_id, username, points, created_at
		FROM space.users
		WHERE user_id = $1
	`, userID))
}

func (p *Postgres) UpdateUsername(ctx context.Context, userID, username string) (game.User, error) {
	u, err := scanUser(p.db.QueryRow(ctx, `
		UPDATE space.users
		SET username = $2, updated_at = now()
		WHERE user_id = $1
		RETURNING user_id, username, points, created_at
	`, userID, username))
	if isUniqueViolation(err, "users_username_lower_idx") {
		return game.User{}, game.ErrUsernameTaken
	}
	return u, err
}

func (p *Postgres) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT user_id FROM space.users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	rows, err := p.db.Query(ctx, `
		SELECT user_id, username, points
		FROM space.users
		ORDER BY points DESC, username ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.LeaderboardRow
	var rank int64 = 1
	for rows.Next() {
		var r game.LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Username, &r.Points); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Planets(ctx context.Context) ([]game.Planet, error) {
	rows, err := p.db.Query(ctx, `
		SELECT planet_id, name, description, fuel_required, discovery_reward, rarity, order_index
		FROM space.planets
		ORDER BY order_index, planet_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Planet
	for rows.Next() {
		var pl game.Planet
		if err := rows.Scan(&pl.ID, &pl.Name, &pl.Description, &pl.FuelRequired, &pl.DiscoveryReward, &pl.Rarity, &pl.OrderIndex); err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *Postgres) Upgrades(ctx context.Context, category string) ([]game.Upgrade, error) {
	rows, err := p.db.Query(ctx, `
		SELECT upgrade_id, name, description, category, price, rarity, points_multiplier::text, unlock_requirement
		FROM space.upgrades
		WHERE $1 = '' OR category = $1
		ORDER BY price, upgrade_id
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Upgrade
	for rows.Next() {
		u, err := scanUpgrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) Achievements(ctx context.Context) ([]game.Achievement, error) {
	return listAchievements(ctx, p.db)
}

func (p *Postgres) DiscoveredPlanets(ctx context.Context, userID string) ([]game.DiscoveredPlanet, error) {
	rows, err := p.db.Query(ctx, `
		SELECT pl.planet_id, pl.name, pl.description, pl.fuel_required, pl.discovery_reward,
		       pl.rarity, pl.order_index, d.discovered_at
		FROM space.discoveries d
		JOIN space.planets pl ON pl.planet_id = d.planet_id
		WHERE d.user_id = $1
		ORDER BY pl.order_index
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.DiscoveredPlanet
	for rows.Next() {
		var d game.DiscoveredPlanet
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.FuelRequired, &d.DiscoveryReward, &d.Rarity, &d.OrderIndex, &d.DiscoveredAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) OwnedUpgrades(ctx context.Context, userID string) ([]game.OwnedUpgrade, error) {
	return listOwned(ctx, p.db, userID)
}

func (p *Postgres) Grants(ctx context.Context, userID string) ([]game.Grant, error) {
	rows, err := p.db.Query(ctx, `
		SELECT achievement_id, earned_at
		FROM space.grants
		WHERE user_id = $1
		ORDER BY achievement_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Grant
	for rows.Next() {
		var g game.Grant
		if err := rows.Scan(&g.AchievementID, &g.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (p *Postgres) SetEquipped(ctx context.Context, userID string, upgradeID int64, equipped bool) (bool, error) {
	cmd, err := p.db.Exec(ctx, `
		UPDATE space.ownerships
		SET is_equipped = $3
		WHERE user_id = $1 AND upgrade_id = $2
	`, userID, upgradeID, equipped)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (p *Postgres) Challenges(ctx context.Context) ([]game.ChallengeView, error) {
	rows, err := p.db.Query(ctx, `
		SELECT ch.challenge_id, COALESCE(ch.creator_id, ''), ch.description, ch.points, ch.created_at,
		       COUNT(c.completion_id)
		FROM space.challenges ch
		LEFT JOIN space.completions c ON c.challenge_id = ch.challenge_id
		GROUP BY ch.challenge_id
		ORDER BY ch.challenge_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.ChallengeView
	for rows.Next() {
		var v game.ChallengeView
		if err := rows.Scan(&v.ID, &v.CreatorID, &v.Description, &v.Points, &v.CreatedAt, &v.CompletionCount); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) Challenge(ctx context.Context, challengeID int64) (game.Challenge, error) {
	return getChallenge(ctx, p.db, challengeID)
}

func (p *Postgres) CreateChallenge(ctx context.Context, creatorID, description string, points int64) (game.Challenge, error) {
	return scanChallenge(p.db.QueryRow(ctx, `
		INSERT INTO space.challenges (creator_id, description, points)
		VALUES ($1, $2, $3)
		RETURNING challenge_id, COALESCE(creator_id, ''), description, points, created_at
	`, creatorID, description, points))
}

func (p *Postgres) UpdateChallenge(ctx context.Context, challengeID int64, description string, points int64) (game.Challenge, error) {
	return scanChallenge(p.db.QueryRow(ctx, `
		UPDATE space.challenges
		SET description = $2, points = $3
		WHERE challenge_id = $1
		RETURNING challenge_id, COALESCE(creator_id, ''), description, points, created_at
	`, challengeID, description, points))
}

func (p *Postgres) DeleteChallenge(ctx context.Context, challengeID int64) error {
	cmd, err := p.db.Exec(ctx, `
		DELETE FROM space.challenges ch
		WHERE ch.challenge_id = $1
		  AND NOT EXISTS (SELECT 1 FROM space.completions c WHERE c.challenge_id = ch.challenge_id)
	`, challengeID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	if _, err := getChallenge(ctx, p.db, challengeID); err != nil {
		return err
	}
	return game.ErrChallengeInUse
}

func (p *Postgres) Completions(ctx context.Context, challengeID int64, userID string) ([]game.Completion, error) {
	rows, err := p.db.Query(ctx, `
		SELECT c.completion_id, c.challenge_id, c.user_id, u.username, COALESCE(c.details, ''), c.created_at
		FROM space.completions c
		JOIN space.users u ON u.user_id = c.user_id
		WHERE c.challenge_id = $1 AND ($2 = '' OR c.user_id = $2)
		ORDER BY c.completion_id
	`, challengeID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.Completion{}
	for rows.Next() {
		var c game.Completion
		if err := rows.Scan(&c.ID, &c.ChallengeID, &c.UserID, &c.Username, &c.Details, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SeedCatalog upserts planets, upgrades and achievements by id and inserts
// starter challenges that do not exist yet.
func (p *Postgres) SeedCatalog(ctx context.Context, c game.Catalog) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pl := range c.Planets {
		if _, err := tx.Exec(ctx, `
			INSERT INTO space.planets (planet_id, name, description, fuel_required, discovery_reward, rarity, order_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (planet_id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description,
			    fuel_required = EXCLUDED.fuel_required, discovery_reward = EXCLUDED.discovery_reward,
			    rarity = EXCLUDED.rarity, order_index = EXCLUDED.order_index
		`, pl.ID, pl.Name, pl.Description, pl.FuelRequired, pl.DiscoveryReward, pl.Rarity, pl.OrderIndex); err != nil {
			return fmt.Errorf("seed planet %d: %w", pl.ID, err)
		}
	}
	for _, u := range c.Upgrades {
		if _, err := tx.Exec(ctx, `
			INSERT INTO space.upgrades (upgrade_id, name, description, category, price, rarity, points_multiplier, unlock_requirement)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
			ON CONFLICT (upgrade_id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description, category = EXCLUDED.category,
			    price = EXCLUDED.price, rarity = EXCLUDED.rarity,
			    points_multiplier = EXCLUDED.points_multiplier, unlock_requirement = EXCLUDED.unlock_requirement
		`, u.ID, u.Name, u.Description, u.Category, u.Price, u.Rarity, u.PointsMultiplier.String(), u.UnlockRequirement); err != nil {
			return fmt.Errorf("seed upgrade %d: %w", u.ID, err)
		}
	}
	for _, a := range c.Achievements {
		if _, err := tx.Exec(ctx, `
			INSERT INTO space.achievements (achievement_id, name, description, icon, requirement_type, requirement_value, reward_points)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (achievement_id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description, icon = EXCLUDED.icon,
			    requirement_type = EXCLUDED.requirement_type, requirement_value = EXCLUDED.requirement_value,
			    reward_points = EXCLUDED.reward_points
		`, a.ID, a.Name, a.Description, a.Icon, a.RequirementType, a.RequirementValue, a.RewardPoints); err != nil {
			return fmt.Errorf("seed achievement %d: %w", a.ID, err)
		}
	}
	for _, ch := range c.Challenges {
		if _, err := tx.Exec(ctx, `
			INSERT INTO space.challenges (challenge_id, description, points)
			VALUES ($1, $2, $3)
			ON CONFLICT (challenge_id) DO NOTHING
		`, ch.ID, ch.Description, ch.Points); err != nil {
			return fmt.Errorf("seed challenge %d: %w", ch.ID, err)
		}
	}
	if _, err := tx.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('space.challenges', 'challenge_id'),
		              GREATEST((SELECT COALESCE(MAX(challenge_id), 0) FROM space.challenges), 1))
	`); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) InUserTx(ctx context.Context, userID string, fn func(tx game.Tx, user game.User) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := p.userTxOnce(ctx, userID, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return game.ErrTxConflict
		}
		p.log.Debug("retrying user transaction", "user_id", userID, "attempt", attempt+1)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func (p *Postgres) userTxOnce(ctx context.Context, userID string, fn func(tx game.Tx, user game.User) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx, `
		SELECT user_id, username, points, created_at
		FROM space.users
		WHERE user_id = $1
		FOR UPDATE
	`, userID))
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx}, user); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Challenge(ctx context.Context, challengeID int64) (game.Challenge, error) {
	return getChallenge(ctx, t.tx, challengeID)
}

func (t *pgTx) Planet(ctx context.Context, planetID int64) (game.Planet, error) {
	var pl game.Planet
	err := t.tx.QueryRow(ctx, `
		SELECT planet_id, name, description, fuel_required, discovery_reward, rarity, order_index
		FROM space.planets
		WHERE planet_id = $1
	`, planetID).Scan(&pl.ID, &pl.Name, &pl.Description, &pl.FuelRequired, &pl.DiscoveryReward, &pl.Rarity, &pl.OrderIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Planet{}, game.ErrPlanetNotFound
	}
	return pl, err
}

func (t *pgTx) Upgrade(ctx context.Context, upgradeID int64) (game.Upgrade, error) {
	u, err := scanUpgrade(t.tx.QueryRow(ctx, `
		SELECT upgrade_id, name, description, category, price, rarity, points_multiplier::text, unlock_requirement
		FROM space.upgrades
		WHERE upgrade_id = $1
	`, upgradeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Upgrade{}, game.ErrUpgradeNotFound
	}
	return u, err
}

func (t *pgTx) Achievements(ctx context.Context) ([]game.Achievement, error) {
	return listAchievements(ctx, t.tx)
}

func (t *pgTx) HasDiscovered(ctx context.Context, userID string, planetID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM space.discoveries WHERE user_id = $1 AND planet_id = $2)
	`, userID, planetID).Scan(&ok)
	return ok, err
}

func (t *pgTx) OwnsUpgrade(ctx context.Context, userID string, upgradeID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM space.ownerships WHERE user_id = $1 AND upgrade_id = $2)
	`, userID, upgradeID).Scan(&ok)
	return ok, err
}

func (t *pgTx) DiscoveredCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM space.discoveries WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (t *pgTx) OwnedUpgrades(ctx context.Context, userID string) ([]game.OwnedUpgrade, error) {
	return listOwned(ctx, t.tx, userID)
}

func (t *pgTx) Stats(ctx context.Context, userID string) (game.Stats, error) {
	var s game.Stats
	err := t.tx.QueryRow(ctx, `
		SELECT u.points,
		       (SELECT COUNT(*) FROM space.discoveries d WHERE d.user_id = u.user_id),
		       (SELECT COUNT(*) FROM space.completions c WHERE c.user_id = u.user_id),
		       (SELECT COUNT(*) FROM space.ownerships o WHERE o.user_id = u.user_id)
		FROM space.users u
		WHERE u.user_id = $1
	`, userID).Scan(&s.Points, &s.PlanetsDiscovered, &s.ChallengesCompleted, &s.UpgradesOwned)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Stats{}, game.ErrUserNotFound
	}
	return s, err
}

func (t *pgTx) GrantedIDs(ctx context.Context, userID string) (map[int64]struct{}, error) {
	rows, err := t.tx.Query(ctx, `SELECT achievement_id FROM space.grants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (t *pgTx) ClaimIdempotency(ctx context.Context, userID, key, action string) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO space.idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, strings.TrimSpace(key), action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (t *pgTx) InsertCompletion(ctx context.Context, challengeID int64, userID, details string) (game.Completion, error) {
	c := game.Completion{ChallengeID: challengeID, UserID: userID, Details: details}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO space.completions (challenge_id, user_id, details)
		VALUES ($1, $2, $3)
		RETURNING completion_id, created_at
	`, challengeID, userID, details).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func (t *pgTx) InsertDiscovery(ctx context.Context, userID string, planetID int64) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO space.discoveries (user_id, planet_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, planet_id) DO NOTHING
	`, userID, planetID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *pgTx) InsertOwnership(ctx context.Context, userID string, upgradeID int64, equipped bool) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO space.ownerships (user_id, upgrade_id, is_equipped)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, upgrade_id) DO NOTHING
	`, userID, upgradeID, equipped)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *pgTx) InsertGrant(ctx context.Context, userID string, achievementID int64) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO space.grants (user_id, achievement_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, userID, achievementID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *pgTx) SetPoints(ctx context.Context, userID string, points int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE space.users
		SET points = $2, updated_at = now()
		WHERE user_id = $1
	`, userID, points)
	return err
}

func getChallenge(ctx context.Context, q querier, challengeID int64) (game.Challenge, error) {
	return scanChallenge(q.QueryRow(ctx, `
		SELECT challenge_id, COALESCE(creator_id, ''), description, points, created_at
		FROM space.challenges
		WHERE challenge_id = $1
	`, challengeID))
}

func listAchievements(ctx context.Context, q querier) ([]game.Achievement, error) {
	rows, err := q.Query(ctx, `
		SELECT achievement_id, name, description, icon, requirement_type, requirement_value, reward_points
		FROM space.achievements
		ORDER BY achievement_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Achievement
	for rows.Next() {
		var a game.Achievement
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Icon, &a.RequirementType, &a.RequirementValue, &a.RewardPoints); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func listOwned(ctx context.Context, q querier, userID string) ([]game.OwnedUpgrade, error) {
	rows, err := q.Query(ctx, `
		SELECT u.upgrade_id, u.name, u.description, u.category, u.price, u.rarity,
		       u.points_multiplier::text, u.unlock_requirement, o.is_equipped, o.purchased_at
		FROM space.ownerships o
		JOIN space.upgrades u ON u.upgrade_id = o.upgrade_id
		WHERE o.user_id = $1
		ORDER BY u.upgrade_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.OwnedUpgrade
	for rows.Next() {
		var (
			o          game.OwnedUpgrade
			multiplier string
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, &o.Category, &o.Price, &o.Rarity,
			&multiplier, &o.UnlockRequirement, &o.IsEquipped, &o.PurchasedAt); err != nil {
			return nil, err
		}
		if o.PointsMultiplier, err = decimal.NewFromString(multiplier); err != nil {
			return nil, fmt.Errorf("upgrade %d multiplier: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (game.User, error) {
	var u game.User
	err := row.Scan(&u.ID, &u.Username, &u.Points, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.User{}, game.ErrUserNotFound
	}
	return u, err
}

func scanChallenge(row pgx.Row) (game.Challenge, error) {
	var ch game.Challenge
	err := row.Scan(&ch.ID, &ch.CreatorID, &ch.Description, &ch.Points, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Challenge{}, game.ErrChallengeNotFound
	}
	return ch, err
}

func scanUpgrade(row pgx.Row) (game.Upgrade, error) {
	var (
		u          game.Upgrade
		multiplier string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Description, &u.Category, &u.Price, &u.Rarity, &multiplier, &u.UnlockRequirement); err != nil {
		return game.Upgrade{}, err
	}
	m, err := decimal.NewFromString(multiplier)
	if err != nil {
		return game.Upgrade{}, fmt.Errorf("upgrade %d multiplier: %w", u.ID, err)
	}
	u.PointsMultiplier = m
	return u, nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
