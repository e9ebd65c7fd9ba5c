package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"spaceexplorers/internal/game"
)

type ownership struct {
	equipped    bool
	purchasedAt time.Time
}

type memState struct {
	users        map[string]game.User
	planets      map[int64]game.Planet
	upgrades     map[int64]game.Upgrade
	achievements map[int64]game.Achievement
	challenges   map[int64]game.Challenge
	completions  []game.Completion
	discoveries  map[string]map[int64]time.Time
	ownerships   map[string]map[int64]ownership
	grants       map[string]map[int64]time.Time
	idempotency  map[string]struct{}
	nextChID     int64
	nextCompID   int64
}

// Memory is an in-process Store. All mutations are serialized by one mutex;
// InUserTx works on a copy and commits it only when fn succeeds.
type Memory struct {
	mu  sync.Mutex
	st  *memState
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		st: &memState{
			users:        map[string]game.User{},
			planets:      map[int64]game.Planet{},
			upgrades:     map[int64]game.Upgrade{},
			achievements: map[int64]game.Achievement{},
			challenges:   map[int64]game.Challenge{},
			discoveries:  map[string]map[int64]time.Time{},
			ownerships:   map[string]map[int64]ownership{},
			grants:       map[string]map[int64]time.Time{},
			idempotency:  map[string]struct{}{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetPoints overwrites a balance directly. Used to stage fixtures.
func (m *Memory) SetPoints(userID string, points int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[userID]
	if !ok {
		return
	}
	u.Points = points
	m.st.users[userID] = u
}

func (m *Memory) EnsureUser(_ context.Context, userID, username string) (game.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.st.users[userID]; ok {
		return u, nil
	}
	for _, u := range m.st.users {
		if strings.EqualFold(u.Username, username) {
			return game.User{}, game.ErrUsernameTaken
		}
	}
	u := game.User{ID: userID, Username: username, CreatedAt: m.now()}
	m.st.users[userID] = u
	return u, nil
}

func (m *Memory) User(_ context.Context, userID string) (game.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[userID]
	if !ok {
		return game.User{}, game.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) UpdateUsername(_ context.Context, userID, username string) (game.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[userID]
	if !ok {
		return game.User{}, game.ErrUserNotFound
	}
	for id, other := range m.st.users {
		if id != userID && strings.EqualFold(other.Username, username) {
			return game.User{}, game.ErrUsernameTaken
		}
	}
	u.Username = username
	m.st.users[userID] = u
	return u, nil
}

func (m *Memory) UserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.st.users))
	for id := range m.st.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Leaderboard(_ context.Context, limit int) ([]game.LeaderboardRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]game.User, 0, len(m.st.users))
	for _, u := range m.st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		return users[i].Username < users[j].Username
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	out := make([]game.LeaderboardRow, 0, len(users))
	for i, u := range users {
		out = append(out, game.LeaderboardRow{Rank: int64(i + 1), UserID: u.ID, Username: u.Username, Points: u.Points})
	}
	return out, nil
}

func (m *Memory) Planets(_ context.Context) ([]game.Planet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.Planet, 0, len(m.st.planets))
	for _, p := range m.st.planets {
		out = append(out, p)
	}
	game.SortPlanets(out)
	return out, nil
}

func (m *Memory) Upgrades(_ context.Context, category string) ([]game.Upgrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.Upgrade, 0, len(m.st.upgrades))
	for _, u := range m.st.upgrades {
		if category != "" && u.Category != category {
			continue
		}
		out = append(out, u)
	}
	sortUpgrades(out)
	return out, nil
}

func (m *Memory) Achievements(_ context.Context) ([]game.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.achievementList(), nil
}

func (m *Memory) DiscoveredPlanets(_ context.Context, userID string) ([]game.DiscoveredPlanet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.DiscoveredPlanet, 0, len(m.st.discoveries[userID]))
	for id, at := range m.st.discoveries[userID] {
		out = append(out, game.DiscoveredPlanet{Planet: m.st.planets[id], DiscoveredAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *Memory) OwnedUpgrades(_ context.Context, userID string) ([]game.OwnedUpgrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ownedList(userID), nil
}

func (m *Memory) Grants(_ context.Context, userID string) ([]game.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.Grant, 0, len(m.st.grants[userID]))
	for id, at := range m.st.grants[userID] {
		out = append(out, game.Grant{AchievementID: id, EarnedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (m *Memory) SetEquipped(_ context.Context, userID string, upgradeID int64, equipped bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.ownerships[userID][upgradeID]
	if !ok {
		return false, nil
	}
	o.equipped = equipped
	m.st.ownerships[userID][upgradeID] = o
	return true, nil
}

func (m *Memory) Challenges(_ context.Context) ([]game.ChallengeView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[int64]int64{}
	for _, c := range m.st.completions {
		counts[c.ChallengeID]++
	}
	out := make([]game.ChallengeView, 0, len(m.st.challenges))
	for _, ch := range m.st.challenges {
		out = append(out, game.ChallengeView{Challenge: ch, CompletionCount: counts[ch.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Challenge(_ context.Context, challengeID int64) (game.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.st.challenges[challengeID]
	if !ok {
		return game.Challenge{}, game.ErrChallengeNotFound
	}
	return ch, nil
}

func (m *Memory) CreateChallenge(_ context.Context, creatorID, description string, points int64) (game.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.nextChID++
	ch := game.Challenge{
		ID:          m.st.nextChID,
		CreatorID:   creatorID,
		Description: description,
		Points:      points,
		CreatedAt:   m.now(),
	}
	m.st.challenges[ch.ID] = ch
	return ch, nil
}

func (m *Memory) UpdateChallenge(_ context.Context, challengeID int64, description string, points int64) (game.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.st.challenges[challengeID]
	if !ok {
		return game.Challenge{}, game.ErrChallengeNotFound
	}
	ch.Description = description
	ch.Points = points
	m.st.challenges[challengeID] = ch
	return ch, nil
}

func (m *Memory) DeleteChallenge(_ context.Context, challengeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.challenges[challengeID]; !ok {
		return game.ErrChallengeNotFound
	}
	for _, c := range m.st.completions {
		if c.ChallengeID == challengeID {
			return game.ErrChallengeInUse
		}
	}
	delete(m.st.challenges, challengeID)
	return nil
}

func (m *Memory) Completions(_ context.Context, challengeID int64, userID string) ([]game.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []game.Completion{}
	for _, c := range m.st.completions {
		if c.ChallengeID != challengeID {
			continue
		}
		if userID != "" && c.UserID != userID {
			continue
		}
		c.Username = m.st.users[c.UserID].Username
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) SeedCatalog(_ context.Context, c game.Catalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range c.Planets {
		m.st.planets[p.ID] = p
	}
	for _, u := range c.Upgrades {
		m.st.upgrades[u.ID] = u
	}
	for _, a := range c.Achievements {
		m.st.achievements[a.ID] = a
	}
	for _, ch := range c.Challenges {
		if _, ok := m.st.challenges[ch.ID]; ok {
			continue
		}
		ch.CreatedAt = m.now()
		m.st.challenges[ch.ID] = ch
		if ch.ID > m.st.nextChID {
			m.st.nextChID = ch.ID
		}
	}
	return nil
}

func (m *Memory) InUserTx(ctx context.Context, userID string, fn func(tx game.Tx, user game.User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	user, ok := m.st.users[userID]
	if !ok {
		return game.ErrUserNotFound
	}
	work := m.st.clone()
	if err := fn(&memTx{st: work, now: m.now}, user); err != nil {
		return err
	}
	m.st = work
	return nil
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) Challenge(_ context.Context, challengeID int64) (game.Challenge, error) {
	ch, ok := t.st.challenges[challengeID]
	if !ok {
		return game.Challenge{}, game.ErrChallengeNotFound
	}
	return ch, nil
}

func (t *memTx) Planet(_ context.Context, planetID int64) (game.Planet, error) {
	p, ok := t.st.planets[planetID]
	if !ok {
		return game.Planet{}, game.ErrPlanetNotFound
	}
	return p, nil
}

func (t *memTx) Upgrade(_ context.Context, upgradeID int64) (game.Upgrade, error) {
	u, ok := t.st.upgrades[upgradeID]
	if !ok {
		return game.Upgrade{}, game.ErrUpgradeNotFound
	}
	return u, nil
}

func (t *memTx) Achievements(_ context.Context) ([]game.Achievement, error) {
	return t.st.achievementList(), nil
}

func (t *memTx) HasDiscovered(_ context.Context, userID string, planetID int64) (bool, error) {
	_, ok := t.st.discoveries[userID][planetID]
	return ok, nil
}

func (t *memTx) OwnsUpgrade(_ context.Context, userID string, upgradeID int64) (bool, error) {
	_, ok := t.st.ownerships[userID][upgradeID]
	return ok, nil
}

func (t *memTx) DiscoveredCount(_ context.Context, userID string) (int64, error) {
	return int64(len(t.st.discoveries[userID])), nil
}

func (t *memTx) OwnedUpgrades(_ context.Context, userID string) ([]game.OwnedUpgrade, error) {
	return t.st.ownedList(userID), nil
}

func (t *memTx) Stats(_ context.Context, userID string) (game.Stats, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return game.Stats{}, game.ErrUserNotFound
	}
	var completed int64
	for _, c := range t.st.completions {
		if c.UserID == userID {
			completed++
		}
	}
	return game.Stats{
		Points:              u.Points,
		PlanetsDiscovered:   int64(len(t.st.discoveries[userID])),
		ChallengesCompleted: completed,
		UpgradesOwned:       int64(len(t.st.ownerships[userID])),
	}, nil
}

func (t *memTx) GrantedIDs(_ context.Context, userID string) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(t.st.grants[userID]))
	for id := range t.st.grants[userID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (t *memTx) ClaimIdempotency(_ context.Context, userID, key, action string) error {
	k := userID + "\x00" + key
	if _, ok := t.st.idempotency[k]; ok {
		return game.ErrDuplicateIdempotency
	}
	t.st.idempotency[k] = struct{}{}
	return nil
}

func (t *memTx) InsertCompletion(_ context.Context, challengeID int64, userID, details string) (game.Completion, error) {
	t.st.nextCompID++
	c := game.Completion{
		ID:          t.st.nextCompID,
		ChallengeID: challengeID,
		UserID:      userID,
		Details:     details,
		CreatedAt:   t.now(),
	}
	t.st.completions = append(t.st.completions, c)
	return c, nil
}

func (t *memTx) InsertDiscovery(_ context.Context, userID string, planetID int64) (bool, error) {
	set := t.st.discoveries[userID]
	if set == nil {
		set = map[int64]time.Time{}
		t.st.discoveries[userID] = set
	}
	if _, ok := set[planetID]; ok {
		return false, nil
	}
	set[planetID] = t.now()
	return true, nil
}

func (t *memTx) InsertOwnership(_ context.Context, userID string, upgradeID int64, equipped bool) (bool, error) {
	set := t.st.ownerships[userID]
	if set == nil {
		set = map[int64]ownership{}
		t.st.ownerships[userID] = set
	}
	if _, ok := set[upgradeID]; ok {
		return false, nil
	}
	set[upgradeID] = ownership{equipped: equipped, purchasedAt: t.now()}
	return true, nil
}

func (t *memTx) InsertGrant(_ context.Context, userID string, achievementID int64) (bool, error) {
	set := t.st.grants[userID]
	if set == nil {
		set = map[int64]time.Time{}
		t.st.grants[userID] = set
	}
	if _, ok := set[achievementID]; ok {
		return false, nil
	}
	set[achievementID] = t.now()
	return true, nil
}

func (t *memTx) SetPoints(_ context.Context, userID string, points int64) error {
	u, ok := t.st.users[userID]
	if !ok {
		return game.ErrUserNotFound
	}
	u.Points = points
	t.st.users[userID] = u
	return nil
}

func (s *memState) achievementList() []game.Achievement {
	out := make([]game.Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memState) ownedList(userID string) []game.OwnedUpgrade {
	out := make([]game.OwnedUpgrade, 0, len(s.ownerships[userID]))
	for id, o := range s.ownerships[userID] {
		out = append(out, game.OwnedUpgrade{
			Upgrade:     s.upgrades[id],
			IsEquipped:  o.equipped,
			PurchasedAt: o.purchasedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// clone copies every mutable table. Catalog maps are shared since nothing
// writes them inside a transaction.
func (s *memState) clone() *memState {
	c := *s
	c.users = make(map[string]game.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.completions = append([]game.Completion(nil), s.completions...)
	c.discoveries = cloneNested(s.discoveries)
	c.ownerships = cloneNested(s.ownerships)
	c.grants = cloneNested(s.grants)
	c.idempotency = make(map[string]struct{}, len(s.idempotency))
	for k := range s.idempotency {
		c.idempotency[k] = struct{}{}
	}
	return &c
}

func cloneNested[V any](in map[string]map[int64]V) map[string]map[int64]V {
	out := make(map[string]map[int64]V, len(in))
	for k, inner := range in {
		cp := make(map[int64]V, len(inner))
		for id, v := range inner {
			cp[id] = v
		}
		out[k] = cp
	}
	return out
}

func sortUpgrades(us []game.Upgrade) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].Price != us[j].Price {
			return us[i].Price < us[j].Price
		}
		return us[i].ID < us[j].ID
	})
}
