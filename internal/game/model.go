package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	ChallengePointsCap = int64(50)

	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 200
)

const (
	CategoryEngine   = "engine"
	CategoryHull     = "hull"
	CategoryCosmetic = "cosmetic"
	CategorySpecial  = "special"
)

const (
	RequirementPlanets    = "planets"
	RequirementPoints     = "points"
	RequirementChallenges = "challenges"
	RequirementUpgrades   = "upgrades"
)

// Categories lists upgrade categories in display order.
var Categories = []string{CategoryEngine, CategoryHull, CategoryCosmetic, CategorySpecial}

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientFunds = errors.New("not enough fuel")
	ErrValidation        = errors.New("invalid input")
	ErrTxConflict        = errors.New("transaction conflict, retry later")
	ErrUnauthorized      = errors.New("unauthorized")

	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrChallengeNotFound = fmt.Errorf("challenge %w", ErrNotFound)
	ErrPlanetNotFound    = fmt.Errorf("planet %w", ErrNotFound)
	ErrUpgradeNotFound   = fmt.Errorf("upgrade %w", ErrNotFound)
	ErrOwnershipNotFound = fmt.Errorf("owned upgrade %w", ErrNotFound)

	ErrAlreadyDiscovered    = fmt.Errorf("%w: planet already discovered", ErrConflict)
	ErrAlreadyOwned         = fmt.Errorf("%w: upgrade already owned", ErrConflict)
	ErrUsernameTaken        = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrChallengeInUse       = fmt.Errorf("%w: challenge has completions", ErrConflict)
	ErrDuplicateIdempotency = fmt.Errorf("%w: duplicate idempotency key", ErrConflict)

	ErrNotCreator = fmt.Errorf("%w: only the creator can change this challenge", ErrForbidden)
)

// InsufficientFundsError reports the cost that could not be covered.
type InsufficientFundsError struct {
	Required int64
	Current  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: required %d, current %d", ErrInsufficientFunds, e.Required, e.Current)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// LockedError reports an unmet planet-count unlock requirement.
type LockedError struct {
	Required int64
	Current  int64
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: upgrade locked, requires %d discovered planets (have %d)", ErrForbidden, e.Required, e.Current)
}

func (e *LockedError) Unwrap() error { return ErrForbidden }

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

func ValidateUsername(username string) error {
	if !usernameRE.MatchString(strings.TrimSpace(username)) {
		return fmt.Errorf("%w: username must be 3-24 letters, digits or underscores", ErrValidation)
	}
	return nil
}

func ValidateChallenge(description string, points int64) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if points <= 0 {
		return fmt.Errorf("%w: points must be > 0", ErrValidation)
	}
	if points > ChallengePointsCap {
		return fmt.Errorf("%w: points cannot exceed %d", ErrValidation, ChallengePointsCap)
	}
	return nil
}

func ValidateCategory(category string) error {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return nil
	}
	for _, c := range Categories {
		if c == category {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown category %q", ErrValidation, category)
}

func UsernameFromEmail(email string) string {
	local := strings.TrimSpace(email)
	if i := strings.Index(local, "@"); i >= 0 {
		local = local[:i]
	}
	return SanitizeUsername(local)
}

func SanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 24 {
		out = out[:24]
	}
	for len(out) < 3 {
		out += "_"
	}
	return out
}
