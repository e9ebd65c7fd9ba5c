package events

import (
	"context"
	"time"
)

const (
	TypeChallengeCompleted = "challenge.completed"
	TypePlanetDiscovered   = "planet.discovered"
	TypeUpgradePurchased   = "upgrade.purchased"
	TypeUpgradeToggled     = "upgrade.toggled"
	TypeAchievementGranted = "achievement.granted"
)

// Event is a per-user notification emitted after a committed transaction.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"user_id"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func New(eventType, userID string, payload any) Event {
	return Event{
		Type:    eventType,
		UserID:  userID,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}
