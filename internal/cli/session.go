package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spaceexplorers/internal/auth"
)

// ErrNoSession means nobody is logged in on this machine.
var ErrNoSession = errors.New("no saved session")

// expirySlack refreshes a little before the provider would reject the token.
const expirySlack = 30 * time.Second

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Email        string    `json:"email"`
	UserID       string    `json:"user_id"`
}

// SessionFrom converts a provider session, stamping the absolute expiry.
func SessionFrom(s auth.Session, now time.Time) Session {
	out := Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Email:        s.User.Email,
		UserID:       s.User.ID,
	}
	if s.ExpiresIn > 0 {
		out.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	return out
}

// Expired reports whether the access token should be refreshed before use.
// Sessions without a known expiry never expire locally.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.Add(expirySlack).After(s.ExpiresAt)
}

// BaseDir is the client's state directory: $XPL_HOME, else ~/.xpl. It is
// created on first use.
func BaseDir() (string, error) {
	dir := strings.TrimSpace(os.Getenv("XPL_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".xpl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// SessionStore keeps one session file in a state directory.
type SessionStore struct {
	path string
}

func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{path: filepath.Join(dir, "session.json")}
}

// DefaultSessionStore uses BaseDir.
func DefaultSessionStore() (*SessionStore, error) {
	dir, err := BaseDir()
	if err != nil {
		return nil, err
	}
	return NewSessionStore(dir), nil
}

func (s *SessionStore) Save(sess Session) error {
	body, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *SessionStore) Load() (Session, error) {
	body, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	if strings.TrimSpace(sess.AccessToken) == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
