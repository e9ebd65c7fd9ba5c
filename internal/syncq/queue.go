package syncq

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "queue.json"

// Command is a write that failed to reach the server and will be replayed
// verbatim, idempotency key included.
type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Queue is the on-disk offline queue kept in a client's state directory.
type Queue struct {
	mu   sync.Mutex
	path string
}

func New(dir string) *Queue {
	return &Queue{path: filepath.Join(dir, fileName)}
}

func (q *Queue) Path() string { return q.path }

func (q *Queue) Load() ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) Save(commands []Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(commands)
}

// Push appends cmd unless a command with the same idempotency key is
// already queued.
func (q *Queue) Push(cmd Command) error {
	if cmd.Method == "" || cmd.Path == "" {
		return errors.New("syncq: method and path are required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	commands, err := q.load()
	if err != nil {
		return err
	}
	if cmd.IdempotencyKey != "" {
		for _, c := range commands {
			if c.IdempotencyKey == cmd.IdempotencyKey {
				return nil
			}
		}
	}
	return q.save(append(commands, cmd))
}

func (q *Queue) load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("syncq: corrupt %s: %w", q.path, err)
	}
	return out, nil
}

func (q *Queue) save(commands []Command) error {
	if len(commands) == 0 {
		if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(q.path, raw)
}

// writeAtomic replaces path through a temp file in the same directory.
func writeAtomic(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Outcome classifies one replay attempt.
type Outcome int

const (
	Replayed Outcome = iota
	// Rejected means the server answered with an error; retrying cannot help.
	Rejected
	// Retry means the server was not reached.
	Retry
)

// Replay sends every command through send and returns the ones that must
// stay queued. Once one command hits Retry the rest are kept without being
// sent, so queued writes stay in order.
func Replay(commands []Command, send func(Command) Outcome) (remaining []Command, replayed, rejected int) {
	remaining = make([]Command, 0, len(commands))
	for i, c := range commands {
		switch send(c) {
		case Replayed:
			replayed++
		case Rejected:
			rejected++
		default:
			return append(remaining, commands[i:]...), replayed, rejected
		}
	}
	return remaining, replayed, rejected
}
