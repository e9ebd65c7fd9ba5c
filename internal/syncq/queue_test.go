package syncq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushLoadRoundTrip(t *testing.T) {
	q := New(t.TempDir())

	got, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, q.Push(Command{Method: "POST", Path: "/v1/challenges/1/completions", Body: map[string]any{"details": "walked"}, IdempotencyKey: "a"}))
	require.NoError(t, q.Push(Command{Method: "POST", Path: "/v1/challenges/2/completions", IdempotencyKey: "b"}))
	require.NoError(t, q.Push(Command{Method: "POST", Path: "/v1/challenges/1/completions", IdempotencyKey: "a"}))

	got, err = q.Load()
	require.NoError(t, err)
	require.Len(t, got, 2, "same idempotency key is queued once")
	assert.Equal(t, "a", got[0].IdempotencyKey)
	assert.Equal(t, "walked", got[0].Body["details"])

	info, err := os.Stat(q.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPushRequiresTarget(t *testing.T) {
	q := New(t.TempDir())
	assert.Error(t, q.Push(Command{IdempotencyKey: "x"}))
}

func TestSaveEmptyRemovesFile(t *testing.T) {
	q := New(t.TempDir())
	require.NoError(t, q.Push(Command{Method: "POST", Path: "/x"}))
	require.NoError(t, q.Save(nil))
	_, err := os.Stat(q.Path())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, q.Save(nil))
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue.json"), []byte("{not json"), 0o600))
	_, err := New(dir).Load()
	assert.ErrorContains(t, err, "corrupt")
}

func TestReplayDropsRejectedAndStopsAtRetry(t *testing.T) {
	cmds := []Command{
		{Path: "/ok", IdempotencyKey: "1"},
		{Path: "/rejected", IdempotencyKey: "2"},
		{Path: "/offline", IdempotencyKey: "3"},
		{Path: "/ok", IdempotencyKey: "4"},
	}
	var sent []string
	remaining, replayed, rejected := Replay(cmds, func(c Command) Outcome {
		sent = append(sent, c.IdempotencyKey)
		switch c.Path {
		case "/ok":
			return Replayed
		case "/rejected":
			return Rejected
		default:
			return Retry
		}
	})
	assert.Equal(t, 1, replayed)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, []string{"1", "2", "3"}, sent)
	require.Len(t, remaining, 2)
	assert.Equal(t, "3", remaining[0].IdempotencyKey)
	assert.Equal(t, "4", remaining[1].IdempotencyKey)
}
