package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount(userID) == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHubDeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(nil)
	alice := dialHub(t, hub, "alice")
	bob := dialHub(t, hub, "bob")

	require.NoError(t, hub.Publish(context.Background(), New(TypePlanetDiscovered, "alice", map[string]any{"planet_id": 2})))

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, alice.ReadJSON(&ev))
	assert.Equal(t, TypePlanetDiscovered, ev.Type)
	assert.Equal(t, "alice", ev.UserID)

	_ = bob.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "bob must not see alice's events")
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "carol")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.ClientCount("carol") == 0 }, 2*time.Second, 10*time.Millisecond)
	hub.Deliver(New(TypeUpgradeToggled, "carol", nil))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), New(TypeUpgradePurchased, "u1", nil)))
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus, err := NewRedisBus(ctx, addr, "explorers-test-"+time.Now().Format("150405.000"), nil)
	require.NoError(t, err)
	defer bus.Close()

	got := make(chan Event, 1)
	require.NoError(t, bus.StartForwarder(ctx, func(ev Event) { got <- ev }))
	require.NoError(t, bus.Publish(ctx, New(TypeAchievementGranted, "u1", map[string]any{"achievement_id": 1})))

	select {
	case ev := <-got:
		assert.Equal(t, TypeAchievementGranted, ev.Type)
		assert.Equal(t, "u1", ev.UserID)
	case <-ctx.Done():
		t.Fatal("event not forwarded")
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	_, err := NewRedisBus(context.Background(), "  ", "", nil)
	assert.Error(t, err)
}
