package client

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackcore/config"
	"trackcore/fleetstate"
	"trackcore/geocode"
	"trackcore/realtime"
	"trackcore/store"
	"trackcore/www"
)

func newHubServer(t *testing.T) (*realtime.Hub, *httptest.Server) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub(nil)
	server := httptest.NewServer(www.NewRouter(www.Deps{
		Hub:     hub,
		DB:      db,
		Fleet:   fleetstate.NewManager(nil),
		Geocode: geocode.New(&cfg.Geocode),
		Config:  cfg,
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func expectEvent(t *testing.T, events <-chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no %q event within deadline", want)
	}
}

func TestReconnectRejoinsSubscriptions(t *testing.T) {
	hub, server := newHubServer(t)

	c := New(Options{URL: wsURL(server), MaxRetries: 10, RetryDelay: 50 * time.Millisecond})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	events := make(chan string, 16)
	c.SubscribeShipment("TRK-1", func(event string, _ json.RawMessage) {
		events <- event
	})
	waitFor(t, "initial join", func() bool { return hub.Registry().TopicCount() == 1 })

	publish := func() {
		hub.PublishShipmentUpdate(&realtime.ShipmentUpdateEvent{
			ShipmentID: "TRK-1",
			Status:     "in_transit",
			UpdatedBy:  realtime.UpdatedBySystem,
			ActorID:    "sys",
			Timestamp:  time.Now(),
		})
	}
	publish()
	expectEvent(t, events, "shipment-update-TRK-1")

	// Sever every live connection; the listener stays up, so the bounded
	// retry loop should bring the client back without caller action.
	server.CloseClientConnections()

	waitFor(t, "drop to surface on the connectivity flag", func() bool { return !c.Connected() })
	waitFor(t, "automatic reconnect", func() bool { return c.Connected() })
	waitFor(t, "room rejoined on the fresh session", func() bool {
		return hub.SessionCount() == 1 && hub.Registry().TopicCount() == 1
	})

	publish()
	expectEvent(t, events, "shipment-update-TRK-1")
}

func TestExhaustedRetriesLeaveClientDisconnected(t *testing.T) {
	_, server := newHubServer(t)

	c := New(Options{URL: wsURL(server), MaxRetries: 2, RetryDelay: 20 * time.Millisecond})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	server.Close()
	waitFor(t, "drop to surface on the connectivity flag", func() bool { return !c.Connected() })

	// Give the retry loop time to run out, then confirm it stayed down
	// instead of retrying forever.
	time.Sleep(300 * time.Millisecond)
	if c.Connected() {
		t.Error("client should stay disconnected once retries are exhausted")
	}
}
