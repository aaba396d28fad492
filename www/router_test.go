package www

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trackcore/config"
	"trackcore/fleetstate"
	"trackcore/geocode"
	"trackcore/realtime"
	"trackcore/store"
	"trackcore/wire"
)

type testEnv struct {
	hub    *realtime.Hub
	db     *store.DB
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub(nil)
	handler := NewRouter(Deps{
		Hub:     hub,
		DB:      db,
		Fleet:   fleetstate.NewManager(nil),
		Geocode: geocode.New(&cfg.Geocode),
		Config:  cfg,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{hub: hub, db: db, server: server}
}

func (env *testEnv) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	env, err := wire.NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readPush(t *testing.T, conn *websocket.Conn) *wire.Push {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	push, err := wire.DecodePush(data)
	if err != nil {
		t.Fatalf("decode push: %v", err)
	}
	return push
}

// waitForTopics polls until the registry holds the expected number of rooms,
// since joins arrive asynchronously over the socket.
func waitForTopics(t *testing.T, hub *realtime.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Registry().TopicCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry never reached %d topics (have %d)", want, hub.Registry().TopicCount())
}

func TestWebsocketJoinAndReceive(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t)

	sendEnvelope(t, conn, wire.TypeJoinShipment, wire.TopicRef{ShipmentID: "TRK-1"})
	waitForTopics(t, env.hub, 1)

	env.hub.PublishShipmentUpdate(&realtime.ShipmentUpdateEvent{
		ShipmentID: "TRK-1",
		Status:     "in_transit",
		UpdatedBy:  realtime.UpdatedBySystem,
		ActorID:    "sys",
		Timestamp:  time.Now(),
	})

	push := readPush(t, conn)
	if push.Event != "shipment-update-TRK-1" {
		t.Errorf("Event = %q, want shipment-update-TRK-1", push.Event)
	}
	var ev realtime.ShipmentUpdateEvent
	if err := json.Unmarshal(push.Data, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.Status != "in_transit" {
		t.Errorf("Status = %q", ev.Status)
	}
}

func TestWebsocketPublishReachesOtherSubscriber(t *testing.T) {
	env := newTestEnv(t)
	publisher := env.dialWS(t)
	subscriber := env.dialWS(t)

	sendEnvelope(t, subscriber, wire.TypeJoinShipment, wire.TopicRef{Global: wire.GlobalDrivers})
	waitForTopics(t, env.hub, 1)

	sendEnvelope(t, publisher, wire.TypeDriverLocation, realtime.DriverLocationEvent{
		DriverID:  "DRV-1",
		Latitude:  40.7,
		Longitude: -74.0,
		Timestamp: time.Now().UTC(),
	})

	push := readPush(t, subscriber)
	if push.Event != realtime.EventDriverLocationBroadcast {
		t.Errorf("Event = %q, want %s", push.Event, realtime.EventDriverLocationBroadcast)
	}
}

func TestWebsocketDisconnectCleansUp(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t)

	sendEnvelope(t, conn, wire.TypeJoinShipment, wire.TopicRef{ShipmentID: "TRK-1"})
	waitForTopics(t, env.hub, 1)

	conn.Close()
	waitForTopics(t, env.hub, 0)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && env.hub.SessionCount() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := env.hub.SessionCount(); got != 0 {
		t.Errorf("SessionCount = %d after disconnect, want 0", got)
	}
}

func TestMalformedFrameDoesNotKillConnection(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("garbage")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	sendEnvelope(t, conn, wire.TypeJoinShipment, wire.TopicRef{ShipmentID: "TRK-1"})
	waitForTopics(t, env.hub, 1)

	env.hub.PublishShipmentUpdate(&realtime.ShipmentUpdateEvent{
		ShipmentID: "TRK-1", Status: "delivered",
		UpdatedBy: realtime.UpdatedBySystem, ActorID: "sys", Timestamp: time.Now(),
	})
	if push := readPush(t, conn); push.Event != "shipment-update-TRK-1" {
		t.Errorf("connection should survive a garbage frame, got %q", push.Event)
	}
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin"})
	resp, err := http.Post(env.server.URL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	bad, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp2, err := http.Post(env.server.URL+"/login", "application/json", bytes.NewReader(bad))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", resp2.StatusCode)
	}
}

func TestWriteEndpointsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"origin": "A", "destination": "B"})
	resp, err := http.Post(env.server.URL+"/api/shipments", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated create status = %d, want 401", resp.StatusCode)
	}
}

func TestConnectIdentityFromToken(t *testing.T) {
	h := &Handlers{
		sessions: newSessionStore("test-secret"),
		verifyToken: func(token string) (string, bool) {
			if token == "DRV-7" {
				return "driver:DRV-7", true
			}
			return "", false
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/ws?token=DRV-7", nil)
	if got := h.connectIdentity(req); got != "driver:DRV-7" {
		t.Errorf("identity = %q, want driver:DRV-7", got)
	}

	// Bad or absent tokens leave the session anonymous, never refused.
	req = httptest.NewRequest(http.MethodGet, "/ws?token=DRV-404", nil)
	if got := h.connectIdentity(req); got != "" {
		t.Errorf("identity = %q, want anonymous for a bad token", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	if got := h.connectIdentity(req); got != "" {
		t.Errorf("identity = %q, want anonymous without a token", got)
	}
}

func TestPublicTracking(t *testing.T) {
	env := newTestEnv(t)

	s := &store.Shipment{TrackingNumber: "MSE-PUB1", Origin: "A", Destination: "B"}
	if err := env.db.CreateShipment(s); err != nil {
		t.Fatalf("create shipment: %v", err)
	}

	resp, err := http.Get(env.server.URL + "/api/track/MSE-PUB1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("track status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Shipment struct {
			TrackingNumber string `json:"trackingNumber"`
			Status         string `json:"status"`
		} `json:"shipment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Shipment.TrackingNumber != "MSE-PUB1" || out.Shipment.Status != store.StatusCreated {
		t.Errorf("got %+v", out.Shipment)
	}

	missing, err := http.Get(env.server.URL + "/api/track/MSE-NOPE")
	if err != nil {
		t.Fatalf("track missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing tracking status = %d, want 404", missing.StatusCode)
	}
}
