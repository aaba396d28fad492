package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// --- Mock transport ---

type mockTransport struct {
	mu     sync.Mutex
	sent   []OutMessage
	failAt int // fail every send when > 0 and len(sent) >= failAt
	closed bool
}

func (m *mockTransport) Send(msg OutMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt > 0 && len(m.sent) >= m.failAt {
		return fmt.Errorf("mock: buffer full")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) messages() []OutMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockTransport) events() []string {
	var out []string
	for _, msg := range m.messages() {
		out = append(out, msg.Event)
	}
	return out
}

// --- Helpers ---

func openSession(t *testing.T, hub *Hub) (*Session, *mockTransport) {
	t.Helper()
	tr := &mockTransport{}
	s := hub.Attach(tr)
	hub.Open(s, "")
	return s, tr
}

func locationEvent(driverID, shipmentID string) *DriverLocationEvent {
	return &DriverLocationEvent{
		DriverID:   driverID,
		Latitude:   40.7,
		Longitude:  -74.0,
		ShipmentID: shipmentID,
		Timestamp:  time.Now(),
	}
}

// --- Tests ---

func TestDriverLocationFansOutToShipmentAndFleetRooms(t *testing.T) {
	hub := NewHub(nil)

	shipmentSub, shipmentTr := openSession(t, hub)
	fleetSub, fleetTr := openSession(t, hub)
	otherSub, otherTr := openSession(t, hub)

	hub.Join(shipmentSub, ShipmentTopic("TRK-1"))
	hub.Join(fleetSub, AllDrivers)
	hub.Join(otherSub, ShipmentTopic("TRK-2"))

	hub.PublishDriverLocation(locationEvent("DRV-1", "TRK-1"))

	if got := shipmentTr.events(); len(got) != 1 || got[0] != "driver-location-TRK-1" {
		t.Errorf("shipment subscriber got %v, want [driver-location-TRK-1]", got)
	}
	if got := fleetTr.events(); len(got) != 1 || got[0] != EventDriverLocationBroadcast {
		t.Errorf("fleet subscriber got %v, want [%s]", got, EventDriverLocationBroadcast)
	}
	if got := otherTr.events(); len(got) != 0 {
		t.Errorf("other shipment's subscriber got %v, want nothing", got)
	}
}

func TestDualSubscriberReceivesBothScopedAndBroadcastNames(t *testing.T) {
	hub := NewHub(nil)
	s, tr := openSession(t, hub)
	hub.Join(s, ShipmentTopic("TRK-1"))
	hub.Join(s, AllDrivers)

	hub.PublishDriverLocation(locationEvent("DRV-1", "TRK-1"))

	got := tr.events()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %v", len(got), got)
	}
	seen := map[string]bool{got[0]: true, got[1]: true}
	if !seen["driver-location-TRK-1"] || !seen[EventDriverLocationBroadcast] {
		t.Errorf("got %v, want one scoped and one broadcast push", got)
	}
}

func TestLocationWithoutShipmentOnlyHitsFleetRoom(t *testing.T) {
	hub := NewHub(nil)
	fleetSub, fleetTr := openSession(t, hub)
	hub.Join(fleetSub, AllDrivers)

	hub.PublishDriverLocation(locationEvent("DRV-1", ""))

	if got := fleetTr.events(); len(got) != 1 || got[0] != EventDriverLocationBroadcast {
		t.Errorf("got %v, want [%s]", got, EventDriverLocationBroadcast)
	}
}

func TestAdminActivityFansOutToShipmentAndAdminRooms(t *testing.T) {
	hub := NewHub(nil)

	shipmentSub, shipmentTr := openSession(t, hub)
	adminSub, adminTr := openSession(t, hub)
	hub.Join(shipmentSub, ShipmentTopic("TRK-1"))
	hub.Join(adminSub, AllAdminActivity)

	hub.PublishAdminActivity(&AdminActivityEvent{
		Type:       AdminStatusChange,
		ShipmentID: "TRK-1",
		AdminID:    "admin",
		Timestamp:  time.Now(),
	})

	if got := shipmentTr.events(); len(got) != 1 || got[0] != "admin-update-TRK-1" {
		t.Errorf("shipment subscriber got %v, want [admin-update-TRK-1]", got)
	}
	if got := adminTr.events(); len(got) != 1 || got[0] != EventAdminActivityBroadcast {
		t.Errorf("admin subscriber got %v, want [%s]", got, EventAdminActivityBroadcast)
	}
}

func TestShipmentUpdateStaysInShipmentRoom(t *testing.T) {
	hub := NewHub(nil)
	sub, tr := openSession(t, hub)
	bystander, bystanderTr := openSession(t, hub)
	hub.Join(sub, ShipmentTopic("TRK-1"))
	hub.Join(bystander, AllDrivers)

	hub.PublishShipmentUpdate(&ShipmentUpdateEvent{
		ShipmentID: "TRK-1",
		Status:     "in_transit",
		UpdatedBy:  UpdatedByAdmin,
		ActorID:    "admin",
		Timestamp:  time.Now(),
	})

	if got := tr.events(); len(got) != 1 || got[0] != "shipment-update-TRK-1" {
		t.Errorf("got %v, want [shipment-update-TRK-1]", got)
	}
	if got := bystanderTr.events(); len(got) != 0 {
		t.Errorf("fleet room got %v, want nothing", got)
	}
}

func TestDriverAssignmentReachesEveryOpenSession(t *testing.T) {
	hub := NewHub(nil)
	_, tr1 := openSession(t, hub)
	s2, tr2 := openSession(t, hub)
	hub.Join(s2, ShipmentTopic("TRK-9"))

	hub.PublishDriverAssignment(&DriverAssignment{
		ShipmentID: "TRK-1",
		DriverID:   "DRV-1",
		AdminID:    "admin",
		Timestamp:  time.Now(),
	})

	for i, tr := range []*mockTransport{tr1, tr2} {
		if got := tr.events(); len(got) != 1 || got[0] != EventDriverAssignment {
			t.Errorf("session %d got %v, want [%s]", i, got, EventDriverAssignment)
		}
	}
}

func TestSameTopicPublishesArriveInOrder(t *testing.T) {
	hub := NewHub(nil)
	s, tr := openSession(t, hub)
	hub.Join(s, ShipmentTopic("TRK-1"))

	for i := 0; i < 20; i++ {
		ev := locationEvent("DRV-1", "TRK-1")
		ev.Latitude = float64(i)
		hub.PublishDriverLocation(ev)
	}

	msgs := tr.messages()
	if len(msgs) != 20 {
		t.Fatalf("got %d messages, want 20", len(msgs))
	}
	for i, msg := range msgs {
		loc := msg.Data.(*DriverLocationEvent)
		if loc.Latitude != float64(i) {
			t.Fatalf("message %d has latitude %v, want %v", i, loc.Latitude, float64(i))
		}
	}
}

func TestLateJoinerMissesEarlierEvents(t *testing.T) {
	hub := NewHub(nil)
	hub.PublishDriverLocation(locationEvent("DRV-1", "TRK-1"))

	late, tr := openSession(t, hub)
	hub.Join(late, ShipmentTopic("TRK-1"))

	if got := tr.events(); len(got) != 0 {
		t.Errorf("late joiner got %v, want nothing replayed", got)
	}
}

func TestFailingTransportDoesNotAffectOthers(t *testing.T) {
	hub := NewHub(nil)

	bad := &mockTransport{failAt: 1}
	badSess := hub.Attach(bad)
	hub.Open(badSess, "")
	hub.Join(badSess, ShipmentTopic("TRK-1"))

	good, goodTr := openSession(t, hub)
	hub.Join(good, ShipmentTopic("TRK-1"))

	// First publish lands on both; second overflows the bad transport.
	hub.PublishShipmentUpdate(&ShipmentUpdateEvent{
		ShipmentID: "TRK-1", Status: "picked_up",
		UpdatedBy: UpdatedBySystem, ActorID: "sys", Timestamp: time.Now(),
	})
	hub.PublishShipmentUpdate(&ShipmentUpdateEvent{
		ShipmentID: "TRK-1", Status: "in_transit",
		UpdatedBy: UpdatedBySystem, ActorID: "sys", Timestamp: time.Now(),
	})

	if got := goodTr.events(); len(got) != 2 {
		t.Errorf("healthy session got %d messages, want 2", len(got))
	}
	if got := bad.events(); len(got) != 1 {
		t.Errorf("failing session got %d messages, want 1", len(got))
	}
}

func TestInvalidEventIsDropped(t *testing.T) {
	hub := NewHub(nil)
	s, tr := openSession(t, hub)
	hub.Join(s, AllDrivers)

	hub.PublishDriverLocation(&DriverLocationEvent{
		DriverID:  "DRV-1",
		Latitude:  200, // out of range
		Longitude: 0,
		Timestamp: time.Now(),
	})

	if got := tr.events(); len(got) != 0 {
		t.Errorf("got %v, want invalid event dropped", got)
	}
}

func TestCloseSessionLeavesAllRoomsAndClosesTransport(t *testing.T) {
	hub := NewHub(nil)
	s, tr := openSession(t, hub)
	hub.Join(s, ShipmentTopic("TRK-1"))
	hub.Join(s, AllDrivers)

	hub.CloseSession(s)

	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	if s.TopicCount() != 0 {
		t.Errorf("TopicCount = %d, want 0", s.TopicCount())
	}
	if hub.Registry().TopicCount() != 0 {
		t.Errorf("registry still holds %d topics", hub.Registry().TopicCount())
	}
	if !tr.closed {
		t.Error("transport should be closed")
	}
	if hub.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, want 0", hub.SessionCount())
	}

	// Closing again is harmless.
	hub.CloseSession(s)

	// A closed session receives nothing further.
	hub.PublishDriverLocation(locationEvent("DRV-1", "TRK-1"))
	if got := tr.events(); len(got) != 0 {
		t.Errorf("closed session got %v", got)
	}
}

func TestJoinRequiresOpenSession(t *testing.T) {
	hub := NewHub(nil)
	tr := &mockTransport{}
	s := hub.Attach(tr) // still CONNECTING

	hub.Join(s, ShipmentTopic("TRK-1"))
	if s.TopicCount() != 0 {
		t.Errorf("connecting session joined a room")
	}

	hub.Open(s, "")
	hub.CloseSession(s)
	hub.Join(s, ShipmentTopic("TRK-1"))
	if s.TopicCount() != 0 {
		t.Errorf("closed session joined a room")
	}
}

func TestJoinRacingTeardownNeverLeaksMembership(t *testing.T) {
	hub := NewHub(nil)
	topic := ShipmentTopic("TRK-RACE")

	for i := 0; i < 2000; i++ {
		s, _ := openSession(t, hub)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Join(s, topic)
		}()
		go func() {
			defer wg.Done()
			hub.CloseSession(s)
		}()
		wg.Wait()

		// Whichever side won, a closed session must hold no memberships
		// and the room must be gone.
		if s.State() != StateClosed {
			t.Fatalf("iteration %d: state = %v, want closed", i, s.State())
		}
		if got := len(hub.Registry().MembersOf(topic)); got != 0 {
			t.Fatalf("iteration %d: closed session still registered (members=%d, session topics=%d)",
				i, got, s.TopicCount())
		}
		if s.TopicCount() != 0 {
			t.Fatalf("iteration %d: session still records %d topics after close", i, s.TopicCount())
		}
		if hub.Registry().TopicCount() != 0 {
			t.Fatalf("iteration %d: empty room not reaped", i)
		}
	}
}

func TestTapSeesAcceptedEventsOnly(t *testing.T) {
	hub := NewHub(nil)
	var tapped []Event
	hub.OnEvent(func(ev Event) { tapped = append(tapped, ev) })

	hub.PublishDriverLocation(locationEvent("DRV-1", "TRK-1"))
	hub.PublishDriverLocation(&DriverLocationEvent{DriverID: "", Timestamp: time.Now()})

	if len(tapped) != 1 {
		t.Fatalf("tap saw %d events, want 1", len(tapped))
	}
	if _, ok := tapped[0].(*DriverLocationEvent); !ok {
		t.Errorf("tap saw %T", tapped[0])
	}
}
