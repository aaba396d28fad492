package wire

import (
	"testing"
	"time"

	"trackcore/realtime"
)

// --- Mock handler ---

type mockHandler struct {
	joins       []*TopicRef
	leaves      []*TopicRef
	locations   []*realtime.DriverLocationEvent
	statuses    []*realtime.ShipmentUpdateEvent
	admin       []*realtime.AdminActivityEvent
	assignments []*realtime.DriverAssignment
}

func (m *mockHandler) HandleJoinShipment(_ *Envelope, ref *TopicRef) {
	m.joins = append(m.joins, ref)
}
func (m *mockHandler) HandleLeaveShipment(_ *Envelope, ref *TopicRef) {
	m.leaves = append(m.leaves, ref)
}
func (m *mockHandler) HandleDriverLocation(_ *Envelope, ev *realtime.DriverLocationEvent) {
	m.locations = append(m.locations, ev)
}
func (m *mockHandler) HandleShipmentStatus(_ *Envelope, ev *realtime.ShipmentUpdateEvent) {
	m.statuses = append(m.statuses, ev)
}
func (m *mockHandler) HandleAdminUpdate(_ *Envelope, ev *realtime.AdminActivityEvent) {
	m.admin = append(m.admin, ev)
}
func (m *mockHandler) HandleAssignDriver(_ *Envelope, ev *realtime.DriverAssignment) {
	m.assignments = append(m.assignments, ev)
}

func encode(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

// --- Tests ---

func TestIngestJoinShipment(t *testing.T) {
	h := &mockHandler{}
	ing := NewIngestor(h)

	ing.HandleRaw(encode(t, TypeJoinShipment, TopicRef{ShipmentID: "TRK-1"}))

	if len(h.joins) != 1 || h.joins[0].ShipmentID != "TRK-1" {
		t.Fatalf("joins = %+v, want one for TRK-1", h.joins)
	}
}

func TestIngestGlobalRoomJoin(t *testing.T) {
	h := &mockHandler{}
	ing := NewIngestor(h)

	ing.HandleRaw(encode(t, TypeJoinShipment, TopicRef{Global: GlobalDrivers}))
	ing.HandleRaw(encode(t, TypeLeaveShipment, TopicRef{Global: GlobalAdminActivity}))

	if len(h.joins) != 1 || h.joins[0].Global != GlobalDrivers {
		t.Errorf("joins = %+v, want global drivers", h.joins)
	}
	if len(h.leaves) != 1 || h.leaves[0].Global != GlobalAdminActivity {
		t.Errorf("leaves = %+v, want global admin-activity", h.leaves)
	}
}

func TestIngestDriverLocation(t *testing.T) {
	h := &mockHandler{}
	ing := NewIngestor(h)

	ev := realtime.DriverLocationEvent{
		DriverID:   "DRV-1",
		Latitude:   51.5,
		Longitude:  -0.12,
		ShipmentID: "TRK-1",
		Timestamp:  time.Now().UTC(),
	}
	ing.HandleRaw(encode(t, TypeDriverLocation, ev))

	if len(h.locations) != 1 {
		t.Fatalf("locations = %d, want 1", len(h.locations))
	}
	got := h.locations[0]
	if got.DriverID != "DRV-1" || got.Latitude != 51.5 || got.ShipmentID != "TRK-1" {
		t.Errorf("decoded %+v", got)
	}
}

func TestIngestShipmentStatusAndAdmin(t *testing.T) {
	h := &mockHandler{}
	ing := NewIngestor(h)

	ing.HandleRaw(encode(t, TypeShipmentStatus, realtime.ShipmentUpdateEvent{
		ShipmentID: "TRK-1", Status: "in_transit",
		UpdatedBy: realtime.UpdatedByDriver, ActorID: "DRV-1", Timestamp: time.Now(),
	}))
	ing.HandleRaw(encode(t, TypeAdminUpdate, realtime.AdminActivityEvent{
		Type: realtime.AdminStatusChange, ShipmentID: "TRK-1",
		AdminID: "admin", Timestamp: time.Now(),
	}))
	ing.HandleRaw(encode(t, TypeAssignDriver, realtime.DriverAssignment{
		ShipmentID: "TRK-1", DriverID: "DRV-1", AdminID: "admin", Timestamp: time.Now(),
	}))

	if len(h.statuses) != 1 || h.statuses[0].Status != "in_transit" {
		t.Errorf("statuses = %+v", h.statuses)
	}
	if len(h.admin) != 1 || h.admin[0].Type != realtime.AdminStatusChange {
		t.Errorf("admin = %+v", h.admin)
	}
	if len(h.assignments) != 1 || h.assignments[0].DriverID != "DRV-1" {
		t.Errorf("assignments = %+v", h.assignments)
	}
}

func TestIngestDropsGarbage(t *testing.T) {
	h := &mockHandler{}
	ing := NewIngestor(h)

	ing.HandleRaw([]byte(`not json`))
	ing.HandleRaw([]byte(`{"type":"no-such-type","id":"1","payload":{}}`))
	ing.HandleRaw([]byte(`{"type":"driver-location-update","id":"1","payload":"not an object"}`))
	// Unknown types are cut at the header, even when the rest of the
	// envelope would not decode; known types still get the full decode.
	ing.HandleRaw([]byte(`{"type":"no-such-type","id":"1","ts":"not-a-timestamp","payload":{}}`))
	ing.HandleRaw([]byte(`{"type":"join-shipment","id":"1","ts":"not-a-timestamp","payload":{}}`))

	if len(h.joins)+len(h.leaves)+len(h.locations)+len(h.statuses)+len(h.admin)+len(h.assignments) != 0 {
		t.Error("garbage frames should not reach the handler")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeJoinShipment, TopicRef{ShipmentID: "TRK-7"})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.ID == "" {
		t.Error("envelope should carry a message id")
	}

	var ref TopicRef
	if err := env.DecodePayload(&ref); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ref.ShipmentID != "TRK-7" {
		t.Errorf("ShipmentID = %q, want TRK-7", ref.ShipmentID)
	}
}

func TestDecodePush(t *testing.T) {
	push, err := DecodePush([]byte(`{"event":"shipment-update-TRK-1","data":{"status":"delivered"}}`))
	if err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if push.Event != "shipment-update-TRK-1" {
		t.Errorf("Event = %q", push.Event)
	}

	if _, err := DecodePush([]byte(`nope`)); err == nil {
		t.Error("garbage should not decode")
	}
}
