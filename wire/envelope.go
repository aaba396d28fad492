// Package wire defines the message framing between realtime clients and
// the server. Inbound frames are typed envelopes decoded in two phases;
// outbound pushes carry a topic-scoped event name plus the payload.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client -> server message types.
const (
	TypeJoinShipment   = "join-shipment"
	TypeLeaveShipment  = "leave-shipment"
	TypeDriverLocation = "driver-location-update"
	TypeShipmentStatus = "shipment-status-update"
	TypeAdminUpdate    = "admin-update"
	TypeAssignDriver   = "assign-driver"
)

// Envelope is the client -> server frame.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Token     string          `json:"token,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// RawHeader is the minimal decode used for routing before the payload is
// touched.
type RawHeader struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewEnvelope creates an outbound envelope with a fresh message ID.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:      msgType,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}, nil
}

// Encode marshals the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the raw payload into the given target.
func (e *Envelope) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// Global room names accepted in TopicRef.Global.
const (
	GlobalDrivers       = "drivers"
	GlobalAdminActivity = "admin-activity"
)

// TopicRef is the payload for join-shipment and leave-shipment. Exactly
// one of ShipmentID or Global is set; Global selects one of the two
// firehose rooms used by fleet and admin dashboards.
type TopicRef struct {
	ShipmentID string `json:"shipmentId,omitempty"`
	Global     string `json:"global,omitempty"`
}

// Push is the server -> client frame. Data is the event payload; Event is
// the topic-scoped name, so a client subscribed to one shipment never has
// to filter out another shipment's traffic.
type Push struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodePush parses a server -> client frame.
func DecodePush(data []byte) (*Push, error) {
	var p Push
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
