package wire

import (
	"encoding/json"
	"log"

	"trackcore/realtime"
)

// Handler receives decoded inbound messages. Embed NoOpHandler and
// override only the methods you need.
type Handler interface {
	HandleJoinShipment(env *Envelope, ref *TopicRef)
	HandleLeaveShipment(env *Envelope, ref *TopicRef)
	HandleDriverLocation(env *Envelope, ev *realtime.DriverLocationEvent)
	HandleShipmentStatus(env *Envelope, ev *realtime.ShipmentUpdateEvent)
	HandleAdminUpdate(env *Envelope, ev *realtime.AdminActivityEvent)
	HandleAssignDriver(env *Envelope, ev *realtime.DriverAssignment)
}

// Ingestor performs the two-phase decode and dispatches to a Handler.
// Malformed or unknown frames are logged and dropped; a bad frame never
// tears down the connection that sent it.
type Ingestor struct {
	handler Handler
}

func NewIngestor(handler Handler) *Ingestor {
	return &Ingestor{handler: handler}
}

// HandleRaw is the entry point for raw frame bytes from the transport.
// Phase 1 decodes only the header, so unknown types are discarded before
// the full envelope and payload are ever touched.
func (ing *Ingestor) HandleRaw(data []byte) {
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("wire: header decode error: %v", err)
		return
	}

	var dispatch func(*Envelope)
	switch hdr.Type {
	case TypeJoinShipment:
		dispatch = func(env *Envelope) { decodeAndCall(ing.handler.HandleJoinShipment, env) }
	case TypeLeaveShipment:
		dispatch = func(env *Envelope) { decodeAndCall(ing.handler.HandleLeaveShipment, env) }
	case TypeDriverLocation:
		dispatch = func(env *Envelope) { decodeAndCall(ing.handler.HandleDriverLocation, env) }
	case TypeShipmentStatus:
		dispatch = func(env *Envelope) { decodeAndCall(ing.handler.HandleShipmentStatus, env) }
	case TypeAdminUpdate:
		dispatch = func(env *Envelope) { decodeAndCall(ing.handler.HandleAdminUpdate, env) }
	case TypeAssignDriver:
		dispatch = func(env *Envelope) { decodeAndCall(ing.handler.HandleAssignDriver, env) }
	default:
		log.Printf("wire: unknown message type: %s", hdr.Type)
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("wire: envelope decode error: %v", err)
		return
	}
	dispatch(&env)
}

func decodeAndCall[T any](fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Printf("wire: payload decode error for %s: %v", env.Type, err)
		return
	}
	fn(env, &p)
}
