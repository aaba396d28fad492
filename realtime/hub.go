package realtime

import (
	"log"
	"sync"
)

// EventTap observes every event accepted by the publish API, after
// validation and independent of room membership. Used for the last-known
// position cache and the outbound integration mirror.
type EventTap func(ev Event)

// Hub owns the topic registry and all live sessions and performs the
// publish -> dispatch -> deliver path. It is constructed once in the
// composition root and handed to every caller that needs to publish;
// there is deliberately no package-level instance.
type Hub struct {
	registry *Registry
	policy   DeliveryPolicy

	// mu serializes dispatch so that two publishes to the same topic are
	// delivered to its members in publish order. It also guards sessions
	// and serializes join/leave against teardown: a close running between
	// a join's open-state check and its registry insert would otherwise
	// strand a CLOSED session in the member set.
	mu       sync.Mutex
	sessions map[string]*Session
	taps     []EventTap
}

func NewHub(policy DeliveryPolicy) *Hub {
	if policy == nil {
		policy = BestEffort()
	}
	return &Hub{
		registry: NewRegistry(),
		policy:   policy,
		sessions: make(map[string]*Session),
	}
}

// OnEvent registers a tap. Call before serving traffic; taps are not
// guarded after startup.
func (h *Hub) OnEvent(tap EventTap) {
	h.taps = append(h.taps, tap)
}

func (h *Hub) Registry() *Registry { return h.registry }

// Attach creates a CONNECTING session bound to the given transport.
func (h *Hub) Attach(transport Transport) *Session {
	return NewSession(transport)
}

// Open completes the handshake: the session becomes OPEN and eligible for
// room membership. Identity is best-effort; empty means anonymous.
func (h *Hub) Open(s *Session, identity string) {
	h.mu.Lock()
	s.Open(identity)
	if s.State() == StateOpen {
		h.sessions[s.ID()] = s
	}
	h.mu.Unlock()
	log.Printf("realtime: session %s open (identity=%q)", s.ID(), identity)
}

// CloseSession tears the session down. LeaveAll runs before the session is
// discarded; that is the one mandatory side effect of teardown. Closing
// twice is harmless.
func (h *Hub) CloseSession(s *Session) {
	h.mu.Lock()
	if !s.close() {
		h.mu.Unlock()
		return
	}
	h.registry.LeaveAll(s)
	delete(h.sessions, s.ID())
	h.mu.Unlock()
	if err := s.transport.Close(); err != nil {
		log.Printf("realtime: close transport for %s: %v", s.ID(), err)
	}
	log.Printf("realtime: session %s closed", s.ID())
}

// Join subscribes an open session to a room. The state check and the
// registry insert happen under the same lock as CloseSession, so a join
// racing teardown either refuses or is fully undone by LeaveAll.
func (h *Hub) Join(s *Session, topic TopicID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.State() != StateOpen {
		return
	}
	h.registry.Join(topic, s)
}

// Leave unsubscribes the session from a room; unknown memberships no-op.
func (h *Hub) Leave(s *Session, topic TopicID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registry.Leave(topic, s)
}

// SessionCount reports the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dispatch delivers one event to every current member of the topic. The
// member set is snapshotted at dispatch time: sessions joining afterwards
// never see the event, and a failed delivery to one member never affects
// the others.
func (h *Hub) Dispatch(topic TopicID, ev Event) {
	h.mu.Lock()
	members := h.registry.MembersOf(topic)
	for _, s := range members {
		h.policy.Deliver(s, OutMessage{Event: ev.EventName(topic), Data: ev})
	}
	h.mu.Unlock()
}

// broadcastAll delivers to every open session regardless of rooms.
func (h *Hub) broadcastAll(ev Event) {
	h.mu.Lock()
	for _, s := range h.sessions {
		h.policy.Deliver(s, OutMessage{Event: ev.EventName(TopicID{}), Data: ev})
	}
	h.mu.Unlock()
}

func (h *Hub) tap(ev Event) {
	for _, t := range h.taps {
		t(ev)
	}
}

// PublishDriverLocation fans a position report out to the shipment's room
// (when the report names one) and always to the all-drivers firehose.
// Malformed events are dropped at this boundary; publishers get no
// acknowledgment either way.
func (h *Hub) PublishDriverLocation(ev *DriverLocationEvent) {
	if err := ev.Validate(); err != nil {
		log.Printf("realtime: reject publish: %v", err)
		return
	}
	if ev.ShipmentID != "" {
		h.Dispatch(ShipmentTopic(ev.ShipmentID), ev)
	}
	h.Dispatch(AllDrivers, ev)
	h.tap(ev)
}

// PublishShipmentUpdate delivers a status change to the shipment's room.
func (h *Hub) PublishShipmentUpdate(ev *ShipmentUpdateEvent) {
	if err := ev.Validate(); err != nil {
		log.Printf("realtime: reject publish: %v", err)
		return
	}
	h.Dispatch(ShipmentTopic(ev.ShipmentID), ev)
	h.tap(ev)
}

// PublishAdminActivity delivers an admin action to the shipment's room and
// to the global admin firehose, so dashboards need only one subscription.
func (h *Hub) PublishAdminActivity(ev *AdminActivityEvent) {
	if err := ev.Validate(); err != nil {
		log.Printf("realtime: reject publish: %v", err)
		return
	}
	h.Dispatch(ShipmentTopic(ev.ShipmentID), ev)
	h.Dispatch(AllAdminActivity, ev)
	h.tap(ev)
}

// PublishDriverAssignment broadcasts an assignment to every open session.
func (h *Hub) PublishDriverAssignment(ev *DriverAssignment) {
	if err := ev.Validate(); err != nil {
		log.Printf("realtime: reject publish: %v", err)
		return
	}
	h.broadcastAll(ev)
	h.tap(ev)
}
