package realtime

import "log"

// DeliveryPolicy decides what happens when a push cannot reach a session.
// The hub never retries and never reports failures to publishers; the
// policy makes that contract explicit instead of burying it in a catch.
type DeliveryPolicy interface {
	Deliver(s *Session, msg OutMessage)
}

type bestEffort struct{}

// BestEffort delivers each push at most once. A failed send (dead
// transport, full buffer) is logged and forgotten; these events are UI
// hints, not transactional data.
func BestEffort() DeliveryPolicy {
	return bestEffort{}
}

func (bestEffort) Deliver(s *Session, msg OutMessage) {
	if err := s.transport.Send(msg); err != nil {
		log.Printf("realtime: drop %s for session %s: %v", msg.Event, s.ID(), err)
	}
}
