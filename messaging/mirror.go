package messaging

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"trackcore/realtime"
)

// mirrorRecord is the integration-feed framing: one record per event the
// hub accepted, regardless of how many rooms it fanned out to.
type mirrorRecord struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Event     any       `json:"event"`
}

// Mirror publishes every hub event to a Kafka topic for downstream
// consumers (notifications, analytics). Delivery is best effort to match
// the hub's own contract: a failed write is logged and dropped, never
// retried, and never blocks dispatch.
type Mirror struct {
	client *Client
	topic  string
	queue  chan *mirrorRecord
	stop   chan struct{}
}

func NewMirror(client *Client, topic string) *Mirror {
	return &Mirror{
		client: client,
		topic:  topic,
		queue:  make(chan *mirrorRecord, 256),
		stop:   make(chan struct{}),
	}
}

func (m *Mirror) Start() {
	go m.run()
}

func (m *Mirror) Stop() {
	select {
	case m.stop <- struct{}{}:
	default:
	}
}

// Tap adapts the mirror to the hub's event tap. Enqueue is non-blocking;
// a full queue drops the record so the dispatcher never waits on Kafka.
func (m *Mirror) Tap() realtime.EventTap {
	return func(ev realtime.Event) {
		rec := &mirrorRecord{
			Kind:      eventKind(ev),
			ID:        uuid.New().String(),
			Timestamp: time.Now().UTC(),
			Event:     ev,
		}
		select {
		case m.queue <- rec:
		default:
			log.Printf("messaging: mirror queue full, dropping %s", rec.Kind)
		}
	}
}

func (m *Mirror) run() {
	for {
		select {
		case <-m.stop:
			return
		case rec := <-m.queue:
			data, err := json.Marshal(rec)
			if err != nil {
				log.Printf("messaging: mirror encode: %v", err)
				continue
			}
			if err := m.client.Publish(m.topic, data); err != nil {
				log.Printf("messaging: mirror publish %s: %v", rec.Kind, err)
			}
		}
	}
}

func eventKind(ev realtime.Event) string {
	switch ev.(type) {
	case *realtime.DriverLocationEvent:
		return "driver-location"
	case *realtime.ShipmentUpdateEvent:
		return "shipment-update"
	case *realtime.AdminActivityEvent:
		return "admin-activity"
	case *realtime.DriverAssignment:
		return "driver-assignment"
	default:
		return "unknown"
	}
}
