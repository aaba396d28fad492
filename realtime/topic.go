package realtime

import "fmt"

// TopicKind discriminates the topic sum type.
type TopicKind int

const (
	// KindShipment is a per-shipment room keyed by tracking number.
	KindShipment TopicKind = iota + 1
	// KindAllDrivers receives every driver location event.
	KindAllDrivers
	// KindAllAdminActivity receives every admin activity event.
	KindAllAdminActivity
)

// TopicID identifies one event stream: a single shipment's room or one of
// the two always-on global rooms. The zero value is invalid.
type TopicID struct {
	kind       TopicKind
	shipmentID string
}

// ShipmentTopic returns the topic for one shipment's room.
func ShipmentTopic(shipmentID string) TopicID {
	return TopicID{kind: KindShipment, shipmentID: shipmentID}
}

// AllDrivers is the global driver-location firehose topic.
var AllDrivers = TopicID{kind: KindAllDrivers}

// AllAdminActivity is the global admin-activity firehose topic.
var AllAdminActivity = TopicID{kind: KindAllAdminActivity}

func (t TopicID) Kind() TopicKind    { return t.kind }
func (t TopicID) ShipmentID() string { return t.shipmentID }
func (t TopicID) IsZero() bool       { return t.kind == 0 }

func (t TopicID) String() string {
	switch t.kind {
	case KindShipment:
		return "shipment:" + t.shipmentID
	case KindAllDrivers:
		return "all-drivers"
	case KindAllAdminActivity:
		return "all-admin-activity"
	default:
		return fmt.Sprintf("invalid-topic(%d)", int(t.kind))
	}
}
