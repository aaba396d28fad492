package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is any payload the hub can dispatch. EventName returns the
// topic-scoped wire name so clients only ever see events for rooms they
// joined; a shipment room and a global room carrying the same payload use
// different names.
type Event interface {
	Validate() error
	EventName(topic TopicID) string
}

// Wire names for the global rooms and the global driver-assignment
// broadcast.
const (
	EventDriverLocationBroadcast = "driver-location-broadcast"
	EventAdminActivityBroadcast  = "admin-activity-broadcast"
	EventDriverAssignment        = "driver-assignment"
)

// DriverLocationEvent is a single position report. Only the latest report
// per driver matters; nothing is retained for late subscribers.
type DriverLocationEvent struct {
	DriverID   string    `json:"driverId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	ShipmentID string    `json:"shipmentId,omitempty"`
}

func (e *DriverLocationEvent) Validate() error {
	if e.DriverID == "" {
		return fmt.Errorf("driver location: missing driverId")
	}
	if e.Latitude < -90 || e.Latitude > 90 {
		return fmt.Errorf("driver location: latitude %f out of range", e.Latitude)
	}
	if e.Longitude < -180 || e.Longitude > 180 {
		return fmt.Errorf("driver location: longitude %f out of range", e.Longitude)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("driver location: missing timestamp")
	}
	return nil
}

func (e *DriverLocationEvent) EventName(topic TopicID) string {
	if topic.Kind() == KindShipment {
		return "driver-location-" + topic.ShipmentID()
	}
	return EventDriverLocationBroadcast
}

// Actors allowed in ShipmentUpdateEvent.UpdatedBy.
const (
	UpdatedByDriver = "driver"
	UpdatedByAdmin  = "admin"
	UpdatedBySystem = "system"
)

// ShipmentUpdateEvent is a status change for one shipment.
type ShipmentUpdateEvent struct {
	ShipmentID    string    `json:"shipmentId"`
	Status        string    `json:"status"`
	TransportMode string    `json:"transportMode,omitempty"`
	Location      string    `json:"location,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	UpdatedBy     string    `json:"updatedBy"`
	ActorID       string    `json:"actorId"`
}

func (e *ShipmentUpdateEvent) Validate() error {
	if e.ShipmentID == "" {
		return fmt.Errorf("shipment update: missing shipmentId")
	}
	if e.Status == "" {
		return fmt.Errorf("shipment update: missing status")
	}
	switch e.UpdatedBy {
	case UpdatedByDriver, UpdatedByAdmin, UpdatedBySystem:
	default:
		return fmt.Errorf("shipment update: unknown updatedBy %q", e.UpdatedBy)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("shipment update: missing timestamp")
	}
	return nil
}

func (e *ShipmentUpdateEvent) EventName(topic TopicID) string {
	return "shipment-update-" + topic.ShipmentID()
}

// Admin activity types.
const (
	AdminStatusChange        = "status_change"
	AdminDriverAssignment    = "driver_assignment"
	AdminRouteUpdate         = "route_update"
	AdminDeliveryInstruction = "delivery_instruction"
)

// AdminActivityEvent records an admin action against a shipment. It lands
// in the shipment's room and the global admin firehose.
type AdminActivityEvent struct {
	Type       string          `json:"type"`
	ShipmentID string          `json:"shipmentId"`
	AdminID    string          `json:"adminId"`
	AdminName  string          `json:"adminName"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (e *AdminActivityEvent) Validate() error {
	switch e.Type {
	case AdminStatusChange, AdminDriverAssignment, AdminRouteUpdate, AdminDeliveryInstruction:
	default:
		return fmt.Errorf("admin activity: unknown type %q", e.Type)
	}
	if e.ShipmentID == "" {
		return fmt.Errorf("admin activity: missing shipmentId")
	}
	if e.AdminID == "" {
		return fmt.Errorf("admin activity: missing adminId")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("admin activity: missing timestamp")
	}
	return nil
}

func (e *AdminActivityEvent) EventName(topic TopicID) string {
	if topic.Kind() == KindShipment {
		return "admin-update-" + topic.ShipmentID()
	}
	return EventAdminActivityBroadcast
}

// DriverAssignment pairs a driver with a shipment. Broadcast to every
// connected session rather than a room.
type DriverAssignment struct {
	ShipmentID string    `json:"shipmentId"`
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName,omitempty"`
	AdminID    string    `json:"adminId"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *DriverAssignment) Validate() error {
	if e.ShipmentID == "" {
		return fmt.Errorf("driver assignment: missing shipmentId")
	}
	if e.DriverID == "" {
		return fmt.Errorf("driver assignment: missing driverId")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("driver assignment: missing timestamp")
	}
	return nil
}

func (e *DriverAssignment) EventName(_ TopicID) string {
	return EventDriverAssignment
}
