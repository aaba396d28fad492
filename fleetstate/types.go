package fleetstate

import "time"

// Position is the cached last-known report for a driver. Only the newest
// report is kept; this cache is how a freshly opened tracking page gets a
// marker before the next live event arrives. It is not an event log.
type Position struct {
	DriverID   string    `json:"driver_id"`
	ShipmentID string    `json:"shipment_id,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}
