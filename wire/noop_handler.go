package wire

import "trackcore/realtime"

// NoOpHandler implements Handler with empty methods.
type NoOpHandler struct{}

func (NoOpHandler) HandleJoinShipment(*Envelope, *TopicRef)                    {}
func (NoOpHandler) HandleLeaveShipment(*Envelope, *TopicRef)                   {}
func (NoOpHandler) HandleDriverLocation(*Envelope, *realtime.DriverLocationEvent) {}
func (NoOpHandler) HandleShipmentStatus(*Envelope, *realtime.ShipmentUpdateEvent) {}
func (NoOpHandler) HandleAdminUpdate(*Envelope, *realtime.AdminActivityEvent)     {}
func (NoOpHandler) HandleAssignDriver(*Envelope, *realtime.DriverAssignment)      {}
