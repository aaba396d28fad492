package fleetstate

import (
	"context"
	"log"
	"sync"

	"trackcore/realtime"
)

// Manager keeps the at-most-current position per driver and per shipment.
// With redis available the cache survives restarts and is shared with any
// sidecar readers; without it the process-local maps carry the same data.
type Manager struct {
	redis *RedisStore // nil when running without cache

	mu         sync.RWMutex
	byDriver   map[string]*Position
	byShipment map[string]*Position
}

func NewManager(redis *RedisStore) *Manager {
	return &Manager{
		redis:      redis,
		byDriver:   make(map[string]*Position),
		byShipment: make(map[string]*Position),
	}
}

// Tap adapts the manager to the hub's event tap. Only driver location
// events matter here; everything else passes through untouched.
func (m *Manager) Tap() realtime.EventTap {
	return func(ev realtime.Event) {
		loc, ok := ev.(*realtime.DriverLocationEvent)
		if !ok {
			return
		}
		m.Record(context.Background(), loc)
	}
}

// Record overwrites the last-known position for the reporting driver and,
// when the report names a shipment, for that shipment.
func (m *Manager) Record(ctx context.Context, ev *realtime.DriverLocationEvent) {
	pos := &Position{
		DriverID:   ev.DriverID,
		ShipmentID: ev.ShipmentID,
		Latitude:   ev.Latitude,
		Longitude:  ev.Longitude,
		Accuracy:   ev.Accuracy,
		ReportedAt: ev.Timestamp,
	}

	m.mu.Lock()
	m.byDriver[pos.DriverID] = pos
	if pos.ShipmentID != "" {
		m.byShipment[pos.ShipmentID] = pos
	}
	m.mu.Unlock()

	if m.redis != nil {
		if err := m.redis.SetPosition(ctx, pos); err != nil {
			log.Printf("fleetstate: redis set position: %v", err)
		}
	}
}

func (m *Manager) DriverPosition(ctx context.Context, driverID string) *Position {
	if m.redis != nil {
		pos, err := m.redis.DriverPosition(ctx, driverID)
		if err == nil && pos != nil {
			return pos
		}
		if err != nil {
			log.Printf("fleetstate: redis get driver position: %v", err)
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byDriver[driverID]
}

// FleetPositions returns the last-known position of every driver that has
// reported since startup (or, with redis, since the cache was last cleared).
func (m *Manager) FleetPositions(ctx context.Context) []*Position {
	if m.redis != nil {
		ids, err := m.redis.KnownDrivers(ctx)
		if err == nil {
			out := make([]*Position, 0, len(ids))
			for _, id := range ids {
				if pos, err := m.redis.DriverPosition(ctx, id); err == nil && pos != nil {
					out = append(out, pos)
				}
			}
			return out
		}
		log.Printf("fleetstate: redis list drivers: %v", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Position, 0, len(m.byDriver))
	for _, pos := range m.byDriver {
		out = append(out, pos)
	}
	return out
}

// Forget drops a driver from the cache, for when a driver is deactivated.
func (m *Manager) Forget(ctx context.Context, driverID string) {
	m.mu.Lock()
	delete(m.byDriver, driverID)
	m.mu.Unlock()
	if m.redis != nil {
		if err := m.redis.RemoveDriver(ctx, driverID); err != nil {
			log.Printf("fleetstate: redis remove driver: %v", err)
		}
	}
}

func (m *Manager) ShipmentPosition(ctx context.Context, shipmentID string) *Position {
	if m.redis != nil {
		pos, err := m.redis.ShipmentPosition(ctx, shipmentID)
		if err == nil && pos != nil {
			return pos
		}
		if err != nil {
			log.Printf("fleetstate: redis get shipment position: %v", err)
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byShipment[shipmentID]
}
