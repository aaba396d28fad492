package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Shipment statuses. New shipments start as "created"; terminal states are
// "delivered" and "cancelled".
const (
	StatusCreated        = "created"
	StatusPickedUp       = "picked_up"
	StatusInTransit      = "in_transit"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
)

type Shipment struct {
	ID             int64
	TrackingNumber string
	Status         string
	TransportMode  string
	Origin         string
	Destination    string
	Description    string
	CustomerName   string
	CustomerEmail  string
	DestLat        *float64
	DestLng        *float64
	DriverID       *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type StatusHistoryEntry struct {
	ID         int64
	ShipmentID int64
	Status     string
	Location   string
	UpdatedBy  string
	ActorID    string
	Detail     string
	CreatedAt  time.Time
}

func (db *DB) CreateShipment(s *Shipment) error {
	if s.Status == "" {
		s.Status = StatusCreated
	}
	if s.TransportMode == "" {
		s.TransportMode = "road"
	}
	query := db.Q(`INSERT INTO shipments
		(tracking_number, status, transport_mode, origin, destination, description, customer_name, customer_email, dest_lat, dest_lng, driver_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if db.driver == "postgres" {
		query += " RETURNING id"
		return db.QueryRow(query, s.TrackingNumber, s.Status, s.TransportMode, s.Origin,
			s.Destination, s.Description, s.CustomerName, s.CustomerEmail, s.DestLat, s.DestLng, s.DriverID).Scan(&s.ID)
	}
	res, err := db.Exec(query, s.TrackingNumber, s.Status, s.TransportMode, s.Origin,
		s.Destination, s.Description, s.CustomerName, s.CustomerEmail, s.DestLat, s.DestLng, s.DriverID)
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

const shipmentCols = `id, tracking_number, status, transport_mode, origin, destination,
	description, customer_name, customer_email, dest_lat, dest_lng, driver_id, created_at, updated_at`

func (db *DB) scanShipment(row interface{ Scan(...any) error }) (*Shipment, error) {
	var s Shipment
	var createdAt, updatedAt any
	err := row.Scan(&s.ID, &s.TrackingNumber, &s.Status, &s.TransportMode, &s.Origin,
		&s.Destination, &s.Description, &s.CustomerName, &s.CustomerEmail, &s.DestLat, &s.DestLng,
		&s.DriverID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (db *DB) GetShipment(id int64) (*Shipment, error) {
	row := db.QueryRow(db.Q(`SELECT `+shipmentCols+` FROM shipments WHERE id=?`), id)
	return db.scanShipment(row)
}

func (db *DB) GetShipmentByTracking(trackingNumber string) (*Shipment, error) {
	row := db.QueryRow(db.Q(`SELECT `+shipmentCols+` FROM shipments WHERE tracking_number=?`), trackingNumber)
	return db.scanShipment(row)
}

func (db *DB) ListShipments(limit int) ([]*Shipment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(db.Q(`SELECT `+shipmentCols+` FROM shipments ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Shipment
	for rows.Next() {
		s, err := db.scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) ListShipmentsByDriver(driverID int64) ([]*Shipment, error) {
	rows, err := db.Query(db.Q(`SELECT `+shipmentCols+` FROM shipments WHERE driver_id=? ORDER BY id DESC`), driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Shipment
	for rows.Next() {
		s, err := db.scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateShipmentStatus moves the shipment to a new status and appends a
// history row in the same transaction.
func (db *DB) UpdateShipmentStatus(id int64, status, location, updatedBy, actorID, detail string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(db.Q(`UPDATE shipments SET status=?, updated_at=`+db.dialect.Now()+` WHERE id=?`),
		status, id); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.Exec(db.Q(`INSERT INTO shipment_status_history
		(shipment_id, status, location, updated_by, actor_id, detail) VALUES (?, ?, ?, ?, ?, ?)`),
		id, status, location, updatedBy, actorID, detail); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return tx.Commit()
}

func (db *DB) UpdateShipment(s *Shipment) error {
	_, err := db.Exec(db.Q(`UPDATE shipments SET transport_mode=?, origin=?, destination=?,
		description=?, customer_name=?, customer_email=?, dest_lat=?, dest_lng=?, updated_at=`+db.dialect.Now()+` WHERE id=?`),
		s.TransportMode, s.Origin, s.Destination, s.Description, s.CustomerName, s.CustomerEmail, s.DestLat, s.DestLng, s.ID)
	return err
}

func (db *DB) AssignDriver(shipmentID int64, driverID int64) error {
	_, err := db.Exec(db.Q(`UPDATE shipments SET driver_id=?, updated_at=`+db.dialect.Now()+` WHERE id=?`),
		driverID, shipmentID)
	return err
}

func (db *DB) ShipmentHistory(shipmentID int64) ([]*StatusHistoryEntry, error) {
	rows, err := db.Query(db.Q(`SELECT id, shipment_id, status, location, updated_by, actor_id, detail, created_at
		FROM shipment_status_history WHERE shipment_id=? ORDER BY id`), shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StatusHistoryEntry
	for rows.Next() {
		var h StatusHistoryEntry
		var createdAt any
		if err := rows.Scan(&h.ID, &h.ShipmentID, &h.Status, &h.Location, &h.UpdatedBy,
			&h.ActorID, &h.Detail, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ErrNoRows is re-exported so handlers can check not-found without
// importing database/sql.
var ErrNoRows = sql.ErrNoRows
