package www

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trackcore/realtime"
	"trackcore/store"
)

type shipmentResponse struct {
	ID             int64    `json:"id"`
	TrackingNumber string   `json:"trackingNumber"`
	Status         string   `json:"status"`
	TransportMode  string   `json:"transportMode"`
	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	Description    string   `json:"description,omitempty"`
	CustomerName   string   `json:"customerName,omitempty"`
	CustomerEmail  string   `json:"customerEmail,omitempty"`
	DestLat        *float64 `json:"destLat,omitempty"`
	DestLng        *float64 `json:"destLng,omitempty"`
	DriverID       *int64   `json:"driverId,omitempty"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

func toShipmentResponse(s *store.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:             s.ID,
		TrackingNumber: s.TrackingNumber,
		Status:         s.Status,
		TransportMode:  s.TransportMode,
		Origin:         s.Origin,
		Destination:    s.Destination,
		Description:    s.Description,
		CustomerName:   s.CustomerName,
		CustomerEmail:  s.CustomerEmail,
		DestLat:        s.DestLat,
		DestLng:        s.DestLng,
		DriverID:       s.DriverID,
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// newTrackingNumber makes an MSE-XXXXXXXX code. Collisions surface as a
// unique-constraint error on insert and the client retries.
func newTrackingNumber() string {
	const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	rand.Read(buf)
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return "MSE-" + string(buf)
}

func shipmentID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handlers) apiListShipments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	shipments, err := h.db.ListShipments(limit)
	if err != nil {
		log.Printf("www: list shipments: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	out := make([]shipmentResponse, 0, len(shipments))
	for _, s := range shipments {
		out = append(out, toShipmentResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) apiGetShipment(w http.ResponseWriter, r *http.Request) {
	id, err := shipmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	s, err := h.db.GetShipment(id)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(s))
}

func (h *Handlers) apiShipmentHistory(w http.ResponseWriter, r *http.Request) {
	id, err := shipmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	history, err := h.db.ShipmentHistory(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	type entry struct {
		Status    string `json:"status"`
		Location  string `json:"location,omitempty"`
		UpdatedBy string `json:"updatedBy"`
		Detail    string `json:"detail,omitempty"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]entry, 0, len(history))
	for _, e := range history {
		out = append(out, entry{
			Status:    e.Status,
			Location:  e.Location,
			UpdatedBy: e.UpdatedBy,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) apiCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransportMode string   `json:"transportMode"`
		Origin        string   `json:"origin"`
		Destination   string   `json:"destination"`
		Description   string   `json:"description"`
		CustomerName  string   `json:"customerName"`
		CustomerEmail string   `json:"customerEmail"`
		DestLat       *float64 `json:"destLat"`
		DestLng       *float64 `json:"destLng"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Origin == "" || req.Destination == "" {
		writeError(w, http.StatusBadRequest, "origin and destination are required")
		return
	}

	s := &store.Shipment{
		TrackingNumber: newTrackingNumber(),
		TransportMode:  req.TransportMode,
		Origin:         req.Origin,
		Destination:    req.Destination,
		Description:    req.Description,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		DestLat:        req.DestLat,
		DestLng:        req.DestLng,
	}
	if err := h.db.CreateShipment(s); err != nil {
		log.Printf("www: create shipment: %v", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	if err := h.db.UpdateShipmentStatus(s.ID, store.StatusCreated, s.Origin,
		realtime.UpdatedByAdmin, h.getUsername(r), "shipment created"); err != nil {
		log.Printf("www: record created status: %v", err)
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(s))
}

func (h *Handlers) apiUpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, err := shipmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	s, err := h.db.GetShipment(id)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var req struct {
		TransportMode *string  `json:"transportMode"`
		Origin        *string  `json:"origin"`
		Destination   *string  `json:"destination"`
		Description   *string  `json:"description"`
		CustomerName  *string  `json:"customerName"`
		CustomerEmail *string  `json:"customerEmail"`
		DestLat       *float64 `json:"destLat"`
		DestLng       *float64 `json:"destLng"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransportMode != nil {
		s.TransportMode = *req.TransportMode
	}
	if req.Origin != nil {
		s.Origin = *req.Origin
	}
	if req.Destination != nil {
		s.Destination = *req.Destination
	}
	if req.Description != nil {
		s.Description = *req.Description
	}
	if req.CustomerName != nil {
		s.CustomerName = *req.CustomerName
	}
	if req.CustomerEmail != nil {
		s.CustomerEmail = *req.CustomerEmail
	}
	if req.DestLat != nil {
		s.DestLat = req.DestLat
	}
	if req.DestLng != nil {
		s.DestLng = req.DestLng
	}

	if err := h.db.UpdateShipment(s); err != nil {
		log.Printf("www: update shipment %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	h.hub.PublishAdminActivity(&realtime.AdminActivityEvent{
		Type:       realtime.AdminRouteUpdate,
		ShipmentID: s.TrackingNumber,
		AdminID:    h.getUsername(r),
		AdminName:  h.getUsername(r),
		Timestamp:  time.Now(),
	})
	writeJSON(w, http.StatusOK, toShipmentResponse(s))
}

var validStatuses = map[string]bool{
	store.StatusCreated:        true,
	store.StatusPickedUp:       true,
	store.StatusInTransit:      true,
	store.StatusOutForDelivery: true,
	store.StatusDelivered:      true,
	store.StatusCancelled:      true,
}

func (h *Handlers) apiUpdateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := shipmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	var req struct {
		Status   string `json:"status"`
		Location string `json:"location"`
		Detail   string `json:"detail"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	s, err := h.db.GetShipment(id)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	admin := h.getUsername(r)
	if err := h.db.UpdateShipmentStatus(id, req.Status, req.Location,
		realtime.UpdatedByAdmin, admin, req.Detail); err != nil {
		log.Printf("www: update status of %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	now := time.Now()
	h.hub.PublishShipmentUpdate(&realtime.ShipmentUpdateEvent{
		ShipmentID:    s.TrackingNumber,
		Status:        req.Status,
		TransportMode: s.TransportMode,
		Location:      req.Location,
		Timestamp:     now,
		UpdatedBy:     realtime.UpdatedByAdmin,
		ActorID:       admin,
	})
	data, _ := json.Marshal(map[string]string{"status": req.Status})
	h.hub.PublishAdminActivity(&realtime.AdminActivityEvent{
		Type:       realtime.AdminStatusChange,
		ShipmentID: s.TrackingNumber,
		AdminID:    admin,
		AdminName:  admin,
		Data:       data,
		Timestamp:  now,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *Handlers) apiAssignDriver(w http.ResponseWriter, r *http.Request) {
	id, err := shipmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	var req struct {
		DriverID int64 `json:"driverId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.db.GetShipment(id)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	driver, err := h.db.GetDriver(req.DriverID)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "driver not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := h.db.AssignDriver(id, driver.ID); err != nil {
		log.Printf("www: assign driver %d to %d: %v", driver.ID, id, err)
		writeError(w, http.StatusInternalServerError, "assign failed")
		return
	}

	admin := h.getUsername(r)
	now := time.Now()
	data, _ := json.Marshal(map[string]string{"driverCode": driver.Code, "driverName": driver.Name})
	h.hub.PublishAdminActivity(&realtime.AdminActivityEvent{
		Type:       realtime.AdminDriverAssignment,
		ShipmentID: s.TrackingNumber,
		AdminID:    admin,
		AdminName:  admin,
		Data:       data,
		Timestamp:  now,
	})
	h.hub.PublishDriverAssignment(&realtime.DriverAssignment{
		ShipmentID: s.TrackingNumber,
		DriverID:   driver.Code,
		DriverName: driver.Name,
		AdminID:    admin,
		Timestamp:  now,
	})
	writeJSON(w, http.StatusOK, map[string]any{"shipmentId": s.ID, "driverId": driver.ID})
}
