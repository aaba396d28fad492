package www

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trackcore/realtime"
	"trackcore/store"
)

type driverResponse struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Vehicle string `json:"vehicle,omitempty"`
	Active  bool   `json:"active"`
}

func toDriverResponse(d *store.Driver) driverResponse {
	return driverResponse{
		ID:      d.ID,
		Code:    d.Code,
		Name:    d.Name,
		Phone:   d.Phone,
		Vehicle: d.Vehicle,
		Active:  d.Active,
	}
}

func (h *Handlers) apiListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.db.ListDrivers()
	if err != nil {
		log.Printf("www: list drivers: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	out := make([]driverResponse, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, toDriverResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) apiCreateDriver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code"`
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Vehicle string `json:"vehicle"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "code and name are required")
		return
	}
	d := &store.Driver{Code: req.Code, Name: req.Name, Phone: req.Phone, Vehicle: req.Vehicle, Active: true}
	if err := h.db.CreateDriver(d); err != nil {
		log.Printf("www: create driver: %v", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, toDriverResponse(d))
}

func (h *Handlers) apiUpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid driver id")
		return
	}
	d, err := h.db.GetDriver(id)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "driver not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Phone   *string `json:"phone"`
		Vehicle *string `json:"vehicle"`
		Active  *bool   `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Phone != nil {
		d.Phone = *req.Phone
	}
	if req.Vehicle != nil {
		d.Vehicle = *req.Vehicle
	}
	if req.Active != nil {
		d.Active = *req.Active
	}
	if err := h.db.UpdateDriver(d); err != nil {
		log.Printf("www: update driver %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if req.Active != nil && !*req.Active {
		h.fleet.Forget(r.Context(), d.Code)
	}
	writeJSON(w, http.StatusOK, toDriverResponse(d))
}

// apiFleetPositions lists the last-known position of every reporting
// driver, for seeding a fleet map before the live firehose takes over.
func (h *Handlers) apiFleetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.FleetPositions(r.Context()))
}

// apiDriverLocation accepts a position report from a driver app over plain
// HTTP and feeds it through the same publish path as the socket transports.
func (h *Handlers) apiDriverLocation(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	driver, err := h.db.GetDriverByCode(code)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "driver not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var req struct {
		Latitude   float64   `json:"latitude"`
		Longitude  float64   `json:"longitude"`
		Accuracy   *float64  `json:"accuracy"`
		ShipmentID string    `json:"shipmentId"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	ev := &realtime.DriverLocationEvent{
		DriverID:   driver.Code,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Accuracy:   req.Accuracy,
		ShipmentID: req.ShipmentID,
		Timestamp:  req.Timestamp,
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.hub.PublishDriverLocation(ev)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
