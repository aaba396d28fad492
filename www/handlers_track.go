package www

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"trackcore/store"
)

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.hub.SessionCount(),
	})
}

// apiTrack is the public tracking endpoint: shipment, status history, the
// driver's last known position, and a routing ETA when the destination has
// coordinates. Position and ETA are best effort and omitted on failure.
func (h *Handlers) apiTrack(w http.ResponseWriter, r *http.Request) {
	trackingNumber := chi.URLParam(r, "trackingNumber")
	s, err := h.db.GetShipmentByTracking(trackingNumber)
	if err == store.ErrNoRows {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		log.Printf("www: track %s: %v", trackingNumber, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := map[string]any{
		"shipment": toShipmentResponse(s),
	}

	if history, err := h.db.ShipmentHistory(s.ID); err == nil {
		type entry struct {
			Status    string `json:"status"`
			Location  string `json:"location,omitempty"`
			CreatedAt string `json:"createdAt"`
		}
		out := make([]entry, 0, len(history))
		for _, e := range history {
			out = append(out, entry{
				Status:    e.Status,
				Location:  e.Location,
				CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		resp["history"] = out
	}

	pos := h.fleet.ShipmentPosition(r.Context(), s.TrackingNumber)
	if pos != nil {
		resp["position"] = map[string]any{
			"latitude":   pos.Latitude,
			"longitude":  pos.Longitude,
			"reportedAt": pos.ReportedAt.UTC().Format(time.RFC3339),
		}
	}

	if pos != nil && s.DestLat != nil && s.DestLng != nil && h.geo.Enabled() {
		route, err := h.geo.Route(r.Context(), pos.Latitude, pos.Longitude, *s.DestLat, *s.DestLng)
		if err != nil {
			log.Printf("www: route for %s: %v", trackingNumber, err)
		} else {
			resp["eta"] = map[string]any{
				"distanceMeters":  route.DistanceMeters,
				"durationSeconds": route.DurationSeconds,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
