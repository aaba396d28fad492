package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"trackcore/realtime"
	"trackcore/wire"
)

// sseTransport is the polling-mode fallback for clients that cannot hold a
// websocket. Same room semantics, read-only: subscriptions come from query
// parameters at connect time and publishing goes through the HTTP API.
type sseTransport struct {
	send chan realtime.OutMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newSSETransport(buffer int) *sseTransport {
	if buffer <= 0 {
		buffer = 64
	}
	return &sseTransport{
		send: make(chan realtime.OutMessage, buffer),
		done: make(chan struct{}),
	}
}

func (t *sseTransport) Send(msg realtime.OutMessage) error {
	select {
	case <-t.done:
		return realtime.ErrSessionClosed
	default:
	}
	select {
	case t.send <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (t *sseTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// handleSSE serves GET /events?shipment=TRK-1&shipment=TRK-2&global=drivers.
func (h *Handlers) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	transport := newSSETransport(h.realtimeCfg.SendBuffer)
	sess := h.hub.Attach(transport)
	h.hub.Open(sess, h.connectIdentity(r))
	defer h.hub.CloseSession(sess)

	q := r.URL.Query()
	for _, id := range q["shipment"] {
		h.hub.Join(sess, realtime.ShipmentTopic(id))
	}
	for _, g := range q["global"] {
		switch g {
		case wire.GlobalDrivers:
			h.hub.Join(sess, realtime.AllDrivers)
		case wire.GlobalAdminActivity:
			h.hub.Join(sess, realtime.AllAdminActivity)
		}
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-transport.done:
			return
		case msg := <-transport.send:
			data, err := json.Marshal(msg.Data)
			if err != nil {
				log.Printf("www: sse encode %s: %v", msg.Event, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data); err != nil {
				log.Printf("www: sse write error: %v", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, "event: keepalive\ndata: ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
