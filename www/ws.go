package www

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trackcore/realtime"
	"trackcore/wire"
)

// wsTransport queues pushes for one websocket session. Send never blocks:
// a full buffer returns an error and the delivery policy drops the event.
type wsTransport struct {
	send chan realtime.OutMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newWSTransport(buffer int) *wsTransport {
	if buffer <= 0 {
		buffer = 64
	}
	return &wsTransport{
		send: make(chan realtime.OutMessage, buffer),
		done: make(chan struct{}),
	}
}

func (t *wsTransport) Send(msg realtime.OutMessage) error {
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

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// handleWS upgrades the connection and runs the session until the client
// disconnects or misses the pong deadline.
func (h *Handlers) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("www: websocket upgrade: %v", err)
		return
	}

	transport := newWSTransport(h.realtimeCfg.SendBuffer)
	sess := h.hub.Attach(transport)

	// Identity is best effort: an authenticated admin cookie or a token
	// query parameter. Absent or bad credentials leave the session
	// anonymous; the handshake never fails on auth.
	identity := h.connectIdentity(r)
	h.hub.Open(sess, identity)

	ingestor := wire.NewIngestor(&wsMessageHandler{hub: h.hub, sess: sess})

	go h.writePump(conn, transport, sess)
	h.readPump(conn, sess, ingestor)
}

func (h *Handlers) readPump(conn *websocket.Conn, sess *realtime.Session, ingestor *wire.Ingestor) {
	defer func() {
		h.hub.CloseSession(sess)
		conn.Close()
	}()

	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(h.realtimeCfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		sess.Touch()
		return conn.SetReadDeadline(time.Now().Add(h.realtimeCfg.PongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("www: websocket read from %s: %v", sess.ID(), err)
			}
			return
		}
		sess.Touch()
		conn.SetReadDeadline(time.Now().Add(h.realtimeCfg.PongTimeout))
		ingestor.HandleRaw(data)
	}
}

func (h *Handlers) writePump(conn *websocket.Conn, transport *wsTransport, sess *realtime.Session) {
	ping := time.NewTicker(h.realtimeCfg.PingInterval)
	defer func() {
		ping.Stop()
		h.hub.CloseSession(sess)
		conn.Close()
	}()

	for {
		select {
		case <-transport.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg := <-transport.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("www: websocket write to %s: %v", sess.ID(), err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// wsMessageHandler maps inbound wire messages onto hub operations for one
// session.
type wsMessageHandler struct {
	hub  *realtime.Hub
	sess *realtime.Session
}

// refTopic resolves a join/leave payload to a topic. Zero TopicID means
// the payload named nothing joinable.
func refTopic(ref *wire.TopicRef) realtime.TopicID {
	switch {
	case ref.ShipmentID != "":
		return realtime.ShipmentTopic(ref.ShipmentID)
	case ref.Global == wire.GlobalDrivers:
		return realtime.AllDrivers
	case ref.Global == wire.GlobalAdminActivity:
		return realtime.AllAdminActivity
	default:
		return realtime.TopicID{}
	}
}

func (w *wsMessageHandler) HandleJoinShipment(_ *wire.Envelope, ref *wire.TopicRef) {
	w.hub.Join(w.sess, refTopic(ref))
}

func (w *wsMessageHandler) HandleLeaveShipment(_ *wire.Envelope, ref *wire.TopicRef) {
	w.hub.Leave(w.sess, refTopic(ref))
}

func (w *wsMessageHandler) HandleDriverLocation(_ *wire.Envelope, ev *realtime.DriverLocationEvent) {
	w.hub.PublishDriverLocation(ev)
}

func (w *wsMessageHandler) HandleShipmentStatus(_ *wire.Envelope, ev *realtime.ShipmentUpdateEvent) {
	w.hub.PublishShipmentUpdate(ev)
}

func (w *wsMessageHandler) HandleAdminUpdate(_ *wire.Envelope, ev *realtime.AdminActivityEvent) {
	w.hub.PublishAdminActivity(ev)
}

func (w *wsMessageHandler) HandleAssignDriver(_ *wire.Envelope, ev *realtime.DriverAssignment) {
	w.hub.PublishDriverAssignment(ev)
}
