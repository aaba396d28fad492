// Package client is the Go-side realtime client: it dials the /ws
// endpoint, keeps room subscriptions alive across reconnects, and routes
// pushes to per-topic handlers by event name.
package client

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trackcore/realtime"
	"trackcore/wire"
)

// Handler receives one push. Data is the raw event payload; callers decode
// into the event type matching the name they subscribed for.
type Handler func(event string, data json.RawMessage)

type Options struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/ws.
	URL string

	// Token is sent with the handshake. Empty connects anonymously.
	Token string

	// MaxRetries bounds automatic reconnection after a dropped
	// connection. Once exhausted the client stays down until Reconnect
	// is called. Zero means the default of 5.
	MaxRetries int

	// RetryDelay is the fixed wait between attempts. Zero means 3s.
	RetryDelay time.Duration
}

type topicKey struct {
	shipment string
	global   string
}

type Client struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	gen       int // bumped per connection so stale readers exit quietly

	nextSub     int
	subs        map[topicKey]map[int]Handler
	assignments map[int]Handler
}

func New(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	return &Client{
		opts:        opts,
		subs:        make(map[topicKey]map[int]Handler),
		assignments: make(map[int]Handler),
	}
}

// Connect dials the server and starts the read loop. Existing
// subscriptions are re-joined, so Connect doubles as the manual recovery
// path after automatic retries run out.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked()
}

// Reconnect is Connect under its recovery name. Safe to call at any time;
// an already-live connection is torn down first.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.connected = false
	}
	return c.dialLocked()
}

func (c *Client) dialLocked() error {
	if c.connected {
		return nil
	}

	url := c.opts.URL
	if c.opts.Token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + c.opts.Token
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	c.conn = conn
	c.connected = true
	c.gen++

	for key := range c.subs {
		if err := c.sendLocked(wire.TypeJoinShipment, keyRef(key)); err != nil {
			log.Printf("client: rejoin %v: %v", key, err)
		}
	}

	go c.readLoop(conn, c.gen)
	return nil
}

// Connected reports whether the client currently holds a live connection.
// Poll it to detect exhausted retries; there is no callback.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++ // orphan the reader so it does not trigger retries
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func keyRef(key topicKey) wire.TopicRef {
	return wire.TopicRef{ShipmentID: key.shipment, Global: key.global}
}

func (c *Client) sendLocked(msgType string, payload any) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	env, err := wire.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	env.Token = c.opts.Token
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(msgType, payload)
}

// subscribe registers a handler for a room, joining it on first use. The
// returned func removes the handler and leaves the room when it was the
// last one; calling it more than once is a no-op.
func (c *Client) subscribe(key topicKey, fn Handler) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	handlers, ok := c.subs[key]
	if !ok {
		handlers = make(map[int]Handler)
		c.subs[key] = handlers
	}
	handlers[id] = fn
	first := len(handlers) == 1
	if first && c.connected {
		if err := c.sendLocked(wire.TypeJoinShipment, keyRef(key)); err != nil {
			log.Printf("client: join %v: %v", key, err)
		}
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			handlers, ok := c.subs[key]
			if !ok {
				return
			}
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subs, key)
				if c.connected {
					if err := c.sendLocked(wire.TypeLeaveShipment, keyRef(key)); err != nil {
						log.Printf("client: leave %v: %v", key, err)
					}
				}
			}
		})
	}
}

// SubscribeShipment delivers every push for one shipment's room: location
// updates, status changes and admin activity scoped to it.
func (c *Client) SubscribeShipment(shipmentID string, fn Handler) func() {
	return c.subscribe(topicKey{shipment: shipmentID}, fn)
}

// SubscribeAllDrivers joins the fleet-wide location firehose.
func (c *Client) SubscribeAllDrivers(fn Handler) func() {
	return c.subscribe(topicKey{global: wire.GlobalDrivers}, fn)
}

// SubscribeAllAdminActivity joins the admin activity firehose.
func (c *Client) SubscribeAllAdminActivity(fn Handler) func() {
	return c.subscribe(topicKey{global: wire.GlobalAdminActivity}, fn)
}

// OnDriverAssignment registers for the assignment broadcast every session
// receives regardless of rooms.
func (c *Client) OnDriverAssignment(fn Handler) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.assignments[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.assignments, id)
			c.mu.Unlock()
		})
	}
}

// PublishDriverLocation sends a position report up the socket. Delivery is
// fire and forget; the server never acknowledges publishes.
func (c *Client) PublishDriverLocation(ev *realtime.DriverLocationEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return c.send(wire.TypeDriverLocation, ev)
}

// PublishShipmentStatus sends a status change up the socket.
func (c *Client) PublishShipmentStatus(ev *realtime.ShipmentUpdateEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return c.send(wire.TypeShipmentStatus, ev)
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			if !stale {
				c.connected = false
				c.conn = nil
			}
			c.mu.Unlock()
			if !stale {
				log.Printf("client: connection lost: %v", err)
				c.retry()
			}
			return
		}
		push, err := wire.DecodePush(data)
		if err != nil {
			log.Printf("client: bad push: %v", err)
			continue
		}
		c.route(push)
	}
}

// retry runs the bounded reconnect loop: a fixed number of attempts with a
// fixed delay. Exhaustion leaves the client disconnected for the caller to
// notice via Connected and recover via Reconnect.
func (c *Client) retry() {
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		time.Sleep(c.opts.RetryDelay)
		c.mu.Lock()
		err := c.dialLocked()
		c.mu.Unlock()
		if err == nil {
			log.Printf("client: reconnected after %d attempt(s)", attempt)
			return
		}
		log.Printf("client: reconnect attempt %d/%d: %v", attempt, c.opts.MaxRetries, err)
	}
	log.Printf("client: reconnect attempts exhausted")
}

// eventTopic maps a push's event name back to the room it came from.
func eventTopic(event string) (topicKey, bool) {
	switch event {
	case realtime.EventDriverLocationBroadcast:
		return topicKey{global: wire.GlobalDrivers}, true
	case realtime.EventAdminActivityBroadcast:
		return topicKey{global: wire.GlobalAdminActivity}, true
	}
	for _, prefix := range []string{"driver-location-", "shipment-update-", "admin-update-"} {
		if strings.HasPrefix(event, prefix) {
			return topicKey{shipment: strings.TrimPrefix(event, prefix)}, true
		}
	}
	return topicKey{}, false
}

func (c *Client) route(push *wire.Push) {
	c.mu.Lock()
	var handlers []Handler
	if push.Event == realtime.EventDriverAssignment {
		for _, fn := range c.assignments {
			handlers = append(handlers, fn)
		}
	} else if key, ok := eventTopic(push.Event); ok {
		for _, fn := range c.subs[key] {
			handlers = append(handlers, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(push.Event, push.Data)
	}
}
