package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the connection lifecycle: CONNECTING -> OPEN -> CLOSED.
// CLOSED is terminal.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned by transports asked to send on a dead session.
var ErrSessionClosed = errors.New("session closed")

// OutMessage is one push to a client: a topic-scoped event name plus the
// event payload.
type OutMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Transport delivers pushes to one client. Send must not block the caller;
// implementations queue and drop on overflow.
type Transport interface {
	Send(msg OutMessage) error
	Close() error
}

// Session is one live client connection and its topic memberships. The
// identity is whatever the transport layer attached at connect time; empty
// means anonymous. Public tracking pages work without login.
type Session struct {
	id        string
	transport Transport

	mu           sync.Mutex
	state        SessionState
	identity     string
	topics       map[TopicID]struct{}
	lastActivity time.Time
}

// NewSession creates a session in the CONNECTING state.
func NewSession(transport Transport) *Session {
	return &Session{
		id:           uuid.New().String(),
		transport:    transport,
		state:        StateConnecting,
		topics:       make(map[TopicID]struct{}),
		lastActivity: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

// Open transitions CONNECTING -> OPEN. A missing identity leaves the
// session anonymous; it never blocks the transition.
func (s *Session) Open(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return
	}
	s.state = StateOpen
	s.identity = identity
	s.lastActivity = time.Now()
}

// close transitions to CLOSED and reports whether this call did the
// transition. Registry cleanup is the hub's job, not the session's.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	return true
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether a verified identity was attached.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != ""
}

func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Touch records transport-level activity (any inbound frame or pong).
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) rememberTopic(t TopicID) {
	s.mu.Lock()
	s.topics[t] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) forgetTopic(t TopicID) {
	s.mu.Lock()
	delete(s.topics, t)
	s.mu.Unlock()
}

// topicsSnapshot lets LeaveAll walk only the topics this session joined
// instead of scanning the whole registry.
func (s *Session) topicsSnapshot() []TopicID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TopicID, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// TopicCount reports how many rooms the session currently belongs to.
func (s *Session) TopicCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}
