package realtime

import "sync"

// Registry maps topics to their member sessions. Topics are created lazily
// on first join and deleted when the last member leaves, so the map only
// ever holds rooms somebody is watching.
type Registry struct {
	mu     sync.RWMutex
	topics map[TopicID]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[TopicID]map[*Session]struct{})}
}

// Join idempotently adds the session to the topic's member set.
func (r *Registry) Join(topic TopicID, s *Session) {
	if topic.IsZero() || s == nil {
		return
	}
	r.mu.Lock()
	members, ok := r.topics[topic]
	if !ok {
		members = make(map[*Session]struct{})
		r.topics[topic] = members
	}
	members[s] = struct{}{}
	r.mu.Unlock()
	s.rememberTopic(topic)
}

// Leave removes the session from the topic. Leaving a topic the session
// never joined is a no-op, not an error.
func (r *Registry) Leave(topic TopicID, s *Session) {
	if topic.IsZero() || s == nil {
		return
	}
	r.mu.Lock()
	if members, ok := r.topics[topic]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(r.topics, topic)
		}
	}
	r.mu.Unlock()
	s.forgetTopic(topic)
}

// LeaveAll removes the session from every topic it joined, using the
// session's own membership record rather than scanning all topics.
func (r *Registry) LeaveAll(s *Session) {
	if s == nil {
		return
	}
	for _, topic := range s.topicsSnapshot() {
		r.Leave(topic, s)
	}
}

// MembersOf returns a snapshot of the topic's member set. An unknown topic
// yields an empty slice. Iteration order is unspecified.
func (r *Registry) MembersOf(topic TopicID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.topics[topic]
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// TopicCount reports how many rooms currently have members.
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
