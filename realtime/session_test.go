package realtime

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := NewSession(&mockTransport{})
	if s.State() != StateConnecting {
		t.Fatalf("new session state = %v, want connecting", s.State())
	}
	if s.ID() == "" {
		t.Error("session should get an id at attach time")
	}

	s.Open("admin")
	if s.State() != StateOpen {
		t.Errorf("state = %v, want open", s.State())
	}
	if !s.Authenticated() || s.Identity() != "admin" {
		t.Errorf("identity = %q, want admin", s.Identity())
	}

	if !s.close() {
		t.Error("first close should report the transition")
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	if s.close() {
		t.Error("second close should be a no-op")
	}

	// CLOSED is terminal.
	s.Open("again")
	if s.State() != StateClosed {
		t.Error("open after close should not resurrect the session")
	}
}

func TestAnonymousSession(t *testing.T) {
	s := NewSession(&mockTransport{})
	s.Open("")
	if s.State() != StateOpen {
		t.Errorf("state = %v, want open without identity", s.State())
	}
	if s.Authenticated() {
		t.Error("empty identity should read as anonymous")
	}
}

func TestOpenOnlyFromConnecting(t *testing.T) {
	s := NewSession(&mockTransport{})
	s.Open("first")
	s.Open("second")
	if s.Identity() != "first" {
		t.Errorf("identity = %q, re-open should not replace it", s.Identity())
	}
}
