// Package sessions holds the server-side records binding a client's push
// stream to a live processing context, and the registry the transport layer
// routes control messages through.
package sessions

import (
	"errors"
	"sync"

	"github.com/storacha/mcp-storage-go/internal/jsonrpc"
)

// State is the lifecycle state of a session.
type State string

const (
	// StatePendingBind means the session is registered but the engine has not
	// yet confirmed the bind. Control messages must not be forwarded to it.
	StatePendingBind State = "pending-bind"
	// StateActive means the bind completed and the session is deliverable.
	StateActive State = "active"
	// StateClosed means the session was torn down. A closed session is never
	// discoverable through the registry.
	StateClosed State = "closed"
)

// ErrSessionClosed is returned by writes against a closed session.
var ErrSessionClosed = errors.New("session closed")

// ClientStream is the capability a concrete transport grants a session: an
// exclusively-owned frame sink. Disconnect observation stays with the
// transport that owns the underlying socket.
type ClientStream interface {
	// WriteFrame writes one self-delimited frame carrying the message.
	WriteFrame(msg jsonrpc.Message) error
	Close() error
}

// Session binds a client's push stream to its id and lifecycle state. The
// stream is owned by the session for its lifetime and never shared.
type Session struct {
	id     string
	stream ClientStream

	mu    sync.Mutex
	state State
}

// NewSession creates a session in the pending-bind state.
func NewSession(id string, stream ClientStream) *Session {
	return &Session{id: id, stream: stream, state: StatePendingBind}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate transitions pending-bind → active. It reports false if the session
// already left the pending state, which happens when the client disconnects
// while the bind is still in flight.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePendingBind {
		return false
	}
	s.state = StateActive
	return true
}

// WriteFrame writes one frame to the push stream. Writing to a closed session
// fails with ErrSessionClosed without touching the stream.
func (s *Session) WriteFrame(msg jsonrpc.Message) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	stream := s.stream
	s.mu.Unlock()

	return stream.WriteFrame(msg)
}

// Close transitions the session to closed and closes the stream. It is
// idempotent: teardown can race with itself (a disconnect observer firing
// after an explicit close), so the second caller sees a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	stream := s.stream
	s.mu.Unlock()

	return stream.Close()
}
