package ws

import "fmt"

// SessionState enumerates the per-connection lifecycle:
// Connecting → Authenticating → Authenticated → InRoom ⇄ (leave/join)
// → Disconnected.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateInRoom
	StateDisconnected
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	default:
		return "disconnected"
	}
}

// Session is the per-connection state. It is owned by the connection's read
// pump: no other goroutine mutates it, so no locking is needed.
type Session struct {
	ConnectionID string
	UserID       string
	Username     string
	CurrentRoom  string
	State        SessionState
}

// NewSession starts the lifecycle in Connecting.
func NewSession(connectionID string) *Session {
	return &Session{ConnectionID: connectionID, State: StateConnecting}
}

// Authenticated reports whether the session has a validated identity.
func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated || s.State == StateInRoom
}

// BeginAuth transitions Connecting → Authenticating.
func (s *Session) BeginAuth() error {
	if s.State != StateConnecting {
		return fmt.Errorf("cannot begin auth from %s", s.State)
	}
	s.State = StateAuthenticating
	return nil
}

// Authenticate records the validated identity and transitions to
// Authenticated.
func (s *Session) Authenticate(userID, username string) error {
	if s.State != StateConnecting && s.State != StateAuthenticating {
		return fmt.Errorf("cannot authenticate from %s", s.State)
	}
	s.UserID = userID
	s.Username = username
	s.State = StateAuthenticated
	return nil
}

// EnterRoom records room membership; any prior room must already have been
// left by the caller.
func (s *Session) EnterRoom(roomID string) error {
	if !s.Authenticated() {
		return fmt.Errorf("cannot join room from %s", s.State)
	}
	s.CurrentRoom = roomID
	s.State = StateInRoom
	return nil
}

// ExitRoom clears room membership, returning to Authenticated.
func (s *Session) ExitRoom() {
	s.CurrentRoom = ""
	if s.State == StateInRoom {
		s.State = StateAuthenticated
	}
}

// Disconnect is terminal; all further work scoped to the connection stops.
func (s *Session) Disconnect() {
	s.CurrentRoom = ""
	s.State = StateDisconnected
}
