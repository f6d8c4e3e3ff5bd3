package realtime

import (
	"strings"
	"sync"
)

// ConnStatus is the lifecycle of the session channel.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusError        ConnStatus = "error"
)

// SessionStore mirrors what the server has told us about the live session: who is in it, the chat
// log, our role, and channel status. It is the read model the UI renders from; the Client writes
// to it as messages arrive.
type SessionStore struct {
	mu sync.Mutex

	status               ConnStatus
	sessionID            string
	lastError            string
	myRole               Role
	sessionStateReceived bool
	participants         []Participant
	messages             []ChatMessage
}

func NewSessionStore() *SessionStore {
	return &SessionStore{status: StatusDisconnected}
}

func (s *SessionStore) SetStatus(st ConnStatus) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	if st != StatusError {
		s.lastError = ""
	}
}

func (s *SessionStore) Status() ConnStatus {
	if s == nil {
		return StatusDisconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SessionStore) SetError(msg string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	s.lastError = msg
}

func (s *SessionStore) LastError() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *SessionStore) SetSessionID(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = strings.TrimSpace(id)
}

func (s *SessionStore) SessionID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *SessionStore) SetMyRole(r Role) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.myRole = r
}

func (s *SessionStore) MyRole() Role {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.myRole
}

// MarkSessionStateReceived flips once per connection; session_state handlers use it to tell the
// initial delivery from re-broadcasts.
func (s *SessionStore) MarkSessionStateReceived() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionStateReceived = true
}

func (s *SessionStore) SessionStateReceived() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionStateReceived
}

// SetParticipants replaces the roster wholesale, as session_state does.
func (s *SessionStore) SetParticipants(ps []Participant) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = append([]Participant(nil), ps...)
}

// AddParticipant appends unless the person is already present. Registered users match on user id;
// guests have no id and match on display name.
func (s *SessionStore) AddParticipant(p Participant) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.participants {
		if p.UserID != "" && existing.UserID == p.UserID {
			return
		}
		if p.UserID == "" && existing.UserID == "" && existing.DisplayName == p.DisplayName {
			return
		}
	}
	s.participants = append(s.participants, p)
}

// RemoveParticipant drops by the same identity rule as AddParticipant.
func (s *SessionStore) RemoveParticipant(p Participant) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.participants[:0]
	for _, existing := range s.participants {
		match := (p.UserID != "" && existing.UserID == p.UserID) ||
			(p.UserID == "" && existing.UserID == "" && existing.DisplayName == p.DisplayName)
		if !match {
			kept = append(kept, existing)
		}
	}
	s.participants = kept
}

func (s *SessionStore) Participants() []Participant {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Participant(nil), s.participants...)
}

func (s *SessionStore) AddMessage(m ChatMessage) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

func (s *SessionStore) Messages() []ChatMessage {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.messages...)
}

// Reset returns the store to its pre-connection state. Used when leaving a session; a new
// connection starts with a clean read model.
func (s *SessionStore) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusDisconnected
	s.sessionID = ""
	s.lastError = ""
	s.myRole = ""
	s.sessionStateReceived = false
	s.participants = nil
	s.messages = nil
}
