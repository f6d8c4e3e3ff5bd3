// Package sessionscope holds the per-client-instance pointer state: which live session, strudel
// and draft this instance is currently working on. Every field is volatile; a new client instance
// starts empty, which is what makes restore-on-startup decisions per instance rather than per
// machine. Durable state belongs in draftstore.
package sessionscope

import (
	"strings"
	"sync"
)

// ViewerSession identifies a read-only join into someone else's session.
type ViewerSession struct {
	SessionID   string
	InviteToken string
	DisplayName string
}

// Store is safe for concurrent use. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	sessionID         string
	previousSessionID string
	currentStrudelID  string
	currentDraftID    string
	viewer            *ViewerSession
}

func New() *Store {
	return &Store{}
}

// SetSessionID records the live session id. The previous id is kept so a restarted connection can
// ask the server to resume the same session.
func (s *Store) SetSessionID(id string) {
	if s == nil {
		return
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" && s.sessionID != id {
		s.previousSessionID = s.sessionID
	}
	s.sessionID = id
}

func (s *Store) SessionID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Store) PreviousSessionID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previousSessionID
}

func (s *Store) ClearSessionID() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		s.previousSessionID = s.sessionID
	}
	s.sessionID = ""
}

func (s *Store) SetCurrentStrudelID(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStrudelID = strings.TrimSpace(id)
}

func (s *Store) CurrentStrudelID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStrudelID
}

func (s *Store) ClearCurrentStrudelID() {
	s.SetCurrentStrudelID("")
}

func (s *Store) SetCurrentDraftID(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDraftID = strings.TrimSpace(id)
}

func (s *Store) CurrentDraftID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDraftID
}

func (s *Store) ClearCurrentDraftID() {
	s.SetCurrentDraftID("")
}

// SetViewerSession records a viewer join. A copy is stored so the caller cannot mutate it later.
func (s *Store) SetViewerSession(v ViewerSession) {
	if s == nil {
		return
	}
	v.SessionID = strings.TrimSpace(v.SessionID)
	v.InviteToken = strings.TrimSpace(v.InviteToken)
	v.DisplayName = strings.TrimSpace(v.DisplayName)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewer = &v
}

// ViewerSession returns a copy of the stored viewer join, or nil when this instance is not
// viewing.
func (s *Store) ViewerSession() *ViewerSession {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewer == nil {
		return nil
	}
	v := *s.viewer
	return &v
}

func (s *Store) ClearViewerSession() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewer = nil
}

// Reset clears every pointer, previous session id included.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.previousSessionID = ""
	s.currentStrudelID = ""
	s.currentDraftID = ""
	s.viewer = nil
}
