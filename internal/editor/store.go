// Package editor holds the live editing state of one client instance: the code buffer, cursor,
// dirtiness against the last cloud save, sync state against the live session, and the AI
// conversation history. Local edits are persisted to the draft store behind a short debounce so
// work survives a crash without a write per keystroke.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/algorave/algorave-client/internal/draftstore"
	"github.com/algorave/algorave-client/internal/sessionscope"
)

// DefaultCode is what a brand-new editor buffer opens with.
const DefaultCode = `// Welcome to Algorave!
// Press Ctrl+Enter (Cmd+Enter on Mac) to play
// Press Ctrl+. (Cmd+.) to stop

sound("bd sd")`

// MaxCodeSizeBytes caps the buffer; edits that would exceed it are dropped.
const MaxCodeSizeBytes = 100 * 1024

const draftSaveDelay = 1 * time.Second

// Snapshot is an immutable copy of the editor state at one point in time.
type Snapshot struct {
	Code                string
	CursorLine          int
	CursorCol           int
	IsDirty             bool
	LastSyncedCode      string
	LastSavedCode       string
	ConversationHistory []draftstore.Message
	CurrentStrudelID    string
	CurrentStrudelTitle string
	CurrentDraftID      string
}

// Store is safe for concurrent use. Listeners registered with Subscribe are invoked outside the
// store lock, in registration order, with a fresh snapshot per mutation.
type Store struct {
	drafts *draftstore.Store
	scope  *sessionscope.Store
	log    *slog.Logger

	// saveDelay is draftSaveDelay in production; tests shorten it.
	saveDelay time.Duration

	mu                  sync.Mutex
	code                string
	cursorLine          int
	cursorCol           int
	isDirty             bool
	lastSyncedCode      string
	lastSavedCode       string
	conversationHistory []draftstore.Message
	currentStrudelID    string
	currentStrudelTitle string
	currentDraftID      string
	saveTimer           *time.Timer
	listeners           map[int]func(Snapshot)
	nextListenerID      int
}

func New(drafts *draftstore.Store, scope *sessionscope.Store, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		drafts:    drafts,
		scope:     scope,
		log:       log,
		saveDelay: draftSaveDelay,
		code:      DefaultCode,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to run after every state change. The returned function removes the
// listener.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state. The history slice is cloned.
func (s *Store) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	history := make([]draftstore.Message, len(s.conversationHistory))
	copy(history, s.conversationHistory)
	return Snapshot{
		Code:                s.code,
		CursorLine:          s.cursorLine,
		CursorCol:           s.cursorCol,
		IsDirty:             s.isDirty,
		LastSyncedCode:      s.lastSyncedCode,
		LastSavedCode:       s.lastSavedCode,
		ConversationHistory: history,
		CurrentStrudelID:    s.currentStrudelID,
		CurrentStrudelTitle: s.currentStrudelTitle,
		CurrentDraftID:      s.currentDraftID,
	}
}

// notifyLocked snapshots state and listener set under the lock, then invokes listeners after the
// caller releases it. Callers must defer the returned func after unlocking.
func (s *Store) notifyLocked() func() {
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

// SetCode replaces the buffer. fromRemote marks pushes arriving over the live session: those
// update lastSyncedCode and never touch dirtiness or the draft debounce. Local edits recompute
// isDirty against the last cloud save and (re)arm the debounced draft write.
//
// Whitespace is significant in live-coding source and the empty buffer is a valid program, so the
// code is stored exactly as given.
func (s *Store) SetCode(code string, fromRemote bool) {
	if s == nil {
		return
	}
	if len(code) > MaxCodeSizeBytes {
		s.log.Warn("editor: code exceeds size limit, edit dropped", "size", len(code), "limit", MaxCodeSizeBytes)
		return
	}
	s.mu.Lock()
	s.code = code
	if fromRemote {
		s.lastSyncedCode = code
	} else {
		s.isDirty = code != s.lastSavedCode
		s.scheduleDraftSaveLocked()
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// SetCursor records the caret position. Cursor moves alone do not dirty the buffer and are not
// persisted.
func (s *Store) SetCursor(line, col int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cursorLine = line
	s.cursorCol = col
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// MarkSynced acknowledges that the current buffer was delivered to the live session.
func (s *Store) MarkSynced() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastSyncedCode = s.code
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// MarkSaved acknowledges a successful cloud save of the current buffer.
func (s *Store) MarkSaved() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastSavedCode = s.code
	s.isDirty = false
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// SetCurrentStrudel points the editor at a cloud strudel and mirrors the id into the session
// scope so subsequent draft writes key on it.
func (s *Store) SetCurrentStrudel(id, title string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.currentStrudelID = id
	s.currentStrudelTitle = title
	notify := s.notifyLocked()
	s.mu.Unlock()
	s.scope.SetCurrentStrudelID(id)
	notify()
}

func (s *Store) SetCurrentDraftID(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.currentDraftID = id
	notify := s.notifyLocked()
	s.mu.Unlock()
	s.scope.SetCurrentDraftID(id)
	notify()
}

// AddToHistory appends a conversation message and persists the draft immediately when the work
// already has an identity. History-only changes never mint a new draft id.
func (s *Store) AddToHistory(msg draftstore.Message) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.conversationHistory = append(s.conversationHistory, msg)
	persist := s.currentStrudelID != "" || s.currentDraftID != ""
	var d draftstore.Draft
	if persist {
		d = s.draftRecordLocked()
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	if persist {
		s.writeDraft(d)
	}
	notify()
}

func (s *Store) ClearHistory() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.conversationHistory = nil
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// RestoreDraft loads a draft into the buffer as local, unsynced work. Cloud-backup drafts keep
// their strudel-keyed id out of the draft pointer so later edits do not clobber the backup key.
func (s *Store) RestoreDraft(d *draftstore.Draft) {
	if s == nil || d == nil {
		return
	}
	history := make([]draftstore.Message, len(d.ConversationHistory))
	copy(history, d.ConversationHistory)
	s.mu.Lock()
	s.code = d.Code
	s.conversationHistory = history
	if d.Origin != draftstore.OriginCloudBackup {
		s.currentDraftID = d.ID
	}
	notify := s.notifyLocked()
	draftID := s.currentDraftID
	s.mu.Unlock()
	if d.Origin != draftstore.OriginCloudBackup {
		s.scope.SetCurrentDraftID(draftID)
	}
	notify()
}

// Reset returns the in-memory state to a fresh buffer. Persisted drafts are untouched; the
// session scope pointers are the caller's to clear.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.code = DefaultCode
	s.cursorLine = 0
	s.cursorCol = 0
	s.isDirty = false
	s.lastSyncedCode = ""
	s.lastSavedCode = ""
	s.conversationHistory = nil
	s.currentStrudelID = ""
	s.currentStrudelTitle = ""
	s.currentDraftID = ""
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// Flush runs any pending debounced draft write now. Call before shutdown.
func (s *Store) Flush() {
	if s == nil {
		return
	}
	s.mu.Lock()
	pending := s.saveTimer != nil
	if pending {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()
	if pending {
		s.persistDraft()
	}
}

// scheduleDraftSaveLocked arms the single-slot debounce. A timer already in flight is replaced,
// so a burst of edits produces one write.
func (s *Store) scheduleDraftSaveLocked() {
	if s.drafts == nil {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.saveDelay, func() {
		s.mu.Lock()
		s.saveTimer = nil
		s.mu.Unlock()
		s.persistDraft()
	})
}

// persistDraft writes the current buffer to the draft store. Identity preference: the open
// strudel's id (a crash-recovery backup of cloud work), else the current draft id, else a freshly
// minted draft id which is recorded before the write so a concurrent reader never sees an id the
// store could not have.
func (s *Store) persistDraft() {
	s.mu.Lock()
	if s.currentStrudelID == "" && s.currentDraftID == "" {
		id := draftstore.GenerateDraftID()
		s.currentDraftID = id
		s.scope.SetCurrentDraftID(id)
	}
	d := s.draftRecordLocked()
	s.mu.Unlock()
	s.writeDraft(d)
}

func (s *Store) draftRecordLocked() draftstore.Draft {
	history := make([]draftstore.Message, len(s.conversationHistory))
	copy(history, s.conversationHistory)
	d := draftstore.Draft{
		Code:                s.code,
		ConversationHistory: history,
		UpdatedAtUnixMs:     time.Now().UnixMilli(),
		Title:               s.currentStrudelTitle,
	}
	if s.currentStrudelID != "" {
		d.ID = s.currentStrudelID
		d.Origin = draftstore.OriginCloudBackup
	} else {
		d.ID = s.currentDraftID
		d.Origin = draftstore.OriginForID(s.currentDraftID)
	}
	return d
}

// writeDraft is best effort. A failed write is logged and the buffer stays live; the next edit
// retries naturally.
func (s *Store) writeDraft(d draftstore.Draft) {
	if s.drafts == nil || d.ID == "" {
		return
	}
	if err := s.drafts.SetDraft(context.Background(), d); err != nil {
		s.log.Warn("editor: draft persist failed", "draft_id", d.ID, "error", err)
	}
}
