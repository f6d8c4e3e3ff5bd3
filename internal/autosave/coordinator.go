// Package autosave keeps cloud-saved strudels up to date in the background and tracks a
// last-known-good version per strudel for panic recovery during a performance.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/algorave/algorave-client/internal/draftstore"
	"github.com/algorave/algorave-client/internal/editor"
)

// Status describes where the current buffer stands relative to the cloud.
type Status string

const (
	StatusSaved   Status = "saved"
	StatusSaving  Status = "saving"
	StatusUnsaved Status = "unsaved"
)

var (
	// ErrLoginRequired is returned by Save when the user is not authenticated.
	ErrLoginRequired = errors.New("login required to save")
	// ErrTitleRequired is returned by Save when new work has no title to create a strudel with.
	ErrTitleRequired = errors.New("title required to save")
)

const autosaveDelay = 10 * time.Second

// StrudelSaver is the cloud write surface the coordinator needs. Implemented by the API client.
type StrudelSaver interface {
	SaveStrudel(ctx context.Context, id, code string, history []draftstore.Message) error
	CreateStrudel(ctx context.Context, title, code string, history []draftstore.Message) (string, error)
}

// Coordinator watches the editor and autosaves dirty cloud work after a quiet period. It never
// creates strudels on its own; new work reaches the cloud only through an explicit Save.
type Coordinator struct {
	editor *editor.Store
	drafts *draftstore.Store
	saver  StrudelSaver
	authed func() bool
	log    *slog.Logger

	// delay is autosaveDelay in production; tests shorten it.
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	saving bool
	unsub  func()
}

func New(ed *editor.Store, drafts *draftstore.Store, saver StrudelSaver, authed func() bool, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if authed == nil {
		authed = func() bool { return false }
	}
	c := &Coordinator{
		editor: ed,
		drafts: drafts,
		saver:  saver,
		authed: authed,
		log:    log,
		delay:  autosaveDelay,
	}
	c.unsub = ed.Subscribe(c.onSnapshot)
	return c
}

// Close detaches from the editor and cancels any pending autosave.
func (c *Coordinator) Close() {
	if c == nil {
		return
	}
	if c.unsub != nil {
		c.unsub()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Status reports saved/saving/unsaved. Saving takes precedence while a write is in flight;
// anonymous users and unsaved new work are always unsaved.
func (c *Coordinator) Status() Status {
	if c == nil {
		return StatusUnsaved
	}
	c.mu.Lock()
	saving := c.saving
	c.mu.Unlock()
	if saving {
		return StatusSaving
	}
	snap := c.editor.Snapshot()
	if !c.authed() || snap.CurrentStrudelID == "" || snap.IsDirty {
		return StatusUnsaved
	}
	return StatusSaved
}

// onSnapshot arms or disarms the debounce on every editor change. Only dirty, authenticated,
// cloud-backed work qualifies; anything else cancels a pending save rather than letting a stale
// timer fire.
func (c *Coordinator) onSnapshot(snap editor.Snapshot) {
	qualifies := c.authed() && snap.CurrentStrudelID != "" && snap.IsDirty
	c.mu.Lock()
	defer c.mu.Unlock()
	if !qualifies {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.fire)
}

// fire runs the debounced autosave. Conditions are rechecked against a fresh snapshot since the
// world may have changed during the quiet period.
func (c *Coordinator) fire() {
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()

	snap := c.editor.Snapshot()
	if !c.authed() || snap.CurrentStrudelID == "" || !snap.IsDirty {
		return
	}

	c.setSaving(true)
	err := c.saver.SaveStrudel(context.Background(), snap.CurrentStrudelID, snap.Code, snap.ConversationHistory)
	c.setSaving(false)
	if err != nil {
		// The buffer stays dirty; the next edit re-arms the debounce. No retry timer.
		c.log.Warn("autosave failed", "strudel_id", snap.CurrentStrudelID, "error", err)
		return
	}
	c.editor.MarkSaved()
}

func (c *Coordinator) setSaving(v bool) {
	c.mu.Lock()
	c.saving = v
	c.mu.Unlock()
}

// Save pushes the current buffer to the cloud now. New work is created as a strudel under title;
// existing work is updated in place and title is ignored. A successful manual save stamps the
// strudel's known-good version.
func (c *Coordinator) Save(ctx context.Context, title string) error {
	if c == nil {
		return errors.New("autosave coordinator not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.authed() {
		return ErrLoginRequired
	}

	// A manual save supersedes any pending autosave.
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	snap := c.editor.Snapshot()
	id := snap.CurrentStrudelID

	c.setSaving(true)
	defer c.setSaving(false)

	if id == "" {
		title = strings.TrimSpace(title)
		if title == "" {
			title = strings.TrimSpace(snap.CurrentStrudelTitle)
		}
		if title == "" {
			return ErrTitleRequired
		}
		newID, err := c.saver.CreateStrudel(ctx, title, snap.Code, snap.ConversationHistory)
		if err != nil {
			return err
		}
		id = newID
		c.editor.SetCurrentStrudel(id, title)
	} else {
		if err := c.saver.SaveStrudel(ctx, id, snap.Code, snap.ConversationHistory); err != nil {
			return err
		}
	}

	c.editor.MarkSaved()
	if err := c.drafts.SetGoodVersion(ctx, id, snap.Code); err != nil {
		c.log.Warn("good version stamp failed", "strudel_id", id, "error", err)
	}
	return nil
}

// HasRestorableVersion reports whether a known-good version exists for the open strudel that
// differs from the current buffer.
func (c *Coordinator) HasRestorableVersion(ctx context.Context) bool {
	if c == nil {
		return false
	}
	snap := c.editor.Snapshot()
	if snap.CurrentStrudelID == "" {
		return false
	}
	gv, err := c.drafts.GetGoodVersion(ctx, snap.CurrentStrudelID)
	if err != nil || gv == nil {
		return false
	}
	return gv.Code != snap.Code
}

// Restore replaces the buffer with the open strudel's known-good version. The restored code is a
// local edit, so dirtiness and draft persistence behave as if the user typed it.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c == nil {
		return errors.New("autosave coordinator not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	snap := c.editor.Snapshot()
	if snap.CurrentStrudelID == "" {
		return errors.New("no strudel open")
	}
	gv, err := c.drafts.GetGoodVersion(ctx, snap.CurrentStrudelID)
	if err != nil {
		return err
	}
	if gv == nil {
		return errors.New("no good version recorded")
	}
	if gv.Code != snap.Code {
		c.editor.SetCode(gv.Code, false)
	}
	return nil
}

// SeedGoodVersion records code as the known-good version for a strudel if none exists yet. Called
// when a strudel is loaded so Restore has a floor even before the first manual save.
func (c *Coordinator) SeedGoodVersion(ctx context.Context, strudelID, code string) {
	if c == nil || strudelID == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	gv, err := c.drafts.GetGoodVersion(ctx, strudelID)
	if err != nil {
		c.log.Warn("good version read failed", "strudel_id", strudelID, "error", err)
		return
	}
	if gv != nil {
		return
	}
	if err := c.drafts.SetGoodVersion(ctx, strudelID, code); err != nil {
		c.log.Warn("good version seed failed", "strudel_id", strudelID, "error", err)
	}
}
