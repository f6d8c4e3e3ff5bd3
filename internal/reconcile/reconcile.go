// Package reconcile decides what the editor should show when a client joins a live session: the
// server's code, or locally persisted draft work that would otherwise be lost.
//
// The decision is pure. The client evaluates it exactly once per connection, on the first
// session_state delivery, and sets InitialLoadComplete synchronously so re-broadcasts and
// reconnects never re-trigger a restore.
package reconcile

import "github.com/algorave/algorave-client/internal/draftstore"

// Input is everything the decision looks at.
type Input struct {
	// HasToken reports whether the user is authenticated.
	HasToken bool
	// CurrentStrudelID is this instance's open cloud strudel, empty when working on a draft.
	CurrentStrudelID string
	// CurrentDraft is the draft this instance was working on, if any.
	CurrentDraft *draftstore.Draft
	// LatestDraft is the most recently updated draft across all instances, if any.
	LatestDraft *draftstore.Draft
	// InitialLoadComplete is true once this connection has applied a session_state.
	InitialLoadComplete bool
}

// ShouldRestoreFromDraft reports whether local draft work wins over the server's session code.
//
// Notes:
//   - Never after the initial load; later session_state deliveries are live updates.
//   - Anonymous users restore whenever any draft exists; drafts are their only persistence.
//   - Authenticated users restore only when no cloud strudel is open; the server is
//     authoritative for saved strudels, local backups never shadow it.
func ShouldRestoreFromDraft(in Input) bool {
	if in.InitialLoadComplete {
		return false
	}
	if !in.HasToken {
		return in.LatestDraft != nil
	}
	if in.CurrentStrudelID != "" {
		return false
	}
	return in.CurrentDraft != nil || in.LatestDraft != nil
}

// PickDraftToRestore selects which draft to load once a restore is decided.
//
// Anonymous users always take the freshest work regardless of which instance produced it.
// Authenticated users prefer the draft this instance was pointing at, falling back to the
// freshest.
func PickDraftToRestore(in Input) *draftstore.Draft {
	if !in.HasToken {
		return in.LatestDraft
	}
	if in.CurrentDraft != nil {
		return in.CurrentDraft
	}
	return in.LatestDraft
}
