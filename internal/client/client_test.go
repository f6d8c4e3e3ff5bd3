package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/algorave/algorave-client/internal/api"
	"github.com/algorave/algorave-client/internal/config"
	"github.com/algorave/algorave-client/internal/draftstore"
	"github.com/algorave/algorave-client/internal/realtime"
	"github.com/algorave/algorave-client/internal/settings"
)

func newTestClient(t *testing.T, apiBaseURL, token string) *Client {
	t.Helper()
	cfg := config.Default()
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	cfg.StateDir = t.TempDir()
	configPath := filepath.Join(cfg.StateDir, "config.json")

	secrets := settings.NewSecretsStore(cfg.SecretsPath(configPath))
	if token != "" {
		if err := secrets.SetAuthToken(token); err != nil {
			t.Fatalf("SetAuthToken: %v", err)
		}
	}

	c, err := New(Options{Config: cfg, ConfigPath: configPath, Secrets: secrets})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHandleSessionState_BackupOnLoad(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", "tok")
	c.handleSessionState(realtime.SessionState{
		SessionID:    "sess-1",
		Code:         `sound("bd")`,
		StrudelID:    "strudel-1",
		StrudelTitle: "Track",
	})

	d, err := c.drafts.GetDraft(context.Background(), "strudel-1")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if d == nil {
		t.Fatalf("no backup written")
	}
	if d.Origin != draftstore.OriginCloudBackup || d.Code != `sound("bd")` || d.Title != "Track" {
		t.Fatalf("backup=%+v", d)
	}
}

func TestHandleSessionState_ServerWinsForSavedStrudel(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", "tok")
	// Local draft work exists, but an open cloud strudel is authoritative.
	if err := c.drafts.SetDraft(context.Background(), draftstore.Draft{
		ID: "draft_1_abcdefgh", Code: "local draft", UpdatedAtUnixMs: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("SetDraft: %v", err)
	}

	c.handleSessionState(realtime.SessionState{
		SessionID:    "sess-1",
		Code:         "server code",
		StrudelID:    "strudel-1",
		StrudelTitle: "Track",
	})

	snap := c.editor.Snapshot()
	if snap.Code != "server code" {
		t.Fatalf("Code=%q, want the server's", snap.Code)
	}
	if snap.CurrentStrudelID != "strudel-1" || snap.IsDirty {
		t.Fatalf("snapshot=%+v", snap)
	}
	gv, err := c.drafts.GetGoodVersion(context.Background(), "strudel-1")
	if err != nil || gv == nil || gv.Code != "server code" {
		t.Fatalf("good version=%+v err=%v", gv, err)
	}
}

func TestHandleSessionState_AnonymousRestoresLatestDraft(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", "")
	if err := c.drafts.SetDraft(context.Background(), draftstore.Draft{
		ID: "draft_1_abcdefgh", Code: "my unsaved work", UpdatedAtUnixMs: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("SetDraft: %v", err)
	}

	c.handleSessionState(realtime.SessionState{SessionID: "sess-1", Code: "fresh server code"})

	snap := c.editor.Snapshot()
	if snap.Code != "my unsaved work" {
		t.Fatalf("Code=%q, want the restored draft", snap.Code)
	}
	if snap.CurrentDraftID != "draft_1_abcdefgh" {
		t.Fatalf("CurrentDraftID=%q", snap.CurrentDraftID)
	}
	if !c.session.SessionStateReceived() {
		t.Fatalf("session state not marked received")
	}
}

func TestHandleSessionState_RestoreRunsOncePerConnection(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", "")
	if err := c.drafts.SetDraft(context.Background(), draftstore.Draft{
		ID: "draft_1_abcdefgh", Code: "draft work", UpdatedAtUnixMs: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("SetDraft: %v", err)
	}

	c.handleSessionState(realtime.SessionState{SessionID: "sess-1", Code: "server v1"})
	if got := c.editor.Snapshot().Code; got != "draft work" {
		t.Fatalf("Code=%q after first state", got)
	}

	// A re-broadcast is a live update, not another restore opportunity.
	c.handleSessionState(realtime.SessionState{SessionID: "sess-1", Code: "server v2"})
	if got := c.editor.Snapshot().Code; got != "server v2" {
		t.Fatalf("Code=%q after re-broadcast, want server v2", got)
	}
}

func TestHandleSessionState_AuthPrefersCurrentDraft(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", "tok")
	ctx := context.Background()
	now := time.Now().UnixMilli()
	if err := c.drafts.SetDraft(ctx, draftstore.Draft{ID: "draft_1_current", Code: "current work", UpdatedAtUnixMs: now - 5000}); err != nil {
		t.Fatalf("SetDraft current: %v", err)
	}
	if err := c.drafts.SetDraft(ctx, draftstore.Draft{ID: "draft_2_other", Code: "other window work", UpdatedAtUnixMs: now}); err != nil {
		t.Fatalf("SetDraft other: %v", err)
	}
	c.scope.SetCurrentDraftID("draft_1_current")

	c.handleSessionState(realtime.SessionState{SessionID: "sess-1", Code: "server code"})

	// This instance's own draft wins over a fresher one from another window.
	if got := c.editor.Snapshot().Code; got != "current work" {
		t.Fatalf("Code=%q, want this instance's draft", got)
	}
}

func TestStartNew(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", "")
	c.editor.SetCurrentStrudel("strudel-1", "Track")
	c.editor.SetCode("old work", false)
	c.editor.Flush()

	c.StartNew()
	snap := c.editor.Snapshot()
	if snap.CurrentStrudelID != "" || snap.CurrentDraftID != "" {
		t.Fatalf("pointers survive StartNew: %+v", snap)
	}
	if c.scope.CurrentStrudelID() != "" || c.scope.CurrentDraftID() != "" {
		t.Fatalf("scope pointers survive StartNew")
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good-token" {
			_ = json.NewEncoder(w).Encode(api.User{ID: "u1", Username: "ada"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	user, err := c.Login(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "ada" || !c.HasToken() {
		t.Fatalf("user=%+v hasToken=%v", user, c.HasToken())
	}

	// A bad token is rejected and nothing is kept.
	if _, err := c.Login(context.Background(), "bad-token"); err == nil {
		t.Fatalf("bad token accepted")
	}
	if c.HasToken() {
		t.Fatalf("bad token persisted")
	}
}

func TestForkStrudel_AnonymousMakesLocalForkDraft(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Strudel{ID: "strudel-9", Title: "Jungle", Code: `sound("amen")`})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	if err := c.ForkStrudel(context.Background(), "strudel-9"); err != nil {
		t.Fatalf("ForkStrudel: %v", err)
	}

	snap := c.editor.Snapshot()
	if snap.Code != `sound("amen")` {
		t.Fatalf("Code=%q", snap.Code)
	}
	d, err := c.drafts.GetDraft(context.Background(), snap.CurrentDraftID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if d == nil || d.Origin != draftstore.OriginFork || d.ForkedFromID != "strudel-9" {
		t.Fatalf("fork draft=%+v", d)
	}
	if d.Title != "Fork of Jungle" {
		t.Fatalf("Title=%q", d.Title)
	}
}
