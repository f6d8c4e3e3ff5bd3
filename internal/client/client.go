// Package client wires the stores, the API, and the session channel into one Algorave client
// instance. Each instance models one editor window: it has its own session-scoped pointers but
// shares the drafts database with every other instance of the same profile.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/algorave/algorave-client/internal/ai"
	"github.com/algorave/algorave-client/internal/api"
	"github.com/algorave/algorave-client/internal/autosave"
	"github.com/algorave/algorave-client/internal/config"
	"github.com/algorave/algorave-client/internal/draftstore"
	"github.com/algorave/algorave-client/internal/editor"
	"github.com/algorave/algorave-client/internal/realtime"
	"github.com/algorave/algorave-client/internal/reconcile"
	"github.com/algorave/algorave-client/internal/sessionscope"
	"github.com/algorave/algorave-client/internal/settings"
)

// Options configure a client instance.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Secrets    *settings.SecretsStore
	Logger     *slog.Logger
	Version    string
}

// Client is one running client instance.
type Client struct {
	cfg     *config.Config
	log     *slog.Logger
	secrets *settings.SecretsStore
	version string

	drafts   *draftstore.Store
	scope    *sessionscope.Store
	editor   *editor.Store
	api      *api.Client
	autosave *autosave.Coordinator
	session  *realtime.SessionStore
	catalog  ai.Catalog

	mu                  sync.Mutex
	rt                  *realtime.Client
	initialLoadComplete bool
	unsubEditor         func()
}

func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("missing config")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Secrets == nil {
		return nil, errors.New("missing secrets store")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	drafts, err := draftstore.Open(opts.Config.DraftsDBPath(opts.ConfigPath))
	if err != nil {
		return nil, fmt.Errorf("open draft store: %w", err)
	}

	catalog, err := ai.LoadCatalog(opts.Config.ProvidersPath(opts.ConfigPath))
	if err != nil {
		_ = drafts.Close()
		return nil, err
	}

	c := &Client{
		cfg:     opts.Config,
		log:     log,
		secrets: opts.Secrets,
		version: opts.Version,
		drafts:  drafts,
		scope:   sessionscope.New(),
		session: realtime.NewSessionStore(),
		catalog: catalog,
	}
	c.editor = editor.New(drafts, c.scope, log)
	c.api = api.New(opts.Config.APIBaseURL, c.authToken, log)
	c.autosave = autosave.New(c.editor, drafts, &strudelSaver{api: c.api}, c.HasToken, log)
	c.unsubEditor = c.editor.Subscribe(c.onEditorChange)
	return c, nil
}

// strudelSaver adapts the API client to the autosave coordinator's write surface.
type strudelSaver struct {
	api *api.Client
}

func (s *strudelSaver) SaveStrudel(ctx context.Context, id, code string, history []draftstore.Message) error {
	return s.api.SaveStrudel(ctx, id, code, history)
}

func (s *strudelSaver) CreateStrudel(ctx context.Context, title, code string, history []draftstore.Message) (string, error) {
	return s.api.CreateStrudelSimple(ctx, title, code, history)
}

func (c *Client) authToken() string {
	token, err := c.secrets.AuthToken()
	if err != nil {
		c.log.Warn("client: secrets read failed", "error", err)
		return ""
	}
	return token
}

// HasToken reports whether the user is logged in.
func (c *Client) HasToken() bool {
	return c.authToken() != ""
}

// Accessors for the CLI and UI layers.
func (c *Client) Editor() *editor.Store           { return c.editor }
func (c *Client) Drafts() *draftstore.Store       { return c.drafts }
func (c *Client) Scope() *sessionscope.Store      { return c.scope }
func (c *Client) Session() *realtime.SessionStore { return c.session }
func (c *Client) Autosave() *autosave.Coordinator { return c.autosave }
func (c *Client) API() *api.Client                { return c.api }

// Login verifies and stores an API token. On verification failure nothing is kept.
func (c *Client) Login(ctx context.Context, token string) (*api.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("missing token")
	}
	if err := c.secrets.SetAuthToken(token); err != nil {
		return nil, err
	}
	user, err := c.api.Me(ctx)
	if err != nil {
		_ = c.secrets.ClearAuthToken()
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return user, nil
}

func (c *Client) Logout() error {
	return c.secrets.ClearAuthToken()
}

// Connect joins a live session. A viewer pointer in the session scope takes precedence;
// otherwise the previous session is resumed when one is known.
func (c *Client) Connect(ctx context.Context) error {
	opts := realtime.ConnectOptions{
		AuthToken:   c.authToken(),
		DisplayName: c.cfg.DisplayName,
	}
	if v := c.scope.ViewerSession(); v != nil {
		opts.SessionID = v.SessionID
		opts.InviteToken = v.InviteToken
		if v.DisplayName != "" {
			opts.DisplayName = v.DisplayName
		}
	} else if id := c.scope.SessionID(); id != "" {
		opts.SessionID = id
	} else if id := c.scope.PreviousSessionID(); id != "" {
		opts.SessionID = id
	}

	c.session.SetStatus(realtime.StatusConnecting)
	rt, err := realtime.Connect(ctx, c.cfg.WSBaseURL, opts, realtime.Handlers{
		OnSessionState:    c.handleSessionState,
		OnCodeUpdate:      c.handleCodeUpdate,
		OnChatMessage:     c.session.AddMessage,
		OnParticipantJoin: c.session.AddParticipant,
		OnParticipantLeft: c.session.RemoveParticipant,
		OnAgentResponse:   c.handleAgentResponse,
		OnError: func(em realtime.ErrorMessage) {
			c.session.SetError(em.Message)
		},
		OnDisconnect: func(err error) {
			c.log.Warn("client: session channel lost", "error", err)
			c.session.SetStatus(realtime.StatusDisconnected)
		},
	}, c.log)
	if err != nil {
		c.session.SetError(err.Error())
		return err
	}

	c.mu.Lock()
	c.rt = rt
	c.mu.Unlock()
	c.session.SetStatus(realtime.StatusConnected)
	return nil
}

// Disconnect leaves the session but keeps local state so a reconnect can resume it.
func (c *Client) Disconnect() {
	c.mu.Lock()
	rt := c.rt
	c.rt = nil
	c.mu.Unlock()
	if rt != nil {
		_ = rt.Close()
	}
	c.session.SetStatus(realtime.StatusDisconnected)
}

// handleSessionState applies the server's session snapshot. The first delivery per connection
// runs draft reconciliation; every later delivery is a plain live update. The guard is flipped
// synchronously before any store writes so a re-broadcast arriving mid-apply cannot re-enter the
// restore path.
func (c *Client) handleSessionState(st realtime.SessionState) {
	c.session.SetSessionID(st.SessionID)
	if st.Role != "" {
		c.session.SetMyRole(st.Role)
	}
	if st.Participants != nil {
		c.session.SetParticipants(st.Participants)
	}
	c.scope.SetSessionID(st.SessionID)

	c.mu.Lock()
	first := !c.initialLoadComplete
	c.initialLoadComplete = true
	c.mu.Unlock()
	c.session.MarkSessionStateReceived()

	if !first {
		c.editor.SetCode(st.Code, true)
		return
	}

	ctx := context.Background()

	// The server's copy of a saved strudel is always backed up locally before anything can
	// overwrite the buffer. Keyed by the strudel's own id so it never collides with draft work.
	if st.StrudelID != "" {
		backup := draftstore.Draft{
			ID:              st.StrudelID,
			Code:            st.Code,
			Title:           st.StrudelTitle,
			Origin:          draftstore.OriginCloudBackup,
			UpdatedAtUnixMs: time.Now().UnixMilli(),
		}
		if err := c.drafts.SetDraft(ctx, backup); err != nil {
			c.log.Warn("client: backup-on-load failed", "strudel_id", st.StrudelID, "error", err)
		}
	}

	hasToken := c.HasToken()
	strudelID := st.StrudelID
	if strudelID == "" {
		strudelID = c.scope.CurrentStrudelID()
	}

	var currentDraft *draftstore.Draft
	if id := c.scope.CurrentDraftID(); id != "" {
		d, err := c.drafts.GetDraft(ctx, id)
		if err != nil {
			c.log.Warn("client: current draft read failed", "draft_id", id, "error", err)
		}
		currentDraft = d
	}
	latest, err := c.drafts.LatestDraft(ctx)
	if err != nil {
		c.log.Warn("client: latest draft read failed", "error", err)
	}

	in := reconcile.Input{
		HasToken:         hasToken,
		CurrentStrudelID: strudelID,
		CurrentDraft:     currentDraft,
		LatestDraft:      latest,
	}
	if reconcile.ShouldRestoreFromDraft(in) {
		if d := reconcile.PickDraftToRestore(in); d != nil {
			c.log.Info("client: restoring draft", "draft_id", d.ID, "origin", string(d.Origin))
			c.editor.RestoreDraft(d)
			c.sendCode(d.Code)
			return
		}
	}

	// Server wins.
	c.editor.SetCode(st.Code, true)
	if st.StrudelID != "" {
		c.editor.SetCurrentStrudel(st.StrudelID, st.StrudelTitle)
		if hasToken {
			c.editor.MarkSaved()
		}
		c.autosave.SeedGoodVersion(ctx, st.StrudelID, st.Code)
	}
}

func (c *Client) handleCodeUpdate(cu realtime.CodeUpdate) {
	c.editor.SetCode(cu.Code, true)
}

func (c *Client) handleAgentResponse(ar realtime.AgentResponse) {
	if ar.Error != "" {
		c.log.Warn("client: agent request failed", "request_id", ar.RequestID, "error", ar.Error)
		return
	}
	if ar.Message != "" {
		c.editor.AddToHistory(draftstore.Message{Role: "assistant", Content: ar.Message})
	}
	if ar.Code != "" {
		c.editor.SetCode(ar.Code, false)
	}
}

// onEditorChange forwards local edits to the session. Remote pushes arrive with the sync state
// already matching the buffer, so only genuinely local changes go out.
func (c *Client) onEditorChange(snap editor.Snapshot) {
	if snap.Code == snap.LastSyncedCode {
		return
	}
	c.mu.Lock()
	rt := c.rt
	c.mu.Unlock()
	if rt == nil {
		return
	}
	rt.SendCodeUpdate(snap.Code)
	c.editor.MarkSynced()
}

func (c *Client) sendCode(code string) {
	c.mu.Lock()
	rt := c.rt
	c.mu.Unlock()
	if rt == nil {
		return
	}
	rt.SendCodeUpdate(code)
	c.editor.MarkSynced()
}

// SendChat posts a chat message to the session.
func (c *Client) SendChat(content string) error {
	c.mu.Lock()
	rt := c.rt
	c.mu.Unlock()
	if rt == nil {
		return errors.New("not connected")
	}
	return rt.SendChatMessage(content)
}

// LoadStrudel opens a cloud strudel in the editor. The server's code is backed up locally first,
// then becomes the clean baseline for dirtiness and panic recovery.
func (c *Client) LoadStrudel(ctx context.Context, id string) error {
	st, err := c.api.GetStrudel(ctx, id)
	if err != nil {
		return err
	}

	backup := draftstore.Draft{
		ID:              st.ID,
		Code:            st.Code,
		Title:           st.Title,
		Origin:          draftstore.OriginCloudBackup,
		UpdatedAtUnixMs: time.Now().UnixMilli(),
	}
	if err := c.drafts.SetDraft(ctx, backup); err != nil {
		c.log.Warn("client: backup-on-load failed", "strudel_id", st.ID, "error", err)
	}

	c.editor.SetCode(st.Code, true)
	c.editor.SetCurrentStrudel(st.ID, st.Title)
	if c.HasToken() {
		c.editor.MarkSaved()
	}
	c.autosave.SeedGoodVersion(ctx, st.ID, st.Code)
	c.sendCode(st.Code)
	return nil
}

// ForkStrudel copies someone else's strudel into the user's own space. Authenticated users fork
// on the server; anonymous users get a local fork draft instead.
func (c *Client) ForkStrudel(ctx context.Context, id string) error {
	if c.HasToken() {
		forked, err := c.api.ForkStrudel(ctx, id)
		if err != nil {
			return err
		}
		return c.LoadStrudel(ctx, forked.ID)
	}

	src, err := c.api.GetStrudel(ctx, id)
	if err != nil {
		return err
	}
	fork := draftstore.Draft{
		ID:              draftstore.GenerateForkID(),
		Code:            src.Code,
		Title:           "Fork of " + src.Title,
		ForkedFromID:    src.ID,
		Origin:          draftstore.OriginFork,
		UpdatedAtUnixMs: time.Now().UnixMilli(),
	}
	if err := c.drafts.SetDraft(ctx, fork); err != nil {
		return fmt.Errorf("persist fork draft: %w", err)
	}
	c.editor.Reset()
	c.scope.ClearCurrentStrudelID()
	c.editor.RestoreDraft(&fork)
	return nil
}

// StartNew abandons the current work pointers and gives the user a fresh buffer. Persisted
// drafts stay on disk.
func (c *Client) StartNew() {
	c.editor.Reset()
	c.scope.ClearCurrentStrudelID()
	c.scope.ClearCurrentDraftID()
}

// AIEdit runs an AI edit. When connected it goes through the session's server-side agent; offline
// it falls back to a direct provider call with the user's own API key.
func (c *Client) AIEdit(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("empty query")
	}
	snap := c.editor.Snapshot()
	c.editor.AddToHistory(draftstore.Message{Role: "user", Content: query})

	c.mu.Lock()
	rt := c.rt
	c.mu.Unlock()
	if rt != nil {
		history := make([]realtime.HistoryMessage, 0, len(snap.ConversationHistory))
		for _, m := range snap.ConversationHistory {
			history = append(history, realtime.HistoryMessage{Role: m.Role, Content: m.Content})
		}
		req := realtime.AgentRequest{
			Query:               query,
			Code:                snap.Code,
			ConversationHistory: history,
		}
		if p, key, err := c.resolveProvider(""); err == nil {
			req.Provider = p.Name
			req.ProviderAPIKey = key
		}
		_, err := rt.SendAgentRequest(req)
		return err
	}

	return c.DirectAIEdit(ctx, "", query)
}

// DirectAIEdit calls a provider from the catalog directly. providerName empty means the
// configured default.
func (c *Client) DirectAIEdit(ctx context.Context, providerName, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("empty query")
	}
	entry, key, err := c.resolveProvider(providerName)
	if err != nil {
		return err
	}
	provider, err := ai.NewProvider(entry.Type, entry.BaseURL, key)
	if err != nil {
		return err
	}

	snap := c.editor.Snapshot()
	result, err := provider.Edit(ctx, ai.EditRequest{
		Model:   entry.DefaultModel,
		Query:   query,
		Code:    snap.Code,
		History: snap.ConversationHistory,
	})
	if err != nil {
		return err
	}

	if result.Message != "" {
		c.editor.AddToHistory(draftstore.Message{Role: "assistant", Content: result.Message})
	}
	if result.Code != "" {
		c.editor.SetCode(result.Code, false)
	}
	return nil
}

// resolveProvider picks a catalog entry and its API key. Precedence: explicit name, configured
// default, catalog default.
func (c *Client) resolveProvider(name string) (ai.CatalogProvider, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(c.cfg.DefaultProvider)
	}

	var entry ai.CatalogProvider
	var ok bool
	if name != "" {
		entry, ok = c.catalog.Provider(name)
		if !ok {
			return ai.CatalogProvider{}, "", fmt.Errorf("unknown provider %q", name)
		}
	} else {
		entry, ok = c.catalog.Default()
		if !ok {
			return ai.CatalogProvider{}, "", errors.New("no default provider configured")
		}
	}

	key, set, err := c.secrets.GetProviderAPIKey(entry.Name)
	if err != nil {
		return ai.CatalogProvider{}, "", err
	}
	if !set {
		return ai.CatalogProvider{}, "", fmt.Errorf("no api key stored for provider %q", entry.Name)
	}
	return entry, key, nil
}

// Close flushes pending work and releases everything.
func (c *Client) Close() error {
	if c.unsubEditor != nil {
		c.unsubEditor()
	}
	c.autosave.Close()
	c.editor.Flush()
	c.Disconnect()
	return c.drafts.Close()
}
