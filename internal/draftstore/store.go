package draftstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a local SQLite-backed persistence layer for code drafts and good-version checkpoints.
//
// Notes:
// - The database is shared by every client window of the same profile. WAL is enabled so one
//   window can write while others read.
// - Writes are last-writer-wins per draft id. Windows that have not picked an id yet generate a
//   fresh one, so concurrent windows never clobber each other's new work.
// - Durability is best-effort: callers are expected to log persistence errors and carry on with
//   their in-memory state.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Message is one conversation turn attached to a draft.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Draft is one locally persisted code snapshot: unsaved work, a fork in progress, or a
// crash-recovery backup of a cloud-saved strudel.
type Draft struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	ConversationHistory []Message `json:"conversation_history"`
	UpdatedAtUnixMs     int64     `json:"updated_at_unix_ms"`

	Title          string `json:"title,omitempty"`
	ForkedFromID   string `json:"forked_from_id,omitempty"`
	ParentCCSignal string `json:"parent_cc_signal,omitempty"`

	// Origin records how the draft came to exist. Legacy rows without it fall back to
	// id-prefix inference (OriginForID).
	Origin Origin `json:"origin"`
}

// SetDraft upserts a draft by id. The write is a total overwrite; there is no merge.
func (s *Store) SetDraft(ctx context.Context, d Draft) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return errors.New("missing draft id")
	}
	d.Title = strings.TrimSpace(d.Title)
	d.ForkedFromID = strings.TrimSpace(d.ForkedFromID)
	d.ParentCCSignal = strings.TrimSpace(d.ParentCCSignal)
	if d.Origin == "" {
		d.Origin = OriginForID(d.ID)
	}
	if d.UpdatedAtUnixMs <= 0 {
		d.UpdatedAtUnixMs = time.Now().UnixMilli()
	}

	// Code is intentionally not trimmed: whitespace is significant in pattern source, and an
	// empty string is a valid user-cleared state.
	historyJSON, err := encodeHistory(d.ConversationHistory)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO drafts(
  id, code, history_json, updated_at_unix_ms,
  title, forked_from_id, parent_cc_signal, origin
) VALUES(?, ?, ?, ?, ?, ?, ?, ?)
`,
		d.ID,
		d.Code,
		historyJSON,
		d.UpdatedAtUnixMs,
		d.Title,
		d.ForkedFromID,
		d.ParentCCSignal,
		string(d.Origin),
	)
	return err
}

// GetDraft returns the draft with the given id, or (nil, nil) when absent.
func (s *Store) GetDraft(ctx context.Context, id string) (*Draft, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}

	var d Draft
	var historyJSON string
	var origin string
	err := s.db.QueryRowContext(ctx, `
SELECT id, code, history_json, updated_at_unix_ms,
       title, forked_from_id, parent_cc_signal, origin
FROM drafts
WHERE id = ?
`, id).Scan(
		&d.ID,
		&d.Code,
		&historyJSON,
		&d.UpdatedAtUnixMs,
		&d.Title,
		&d.ForkedFromID,
		&d.ParentCCSignal,
		&origin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.ConversationHistory, err = decodeHistory(historyJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid history_json for draft %s: %w", d.ID, err)
	}
	d.Origin = NormalizeOrigin(origin)
	if d.Origin == "" {
		d.Origin = OriginForID(d.ID)
	}
	return &d, nil
}

// DeleteDraft removes the draft with the given id. Deleting an absent draft is not an error.
func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	return err
}

// ListDrafts returns every draft, most recently updated first. Ties are broken by id so the
// ordering is deterministic.
func (s *Store) ListDrafts(ctx context.Context) ([]Draft, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, code, history_json, updated_at_unix_ms,
       title, forked_from_id, parent_cc_signal, origin
FROM drafts
ORDER BY updated_at_unix_ms DESC, id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Draft, 0, 16)
	for rows.Next() {
		var d Draft
		var historyJSON string
		var origin string
		if err := rows.Scan(
			&d.ID,
			&d.Code,
			&historyJSON,
			&d.UpdatedAtUnixMs,
			&d.Title,
			&d.ForkedFromID,
			&d.ParentCCSignal,
			&origin,
		); err != nil {
			return nil, err
		}
		d.ConversationHistory, err = decodeHistory(historyJSON)
		if err != nil {
			return nil, fmt.Errorf("invalid history_json for draft %s: %w", d.ID, err)
		}
		d.Origin = NormalizeOrigin(origin)
		if d.Origin == "" {
			d.Origin = OriginForID(d.ID)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestDraft returns the most recently updated draft, or (nil, nil) when no drafts exist.
func (s *Store) LatestDraft(ctx context.Context) (*Draft, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var d Draft
	var historyJSON string
	var origin string
	err := s.db.QueryRowContext(ctx, `
SELECT id, code, history_json, updated_at_unix_ms,
       title, forked_from_id, parent_cc_signal, origin
FROM drafts
ORDER BY updated_at_unix_ms DESC, id DESC
LIMIT 1
`).Scan(
		&d.ID,
		&d.Code,
		&historyJSON,
		&d.UpdatedAtUnixMs,
		&d.Title,
		&d.ForkedFromID,
		&d.ParentCCSignal,
		&origin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.ConversationHistory, err = decodeHistory(historyJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid history_json for draft %s: %w", d.ID, err)
	}
	d.Origin = NormalizeOrigin(origin)
	if d.Origin == "" {
		d.Origin = OriginForID(d.ID)
	}
	return &d, nil
}

// GoodVersion is a manually confirmed checkpoint of a saved strudel's code, used only for
// user-initiated rollback. Autosave churn never touches it.
type GoodVersion struct {
	Code          string `json:"code"`
	SavedAtUnixMs int64  `json:"saved_at_unix_ms"`
}

func (s *Store) SetGoodVersion(ctx context.Context, strudelID string, code string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	strudelID = strings.TrimSpace(strudelID)
	if strudelID == "" {
		return errors.New("missing strudel id")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO good_versions(strudel_id, code, saved_at_unix_ms)
VALUES(?, ?, ?)
`, strudelID, code, time.Now().UnixMilli())
	return err
}

func (s *Store) GetGoodVersion(ctx context.Context, strudelID string) (*GoodVersion, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	strudelID = strings.TrimSpace(strudelID)
	if strudelID == "" {
		return nil, nil
	}

	var gv GoodVersion
	err := s.db.QueryRowContext(ctx, `
SELECT code, saved_at_unix_ms
FROM good_versions
WHERE strudel_id = ?
`, strudelID).Scan(&gv.Code, &gv.SavedAtUnixMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gv, nil
}

func encodeHistory(history []Message) (string, error) {
	if len(history) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeHistory(raw string) ([]Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return []Message{}, nil
	}
	var out []Message
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS drafts (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL DEFAULT '',
  history_json TEXT NOT NULL DEFAULT '[]',
  updated_at_unix_ms INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  forked_from_id TEXT NOT NULL DEFAULT '',
  parent_cc_signal TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_drafts_updated ON drafts(updated_at_unix_ms DESC, id DESC);
CREATE TABLE IF NOT EXISTS good_versions (
  strudel_id TEXT PRIMARY KEY,
  code TEXT NOT NULL DEFAULT '',
  saved_at_unix_ms INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
