package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/algorave/algorave-client/internal/draftstore"
)

// Strudel is a saved piece of live-coding work on the server.
type Strudel struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Title        string   `json:"title"`
	Code         string   `json:"code"`
	Tags         []string `json:"tags,omitempty"`
	IsPublic     bool     `json:"is_public"`
	ForkCount    int      `json:"fork_count"`
	ForkedFromID string   `json:"forked_from_id,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

type CreateStrudelRequest struct {
	Title               string               `json:"title"`
	Code                string               `json:"code"`
	Tags                []string             `json:"tags,omitempty"`
	IsPublic            bool                 `json:"is_public"`
	ConversationHistory []draftstore.Message `json:"conversation_history,omitempty"`
}

type UpdateStrudelRequest struct {
	Title               *string              `json:"title,omitempty"`
	Code                *string              `json:"code,omitempty"`
	Tags                []string             `json:"tags,omitempty"`
	IsPublic            *bool                `json:"is_public,omitempty"`
	ConversationHistory []draftstore.Message `json:"conversation_history,omitempty"`
}

func (c *Client) GetStrudel(ctx context.Context, id string) (*Strudel, error) {
	var out Strudel
	if err := c.do(ctx, http.MethodGet, "/api/v1/strudels/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateStrudel(ctx context.Context, req CreateStrudelRequest) (*Strudel, error) {
	var out Strudel
	if err := c.do(ctx, http.MethodPost, "/api/v1/strudels", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStrudel(ctx context.Context, id string, req UpdateStrudelRequest) (*Strudel, error) {
	var out Strudel
	if err := c.do(ctx, http.MethodPut, "/api/v1/strudels/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStrudel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/strudels/"+url.PathEscape(id), nil, nil)
}

// ForkStrudel copies someone else's public strudel into the caller's account.
func (c *Client) ForkStrudel(ctx context.Context, id string) (*Strudel, error) {
	var out Strudel
	if err := c.do(ctx, http.MethodPost, "/api/v1/strudels/"+url.PathEscape(id)+"/fork", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStrudels returns the caller's own strudels, newest first.
func (c *Client) ListStrudels(ctx context.Context) ([]Strudel, error) {
	var out []Strudel
	if err := c.do(ctx, http.MethodGet, "/api/v1/strudels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPublicStrudels pages through the public feed.
func (c *Client) ListPublicStrudels(ctx context.Context, limit, offset int) ([]Strudel, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/strudels/public"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Strudel
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveStrudel updates code and conversation history in one call. This is the autosave write path.
func (c *Client) SaveStrudel(ctx context.Context, id, code string, history []draftstore.Message) error {
	_, err := c.UpdateStrudel(ctx, id, UpdateStrudelRequest{
		Code:                &code,
		ConversationHistory: history,
	})
	return err
}

// CreateStrudelSimple creates a private strudel from a title and buffer, returning its id. This is
// the manual save path for new work.
func (c *Client) CreateStrudelSimple(ctx context.Context, title, code string, history []draftstore.Message) (string, error) {
	st, err := c.CreateStrudel(ctx, CreateStrudelRequest{
		Title:               title,
		Code:                code,
		ConversationHistory: history,
	})
	if err != nil {
		return "", err
	}
	if st.ID == "" {
		return "", fmt.Errorf("api: create strudel returned no id")
	}
	return st.ID, nil
}
