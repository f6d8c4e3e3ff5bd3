// Package realtime is the live session channel: a websocket carrying session state, whole-code
// snapshots, chat, and AI agent requests between this client and the Algorave server.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	codeUpdateDebounce = 100 * time.Millisecond
	pingInterval       = 30 * time.Second
	writeTimeout       = 10 * time.Second
)

// Handlers receive inbound messages. Nil handlers are skipped. They run on the read loop
// goroutine; blocking in one stalls the channel.
type Handlers struct {
	OnSessionState    func(SessionState)
	OnCodeUpdate      func(CodeUpdate)
	OnChatMessage     func(ChatMessage)
	OnParticipantJoin func(Participant)
	OnParticipantLeft func(Participant)
	OnAgentResponse   func(AgentResponse)
	OnError           func(ErrorMessage)
	OnDisconnect      func(error)
}

// ConnectOptions describe how to join a session.
type ConnectOptions struct {
	// SessionID resumes or joins a named session; empty lets the server mint one.
	SessionID string
	// InviteToken joins someone else's session as a viewer.
	InviteToken string
	// DisplayName identifies guests; ignored for authenticated users.
	DisplayName string
	// AuthToken is sent as a Bearer header when present.
	AuthToken string
}

// Client is one websocket connection to the session endpoint. Create with Connect, release with
// Close. Outbound code snapshots are debounced so typing does not flood the channel.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	handlers Handlers

	writeMu sync.Mutex

	mu          sync.Mutex
	closed      bool
	pendingCode *CodeUpdate
	codeTimer   *time.Timer
	codeDelay   time.Duration

	done chan struct{}
}

// Connect dials the session endpoint under wsBaseURL and starts the read loop.
func Connect(ctx context.Context, wsBaseURL string, opts ConnectOptions, handlers Handlers, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	u, err := url.Parse(strings.TrimSpace(wsBaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse ws base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/sessions/ws"
	q := u.Query()
	if opts.SessionID != "" {
		q.Set("session_id", opts.SessionID)
	}
	if opts.InviteToken != "" {
		q.Set("invite_token", opts.InviteToken)
	}
	if opts.DisplayName != "" {
		q.Set("display_name", opts.DisplayName)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if opts.AuthToken != "" {
		header.Set("Authorization", "Bearer "+opts.AuthToken)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial session channel: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("dial session channel: %w", err)
	}

	c := &Client{
		conn:      conn,
		log:       log,
		handlers:  handlers,
		codeDelay: codeUpdateDebounce,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Close flushes any pending code snapshot and tears the connection down. Safe to call more than
// once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.codeTimer != nil {
		c.codeTimer.Stop()
		c.codeTimer = nil
	}
	pending := c.pendingCode
	c.pendingCode = nil
	c.mu.Unlock()

	if pending != nil {
		_ = c.send(MessageTypeCodeUpdate, pending)
	}
	_ = c.writeControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	close(c.done)
	return err
}

// SendCodeUpdate queues a whole-buffer snapshot. Calls within the debounce window coalesce; only
// the latest buffer goes out.
func (c *Client) SendCodeUpdate(code string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pendingCode = &CodeUpdate{Code: code}
	if c.codeTimer != nil {
		c.codeTimer.Stop()
	}
	c.codeTimer = time.AfterFunc(c.codeDelay, c.flushCodeUpdate)
	c.mu.Unlock()
}

func (c *Client) flushCodeUpdate() {
	c.mu.Lock()
	c.codeTimer = nil
	pending := c.pendingCode
	c.pendingCode = nil
	closed := c.closed
	c.mu.Unlock()
	if pending == nil || closed {
		return
	}
	if err := c.send(MessageTypeCodeUpdate, pending); err != nil {
		c.log.Warn("realtime: code update send failed", "error", err)
	}
}

func (c *Client) SendChatMessage(content string) error {
	if c == nil {
		return errors.New("not connected")
	}
	return c.send(MessageTypeChatMessage, ChatMessage{Content: content})
}

// SendAgentRequest submits an AI edit request and returns its request id for correlating the
// response.
func (c *Client) SendAgentRequest(req AgentRequest) (string, error) {
	if c == nil {
		return "", errors.New("not connected")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if err := c.send(MessageTypeAgentRequest, req); err != nil {
		return "", err
	}
	return req.RequestID, nil
}

func (c *Client) send(t MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env := Envelope{Type: t, Payload: raw}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

func (c *Client) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeTimeout))
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(MessageTypePing, struct{}{}); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Type {
	case MessageTypeSessionState:
		var st SessionState
		if c.decode(env, &st) && c.handlers.OnSessionState != nil {
			c.handlers.OnSessionState(st)
		}
	case MessageTypeCodeUpdate:
		var cu CodeUpdate
		if c.decode(env, &cu) && c.handlers.OnCodeUpdate != nil {
			c.handlers.OnCodeUpdate(cu)
		}
	case MessageTypeChatMessage:
		var m ChatMessage
		if c.decode(env, &m) && c.handlers.OnChatMessage != nil {
			c.handlers.OnChatMessage(m)
		}
	case MessageTypeParticipantJoin:
		var p Participant
		if c.decode(env, &p) && c.handlers.OnParticipantJoin != nil {
			c.handlers.OnParticipantJoin(p)
		}
	case MessageTypeParticipantLeft:
		var p Participant
		if c.decode(env, &p) && c.handlers.OnParticipantLeft != nil {
			c.handlers.OnParticipantLeft(p)
		}
	case MessageTypeAgentResponse:
		var ar AgentResponse
		if c.decode(env, &ar) && c.handlers.OnAgentResponse != nil {
			c.handlers.OnAgentResponse(ar)
		}
	case MessageTypeError:
		var em ErrorMessage
		if c.decode(env, &em) && c.handlers.OnError != nil {
			c.handlers.OnError(em)
		}
	case MessageTypePong:
		// Keepalive ack, nothing to do.
	default:
		c.log.Debug("realtime: unknown message type", "type", string(env.Type))
	}
}

func (c *Client) decode(env Envelope, dst any) bool {
	if len(env.Payload) == 0 {
		return false
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		c.log.Warn("realtime: bad payload", "type", string(env.Type), "error", err)
		return false
	}
	return true
}
