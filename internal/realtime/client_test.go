package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// testServer upgrades one connection and hands it to fn on its own goroutine.
func testServer(t *testing.T, fn func(*websocket.Conn, *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		fn(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnect_QueryAndHeader(t *testing.T) {
	t.Parallel()

	gotReq := make(chan *http.Request, 1)
	base := testServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotReq <- r
		_ = conn.Close()
	})

	c, err := Connect(context.Background(), base, ConnectOptions{
		SessionID:   "sess-1",
		InviteToken: "tok-9",
		DisplayName: "guest",
		AuthToken:   "secret-token",
	}, Handlers{}, slog.Default())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	r := <-gotReq
	if !strings.HasSuffix(r.URL.Path, "/api/v1/sessions/ws") {
		t.Fatalf("path=%q", r.URL.Path)
	}
	q := r.URL.Query()
	if q.Get("session_id") != "sess-1" || q.Get("invite_token") != "tok-9" || q.Get("display_name") != "guest" {
		t.Fatalf("query=%v", q)
	}
	if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Fatalf("Authorization=%q", got)
	}
}

func TestClient_DispatchSessionState(t *testing.T) {
	t.Parallel()

	base := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		payload, _ := json.Marshal(SessionState{
			SessionID: "sess-1",
			Code:      `sound("bd")`,
			Role:      RoleHost,
			Participants: []Participant{
				{UserID: "u1", DisplayName: "Ada", Role: RoleHost},
			},
		})
		_ = conn.WriteJSON(Envelope{Type: MessageTypeSessionState, Payload: payload})
	})

	got := make(chan SessionState, 1)
	c, err := Connect(context.Background(), base, ConnectOptions{}, Handlers{
		OnSessionState: func(st SessionState) { got <- st },
	}, slog.Default())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	select {
	case st := <-got:
		if st.SessionID != "sess-1" || st.Code != `sound("bd")` || st.Role != RoleHost {
			t.Fatalf("session state=%+v", st)
		}
		if len(st.Participants) != 1 || st.Participants[0].UserID != "u1" {
			t.Fatalf("participants=%+v", st.Participants)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session state not delivered")
	}
}

func TestSendCodeUpdate_Debounces(t *testing.T) {
	t.Parallel()

	received := make(chan Envelope, 16)
	base := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
		}
	})

	c, err := Connect(context.Background(), base, ConnectOptions{}, Handlers{}, slog.Default())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()
	c.codeDelay = 30 * time.Millisecond

	c.SendCodeUpdate("v1")
	c.SendCodeUpdate("v2")
	c.SendCodeUpdate("v3")

	select {
	case env := <-received:
		if env.Type != MessageTypeCodeUpdate {
			t.Fatalf("type=%q", env.Type)
		}
		var cu CodeUpdate
		if err := json.Unmarshal(env.Payload, &cu); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if cu.Code != "v3" {
			t.Fatalf("Code=%q, want the latest burst value", cu.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("code update not delivered")
	}

	select {
	case env := <-received:
		t.Fatalf("extra message %q; the burst should coalesce to one update", env.Type)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSendAgentRequest_AssignsRequestID(t *testing.T) {
	t.Parallel()

	received := make(chan Envelope, 1)
	base := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		received <- env
	})

	c, err := Connect(context.Background(), base, ConnectOptions{}, Handlers{}, slog.Default())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	id, err := c.SendAgentRequest(AgentRequest{Query: "add a hi-hat", Code: `sound("bd")`})
	if err != nil {
		t.Fatalf("SendAgentRequest: %v", err)
	}
	if id == "" {
		t.Fatalf("empty request id")
	}

	select {
	case env := <-received:
		var req AgentRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if req.RequestID != id {
			t.Fatalf("RequestID=%q, want %q", req.RequestID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("agent request not delivered")
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	base := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Connect(context.Background(), base, ConnectOptions{}, Handlers{}, slog.Default())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
