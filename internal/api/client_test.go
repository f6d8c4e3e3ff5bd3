package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/algorave/algorave-client/internal/draftstore"
)

func TestClient_AuthHeaderAndDecoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/strudels/abc" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization=%q", got)
		}
		_ = json.NewEncoder(w).Encode(Strudel{ID: "abc", Title: "Track", Code: `sound("bd")`})
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "tok-1" }, slog.Default())
	st, err := c.GetStrudel(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetStrudel: %v", err)
	}
	if st.ID != "abc" || st.Title != "Track" {
		t.Fatalf("strudel=%+v", st)
	}
}

func TestClient_AnonymousHasNoAuthHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization=%q, want none", got)
		}
		_ = json.NewEncoder(w).Encode([]Strudel{})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, slog.Default())
	if _, err := c.ListPublicStrudels(context.Background(), 10, 0); err != nil {
		t.Fatalf("ListPublicStrudels: %v", err)
	}
}

func TestClient_NonSuccessIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "bad" }, slog.Default())
	_, err := c.Me(context.Background())
	if err == nil {
		t.Fatalf("Me succeeded on 401")
	}
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("IsStatus(401)=false for %v", err)
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Fatalf("IsStatus(404)=true for %v", err)
	}
}

func TestSaveStrudel_SendsCodeAndHistory(t *testing.T) {
	t.Parallel()

	var got UpdateStrudelRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method=%q", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Strudel{ID: "abc"})
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "tok" }, slog.Default())
	history := []draftstore.Message{{Role: "user", Content: "faster"}}
	if err := c.SaveStrudel(context.Background(), "abc", `sound("bd*2")`, history); err != nil {
		t.Fatalf("SaveStrudel: %v", err)
	}
	if got.Code == nil || *got.Code != `sound("bd*2")` {
		t.Fatalf("code=%v", got.Code)
	}
	if len(got.ConversationHistory) != 1 || got.ConversationHistory[0].Content != "faster" {
		t.Fatalf("history=%+v", got.ConversationHistory)
	}
	if got.Title != nil {
		t.Fatalf("title sent on a code save: %v", *got.Title)
	}
}

func TestForkStrudel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/strudels/abc/fork" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Strudel{ID: "fork-1", ForkedFromID: "abc", Title: "Track"})
	}))
	defer srv.Close()

	c := New(srv.URL, func() string { return "tok" }, slog.Default())
	st, err := c.ForkStrudel(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ForkStrudel: %v", err)
	}
	if st.ID != "fork-1" || st.ForkedFromID != "abc" {
		t.Fatalf("fork=%+v", st)
	}
}
