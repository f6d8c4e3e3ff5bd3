package settings

import (
	"path/filepath"
	"testing"
)

func newTestSecrets(t *testing.T) *SecretsStore {
	t.Helper()
	return NewSecretsStore(filepath.Join(t.TempDir(), "secrets.json"))
}

func TestSecretsStore_AuthToken(t *testing.T) {
	t.Parallel()

	s := newTestSecrets(t)
	tok, err := s.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken: %v", err)
	}
	if tok != "" {
		t.Fatalf("token=%q on fresh store, want empty", tok)
	}

	if err := s.SetAuthToken("  tok-123  "); err != nil {
		t.Fatalf("SetAuthToken: %v", err)
	}
	tok, err = s.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken: %v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("token=%q, want trimmed tok-123", tok)
	}

	if err := s.SetAuthToken("   "); err == nil {
		t.Fatalf("blank token accepted")
	}

	if err := s.ClearAuthToken(); err != nil {
		t.Fatalf("ClearAuthToken: %v", err)
	}
	tok, _ = s.AuthToken()
	if tok != "" {
		t.Fatalf("token=%q after clear", tok)
	}
}

func TestSecretsStore_ProviderAPIKeys(t *testing.T) {
	t.Parallel()

	s := newTestSecrets(t)
	if err := s.SetProviderAPIKey("anthropic", "sk-ant-xxx"); err != nil {
		t.Fatalf("SetProviderAPIKey: %v", err)
	}

	key, ok, err := s.GetProviderAPIKey("anthropic")
	if err != nil {
		t.Fatalf("GetProviderAPIKey: %v", err)
	}
	if !ok || key != "sk-ant-xxx" {
		t.Fatalf("key=%q ok=%v", key, ok)
	}

	set, err := s.ProviderAPIKeySet([]string{"anthropic", "openai"})
	if err != nil {
		t.Fatalf("ProviderAPIKeySet: %v", err)
	}
	if !set["anthropic"] || set["openai"] {
		t.Fatalf("set=%v", set)
	}

	if err := s.ClearProviderAPIKey("anthropic"); err != nil {
		t.Fatalf("ClearProviderAPIKey: %v", err)
	}
	_, ok, err = s.GetProviderAPIKey("anthropic")
	if err != nil {
		t.Fatalf("GetProviderAPIKey after clear: %v", err)
	}
	if ok {
		t.Fatalf("key still present after clear")
	}

	if err := s.SetProviderAPIKey("", "key"); err == nil {
		t.Fatalf("empty provider id accepted")
	}
	if err := s.SetProviderAPIKey("openai", ""); err == nil {
		t.Fatalf("empty key accepted")
	}
}

func TestSecretsStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets.json")
	first := NewSecretsStore(path)
	if err := first.SetAuthToken("tok"); err != nil {
		t.Fatalf("SetAuthToken: %v", err)
	}
	if err := first.SetProviderAPIKey("openai", "sk-xxx"); err != nil {
		t.Fatalf("SetProviderAPIKey: %v", err)
	}

	second := NewSecretsStore(path)
	tok, err := second.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken: %v", err)
	}
	if tok != "tok" {
		t.Fatalf("token=%q", tok)
	}
	key, ok, err := second.GetProviderAPIKey("openai")
	if err != nil || !ok || key != "sk-xxx" {
		t.Fatalf("key=%q ok=%v err=%v", key, ok, err)
	}
}
