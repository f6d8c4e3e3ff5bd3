// Package settings persists user-managed secrets to a local file.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SecretsStore holds the Algorave auth token and AI provider API keys.
//
// It is intentionally separate from config.json:
// - config.json is plain, shareable client configuration
// - secrets.json is credentials, written 0600 and never echoed back in plaintext
//
// Callers that render status should use the *Set accessors rather than reading the values.
type SecretsStore struct {
	path string
	mu   sync.Mutex
}

func NewSecretsStore(path string) *SecretsStore {
	return &SecretsStore{path: filepath.Clean(strings.TrimSpace(path))}
}

func (s *SecretsStore) Path() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.path)
}

type secretsFile struct {
	SchemaVersion int        `json:"schema_version"`
	AuthToken     string     `json:"auth_token,omitempty"`
	AI            *aiSecrets `json:"ai,omitempty"`
}

type aiSecrets struct {
	ProviderAPIKeys map[string]string `json:"provider_api_keys,omitempty"`
}

// AuthToken returns the stored Algorave API token, empty when logged out.
func (s *SecretsStore) AuthToken() (string, error) {
	if s == nil {
		return "", errors.New("nil secrets store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sf.AuthToken), nil
}

func (s *SecretsStore) SetAuthToken(token string) error {
	if s == nil {
		return errors.New("nil secrets store")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing auth token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return err
	}
	sf.AuthToken = token
	return s.saveLocked(sf)
}

func (s *SecretsStore) ClearAuthToken() error {
	if s == nil {
		return errors.New("nil secrets store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return err
	}
	sf.AuthToken = ""
	return s.saveLocked(sf)
}

func (s *SecretsStore) GetProviderAPIKey(providerID string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("nil secrets store")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return "", false, errors.New("missing provider id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	if sf.AI == nil {
		return "", false, nil
	}
	v := strings.TrimSpace(sf.AI.ProviderAPIKeys[providerID])
	return v, v != "", nil
}

func (s *SecretsStore) SetProviderAPIKey(providerID, apiKey string) error {
	if s == nil {
		return errors.New("nil secrets store")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return errors.New("missing provider id")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("missing api key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return err
	}
	if sf.AI == nil {
		sf.AI = &aiSecrets{}
	}
	if sf.AI.ProviderAPIKeys == nil {
		sf.AI.ProviderAPIKeys = make(map[string]string)
	}
	sf.AI.ProviderAPIKeys[providerID] = apiKey
	return s.saveLocked(sf)
}

func (s *SecretsStore) ClearProviderAPIKey(providerID string) error {
	if s == nil {
		return errors.New("nil secrets store")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return errors.New("missing provider id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return err
	}
	if sf.AI == nil || sf.AI.ProviderAPIKeys == nil {
		return nil
	}
	delete(sf.AI.ProviderAPIKeys, providerID)
	if len(sf.AI.ProviderAPIKeys) == 0 {
		sf.AI = nil
	}
	return s.saveLocked(sf)
}

// ProviderAPIKeySet reports which of the given providers have a key, without exposing the keys.
func (s *SecretsStore) ProviderAPIKeySet(providerIDs []string) (map[string]bool, error) {
	if s == nil {
		return nil, errors.New("nil secrets store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	var keys map[string]string
	if sf.AI != nil {
		keys = sf.AI.ProviderAPIKeys
	}
	out := make(map[string]bool, len(providerIDs))
	for _, id := range providerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[id] = strings.TrimSpace(keys[id]) != ""
	}
	return out, nil
}

func (s *SecretsStore) loadLocked() (*secretsFile, error) {
	path := strings.TrimSpace(s.path)
	if path == "" {
		return nil, errors.New("missing secrets path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &secretsFile{SchemaVersion: 1}, nil
		}
		return nil, err
	}
	var sf secretsFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, err
	}
	if sf.SchemaVersion == 0 {
		sf.SchemaVersion = 1
	}
	return &sf, nil
}

func (s *SecretsStore) saveLocked(sf *secretsFile) error {
	if sf == nil {
		return errors.New("nil secrets")
	}
	path := strings.TrimSpace(s.path)
	if path == "" {
		return errors.New("missing secrets path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
