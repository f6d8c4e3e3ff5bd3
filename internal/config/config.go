package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config is the on-disk configuration for algorave-client. Secrets live in secrets.json next to
// it, never here.
type Config struct {
	// APIBaseURL is the Algorave REST endpoint, e.g. https://algorave.example.com.
	APIBaseURL string `json:"api_base_url"`
	// WSBaseURL is the session channel endpoint, e.g. wss://algorave.example.com.
	WSBaseURL string `json:"ws_base_url"`

	// StateDir holds the drafts database, secrets and provider catalog.
	// If empty, the directory containing the config file is used.
	StateDir string `json:"state_dir,omitempty"`

	// DefaultProvider names the providers.yaml entry used for direct AI edits when the request
	// does not name one.
	DefaultProvider string `json:"default_provider,omitempty"`

	// DisplayName is sent when joining sessions anonymously.
	DisplayName string `json:"display_name,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := checkURL(c.APIBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}
	if err := checkURL(c.WSBaseURL, "ws", "wss"); err != nil {
		return fmt.Errorf("ws_base_url: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unsupported value %q", c.LogLevel)
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return errors.New("missing host")
			}
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, "|"))
}

// Default returns a config pointed at a local development server.
func Default() *Config {
	return &Config{
		APIBaseURL: "http://localhost:8080",
		WSBaseURL:  "ws://localhost:8080",
		LogFormat:  "text",
		LogLevel:   "info",
	}
}

// DefaultConfigPath returns the default config path:
//
//	~/.algorave/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "algorave-client.config.json"
	}
	return filepath.Join(home, ".algorave", "config.json")
}

// EffectiveStateDir resolves where local state lives, defaulting to the config file's directory.
func (c *Config) EffectiveStateDir(configPath string) string {
	if c != nil && strings.TrimSpace(c.StateDir) != "" {
		return strings.TrimSpace(c.StateDir)
	}
	return filepath.Dir(configPath)
}

func (c *Config) DraftsDBPath(configPath string) string {
	return filepath.Join(c.EffectiveStateDir(configPath), "drafts.sqlite")
}

func (c *Config) SecretsPath(configPath string) string {
	return filepath.Join(c.EffectiveStateDir(configPath), "secrets.json")
}

func (c *Config) ProvidersPath(configPath string) string {
	return filepath.Join(c.EffectiveStateDir(configPath), "providers.yaml")
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
