package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the user's persistent portal settings.
type Config struct {
	ServerURL      string `json:"server_url,omitempty"`      // Assistant server base URL
	ModuleType     string `json:"module_type,omitempty"`     // Module selector sent with each turn (itsm, erp, ...)
	FirstName      string `json:"first_name,omitempty"`      // Display name used in greetings
	PromptsFile    string `json:"prompts_file,omitempty"`    // Optional template override file
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // Request timeout for non-streaming calls
}

const (
	defaultServerURL = "http://localhost:8000"
	defaultModule    = "itsm"
	defaultTimeout   = 30
)

// Timeout returns the configured request timeout with a default applied.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultTimeout * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted at the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "esmchat")}, nil
}

// NewManagerAt creates a manager rooted at an explicit directory, used by
// tests and the --config flag.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk, applies environment overrides, and
// fills in defaults. A missing file yields the defaults without error.
func (m *Manager) Load() (*Config, error) {
	cfg := &Config{}
	path := m.GetConfigPath()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config json: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// DataDir returns the directory for local state (history cache, search
// index), kept next to the config file.
func (m *Manager) DataDir() string {
	return filepath.Join(m.configDir, "data")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ESMCHAT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("ESMCHAT_MODULE"); v != "" {
		cfg.ModuleType = v
	}
	if v := os.Getenv("ESMCHAT_FIRST_NAME"); v != "" {
		cfg.FirstName = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	if cfg.ModuleType == "" {
		cfg.ModuleType = defaultModule
	}
}
