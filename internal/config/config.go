// Package config loads and persists the runtime configuration, including the
// permanently approved tool patterns carried across runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/schleuse-ai/schleuse/internal/sandbox"
)

// ProviderConfig holds credentials and model selection for one LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ApprovalRule is one persisted approval pattern. Rules are matched in the
// order they appear in the file, first match wins.
type ApprovalRule struct {
	Prefix string `json:"prefix"`
	Allow  bool   `json:"allow"`
}

// Config represents application configuration
type Config struct {
	Provider        string                    `json:"provider"` // "anthropic" or "openai"
	Providers       map[string]ProviderConfig `json:"providers,omitempty"`
	ApprovalMode    string                    `json:"approval_mode"` // interactive, approve_all, auto_deny
	ApprovalRules   []ApprovalRule            `json:"approval_rules,omitempty"`
	MaxIterations   int                       `json:"max_iterations"`
	MaxDelegation   int                       `json:"max_delegation_depth"`
	ConsentTimeout  int                       `json:"consent_timeout_seconds"`
	CacheTTL        int                       `json:"cache_ttl_seconds"`
	MaxCacheEntries int                       `json:"max_cache_entries"`
	Temperature     float64                   `json:"temperature"`
	MaxTokens       int                       `json:"max_tokens,omitempty"`
	LogLevel        string                    `json:"log_level"` // debug, info, warn, error, none
	LogPath         string                    `json:"-"`
	Sandbox         sandbox.Config            `json:"sandbox"`
	// ToolConsent forces a tool's consent requirement when the tool itself
	// declares none: true means consent is required.
	ToolConsent  map[string]bool `json:"tool_consent,omitempty"`
	BlockedTools []string        `json:"blocked_tools,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "schleuse")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "schleuse")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "schleuse")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "schleuse")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "schleuse")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Provider:        "anthropic",
		Providers:       make(map[string]ProviderConfig),
		ApprovalMode:    "interactive",
		MaxIterations:   25,
		MaxDelegation:   3,
		ConsentTimeout:  120,
		CacheTTL:        300,
		MaxCacheEntries: 100,
		Temperature:     0.7,
		MaxTokens:       4096,
		LogLevel:        "info",
		LogPath:         filepath.Join(defaultStateDir(), "schleuse.log"),
		Sandbox:         sandbox.Config{Root: cwd},
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	if config.ApprovalMode == "" {
		config.ApprovalMode = "interactive"
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 25
	}
	if config.MaxDelegation <= 0 {
		config.MaxDelegation = 3
	}
	if config.ConsentTimeout <= 0 {
		config.ConsentTimeout = 120
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(defaultStateDir(), "schleuse.log")
	}
	if config.Sandbox.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		config.Sandbox.Root = cwd
	}

	return config, nil
}

// AddApprovalRule appends a pattern to the persisted approval rules. Rules
// keep their insertion order; an existing identical prefix is updated in
// place instead of being duplicated.
func (c *Config) AddApprovalRule(prefix string, allow bool) {
	for i := range c.ApprovalRules {
		if c.ApprovalRules[i].Prefix == prefix {
			c.ApprovalRules[i].Allow = allow
			return
		}
	}
	c.ApprovalRules = append(c.ApprovalRules, ApprovalRule{Prefix: prefix, Allow: allow})
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
