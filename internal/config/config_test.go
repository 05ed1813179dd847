package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "interactive", cfg.ApprovalMode)
	assert.Equal(t, 25, cfg.MaxIterations)
	assert.Equal(t, 3, cfg.MaxDelegation)
	assert.NotEmpty(t, cfg.Sandbox.Root)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.ApprovalMode = "auto_deny"
	cfg.MaxIterations = 7
	cfg.Providers["anthropic"] = ProviderConfig{APIKey: "key", Model: "claude-sonnet-4-5"}
	cfg.AddApprovalRule("git ", true)
	cfg.AddApprovalRule("rm ", false)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "auto_deny", loaded.ApprovalMode)
	assert.Equal(t, 7, loaded.MaxIterations)
	assert.Equal(t, "key", loaded.Providers["anthropic"].APIKey)

	// Rule order survives the round trip.
	require.Len(t, loaded.ApprovalRules, 2)
	assert.Equal(t, ApprovalRule{Prefix: "git ", Allow: true}, loaded.ApprovalRules[0])
	assert.Equal(t, ApprovalRule{Prefix: "rm ", Allow: false}, loaded.ApprovalRules[1])
}

func TestAddApprovalRuleUpdatesInPlace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddApprovalRule("git ", true)
	cfg.AddApprovalRule("npm ", true)
	cfg.AddApprovalRule("git ", false)

	require.Len(t, cfg.ApprovalRules, 2)
	assert.Equal(t, "git ", cfg.ApprovalRules[0].Prefix)
	assert.False(t, cfg.ApprovalRules[0].Allow)
}

func TestLoadBackfillsZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := &Config{Provider: "openai"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "interactive", loaded.ApprovalMode)
	assert.Equal(t, 25, loaded.MaxIterations)
	assert.Equal(t, 120, loaded.ConsentTimeout)
	assert.NotNil(t, loaded.Providers)
}
