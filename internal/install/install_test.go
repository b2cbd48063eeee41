package install

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"claude-code", "opencode"}, Names())

	c, err := Lookup("claude-code")
	require.NoError(t, err)
	assert.Equal(t, "Claude Code", c.Title)
	assert.Contains(t, c.ConfigPath(), ".claude.json")

	_, err = Lookup("emacs")
	assert.ErrorContains(t, err, "unknown client")
}

func TestClaudeCodeInstallKeepsOtherSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark","mcpServers":{"other":{"command":"x"}}}`), 0644))

	c, err := Lookup("claude-code")
	require.NoError(t, err)
	require.NoError(t, c.Install(path, Server{Command: "memvec", Args: []string{"mcp", "--config", "/etc/memvec.yaml"}}))

	config := readJSON(t, path)
	assert.Equal(t, "dark", config["theme"])
	servers := config["mcpServers"].(map[string]any)
	assert.Contains(t, servers, "other")
	assert.Equal(t, map[string]any{
		"command": "memvec",
		"args":    []any{"mcp", "--config", "/etc/memvec.yaml"},
	}, servers[ServerKey])

	removed, err := c.Uninstall(path)
	require.NoError(t, err)
	assert.True(t, removed)
	servers = readJSON(t, path)["mcpServers"].(map[string]any)
	assert.NotContains(t, servers, ServerKey)
	assert.Contains(t, servers, "other")

	removed, err = c.Uninstall(path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestOpenCodeInstallCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencode", "opencode.json")

	c, err := Lookup("opencode")
	require.NoError(t, err)
	require.NoError(t, c.Install(path, Server{Command: "/usr/local/bin/memvec", Args: []string{"mcp"}}))

	config := readJSON(t, path)
	assert.Equal(t, "https://opencode.ai/config.json", config["$schema"])
	assert.Equal(t, map[string]any{
		"type":    "local",
		"command": []any{"/usr/local/bin/memvec", "mcp"},
		"enabled": true,
	}, config["mcp"].(map[string]any)[ServerKey])
}

func TestUninstallMissingConfig(t *testing.T) {
	c, err := Lookup("opencode")
	require.NoError(t, err)

	removed, err := c.Uninstall(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInstallRejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	c, err := Lookup("claude-code")
	require.NoError(t, err)
	assert.ErrorContains(t, c.Install(path, Server{Command: "memvec", Args: []string{"mcp"}}), "failed to parse")
}
