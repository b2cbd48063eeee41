// Package install registers the memvec MCP server with MCP clients.
package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ServerKey is the name memvec is registered under in client configs.
const ServerKey = "memvec"

// Server is the command a client runs to start the MCP server.
type Server struct {
	Command string
	Args    []string
}

// Client describes how one MCP client stores its server list.
type Client struct {
	// Name is the CLI name, e.g. "claude-code".
	Name string

	// Title is the display name.
	Title string

	// ConfigPath returns the client's JSON config file.
	ConfigPath func() string

	// Section is the top-level key holding MCP servers.
	Section string

	entry   func(Server) map[string]any
	prepare func(config map[string]any)
}

var clients = map[string]Client{
	"claude-code": {
		Name:  "claude-code",
		Title: "Claude Code",
		ConfigPath: func() string {
			home, _ := os.UserHomeDir()
			return filepath.Join(home, ".claude.json")
		},
		Section: "mcpServers",
		entry: func(s Server) map[string]any {
			return map[string]any{
				"command": s.Command,
				"args":    s.Args,
			}
		},
	},
	"opencode": {
		Name:       "opencode",
		Title:      "OpenCode",
		ConfigPath: openCodeConfigPath,
		Section:    "mcp",
		entry: func(s Server) map[string]any {
			return map[string]any{
				"type":    "local",
				"command": append([]string{s.Command}, s.Args...),
				"enabled": true,
			}
		},
		prepare: func(config map[string]any) {
			if _, ok := config["$schema"]; !ok {
				config["$schema"] = "https://opencode.ai/config.json"
			}
		},
	},
}

// openCodeConfigPath prefers an existing .json or .jsonc file.
func openCodeConfigPath() string {
	home, _ := os.UserHomeDir()

	jsonPath := filepath.Join(home, ".config", "opencode", "opencode.json")
	jsoncPath := filepath.Join(home, ".config", "opencode", "opencode.jsonc")

	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	if _, err := os.Stat(jsoncPath); err == nil {
		return jsoncPath
	}
	return jsonPath
}

// Lookup returns the client registered under name.
func Lookup(name string) (Client, error) {
	c, ok := clients[name]
	if !ok {
		return Client{}, fmt.Errorf("unknown client %q (supported: %v)", name, Names())
	}
	return c, nil
}

// Names returns the supported client names, sorted.
func Names() []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install adds or replaces the memvec entry in the config at path, keeping
// every other setting.
func (c Client) Install(path string, s Server) error {
	config, err := readConfig(path)
	if err != nil {
		return err
	}
	if c.prepare != nil {
		c.prepare(config)
	}

	servers, ok := config[c.Section].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	servers[ServerKey] = c.entry(s)
	config[c.Section] = servers

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfig(path, config)
}

// Uninstall removes the memvec entry. It reports false when there was
// nothing to remove.
func (c Client) Uninstall(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	config, err := readConfig(path)
	if err != nil {
		return false, err
	}

	servers, ok := config[c.Section].(map[string]any)
	if !ok {
		return false, nil
	}
	if _, ok := servers[ServerKey]; !ok {
		return false, nil
	}
	delete(servers, ServerKey)
	config[c.Section] = servers

	return true, writeConfig(path, config)
}

func readConfig(path string) (map[string]any, error) {
	config := make(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse existing config: %w", err)
	}
	if config == nil {
		config = make(map[string]any)
	}
	return config, nil
}

func writeConfig(path string, config map[string]any) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
