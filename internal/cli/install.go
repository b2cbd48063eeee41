package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/install"
	"github.com/nickcecere/memvec/internal/ui"
)

var installConfigPath string

// installCmd registers the MCP server with a client.
var installCmd = &cobra.Command{
	Use:   "install <client>",
	Short: "Register the memvec MCP server with an AI client",
	Long: `Add 'memvec mcp' to an MCP client's configuration so the client can
search and store memories.

Supported clients: ` + strings.Join(install.Names(), ", ") + `

The config file passed with --config is forwarded to the server.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: install.Names(),
	RunE:      runInstall,
}

// uninstallCmd removes the MCP server from a client.
var uninstallCmd = &cobra.Command{
	Use:       "uninstall <client>",
	Short:     "Remove the memvec MCP server from an AI client",
	Args:      cobra.ExactArgs(1),
	ValidArgs: install.Names(),
	RunE:      runUninstall,
}

func init() {
	installCmd.Flags().StringVar(&installConfigPath, "client-config", "", "client config file (default is the client's own location)")
	uninstallCmd.Flags().StringVar(&installConfigPath, "client-config", "", "client config file (default is the client's own location)")
}

// mcpServer returns the command line a client should run.
func mcpServer() install.Server {
	command := "memvec"
	if exe, err := os.Executable(); err == nil {
		command = exe
	}

	args := []string{"mcp"}
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			args = append(args, "--config", abs)
		}
	}
	return install.Server{Command: command, Args: args}
}

func runInstall(cmd *cobra.Command, args []string) error {
	client, err := install.Lookup(args[0])
	if err != nil {
		return err
	}

	path := installConfigPath
	if path == "" {
		path = client.ConfigPath()
	}

	server := mcpServer()
	if err := client.Install(path, server); err != nil {
		return fmt.Errorf("failed to install into %s: %w", client.Title, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Success.Render("Installed memvec into "+client.Title))
	fmt.Fprintf(out, "Config updated: %s\n", path)
	fmt.Fprintf(out, "Command: %s %s\n", server.Command, strings.Join(server.Args, " "))
	fmt.Fprintf(out, "\nTo remove it again: memvec uninstall %s\n", client.Name)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	client, err := install.Lookup(args[0])
	if err != nil {
		return err
	}

	path := installConfigPath
	if path == "" {
		path = client.ConfigPath()
	}

	removed, err := client.Uninstall(path)
	if err != nil {
		return fmt.Errorf("failed to uninstall from %s: %w", client.Title, err)
	}

	out := cmd.OutOrStdout()
	if !removed {
		fmt.Fprintf(out, "memvec is not installed in %s, nothing to do\n", client.Title)
		return nil
	}
	fmt.Fprintln(out, ui.Success.Render("Uninstalled memvec from "+client.Title))
	return nil
}
