package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/mcp"
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server over the configured collection.

The server communicates via stdin/stdout using JSON-RPC 2.0 and provides tools for:
  - memvec_search: Semantic search over stored memories
  - memvec_get:    Fetch one memory by id
  - memvec_list:   List memories filtered by metadata
  - memvec_insert: Store a new memory
  - memvec_delete: Delete a memory

This command is typically invoked by AI agents and not run directly by users.`,
	Args: cobra.NoArgs,
	RunE: runMcpCmd,
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// MCP server uses stdin/stdout for communication, so redirect logs to stderr
	log.SetOutput(os.Stderr)
	if !debug {
		log.SetLevel(log.InfoLevel)
	}

	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	emb, err := openEmbedder(cfg)
	if err != nil {
		return err
	}

	server := mcp.NewServer(st, emb, cfg.Collection.Dimensions, cmd.InOrStdin(), cmd.OutOrStdout())
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
