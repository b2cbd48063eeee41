package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/memvec/internal/backend/rest"
	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/server"
	"github.com/nickcecere/memvec/internal/ui"
)

var serveAddr string

// serveCmd exposes the configured backend over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the backend over HTTP for the rest backend",
	Long: `Expose the configured local backend over HTTP. Another memvec configured
with backend.name=rest and backend.url pointing here uses it remotely.

Set server.api_key (or MEMVEC_SERVER_API_KEY) to require a bearer key.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.Backend.Name == rest.Name {
		return fmt.Errorf("serve needs a local backend, not %q", rest.Name)
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, err := openConn(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	srv, err := server.New(conn, server.Config{
		ListenAddr:  addr,
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      ui.NewLogger(os.Stderr, "http"),
	})
	if err != nil {
		return err
	}

	log.Debug("Starting HTTP server", "backend", cfg.Backend.Name, "addr", addr)
	return srv.Start(ctx)
}
