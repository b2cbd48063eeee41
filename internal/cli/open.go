package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/rest"
	"github.com/nickcecere/memvec/internal/config"
	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/ui"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Debug("Received signal, cancelling", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openConn opens the configured backend. Local database directories are
// created on first use.
func openConn(ctx context.Context, cfg *config.Config) (backend.Conn, error) {
	if cfg.Backend.Name != rest.Name && cfg.Backend.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Backend.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	log.Debug("Opening backend", "name", cfg.Backend.Name, "path", cfg.Backend.Path, "url", cfg.Backend.URL)

	conn, err := backend.Open(ctx, cfg.Backend.Name, cfg.Backend.BackendSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to open backend: %w", err)
	}
	return conn, nil
}

// storeConfig maps the collection section onto the adapter config.
func storeConfig(cfg *config.Config) vectorstore.Config {
	return vectorstore.Config{
		Table:      cfg.Collection.BackendTable(),
		Dimensions: cfg.Collection.Dimensions,
		Procedure:  cfg.Collection.Procedure,
	}
}

// openStore opens the backend and returns a bootstrapped vector store.
func openStore(ctx context.Context, cfg *config.Config) (*vectorstore.Adapter, error) {
	conn, err := openConn(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// New closes conn when bootstrapping fails
	st, err := vectorstore.New(ctx, conn, storeConfig(cfg),
		vectorstore.WithLogger(ui.NewLogger(os.Stderr, "vectorstore")))
	if err != nil {
		return nil, err
	}
	return st, nil
}

// openEmbedder creates the configured embedding service.
func openEmbedder(cfg *config.Config) (embeddings.Service, error) {
	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	return emb, nil
}
