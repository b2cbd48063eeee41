package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Backend defaults
	DefaultBackend = "sqlitevec"
	DefaultTimeout = 30 * time.Second

	// Collection defaults
	DefaultTable      = "memories"
	DefaultDimensions = 768
	DefaultProcedure  = "match_vectors"
	DefaultMetric     = "cosine"

	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// Server
	DefaultServerAddr = "127.0.0.1:8787"

	// Database
	DefaultDBFileName = "memvec.db"
)

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/memvec"
	}
	return filepath.Join(home, ".config", "memvec")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/memvec"
	}
	return filepath.Join(home, ".local", "share", "memvec")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
