// Package config handles configuration loading and validation for memvec.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/nickcecere/memvec/internal/backend"
)

// Config represents the complete memvec configuration.
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Collection CollectionConfig `mapstructure:"collection" yaml:"collection"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" yaml:"embeddings"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Name    string        `mapstructure:"name" yaml:"name"`
	Path    string        `mapstructure:"path" yaml:"path"`
	URL     string        `mapstructure:"url" yaml:"url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CollectionConfig describes the table the vector store works against.
type CollectionConfig struct {
	Table           string `mapstructure:"table" yaml:"table"`
	IDColumn        string `mapstructure:"id_column" yaml:"id_column"`
	EmbeddingColumn string `mapstructure:"embedding_column" yaml:"embedding_column"`
	MetadataColumn  string `mapstructure:"metadata_column" yaml:"metadata_column"`
	Dimensions      int    `mapstructure:"dimensions" yaml:"dimensions"`
	Procedure       string `mapstructure:"procedure" yaml:"procedure"`
	Metric          string `mapstructure:"metric" yaml:"metric"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider" yaml:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama" yaml:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai" yaml:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Model string `mapstructure:"model" yaml:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model" yaml:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
}

// ServerConfig configures `memvec serve`.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr" yaml:"addr"`
	APIKey      string   `mapstructure:"api_key" yaml:"api_key"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins,omitempty"`
}

// BackendTable returns the collection table with column defaults applied.
func (c CollectionConfig) BackendTable() backend.Table {
	return backend.Table{
		Name:            c.Table,
		IDColumn:        c.IDColumn,
		EmbeddingColumn: c.EmbeddingColumn,
		MetadataColumn:  c.MetadataColumn,
	}.WithDefaults()
}

// BackendSettings converts the backend section into backend.Settings.
func (c BackendConfig) BackendSettings() backend.Settings {
	return backend.Settings{
		Path:    c.Path,
		URL:     c.URL,
		APIKey:  c.APIKey,
		Timeout: c.Timeout,
	}
}

// Masked returns a copy with every secret replaced by a fixed marker.
func (c *Config) Masked() *Config {
	out := *c
	out.Backend.APIKey = mask(c.Backend.APIKey)
	out.Embeddings.OpenAI.APIKey = mask(c.Embeddings.OpenAI.APIKey)
	out.Server.APIKey = mask(c.Server.APIKey)
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Name:    DefaultBackend,
			Path:    DefaultDatabasePath(),
			Timeout: DefaultTimeout,
		},
		Collection: CollectionConfig{
			Table:           DefaultTable,
			IDColumn:        backend.DefaultIDColumn,
			EmbeddingColumn: backend.DefaultEmbeddingColumn,
			MetadataColumn:  backend.DefaultMetadataColumn,
			Dimensions:      DefaultDimensions,
			Procedure:       DefaultProcedure,
			Metric:          DefaultMetric,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())

		// A .memvecrc.yaml in the working directory or a parent wins
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("MEMVEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv()

	return cfg.Validate()
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Collection.Dimensions <= 0 {
		return fmt.Errorf("collection.dimensions must be positive, got %d", c.Collection.Dimensions)
	}
	if err := c.Collection.BackendTable().Validate(); err != nil {
		return fmt.Errorf("invalid collection: %w", err)
	}
	if c.Collection.Procedure != "" && !backend.ValidIdentifier(c.Collection.Procedure) {
		return fmt.Errorf("invalid collection.procedure %q", c.Collection.Procedure)
	}
	switch c.Embeddings.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embeddings provider: %s", c.Embeddings.Provider)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Backend
	viper.SetDefault("backend.name", DefaultBackend)
	viper.SetDefault("backend.path", DefaultDatabasePath())
	viper.SetDefault("backend.url", "")
	viper.SetDefault("backend.api_key", "")
	viper.SetDefault("backend.timeout", DefaultTimeout)

	// Collection
	viper.SetDefault("collection.table", DefaultTable)
	viper.SetDefault("collection.id_column", backend.DefaultIDColumn)
	viper.SetDefault("collection.embedding_column", backend.DefaultEmbeddingColumn)
	viper.SetDefault("collection.metadata_column", backend.DefaultMetadataColumn)
	viper.SetDefault("collection.dimensions", DefaultDimensions)
	viper.SetDefault("collection.procedure", DefaultProcedure)
	viper.SetDefault("collection.metric", DefaultMetric)

	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)
	viper.SetDefault("embeddings.openai.base_url", "")
	viper.SetDefault("embeddings.openai.api_key", "")
	viper.SetDefault("embeddings.openai.dimensions", 0)

	// Server
	viper.SetDefault("server.addr", DefaultServerAddr)
	viper.SetDefault("server.api_key", "")
	viper.SetDefault("server.cors_origins", []string{})
}

// findRCFile searches for .memvecrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".memvecrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
