package vectorstore

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/backend"
)

// DefaultProcedure is the ranking procedure called by Search when the config
// names none.
const DefaultProcedure = "match_vectors"

// Config describes the collection an Adapter manages.
type Config struct {
	// Table is the collection table and its column names.
	Table backend.Table

	// Dimensions is the length of every embedding in the collection.
	Dimensions int

	// Procedure is the backend ranking procedure.
	Procedure string
}

func (c Config) withDefaults() Config {
	c.Table = c.Table.WithDefaults()
	if c.Procedure == "" {
		c.Procedure = DefaultProcedure
	}
	return c
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for bootstrap and operation failures.
func WithLogger(logger *log.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithClock sets the time source for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithoutBootstrap skips the construction-time probe. Only tooling that has
// to reach a collection before it is usable should set it.
func WithoutBootstrap() Option {
	return func(a *Adapter) {
		a.skipBootstrap = true
	}
}
