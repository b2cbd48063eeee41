package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Settings carries everything a backend needs to open a connection.
type Settings struct {
	// Path is the database file for embedded backends.
	Path string

	// URL is the endpoint of remote backends.
	URL string

	// APIKey authenticates against remote backends.
	APIKey string

	// Timeout bounds a single remote request.
	Timeout time.Duration
}

// Factory opens a Conn.
type Factory func(ctx context.Context, s Settings) (Conn, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// Register makes a backend available under name. Backend packages call this
// from init().
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Open opens a connection with the named backend.
func Open(ctx context.Context, name string, s Settings) (Conn, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Names())
	}
	return f(ctx, s)
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
