package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Adapter)
)

// Register adds an adapter factory to the registry. Called by adapter
// implementations in their init() functions.
func Register(name string, factory func(*slog.Logger) Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// IsRegistered checks if an adapter type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// ListAdapters returns all registered adapter names, sorted.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates an adapter from the config and connects it. A nil
// logger discards.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("warehouse type not specified")
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}

	a := factory(logger)
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect %s warehouse: %w", cfg.Type, err)
	}
	return a, nil
}

// UnknownAdapterError is returned when an unknown adapter type is
// requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown warehouse type %q (available: %v)", e.Type, e.Available)
}
