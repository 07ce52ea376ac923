package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/dbconn/pkg/core"
)

// Factory constructs an adapter. A nil logger means discard.
type Factory func(*slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[core.EngineFamily]Factory)
)

// Register adds an adapter factory to the registry.
// Called by adapter implementations in their init() functions.
func Register(family core.EngineFamily, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[family] = factory
}

// Get retrieves an adapter factory by engine family.
func Get(family core.EngineFamily) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[family]
	return f, ok
}

// NewAdapter creates a new adapter for the engine family.
// The logger parameter is passed to the adapter constructor (nil uses discard logger).
func NewAdapter(family core.EngineFamily, logger *slog.Logger) (Adapter, error) {
	factory, ok := Get(family)
	if !ok {
		return nil, &NotAvailableError{
			Family:    family,
			Available: ListAdapters(),
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger.With("backend", family.String())), nil
}

// ListAdapters returns all registered engine families (sorted).
func ListAdapters() []core.EngineFamily {
	registryMu.RLock()
	defer registryMu.RUnlock()
	families := make([]core.EngineFamily, 0, len(registry))
	for f := range registry {
		families = append(families, f)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}

// IsRegistered checks if an engine family has an adapter in this build.
func IsRegistered(family core.EngineFamily) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[family]
	return ok
}

// NotAvailableError is returned when a recognized engine family has no adapter
// compiled into this build.
type NotAvailableError struct {
	Family    core.EngineFamily
	Available []core.EngineFamily
}

func (e *NotAvailableError) Error() string {
	names := make([]string, len(e.Available))
	for i, f := range e.Available {
		names[i] = f.String()
	}
	return fmt.Sprintf("%s backend is not available in this build\nAvailable backends: %s\nHint: Check the backend of your profile in dbconn.yaml",
		e.Family, strings.Join(names, ", "))
}
