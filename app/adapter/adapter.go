package adapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

var ErrTransport = errors.New("transport error")

// Payload is what an adapter fetched. Parse is the only consumer.
type Payload struct {
	URL         string
	ContentType string
	Body        []byte
}

// Adapter is implemented by every event source. Implementations must not
// share mutable state with each other and must honour ctx cancellation in
// Fetch and Parse.
type Adapter interface {
	ID() string
	Name() string
	Fetch(ctx context.Context) (Payload, error)
	Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error)
}

// Configured is implemented by adapters built from a source definition.
type Configured interface {
	Config() *SourceConfig
}

var _ Configured = (*Source)(nil)

// Registry holds the active adapters in registration order. It is filled
// once at startup and only read afterwards.
type Registry struct {
	adapters []Adapter
	index    map[string]int
	mu       sync.RWMutex
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		index: make(map[string]int),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds a to the registry. A second adapter with an id that is
// already registered is ignored and Register returns false.
func (r *Registry) Register(a Adapter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[a.ID()]; exists {
		slog.Debug("Adapter already registered, ignoring", "source", a.ID())
		return false
	}

	r.index[a.ID()] = len(r.adapters)
	r.adapters = append(r.adapters, a)

	return true
}

func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adaptersCopy := make([]Adapter, len(r.adapters))
	copy(adaptersCopy, r.adapters)
	return adaptersCopy
}

func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.adapters[i], true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
