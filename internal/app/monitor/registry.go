package monitor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/pkg/common/logger"
)

// Factory builds a monitor for one resource. The registry owns the returned
// monitor's lifecycle.
type Factory func(resourceID uuid.UUID) *RunMonitor

// Registry manages one started RunMonitor per resource id. Monitors are
// created lazily on first access and stopped together at shutdown.
type Registry struct {
	factory Factory
	logger  *logger.Logger

	mu       sync.Mutex
	monitors map[uuid.UUID]*RunMonitor
}

// NewRegistry creates an empty registry backed by the given factory.
func NewRegistry(factory Factory, log *logger.Logger) *Registry {
	return &Registry{
		factory:  factory,
		logger:   log.With("component", "monitor_registry"),
		monitors: make(map[uuid.UUID]*RunMonitor),
	}
}

// Get returns the monitor for the resource, or nil if none has been created.
func (r *Registry) Get(resourceID uuid.UUID) *RunMonitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitors[resourceID]
}

// GetOrCreate returns the monitor for the resource, creating and starting
// one on first access.
func (r *Registry) GetOrCreate(ctx context.Context, resourceID uuid.UUID) (*RunMonitor, error) {
	r.mu.Lock()
	if m, ok := r.monitors[resourceID]; ok {
		r.mu.Unlock()
		return m, nil
	}
	m := r.factory(resourceID)
	r.monitors[resourceID] = m
	r.mu.Unlock()

	if err := m.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.monitors, resourceID)
		r.mu.Unlock()
		return nil, err
	}

	r.logger.Info(ctx, "Monitor created", "resource_id", resourceID.String())
	return m, nil
}

// StopAll stops every monitor and empties the registry.
func (r *Registry) StopAll() {
	r.mu.Lock()
	monitors := make([]*RunMonitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	r.monitors = make(map[uuid.UUID]*RunMonitor)
	r.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}
