package station

import (
	"sync"

	"github.com/florianw/stationpoller/internal/state"
	"go.uber.org/zap"
)

// Registry is the single owner of the process-wide station endpoint.
// Discovery updates it; the client reads it before every connection
// attempt. The mutex keeps a future concurrent poller correct.
type Registry struct {
	mu      sync.RWMutex
	current state.Endpoint
	store   state.Store
	logger  *zap.SugaredLogger
}

// NewRegistry seeds the registry from the persisted store when a record
// exists, otherwise from the configured fallback endpoint
func NewRegistry(store state.Store, fallback state.Endpoint, logger *zap.SugaredLogger) (*Registry, error) {
	r := &Registry{
		current: fallback,
		store:   store,
		logger:  logger,
	}

	if store != nil {
		ep, found, err := store.Load()
		if err != nil {
			return nil, err
		}
		if found {
			logger.Infof("using persisted station endpoint %s", ep.Addr())
			r.current = ep
		}
	}

	return r, nil
}

// Endpoint returns the current station endpoint
func (r *Registry) Endpoint() state.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Update replaces the station endpoint and persists it. Updating with
// the current value is a no-op, so repeated discoveries of the same
// address never touch the store.
func (r *Registry) Update(ep state.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep == r.current {
		return nil
	}

	r.logger.Infof("station endpoint changed from %s to %s", r.current.Addr(), ep.Addr())
	r.current = ep

	if r.store != nil {
		if err := r.store.Save(ep); err != nil {
			return err
		}
	}

	return nil
}
