package signin

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultIdleWindow = 10 * time.Minute

// Registry keeps one Controller per screen instance, keyed by the browser session id.
type Registry struct {
	factory func() *Controller
	idle    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	forms map[string]*Controller
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithIdleWindow sets how long an untouched idle controller is kept.
func WithIdleWindow(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithRegistryClock injects the time source used for eviction.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs a Registry creating controllers with factory.
func NewRegistry(factory func() *Controller, opts ...RegistryOption) *Registry {
	if factory == nil {
		panic("signin: controller factory is required")
	}
	r := &Registry{
		factory: factory,
		idle:    defaultIdleWindow,
		now:     time.Now,
		forms:   make(map[string]*Controller),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Form returns the controller for key, creating it on first use.
func (r *Registry) Form(key string) *Controller {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.forms[key]; ok {
		return c
	}
	c := r.factory()
	r.forms[key] = c
	return c
}

// Lookup returns the controller for key without creating one.
func (r *Registry) Lookup(key string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.forms[strings.TrimSpace(key)]
	return c, ok
}

// Release discards the controller for key once the screen is left. Busy
// controllers are kept so their outstanding call still settles into them.
func (r *Registry) Release(key string) {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.forms[key]
	if !ok {
		return
	}
	if c.Busy() {
		return
	}
	delete(r.forms, key)
}

// Len returns the number of tracked screens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// Sweep evicts idle controllers untouched for longer than the idle window and
// returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, c := range r.forms {
		idle, ok := c.idleFor(now)
		if ok && idle > r.idle {
			delete(r.forms, key)
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
