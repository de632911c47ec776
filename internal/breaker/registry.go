package breaker

import "sync"

// Registry holds the process-wide set of named breakers, created lazily on
// first use. It is backed by sync.Map so hot-path lookups avoid a global
// lock; creation races are resolved by LoadOrStore and the loser's breaker
// is discarded before anyone observes it.
type Registry struct {
	defaults Options
	m        sync.Map // string → *Breaker
}

// NewRegistry constructs a Registry whose breakers default to opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{defaults: opts}
}

// Get returns the breaker for target, creating it with the registry defaults
// when absent.
func (r *Registry) Get(target string) *Breaker {
	if v, ok := r.m.Load(target); ok {
		return v.(*Breaker)
	}
	v, _ := r.m.LoadOrStore(target, New(target, r.defaults))
	return v.(*Breaker)
}

// GetWith returns the breaker for target, creating it with opts when absent.
// An existing breaker keeps its original options.
func (r *Registry) GetWith(target string, opts Options) *Breaker {
	if v, ok := r.m.Load(target); ok {
		return v.(*Breaker)
	}
	v, _ := r.m.LoadOrStore(target, New(target, opts))
	return v.(*Breaker)
}

// Snapshots returns a point-in-time view of every registered breaker keyed
// by target name.
func (r *Registry) Snapshots() map[string]Snapshot {
	out := make(map[string]Snapshot)
	r.m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*Breaker).Snapshot()
		return true
	})
	return out
}
