// Package registry implements the weak proxy registry: the table that
// tracks every proxy a super-rpc endpoint has handed out, by id, without
// pinning them in memory. When a proxy becomes unreachable the registry
// notices at the next GC and runs a dispose hook (normally an obj_died
// emit to the peer) exactly once, whether that happens by collection or by
// an explicit Dispose call.
package registry

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// Handle is the token returned by Register. It carries the disposed flag
// and wraps the registered proxy value. The registry tracks the Handle
// weakly, so callers hold on to the Handle (directly, or through a proxy
// that keeps a reference to its own Handle) for as long as the proxy
// should stay reachable; once nothing holds the Handle, the registry's
// cleanup fires.
type Handle struct {
	id       string
	value    any
	disposed *atomic.Bool
	cleanup  runtime.Cleanup
	fire     func()
}

// Value returns the proxy this handle wraps.
func (h *Handle) Value() any { return h.value }

// Disposed reports whether the proxy has been disposed, either explicitly
// or by GC-driven finalization.
func (h *Handle) Disposed() bool { return h.disposed.Load() }

// Dispose atomically marks the handle disposed, removes it from the
// registry, cancels the pending GC-driven finalizer, and runs the
// onDispose hook passed to Register. Safe to call more than once and safe
// to race with garbage collection of the proxy itself: only the first
// caller (explicit or GC) runs the hook.
func (h *Handle) Dispose() {
	if h.disposed.CompareAndSwap(false, true) {
		h.cleanup.Stop()
		h.fire()
	}
}

// finalizeArgs is what the GC-driven cleanup closes over. It must never
// reference the Handle (or anything holding it) directly, or the proxy
// would never become unreachable in the first place.
type finalizeArgs struct {
	disposed  *atomic.Bool
	remove    func()
	onDispose func()
}

func runFinalize(a finalizeArgs) {
	if a.disposed.CompareAndSwap(false, true) {
		a.remove()
		if a.onDispose != nil {
			a.onDispose()
		}
	}
}

// Registry is a weak-valued map from id to proxy. It never keeps a proxy
// alive: once the last strong reference outside the registry drops, the
// entry is collected and the registry's next touch of that id observes it
// as gone.
type Registry struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[Handle]
}

// New creates an empty weak proxy registry.
func New() *Registry {
	return &Registry{entries: make(map[string]weak.Pointer[Handle])}
}

// Register installs proxy under id with weak-reference semantics. onDispose
// is invoked at most once, whenever the proxy is explicitly disposed or is
// collected by the GC — whichever happens first. onDispose must not close
// over the returned Handle or the proxy value, or it will pin them forever.
func (r *Registry) Register(id string, proxy any, onDispose func()) *Handle {
	disposed := &atomic.Bool{}
	h := &Handle{id: id, value: proxy, disposed: disposed}
	h.fire = func() {
		r.remove(id, h)
		if onDispose != nil {
			onDispose()
		}
	}

	wp := weak.Make(h)
	r.mu.Lock()
	r.entries[id] = wp
	r.mu.Unlock()

	h.cleanup = runtime.AddCleanup(h, runFinalize, finalizeArgs{
		disposed: disposed,
		remove: func() {
			// Match on the weak pointer, not h, so the cleanup never pins h.
			r.mu.Lock()
			if cur, ok := r.entries[id]; ok && cur == wp {
				delete(r.entries, id)
			}
			r.mu.Unlock()
		},
		onDispose: onDispose,
	})
	return h
}

func (r *Registry) remove(id string, expect *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wp, ok := r.entries[id]; ok {
		if expect == nil || wp.Value() == expect || wp.Value() == nil {
			delete(r.entries, id)
		}
	}
}

// Has reports whether id currently maps to a live, non-disposed proxy.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Get returns the live proxy for id, or (nil, false) if it was never
// registered, has already been collected, or has been disposed.
func (r *Registry) Get(id string) (any, bool) {
	r.mu.Lock()
	wp, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	h := wp.Value()
	if h == nil {
		r.remove(id, nil)
		return nil, false
	}
	if h.Disposed() {
		return nil, false
	}
	return h.value, true
}

// GetHandle returns the live Handle for id, or nil if absent/collected.
func (r *Registry) GetHandle(id string) *Handle {
	r.mu.Lock()
	wp, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	h := wp.Value()
	if h == nil {
		r.remove(id, nil)
		return nil
	}
	return h
}

// Delete removes id from the registry without running any dispose hook.
// Used when the caller has already handled disposal out of band.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of entries still tracked, live or pending
// collection. Intended for tests and diagnostics only.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
