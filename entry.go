package rpc

import (
	"sync"

	"github.com/Sly1024/super-rpc/descriptor"
)

// HostFunc is the call signature every exposed function, method, getter
// and setter is bound through: deserialized arguments in, a single
// result (or error) out. Getters/setters pass a one- or zero-element
// args slice so a single shape covers every action in §4.4's incoming
// dispatch table.
type HostFunc func(args []any) (any, error)

// HostFunction is a host entry for a standalone exposed function.
type HostFunction struct {
	ID   string
	Desc descriptor.Function
	Fn   HostFunc
}

// eventHub tracks listeners for one host object's events, keyed by the
// listener's own proxy id on the peer so add/remove stay symmetric even
// though Go funcs aren't directly comparable (spec.md §4.1, §4.4).
type eventHub struct {
	mu        sync.Mutex
	listeners map[string]map[string]HostFunc // event name -> listener id -> callback
}

func newEventHub() *eventHub {
	return &eventHub{listeners: make(map[string]map[string]HostFunc)}
}

func (h *eventHub) add(event, listenerID string, fn HostFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[event] == nil {
		h.listeners[event] = make(map[string]HostFunc)
	}
	h.listeners[event][listenerID] = fn
}

func (h *eventHub) remove(event, listenerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners[event], listenerID)
}

func (h *eventHub) fire(event string, args ...any) {
	h.mu.Lock()
	fns := make([]HostFunc, 0, len(h.listeners[event]))
	for _, fn := range h.listeners[event] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		_, _ = fn(args)
	}
}

// HostObject is a host entry for a plain exposed object or a class
// instance (ClassID != "" in the latter case). Members are bound
// explicitly at registration time via Go closures rather than discovered
// by reflection, the idiomatic Go analogue of the original's dynamic
// target[prop] access (spec.md §9, "Dynamic dispatch").
type HostObject struct {
	ID      string
	ClassID string
	Target  any
	Desc    descriptor.Object

	Functions map[string]HostFunc
	Getters   map[string]HostFunc
	Setters   map[string]HostFunc

	events *eventHub
}

// NewHostObject creates an empty host object entry. Target is the local
// value this entry fronts; it is what a hostObject-tagged round trip
// resolves back to, and (when the entry also carries a ClassID) what its
// readonly-property snapshot is captured from.
func NewHostObject(id string, target any, desc descriptor.Object) *HostObject {
	return &HostObject{
		ID:        id,
		Target:    target,
		Desc:      desc,
		Functions: make(map[string]HostFunc),
		Getters:   make(map[string]HostFunc),
		Setters:   make(map[string]HostFunc),
		events:    newEventHub(),
	}
}

// AddEventListener registers fn under event, keyed by the listener's own
// wire identity so a later RemoveEventListener with "the same" proxy
// function removes exactly this registration.
func (o *HostObject) AddEventListener(event, listenerID string, fn HostFunc) {
	o.events.add(event, listenerID, fn)
}

// RemoveEventListener undoes AddEventListener.
func (o *HostObject) RemoveEventListener(event, listenerID string) {
	o.events.remove(event, listenerID)
}

// Fire invokes every listener currently registered for event. Host code
// calls this directly; it is the local equivalent of the original's
// target.addEventListener plumbing firing on the JS side.
func (o *HostObject) Fire(event string, args ...any) {
	o.events.fire(event, args...)
}

// HostClass is a host entry for a registered class: an optional
// constructor, static members (bound once, like a HostObject with no
// instance), and a factory that binds member closures for each new
// instance.
type HostClass struct {
	ClassID string
	Desc    descriptor.Class

	Ctor HostFunc // may be nil if the class exposes no constructor

	StaticFunctions map[string]HostFunc
	StaticGetters   map[string]HostFunc
	StaticSetters   map[string]HostFunc

	// BindInstance builds the member closures for a freshly constructed
	// (or externally supplied) instance value. WrapInstance puts the
	// returned maps into a new HostObject, filling in its
	// ID/ClassID/Target/Desc, before it is registered.
	BindInstance func(target any) (functions, getters, setters map[string]HostFunc)

	// Processor captures per-instance readonly-property values from target
	// into a copy of Desc.Instance at WrapInstance time (spec.md §4.1):
	// the shared class descriptor can't hold per-instance values like a
	// `name` set in the constructor, so this runs once per instance
	// instead of once per class.
	Processor descriptor.Processor
}

// NewHostClass creates an empty class entry.
func NewHostClass(classID string, desc descriptor.Class) *HostClass {
	return &HostClass{
		ClassID:         classID,
		Desc:            desc,
		StaticFunctions: make(map[string]HostFunc),
		StaticGetters:   make(map[string]HostFunc),
		StaticSetters:   make(map[string]HostFunc),
	}
}
