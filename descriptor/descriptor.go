// Package descriptor holds the declarative shape of entities exposed across
// a super-rpc session: which functions, properties, events and class parts
// are reachable from the peer, and how each one should be called.
package descriptor

// ReturnBehavior selects how a function's result crosses the wire.
type ReturnBehavior string

const (
	// ReturnVoid fires a call and never waits for a reply.
	ReturnVoid ReturnBehavior = "void"
	// ReturnSync blocks the caller for a reply on the same turn.
	ReturnSync ReturnBehavior = "sync"
	// ReturnAsync defers the reply via a correlated fn_reply. Default.
	ReturnAsync ReturnBehavior = "async"
)

// Arg describes one positional argument of a function. Arguments may be
// declared sparsely: only positions that need special handling (currently,
// positions that are themselves functions) need an entry.
type Arg struct {
	Idx        int  `json:"idx"`
	IsFunction bool `json:"isFunction,omitempty"`
}

// Function describes one callable member: its name, how its return value
// should be delivered, and which argument positions need special marshalling.
type Function struct {
	Name    string         `json:"name"`
	Returns ReturnBehavior `json:"returns,omitempty"`
	Args    []Arg          `json:"args,omitempty"`
}

// EffectiveReturns applies the default return behavior: an unset Returns means async.
func (f Function) EffectiveReturns() ReturnBehavior {
	if f.Returns == "" {
		return ReturnAsync
	}
	return f.Returns
}

// Event describes a named event. On the wire it expands to an add_<Name> /
// remove_<Name> method pair; on the host side those map to
// addEventListener/removeEventListener when no literal method exists.
type Event struct {
	Name string `json:"name"`
}

// AddMethodName is the wire method name for subscribing to this event.
func (e Event) AddMethodName() string { return "add_" + e.Name }

// RemoveMethodName is the wire method name for unsubscribing from this event.
func (e Event) RemoveMethodName() string { return "remove_" + e.Name }

// ProxiedProperty describes a property whose reads/writes round-trip to the
// host via prop_get/prop_set, optionally graded by the getter/setter's own
// return behavior (an async getter lets a prop_set of a promise resolve
// before assignment; see GetterReturns).
type ProxiedProperty struct {
	Name          string         `json:"name"`
	GetterReturns ReturnBehavior `json:"getterReturns,omitempty"`
	SetterReturns ReturnBehavior `json:"setterReturns,omitempty"`
}

// Object is the declarative shape of a plain host object: the plain
// functions it exposes, a snapshot of its readonly properties (captured at
// descriptor emission time), the properties that proxy live reads/writes,
// and the events it can fire.
type Object struct {
	Functions          []Function             `json:"functions,omitempty"`
	ReadonlyProperties map[string]any         `json:"readonlyProperties,omitempty"`
	ProxiedProperties  []ProxiedProperty      `json:"proxiedProperties,omitempty"`
	Events             []Event                `json:"events,omitempty"`
}

// Class bundles an optional constructor descriptor with static and instance
// object descriptors, keyed by a classId that both endpoints agree on.
type Class struct {
	ClassID  string    `json:"classId"`
	Ctor     *Function `json:"ctor,omitempty"`
	Static   Object    `json:"static"`
	Instance Object    `json:"instance"`
}

// ResolveFunction finds the named function descriptor, falling back to a
// bare {name} descriptor (async, no special args) when the object doesn't
// declare one explicitly — the object may still expose the member, just
// without a written-out descriptor for it.
func (o Object) ResolveFunction(name string) Function {
	for _, f := range o.Functions {
		if f.Name == name {
			return f
		}
	}
	return Function{Name: name}
}

// HasFunction reports whether the object descriptor declares the named
// function explicitly.
func (o Object) HasFunction(name string) bool {
	for _, f := range o.Functions {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ResolveArg finds the argument descriptor for the given positional index,
// honouring sparse declarations. The zero value (not a function) is
// returned when the index was never declared.
func (f Function) ResolveArg(idx int) Arg {
	for _, a := range f.Args {
		if a.Idx == idx {
			return a
		}
	}
	return Arg{Idx: idx}
}

// ResolveEvent finds the named event descriptor, or false if the object
// doesn't declare it.
func (o Object) ResolveEvent(name string) (Event, bool) {
	for _, e := range o.Events {
		if e.Name == name {
			return e, true
		}
	}
	return Event{}, false
}

// ResolveEventByMethodName matches method against every declared event's
// add_/remove_ wire method names, returning the event and whether method
// was the add (true) or remove (false) half of the pair.
func (o Object) ResolveEventByMethodName(method string) (ev Event, isAdd, ok bool) {
	for _, e := range o.Events {
		switch method {
		case e.AddMethodName():
			return e, true, true
		case e.RemoveMethodName():
			return e, false, true
		}
	}
	return Event{}, false, false
}

// ResolveProxiedProperty finds the named proxied-property descriptor.
func (o Object) ResolveProxiedProperty(name string) (ProxiedProperty, bool) {
	for _, p := range o.ProxiedProperties {
		if p.Name == name {
			return p, true
		}
	}
	return ProxiedProperty{}, false
}

// Processor is a hook invoked on an Object descriptor just before it is
// shipped to the peer, e.g. to capture readonly snapshot values from the
// live target. The rpc package's HostClass.Processor runs it once per
// class instance, when the instance is registered, not on every emission.
type Processor func(target any, desc *Object)
