package rpc

import "sync"

// Wire tags for the `_rpc_type` discriminator (spec.md §4.3, §6). Plain
// values (scalars, plain maps/slices without the tag) pass through
// untouched; these three tags are the only dynamic-dispatch points.
const (
	rpcTypeObject     = "object"
	rpcTypeFunction   = "function"
	rpcTypeHostObject = "hostObject"
)

// promiseClassID is the reserved classId that marks a wire object as a
// Promise rather than an ordinary class instance (spec.md §3, §4.3).
const promiseClassID = "Promise"

func tagObject(classID, objID string, props map[string]any) map[string]any {
	return map[string]any{"_rpc_type": rpcTypeObject, "classId": classID, "objId": objID, "props": props}
}

func tagFunction(objID string) map[string]any {
	return map[string]any{"_rpc_type": rpcTypeFunction, "objId": objID}
}

func tagHostObject(objID string) map[string]any {
	return map[string]any{"_rpc_type": rpcTypeHostObject, "objId": objID}
}

// wireTag inspects v for the `_rpc_type` discriminator, returning the tag
// name and the backing map if present. Works the same whether v arrived
// as a native Go map[string]any (in-process channel) or was round-tripped
// through a byte-oriented transport's JSON decode.
func wireTag(v any) (string, map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	t, ok := m["_rpc_type"].(string)
	if !ok {
		return "", nil, false
	}
	return t, m, true
}

func wireString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// PromiseState is the settlement state of a Promise.
type PromiseState int

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// Promise is this port's stand-in for the wire Promise pseudo-class
// (spec.md §3, §4.3 "Promise symmetry"). The same type serves both roles:
// a promise created locally with NewPromise, whose Resolve/Reject a host
// function calls directly, and a promise deserialized from the peer,
// whose settlement is driven by an incoming fn_reply instead.
type Promise struct {
	mu       sync.Mutex
	id       string
	state    PromiseState
	value    any
	err      error
	done     chan struct{}
	onSettle []func(value any, err error)
}

// NewPromise creates a pending promise. Settle it with Resolve or Reject.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve fulfills the promise. A no-op if already settled.
func (p *Promise) Resolve(value any) { p.settle(PromiseFulfilled, value, nil) }

// Reject rejects the promise. A no-op if already settled.
func (p *Promise) Reject(err error) { p.settle(PromiseRejected, nil, err) }

func (p *Promise) settle(state PromiseState, value any, err error) {
	p.mu.Lock()
	if p.state != PromisePending {
		p.mu.Unlock()
		return
	}
	p.state, p.value, p.err = state, value, err
	callbacks := p.onSettle
	p.onSettle = nil
	p.mu.Unlock()

	close(p.done)
	for _, cb := range callbacks {
		cb(value, err)
	}
}

// OnSettle registers cb to run when the promise settles, or immediately
// (synchronously) if it already has.
func (p *Promise) OnSettle(cb func(value any, err error)) {
	p.mu.Lock()
	if p.state != PromisePending {
		value, err := p.value, p.err
		p.mu.Unlock()
		cb(value, err)
		return
	}
	p.onSettle = append(p.onSettle, cb)
	p.mu.Unlock()
}

// Await blocks until the promise settles and returns its outcome.
func (p *Promise) Await() (any, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Settled reports whether the promise has already resolved or rejected.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != PromisePending
}
