package rpc

import (
	"fmt"

	"github.com/Sly1024/super-rpc/descriptor"
	"github.com/Sly1024/super-rpc/registry"
	"github.com/roadrunner-server/errors"
)

// resolveMode applies spec.md §4.4's call-mode negotiation: the
// descriptor's declared behavior (async by default), clamped to what the
// action permits (ctor_call/prop_get never void; prop_set never async),
// then downgraded/upgraded to whatever transport the bound channel
// actually has. Void is never remapped by the transport step.
func (s *Session) resolveMode(action Action, declared descriptor.ReturnBehavior) descriptor.ReturnBehavior {
	mode := declared
	if mode == "" {
		mode = descriptor.ReturnAsync
	}
	switch action {
	case ActionCtorCall, ActionPropGet:
		if mode == descriptor.ReturnVoid {
			mode = descriptor.ReturnAsync
		}
	case ActionPropSet:
		if mode == descriptor.ReturnAsync {
			mode = descriptor.ReturnSync
		}
	}

	ch := s.channel()
	switch mode {
	case descriptor.ReturnAsync:
		if !ch.HasAsync() {
			mode = descriptor.ReturnSync
		}
	case descriptor.ReturnSync:
		if !ch.HasSync() {
			mode = descriptor.ReturnAsync
		}
	}
	return mode
}

func callTypeFor(mode descriptor.ReturnBehavior) CallType {
	switch mode {
	case descriptor.ReturnVoid:
		return CallVoid
	case descriptor.ReturnSync:
		return CallSync
	default:
		return CallAsync
	}
}

// --- Outgoing: proxy-side callables (spec.md §4.4 "Outgoing") ----------

// ProxyFunc is the proxy-side stand-in for a remote function, method,
// getter, setter, constructor or event add/remove. A nil objIDFn means
// the objId is fixed (plain function or object method); a non-nil one
// means it must be read from the receiver at call time (an instance
// member synthesized with no fixed objId, spec.md §4.5).
type ProxyFunc struct {
	session  *Session
	id       string
	objIDFn  func() string
	desc     descriptor.Function
	action   Action
	prop     string
	mode     descriptor.ReturnBehavior
	handle   *registry.Handle
}

func (p *ProxyFunc) objID() string {
	if p.objIDFn != nil {
		return p.objIDFn()
	}
	return p.id
}

func (p *ProxyFunc) disposed() bool { return p.handle != nil && p.handle.Disposed() }

// Dispose explicitly disposes this function proxy ahead of GC, firing
// obj_died exactly once (spec.md §8, scenario 8).
func (p *ProxyFunc) Dispose() {
	if p.handle != nil {
		p.handle.Dispose()
	}
}

// Call invokes the proxy, blocking for a result under sync or async
// modes and returning immediately under void.
func (p *ProxyFunc) Call(args []any) (any, error) {
	if p.disposed() {
		return nil, errors.E(errors.Op("ProxyFunc.Call"), ErrDisposed)
	}
	switch p.mode {
	case descriptor.ReturnVoid:
		p.session.emitVoid(p.action, p.objID(), p.prop, args, nil)
		return nil, nil
	case descriptor.ReturnSync:
		return p.session.callSync(p.action, p.objID(), p.prop, args)
	default:
		pr := p.session.callAsync(p.action, p.objID(), p.prop, args)
		return pr.Await()
	}
}

// CallAsync is Call's non-blocking twin: it always returns a Promise,
// pre-settled for void/sync modes.
func (p *ProxyFunc) CallAsync(args []any) *Promise {
	if p.disposed() {
		pr := NewPromise()
		pr.Reject(errors.E(errors.Op("ProxyFunc.CallAsync"), ErrDisposed))
		return pr
	}
	switch p.mode {
	case descriptor.ReturnVoid:
		p.session.emitVoid(p.action, p.objID(), p.prop, args, nil)
		pr := NewPromise()
		pr.Resolve(nil)
		return pr
	case descriptor.ReturnSync:
		res, err := p.session.callSync(p.action, p.objID(), p.prop, args)
		pr := NewPromise()
		if err != nil {
			pr.Reject(err)
		} else {
			pr.Resolve(res)
		}
		return pr
	default:
		return p.session.callAsync(p.action, p.objID(), p.prop, args)
	}
}

// ProxyObject is the proxy-side stand-in for a remote plain object or
// class instance. Its members are resolved by name at call time against
// the descriptor captured when the proxy was materialized, mirroring the
// original's dynamic target[prop] dispatch (spec.md §9).
type ProxyObject struct {
	session *Session
	id      string
	classID string
	desc    descriptor.Object
	props   map[string]any
	handle  *registry.Handle
}

// ID is this proxy's wire identity on the peer.
func (o *ProxyObject) ID() string { return o.id }

// Readonly returns the readonly-property snapshot value captured when
// this proxy was first materialized (spec.md §4.1). Snapshot values never
// round-trip to the host again, and while this proxy is alive, later
// lookups of the same id return it with the same snapshot.
func (o *ProxyObject) Readonly(name string) (any, bool) {
	v, ok := o.props[name]
	return v, ok
}

// Dispose explicitly disposes this object proxy ahead of GC.
func (o *ProxyObject) Dispose() {
	if o.handle != nil {
		o.handle.Dispose()
	}
}

func (o *ProxyObject) disposed() bool { return o.handle != nil && o.handle.Disposed() }

func (o *ProxyObject) fnProxy(action Action, prop string, fd descriptor.Function) *ProxyFunc {
	mode := o.session.resolveMode(action, fd.EffectiveReturns())
	return &ProxyFunc{session: o.session, id: o.id, desc: fd, action: action, prop: prop, mode: mode}
}

// Call invokes method on the remote object.
func (o *ProxyObject) Call(method string, args []any) (any, error) {
	if o.disposed() {
		return nil, errors.E(errors.Op("ProxyObject.Call"), ErrDisposed)
	}
	fd := o.desc.ResolveFunction(method)
	return o.fnProxy(ActionMethodCall, method, fd).Call(args)
}

// Get reads a proxied property.
func (o *ProxyObject) Get(prop string) (any, error) {
	if o.disposed() {
		return nil, errors.E(errors.Op("ProxyObject.Get"), ErrDisposed)
	}
	pp, _ := o.desc.ResolveProxiedProperty(prop)
	fd := descriptor.Function{Name: prop, Returns: pp.GetterReturns}
	return o.fnProxy(ActionPropGet, prop, fd).Call(nil)
}

// Set writes a proxied property.
func (o *ProxyObject) Set(prop string, value any) error {
	if o.disposed() {
		return errors.E(errors.Op("ProxyObject.Set"), ErrDisposed)
	}
	pp, _ := o.desc.ResolveProxiedProperty(prop)
	fd := descriptor.Function{Name: prop, Returns: pp.SetterReturns}
	_, err := o.fnProxy(ActionPropSet, prop, fd).Call([]any{value})
	return err
}

// AddEventListener maps to the remote add_<event> method (or, on the
// host side, addEventListener) per spec.md §4.1/§4.4. listener is wrapped
// in a freshly-id'd *HostFunction, since a bare HostFunc isn't comparable
// and would otherwise mint a new wire id every time it's serialized — the
// returned *HostFunction is what RemoveEventListener must be passed back
// to undo this exact registration (mirroring how WrapInstance keys
// instance identity off a stable id rather than the Go value itself).
func (o *ProxyObject) AddEventListener(event string, listener HostFunc) (*HostFunction, error) {
	ev, _ := o.desc.ResolveEvent(event)
	hf := &HostFunction{ID: o.session.idGen.NewID(), Fn: listener}
	_, err := o.Call(ev.AddMethodName(), []any{hf})
	return hf, err
}

// RemoveEventListener undoes AddEventListener, keyed by the same
// *HostFunction AddEventListener returned.
func (o *ProxyObject) RemoveEventListener(event string, listener *HostFunction) error {
	ev, _ := o.desc.ResolveEvent(event)
	_, err := o.Call(ev.RemoveMethodName(), []any{listener})
	return err
}

// ProxyClass is the synthesized proxy constructor for a remote class:
// Construct spawns an instance (sync ctor_call proxy, or an error if the
// class exposes no ctor); Static exposes the class's static members the
// same way a ProxyObject exposes instance members (spec.md §4.5).
type ProxyClass struct {
	session *Session
	classID string
	desc    descriptor.Class
	Static  *ProxyObject
}

// Construct invokes the remote constructor and returns a proxy for the
// new instance.
func (c *ProxyClass) Construct(args []any) (*ProxyObject, error) {
	if c.desc.Ctor == nil {
		return nil, errors.E(errors.Op("ProxyClass.Construct"), ErrNoCtor)
	}
	mode := c.session.resolveMode(ActionCtorCall, descriptor.ReturnSync)
	pf := &ProxyFunc{session: c.session, id: c.classID, desc: *c.desc.Ctor, action: ActionCtorCall, mode: mode}
	result, err := pf.Call(args)
	if err != nil {
		return nil, err
	}
	obj, ok := result.(*ProxyObject)
	if !ok {
		return nil, errors.E(errors.Op("ProxyClass.Construct"), errors.Str(fmt.Sprintf("unexpected constructor result %T", result)))
	}
	return obj, nil
}

// --- Lookup APIs (spec.md §4.5) ----------------------------------------

// GetProxyObject returns the proxy for the given remote object id,
// materializing it from the cached remote descriptor on first use.
func (s *Session) GetProxyObject(id string) (*ProxyObject, error) {
	if v, ok := s.proxies.Get(id); ok {
		if po, ok := v.(*ProxyObject); ok {
			return po, nil
		}
	}
	s.mu.RLock()
	desc, ok := s.remoteObjects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.E(errors.Op("GetProxyObject"), ErrUnknownObject)
	}
	return s.materializeProxyObject(id, "", desc), nil
}

// GetProxyFunction returns the proxy for the given remote function id.
func (s *Session) GetProxyFunction(id string) (*ProxyFunc, error) {
	if v, ok := s.proxies.Get(id); ok {
		if pf, ok := v.(*ProxyFunc); ok {
			return pf, nil
		}
	}
	s.mu.RLock()
	desc, ok := s.remoteFunctions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.E(errors.Op("GetProxyFunction"), ErrUnknownFunction)
	}
	return s.materializeProxyFunction(id, desc), nil
}

// GetProxyClass returns the synthesized constructor/static-member proxy
// for the given remote classId.
func (s *Session) GetProxyClass(classID string) (*ProxyClass, error) {
	s.mu.Lock()
	if pc, ok := s.classCtors[classID]; ok {
		s.mu.Unlock()
		return pc, nil
	}
	desc, ok := s.remoteClasses[classID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.E(errors.Op("GetProxyClass"), ErrUnknownClass)
	}

	pc := &ProxyClass{session: s, classID: classID, desc: desc}
	pc.Static = s.materializeProxyObject(classID, classID, desc.Static)

	s.mu.Lock()
	s.classCtors[classID] = pc
	s.mu.Unlock()
	return pc, nil
}

func (s *Session) materializeProxyObject(id, classID string, desc descriptor.Object) *ProxyObject {
	return s.materializeProxyObjectWithProps(id, classID, desc, nil)
}

func (s *Session) materializeProxyObjectWithProps(id, classID string, desc descriptor.Object, props map[string]any) *ProxyObject {
	po := &ProxyObject{session: s, id: id, classID: classID, desc: desc, props: props}
	if id == "" {
		// No wire identity to track, so not weakly registered. (A
		// ProxyClass's static member surface is materialized under its
		// classId and is registered like any other object proxy.)
		return po
	}
	po.handle = s.proxies.Register(id, po, func() { s.emitObjDied(id) })
	return po
}

func (s *Session) materializeProxyFunction(id string, desc descriptor.Function) *ProxyFunc {
	mode := s.resolveMode(ActionFnCall, desc.EffectiveReturns())
	pf := &ProxyFunc{session: s, id: id, desc: desc, action: ActionFnCall, mode: mode}
	pf.handle = s.proxies.Register(id, pf, func() { s.emitObjDied(id) })
	return pf
}

// --- Outgoing wire emission ---------------------------------------------

func (s *Session) emitVoid(action Action, objID, prop string, args []any, reply *Channel) {
	msg := newMessage(action)
	msg.CallType = CallVoid
	msg.ObjID, msg.Prop = objID, prop
	msg.Args = s.serializeArgs(args)
	s.send(msg, reply)
}

func (s *Session) callSync(action Action, objID, prop string, args []any) (any, error) {
	op := errors.Op("Session.callSync")
	ch := s.channel()
	if !ch.HasSync() {
		return nil, errors.E(op, ErrNoTransport)
	}
	msg := newMessage(action)
	msg.CallType = CallSync
	msg.ObjID, msg.Prop = objID, prop
	msg.Args = s.serializeArgs(args)

	reply, ok := ch.SendSync(msg)
	if !ok {
		return nil, errors.E(op, ErrNoSyncReply)
	}
	if reply.RPCMarker != Marker {
		return nil, errors.E(op, ErrMissingMarker)
	}
	if reply.Success == nil {
		return nil, errors.E(op, ErrNoSyncReply)
	}
	if !*reply.Success {
		return nil, newRemoteError(op, fmt.Sprint(reply.Result))
	}
	return s.deserialize(reply.Result)
}

func (s *Session) callAsync(action Action, objID, prop string, args []any) *Promise {
	pr := NewPromise()
	callID := s.nextCallID()
	s.registerPending(callID, func(v any) { pr.Resolve(v) }, pr.Reject)

	msg := newMessage(action)
	msg.CallType = CallAsync
	msg.ObjID, msg.Prop, msg.CallID = objID, prop, callID
	msg.Args = s.serializeArgs(args)
	s.send(msg, nil)
	return pr
}

func (s *Session) emitObjDied(id string) {
	msg := newMessage(ActionObjDied)
	msg.ObjID = id
	ch := s.channel()
	// spec.md §5: obj_died always rides the async transport regardless of
	// the call that produced the proxy, falling back to sync only when
	// async is unavailable.
	if ch.HasAsync() {
		ch.SendAsync(msg)
		return
	}
	if ch.HasSync() {
		ch.SendSync(msg)
	}
}

func (s *Session) serializeArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = s.serialize(a)
	}
	return out
}
