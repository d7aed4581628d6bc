package rpc

import (
	"fmt"

	"github.com/Sly1024/super-rpc/descriptor"
	"github.com/roadrunner-server/errors"
)

// serialize walks v recursively, folding it into the tagged wire forms of
// spec.md §4.3: scalars pass through, plain maps/slices are walked
// key-by-key, functions/promises/class-instances/proxy-round-trips get
// their `_rpc_type` tag.
func (s *Session) serialize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case *Promise:
		return s.serializePromise(val)
	case *ProxyFunc:
		return tagHostObject(val.objID())
	case *ProxyObject:
		return tagHostObject(val.id)
	case *ProxyClass:
		return tagHostObject(val.classID)
	case HostFunc:
		return tagFunction(s.registerHostFunc(val))
	case *HostFunction:
		s.mu.Lock()
		s.functions[val.ID] = val
		s.mu.Unlock()
		return tagFunction(val.ID)
	case *HostObject:
		return s.serializeHostObject(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			out[k] = s.serialize(v2)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v2 := range val {
			out[i] = s.serialize(v2)
		}
		return out
	default:
		return v
	}
}

// serializeHostObject tags a freshly (or already) registered host entry
// for the wire, carrying its readonly-property snapshot (captured once,
// at registration time, per spec.md §4.1 "Readonly properties") alongside
// the classId/objId identity pair.
func (s *Session) serializeHostObject(ho *HostObject) map[string]any {
	s.mu.Lock()
	s.objects[ho.ID] = ho
	s.mu.Unlock()

	var props map[string]any
	if len(ho.Desc.ReadonlyProperties) > 0 {
		props = make(map[string]any, len(ho.Desc.ReadonlyProperties))
		for k, v := range ho.Desc.ReadonlyProperties {
			props[k] = s.serialize(v)
		}
	}
	return tagObject(ho.ClassID, ho.ID, props)
}

// registerHostFunc auto-registers a bare Go function value crossing the
// wire for the first time, generating an id via the session's
// IDGenerator. Unlike WrapInstance's identity-keyed idempotency, raw Go
// funcs aren't comparable, so each bare HostFunc gets its own id every
// time it's serialized; callers that need a stable id across repeated
// serializations (ProxyObject.AddEventListener, say) wrap it in a
// *HostFunction themselves instead.
func (s *Session) registerHostFunc(fn HostFunc) string {
	id := s.idGen.NewID()
	s.mu.Lock()
	s.functions[id] = &HostFunction{ID: id, Fn: fn}
	s.mu.Unlock()
	return id
}

// serializePromise tags a Promise for the wire. An already-settled
// promise (e.g. one built with Resolve/Reject called before it was ever
// passed across the boundary, spec.md §8 scenario 7) carries its outcome
// inline in the same tag instead of registering for a future fn_reply:
// registering one here and settling it inline in the same call stack (the
// common case when a host handler resolves a promise synchronously before
// handing it to a callback) would race the fn_reply against the very
// message that introduces the promise's id to the peer.
func (s *Session) serializePromise(p *Promise) map[string]any {
	if !p.Settled() {
		id := s.registerPromiseHost(p)
		return tagObject(promiseClassID, id, nil)
	}
	value, err := p.Await()
	success := err == nil
	var result any
	if success {
		result = s.serialize(value)
	} else {
		result = err.Error()
	}
	return map[string]any{
		"_rpc_type": rpcTypeObject,
		"classId":   promiseClassID,
		"objId":     s.idGen.NewID(),
		"settled":   true,
		"success":   success,
		"result":    result,
	}
}

// registerPromiseHost gives a locally-created Promise a wire id (tagged
// with the reserved Promise classId by the caller) the first time it
// crosses the wire (spec.md §4.3 "Promises"), wiring its settlement to an
// async fn_reply keyed by that id (spec.md §4.3 "Promise symmetry"). The
// promise is not entered in the host object table.
func (s *Session) registerPromiseHost(p *Promise) string {
	s.mu.Lock()
	if p.id != "" {
		s.mu.Unlock()
		return p.id
	}
	id := s.idGen.NewID()
	p.id = id
	s.mu.Unlock()

	p.OnSettle(func(value any, err error) {
		msg := newMessage(ActionFnReply)
		msg.CallType = CallAsync
		msg.CallID = id
		success := err == nil
		msg.Success = &success
		if err != nil {
			msg.Result = err.Error()
		} else {
			msg.Result = s.serialize(value)
		}
		s.send(msg, nil)
	})
	return id
}

// deserialize is the inverse of serialize, dispatching on `_rpc_type`.
func (s *Session) deserialize(v any) (any, error) {
	tag, m, ok := wireTag(v)
	if !ok {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any, len(val))
			for k, v2 := range val {
				dv, err := s.deserialize(v2)
				if err != nil {
					return nil, err
				}
				out[k] = dv
			}
			return out, nil
		case []any:
			out := make([]any, len(val))
			for i, v2 := range val {
				dv, err := s.deserialize(v2)
				if err != nil {
					return nil, err
				}
				out[i] = dv
			}
			return out, nil
		default:
			return v, nil
		}
	}

	objID := wireString(m, "objId")
	switch tag {
	case rpcTypeFunction:
		return s.getOrCreateProxyFunction(objID, descriptor.Function{})
	case rpcTypeHostObject:
		return s.resolveHostObjectTag(objID)
	case rpcTypeObject:
		classID := wireString(m, "classId")
		if classID == promiseClassID {
			if settled, _ := m["settled"].(bool); settled {
				return s.deserializeSettledPromise(m)
			}
			return s.getOrCreatePendingPromise(objID), nil
		}
		if v, ok := s.proxies.Get(objID); ok {
			if po, ok := v.(*ProxyObject); ok {
				return po, nil
			}
		}

		desc := descriptor.Object{}
		found := false
		s.mu.RLock()
		if classID != "" {
			if cd, ok := s.remoteClasses[classID]; ok {
				desc, found = cd.Instance, true
			}
		} else if od, ok := s.remoteObjects[objID]; ok {
			desc, found = od, true
		}
		s.mu.RUnlock()
		if !found {
			return nil, errors.E(errors.Op("deserialize"), ErrMissingDescriptor)
		}

		var props map[string]any
		if raw, ok := m["props"].(map[string]any); ok {
			props = make(map[string]any, len(raw))
			for k, v := range raw {
				dv, err := s.deserialize(v)
				if err != nil {
					return nil, err
				}
				props[k] = dv
			}
		}
		return s.getOrCreateProxyObject(objID, classID, desc, props), nil
	default:
		return v, nil
	}
}

func (s *Session) deserializeArgs(args []any) ([]any, error) {
	if args == nil {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		dv, err := s.deserialize(a)
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}

func (s *Session) resolveHostObjectTag(id string) (any, error) {
	s.mu.RLock()
	ho, objOK := s.objects[id]
	hf, fnOK := s.functions[id]
	s.mu.RUnlock()
	if objOK {
		return ho.Target, nil
	}
	if fnOK {
		return hf, nil
	}
	return nil, errors.E(errors.Op("resolveHostObjectTag"), ErrUnknownObject)
}

func (s *Session) getOrCreateProxyFunction(id string, desc descriptor.Function) (*ProxyFunc, error) {
	if v, ok := s.proxies.Get(id); ok {
		if pf, ok := v.(*ProxyFunc); ok {
			return pf, nil
		}
	}
	return s.materializeProxyFunction(id, desc), nil
}

func (s *Session) getOrCreateProxyObject(id, classID string, desc descriptor.Object, props map[string]any) *ProxyObject {
	if v, ok := s.proxies.Get(id); ok {
		if po, ok := v.(*ProxyObject); ok {
			return po
		}
	}
	return s.materializeProxyObjectWithProps(id, classID, desc, props)
}

func (s *Session) deserializeSettledPromise(m map[string]any) (*Promise, error) {
	p := NewPromise()
	success, _ := m["success"].(bool)
	if success {
		v, err := s.deserialize(m["result"])
		if err != nil {
			return nil, err
		}
		p.Resolve(v)
	} else {
		p.Reject(newRemoteError(errors.Op("deserializeSettledPromise"), fmt.Sprint(m["result"])))
	}
	return p, nil
}

func (s *Session) getOrCreatePendingPromise(id string) *Promise {
	if v, ok := s.proxies.Get(id); ok {
		if p, ok := v.(*Promise); ok {
			return p
		}
	}
	p := NewPromise()
	p.id = id
	s.registerPending(id, func(v any) { p.Resolve(v) }, p.Reject)
	s.proxies.Register(id, p, func() { s.emitObjDied(id) })
	return p
}

func (s *Session) lookupObject(id string) (*HostObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ho, ok := s.objects[id]
	return ho, ok
}

func (s *Session) lookupFunction(id string) (*HostFunction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hf, ok := s.functions[id]
	return hf, ok
}

func (s *Session) lookupClass(id string) (*HostClass, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[id]
	return c, ok
}
