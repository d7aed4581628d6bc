package rpc

import (
	"fmt"

	"github.com/Sly1024/super-rpc/descriptor"
	"github.com/roadrunner-server/errors"
)

// handleMessage is the single entry point every bound Channel's Receive
// feeds inbound traffic through (spec.md §4.4 "Incoming"). Messages
// missing the marker are ignored rather than erroring, so a transport
// shared with other protocols doesn't need its own filtering layer.
func (s *Session) handleMessage(msg Message, reply *Channel, ctx any) {
	if msg.RPCMarker != Marker {
		return
	}

	s.mu.Lock()
	prevCtx := s.currentContext
	s.currentContext = ctx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.currentContext = prevCtx
		s.mu.Unlock()
	}()

	switch msg.Action {
	case ActionGetDescriptors:
		objects, functions, classes := s.localDescriptors()
		resp := newMessage(ActionDescriptors)
		resp.Objects, resp.Functions, resp.Classes = objects, functions, classes
		s.send(resp, reply)
	case ActionDescriptors:
		s.applyDescriptors(msg)
		if pc, ok := s.takePending("__descriptors__"); ok {
			pc.resolve(true)
		}
	case ActionFnReply:
		s.dispatchReply(msg)
	case ActionObjDied:
		s.releaseAuto(msg.ObjID)
	case ActionFnCall, ActionCtorCall, ActionMethodCall, ActionPropGet, ActionPropSet:
		s.dispatchCall(msg, reply)
	}
}

// dispatchCall runs a target invocation and, unless the call was void,
// sends its outcome back the way the call arrived: synchronously via
// reply for CallSync, or as a correlated fn_reply for CallAsync.
func (s *Session) dispatchCall(msg Message, reply *Channel) {
	result, err := s.invokeTarget(msg)
	switch msg.CallType {
	case CallVoid:
		return
	case CallSync:
		s.send(s.resultMessage(msg.Action, "", result, err), reply)
	default:
		s.send(s.resultMessage(ActionFnReply, msg.CallID, result, err), reply)
	}
}

func (s *Session) resultMessage(action Action, callID string, result any, err error) Message {
	resp := newMessage(action)
	resp.CallID = callID
	success := err == nil
	resp.Success = &success
	if err != nil {
		resp.Result = err.Error()
	} else {
		resp.Result = s.serialize(result)
	}
	return resp
}

// invokeTarget dispatches one incoming call message to the host registry
// entry it names (spec.md §4.4's action table).
func (s *Session) invokeTarget(msg Message) (any, error) {
	switch msg.Action {
	case ActionFnCall:
		return s.invokeFunction(msg)
	case ActionCtorCall:
		return s.invokeCtor(msg)
	case ActionMethodCall:
		return s.invokeMethod(msg)
	case ActionPropGet:
		return s.invokePropGet(msg)
	case ActionPropSet:
		return s.invokePropSet(msg)
	default:
		return nil, errors.E(errors.Op("invokeTarget"), errors.Str(fmt.Sprintf("unhandled action %q", msg.Action)))
	}
}

func (s *Session) invokeFunction(msg Message) (any, error) {
	op := errors.Op("invokeFunction")
	hf, ok := s.lookupFunction(msg.ObjID)
	if !ok {
		return nil, errors.E(op, ErrUnknownFunction)
	}
	args, err := s.deserializeArgs(msg.Args)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return hf.Fn(args)
}

// invokeCtor constructs a new instance of the class named by msg.ObjID
// (ctor_call carries its target classId in ObjID, never Prop) and wraps
// the raw value it returns as a fresh auto-registered host object.
func (s *Session) invokeCtor(msg Message) (any, error) {
	op := errors.Op("invokeCtor")
	cls, ok := s.lookupClass(msg.ObjID)
	if !ok {
		return nil, errors.E(op, ErrUnknownClass)
	}
	if cls.Ctor == nil {
		return nil, errors.E(op, ErrNoCtor)
	}
	args, err := s.deserializeArgs(msg.Args)
	if err != nil {
		return nil, errors.E(op, err)
	}
	target, err := cls.Ctor(args)
	if err != nil {
		return nil, err
	}
	return s.WrapInstance(msg.ObjID, target)
}

func (s *Session) invokeMethod(msg Message) (any, error) {
	op := errors.Op("invokeMethod")
	ho, ok := s.lookupObject(msg.ObjID)
	if !ok {
		return nil, errors.E(op, ErrUnknownObject)
	}
	args, err := s.deserializeArgs(msg.Args)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if fn, ok := ho.Functions[msg.Prop]; ok {
		return fn(args)
	}
	if ev, isAdd, ok := ho.Desc.ResolveEventByMethodName(msg.Prop); ok {
		return s.bindEventListener(ho, ev.Name, isAdd, args)
	}
	return nil, errors.E(op, ErrNotCallable)
}

func (s *Session) invokePropGet(msg Message) (any, error) {
	op := errors.Op("invokePropGet")
	ho, ok := s.lookupObject(msg.ObjID)
	if !ok {
		return nil, errors.E(op, ErrUnknownObject)
	}
	getter, ok := ho.Getters[msg.Prop]
	if !ok {
		return nil, errors.E(op, ErrNotCallable)
	}
	return getter(nil)
}

// invokePropSet applies spec.md §9's preserved open-question predicate: a
// promise value is awaited and assigned asynchronously only when the
// proxied property's getter is itself async (or the channel has no sync
// transport at all); in every other case the promise object is handed to
// the setter unchanged, exactly as received.
func (s *Session) invokePropSet(msg Message) (any, error) {
	op := errors.Op("invokePropSet")
	ho, ok := s.lookupObject(msg.ObjID)
	if !ok {
		return nil, errors.E(op, ErrUnknownObject)
	}
	setter, ok := ho.Setters[msg.Prop]
	if !ok {
		return nil, errors.E(op, ErrNotCallable)
	}
	args, err := s.deserializeArgs(msg.Args)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if len(args) == 0 {
		return nil, errors.E(op, errors.Str("prop_set missing value argument"))
	}
	val := args[0]

	if p, isPromise := val.(*Promise); isPromise {
		pp, _ := ho.Desc.ResolveProxiedProperty(msg.Prop)
		getterAsync := pp.GetterReturns == "" || pp.GetterReturns == descriptor.ReturnAsync
		if getterAsync || !s.channel().HasSync() {
			p.OnSettle(func(v any, err error) {
				if err == nil {
					_, _ = setter([]any{v})
				}
			})
			return nil, nil
		}
	}
	return setter([]any{val})
}

// bindEventListener implements the add_<event>/remove_<event> method
// pair every declared Event expands to (spec.md §4.1, §4.4). The
// listener's own wire id is the identity add/remove correlate on, since
// Go funcs aren't comparable.
func (s *Session) bindEventListener(ho *HostObject, event string, add bool, args []any) (any, error) {
	op := errors.Op("bindEventListener")
	if len(args) == 0 {
		return nil, errors.E(op, errors.Str("missing listener argument"))
	}
	pf, ok := args[0].(*ProxyFunc)
	if !ok {
		return nil, errors.E(op, ErrNotCallable)
	}
	listenerID := pf.objID()
	if add {
		ho.AddEventListener(event, listenerID, func(fargs []any) (any, error) {
			return pf.Call(fargs)
		})
	} else {
		ho.RemoveEventListener(event, listenerID)
	}
	return nil, nil
}

// dispatchReply settles whichever pending deferred call or promise msg.CallID
// correlates to — an outgoing async call registered by callAsync, or a
// pending promise registered by getOrCreatePendingPromise. Both share the
// same correlation table, so no action-specific branching is needed here.
func (s *Session) dispatchReply(msg Message) {
	pc, ok := s.takePending(msg.CallID)
	if !ok {
		return
	}
	if msg.Success != nil && !*msg.Success {
		pc.reject(newRemoteError(errors.Op("dispatchReply"), fmt.Sprint(msg.Result)))
		return
	}
	val, err := s.deserialize(msg.Result)
	if err != nil {
		pc.reject(err)
		return
	}
	pc.resolve(val)
}
