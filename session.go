// Package rpc implements the symmetric, bidirectional object-graph RPC
// core: two endpoints connected by an opaque Channel expose live objects,
// functions and classes to each other as transparent proxies. See
// SPEC_FULL.md for the full design; this file is the Session Controller
// (spec.md §4.5), the component that owns the channel binding, the
// descriptor exchange, the host registries, and correlation of deferred
// replies.
package rpc

import (
	"strconv"
	"sync"

	"github.com/Sly1024/super-rpc/descriptor"
	"github.com/Sly1024/super-rpc/registry"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// Options configures a Session. All fields are optional.
type Options struct {
	// IDGenerator mints ids for entities auto-registered during
	// serialization. Defaults to DefaultIDGenerator (google/uuid).
	IDGenerator IDGenerator
	// Logger receives structured diagnostics.
	// Defaults to zap.NewNop().
	Logger *zap.Logger
}

type pendingCall struct {
	resolve func(any)
	reject  func(error)
}

// Session is one endpoint of a super-rpc connection: its own host
// registries, its own cache of the peer's descriptors, its own weak
// proxy registry, and the channel binding that threads messages between
// them (spec.md §3 "Registries", §4.5).
type Session struct {
	mu  sync.RWMutex
	ch  Channel
	log *zap.Logger

	idGen IDGenerator

	objects   map[string]*HostObject
	functions map[string]*HostFunction
	classes   map[string]*HostClass

	// classStaticIDs marks which s.objects entries are a class's
	// synthesized static-member surface, so localDescriptors doesn't
	// double-publish them under the `objects` table too.
	classStaticIDs map[string]bool

	autoIDs     map[any]string    // target identity -> assigned id, keeps auto-registration idempotent
	autoTargets map[string]any    // reverse of autoIDs, for obj_died cleanup
	autoObjects map[string]bool   // ids that were auto-registered (WrapInstance), vs explicitly RegisterHostObject'd

	proxies    *registry.Registry      // weak: id -> *ProxyObject / *ProxyFunc / *Promise
	classCtors map[string]*ProxyClass  // strong: classId -> synthesized constructor

	remoteObjects   map[string]descriptor.Object
	remoteFunctions map[string]descriptor.Function
	remoteClasses   map[string]descriptor.Class
	haveDescriptors bool

	callSeq uint64
	pending map[string]*pendingCall

	currentContext any
}

// NewSession creates an unbound endpoint. Call BindChannel to attach it
// to a transport.
func NewSession(opts Options) *Session {
	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = DefaultIDGenerator
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		log:             log,
		idGen:           idGen,
		objects:         make(map[string]*HostObject),
		functions:       make(map[string]*HostFunction),
		classes:         make(map[string]*HostClass),
		classStaticIDs:  make(map[string]bool),
		autoIDs:         make(map[any]string),
		autoTargets:     make(map[string]any),
		autoObjects:     make(map[string]bool),
		proxies:         registry.New(),
		classCtors:      make(map[string]*ProxyClass),
		remoteObjects:   make(map[string]descriptor.Object),
		remoteFunctions: make(map[string]descriptor.Function),
		remoteClasses:   make(map[string]descriptor.Class),
		pending:         make(map[string]*pendingCall),
	}
}

// BindChannel attaches ch as this session's transport. If ch.Receive is
// set, installs the message router as its handler — from then on every
// inbound message addressed with the Marker is dispatched to the Call
// Engine or settles a pending deferred call.
func (s *Session) BindChannel(ch Channel) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()

	if ch.Receive != nil {
		ch.Receive(s.handleMessage)
	}
}

// CurrentContext returns the raw transport context/event active while a
// host function is executing, mirroring the original's currentContext
// slot (spec.md §4.5). Only meaningful when called synchronously from
// within a host function.
func (s *Session) CurrentContext() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentContext
}

// --- Host registration -----------------------------------------------

// RegisterHostObject exposes obj under id. Overwrites any previous entry
// for the same id.
func (s *Session) RegisterHostObject(id string, obj *HostObject) {
	obj.ID = id
	s.mu.Lock()
	s.objects[id] = obj
	s.mu.Unlock()
}

// RegisterHostFunction exposes fn under id.
func (s *Session) RegisterHostFunction(id string, fn *HostFunction) {
	fn.ID = id
	s.mu.Lock()
	s.functions[id] = fn
	s.mu.Unlock()
}

// RegisterHostClass exposes cls under its ClassID. Its static members are
// additionally reachable as an ordinary host object keyed by the same
// classId, so static method_call/prop_get/prop_set reuse the same
// dispatch path as instance members (spec.md §4.1, "Class descriptor").
func (s *Session) RegisterHostClass(cls *HostClass) {
	s.mu.Lock()
	s.classes[cls.ClassID] = cls
	s.classStaticIDs[cls.ClassID] = true
	static := NewHostObject(cls.ClassID, nil, cls.Desc.Static)
	static.Functions, static.Getters, static.Setters = cls.StaticFunctions, cls.StaticGetters, cls.StaticSetters
	s.objects[cls.ClassID] = static
	s.mu.Unlock()
}

// DeleteHostObject performs the "explicit delete" takedown path from
// spec.md §3 ("Lifecycles"). Does not notify the peer; that is the
// caller's protocol to run on top, if needed.
func (s *Session) DeleteHostObject(id string) {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
}

// WrapInstance registers target as a live instance of the given
// registered class, idempotently: calling it again with the same target
// returns the same id and HostObject (spec.md §3, "A host target is
// stamped with its own id so re-serializations are idempotent"). This is
// the Go-idiomatic stand-in for the original's implicit "is this object
// an instance of a registered class" dynamic check — host code calls it
// explicitly when constructing or returning an instance.
func (s *Session) WrapInstance(classID string, target any) (*HostObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.autoIDs[target]; ok {
		if ho, ok := s.objects[id]; ok {
			return ho, nil
		}
	}

	cls, ok := s.classes[classID]
	if !ok {
		return nil, errors.E(errors.Op("WrapInstance"), ErrUnknownClass)
	}

	id := s.idGen.NewID()
	s.autoIDs[target] = id
	s.autoTargets[id] = target
	s.autoObjects[id] = true

	functions, getters, setters := map[string]HostFunc{}, map[string]HostFunc{}, map[string]HostFunc{}
	if cls.BindInstance != nil {
		functions, getters, setters = cls.BindInstance(target)
	}

	desc := cls.Desc.Instance
	if cls.Processor != nil {
		desc.ReadonlyProperties = cloneReadonly(desc.ReadonlyProperties)
		cls.Processor(target, &desc)
	}

	ho := NewHostObject(id, target, desc)
	ho.ClassID = classID
	ho.Functions, ho.Getters, ho.Setters = functions, getters, setters
	s.objects[id] = ho
	return ho, nil
}

// releaseAuto drops an auto-registered (WrapInstance-created) host object
// once its last remote proxy has died, so the entry doesn't outlive every
// reference to it. Explicitly registered objects/functions are left
// alone: obj_died only reports that one proxy relationship ended, not
// that the exported entry should disappear.
func (s *Session) releaseAuto(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.autoObjects[id] {
		return
	}
	delete(s.objects, id)
	delete(s.autoObjects, id)
	if target, ok := s.autoTargets[id]; ok {
		delete(s.autoIDs, target)
		delete(s.autoTargets, id)
	}
}

func cloneReadonly(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- Descriptor exchange (spec.md §4.5) --------------------------------

// localDescriptors builds the wire descriptor tables for everything
// currently registered, copying each entry's stored descriptor as is.
// No Processor runs here; per-instance readonly values are captured once,
// in WrapInstance.
func (s *Session) localDescriptors() (map[string]descriptor.Object, map[string]descriptor.Function, map[string]descriptor.Class) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := make(map[string]descriptor.Object, len(s.objects))
	for id, o := range s.objects {
		if s.classStaticIDs[id] {
			continue
		}
		objects[id] = o.Desc
	}
	functions := make(map[string]descriptor.Function, len(s.functions))
	for id, f := range s.functions {
		functions[id] = f.Desc
	}
	classes := make(map[string]descriptor.Class, len(s.classes))
	for id, c := range s.classes {
		classes[id] = c.Desc
	}
	return objects, functions, classes
}

// PushDescriptors proactively sends this endpoint's descriptor tables to
// the peer (the "push" half of spec.md §4.5's pull/push support).
func (s *Session) PushDescriptors() {
	objects, functions, classes := s.localDescriptors()
	msg := newMessage(ActionDescriptors)
	msg.Objects, msg.Functions, msg.Classes = objects, functions, classes
	s.send(msg, nil)
}

// PullDescriptors requests the peer's descriptor tables. It prefers
// synchronous transport, in which case the returned Promise is already
// settled (resolved with true, or rejected); with only async transport
// the Promise resolves with true once the `descriptors` reply lands
// (spec.md §4.5).
func (s *Session) PullDescriptors() *Promise {
	p := NewPromise()
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()

	req := newMessage(ActionGetDescriptors)
	if ch.HasSync() {
		reply, ok := ch.SendSync(req)
		if !ok || reply.RPCMarker != Marker {
			p.Reject(ErrNoSyncReply)
			return p
		}
		s.applyDescriptors(reply)
		p.Resolve(true)
		return p
	}

	s.mu.Lock()
	s.pending["__descriptors__"] = &pendingCall{
		resolve: func(any) { p.Resolve(true) },
		reject:  p.Reject,
	}
	s.mu.Unlock()
	ch.send(req)
	return p
}

func (s *Session) applyDescriptors(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Objects != nil {
		s.remoteObjects = msg.Objects
	}
	if msg.Functions != nil {
		s.remoteFunctions = msg.Functions
	}
	if msg.Classes != nil {
		s.remoteClasses = msg.Classes
	}
	s.haveDescriptors = true
}

// --- Correlation --------------------------------------------------------

func (s *Session) nextCallID() string {
	s.mu.Lock()
	s.callSeq++
	id := strconv.FormatUint(s.callSeq, 10)
	s.mu.Unlock()
	return id
}

func (s *Session) registerPending(id string, resolve func(any), reject func(error)) {
	s.mu.Lock()
	s.pending[id] = &pendingCall{resolve: resolve, reject: reject}
	s.mu.Unlock()
}

func (s *Session) takePending(id string) (*pendingCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return pc, ok
}

// send addresses msg to the reply channel active for the message being
// handled, if any, otherwise the default bound channel (spec.md §4.5,
// "Reply-channel propagation").
func (s *Session) send(msg Message, reply *Channel) {
	msg.RPCMarker = Marker
	if reply != nil {
		reply.send(msg)
		return
	}
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()
	ch.send(msg)
}

func (s *Session) channel() Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ch
}
