package rpc

import "github.com/Sly1024/super-rpc/descriptor"

// Marker stamps every message this core emits so a receiver can ignore
// stray traffic sharing the same channel.
const Marker = "srpc"

// Action is the wire discriminator for a Message.
type Action string

const (
	ActionGetDescriptors Action = "get_descriptors"
	ActionDescriptors    Action = "descriptors"
	ActionFnCall         Action = "fn_call"
	ActionCtorCall       Action = "ctor_call"
	ActionMethodCall     Action = "method_call"
	ActionPropGet        Action = "prop_get"
	ActionPropSet        Action = "prop_set"
	ActionFnReply        Action = "fn_reply"
	ActionObjDied        Action = "obj_died"
)

// CallType selects how a call's result crosses back, mirroring
// descriptor.ReturnBehavior but scoped to the wire message itself.
type CallType string

const (
	CallVoid  CallType = "void"
	CallSync  CallType = "sync"
	CallAsync CallType = "async"
)

// Message is every shape of value that crosses a super-rpc channel. Only
// the fields relevant to Action are populated; the rest are zero.
type Message struct {
	RPCMarker string   `json:"rpc_marker"`
	Action    Action   `json:"action"`
	CallType  CallType `json:"callType,omitempty"`
	ObjID     string   `json:"objId,omitempty"`
	Prop      string   `json:"prop,omitempty"`
	Args      []any    `json:"args,omitempty"`
	CallID    string   `json:"callId,omitempty"`

	Success *bool `json:"success,omitempty"`
	Result  any   `json:"result,omitempty"`

	Objects   map[string]descriptor.Object   `json:"objects,omitempty"`
	Functions map[string]descriptor.Function `json:"functions,omitempty"`
	Classes   map[string]descriptor.Class    `json:"classes,omitempty"`
}

func newMessage(action Action) Message {
	return Message{RPCMarker: Marker, Action: action}
}
