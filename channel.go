package rpc

// Channel is the opaque message transport two endpoints are bound by.
// Spec.md §6: any subset of the three functions may be nil, but at least
// one send variant is required to originate calls, and Receive is
// required to accept them. The Session Controller degrades call modes
// automatically around whatever subset is present (§4.4, §5).
type Channel struct {
	// SendSync emits msg and blocks for the peer's reply, or returns
	// (zero, false) if no reply could be obtained. Nil when this channel
	// has no synchronous transport.
	SendSync func(msg Message) (Message, bool)

	// SendAsync emits msg without waiting for a reply.
	SendAsync func(msg Message)

	// Receive installs handler as the callback for every inbound
	// message. Called once, at bind time.
	Receive func(handler func(msg Message, reply *Channel, ctx any))
}

// HasSync reports whether this channel can block for a synchronous reply.
func (c Channel) HasSync() bool { return c.SendSync != nil }

// HasAsync reports whether this channel can send without blocking.
func (c Channel) HasAsync() bool { return c.SendAsync != nil }

// send emits msg on SendAsync when present, otherwise on SendSync (whose
// reply is discarded). Synchronous calls that need the reply use SendSync
// directly instead of send.
func (c Channel) send(msg Message) {
	if c.SendAsync != nil {
		c.SendAsync(msg)
		return
	}
	if c.SendSync != nil {
		c.SendSync(msg)
	}
}
