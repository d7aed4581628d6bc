package rpc

import "testing"

// linkedChannels returns two Channel values, each plumbed into the other's
// Receive handler synchronously: SendSync on one side calls straight into
// the other's handler and captures whatever it sends back as the reply,
// and SendAsync does the same without waiting on a result. This keeps
// scenario tests single-threaded and deterministic while still exercising
// real sync and real async call-mode paths (both transports are present,
// so resolveMode never has to downgrade).
func linkedChannels(t *testing.T) (Channel, Channel) {
	t.Helper()

	var aHandler, bHandler func(msg Message, reply *Channel, ctx any)
	var a, b Channel

	a = Channel{
		SendSync: func(msg Message) (Message, bool) {
			if bHandler == nil {
				return Message{}, false
			}
			var resp Message
			got := false
			replyCh := Channel{SendAsync: func(m Message) { resp, got = m, true }}
			bHandler(msg, &replyCh, nil)
			return resp, got
		},
		SendAsync: func(msg Message) {
			if bHandler != nil {
				bHandler(msg, &b, nil)
			}
		},
		Receive: func(h func(msg Message, reply *Channel, ctx any)) { aHandler = h },
	}
	b = Channel{
		SendSync: func(msg Message) (Message, bool) {
			if aHandler == nil {
				return Message{}, false
			}
			var resp Message
			got := false
			replyCh := Channel{SendAsync: func(m Message) { resp, got = m, true }}
			aHandler(msg, &replyCh, nil)
			return resp, got
		},
		SendAsync: func(msg Message) {
			if aHandler != nil {
				aHandler(msg, &a, nil)
			}
		},
		Receive: func(h func(msg Message, reply *Channel, ctx any)) { bHandler = h },
	}
	return a, b
}

// newLinkedSessions builds a host/client Session pair bound to
// linkedChannels, with the client's descriptor cache already pulled.
func newLinkedSessions(t *testing.T) (host, client *Session) {
	t.Helper()
	a, b := linkedChannels(t)

	host = NewSession(Options{})
	host.BindChannel(a)

	client = NewSession(Options{})
	client.BindChannel(b)

	if _, err := client.PullDescriptors().Await(); err != nil {
		t.Fatalf("PullDescriptors: %v", err)
	}
	return host, client
}
