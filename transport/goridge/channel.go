// Package goridge adapts a github.com/roadrunner-server/goridge/v3 Relay
// into an rpc.Channel. Goridge gives this transport full-duplex synchronous
// semantics, so both SendSync and SendAsync are wired, with async sends
// just not waiting on Mux.Await.
package goridge

import (
	json "github.com/goccy/go-json"
	"github.com/roadrunner-server/goridge/v3/pkg/relay"
	"go.uber.org/zap"

	rpc "github.com/Sly1024/super-rpc"
	"github.com/Sly1024/super-rpc/transport"
)

const flagPayload byte = 0

// Channel wraps a goridge Relay. New starts its read loop in the
// background; call Close when the session is torn down.
type Channel struct {
	relay relay.Relay
	log   *zap.Logger
	mux   *transport.Mux

	handler func(msg rpc.Message, reply *rpc.Channel, ctx any)
	done    chan struct{}
}

// New wraps rl and starts reading frames from it in the background.
func New(rl relay.Relay, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Channel{relay: rl, log: log, mux: transport.NewMux(), done: make(chan struct{})}
	c.mux.Inbound = c.handleEnvelope
	go c.readLoop()
	return c
}

// Bind returns the rpc.Channel this adapter exposes to a Session.
func (c *Channel) Bind() rpc.Channel {
	return rpc.Channel{
		SendSync:  c.sendSync,
		SendAsync: c.sendAsync,
		Receive:   c.receive,
	}
}

// Close stops the read loop and closes the underlying relay.
func (c *Channel) Close() error {
	close(c.done)
	return c.relay.Close()
}

func (c *Channel) readLoop() {
	for {
		data, _, err := c.relay.Receive()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				c.log.Error("goridge relay receive failed", zap.Error(err))
				return
			}
		}
		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Error("goridge envelope decode failed", zap.Error(err))
			continue
		}
		c.mux.Dispatch(env)
	}
}

func (c *Channel) handleEnvelope(env transport.Envelope) {
	if c.handler == nil {
		return
	}
	var msg rpc.Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		c.log.Error("goridge message decode failed", zap.Error(err))
		return
	}
	reply := &rpc.Channel{
		SendAsync: func(out rpc.Message) {
			c.write(env.Seq, out)
		},
	}
	c.handler(msg, reply, nil)
}

func (c *Channel) write(seq uint64, msg rpc.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(transport.Envelope{Seq: seq, Payload: payload})
	if err != nil {
		return err
	}
	return c.relay.Send(raw, flagPayload)
}

func (c *Channel) sendSync(msg rpc.Message) (rpc.Message, bool) {
	seq := c.mux.NextSeq()
	waiter := c.mux.Await(seq)
	if err := c.write(seq, msg); err != nil {
		c.mux.Cancel(seq)
		c.log.Error("goridge sync send failed", zap.Error(err))
		return rpc.Message{}, false
	}
	env := <-waiter
	var reply rpc.Message
	if err := json.Unmarshal(env.Payload, &reply); err != nil {
		c.log.Error("goridge sync reply decode failed", zap.Error(err))
		return rpc.Message{}, false
	}
	return reply, true
}

func (c *Channel) sendAsync(msg rpc.Message) {
	if err := c.write(0, msg); err != nil {
		c.log.Error("goridge async send failed", zap.Error(err))
	}
}

func (c *Channel) receive(handler func(msg rpc.Message, reply *rpc.Channel, ctx any)) {
	c.handler = handler
}
