// Package websocket adapts a github.com/gorilla/websocket connection into
// an rpc.Channel, grounded on the same gorilla/websocket + goccy/go-json
// pairing the wider example pack reaches for on its browser-facing
// transports. A websocket connection is full-duplex but frame-oriented
// rather than request/response, so SendSync is built on top of the same
// seq-correlated Mux the goridge adapter uses.
package websocket

import (
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	rpc "github.com/Sly1024/super-rpc"
	"github.com/Sly1024/super-rpc/transport"
)

// Channel wraps a *websocket.Conn. New starts its read loop in the
// background; call Close when the session is torn down.
type Channel struct {
	conn *websocket.Conn
	log  *zap.Logger
	mux  *transport.Mux

	writeMu chan struct{}
	handler func(msg rpc.Message, reply *rpc.Channel, ctx any)
	done    chan struct{}
}

// New wraps conn and starts reading frames from it in the background.
func New(conn *websocket.Conn, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Channel{
		conn:    conn,
		log:     log,
		mux:     transport.NewMux(),
		writeMu: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.writeMu <- struct{}{}
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

// Close stops the read loop and closes the underlying connection.
func (c *Channel) Close() error {
	close(c.done)
	return c.conn.Close()
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				c.log.Error("websocket read failed", zap.Error(err))
				return
			}
		}
		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Error("websocket envelope decode failed", zap.Error(err))
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
		c.log.Error("websocket message decode failed", zap.Error(err))
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
	<-c.writeMu
	defer func() { c.writeMu <- struct{}{} }()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Channel) sendSync(msg rpc.Message) (rpc.Message, bool) {
	seq := c.mux.NextSeq()
	waiter := c.mux.Await(seq)
	if err := c.write(seq, msg); err != nil {
		c.mux.Cancel(seq)
		c.log.Error("websocket sync send failed", zap.Error(err))
		return rpc.Message{}, false
	}
	env := <-waiter
	var reply rpc.Message
	if err := json.Unmarshal(env.Payload, &reply); err != nil {
		c.log.Error("websocket sync reply decode failed", zap.Error(err))
		return rpc.Message{}, false
	}
	return reply, true
}

func (c *Channel) sendAsync(msg rpc.Message) {
	if err := c.write(0, msg); err != nil {
		c.log.Error("websocket async send failed", zap.Error(err))
	}
}

func (c *Channel) receive(handler func(msg rpc.Message, reply *rpc.Channel, ctx any)) {
	c.handler = handler
}
