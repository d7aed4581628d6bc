// Package transport holds reference Channel implementations for the RPC
// core (spec.md §6 treats the channel as an external collaborator; these
// are grounded, usable ones rather than a stub). Both wrap a raw
// byte-oriented connection and share Mux, the seq-correlated envelope
// multiplexer that tells an inbound frame replying to an outstanding
// synchronous send apart from a fresh inbound call.
package transport

import (
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// Envelope is the wire frame every byte-oriented Channel exchanges: a
// correlation sequence number wrapping an opaque core message payload.
// Seq is 0 for fire-and-forget sends (void calls, async replies that
// don't need correlation at this layer — the core's own CallID already
// tags those); non-zero marks a request awaiting a same-connection reply.
type Envelope struct {
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Mux demultiplexes inbound envelopes on one connection: replies to a
// pending SendSync land on their waiter, everything else is handed to
// Inbound, grounded on the request/reply correlation pattern from the
// birpc reference implementation (matching a reply's id against a table
// of outstanding calls instead of assuming strict request/response
// ordering on the wire).
type Mux struct {
	seq     atomic.Uint64
	mu      sync.Mutex
	waiters map[uint64]chan Envelope

	// Inbound receives every envelope that isn't a correlated reply:
	// fresh calls from the peer, and async sends with Seq == 0.
	Inbound func(Envelope)
}

// NewMux creates an empty multiplexer. Set Inbound before traffic starts
// flowing.
func NewMux() *Mux {
	return &Mux{waiters: make(map[uint64]chan Envelope)}
}

// NextSeq allocates the next correlation id for a synchronous send.
func (m *Mux) NextSeq() uint64 { return m.seq.Add(1) }

// Await registers seq as awaiting a reply and returns the channel it
// will arrive on. Call before the request is actually written, so a
// reply racing the registration can't be missed.
func (m *Mux) Await(seq uint64) chan Envelope {
	ch := make(chan Envelope, 1)
	m.mu.Lock()
	m.waiters[seq] = ch
	m.mu.Unlock()
	return ch
}

// Cancel drops a registered waiter without delivering to it, e.g. after
// the request failed to be written.
func (m *Mux) Cancel(seq uint64) {
	m.mu.Lock()
	delete(m.waiters, seq)
	m.mu.Unlock()
}

// Dispatch routes one decoded envelope: to its waiter if Seq correlates
// to an outstanding Await, otherwise to Inbound.
func (m *Mux) Dispatch(env Envelope) {
	if env.Seq != 0 {
		m.mu.Lock()
		ch, ok := m.waiters[env.Seq]
		if ok {
			delete(m.waiters, env.Seq)
		}
		m.mu.Unlock()
		if ok {
			ch <- env
			return
		}
	}
	if m.Inbound != nil {
		m.Inbound(env)
	}
}
