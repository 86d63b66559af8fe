// Package events carries the typed event stream between the orchestrator and
// connected clients: an ordered in-process emitter plus a websocket client
// helper with reconnect.
package events

import (
	"sync"

	"agentd/pkg/proto"
)

// Emitter receives events in the exact order the orchestrator produced them.
type Emitter interface {
	Emit(env proto.Envelope)
}

// Stream is a buffered, ordered event channel feeding one consumer (usually
// the websocket writer). Emit never drops and never reorders; it blocks if
// the consumer falls more than bufferSize events behind.
type Stream struct {
	ch     chan proto.Envelope
	mu     sync.Mutex
	closed bool
}

const defaultBufferSize = 256

// NewStream creates a stream with the default buffer.
func NewStream() *Stream {
	return &Stream{ch: make(chan proto.Envelope, defaultBufferSize)}
}

// Emit queues an event for the consumer. Events emitted after Close are
// discarded.
func (s *Stream) Emit(env proto.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- env
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan proto.Envelope {
	return s.ch
}

// Close ends the stream. The consumer sees the channel close after draining
// queued events.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// NopEmitter discards every event. Used when no client is attached.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(proto.Envelope) {}

// Recorder captures events in order for tests.
type Recorder struct {
	mu     sync.Mutex
	events []proto.Envelope
}

// Emit implements Emitter.
func (r *Recorder) Emit(env proto.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []proto.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]proto.Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events matching the given type, in order.
func (r *Recorder) OfType(t proto.EventType) []proto.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []proto.Envelope
	for _, env := range r.events {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}
