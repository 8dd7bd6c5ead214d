package events

import (
	"sort"
	"strings"
	"sync"

	"lienledger/core/types"
)

// Handler consumes a broadcast payload. Each handler receives its own copy.
type Handler func(*types.Event)

type subscription struct {
	pattern string
	handler Handler
}

// Bus is an Emitter fanning events out to topic subscribers synchronously,
// in subscription order.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]subscription
}

// NewBus returns a bus without subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]subscription)}
}

// Subscribe registers handler for events matching pattern. A pattern is an
// exact event type, a module wildcard such as "lien.*", or "*" for every
// event. The returned function removes the subscription.
func (b *Bus) Subscribe(pattern string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscription{pattern: strings.TrimSpace(pattern), handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	payload := Payload(evt)
	if payload == nil {
		return
	}
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id, sub := range b.subs {
		if matches(sub.pattern, payload.Type) {
			ids = append(ids, id)
		}
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		handlers = append(handlers, b.subs[id].handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload.Clone())
	}
}

func matches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == "":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == eventType
	}
}

// Recorder is an Emitter retaining every payload it receives.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	payload := Payload(evt)
	if payload == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, payload.Clone())
	r.mu.Unlock()
}

// Events returns the recorded payloads in emission order.
func (r *Recorder) Events() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Type
	}
	return out
}

// Reset drops the recorded payloads.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
