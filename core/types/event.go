package types

import (
	"sort"
	"strings"
)

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := &Event{Type: e.Type, Attributes: make(map[string]string, len(e.Attributes))}
	for k, v := range e.Attributes {
		out.Attributes[k] = v
	}
	return out
}

// Module returns the type prefix before the first dot, e.g. "lien" for
// "lien.created".
func (e *Event) Module() string {
	if e == nil {
		return ""
	}
	if idx := strings.IndexByte(e.Type, '.'); idx >= 0 {
		return e.Type[:idx]
	}
	return e.Type
}

// SortedKeys lists the attribute keys in lexical order.
func (e *Event) SortedKeys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
