package engine

import (
	"slices"

	"github.com/paulmach/orb"
)

// EventKind names an engine event.
type EventKind string

const (
	EventLoad       EventKind = "load"
	EventStyleData  EventKind = "styledata"
	EventStyleError EventKind = "styleerror"
	EventClick      EventKind = "click"
	EventMouseEnter EventKind = "mouseenter"
	EventMouseMove  EventKind = "mousemove"
	EventMouseLeave EventKind = "mouseleave"
	EventMove       EventKind = "move"
)

// Known reports whether k is an event kind the engine emits.
func (k EventKind) Known() bool {
	switch k {
	case EventLoad, EventStyleData, EventStyleError, EventClick,
		EventMouseEnter, EventMouseMove, EventMouseLeave, EventMove:
		return true
	}
	return false
}

// Feature is a rendered feature hit by the pointer.
type Feature struct {
	LayerID    string         `json:"layerId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Event is an engine event. LayerID is set for layer-scoped pointer events.
type Event struct {
	Kind     EventKind `json:"kind"`
	LayerID  string    `json:"layerId,omitempty"`
	LngLat   orb.Point `json:"lngLat"`
	Features []Feature `json:"features,omitempty"`
	Camera   *Camera   `json:"camera,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Handler handles an engine event.
type Handler func(Event)

// Subscription identifies a registered handler.
type Subscription int

type subscription struct {
	id      Subscription
	kind    EventKind
	layerID string
	once    bool
	fn      Handler
}

// Events dispatches engine events to handlers. A handler registered with an
// empty layer id receives every event of its kind; a layer-scoped handler
// only receives events for that layer.
type Events struct {
	next Subscription
	subs []subscription
}

// NewEvents creates an empty dispatcher.
func NewEvents() *Events {
	return &Events{}
}

// On registers fn for kind, optionally scoped to layerID.
func (e *Events) On(kind EventKind, layerID string, fn Handler) Subscription {
	return e.add(kind, layerID, false, fn)
}

// Once registers fn to run for the next matching event only.
func (e *Events) Once(kind EventKind, layerID string, fn Handler) Subscription {
	return e.add(kind, layerID, true, fn)
}

func (e *Events) add(kind EventKind, layerID string, once bool, fn Handler) Subscription {
	e.next++
	e.subs = append(e.subs, subscription{id: e.next, kind: kind, layerID: layerID, once: once, fn: fn})
	return e.next
}

// Off removes a handler. Unknown subscriptions are ignored.
func (e *Events) Off(id Subscription) {
	e.subs = slices.DeleteFunc(e.subs, func(s subscription) bool { return s.id == id })
}

// Len returns the number of registered handlers.
func (e *Events) Len() int { return len(e.subs) }

// Emit runs every matching handler in registration order and returns how
// many ran. Handlers may subscribe or unsubscribe while running.
func (e *Events) Emit(ev Event) int {
	matched := make([]subscription, 0, 2)
	for _, s := range e.subs {
		if s.kind != ev.Kind {
			continue
		}
		if s.layerID != "" && s.layerID != ev.LayerID {
			continue
		}
		matched = append(matched, s)
	}
	for _, s := range matched {
		if s.once {
			e.Off(s.id)
		}
	}

	n := 0
	for _, s := range matched {
		if !s.once && !e.has(s.id) {
			continue
		}
		s.fn(ev)
		n++
	}
	return n
}

func (e *Events) has(id Subscription) bool {
	return slices.ContainsFunc(e.subs, func(s subscription) bool { return s.id == id })
}
