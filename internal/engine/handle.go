package engine

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("engine handle closed")

// Handle is the owned reference to one live engine instance. It pairs the
// engine with its event dispatcher and the protocol registrations installed
// for it. Close tears everything down exactly once.
type Handle struct {
	Engine
	events  *Events
	release []func()

	closeOnce sync.Once
	closed    bool
}

// Protocol is a scheme registration installed when a handle opens.
type Protocol struct {
	Scheme  string
	Resolve ProtocolFunc
}

// Open takes ownership of eng and installs the given protocols.
func Open(eng Engine, protos ...Protocol) *Handle {
	h := &Handle{Engine: eng, events: NewEvents()}
	for _, p := range protos {
		h.release = append(h.release, AddProtocol(p.Scheme, p.Resolve))
	}
	return h
}

// Events returns the handle's event dispatcher.
func (h *Handle) Events() *Events { return h.events }

// Dispatch feeds an event reported by the engine into the handle. Style
// events settle the pending style swap before handlers run; move events
// update the camera.
func (h *Handle) Dispatch(ev Event) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	switch ev.Kind {
	case EventStyleData:
		if l, ok := h.Engine.(StyleLoader); ok {
			l.CommitStyle()
		}
	case EventStyleError:
		if l, ok := h.Engine.(StyleLoader); ok {
			l.AbortStyle()
		}
	case EventMove:
		if ev.Camera != nil {
			h.Engine.SetCamera(*ev.Camera)
		}
	}
	return h.events.Emit(ev), nil
}

// Closed reports whether Close has run.
func (h *Handle) Closed() bool { return h.closed }

// Close releases the protocol registrations, drops every handler and closes
// the engine if it is an io.Closer.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed = true
		for _, release := range h.release {
			release()
		}
		h.events = NewEvents()
		if c, ok := h.Engine.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
