package engine

import (
	"encoding/json"
	"strings"
)

// Command is one engine mutation to be executed by the browser.
type Command struct {
	Op   string `json:"op"`
	Args []any  `json:"args,omitempty"`
}

// Script renders the command as a call into the viewer's bridge.
func (c Command) Script() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return "window.platGeo && window.platGeo.apply(" + string(b) + ")", nil
}

func AddSourceCommand(id string, src Source) Command {
	return Command{Op: "addSource", Args: []any{id, src}}
}

func AddLayerCommand(l Layer) Command {
	return Command{Op: "addLayer", Args: []any{l}}
}

func SetStyleCommand(s Style) Command {
	return Command{Op: "setStyle", Args: []any{s.URL}}
}

func ShowPopupCommand(p Popup) Command {
	return Command{Op: "showPopup", Args: []any{p.LngLat[0], p.LngLat[1], p.HTML}}
}

func SetCursorCommand(cursor string) Command {
	return Command{Op: "setCursor", Args: []any{cursor}}
}

// Sink receives commands emitted by a [Remote].
type Sink func(Command)

// Remote is a browser-backed engine. State lives in the embedded
// [Registry]; every successful mutation is also emitted to the sink.
// Source URLs are resolved through the registered protocols on the way out.
type Remote struct {
	*Registry
	sink Sink
}

// NewRemote creates a remote engine loaded with style.
func NewRemote(style Style, cam Camera, sink Sink) *Remote {
	return &Remote{Registry: NewRegistry(style, cam), sink: sink}
}

func (r *Remote) emit(c Command) {
	if r.sink != nil {
		r.sink(c)
	}
}

func (r *Remote) AddSource(id string, src Source) error {
	if err := r.Registry.AddSource(id, src); err != nil {
		return err
	}
	r.emit(AddSourceCommand(id, resolveSource(src)))
	return nil
}

func (r *Remote) RemoveSource(id string) error {
	if err := r.Registry.RemoveSource(id); err != nil {
		return err
	}
	r.emit(Command{Op: "removeSource", Args: []any{id}})
	return nil
}

func (r *Remote) AddLayer(layer Layer) error {
	if err := r.Registry.AddLayer(layer); err != nil {
		return err
	}
	r.emit(AddLayerCommand(layer))
	return nil
}

func (r *Remote) RemoveLayer(id string) error {
	if err := r.Registry.RemoveLayer(id); err != nil {
		return err
	}
	r.emit(Command{Op: "removeLayer", Args: []any{id}})
	return nil
}

func (r *Remote) SetLayoutProperty(layerID, name string, value any) error {
	if err := r.Registry.SetLayoutProperty(layerID, name, value); err != nil {
		return err
	}
	r.emit(Command{Op: "setLayoutProperty", Args: []any{layerID, name, value}})
	return nil
}

func (r *Remote) SetFilter(layerID string, filter []any) error {
	if err := r.Registry.SetFilter(layerID, filter); err != nil {
		return err
	}
	r.emit(Command{Op: "setFilter", Args: []any{layerID, filter}})
	return nil
}

func (r *Remote) SetStyle(style Style) error {
	if err := r.Registry.SetStyle(style); err != nil {
		return err
	}
	r.emit(SetStyleCommand(style))
	return nil
}

// CommitStyle finishes a swap. The browser keeps popups across style loads,
// so a popup the mirror drops is removed there too.
func (r *Remote) CommitStyle() bool {
	_, hadPopup := r.Registry.Popup()
	if !r.Registry.CommitStyle() {
		return false
	}
	if hadPopup {
		r.emit(Command{Op: "removePopup"})
	}
	return true
}

func (r *Remote) ShowPopup(p Popup) {
	r.Registry.ShowPopup(p)
	r.emit(ShowPopupCommand(p))
}

func (r *Remote) RemovePopup() {
	if _, ok := r.Registry.Popup(); !ok {
		return
	}
	r.Registry.RemovePopup()
	r.emit(Command{Op: "removePopup"})
}

func (r *Remote) SetCursor(cursor string) {
	if r.Registry.Cursor() == cursor {
		return
	}
	r.Registry.SetCursor(cursor)
	r.emit(SetCursorCommand(cursor))
}

// Replay returns the mirror state as commands with source URLs resolved.
func (r *Remote) Replay() []Command {
	cmds := r.Registry.Replay()
	for i, c := range cmds {
		if c.Op != "addSource" {
			continue
		}
		if src, ok := c.Args[1].(Source); ok {
			cmds[i] = AddSourceCommand(c.Args[0].(string), resolveSource(src))
		}
	}
	return cmds
}

func resolveSource(src Source) Source {
	if src.URL != "" && strings.Contains(src.URL, "://") {
		src.URL = ResolveURL(src.URL)
	}
	return src
}

var (
	_ Engine      = (*Remote)(nil)
	_ StyleLoader = (*Remote)(nil)
)
