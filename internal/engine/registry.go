package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/paulmach/orb"
)

// Registry is an in-memory engine. It keeps the sources, layers, layout,
// style, camera and popup state a live engine would hold, so it serves both
// as the authoritative mirror of a browser engine and as a standalone engine.
type Registry struct {
	style   Style
	pending *Style

	sources     map[string]Source
	sourceOrder []string
	layers      map[string]*Layer
	layerOrder  []string

	camera Camera
	popup  *Popup
	cursor string

	writes int
}

// NewRegistry creates an engine already loaded with style.
func NewRegistry(style Style, cam Camera) *Registry {
	return &Registry{
		style:   style,
		sources: make(map[string]Source),
		layers:  make(map[string]*Layer),
		camera:  cam,
	}
}

func (r *Registry) AddSource(id string, src Source) error {
	if id == "" || src.Type == "" {
		return fmt.Errorf("add source %q: %w", id, ErrInvalid)
	}
	if _, ok := r.sources[id]; ok {
		return fmt.Errorf("add source %q: %w", id, ErrDuplicate)
	}
	r.writes++
	r.sources[id] = src
	r.sourceOrder = append(r.sourceOrder, id)
	return nil
}

func (r *Registry) RemoveSource(id string) error {
	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("remove source %q: %w", id, ErrSourceNotFound)
	}
	for _, lid := range r.layerOrder {
		if r.layers[lid].Source == id {
			return fmt.Errorf("remove source %q (layer %q): %w", id, lid, ErrSourceInUse)
		}
	}
	r.writes++
	delete(r.sources, id)
	r.sourceOrder = slices.DeleteFunc(r.sourceOrder, func(s string) bool { return s == id })
	return nil
}

func (r *Registry) HasSource(id string) bool {
	_, ok := r.sources[id]
	return ok
}

func (r *Registry) AddLayer(layer Layer) error {
	if layer.ID == "" || layer.Type == "" {
		return fmt.Errorf("add layer %q: %w", layer.ID, ErrInvalid)
	}
	if _, ok := r.layers[layer.ID]; ok {
		return fmt.Errorf("add layer %q: %w", layer.ID, ErrDuplicate)
	}
	if _, ok := r.sources[layer.Source]; !ok {
		return fmt.Errorf("add layer %q: source %q: %w", layer.ID, layer.Source, ErrSourceNotFound)
	}
	r.writes++
	l := cloneLayer(layer)
	r.layers[l.ID] = &l
	r.layerOrder = append(r.layerOrder, l.ID)
	return nil
}

func (r *Registry) RemoveLayer(id string) error {
	if _, ok := r.layers[id]; !ok {
		return fmt.Errorf("remove layer %q: %w", id, ErrLayerNotFound)
	}
	r.writes++
	delete(r.layers, id)
	r.layerOrder = slices.DeleteFunc(r.layerOrder, func(s string) bool { return s == id })
	return nil
}

func (r *Registry) HasLayer(id string) bool {
	_, ok := r.layers[id]
	return ok
}

func (r *Registry) SetLayoutProperty(layerID, name string, value any) error {
	l, ok := r.layers[layerID]
	if !ok {
		return fmt.Errorf("set layout %q on %q: %w", name, layerID, ErrLayerNotFound)
	}
	r.writes++
	if l.Layout == nil {
		l.Layout = make(map[string]any)
	}
	l.Layout[name] = value
	return nil
}

func (r *Registry) LayoutProperty(layerID, name string) (any, bool) {
	l, ok := r.layers[layerID]
	if !ok {
		return nil, false
	}
	v, ok := l.Layout[name]
	return v, ok
}

func (r *Registry) SetFilter(layerID string, filter []any) error {
	l, ok := r.layers[layerID]
	if !ok {
		return fmt.Errorf("set filter on %q: %w", layerID, ErrLayerNotFound)
	}
	r.writes++
	l.Filter = filter
	return nil
}

func (r *Registry) SetStyle(style Style) error {
	if style.URL == "" {
		return fmt.Errorf("set style %q: %w", style.Name, ErrInvalid)
	}
	r.writes++
	s := style
	r.pending = &s
	return nil
}

func (r *Registry) Style() Style { return r.style }

// PendingStyle returns the style being loaded, if any.
func (r *Registry) PendingStyle() (Style, bool) {
	if r.pending == nil {
		return Style{}, false
	}
	return *r.pending, true
}

func (r *Registry) CommitStyle() bool {
	if r.pending == nil {
		return false
	}
	r.style = *r.pending
	r.pending = nil
	r.sources = make(map[string]Source)
	r.sourceOrder = nil
	r.layers = make(map[string]*Layer)
	r.layerOrder = nil
	r.popup = nil
	return true
}

func (r *Registry) AbortStyle() bool {
	if r.pending == nil {
		return false
	}
	r.pending = nil
	return true
}

func (r *Registry) SetCamera(cam Camera) { r.camera = cam }
func (r *Registry) Camera() Camera       { return r.camera }

func (r *Registry) Project(p orb.Point) ScreenPoint { return r.camera.Project(p) }

func (r *Registry) ShowPopup(p Popup) {
	r.writes++
	r.popup = &p
}

func (r *Registry) RemovePopup() {
	if r.popup == nil {
		return
	}
	r.writes++
	r.popup = nil
}

// Popup returns the popup currently shown.
func (r *Registry) Popup() (Popup, bool) {
	if r.popup == nil {
		return Popup{}, false
	}
	return *r.popup, true
}

func (r *Registry) SetCursor(cursor string) {
	if r.cursor == cursor {
		return
	}
	r.writes++
	r.cursor = cursor
}

// Cursor returns the current canvas cursor.
func (r *Registry) Cursor() string { return r.cursor }

// Layer returns a copy of a registered layer.
func (r *Registry) Layer(id string) (Layer, bool) {
	l, ok := r.layers[id]
	if !ok {
		return Layer{}, false
	}
	return cloneLayer(*l), true
}

// Source returns a registered source.
func (r *Registry) Source(id string) (Source, bool) {
	s, ok := r.sources[id]
	return s, ok
}

// LayerIDs returns layer ids in registration order.
func (r *Registry) LayerIDs() []string { return slices.Clone(r.layerOrder) }

// SourceIDs returns source ids in registration order.
func (r *Registry) SourceIDs() []string { return slices.Clone(r.sourceOrder) }

// ResourceCount is the number of registered sources plus layers.
func (r *Registry) ResourceCount() int { return len(r.sources) + len(r.layers) }

// Writes counts state-changing calls, for idempotence checks.
func (r *Registry) Writes() int { return r.writes }

// Replay returns the commands that rebuild the current state on a freshly
// created engine. A style still loading is replayed in place of the current
// one so the fresh engine reports its load.
func (r *Registry) Replay() []Command {
	style := r.style
	if r.pending != nil {
		style = *r.pending
	}
	cmds := []Command{SetStyleCommand(style)}
	for _, id := range r.sourceOrder {
		cmds = append(cmds, AddSourceCommand(id, r.sources[id]))
	}
	for _, id := range r.layerOrder {
		cmds = append(cmds, AddLayerCommand(*r.layers[id]))
	}
	if r.popup != nil {
		cmds = append(cmds, ShowPopupCommand(*r.popup))
	}
	if r.cursor != "" {
		cmds = append(cmds, SetCursorCommand(r.cursor))
	}
	return cmds
}

func cloneLayer(l Layer) Layer {
	l.Paint = maps.Clone(l.Paint)
	l.Layout = maps.Clone(l.Layout)
	l.Filter = slices.Clone(l.Filter)
	return l
}

var (
	_ Engine      = (*Registry)(nil)
	_ StyleLoader = (*Registry)(nil)
)
