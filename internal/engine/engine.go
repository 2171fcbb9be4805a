// Package engine models the map rendering engine a session drives.
//
// The engine itself (tile fetching, compositing, GPU projection) runs in the
// browser. This package defines the capability surface the server relies on,
// an in-memory [Registry] that mirrors the engine's state, a [Remote] that
// forwards every mutation to the browser as a [Command], and the owned
// [Handle] that scopes one engine instance to one mounted session.
package engine

import (
	"errors"

	"github.com/paulmach/orb"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrLayerNotFound  = errors.New("layer not found")
	ErrSourceInUse    = errors.New("source is referenced by a layer")
	ErrDuplicate      = errors.New("id already registered")
	ErrInvalid        = errors.New("invalid definition")
)

// PropVisibility is the layout property toggled by overlay visibility.
const PropVisibility = "visibility"

// Visibility values accepted by the "visibility" layout property.
const (
	Visible = "visible"
	Hidden  = "none"
)

// VisibilityValue maps a boolean to its layout property value.
func VisibilityValue(visible bool) string {
	if visible {
		return Visible
	}
	return Hidden
}

// LayerType is the MapLibre layer type.
type LayerType string

const (
	LayerFill   LayerType = "fill"
	LayerLine   LayerType = "line"
	LayerCircle LayerType = "circle"
)

// Source types.
const (
	SourceVector  = "vector"
	SourceGeoJSON = "geojson"
)

// Source is a data source definition.
type Source struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Layer is a visual layer definition bound to a source.
type Layer struct {
	ID          string         `json:"id"`
	Type        LayerType      `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Filter      []any          `json:"filter,omitempty"`
}

// Style is a complete base map theme.
type Style struct {
	Name string `json:"name" yaml:"name" doc:"Style name" example:"base"`
	URL  string `json:"url" yaml:"url" doc:"Style JSON URL"`
}

// ScreenPoint is a pixel position relative to the map container.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Popup is the single floating info panel.
type Popup struct {
	LayerID string    `json:"layerId"`
	LngLat  orb.Point `json:"lngLat"`
	HTML    string    `json:"html"`
}

// Engine is the rendering engine capability surface.
//
// Implementations are not safe for concurrent use; a session mutates its
// engine only from its own event loop.
type Engine interface {
	AddSource(id string, src Source) error
	RemoveSource(id string) error
	HasSource(id string) bool

	AddLayer(layer Layer) error
	RemoveLayer(id string) error
	HasLayer(id string) bool

	SetLayoutProperty(layerID, name string, value any) error
	LayoutProperty(layerID, name string) (any, bool)
	SetFilter(layerID string, filter []any) error

	// SetStyle starts replacing the base style. The replacement completes
	// when the engine reports the new style loaded.
	SetStyle(style Style) error
	Style() Style

	SetCamera(cam Camera)
	Camera() Camera
	Project(p orb.Point) ScreenPoint

	ShowPopup(p Popup)
	RemovePopup()
	SetCursor(cursor string)
}

// StyleLoader is implemented by engines that track an in-flight style swap.
type StyleLoader interface {
	// CommitStyle finishes a pending swap, discarding every source and
	// layer. It reports false when no swap was pending.
	CommitStyle() bool
	// AbortStyle drops a pending swap, keeping the previous style.
	AbortStyle() bool
}
