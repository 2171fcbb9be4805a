// Package overlay holds the static overlay catalog, the visibility map and
// the logic that keeps a live engine in step with both.
package overlay

import (
	"fmt"
	"maps"
	"slices"

	"github.com/joeblew999/plat-polos/internal/engine"
)

// Scheme addresses overlay archives: <scheme>://<dataset>.
const Scheme = "pmtiles"

// Kind is the geometry kind of an overlay.
type Kind string

const (
	Point   Kind = "point"
	Line    Kind = "line"
	Polygon Kind = "polygon"
)

// Field is one row of a hover template.
type Field struct {
	Label string `yaml:"label" json:"label" doc:"Row label" example:"Entidad"`
	Attr  string `yaml:"attr" json:"attr" doc:"Feature attribute" example:"_NOM_ENT"`
}

// Descriptor is the static definition of one overlay.
type Descriptor struct {
	ID      string         `yaml:"id" json:"id" doc:"Overlay and layer id" example:"polos"`
	Title   string         `yaml:"title" json:"title" doc:"Panel label" example:"Polos"`
	Group   string         `yaml:"group" json:"group" doc:"Panel section" example:"Nuevos polos de desarrollo"`
	Color   string         `yaml:"color,omitempty" json:"color,omitempty" doc:"Legend swatch color" example:"#264653"`
	Kind    Kind           `yaml:"kind" json:"kind" enum:"point,line,polygon" doc:"Geometry kind"`
	Dataset string         `yaml:"dataset" json:"dataset" doc:"Backing archive name" example:"polos"`
	Source  string         `yaml:"source,omitempty" json:"source,omitempty" doc:"Shared source id (defaults to id)"`
	Paint   map[string]any `yaml:"paint,omitempty" json:"paint,omitempty" doc:"Paint properties"`
	Filter  []any          `yaml:"filter,omitempty" json:"filter,omitempty" doc:"Feature filter expression"`
	Fields  []Field        `yaml:"fields,omitempty" json:"fields,omitempty" doc:"Hover template"`
	HoverOn string         `yaml:"hoverOn,omitempty" json:"hoverOn,omitempty" enum:"mouseenter,mousemove" doc:"Pointer event that opens the info panel"`
	Cursor  bool           `yaml:"cursor,omitempty" json:"cursor,omitempty" doc:"Show a pointer cursor on hover"`
}

// SourceID is the engine source backing the overlay.
func (d Descriptor) SourceID() string {
	if d.Source != "" {
		return d.Source
	}
	return d.ID
}

// SourceURL is the archive address of the dataset.
func (d Descriptor) SourceURL() string {
	return Scheme + "://" + d.Dataset
}

// SourceLayer is the sub-layer every archive exposes.
func (d Descriptor) SourceLayer() string {
	return d.Dataset + "_tile"
}

// HoverEvent is the pointer event bound to the info panel.
func (d Descriptor) HoverEvent() engine.EventKind {
	if d.HoverOn == string(engine.EventMouseMove) {
		return engine.EventMouseMove
	}
	return engine.EventMouseEnter
}

// LayerType maps the geometry kind to the engine layer type.
func (d Descriptor) LayerType() engine.LayerType {
	switch d.Kind {
	case Point:
		return engine.LayerCircle
	case Line:
		return engine.LayerLine
	default:
		return engine.LayerFill
	}
}

// EngineSource is the vector source definition.
func (d Descriptor) EngineSource() engine.Source {
	return engine.Source{Type: engine.SourceVector, URL: d.SourceURL()}
}

// EngineLayer is the layer definition. Overlays start hidden; visibility is
// applied by [Reconcile].
func (d Descriptor) EngineLayer() engine.Layer {
	return engine.Layer{
		ID:          d.ID,
		Type:        d.LayerType(),
		Source:      d.SourceID(),
		SourceLayer: d.SourceLayer(),
		Paint:       maps.Clone(d.Paint),
		Layout:      map[string]any{engine.PropVisibility: engine.Hidden},
		Filter:      slices.Clone(d.Filter),
	}
}

// Validate checks the descriptor is usable.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("overlay without id")
	}
	if d.Dataset == "" {
		return fmt.Errorf("overlay %q: dataset is required", d.ID)
	}
	switch d.Kind {
	case Point, Line, Polygon:
	default:
		return fmt.Errorf("overlay %q: unknown kind %q", d.ID, d.Kind)
	}
	switch d.HoverOn {
	case "", string(engine.EventMouseEnter), string(engine.EventMouseMove):
	default:
		return fmt.Errorf("overlay %q: unsupported hover event %q", d.ID, d.HoverOn)
	}
	return nil
}
