// Package hover shows feature attributes in a popup while the pointer is over
// an overlay.
package hover

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/overlay"
)

// PopupTemplate is the fragment rendered into the popup.
const PopupTemplate = "popup"

// Renderer renders a named HTML template.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Row is one rendered attribute.
type Row struct {
	Label string
	Value string
}

// Content is the data passed to the popup template.
type Content struct {
	LayerID string
	Rows    []Row
}

// Formatter turns the properties of a hit feature into popup rows.
type Formatter func(props map[string]any) []Row

// FieldFormatter builds a formatter for an ordered field list. Missing, nil
// and empty values render as [overlay.Placeholder].
func FieldFormatter(fields []overlay.Field) Formatter {
	return func(props map[string]any) []Row {
		rows := make([]Row, len(fields))
		for i, f := range fields {
			rows[i] = Row{Label: f.Label, Value: FormatValue(props[f.Attr])}
		}
		return rows
	}
}

// FormatValue renders one attribute value. Zero is a value; nil and the
// empty string are not.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return overlay.Placeholder
	case string:
		if x == "" {
			return overlay.Placeholder
		}
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

type entry struct {
	format  Formatter
	event   engine.EventKind
	pointer bool
}

// Inspector dispatches pointer events from overlay layers to their
// formatters. The table is built once from the catalog.
type Inspector struct {
	table    map[string]entry
	order    []string
	renderer Renderer
	log      *zap.Logger

	h    *engine.Handle
	subs []engine.Subscription
}

// New builds the formatter table for every overlay of c.
func New(c *overlay.Catalog, r Renderer, log *zap.Logger) *Inspector {
	in := &Inspector{
		table:    make(map[string]entry),
		renderer: r,
		log:      log.Named("hover"),
	}
	for _, d := range c.All() {
		in.table[d.ID] = entry{
			format:  FieldFormatter(d.Fields),
			event:   d.HoverEvent(),
			pointer: d.Cursor,
		}
		in.order = append(in.order, d.ID)
	}
	return in
}

// Bind subscribes the hover and leave events of every overlay on h. Binding
// the same handle again does nothing. Subscriptions are keyed by layer id,
// so they survive a style swap that re-creates the layers.
func (in *Inspector) Bind(h *engine.Handle) {
	if in.h == h {
		return
	}
	in.Unbind()
	in.h = h
	ev := h.Events()
	for _, id := range in.order {
		e := in.table[id]
		in.subs = append(in.subs,
			ev.On(e.event, id, in.enter),
			ev.On(engine.EventMouseLeave, id, in.leave),
		)
	}
}

// Unbind removes every subscription.
func (in *Inspector) Unbind() {
	if in.h == nil {
		return
	}
	ev := in.h.Events()
	for _, s := range in.subs {
		ev.Off(s)
	}
	in.subs = nil
	in.h = nil
}

// Format renders the popup HTML for a feature of layerID.
func (in *Inspector) Format(layerID string, props map[string]any) (string, error) {
	e, ok := in.table[layerID]
	if !ok {
		return "", fmt.Errorf("%w: %q", overlay.ErrUnknownOverlay, layerID)
	}
	return in.renderer.Render(PopupTemplate, Content{LayerID: layerID, Rows: e.format(props)})
}

func (in *Inspector) enter(ev engine.Event) {
	var props map[string]any
	if len(ev.Features) > 0 {
		props = ev.Features[0].Properties
	}
	html, err := in.Format(ev.LayerID, props)
	if err != nil {
		in.log.Warn("popup render failed", zap.String("layer", ev.LayerID), zap.Error(err))
		return
	}
	in.h.ShowPopup(engine.Popup{LayerID: ev.LayerID, LngLat: ev.LngLat, HTML: html})
	if in.table[ev.LayerID].pointer {
		in.h.SetCursor("pointer")
	}
}

func (in *Inspector) leave(engine.Event) {
	in.h.RemovePopup()
	in.h.SetCursor("")
}
