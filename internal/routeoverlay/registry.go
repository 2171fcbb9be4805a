// Package routeoverlay owns the engine resources drawn for measured routes.
package routeoverlay

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/routing"
)

const (
	LineColor  = "#9f2241"
	StartColor = "#235b4e"
	EndColor   = "#BC955C"
)

// Record is one materialized route.
type Record struct {
	ID       string             `json:"id" doc:"Route id"`
	Geometry orb.LineString     `json:"geometry" doc:"Route path as [lon, lat] positions"`
	Distance float64            `json:"distance" doc:"Length in meters"`
	Duration float64            `json:"duration" doc:"Travel time in seconds"`
	Start    orb.Point          `json:"start" doc:"First clicked point"`
	End      orb.Point          `json:"end" doc:"Second clicked point"`
	Anchor   engine.ScreenPoint `json:"anchor" doc:"Label position in screen pixels"`
}

func (r *Record) LineID() string  { return r.ID + "-line" }
func (r *Record) StartID() string { return r.ID + "-start" }
func (r *Record) EndID() string   { return r.ID + "-end" }

// ResourceIDs returns the ids shared by each source and its layer.
func (r *Record) ResourceIDs() []string {
	return []string{r.LineID(), r.StartID(), r.EndID()}
}

type resource struct {
	id    string
	data  *geojson.Feature
	layer engine.Layer
}

func (r *Record) resources() []resource {
	circle := func(color string) map[string]any {
		return map[string]any{
			"circle-radius":       7,
			"circle-color":        color,
			"circle-stroke-color": "#ffffff",
			"circle-stroke-width": 2,
		}
	}
	return []resource{
		{
			id:   r.LineID(),
			data: geojson.NewFeature(r.Geometry),
			layer: engine.Layer{
				Type:   engine.LayerLine,
				Paint:  map[string]any{"line-color": LineColor, "line-width": 4},
				Layout: map[string]any{"line-join": "round", "line-cap": "round"},
			},
		},
		{id: r.StartID(), data: geojson.NewFeature(r.Start), layer: engine.Layer{Type: engine.LayerCircle, Paint: circle(StartColor)}},
		{id: r.EndID(), data: geojson.NewFeature(r.End), layer: engine.Layer{Type: engine.LayerCircle, Paint: circle(EndColor)}},
	}
}

// Registry creates and destroys route resources on one engine. It is not
// safe for concurrent use.
type Registry struct {
	eng     engine.Engine
	records []*Record
	newID   func() string
}

// New returns an empty registry for eng.
func New(eng engine.Engine) *Registry {
	return &Registry{
		eng:   eng,
		newID: func() string { return "route-" + uuid.NewString() },
	}
}

// Materialize adds the line and both endpoint markers of a route. Either all
// three source/layer pairs are added or none are.
func (g *Registry) Materialize(route routing.Route, start, end orb.Point) (*Record, error) {
	rec := &Record{
		ID:       g.newID(),
		Geometry: route.Geometry,
		Distance: route.Distance,
		Duration: route.Duration,
		Start:    start,
		End:      end,
	}
	if err := g.add(rec); err != nil {
		return nil, err
	}
	rec.Anchor = g.eng.Project(rec.End)
	g.records = append(g.records, rec)
	return rec, nil
}

func (g *Registry) add(rec *Record) error {
	var added []string
	for _, res := range rec.resources() {
		if err := g.eng.AddSource(res.id, engine.Source{Type: engine.SourceGeoJSON, Data: res.data}); err != nil {
			g.rollback(added, false)
			return fmt.Errorf("route %s: %w", rec.ID, err)
		}
		l := res.layer
		l.ID, l.Source = res.id, res.id
		if err := g.eng.AddLayer(l); err != nil {
			g.rollback(added, false)
			_ = g.eng.RemoveSource(res.id)
			return fmt.Errorf("route %s: %w", rec.ID, err)
		}
		added = append(added, res.id)
	}
	return nil
}

// rollback removes the layers of ids, then their sources. Missing resources
// are skipped when tolerant.
func (g *Registry) rollback(ids []string, tolerant bool) error {
	var errs []error
	keep := func(err error) {
		if err == nil {
			return
		}
		if tolerant && (errors.Is(err, engine.ErrLayerNotFound) || errors.Is(err, engine.ErrSourceNotFound)) {
			return
		}
		errs = append(errs, err)
	}
	for _, id := range slices.Backward(ids) {
		keep(g.eng.RemoveLayer(id))
	}
	for _, id := range slices.Backward(ids) {
		keep(g.eng.RemoveSource(id))
	}
	return errors.Join(errs...)
}

// TeardownAll removes every route, layers before sources. Resources already
// gone from the engine are ignored. With no routes it does nothing.
func (g *Registry) TeardownAll() error {
	if len(g.records) == 0 {
		return nil
	}
	var errs []error
	for _, rec := range g.records {
		if err := g.rollback(rec.ResourceIDs(), true); err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", rec.ID, err))
		}
	}
	g.records = nil
	return errors.Join(errs...)
}

// Restore re-adds the resources of routes the engine has lost, as happens
// when the base style is replaced.
func (g *Registry) Restore() error {
	var errs []error
	for _, rec := range g.records {
		if g.eng.HasLayer(rec.LineID()) {
			continue
		}
		if err := g.add(rec); err != nil {
			errs = append(errs, err)
		}
	}
	g.Relayout()
	return errors.Join(errs...)
}

// Relayout recomputes the label anchor of every route from the current
// camera.
func (g *Registry) Relayout() {
	for _, rec := range g.records {
		rec.Anchor = g.eng.Project(rec.End)
	}
}

// Len returns the number of active routes.
func (g *Registry) Len() int { return len(g.records) }

// Records returns copies of the active routes in creation order.
func (g *Registry) Records() []Record {
	out := make([]Record, len(g.records))
	for i, rec := range g.records {
		out[i] = *rec
	}
	return out
}

// Label is the on-screen summary of one route.
type Label struct {
	RouteID  string             `json:"routeId"`
	Anchor   engine.ScreenPoint `json:"anchor"`
	Distance string             `json:"distance" example:"12.35 km"`
	Duration string             `json:"duration" example:"1 h 30 min"`
}

// Labels returns one label per active route.
func (g *Registry) Labels() []Label {
	out := make([]Label, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, Label{
			RouteID:  rec.ID,
			Anchor:   rec.Anchor,
			Distance: FormatDistance(rec.Distance),
			Duration: FormatDuration(rec.Duration),
		})
	}
	return out
}
