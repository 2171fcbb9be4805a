// Package mapsession runs map sessions: one browser map, its mirrored engine
// and the overlay, measurement and hover state that drives it.
//
// Every session owns a single event loop goroutine. All engine mutations
// happen on that goroutine; public methods post closures to it and wait.
package mapsession

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/routeoverlay"
	"github.com/joeblew999/plat-polos/internal/routing"
)

var (
	ErrClosed          = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidEvent    = errors.New("invalid engine event")
)

// Router fetches routes between two points.
type Router interface {
	Route(ctx context.Context, start, end orb.Point) (*routing.Route, error)
}

// Options configures new sessions.
type Options struct {
	Styles    overlay.Styles
	Camera    engine.Camera
	PublicURL string
	// DiscardStaleRoutes drops routes whose response arrives after measuring
	// was turned off. By default such routes are still drawn.
	DiscardStaleRoutes bool
}

// Update is published to session subscribers. Exactly one field is set.
type Update struct {
	Command *engine.Command
	State   *Snapshot
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	ID           string                `json:"id" doc:"Session id"`
	Visibility   map[string]bool       `json:"visibility" doc:"Desired visibility per overlay"`
	Layers       map[string]string     `json:"layers" doc:"Engine visibility per registered overlay layer"`
	Style        engine.Style          `json:"style" doc:"Active base style"`
	Satellite    bool                  `json:"satellite" doc:"Whether the satellite style is active"`
	StylePending bool                  `json:"stylePending" doc:"Whether a style switch is loading"`
	Measuring    bool                  `json:"measuring" doc:"Whether clicks are taken as route endpoints"`
	MeasureState string                `json:"measureState" enum:"idle,collecting,ready,pending,done" doc:"Measurement phase"`
	Points       int                   `json:"points" doc:"Endpoints collected so far"`
	Routes       []routeoverlay.Record `json:"routes" doc:"Materialized routes"`
	Labels       []routeoverlay.Label  `json:"labels" doc:"Route labels"`
	Resources    int                   `json:"resources" doc:"Sources plus layers registered on the engine"`
	Camera       engine.Camera         `json:"camera" doc:"Last reported camera"`
}
