package mapsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/routing"
	"github.com/joeblew999/plat-polos/internal/templates"
)

var (
	pointA = orb.Point{-99.10, 19.40}
	pointB = orb.Point{-100.20, 20.10}

	testOptions = Options{
		Styles: overlay.Styles{
			Base:      engine.Style{Name: "base", URL: "https://example.test/base.json"},
			Satellite: engine.Style{Name: "satellite", URL: "https://example.test/satellite.json"},
		},
		Camera:    engine.DefaultCamera(),
		PublicURL: "https://geo.test",
	}
)

// overlayResources is the source plus layer count of the built-in catalog.
const overlayResources = 11 + 13

type fakeRouter struct {
	mu    sync.Mutex
	calls [][2]orb.Point
	gate  chan struct{}
	err   error
}

func (f *fakeRouter) Route(ctx context.Context, start, end orb.Point) (*routing.Route, error) {
	f.mu.Lock()
	f.calls = append(f.calls, [2]orb.Point{start, end})
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &routing.Route{
		Geometry: orb.LineString{start, end},
		Distance: 12345,
		Duration: 5400,
	}, nil
}

func (f *fakeRouter) Calls() [][2]orb.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]orb.Point(nil), f.calls...)
}

func newManager(t *testing.T, router Router, opts Options) *Manager {
	t.Helper()
	r, err := templates.New()
	require.NoError(t, err)
	m := NewManager(overlay.Default(), router, r, opts, zap.NewNop())
	t.Cleanup(m.Close)
	return m
}

func mount(t *testing.T, router Router) *Controller {
	t.Helper()
	c, err := newManager(t, router, testOptions).Mount(context.Background())
	require.NoError(t, err)
	return c
}

func snapshot(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	snap, err := c.Snapshot()
	require.NoError(t, err)
	return snap
}

func click(t *testing.T, c *Controller, p orb.Point) {
	t.Helper()
	require.NoError(t, c.Dispatch(engine.Event{Kind: engine.EventClick, LngLat: p}))
}

func TestMount(t *testing.T) {
	c := mount(t, &fakeRouter{})
	snap := snapshot(t, c)

	assert.Equal(t, c.ID(), snap.ID)
	assert.Len(t, snap.Visibility, 13)
	assert.Equal(t, overlayResources, snap.Resources)
	for id, v := range snap.Layers {
		assert.Equal(t, engine.Hidden, v, id)
	}
	assert.Equal(t, "base", snap.Style.Name)
	assert.False(t, snap.Measuring)
	assert.Contains(t, engine.Protocols(), overlay.Scheme)
}

func TestToggleOverlay(t *testing.T) {
	c := mount(t, &fakeRouter{})

	visible, err := c.ToggleOverlay("trazo_actual")
	require.NoError(t, err)
	assert.True(t, visible)
	assert.Equal(t, engine.Visible, snapshot(t, c).Layers["trazo_actual"])

	require.NoError(t, c.SetVisible("trazo_actual", false))
	assert.Equal(t, engine.Hidden, snapshot(t, c).Layers["trazo_actual"])

	_, err = c.ToggleOverlay("nope")
	assert.ErrorIs(t, err, overlay.ErrUnknownOverlay)
	assert.ErrorIs(t, c.SetVisible("nope", true), overlay.ErrUnknownOverlay)
}

func TestMeasureRoute(t *testing.T) {
	router := &fakeRouter{}
	c := mount(t, router)

	click(t, c, pointA)
	assert.Empty(t, router.Calls(), "clicks are ignored until measuring")

	require.NoError(t, c.SetMeasuring(true))
	click(t, c, pointA)
	assert.Equal(t, 1, snapshot(t, c).Points)
	click(t, c, pointB)

	c.fetch.Wait()
	snap := snapshot(t, c)
	assert.Equal(t, [][2]orb.Point{{pointA, pointB}}, router.Calls())
	require.Len(t, snap.Routes, 1)
	require.Len(t, snap.Labels, 1)
	assert.Equal(t, "12.35 km", snap.Labels[0].Distance)
	assert.Equal(t, "1 h 30 min", snap.Labels[0].Duration)
	assert.Equal(t, overlayResources+6, snap.Resources)
	assert.Equal(t, "collecting", snap.MeasureState)
	assert.Zero(t, snap.Points)

	t.Run("disable removes every route", func(t *testing.T) {
		require.NoError(t, c.SetMeasuring(false))
		snap := snapshot(t, c)
		assert.Empty(t, snap.Routes)
		assert.Equal(t, overlayResources, snap.Resources)
		assert.False(t, snap.Measuring)

		require.NoError(t, c.SetMeasuring(false))
		assert.Equal(t, overlayResources, snapshot(t, c).Resources)
	})
}

func TestMeasureRoute_ClicksWhilePending(t *testing.T) {
	router := &fakeRouter{gate: make(chan struct{})}
	c := mount(t, router)

	require.NoError(t, c.SetMeasuring(true))
	click(t, c, pointA)
	click(t, c, pointB)
	assert.Equal(t, "pending", snapshot(t, c).MeasureState)

	click(t, c, orb.Point{pointB[0] + 0.01, pointB[1] + 0.01})
	snap := snapshot(t, c)
	assert.Equal(t, "pending", snap.MeasureState)
	assert.Equal(t, 2, snap.Points, "a third click is not recorded")

	close(router.gate)
	c.fetch.Wait()

	snap = snapshot(t, c)
	assert.Len(t, router.Calls(), 1)
	assert.Equal(t, [][2]orb.Point{{pointA, pointB}}, router.Calls())
	require.Len(t, snap.Routes, 1)
	assert.Equal(t, "collecting", snap.MeasureState)
	assert.Zero(t, snap.Points)
}

func TestMeasureRoute_Failure(t *testing.T) {
	c := mount(t, &fakeRouter{err: errors.New("routing service returned 503")})

	require.NoError(t, c.SetMeasuring(true))
	click(t, c, pointA)
	click(t, c, pointB)
	c.fetch.Wait()

	snap := snapshot(t, c)
	assert.Empty(t, snap.Routes)
	assert.Equal(t, "collecting", snap.MeasureState)
	assert.Zero(t, snap.Points)
	assert.Equal(t, overlayResources, snap.Resources)
}

func TestMeasureRoute_Stale(t *testing.T) {
	run := func(t *testing.T, discard bool) Snapshot {
		router := &fakeRouter{gate: make(chan struct{})}
		opts := testOptions
		opts.DiscardStaleRoutes = discard
		c, err := newManager(t, router, opts).Mount(context.Background())
		require.NoError(t, err)

		require.NoError(t, c.SetMeasuring(true))
		click(t, c, pointA)
		click(t, c, pointB)
		require.NoError(t, c.SetMeasuring(false))

		close(router.gate)
		c.fetch.Wait()
		return snapshot(t, c)
	}

	t.Run("drawn by default", func(t *testing.T) {
		snap := run(t, false)
		assert.Len(t, snap.Routes, 1)
		assert.Equal(t, overlayResources+6, snap.Resources)
		assert.Equal(t, "idle", snap.MeasureState)
	})

	t.Run("discarded when configured", func(t *testing.T) {
		snap := run(t, true)
		assert.Empty(t, snap.Routes)
		assert.Equal(t, overlayResources, snap.Resources)
		assert.Equal(t, "idle", snap.MeasureState)
	})
}

func TestSwitchStyle(t *testing.T) {
	c := mount(t, &fakeRouter{})
	require.NoError(t, c.SetVisible("polos", true))
	require.NoError(t, c.SetMeasuring(true))
	click(t, c, pointA)
	click(t, c, pointB)
	c.fetch.Wait()

	require.NoError(t, c.SwitchStyle())
	assert.ErrorIs(t, c.SwitchStyle(), overlay.ErrSwitchPending)
	assert.True(t, snapshot(t, c).StylePending)

	require.NoError(t, c.Dispatch(engine.Event{Kind: engine.EventStyleData}))

	snap := snapshot(t, c)
	assert.False(t, snap.StylePending)
	assert.True(t, snap.Satellite)
	assert.Equal(t, "satellite", snap.Style.Name)
	assert.Equal(t, engine.Visible, snap.Layers["polos"])
	assert.Equal(t, engine.Hidden, snap.Layers["trazo_actual"])
	assert.Len(t, snap.Routes, 1)
	assert.Equal(t, overlayResources+6, snap.Resources, "routes are redrawn on the new style")
}

func TestSwitchStyle_Failure(t *testing.T) {
	c := mount(t, &fakeRouter{})
	require.NoError(t, c.SetVisible("polos", true))

	require.NoError(t, c.SwitchStyle())
	require.NoError(t, c.Dispatch(engine.Event{Kind: engine.EventStyleError, Error: "404"}))

	snap := snapshot(t, c)
	assert.False(t, snap.StylePending)
	assert.False(t, snap.Satellite)
	assert.Equal(t, engine.Visible, snap.Layers["polos"])
	assert.Equal(t, overlayResources, snap.Resources)
}

func TestDispatch_Invalid(t *testing.T) {
	c := mount(t, &fakeRouter{})
	assert.ErrorIs(t, c.Dispatch(engine.Event{Kind: "dblclick"}), ErrInvalidEvent)
	assert.ErrorIs(t, c.Dispatch(engine.Event{Kind: engine.EventMove}), ErrInvalidEvent)
}

func TestDispatch_MoveRelayoutsLabels(t *testing.T) {
	c := mount(t, &fakeRouter{})
	require.NoError(t, c.SetMeasuring(true))
	click(t, c, pointA)
	click(t, c, pointB)
	c.fetch.Wait()
	before := snapshot(t, c).Labels[0].Anchor

	cam := testOptions.Camera
	cam.Zoom = 8
	require.NoError(t, c.Dispatch(engine.Event{Kind: engine.EventMove, Camera: &cam}))

	snap := snapshot(t, c)
	assert.Equal(t, 8.0, snap.Camera.Zoom)
	assert.NotEqual(t, before, snap.Labels[0].Anchor)
	assert.Equal(t, cam.Project(pointB), snap.Labels[0].Anchor)
}

func TestAttach(t *testing.T) {
	c := mount(t, &fakeRouter{})

	replay, snap, ch, err := c.Attach()
	require.NoError(t, err)
	defer c.Detach(ch)

	assert.Equal(t, "setStyle", replay[0].Op)
	assert.Len(t, replay, 1+overlayResources)
	assert.Equal(t, c.ID(), snap.ID)

	src := replay[1].Args[1].(engine.Source)
	assert.Equal(t, "pmtiles://https://geo.test/tiles/or_zona1.pmtiles", src.URL)

	_, err = c.ToggleOverlay("polos")
	require.NoError(t, err)

	u := receive(t, ch)
	require.NotNil(t, u.Command)
	assert.Equal(t, "setLayoutProperty", u.Command.Op)
	assert.Equal(t, []any{"polos", engine.PropVisibility, engine.Visible}, u.Command.Args)

	u = receive(t, ch)
	require.NotNil(t, u.State)
	assert.True(t, u.State.Visibility["polos"])
}

func TestHoverPublishesPopup(t *testing.T) {
	c := mount(t, &fakeRouter{})
	_, _, ch, err := c.Attach()
	require.NoError(t, err)
	defer c.Detach(ch)

	require.NoError(t, c.Dispatch(engine.Event{
		Kind:     engine.EventMouseEnter,
		LayerID:  "polos",
		LngLat:   pointA,
		Features: []engine.Feature{{Properties: map[string]any{"layer": "Polo Coatzacoalcos"}}},
	}))

	u := receive(t, ch)
	require.NotNil(t, u.Command)
	assert.Equal(t, "showPopup", u.Command.Op)
	assert.Contains(t, u.Command.Args[2], "Polo Coatzacoalcos")

	u = receive(t, ch)
	require.NotNil(t, u.Command)
	assert.Equal(t, engine.SetCursorCommand("pointer"), *u.Command)
}

func receive(t *testing.T, ch chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
	return Update{}
}

func TestManager(t *testing.T) {
	m := newManager(t, &fakeRouter{}, testOptions)

	a, err := m.Mount(context.Background())
	require.NoError(t, err)
	b, err := m.Mount(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Len())
	assert.Len(t, m.IDs(), 2)

	got, err := m.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, _, ch, err := a.Attach()
	require.NoError(t, err)

	require.NoError(t, m.Unmount(a.ID()))
	assert.ErrorIs(t, m.Unmount(a.ID()), ErrSessionNotFound)
	_, err = m.Get(a.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	t.Run("closed sessions refuse work", func(t *testing.T) {
		<-a.Done()
		_, err := a.Snapshot()
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, a.SetMeasuring(true), ErrClosed)
		_, ok := <-ch
		assert.False(t, ok, "subscribers are released")
		a.Close()
	})

	t.Run("close unmounts everything", func(t *testing.T) {
		m.Close()
		assert.Equal(t, 0, m.Len())
		<-b.Done()
		_, err := m.Mount(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
	})
}
