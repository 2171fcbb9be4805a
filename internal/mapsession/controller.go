package mapsession

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/hover"
	"github.com/joeblew999/plat-polos/internal/measure"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/routeoverlay"
	"github.com/joeblew999/plat-polos/internal/routing"
	"github.com/joeblew999/plat-polos/internal/service"
)

// Controller owns one mounted map session.
type Controller struct {
	id  string
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	done   chan struct{}
	once   sync.Once
	fetch  sync.WaitGroup

	bus *service.Bus[Update]

	// Owned by the loop goroutine.
	remote       *engine.Remote
	handle       *engine.Handle
	catalog      *overlay.Catalog
	vis          overlay.VisibilityMap
	styles       *overlay.StyleSwitcher
	measuring    *measure.Session
	routes       *routeoverlay.Registry
	hover        *hover.Inspector
	router       Router
	discardStale bool
}

type deps struct {
	catalog  *overlay.Catalog
	router   Router
	renderer hover.Renderer
	opts     Options
	log      *zap.Logger
}

// newController builds the session and starts its loop. Everything up to
// the loop start runs on the caller's goroutine, before the controller is
// shared.
func newController(ctx context.Context, id string, d deps) (*Controller, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		id:           id,
		log:          d.log.With(zap.String("session_id", id)),
		ctx:          ctx,
		cancel:       cancel,
		ops:          make(chan func()),
		done:         make(chan struct{}),
		bus:          service.NewBus[Update](service.DefaultBuffer),
		catalog:      d.catalog,
		vis:          overlay.NewVisibilityMap(d.catalog),
		measuring:    measure.New(),
		router:       d.router,
		discardStale: d.opts.DiscardStaleRoutes,
	}

	c.remote = engine.NewRemote(d.opts.Styles.Base, d.opts.Camera, c.publishCommand)
	c.handle = engine.Open(c.remote, overlay.Protocol(d.opts.PublicURL))
	if err := overlay.Register(d.catalog, c.handle); err != nil {
		cancel()
		_ = c.handle.Close()
		return nil, fmt.Errorf("register overlays: %w", err)
	}

	c.routes = routeoverlay.New(c.handle)
	c.hover = hover.New(d.catalog, d.renderer, c.log)
	c.hover.Bind(c.handle)
	c.styles = overlay.NewStyleSwitcher(c.handle, d.catalog, c.vis, d.opts.Styles, c.log)
	c.styles.OnReload(c.restoreRoutes)
	overlay.Reconcile(c.vis, c.handle)

	ev := c.handle.Events()
	ev.On(engine.EventClick, "", c.click)
	ev.On(engine.EventMove, "", func(engine.Event) { c.routes.Relayout() })

	go c.loop()
	c.log.Debug("session mounted", zap.Int("overlays", len(c.vis)))
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Done is closed once the session has shut down.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.ctx.Done():
			c.hover.Unbind()
			if err := c.handle.Close(); err != nil {
				c.log.Warn("engine close failed", zap.Error(err))
			}
			c.bus.Close()
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (c *Controller) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case c.ops <- func() { defer close(ran); fn() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// post queues fn on the loop without waiting for it to run.
func (c *Controller) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.done:
	}
}

// Close stops the loop and releases the engine. It is safe to call more
// than once.
func (c *Controller) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		c.fetch.Wait()
		c.log.Debug("session closed")
	})
}

func (c *Controller) publishCommand(cmd engine.Command) {
	c.bus.Publish(Update{Command: &cmd})
}

func (c *Controller) publishState() {
	snap := c.snapshot()
	c.bus.Publish(Update{State: &snap})
}

// SetVisible sets the desired visibility of an overlay and reconciles.
func (c *Controller) SetVisible(id string, visible bool) error {
	var err error
	if derr := c.do(func() {
		var changed bool
		if changed, err = c.vis.Set(id, visible); err != nil || !changed {
			return
		}
		overlay.Reconcile(c.vis, c.handle)
		c.publishState()
	}); derr != nil {
		return derr
	}
	return err
}

// ToggleOverlay flips an overlay and returns its new visibility.
func (c *Controller) ToggleOverlay(id string) (bool, error) {
	var (
		visible bool
		err     error
	)
	if derr := c.do(func() {
		if visible, err = c.vis.Toggle(id); err != nil {
			return
		}
		overlay.Reconcile(c.vis, c.handle)
		c.publishState()
	}); derr != nil {
		return false, derr
	}
	return visible, err
}

// SwitchStyle starts swapping between the thematic and satellite styles.
// It returns overlay.ErrSwitchPending while a previous switch is loading.
func (c *Controller) SwitchStyle() error {
	var err error
	if derr := c.do(func() {
		if err = c.styles.Toggle(); err == nil {
			c.publishState()
		}
	}); derr != nil {
		return derr
	}
	return err
}

// SetMeasuring turns route measurement on or off. Turning it off removes
// every drawn route.
func (c *Controller) SetMeasuring(enabled bool) error {
	return c.do(func() {
		if enabled {
			c.measuring.Enable()
		} else {
			c.measuring.Disable()
			if err := c.routes.TeardownAll(); err != nil {
				c.log.Warn("route teardown incomplete", zap.Error(err))
			}
		}
		c.publishState()
	})
}

// Dispatch feeds an event reported by the browser engine.
func (c *Controller) Dispatch(ev engine.Event) error {
	if !ev.Kind.Known() {
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.Kind == engine.EventMove && ev.Camera == nil {
		return fmt.Errorf("%w: move without camera", ErrInvalidEvent)
	}
	var err error
	if derr := c.do(func() {
		if _, err = c.handle.Dispatch(ev); err != nil {
			return
		}
		switch ev.Kind {
		case engine.EventStyleData, engine.EventStyleError, engine.EventMove:
			c.publishState()
		}
	}); derr != nil {
		return derr
	}
	return err
}

// Snapshot returns the session state.
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.do(func() { snap = c.snapshot() })
	return snap, err
}

// Attach returns the commands that rebuild the engine state in a new
// browser engine, and a channel of every later update. No update is lost or
// repeated between the two. Release the channel with Detach.
func (c *Controller) Attach() ([]engine.Command, Snapshot, chan Update, error) {
	var (
		replay []engine.Command
		snap   Snapshot
		ch     chan Update
	)
	err := c.do(func() {
		replay = c.remote.Replay()
		snap = c.snapshot()
		ch = c.bus.Subscribe()
	})
	return replay, snap, ch, err
}

// Detach releases a channel returned by Attach.
func (c *Controller) Detach(ch chan Update) {
	c.bus.Unsubscribe(ch)
}

func (c *Controller) snapshot() Snapshot {
	layers := make(map[string]string)
	for id := range c.vis {
		if v, ok := c.remote.LayoutProperty(id, engine.PropVisibility); ok {
			layers[id] = fmt.Sprint(v)
		}
	}
	return Snapshot{
		ID:           c.id,
		Visibility:   maps.Clone(c.vis),
		Layers:       layers,
		Style:        c.styles.Current(),
		Satellite:    c.styles.Satellite(),
		StylePending: c.styles.Pending(),
		Measuring:    c.measuring.Active(),
		MeasureState: c.measuring.State().String(),
		Points:       len(c.measuring.Points()),
		Routes:       c.routes.Records(),
		Labels:       c.routes.Labels(),
		Resources:    c.remote.ResourceCount(),
		Camera:       c.remote.Camera(),
	}
}

func (c *Controller) click(ev engine.Event) {
	req, ok := c.measuring.Click(ev.LngLat)
	if !c.measuring.Active() {
		return
	}
	defer c.publishState()
	if !ok {
		return
	}
	c.log.Debug("route requested",
		zap.Uint64("generation", req.Generation),
		zap.Float64s("start", req.Start[:]),
		zap.Float64s("end", req.End[:]))
	c.fetch.Go(func() {
		route, err := c.router.Route(c.ctx, req.Start, req.End)
		c.post(func() { c.routed(req, route, err) })
	})
}

func (c *Controller) routed(req measure.Request, route *routing.Route, err error) {
	current := c.measuring.Complete(req.Generation)
	defer c.publishState()
	if err != nil {
		c.log.Debug("route dropped", zap.Error(err))
		return
	}
	if !current && c.discardStale {
		c.log.Info("stale route discarded", zap.Uint64("generation", req.Generation))
		return
	}
	rec, err := c.routes.Materialize(*route, req.Start, req.End)
	if err != nil {
		c.log.Warn("route materialization failed", zap.Error(err))
		return
	}
	c.log.Debug("route drawn",
		zap.String("route_id", rec.ID),
		zap.String("distance", routeoverlay.FormatDistance(rec.Distance)),
		zap.String("duration", routeoverlay.FormatDuration(rec.Duration)))
}

func (c *Controller) restoreRoutes() {
	if err := c.routes.Restore(); err != nil {
		c.log.Warn("route restore incomplete", zap.Error(err))
	}
}
