// Package viewer contains the Datastar SSE handlers and page of the map
// viewer. The browser map is a thin executor: the stream sends it engine
// commands as scripts, and it reports engine events back through the REST
// events endpoint.
package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/humastar"
	"github.com/joeblew999/plat-polos/internal/mapsession"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/templates"
)

const (
	panelTemplate  = "overlay-panel"
	labelsTemplate = "route-labels"
)

// Handler serves the viewer page, its SSE stream and its panel actions.
type Handler struct {
	humastar.Handler
	sessions *mapsession.Manager
	log      *zap.Logger

	// linger is how long a session survives without a connected stream.
	// Zero keeps sessions until they are unmounted explicitly.
	linger time.Duration

	mu      sync.Mutex
	streams map[string]int
	timers  map[string]idleTimer
	seq     uint64
}

type idleTimer struct {
	t   *time.Timer
	seq uint64
}

// New creates the viewer handler.
func New(sessions *mapsession.Manager, renderer *templates.Renderer, linger time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		log:      log.Named("viewer"),
		linger:   linger,
		streams:  make(map[string]int),
		timers:   make(map[string]idleTimer),
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Get(api, "/api/v1/viewer/{id}/stream", h.Events, tags)
	huma.Post(api, "/api/v1/viewer/{id}/toggle", h.Toggle, tags)
	huma.Post(api, "/api/v1/viewer/{id}/measure", h.Measure, tags)
	huma.Post(api, "/api/v1/viewer/{id}/style", h.Style, tags)
}

type StreamInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type ActionInput struct {
	ID      string `path:"id" doc:"Session ID"`
	RawBody []byte
}

// Events streams the session to the browser: a full replay first, then
// every engine command and state change. A stream dropped by the session
// for falling behind resynchronizes with a fresh replay.
func (h *Handler) Events(ctx context.Context, input *StreamInput) (*huma.StreamResponse, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("session not found", err)
	}
	return h.Stream(func(sse humastar.SSE) {
		h.track(c.ID(), 1)
		defer h.track(c.ID(), -1)
		h.pump(ctx, sse, c)
	}), nil
}

func (h *Handler) pump(ctx context.Context, sse humastar.SSE, c *mapsession.Controller) {
	log := h.log.With(zap.String("session_id", c.ID()))
	for {
		replay, snap, ch, err := c.Attach()
		if err != nil {
			_ = sse.Error("session closed")
			return
		}
		resync := h.forward(ctx, sse, c, replay, snap, ch)
		c.Detach(ch)
		if !resync {
			return
		}
		log.Info("stream fell behind, replaying")
	}
}

// forward reports whether the stream should resynchronize.
func (h *Handler) forward(ctx context.Context, sse humastar.SSE, c *mapsession.Controller, replay []engine.Command, snap mapsession.Snapshot, ch chan mapsession.Update) bool {
	for _, cmd := range replay {
		if err := h.exec(sse, cmd); err != nil {
			return false
		}
	}
	if err := h.state(sse, snap); err != nil {
		return false
	}
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.Done():
			return false
		case u, ok := <-ch:
			if !ok {
				return true
			}
			var err error
			switch {
			case u.Command != nil:
				err = h.exec(sse, *u.Command)
			case u.State != nil:
				err = h.state(sse, *u.State)
			}
			if err != nil {
				h.log.Debug("stream write failed", zap.String("session_id", c.ID()), zap.Error(err))
				return false
			}
		}
	}
}

func (h *Handler) exec(sse humastar.SSE, cmd engine.Command) error {
	script, err := cmd.Script()
	if err != nil {
		return err
	}
	return sse.ExecuteScript(script)
}

func (h *Handler) state(sse humastar.SSE, snap mapsession.Snapshot) error {
	panel, err := h.Fragment(panelTemplate, NewPanelData(h.sessions.Catalog(), snap))
	if err != nil {
		return err
	}
	if err := sse.Replace(panel, "#overlay-panel"); err != nil {
		return err
	}
	labels, err := h.Fragment(labelsTemplate, snap.Labels)
	if err != nil {
		return err
	}
	if err := sse.Replace(labels, "#route-labels"); err != nil {
		return err
	}
	return sse.Signals(signals(snap))
}

// Toggle flips the overlay named by the "overlay" signal.
func (h *Handler) Toggle(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	c, signals, err := h.action(input)
	if err != nil {
		return nil, err
	}
	id := signals.String("overlay")
	if id == "" {
		return nil, huma.Error400BadRequest("overlay is required")
	}
	if _, err := c.ToggleOverlay(id); err != nil {
		if errors.Is(err, overlay.ErrUnknownOverlay) {
			return nil, huma.Error404NotFound("overlay not found", err)
		}
		return h.failed(err), nil
	}
	return h.ok(), nil
}

// Measure turns measuring on or off from the "measuring" signal.
func (h *Handler) Measure(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	c, signals, err := h.action(input)
	if err != nil {
		return nil, err
	}
	if !signals.Has("measuring") {
		return nil, huma.Error400BadRequest("measuring is required")
	}
	if err := c.SetMeasuring(signals.Bool("measuring")); err != nil {
		return h.failed(err), nil
	}
	return h.ok(), nil
}

// Style starts a base style switch.
func (h *Handler) Style(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	c, _, err := h.action(input)
	if err != nil {
		return nil, err
	}
	if err := c.SwitchStyle(); err != nil {
		return h.failed(err), nil
	}
	return h.ok(), nil
}

func (h *Handler) action(input *ActionInput) (*mapsession.Controller, humastar.Signals, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, nil, huma.Error404NotFound("session not found", err)
	}
	signals, err := (&humastar.SignalsInput{RawBody: input.RawBody}).MustParse()
	if err != nil {
		return nil, nil, err
	}
	return c, signals, nil
}

func (h *Handler) ok() *huma.StreamResponse {
	return h.Stream(func(sse humastar.SSE) {
		_ = sse.Signals(map[string]any{"error": ""})
	})
}

func (h *Handler) failed(err error) *huma.StreamResponse {
	msg := err.Error()
	switch {
	case errors.Is(err, overlay.ErrSwitchPending):
		msg = "Cambio de estilo en curso"
	case errors.Is(err, mapsession.ErrClosed):
		msg = "Sesión cerrada"
	}
	return h.Stream(func(sse humastar.SSE) {
		_ = sse.Error(msg)
	})
}

// track counts the streams attached to a session. When the last one leaves,
// the session is unmounted after the linger period unless a stream returns.
func (h *Handler) track(id string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.streams[id] + delta
	if n > 0 {
		h.streams[id] = n
	} else {
		delete(h.streams, id)
	}
	if it, ok := h.timers[id]; ok {
		it.t.Stop()
		delete(h.timers, id)
	}
	if n > 0 || h.linger <= 0 {
		return
	}
	h.seq++
	seq := h.seq
	h.timers[id] = idleTimer{t: time.AfterFunc(h.linger, func() { h.expire(id, seq) }), seq: seq}
}

func (h *Handler) expire(id string, seq uint64) {
	h.mu.Lock()
	it, ok := h.timers[id]
	if !ok || it.seq != seq || h.streams[id] > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.timers, id)
	h.mu.Unlock()

	if err := h.sessions.Unmount(id); err == nil {
		h.log.Info("idle session unmounted", zap.String("session_id", id), zap.Duration("linger", h.linger))
	}
}

// Close stops pending idle timers.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, it := range h.timers {
		it.t.Stop()
		delete(h.timers, id)
	}
}
