package overlay

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/engine"
)

// ErrSwitchPending is returned by Toggle while a style load is in flight.
var ErrSwitchPending = errors.New("style switch already pending")

// Styles names the two base themes the switcher alternates between.
type Styles struct {
	Base      engine.Style `yaml:"base" json:"base" doc:"Default thematic style"`
	Satellite engine.Style `yaml:"satellite" json:"satellite" doc:"Satellite imagery style"`
}

// StyleSwitcher swaps the base style of an engine and restores the overlays
// once the new style has loaded.
type StyleSwitcher struct {
	h       *engine.Handle
	catalog *Catalog
	vis     VisibilityMap
	styles  Styles
	log     *zap.Logger

	satellite bool
	pending   bool
	loadSub   engine.Subscription
	errSub    engine.Subscription

	onReload []func()
}

// NewStyleSwitcher returns a switcher for h. vis is read when the new style
// has loaded, not when the switch starts.
func NewStyleSwitcher(h *engine.Handle, c *Catalog, vis VisibilityMap, styles Styles, log *zap.Logger) *StyleSwitcher {
	return &StyleSwitcher{
		h:         h,
		catalog:   c,
		vis:       vis,
		styles:    styles,
		log:       log,
		satellite: h.Style() == styles.Satellite,
	}
}

// OnReload registers fn to run after the overlays were restored on a new
// style.
func (s *StyleSwitcher) OnReload(fn func()) {
	s.onReload = append(s.onReload, fn)
}

// Toggle starts loading the other style.
func (s *StyleSwitcher) Toggle() error {
	if s.pending {
		s.log.Info("style switch ignored, load in flight")
		return ErrSwitchPending
	}
	next := s.styles.Satellite
	if s.satellite {
		next = s.styles.Base
	}
	if err := s.h.SetStyle(next); err != nil {
		return fmt.Errorf("switch to %s: %w", next.Name, err)
	}
	s.pending = true
	ev := s.h.Events()
	s.loadSub = ev.Once(engine.EventStyleData, "", func(engine.Event) { s.loaded(next) })
	s.errSub = ev.Once(engine.EventStyleError, "", func(e engine.Event) { s.failed(next, e.Error) })
	s.log.Debug("style switch started", zap.String("style", next.Name))
	return nil
}

func (s *StyleSwitcher) loaded(style engine.Style) {
	s.h.Events().Off(s.errSub)
	s.pending = false
	s.satellite = style == s.styles.Satellite

	if err := Register(s.catalog, s.h); err != nil {
		s.log.Warn("overlay re-registration incomplete", zap.Error(err))
	}
	n := Reconcile(s.vis, s.h)
	s.log.Debug("style loaded", zap.String("style", style.Name), zap.Int("shown", n))
	for _, fn := range s.onReload {
		fn()
	}
}

func (s *StyleSwitcher) failed(style engine.Style, reason string) {
	s.h.Events().Off(s.loadSub)
	s.pending = false
	s.log.Warn("style load failed, keeping previous style",
		zap.String("style", style.Name),
		zap.String("current", s.h.Style().Name),
		zap.String("error", reason))
}

// Current returns the active style.
func (s *StyleSwitcher) Current() engine.Style { return s.h.Style() }

// Pending reports whether a switch is waiting for the engine.
func (s *StyleSwitcher) Pending() bool { return s.pending }

// Satellite reports whether the satellite style is active.
func (s *StyleSwitcher) Satellite() bool { return s.satellite }
