package overlay

import (
	"fmt"
	"maps"
	"slices"

	"github.com/joeblew999/plat-polos/internal/engine"
)

// VisibilityMap is the desired visibility of every overlay, keyed by id.
type VisibilityMap map[string]bool

// NewVisibilityMap returns a map with every catalog overlay hidden.
func NewVisibilityMap(c *Catalog) VisibilityMap {
	vis := make(VisibilityMap, len(c.overlays))
	for _, d := range c.overlays {
		vis[d.ID] = false
	}
	return vis
}

// Set records the desired visibility of id and reports whether it changed.
func (v VisibilityMap) Set(id string, visible bool) (bool, error) {
	cur, ok := v[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOverlay, id)
	}
	v[id] = visible
	return cur != visible, nil
}

// Toggle flips id and returns the new value.
func (v VisibilityMap) Toggle(id string) (bool, error) {
	cur, ok := v[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOverlay, id)
	}
	v[id] = !cur
	return !cur, nil
}

// Visible returns the ids marked visible, sorted.
func (v VisibilityMap) Visible() []string {
	var ids []string
	for _, id := range slices.Sorted(maps.Keys(v)) {
		if v[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns an independent copy.
func (v VisibilityMap) Clone() VisibilityMap {
	return maps.Clone(v)
}

// Reconcile makes the visibility layout property of every existing overlay
// layer match vis. Layers the engine does not have are skipped and nothing is
// ever created. A layer is only written when its current value differs, so a
// second pass over an unchanged map performs no writes. It returns the number
// of layers updated.
func Reconcile(vis VisibilityMap, eng engine.Engine) int {
	n := 0
	for _, id := range slices.Sorted(maps.Keys(vis)) {
		if !eng.HasLayer(id) {
			continue
		}
		want := engine.VisibilityValue(vis[id])
		if cur, ok := eng.LayoutProperty(id, engine.PropVisibility); ok && cur == want {
			continue
		}
		if err := eng.SetLayoutProperty(id, engine.PropVisibility, want); err == nil {
			n++
		}
	}
	return n
}
