package overlay

import (
	"errors"
	"fmt"

	"github.com/joeblew999/plat-polos/internal/engine"
)

// Register adds the source and hidden layer of every catalog overlay the
// engine does not already hold. It is safe to call repeatedly, notably after
// a style swap has discarded everything.
func Register(c *Catalog, eng engine.Engine) error {
	var errs []error
	for _, d := range c.overlays {
		if !eng.HasSource(d.SourceID()) {
			if err := eng.AddSource(d.SourceID(), d.EngineSource()); err != nil {
				errs = append(errs, fmt.Errorf("overlay %s: %w", d.ID, err))
				continue
			}
		}
		if eng.HasLayer(d.ID) {
			continue
		}
		if err := eng.AddLayer(d.EngineLayer()); err != nil {
			errs = append(errs, fmt.Errorf("overlay %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}
