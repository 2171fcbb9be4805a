package overlay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownOverlay is returned for ids outside the catalog.
var ErrUnknownOverlay = errors.New("unknown overlay")

// Catalog is the ordered, immutable set of overlay descriptors.
type Catalog struct {
	overlays []Descriptor
	index    map[string]int
}

// catalogFile is the YAML layout of a catalog file.
type catalogFile struct {
	Overlays []Descriptor `yaml:"overlays"`
}

// NewCatalog validates descriptors and builds a catalog. Ids must be unique
// and overlays sharing a source must share its dataset.
func NewCatalog(descriptors ...Descriptor) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(descriptors))}
	datasets := make(map[string]string)
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("overlay %q defined twice", d.ID)
		}
		if ds, ok := datasets[d.SourceID()]; ok && ds != d.Dataset {
			return nil, fmt.Errorf("overlay %q: source %q already bound to dataset %q", d.ID, d.SourceID(), ds)
		}
		datasets[d.SourceID()] = d.Dataset
		c.index[d.ID] = len(c.overlays)
		c.overlays = append(c.overlays, d)
	}
	return c, nil
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(f.Overlays) == 0 {
		return nil, fmt.Errorf("catalog %s has no overlays", path)
	}
	return NewCatalog(f.Overlays...)
}

// MarshalYAML writes the catalog in the same layout LoadCatalog reads.
func (c *Catalog) MarshalYAML() (any, error) {
	return catalogFile{Overlays: c.overlays}, nil
}

// Get returns the descriptor for id.
func (c *Catalog) Get(id string) (Descriptor, bool) {
	i, ok := c.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return c.overlays[i], true
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// All returns the descriptors in catalog order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.overlays))
	copy(out, c.overlays)
	return out
}

// IDs returns overlay ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.overlays))
	for i, d := range c.overlays {
		ids[i] = d.ID
	}
	return ids
}

// Datasets returns the distinct dataset names in catalog order.
func (c *Catalog) Datasets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range c.overlays {
		if !seen[d.Dataset] {
			seen[d.Dataset] = true
			out = append(out, d.Dataset)
		}
	}
	return out
}

// Group is a titled panel section.
type Group struct {
	Title    string
	Overlays []Descriptor
}

// Groups returns overlays grouped by panel section, in first-seen order.
func (c *Catalog) Groups() []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, d := range c.overlays {
		i, ok := pos[d.Group]
		if !ok {
			i = len(groups)
			pos[d.Group] = i
			groups = append(groups, Group{Title: d.Group})
		}
		groups[i].Overlays = append(groups[i].Overlays, d)
	}
	return groups
}
