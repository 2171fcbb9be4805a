package viewer

import (
	"github.com/joeblew999/plat-polos/internal/mapsession"
	"github.com/joeblew999/plat-polos/internal/overlay"
)

// PanelItem is one toggle of the overlay panel.
type PanelItem struct {
	ID      string
	Kind    overlay.Kind
	Color   string
	Title   string
	Visible bool
}

// PanelGroup is a titled section of the overlay panel.
type PanelGroup struct {
	Title string
	Items []PanelItem
}

// PanelData feeds the overlay-panel template.
type PanelData struct {
	SessionID    string
	Groups       []PanelGroup
	Measuring    bool
	StylePending bool
	Satellite    bool
	Points       int
}

// NewPanelData builds the panel for a session snapshot.
func NewPanelData(c *overlay.Catalog, snap mapsession.Snapshot) PanelData {
	p := PanelData{
		SessionID:    snap.ID,
		Measuring:    snap.Measuring,
		StylePending: snap.StylePending,
		Satellite:    snap.Satellite,
		Points:       snap.Points,
	}
	for _, g := range c.Groups() {
		group := PanelGroup{Title: g.Title}
		for _, d := range g.Overlays {
			group.Items = append(group.Items, PanelItem{
				ID:      d.ID,
				Kind:    d.Kind,
				Color:   d.Color,
				Title:   d.Title,
				Visible: snap.Visibility[d.ID],
			})
		}
		p.Groups = append(p.Groups, group)
	}
	return p
}

// signals mirrors the session state into Datastar signals.
func signals(snap mapsession.Snapshot) map[string]any {
	return map[string]any{
		"measuring":    snap.Measuring,
		"stylePending": snap.StylePending,
		"satellite":    snap.Satellite,
		"points":       snap.Points,
		"routes":       len(snap.Routes),
	}
}
