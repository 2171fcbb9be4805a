package viewer

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/routeoverlay"
)

const pageTemplate = "viewer"

// BridgeConfig is handed to the in-page engine bridge.
type BridgeConfig struct {
	SessionID string     `json:"sessionId"`
	EventsURL string     `json:"eventsUrl"`
	Center    [2]float64 `json:"center"`
	Zoom      float64    `json:"zoom"`
}

// PageData feeds the viewer page template.
type PageData struct {
	SessionID string
	StreamURL string
	Panel     PanelData
	Labels    []routeoverlay.Label
	Bridge    BridgeConfig
}

// ServeHTTP mounts a fresh session and renders the viewer page bound to it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Mount(r.Context())
	if err != nil {
		h.log.Error("mount failed", zap.Error(err))
		http.Error(w, "map session unavailable", http.StatusServiceUnavailable)
		return
	}
	// A page that never opens its stream is reclaimed like an abandoned one.
	h.track(c.ID(), 0)

	snap, err := c.Snapshot()
	if err != nil {
		http.Error(w, "map session unavailable", http.StatusServiceUnavailable)
		return
	}

	data := PageData{
		SessionID: snap.ID,
		StreamURL: "/api/v1/viewer/" + snap.ID + "/stream",
		Panel:     NewPanelData(h.sessions.Catalog(), snap),
		Labels:    snap.Labels,
		Bridge: BridgeConfig{
			SessionID: snap.ID,
			EventsURL: "/api/v1/sessions/" + snap.ID + "/events",
			Center:    [2]float64{snap.Camera.Center.Lon(), snap.Camera.Center.Lat()},
			Zoom:      snap.Camera.Zoom,
		},
	}

	var buf bytes.Buffer
	if err := h.Renderer.RenderTo(&buf, pageTemplate, data); err != nil {
		h.log.Error("render viewer", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
