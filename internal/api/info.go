package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-polos/internal/humastar"
	"github.com/joeblew999/plat-polos/internal/mapsession"
)

type InfoHandler struct {
	dataDir    string
	routingURL string
	sessions   *mapsession.Manager
}

func NewInfoHandler(dataDir, routingURL string, sessions *mapsession.Manager) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, routingURL: routingURL, sessions: sessions}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	PublicURL  string   `json:"public_url" doc:"Base URL archives are served from"`
	RoutingURL string   `json:"routing_url" doc:"Routing service base URL"`
	Overlays   int      `json:"overlays" doc:"Overlays in the catalog"`
	Sessions   int      `json:"sessions" doc:"Mounted map sessions"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body InfoBody }, error) {
	features := []string{"pmtiles", "overlays", "satellite", "routing"}
	if h.sessions.Options().DiscardStaleRoutes {
		features = append(features, "discard-stale-routes")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-polos",
		Version:    "0.1.0",
		DataDir:    h.dataDir,
		PublicURL:  h.sessions.Options().PublicURL,
		RoutingURL: h.routingURL,
		Overlays:   len(h.sessions.Catalog().IDs()),
		Sessions:   h.sessions.Len(),
		Features:   features,
	}}, nil
}
