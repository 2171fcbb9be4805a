// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/humastar"
	"github.com/joeblew999/plat-polos/internal/mapsession"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Sessions *mapsession.Manager
	Tiles    *service.TileService
}

// Types

type OverlayIDInput struct {
	ID string `path:"id" doc:"Overlay ID" example:"polos"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type TileCheckBody struct {
	OK       bool                     `json:"ok" doc:"Whether every overlay dataset is servable"`
	Datasets []string                 `json:"datasets" doc:"Datasets the catalog references"`
	Problems []service.DatasetProblem `json:"problems" doc:"One entry per failing dataset"`
}

// APIHandler holds the catalog and tile handlers. Methods named Register*
// are discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterOverlays registers overlay catalog routes.
func (h *APIHandler) RegisterOverlays(api huma.API) {
	huma.Get(api, "/api/v1/overlays", h.ListOverlays, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/overlays/{id}", h.GetOverlay, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/styles", h.GetStyles, huma.OperationTags("overlays"))
}

// RegisterTiles registers tile listing routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/check", h.CheckTiles, huma.OperationTags("tiles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) ListOverlays(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body []overlay.Descriptor }, error) {
	return &struct{ Body []overlay.Descriptor }{Body: h.svc.Sessions.Catalog().All()}, nil
}

func (h *APIHandler) GetOverlay(ctx context.Context, input *OverlayIDInput) (*struct{ Body overlay.Descriptor }, error) {
	d, ok := h.svc.Sessions.Catalog().Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("overlay not found")
	}
	return &struct{ Body overlay.Descriptor }{Body: d}, nil
}

func (h *APIHandler) GetStyles(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body overlay.Styles }, error) {
	return &struct{ Body overlay.Styles }{Body: h.svc.Sessions.Options().Styles}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body []service.TileFile }, error) {
	if h.svc.Tiles == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tiles.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("list tiles", err)
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

func (h *APIHandler) CheckTiles(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body TileCheckBody }, error) {
	datasets := h.svc.Sessions.Catalog().Datasets()
	body := TileCheckBody{Datasets: datasets, Problems: []service.DatasetProblem{}}
	if h.svc.Tiles != nil {
		if p := h.svc.Tiles.Check(datasets); p != nil {
			body.Problems = p
		}
	}
	body.OK = len(body.Problems) == 0
	return &struct{ Body TileCheckBody }{Body: body}, nil
}

// statusError maps session and overlay errors to HTTP problems.
func statusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mapsession.ErrSessionNotFound):
		return huma.Error404NotFound("session not found", err)
	case errors.Is(err, overlay.ErrUnknownOverlay):
		return huma.Error404NotFound("overlay not found", err)
	case errors.Is(err, overlay.ErrSwitchPending):
		return huma.Error409Conflict("style switch already pending", err)
	case errors.Is(err, mapsession.ErrInvalidEvent):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, mapsession.ErrClosed), errors.Is(err, engine.ErrClosed):
		return huma.NewError(http.StatusGone, "session closed", err)
	default:
		return huma.Error500InternalServerError("session operation failed", err)
	}
}
