package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/humastar"
	"github.com/joeblew999/plat-polos/internal/mapsession"
)

// sessionActions are the state-dependent actions of a session resource.
var sessionActions = []humastar.ActionDef{
	{Rel: "stream", Pattern: "/api/v1/viewer/%s/stream", Method: "GET", Title: "Engine command stream"},
	{Rel: "dispatch", Pattern: "/api/v1/sessions/%s/events", Method: "POST", Title: "Report an engine event"},
	{Rel: "switch-style", Pattern: "/api/v1/sessions/%s/style/toggle", Method: "POST", Title: "Switch base style"},
	{Rel: "start-measuring", Pattern: "/api/v1/sessions/%s/measuring", Method: "PUT", Title: "Measure a route"},
	{Rel: "stop-measuring", Pattern: "/api/v1/sessions/%s/measuring", Method: "PUT", Title: "Stop measuring"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: "DELETE", Title: "Unmount session"},
}

// SessionBody is a session snapshot with its available actions.
type SessionBody struct {
	mapsession.Snapshot
}

// Actions implements humastar.Actor.
func (b SessionBody) Actions() []humastar.Action {
	rels := []string{"stream", "dispatch", "delete"}
	if !b.StylePending {
		rels = append(rels, "switch-style")
	}
	if b.Measuring {
		rels = append(rels, "stop-measuring")
	} else {
		rels = append(rels, "start-measuring")
	}
	return humastar.ActionsFor(b.ID, humastar.Only(sessionActions, rels...))
}

type SessionOutput struct {
	Body SessionBody
}

type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type SessionListBody struct {
	Sessions []string `json:"sessions" doc:"Mounted session ids"`
}

type SetVisibleInput struct {
	SessionIDInput
	Overlay string `path:"overlay" doc:"Overlay ID" example:"polos"`
	Body    struct {
		Visible bool `json:"visible" doc:"Desired visibility"`
	}
}

type ToggleInput struct {
	SessionIDInput
	Overlay string `path:"overlay" doc:"Overlay ID" example:"polos"`
}

type MeasuringInput struct {
	SessionIDInput
	Body struct {
		Enabled bool `json:"enabled" doc:"Whether clicks are taken as route endpoints"`
	}
}

// EventBody is an engine event reported by the browser.
type EventBody struct {
	Kind     string           `json:"kind" enum:"load,styledata,styleerror,click,mouseenter,mousemove,mouseleave,move" doc:"Engine event kind"`
	LayerID  string           `json:"layerId,omitempty" doc:"Layer the pointer event is scoped to"`
	LngLat   []float64        `json:"lngLat,omitempty" minItems:"2" maxItems:"2" doc:"Pointer position as [lon, lat]"`
	Features []engine.Feature `json:"features,omitempty" doc:"Features under the pointer"`
	Camera   *engine.Camera   `json:"camera,omitempty" doc:"Camera after a move"`
	Error    string           `json:"error,omitempty" doc:"Style load failure reason"`
}

// Event converts the body into an engine event.
func (b EventBody) Event() engine.Event {
	ev := engine.Event{
		Kind:     engine.EventKind(b.Kind),
		LayerID:  b.LayerID,
		Features: b.Features,
		Camera:   b.Camera,
		Error:    b.Error,
	}
	if len(b.LngLat) == 2 {
		ev.LngLat = orb.Point{b.LngLat[0], b.LngLat[1]}
	}
	return ev
}

type EventInput struct {
	SessionIDInput
	Body EventBody
}

// SessionHandler exposes map sessions over REST.
type SessionHandler struct {
	sessions *mapsession.Manager
}

func NewSessionHandler(sessions *mapsession.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("sessions")
	huma.Get(api, "/api/v1/sessions", h.ListSessions, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "mount-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Mount a session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, h.MountSession)
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "unmount-session",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sessions/{id}",
		Summary:       "Unmount a session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusNoContent,
	}, h.UnmountSession)
	huma.Put(api, "/api/v1/sessions/{id}/overlays/{overlay}", h.SetVisible, tags)
	huma.Post(api, "/api/v1/sessions/{id}/overlays/{overlay}/toggle", h.Toggle, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "switch-style",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/style/toggle",
		Summary:       "Switch base style",
		Description:   "Starts swapping between the thematic and satellite styles. Fails with 409 while a switch is loading.",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusAccepted,
	}, h.SwitchStyle)
	huma.Put(api, "/api/v1/sessions/{id}/measuring", h.SetMeasuring, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "dispatch-event",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/events",
		Summary:       "Report an engine event",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusNoContent,
	}, h.Dispatch)
}

func (h *SessionHandler) ListSessions(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body SessionListBody }, error) {
	return &struct{ Body SessionListBody }{Body: SessionListBody{Sessions: h.sessions.IDs()}}, nil
}

func (h *SessionHandler) MountSession(ctx context.Context, input *humastar.EmptyInput) (*SessionOutput, error) {
	c, err := h.sessions.Mount(ctx)
	if err != nil {
		return nil, statusError(err)
	}
	return snapshotOutput(c)
}

func (h *SessionHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return snapshotOutput(c)
}

func (h *SessionHandler) UnmountSession(ctx context.Context, input *SessionIDInput) (*struct{}, error) {
	if err := h.sessions.Unmount(input.ID); err != nil {
		return nil, statusError(err)
	}
	return nil, nil
}

func (h *SessionHandler) SetVisible(ctx context.Context, input *SetVisibleInput) (*SessionOutput, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	if err := c.SetVisible(input.Overlay, input.Body.Visible); err != nil {
		return nil, statusError(err)
	}
	return snapshotOutput(c)
}

func (h *SessionHandler) Toggle(ctx context.Context, input *ToggleInput) (*SessionOutput, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	if _, err := c.ToggleOverlay(input.Overlay); err != nil {
		return nil, statusError(err)
	}
	return snapshotOutput(c)
}

func (h *SessionHandler) SwitchStyle(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	if err := c.SwitchStyle(); err != nil {
		return nil, statusError(err)
	}
	return snapshotOutput(c)
}

func (h *SessionHandler) SetMeasuring(ctx context.Context, input *MeasuringInput) (*SessionOutput, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	if err := c.SetMeasuring(input.Body.Enabled); err != nil {
		return nil, statusError(err)
	}
	return snapshotOutput(c)
}

func (h *SessionHandler) Dispatch(ctx context.Context, input *EventInput) (*struct{}, error) {
	c, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	if err := c.Dispatch(input.Body.Event()); err != nil {
		return nil, statusError(err)
	}
	return nil, nil
}

func snapshotOutput(c *mapsession.Controller) (*SessionOutput, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, statusError(err)
	}
	return &SessionOutput{Body: SessionBody{Snapshot: snap}}, nil
}
