package humastar

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = ParseSignals([]byte(`{"overlay":"polos","points":2,"measuring":true,"error":""}`))
	require.NoError(t, err)
	assert.Equal(t, "polos", s.String("overlay"))
	assert.True(t, s.Bool("measuring"))
	assert.True(t, s.Has("error"))
	assert.False(t, s.Has("missing"))

	// Wrong types read as zero values.
	assert.Empty(t, s.String("points"))
	assert.False(t, s.Bool("overlay"))

	_, err = ParseSignals([]byte(`{`))
	assert.Error(t, err)
}

func TestSignalsInput_MustParse(t *testing.T) {
	in := &SignalsInput{RawBody: []byte(`not json`)}
	_, err := in.MustParse()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())

	in = &SignalsInput{RawBody: []byte(`{"measuring":false}`)}
	s, err := in.MustParse()
	require.NoError(t, err)
	assert.True(t, s.Has("measuring"))
}

var sessionDefs = []ActionDef{
	{Rel: "stream", Pattern: "/api/v1/viewer/%s/stream", Method: "GET"},
	{Rel: "switch-style", Pattern: "/api/v1/sessions/%s/style/toggle", Method: "POST", Title: "Switch base style"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: "DELETE", Schema: "/schemas/Empty.json"},
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("abc", sessionDefs)
	require.Len(t, actions, 3)
	assert.Equal(t, "/api/v1/sessions/abc/style/toggle", actions[1].Href)

	assert.Equal(t, `</api/v1/viewer/abc/stream>; rel="stream"; method="GET"`, actions[0].LinkHeader())
	assert.Equal(t, `</api/v1/sessions/abc/style/toggle>; rel="switch-style"; method="POST"; title="Switch base style"`, actions[1].LinkHeader())
	assert.Equal(t, `</api/v1/sessions/abc>; rel="delete"; method="DELETE"; schema="/schemas/Empty.json"`, actions[2].LinkHeader())
}

func TestOnly(t *testing.T) {
	defs := Only(sessionDefs, "delete", "stream")
	require.Len(t, defs, 2)
	assert.Equal(t, "stream", defs[0].Rel, "definition order is kept")
	assert.Equal(t, "delete", defs[1].Rel)

	assert.Empty(t, Only(sessionDefs, "nope"))
}

func TestLinkHelpers(t *testing.T) {
	paths := []string{
		"/api/v1/sessions",
		"/api/v1/sessions/{id}",
		"/api/v1/sessions/{id}/overlays/{overlay}",
		"/api/v1/sessions/{id}/overlays/{overlay}/toggle",
		"/api/v1/sessions/{id}/style/toggle",
	}
	assert.Equal(t, "", ownerOf("/api/v1/sessions", paths))
	assert.Equal(t, "/api/v1/sessions", ownerOf("/api/v1/sessions/{id}", paths))
	assert.Equal(t, "/api/v1/sessions/{id}", ownerOf("/api/v1/sessions/{id}/style/toggle", paths))
	assert.Equal(t, "/api/v1/sessions/{id}/overlays/{overlay}", ownerOf("/api/v1/sessions/{id}/overlays/{overlay}/toggle", paths))

	assert.True(t, isItemOf("/api/v1/sessions/{id}", "/api/v1/sessions"))
	assert.False(t, isItemOf("/api/v1/sessions/{id}/overlays/{overlay}", "/api/v1/sessions/{id}"))

	assert.Equal(t, "style-toggle", subRel("/api/v1/sessions/{id}/style/toggle", "/api/v1/sessions/{id}"))
	assert.Equal(t, "overlays", subRel("/api/v1/sessions/{id}/overlays/{overlay}", "/api/v1/sessions/{id}"))

	params := pathParams("/api/v1/sessions/{id}/overlays/{overlay}", "/api/v1/sessions/s1/overlays/polos")
	assert.Equal(t, map[string]string{"{id}": "s1", "{overlay}": "polos"}, params)
	assert.Nil(t, pathParams("/api/v1/sessions/{id}", "/api/v1/sessions/s1/extra"))

	assert.Equal(t, "/api/v1/sessions/s1/overlays/{overlay}",
		expand("/api/v1/sessions/{id}/overlays/{overlay}", map[string]string{"{id}": "s1"}))
}

type thing struct {
	ID string `json:"id"`
}

type thingOutput struct {
	Body thing
}

type actorThing struct {
	thing
}

func (a actorThing) Actions() []Action {
	return ActionsFor(a.ID, Only(sessionDefs, "delete"))
}

type thingInput struct {
	ID string `path:"id"`
}

func TestLinks(t *testing.T) {
	links := NewLinks("/health", "viewer")
	cfg := huma.DefaultConfig("Links Test", "1.0.0")
	cfg.CreateHooks = nil
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	api := humatest.Wrap(t, humago.New(http.NewServeMux(), cfg))

	ok := func(ctx context.Context, in *EmptyInput) (*thingOutput, error) {
		return &thingOutput{Body: thing{ID: "ok"}}, nil
	}
	huma.Get(api, "/health", ok, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/things", ok, huma.OperationTags("things"))
	huma.Post(api, "/api/v1/things", ok, huma.OperationTags("things"))
	huma.Get(api, "/api/v1/things/{id}", func(ctx context.Context, in *thingInput) (*struct{ Body actorThing }, error) {
		return &struct{ Body actorThing }{Body: actorThing{thing{ID: in.ID}}}, nil
	}, huma.OperationTags("things"))
	huma.Post(api, "/api/v1/things/{id}/parts/rebuild", func(ctx context.Context, in *thingInput) (*thingOutput, error) {
		return &thingOutput{}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/api/v1/viewer/{id}/stream", func(ctx context.Context, in *thingInput) (*thingOutput, error) {
		return &thingOutput{}, nil
	}, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/missing/{id}", func(ctx context.Context, in *thingInput) (*thingOutput, error) {
		return nil, huma.Error404NotFound("no such thing")
	}, huma.OperationTags("things"))
	links.Build(api)

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	got := resp.Header().Values("Link")
	assert.Contains(t, got, `</api/v1/things>; rel="things"`)
	assert.Contains(t, got, `</openapi.json>; rel="service-desc"`)
	assert.Contains(t, got, `</docs>; rel="service-doc"`)
	assert.Equal(t, links.Root(), got)
	for _, l := range got {
		assert.NotContains(t, l, "{id}", "templated paths are reached through their owner")
	}

	got = api.Get("/api/v1/things").Header().Values("Link")
	assert.Contains(t, got, `</api/v1/things/{id}>; rel="item"`)
	assert.Contains(t, got, `</api/v1/things>; rel="create-form"`)
	assert.Contains(t, got, `</health>; rel="up"`)

	got = api.Get("/api/v1/things/t1").Header().Values("Link")
	assert.Contains(t, got, `</api/v1/things>; rel="collection"`)
	assert.Contains(t, got, `</api/v1/things/t1/parts/rebuild>; rel="parts-rebuild"`)
	assert.Contains(t, got, `</api/v1/things/t1>; rel="self"`)
	assert.Contains(t, got, `</api/v1/sessions/t1>; rel="delete"; method="DELETE"; schema="/schemas/Empty.json"`)

	t.Run("documented in OpenAPI", func(t *testing.T) {
		op := api.OpenAPI().Paths["/api/v1/things/{id}"].Get
		require.Contains(t, op.Responses["200"].Links, "collection")
		assert.Equal(t, api.OpenAPI().Paths["/api/v1/things"].Get.OperationID, op.Responses["200"].Links["collection"].OperationID)
	})

	t.Run("skipped tags", func(t *testing.T) {
		got := api.Get("/api/v1/viewer/t1/stream").Header().Values("Link")
		assert.Equal(t, []string{`</api/v1/viewer/t1/stream>; rel="self"`}, got)
	})

	t.Run("errors carry no links", func(t *testing.T) {
		resp := api.Get("/api/v1/missing/m1")
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Empty(t, resp.Header().Values("Link"))
	})
}
