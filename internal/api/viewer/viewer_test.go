package viewer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/starfederation/datastar-go/datastar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/humastar"
	"github.com/joeblew999/plat-polos/internal/mapsession"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/routing"
	"github.com/joeblew999/plat-polos/internal/templates"
)

type stubRouter struct{}

func (stubRouter) Route(ctx context.Context, start, end orb.Point) (*routing.Route, error) {
	return &routing.Route{Geometry: orb.LineString{start, end}, Distance: 12345, Duration: 5400}, nil
}

// streamRecorder is a ResponseWriter safe to read while a stream writes.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
}

func (r *streamRecorder) Header() http.Header { return r.header }
func (r *streamRecorder) WriteHeader(int)     {}
func (r *streamRecorder) Flush()              {}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func newHandler(t *testing.T, linger time.Duration) (*Handler, *mapsession.Manager) {
	t.Helper()
	r, err := templates.New()
	require.NoError(t, err)
	m := mapsession.NewManager(overlay.Default(), stubRouter{}, r, mapsession.Options{
		Styles: overlay.Styles{
			Base:      engine.Style{Name: "base", URL: "https://example.test/base.json"},
			Satellite: engine.Style{Name: "satellite", URL: "https://example.test/satellite.json"},
		},
		Camera:    engine.DefaultCamera(),
		PublicURL: "https://geo.test",
	}, zap.NewNop())
	t.Cleanup(m.Close)
	h := New(m, r, linger, zap.NewNop())
	t.Cleanup(h.Close)
	return h, m
}

func newAPI(t *testing.T, h *Handler) humatest.TestAPI {
	t.Helper()
	api := humatest.Wrap(t, humago.New(http.NewServeMux(), huma.DefaultConfig("Viewer Test", "1.0.0")))
	h.RegisterRoutes(api)
	return api
}

func mount(t *testing.T, m *mapsession.Manager) *mapsession.Controller {
	t.Helper()
	c, err := m.Mount(context.Background())
	require.NoError(t, err)
	return c
}

func TestPanelData(t *testing.T) {
	c := overlay.Default()
	snap := mapsession.Snapshot{
		ID:         "s1",
		Visibility: map[string]bool{"polos": true},
		Measuring:  true,
		Points:     1,
	}
	p := NewPanelData(c, snap)

	assert.Equal(t, "s1", p.SessionID)
	assert.Len(t, p.Groups, len(c.Groups()))

	var items int
	for _, g := range p.Groups {
		for _, it := range g.Items {
			items++
			assert.Equal(t, it.ID == "polos", it.Visible, it.ID)
		}
	}
	assert.Equal(t, 13, items)

	r, err := templates.New()
	require.NoError(t, err)
	html, err := r.Render(panelTemplate, p)
	require.NoError(t, err)
	assert.Contains(t, html, `id="toggle-polos"`)
	assert.Contains(t, html, "/api/v1/viewer/s1/toggle")
	assert.Contains(t, html, "Haz clic en el punto de destino")
}

func TestPump(t *testing.T) {
	h, m := newHandler(t, 0)
	c := mount(t, m)
	require.NoError(t, c.SetVisible("polos", true))

	rec := &streamRecorder{header: http.Header{}}
	sse := humastar.SSE{ServerSentEventGenerator: datastar.NewSSE(rec, httptest.NewRequest(http.MethodGet, "/", nil))}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.pump(ctx, sse, c)
		close(done)
	}()

	t.Run("replay and panel first", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return strings.Contains(rec.String(), `id="overlay-panel"`)
		}, 2*time.Second, 10*time.Millisecond)
		body := rec.String()
		assert.Contains(t, body, "window.platGeo.apply")
		assert.Contains(t, body, `"op":"setStyle"`)
		assert.Contains(t, body, "pmtiles://https://geo.test/tiles/polos.pmtiles")
		assert.Less(t, strings.Index(body, `"op":"setStyle"`), strings.Index(body, `id="overlay-panel"`))
	})

	t.Run("updates follow", func(t *testing.T) {
		require.NoError(t, c.SetMeasuring(true))
		require.Eventually(t, func() bool {
			return strings.Contains(rec.String(), `"measuring":true`)
		}, 2*time.Second, 10*time.Millisecond)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestPump_SessionUnmounted(t *testing.T) {
	h, m := newHandler(t, 0)
	c := mount(t, m)

	rec := &streamRecorder{header: http.Header{}}
	sse := humastar.SSE{ServerSentEventGenerator: datastar.NewSSE(rec, httptest.NewRequest(http.MethodGet, "/", nil))}

	done := make(chan struct{})
	go func() {
		h.pump(context.Background(), sse, c)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.String(), `id="overlay-panel"`)
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Unmount(c.ID()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream outlived its session")
	}
}

func TestActions(t *testing.T) {
	h, m := newHandler(t, 0)
	api := newAPI(t, h)
	c := mount(t, m)
	base := "/api/v1/viewer/" + c.ID()

	snap := func() mapsession.Snapshot {
		s, err := c.Snapshot()
		require.NoError(t, err)
		return s
	}

	t.Run("toggle", func(t *testing.T) {
		resp := api.Post(base+"/toggle", map[string]any{"overlay": "polos"})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		assert.True(t, snap().Visibility["polos"])

		assert.Equal(t, http.StatusNotFound, api.Post(base+"/toggle", map[string]any{"overlay": "nope"}).Code)
		assert.Equal(t, http.StatusBadRequest, api.Post(base+"/toggle", map[string]any{}).Code)
	})

	t.Run("measure", func(t *testing.T) {
		resp := api.Post(base+"/measure", map[string]any{"measuring": true})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, snap().Measuring)

		assert.Equal(t, http.StatusBadRequest, api.Post(base+"/measure", map[string]any{}).Code)
	})

	t.Run("style", func(t *testing.T) {
		resp := api.Post(base+"/style", map[string]any{})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, snap().StylePending)

		resp = api.Post(base+"/style", map[string]any{})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), "Cambio de estilo en curso")
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := api.Post("/api/v1/viewer/nope/toggle", map[string]any{"overlay": "polos"})
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/viewer/nope/stream").Code)
	})
}

func TestPage(t *testing.T) {
	h, m := newHandler(t, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/viewer", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, m.Len())
	id := m.IDs()[0]

	body := rec.Body.String()
	assert.Contains(t, body, "/api/v1/viewer/"+id+"/stream")
	assert.Contains(t, body, `"sessionId":"`+id+`"`)
	assert.Contains(t, body, `id="overlay-panel"`)
	assert.Contains(t, body, `id="route-labels"`)
}

func TestIdleSessionsAreUnmounted(t *testing.T) {
	h, m := newHandler(t, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/viewer", nil))
	require.Equal(t, 1, m.Len())
	abandoned := m.IDs()[0]

	kept := mount(t, m)
	h.track(kept.ID(), 1)

	require.Eventually(t, func() bool {
		_, err := m.Get(abandoned)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	_, err := m.Get(kept.ID())
	assert.NoError(t, err, "a session with a stream stays mounted")

	h.track(kept.ID(), -1)
	require.Eventually(t, func() bool {
		return m.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
