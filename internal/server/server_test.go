package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/overlay"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "tiles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tiles", "polos.pmtiles"), []byte("0123456789"), 0o644))

	srv, err := New(Config{
		Host:    "0.0.0.0",
		Port:    "8086",
		DataDir: dataDir,
		Styles: overlay.Styles{
			Base:      engine.Style{Name: "base", URL: "https://example.test/base.json"},
			Satellite: engine.Style{Name: "satellite", URL: "https://example.test/satellite.json"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, dataDir
}

func serve(srv *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestTiles(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("range request", func(t *testing.T) {
		rec := serve(srv, http.MethodGet, "/tiles/polos.pmtiles", http.Header{"Range": {"bytes=2-5"}})
		require.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "2345", rec.Body.String())
		assert.Equal(t, "application/vnd.pmtiles", rec.Header().Get("Content-Type"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Range")
	})

	t.Run("preflight", func(t *testing.T) {
		rec := serve(srv, http.MethodOptions, "/tiles/polos.pmtiles", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Range", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Empty(t, rec.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/tiles/nope.pmtiles", nil).Code)
	})
}

func TestCheckTiles(t *testing.T) {
	srv, _ := newTestServer(t)

	problems := srv.CheckTiles()
	require.NotEmpty(t, problems)
	byDataset := map[string]string{}
	for _, p := range problems {
		byDataset[p.Dataset] = p.Problem
	}
	assert.NotEqual(t, "archive missing", byDataset["polos"], "a present but unreadable archive is reported differently")
	assert.Contains(t, byDataset, "polos")
}

func TestRoot(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "plat-polos", body["service"])
	assert.Equal(t, float64(0), body["sessions"])
	assert.Contains(t, rec.Header().Values("Link"), `</openapi.json>; rel="describedby"`)

	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/nope", nil).Code)
}

func TestViewerPage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, 1, srv.Sessions().Len())

	id := srv.Sessions().IDs()[0]
	body := rec.Body.String()
	assert.Contains(t, body, "/api/v1/viewer/"+id+"/stream")
	assert.Contains(t, body, "window.platGeo")
}

func copyTemplates(t *testing.T, webDir string) string {
	t.Helper()
	dst := filepath.Join(webDir, "templates")
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "fragments"), 0o755))
	files, err := filepath.Glob(filepath.Join("..", "templates", "fragments", "*.html"))
	require.NoError(t, err)
	files = append(files, filepath.Join("..", "templates", "viewer.html"))
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		rel, err := filepath.Rel(filepath.Join("..", "templates"), f)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dst, rel), b, 0o644))
	}
	return filepath.Join(dst, "viewer.html")
}

func TestViewerPage_ReloadsWebDirTemplates(t *testing.T) {
	webDir := t.TempDir()
	viewerFile := copyTemplates(t, webDir)

	srv, err := New(Config{
		Host:    "0.0.0.0",
		Port:    "8086",
		DataDir: t.TempDir(),
		WebDir:  webDir,
		Styles: overlay.Styles{
			Base:      engine.Style{Name: "base", URL: "https://example.test/base.json"},
			Satellite: engine.Style{Name: "satellite", URL: "https://example.test/satellite.json"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	require.True(t, srv.liveTemplates)

	rec := serve(srv, http.MethodGet, "/viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "edited-on-disk")

	b, err := os.ReadFile(viewerFile)
	require.NoError(t, err)
	edited := strings.Replace(string(b), "</body>", `<p id="edited">edited-on-disk</p></body>`, 1)
	require.NoError(t, os.WriteFile(viewerFile, []byte(edited), 0o644))

	rec = serve(srv, http.MethodGet, "/viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edited-on-disk")

	t.Run("broken edit keeps previous templates", func(t *testing.T) {
		require.NoError(t, os.WriteFile(viewerFile, []byte(`{{define "viewer"}}{{.Nope`), 0o644))
		rec := serve(srv, http.MethodGet, "/viewer", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "edited-on-disk")
	})
}

func TestViewerPage_EmbeddedTemplatesAreFixed(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.False(t, srv.liveTemplates)
}

func TestOpenAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	paths := srv.OpenAPI().Paths
	for _, p := range []string{
		"/health",
		"/api/v1/info",
		"/api/v1/overlays",
		"/api/v1/overlays/{id}",
		"/api/v1/styles",
		"/api/v1/tiles",
		"/api/v1/tiles/check",
		"/api/v1/sessions",
		"/api/v1/sessions/{id}",
		"/api/v1/sessions/{id}/overlays/{overlay}",
		"/api/v1/sessions/{id}/overlays/{overlay}/toggle",
		"/api/v1/sessions/{id}/style/toggle",
		"/api/v1/sessions/{id}/measuring",
		"/api/v1/sessions/{id}/events",
		"/api/v1/viewer/{id}/stream",
		"/api/v1/viewer/{id}/toggle",
		"/api/v1/viewer/{id}/measure",
		"/api/v1/viewer/{id}/style",
	} {
		assert.Contains(t, paths, p)
	}

	rec := serve(srv, http.MethodGet, "/openapi.json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPublicURLDefault(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, "http://localhost:8086", srv.config.PublicURL)
	assert.Equal(t, engine.DefaultCamera(), srv.config.Camera)
}
