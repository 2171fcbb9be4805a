package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/api"
	"github.com/joeblew999/plat-polos/internal/api/viewer"
	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/humastar"
	"github.com/joeblew999/plat-polos/internal/mapsession"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/routing"
	"github.com/joeblew999/plat-polos/internal/service"
	"github.com/joeblew999/plat-polos/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Optional web/ directory: static files and template overrides

	// PublicURL is the base URL browsers fetch archives from. Defaults to
	// http://Host:Port.
	PublicURL string

	Catalog *overlay.Catalog // Defaults to the built-in catalog
	Styles  overlay.Styles
	Camera  engine.Camera
	Routing routing.Config

	DiscardStaleRoutes bool
	SessionLinger      time.Duration

	Logger *zap.Logger
}

// Server is the map HTTP server.
type Server struct {
	config   Config
	log      *zap.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	router   *routing.Client
	renderer *templates.Renderer
	viewer   *viewer.Handler
	links    *humastar.Links

	// liveTemplates is set when templates come from WebDir; they are
	// re-read on every viewer page load.
	liveTemplates bool
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = overlay.Default()
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://%s:%s", displayHost(cfg.Host), cfg.Port)
	}
	if cfg.Camera == (engine.Camera{}) {
		cfg.Camera = engine.DefaultCamera()
	}
	log := cfg.Logger

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-polos API", "1.0.0")
	humaConfig.Info.Description = "Overlay map sessions: visibility, base style switching, route measurement and hover inspection."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", displayHost(cfg.Host), cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	links := humastar.NewLinks("/health", "viewer")
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	renderer, live, err := loadTemplates(cfg.WebDir, log)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	router := routing.NewClient(cfg.Routing, log)
	sessions := mapsession.NewManager(cfg.Catalog, router, renderer, mapsession.Options{
		Styles:             cfg.Styles,
		Camera:             cfg.Camera,
		PublicURL:          cfg.PublicURL,
		DiscardStaleRoutes: cfg.DiscardStaleRoutes,
	}, log)

	s := &Server{
		config:  cfg,
		log:     log,
		mux:     mux,
		humaAPI: humaAPI,
		services: &api.Services{
			Sessions: sessions,
			Tiles:    service.NewTileService(cfg.DataDir),
		},
		router:   router,
		renderer: renderer,
		viewer:   viewer.New(sessions, renderer, cfg.SessionLinger, log),
		links:    links,

		liveTemplates: live,
	}

	s.routes()
	return s, nil
}

// loadTemplates prefers WebDir/templates when present so templates can be
// edited without a rebuild. live reports whether they came from disk.
func loadTemplates(webDir string, log *zap.Logger) (r *templates.Renderer, live bool, err error) {
	if webDir != "" {
		dir := filepath.Join(webDir, "templates")
		if _, err := os.Stat(filepath.Join(dir, "viewer.html")); err == nil {
			r, err := templates.NewFromDir(webDir)
			if err != nil {
				return nil, false, err
			}
			log.Info("templates loaded", zap.String("dir", dir))
			return r, true, nil
		}
	}
	r, err = templates.New()
	return r, false, err
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the session manager.
func (s *Server) Sessions() *mapsession.Manager {
	return s.services.Sessions
}

// Close unmounts every session.
func (s *Server) Close() error {
	s.viewer.Close()
	s.services.Sessions.Close()
	return nil
}

// CheckTiles reports catalog datasets without a usable archive.
func (s *Server) CheckTiles() []service.DatasetProblem {
	return s.services.Tiles.Check(s.config.Catalog.Datasets())
}

func (s *Server) routes() {
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.router.BaseURL(), s.services.Sessions).RegisterRoutes(s.humaAPI)
	api.NewSessionHandler(s.services.Sessions).RegisterRoutes(s.humaAPI)
	s.viewer.RegisterRoutes(s.humaAPI)

	s.links.Build(s.humaAPI)

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles(s.services.Tiles.TilesDir())))

	s.mux.Handle("/viewer", s.viewerPage())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service":  "plat-polos",
		"status":   "running",
		"sessions": s.services.Sessions.Len(),
	})
}

// viewerPage serves the viewer, re-reading WebDir templates first when they
// are in use.
func (s *Server) viewerPage() http.Handler {
	if !s.liveTemplates {
		return s.viewer
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.renderer.Reload(s.config.WebDir); err != nil {
			s.log.Warn("template reload failed, keeping previous templates", zap.Error(err))
		}
		s.viewer.ServeHTTP(w, r)
	})
}

// handleTiles serves PMTiles archives. Browsers read them with range
// requests from the viewer origin, so ranges and CORS are required.
func (s *Server) handleTiles(tilesDir string) http.Handler {
	files := http.FileServer(http.Dir(tilesDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if filepath.Ext(r.URL.Path) == ".pmtiles" {
			w.Header().Set("Content-Type", "application/vnd.pmtiles")
		}

		files.ServeHTTP(w, r)
	})
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
