package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-polos/internal/engine"
	"github.com/joeblew999/plat-polos/internal/logger"
	"github.com/joeblew999/plat-polos/internal/overlay"
	"github.com/joeblew999/plat-polos/internal/routing"
	"github.com/joeblew999/plat-polos/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --web-dir, --public-url, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_PUBLIC_URL, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory holding tiles/<dataset>.pmtiles" default:".data"`
	WebDir    string `doc:"Optional web/ directory for static files and template overrides" default:""`
	PublicURL string `doc:"Base URL browsers fetch archives from (defaults to the listen address)" default:""`
	LogLevel  string `doc:"Log level: debug, info, warn, error" default:"info"`

	Catalog        string `doc:"Overlay catalog YAML file (built-in catalog when empty)" default:""`
	BaseStyle      string `doc:"Thematic base style URL" default:"https://demotiles.maplibre.org/style.json"`
	SatelliteStyle string `doc:"Satellite base style URL" default:"https://api.maptiler.com/maps/satellite/style.json"`
	StyleKey       string `doc:"API key appended to style URLs as the key query parameter" default:""`

	RoutingURL         string `doc:"OSRM-compatible routing service base URL" default:"https://router.project-osrm.org"`
	RoutingProfile     string `doc:"Routing profile" default:"driving"`
	RoutingTimeout     int    `doc:"Routing request timeout in seconds (0 leaves the transport default)" default:"0"`
	DiscardStaleRoutes bool   `doc:"Drop routes whose response arrives after measuring was turned off" default:"false"`
	SessionLinger      int    `doc:"Seconds a viewer session survives without a connected stream (0 keeps it)" default:"120"`
}

func styleURL(raw, key string) string {
	if key == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String()
}

func newServer(opts *Options) (*server.Server, *zap.Logger, error) {
	log, err := logger.New(opts.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}

	catalog := overlay.Default()
	if opts.Catalog != "" {
		if catalog, err = overlay.LoadCatalog(opts.Catalog); err != nil {
			return nil, nil, err
		}
	}

	srv, err := server.New(server.Config{
		Host:      opts.Host,
		Port:      fmt.Sprintf("%d", opts.Port),
		DataDir:   opts.DataDir,
		WebDir:    opts.WebDir,
		PublicURL: opts.PublicURL,
		Catalog:   catalog,
		Styles: overlay.Styles{
			Base:      engine.Style{Name: "base", URL: styleURL(opts.BaseStyle, opts.StyleKey)},
			Satellite: engine.Style{Name: "satellite", URL: styleURL(opts.SatelliteStyle, opts.StyleKey)},
		},
		Camera: engine.DefaultCamera(),
		Routing: routing.Config{
			BaseURL: opts.RoutingURL,
			Profile: opts.RoutingProfile,
			Timeout: time.Duration(opts.RoutingTimeout) * time.Second,
		},
		DiscardStaleRoutes: opts.DiscardStaleRoutes,
		SessionLinger:      time.Duration(opts.SessionLinger) * time.Second,
		Logger:             log,
	})
	if err != nil {
		return nil, nil, err
	}
	return srv, log, nil
}

// runCheck prints every dataset without a usable archive and closes srv.
// It reports whether all datasets are servable.
func runCheck(srv *server.Server, w io.Writer) bool {
	problems := srv.CheckTiles()
	_ = srv.Close()
	for _, p := range problems {
		fmt.Fprintf(w, "%-28s %s\n", p.Dataset, p.Problem)
	}
	if len(problems) > 0 {
		return false
	}
	fmt.Fprintln(w, "all overlay datasets present")
	return true
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv, log, err := newServer(opts)
			if err != nil {
				fatal("Error: %v", err)
			}
			defer log.Sync() //nolint:errcheck

			for _, p := range srv.CheckTiles() {
				log.Warn("overlay dataset not servable", zap.String("dataset", p.Dataset), zap.String("problem", p.Problem))
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-polos map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Tiles:   %s/tiles\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			httpServer.RegisterOnShutdown(func() { _ = srv.Close() })
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("server error", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
		})
	})

	cli.Root().Use = "geo"
	cli.Root().Short = "Overlay map server with route measurement"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, _, err := newServer(opts)
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()

			output, err := json.MarshalIndent(srv.OpenAPI(), "", "  ")
			if err != nil {
				fatal("Error marshaling OpenAPI: %v", err)
			}
			if useYAML, _ := cmd.Flags().GetBool("yaml"); useYAML {
				var doc any
				if err := json.Unmarshal(output, &doc); err != nil {
					fatal("Error converting OpenAPI: %v", err)
				}
				if output, err = yaml.Marshal(doc); err != nil {
					fatal("Error marshaling OpenAPI: %v", err)
				}
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// catalog subcommand: print the effective overlay catalog
	cli.Root().AddCommand(&cobra.Command{
		Use:   "catalog",
		Short: "Print the overlay catalog as YAML (a starting point for --catalog)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			catalog := overlay.Default()
			if opts.Catalog != "" {
				var err error
				if catalog, err = overlay.LoadCatalog(opts.Catalog); err != nil {
					fatal("Error: %v", err)
				}
			}
			out, err := yaml.Marshal(catalog)
			if err != nil {
				fatal("Error marshaling catalog: %v", err)
			}
			fmt.Print(string(out))
		}),
	})

	// check subcommand: verify every overlay dataset has a usable archive
	cli.Root().AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify that every overlay dataset has an MVT archive under data-dir/tiles",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, _, err := newServer(opts)
			if err != nil {
				fatal("Error: %v", err)
			}
			if !runCheck(srv, os.Stdout) {
				os.Exit(1)
			}
		}),
	})

	cli.Run()
}
