// Package templates handles HTML template rendering for Datastar SSE responses
// and the viewer page.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

//go:embed fragments/*.html viewer.html
var embedded embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// px renders a screen coordinate for inline styles
	"px": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 1, 64) + "px"
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New creates a renderer from the templates compiled into the binary.
func New() (*Renderer, error) {
	return load(embedded, "fragments")
}

// NewFromDir creates a renderer from webDir/templates, for editing templates
// without rebuilding.
func NewFromDir(webDir string) (*Renderer, error) {
	return load(os.DirFS(filepath.Join(webDir, "templates")), "fragments")
}

func load(fsys fs.FS, fragmentsDir string) (*Renderer, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fsys, fragmentsDir+"/*.html", "viewer.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTo renders a named template to w.
func (r *Renderer) RenderTo(w io.Writer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(w, name, data)
}

// Reload re-reads webDir/templates. A parse error keeps the current set.
func (r *Renderer) Reload(webDir string) error {
	fresh, err := NewFromDir(webDir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = fresh.templates
	r.mu.Unlock()

	return nil
}
