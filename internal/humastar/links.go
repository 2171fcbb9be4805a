package humastar

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// link is one generated relation. Href may contain {param} segments that
// are filled from the request path when the header is written.
type link struct {
	Rel  string
	Href string
}

func (l link) header() string {
	return fmt.Sprintf(`<%s>; rel="%s"`, l.Href, l.Rel)
}

// Links derives RFC 8288 Link headers from the registered operations.
//
// Every path is attached to its owner, the longest registered path it
// extends. A path that adds a single {param} to a collection is an item of
// it (rel="item", rel="collection"); anything else is a sub-resource named
// after its static segments, so /api/v1/sessions/{id}/style/toggle is
// rel="style-toggle" of /api/v1/sessions/{id}. Paths without an owner hang
// off the entry point, which also advertises the OpenAPI document.
type Links struct {
	entry    string
	skipTags []string

	mu     sync.RWMutex
	byPath map[string][]link
}

// NewLinks creates an empty link set. Operations tagged with one of skipTags
// get no generated links.
func NewLinks(entry string, skipTags ...string) *Links {
	return &Links{entry: entry, skipTags: skipTags, byPath: map[string][]link{}}
}

// Build walks the OpenAPI paths. Call after all routes are registered.
func (l *Links) Build(api huma.API) {
	oapi := api.OpenAPI()
	byPath := map[string][]link{}
	add := func(from string, to link) {
		if !slices.Contains(byPath[from], to) {
			byPath[from] = append(byPath[from], to)
		}
	}

	var paths []string
	for p, pi := range oapi.Paths {
		if l.skipped(pi) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if p == l.entry {
			continue
		}
		owner := ownerOf(p, paths)
		switch {
		case owner == "":
			if !hasParam(p) {
				add(l.entry, link{Rel: lastSegment(p), Href: p})
			}
			add(p, link{Rel: "up", Href: l.entry})
		case isItemOf(p, owner):
			add(owner, link{Rel: "item", Href: p})
			add(p, link{Rel: "collection", Href: owner})
			add(p, link{Rel: "up", Href: owner})
		default:
			add(owner, link{Rel: subRel(p, owner), Href: p})
			add(p, link{Rel: "up", Href: owner})
		}

		pi := oapi.Paths[p]
		if pi.Post != nil && !hasParam(p) {
			add(p, link{Rel: "create-form", Href: p})
		}
		if pi.Put != nil || pi.Patch != nil {
			add(p, link{Rel: "edit", Href: p})
		}
		if ref := responseSchema(pi); ref != "" {
			add(p, link{Rel: "describedby", Href: "/openapi.json#/components/schemas/" + ref})
		}
	}

	add(l.entry, link{Rel: "describedby", Href: "/openapi.json"})
	add(l.entry, link{Rel: "service-desc", Href: "/openapi.json"})
	add(l.entry, link{Rel: "service-doc", Href: "/docs"})

	for p, links := range byPath {
		if pi, ok := oapi.Paths[p]; ok {
			documentLinks(pi, links, oapi)
		}
	}

	l.mu.Lock()
	l.byPath = byPath
	l.mu.Unlock()
}

// Transformer writes the generated links, a self link for templated paths
// and the state-dependent actions of [Actor] bodies on every 2xx response.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil || !strings.HasPrefix(status, "2") {
			return v, nil
		}

		l.mu.RLock()
		links := l.byPath[op.Path]
		l.mu.RUnlock()

		params := pathParams(op.Path, ctx.URL().Path)
		for _, lk := range links {
			lk.Href = expand(lk.Href, params)
			ctx.AppendHeader("Link", lk.header())
		}
		if len(params) > 0 {
			ctx.AppendHeader("Link", link{Rel: "self", Href: ctx.URL().Path}.header())
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

// Root returns the entry point headers for handlers outside Huma.
func (l *Links) Root() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []string
	for _, lk := range l.byPath[l.entry] {
		out = append(out, lk.header())
	}
	return out
}

func (l *Links) skipped(pi *huma.PathItem) bool {
	for _, op := range operationsOf(pi) {
		if op == nil {
			continue
		}
		for _, t := range op.Tags {
			if slices.Contains(l.skipTags, t) {
				return true
			}
		}
	}
	return false
}

// ownerOf returns the longest path in paths that p extends by whole segments.
func ownerOf(p string, paths []string) string {
	var owner string
	for _, q := range paths {
		if q != p && strings.HasPrefix(p, q+"/") && len(q) > len(owner) {
			owner = q
		}
	}
	return owner
}

func isItemOf(p, owner string) bool {
	rest := strings.TrimPrefix(p, owner+"/")
	return !strings.Contains(rest, "/") && isParam(rest) && !hasParam(owner)
}

// subRel names a sub-resource by its static segments below owner.
func subRel(p, owner string) string {
	var parts []string
	for _, seg := range strings.Split(strings.TrimPrefix(p, owner+"/"), "/") {
		if !isParam(seg) {
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		return "related"
	}
	return strings.Join(parts, "-")
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func hasParam(p string) bool {
	return strings.Contains(p, "{")
}

func lastSegment(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

// pathParams matches a concrete path against its template.
func pathParams(template, actual string) map[string]string {
	if !hasParam(template) {
		return nil
	}
	ts := strings.Split(template, "/")
	as := strings.Split(actual, "/")
	if len(ts) != len(as) {
		return nil
	}
	params := map[string]string{}
	for i, seg := range ts {
		if isParam(seg) {
			params[seg] = as[i]
		}
	}
	return params
}

// expand fills the {param} segments of href known from params.
func expand(href string, params map[string]string) string {
	if len(params) == 0 || !hasParam(href) {
		return href
	}
	segs := strings.Split(href, "/")
	for i, seg := range segs {
		if v, ok := params[seg]; ok {
			segs[i] = v
		}
	}
	return strings.Join(segs, "/")
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

// documentLinks records the relations as OpenAPI response links on every
// operation of pi, pointing at the target's GET operation when there is one.
func documentLinks(pi *huma.PathItem, links []link, oapi *huma.OpenAPI) {
	for _, op := range operationsOf(pi) {
		if op == nil {
			continue
		}
		resp := successResponse(op)
		if resp == nil {
			continue
		}
		for _, lk := range links {
			target, ok := oapi.Paths[lk.Href]
			if !ok || target.Get == nil {
				continue
			}
			if resp.Links == nil {
				resp.Links = map[string]*huma.Link{}
			}
			resp.Links[lk.Rel] = &huma.Link{
				OperationID: target.Get.OperationID,
				Description: fmt.Sprintf("Related: %s", lk.Rel),
			}
		}
	}
}

func successResponse(op *huma.Operation) *huma.Response {
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			return r
		}
	}
	return nil
}

// responseSchema returns the component name of the GET success body.
func responseSchema(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	resp := successResponse(pi.Get)
	if resp == nil {
		return ""
	}
	for _, mt := range resp.Content {
		if mt.Schema != nil && mt.Schema.Ref != "" {
			return path.Base(mt.Schema.Ref)
		}
	}
	return ""
}
