package humastar

import (
	"fmt"
	"slices"
)

// ActionDef is a reusable action template. Pattern uses a single %s verb
// for the resource ID.
type ActionDef struct {
	Rel     string // IANA or custom rel (e.g., "delete", "switch-style")
	Pattern string // URL pattern with %s placeholder (e.g., "/api/v1/sessions/%s")
	Method  string // HTTP method: POST, PUT, DELETE, etc.
	Title   string // human-readable label
	Schema  string // optional JSON Schema URL for the request body
}

// ActionsFor generates concrete Action values from ActionDefs for a given resource ID.
func ActionsFor(id string, defs []ActionDef) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		actions[i] = Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		}
	}
	return actions
}

// Only returns the definitions whose rel is listed, in definition order.
func Only(defs []ActionDef, rels ...string) []ActionDef {
	var out []ActionDef
	for _, d := range defs {
		if slices.Contains(rels, d.Rel) {
			out = append(out, d)
		}
	}
	return out
}
