package overlay

import (
	"strings"

	"github.com/joeblew999/plat-polos/internal/engine"
)

// Resolver maps pmtiles://<dataset> to the archive served under
// <publicURL>/tiles/. An empty publicURL yields a same-origin path.
func Resolver(publicURL string) engine.ProtocolFunc {
	base := strings.TrimRight(publicURL, "/")
	return func(rawURL string) string {
		name, ok := strings.CutPrefix(rawURL, Scheme+"://")
		if !ok || strings.Contains(name, "/") {
			return rawURL
		}
		return Scheme + "://" + base + "/tiles/" + name + ".pmtiles"
	}
}

// Protocol is the engine protocol registration for overlay archives.
func Protocol(publicURL string) engine.Protocol {
	return engine.Protocol{Scheme: Scheme, Resolve: Resolver(publicURL)}
}
