package engine

import (
	"sort"
	"strings"
	"sync"
)

// ProtocolFunc rewrites a URL of a custom scheme into one the browser engine
// can load.
type ProtocolFunc func(rawURL string) string

type protocolEntry struct {
	fn   ProtocolFunc
	refs int
}

// Protocol registrations are process-wide, like the engine's own protocol
// table. Each registration is reference counted so concurrent sessions can
// share a scheme.
var protocols = struct {
	sync.Mutex
	m map[string]*protocolEntry
}{m: make(map[string]*protocolEntry)}

// AddProtocol registers fn for scheme and returns the function that releases
// this registration. The first registration of a scheme wins until every
// holder has released it. Release is safe to call more than once.
func AddProtocol(scheme string, fn ProtocolFunc) (release func()) {
	protocols.Lock()
	e, ok := protocols.m[scheme]
	if !ok {
		e = &protocolEntry{fn: fn}
		protocols.m[scheme] = e
	}
	e.refs++
	protocols.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			protocols.Lock()
			defer protocols.Unlock()
			e.refs--
			if e.refs <= 0 && protocols.m[scheme] == e {
				delete(protocols.m, scheme)
			}
		})
	}
}

// ResolveURL applies the protocol registered for the URL's scheme, if any.
func ResolveURL(rawURL string) string {
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok {
		return rawURL
	}
	protocols.Lock()
	e, ok := protocols.m[scheme]
	protocols.Unlock()
	if !ok {
		return rawURL
	}
	return e.fn(rawURL)
}

// Protocols lists the registered schemes.
func Protocols() []string {
	protocols.Lock()
	defer protocols.Unlock()
	out := make([]string, 0, len(protocols.m))
	for s := range protocols.m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
