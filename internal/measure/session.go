// Package measure implements the two-click route measurement state machine.
package measure

import (
	"fmt"

	"github.com/paulmach/orb"
)

// State is the phase of a measurement session.
type State int

const (
	Idle State = iota
	Collecting
	Ready
	Pending
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Ready:
		return "ready"
	case Pending:
		return "pending"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Request asks for a route between the two collected points. Generation
// identifies the session epoch that produced it.
type Request struct {
	Generation uint64
	Start      orb.Point
	End        orb.Point
}

// Session collects route endpoints while measuring is enabled. It is not safe
// for concurrent use.
type Session struct {
	state  State
	points []orb.Point
	gen    uint64
}

// New returns an idle session.
func New() *Session {
	return &Session{}
}

// State returns the current phase.
func (s *Session) State() State { return s.state }

// Active reports whether measuring is enabled.
func (s *Session) Active() bool { return s.state != Idle }

// Points returns the points collected so far.
func (s *Session) Points() []orb.Point {
	return append([]orb.Point(nil), s.points...)
}

// Generation returns the current epoch. It changes on every Disable.
func (s *Session) Generation() uint64 { return s.gen }

// Enable starts collecting. It does nothing when already active.
func (s *Session) Enable() {
	if s.state != Idle {
		return
	}
	s.state = Collecting
	s.points = s.points[:0]
}

// Click records p. The second point moves the session to Pending and returns
// the routing request; clicks outside Collecting are ignored.
func (s *Session) Click(p orb.Point) (Request, bool) {
	if s.state != Collecting {
		return Request{}, false
	}
	s.points = append(s.points, p)
	if len(s.points) < 2 {
		return Request{}, false
	}
	s.state = Ready
	req := Request{Generation: s.gen, Start: s.points[0], End: s.points[1]}
	s.state = Pending
	return req, true
}

// Complete settles the request of generation gen, successful or not. It
// reports whether gen is still current; a stale completion leaves the
// session untouched.
func (s *Session) Complete(gen uint64) bool {
	if gen != s.gen {
		return false
	}
	if s.state == Pending {
		s.state = Done
		s.points = s.points[:0]
		s.state = Collecting
	}
	return true
}

// Disable stops measuring from any state, drops collected points and starts
// a new generation.
func (s *Session) Disable() {
	s.state = Idle
	s.points = s.points[:0]
	s.gen++
}
