// Package globe drives the event globe on top of a mapengine.Map: it loads category
// data, keeps the camera spinning or flying, routes cluster interactions to popups
// and plays scripted tours.
package globe

import (
	"sync"

	"github.com/sudorandom/event-globe/pkg/mapengine"
)

// Session is one mounted map. Work started against a session checks Live with the
// generation it began under before it touches the map again.
type Session struct {
	Map mapengine.Map

	mu    sync.Mutex
	gen   uint64
	alive bool
}

func NewSession(m mapengine.Map) *Session {
	return &Session{Map: m, gen: 1, alive: true}
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Live reports whether the session is still mounted and has not been reset since gen.
func (s *Session) Live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive && s.gen == gen
}

// Close ends the session. Every outstanding generation goes stale.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = false
	s.gen++
}
