// Package session keeps each browser's uploads in memory between requests.
package session

import (
	"container/list"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/tabular"
)

// CookieName is the cookie carrying the session ID.
const CookieName = "response_map_session"

// State is what one browser has uploaded and chosen so far. Tables and
// collections are shared read-only between requests.
type State struct {
	DataName     string
	Table        *tabular.Table
	BoundaryName string
	Boundaries   *boundary.Collection
	Mapping      incident.ColumnMapping
	UploadedAt   time.Time
}

// Store is a concurrency-safe LRU of session states with idle expiry.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*list.Element
	order       *list.List // front = most recently used
	maxSessions int
	ttl         time.Duration
	now         func() time.Time
	evictions   atomic.Int64
}

type entry struct {
	id       string
	state    State
	lastSeen time.Time
}

// Stats reports store occupancy.
type Stats struct {
	Sessions    int   `json:"sessions"`
	MaxSessions int   `json:"max_sessions"`
	Evictions   int64 `json:"evictions"`
}

// NewStore creates a store holding at most maxSessions sessions, each
// expiring after ttl without use.
func NewStore(maxSessions int, ttl time.Duration) *Store {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Store{
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		maxSessions: maxSessions,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Create stores st under a new random ID and returns the ID. The least
// recently used session is evicted when the store is full.
func (s *Store) Create(st State) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.entries) >= s.maxSessions {
		s.removeElement(s.order.Back())
		s.evictions.Add(1)
	}
	s.entries[id] = s.order.PushFront(&entry{id: id, state: st, lastSeen: s.now()})
	return id
}

// Get returns the state for id and marks it used.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Update applies fn to the stored state for id.
func (s *Store) Update(id string, fn func(*State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	fn(&e.state)
	return true
}

// Delete drops id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[id]; ok {
		s.removeElement(el)
	}
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*entry).lastSeen) > s.ttl {
			s.removeElement(el)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		zap.L().Debug("session: swept expired sessions",
			zap.String("component", "session"),
			zap.Int("removed", removed),
		)
	}
	return removed
}

// Stats returns store occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	return Stats{Sessions: n, MaxSessions: s.maxSessions, Evictions: s.evictions.Load()}
}

// FromRequest resolves the session named by the request cookie.
func (s *Store) FromRequest(r *http.Request) (string, State, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", State{}, false
	}
	st, ok := s.Get(c.Value)
	if !ok {
		return "", State{}, false
	}
	return c.Value, st, true
}

// SetCookie points the browser at session id.
func (s *Store) SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// lookup finds a live entry and refreshes its position. Caller holds mu.
func (s *Store) lookup(id string) (*entry, bool) {
	el, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	now := s.now()
	if now.Sub(e.lastSeen) > s.ttl {
		s.removeElement(el)
		return nil, false
	}
	e.lastSeen = now
	s.order.MoveToFront(el)
	return e, true
}

func (s *Store) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	s.order.Remove(el)
	delete(s.entries, e.id)
}
