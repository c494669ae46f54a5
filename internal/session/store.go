package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pefman/medal-dashboard/internal/loadstate"
	"github.com/pefman/medal-dashboard/internal/record"
)

// Session is the in-memory dashboard state of one browser.
type Session struct {
	ID       string
	Personal *loadstate.Op[record.Record]
	Created  time.Time

	mu      sync.Mutex
	lastURL string
	seen    time.Time
}

// LastURL is the most recently submitted save-data URL, used to refill the form.
func (s *Session) LastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}

func (s *Session) SetLastURL(u string) {
	s.mu.Lock()
	s.lastURL = u
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.seen = now
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Store keeps sessions in memory only.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// OnCreate runs for every new session, e.g. to hook its Personal op.
	OnCreate func(*Session)
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session), now: time.Now}
}

// Get returns the session for id and marks it as seen.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		s.touch(st.now())
	}
	return s, ok
}

// GetOrCreate returns the session for id, or a fresh one when id is unknown.
func (st *Store) GetOrCreate(id string) *Session {
	if s, ok := st.Get(id); ok {
		return s
	}
	now := st.now()
	s := &Session{
		ID:       uuid.NewString(),
		Personal: &loadstate.Op[record.Record]{},
		Created:  now,
		seen:     now,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	if st.OnCreate != nil {
		st.OnCreate(s)
	}
	return s
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
