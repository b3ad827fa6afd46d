package reporting

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

const sessionTTL = 24 * time.Hour

// Session is a single-use completion flag for one in-memory save session.
// The first Complete wins; later calls report false.
type Session struct {
	done    atomic.Bool
	outcome atomic.Value
	created time.Time
}

// NewSession returns an unused session.
func NewSession() *Session {
	return &Session{created: time.Now()}
}

// Complete marks the session done and reports whether this call did so.
func (s *Session) Complete() bool {
	return s.done.CompareAndSwap(false, true)
}

// Release reopens the session after a failed save so it can be retried.
func (s *Session) Release() {
	s.done.Store(false)
}

// Outcome returns the result of the save that completed the session.
func (s *Session) Outcome() models.SaveOutcome {
	o, _ := s.outcome.Load().(models.SaveOutcome)
	return o
}

func (s *Session) record(o models.SaveOutcome) {
	s.outcome.Store(o)
}

// SessionManager hands out sessions by client-supplied id.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.Mutex
	now      func() time.Time
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Get returns the session for id, creating it on first use. An empty id
// yields a fresh untracked session.
func (sm *SessionManager) Get(id string) *Session {
	if id == "" {
		return NewSession()
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	for key, s := range sm.sessions {
		if now.Sub(s.created) > sessionTTL {
			delete(sm.sessions, key)
		}
	}
	if s, ok := sm.sessions[id]; ok {
		return s
	}
	s := &Session{created: now}
	sm.sessions[id] = s
	return s
}

// keyedMutex serialises work per key. Entries are dropped once no caller
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
