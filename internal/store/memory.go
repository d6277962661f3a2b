// internal/store/memory.go
//
// In-memory registry of live game sessions.
//
// Characteristics:
//   - Stores *Session values keyed by game ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Sessions own a running game; Delete and Expire close it so its timer stops.
//   - State is lost when the process restarts (history is persisted separately).

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/mejikuhibiniu/internal/game"
)

// ErrNotFound is returned for unknown game IDs.
var ErrNotFound = errors.New("game not found")

// Session is a live game and the player it belongs to.
type Session struct {
	Game     *game.Game
	Owner    string    // account ID or anonymous cookie ID; changed only by Reassign
	LastSeen time.Time // refreshed by Save and Get
}

// Store defines the registry of live sessions.
type Store interface {
	// Save adds or replaces a session under its game ID.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by game ID.
	Get(ctx context.Context, id string) (*Session, error)

	// OwnerOf reports who currently owns a session without refreshing it.
	OwnerOf(ctx context.Context, id string) (string, error)

	// Reassign hands every session of from over to to, e.g. when a guest
	// logs in; it returns the number moved.
	Reassign(ctx context.Context, from, to string) (int, error)

	// Delete closes and forgets a session. Unknown IDs are ignored.
	Delete(ctx context.Context, id string) error

	// Expire closes and forgets sessions idle since before cutoff; it
	// returns the number removed.
	Expire(ctx context.Context, cutoff time.Time) (int, error)

	// Len reports the number of live sessions.
	Len() int
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex        // guards sessions
	sessions map[string]*Session // keyed by Game.ID
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*Session), now: time.Now}
}

func (m *memory) Save(ctx context.Context, s *Session) error {
	if s == nil || s.Game == nil {
		return errors.New("store: nil session")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[s.Game.ID]; ok && old.Game != s.Game {
		old.Game.Close()
	}
	s.LastSeen = m.now()
	m.sessions[s.Game.ID] = s
	return nil
}

// Get looks up a session and refreshes its idle clock.
func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastSeen = m.now()
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *memory) OwnerOf(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.Owner, nil
	}
	return "", ErrNotFound
}

func (m *memory) Reassign(ctx context.Context, from, to string) (int, error) {
	if from == "" || to == "" || from == to {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Owner == from {
			s.Owner = to
			n++
		}
	}
	return n, nil
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Game.Close()
	}
	return nil
}

func (m *memory) Expire(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Game.Close()
	}
	return len(stale), nil
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
