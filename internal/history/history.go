// internal/history/history.go
//
// Bounded log of past games.
// Responsibilities:
//   - Keep at most Capacity entries, most recent first.
//   - Persist the whole log as one JSON array under a single key.
//   - Derive win/loss statistics.
//   - Notify subscribers after every add/clear.
//
// Persistence is best-effort: load and save failures are logged and the log
// carries on in memory.

package history

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/kv"
)

const (
	// StorageKey is the key the log is persisted under.
	StorageKey = "mejikuhibiniu_game_history"

	// Capacity is the number of entries retained.
	Capacity = 20

	ioTimeout = 2 * time.Second
)

// Entry is one finished round. Entries are never mutated after creation.
type Entry struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"date"`
	Difficulty     string    `json:"difficulty"` // level display name
	Won            bool      `json:"won"`
	SequenceLength int       `json:"sequenceLength"`
	TimeTaken      int       `json:"timeTaken"` // seconds
	Attempts       int       `json:"attempts"`
}

// Stats summarizes the log.
type Stats struct {
	TotalGames int `json:"totalGames"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	WinRate    int `json:"winRate"` // percent, rounded
}

// Log is a capacity-bounded, persisted history.
type Log struct {
	mu        sync.Mutex
	store     kv.Store // nil keeps the log in memory only
	key       string
	entries   []Entry
	listeners map[uint64]func()
	nextID    uint64
}

// New loads the log stored under key. A missing, unreadable or malformed
// value yields an empty log.
func New(store kv.Store, key string) *Log {
	if key == "" {
		key = StorageKey
	}
	l := &Log{store: store, key: key, listeners: make(map[uint64]func())}
	l.load()
	return l
}

func (l *Log) load() {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	raw, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		log.Warn().Err(err).Str("key", l.key).Msg("load game history")
		return
	}
	if !ok || raw == "" {
		return
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Warn().Err(err).Str("key", l.key).Msg("malformed game history, starting empty")
		return
	}
	if len(entries) > Capacity {
		entries = entries[:Capacity]
	}
	l.entries = entries
}

// saveLocked persists the current entries. Caller holds l.mu.
func (l *Log) saveLocked() {
	if l.store == nil {
		return
	}
	raw, err := json.Marshal(l.entries)
	if err != nil {
		log.Error().Err(err).Msg("encode game history")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := l.store.Set(ctx, l.key, string(raw)); err != nil {
		log.Warn().Err(err).Str("key", l.key).Msg("save game history")
	}
}

// AddEntry stores e with a fresh ID at the front of the log, evicting the
// oldest entries beyond Capacity. The stored entry is returned.
func (l *Log) AddEntry(e Entry) Entry {
	e.ID = uuid.NewString()
	if e.Date.IsZero() {
		e.Date = time.Now()
	}

	l.mu.Lock()
	next := make([]Entry, 0, Capacity)
	next = append(next, e)
	next = append(next, l.entries...)
	if len(next) > Capacity {
		next = next[:Capacity]
	}
	l.entries = next
	l.saveLocked()
	fns := l.listenersLocked()
	l.mu.Unlock()

	notify(fns)
	return e
}

// GetHistory returns a copy of the entries, most recent first.
func (l *Log) GetHistory() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry{}, l.entries...)
}

// GetStats derives totals and the rounded win rate.
func (l *Log) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return statsOf(l.entries)
}

func statsOf(entries []Entry) Stats {
	s := Stats{TotalGames: len(entries)}
	for _, e := range entries {
		if e.Won {
			s.Wins++
		}
	}
	s.Losses = s.TotalGames - s.Wins
	if s.TotalGames > 0 {
		s.WinRate = int(math.Round(float64(s.Wins) / float64(s.TotalGames) * 100))
	}
	return s
}

// ClearHistory empties the log.
func (l *Log) ClearHistory() {
	l.mu.Lock()
	l.entries = []Entry{}
	l.saveLocked()
	fns := l.listenersLocked()
	l.mu.Unlock()

	notify(fns)
}

// Merge folds other entries into the log (newest first, bounded), persists
// and notifies. Used when a guest's history is claimed by an account.
func (l *Log) Merge(other []Entry) {
	if len(other) == 0 {
		return
	}
	l.mu.Lock()
	merged := append(append([]Entry{}, l.entries...), other...)
	sortNewestFirst(merged)
	if len(merged) > Capacity {
		merged = merged[:Capacity]
	}
	l.entries = merged
	l.saveLocked()
	fns := l.listenersLocked()
	l.mu.Unlock()

	notify(fns)
}

// Subscribe registers fn to run after every mutation. The returned function
// removes it; calling it more than once is harmless.
func (l *Log) Subscribe(fn func()) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *Log) watched() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.listeners) > 0
}

func (l *Log) listenersLocked() []func() {
	fns := make([]func(), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
