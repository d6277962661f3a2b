// internal/history/book.go
//
// Per-player history registry.
//   - One Log per owner (account ID or anonymous cookie ID), loaded lazily
//     from the shared store under Key(owner).
//   - Claim folds a guest's log into an account on signup/login.
//   - Evict drops logs nobody has asked for since a cutoff; entries stay in
//     the store and are reloaded on the next For.

package history

import (
	"sort"
	"sync"
	"time"

	"github.com/robalobadob/mejikuhibiniu/internal/kv"
)

// Book hands out one Log per owner, loading each lazily from the shared store.
type Book struct {
	store kv.Store
	now   func() time.Time

	mu   sync.Mutex
	logs map[string]*bookEntry
}

type bookEntry struct {
	log      *Log
	lastUsed time.Time
}

// NewBook creates an empty registry over store.
func NewBook(store kv.Store) *Book {
	return &Book{store: store, now: time.Now, logs: make(map[string]*bookEntry)}
}

// Key returns the storage key for owner. The empty owner uses StorageKey.
func Key(owner string) string {
	if owner == "" {
		return StorageKey
	}
	return StorageKey + ":" + owner
}

// For returns the log of owner, loading it on first use.
func (b *Book) For(owner string) *Log {
	b.mu.Lock()
	defer b.mu.Unlock()
	if be, ok := b.logs[owner]; ok {
		be.lastUsed = b.now()
		return be.log
	}
	l := New(b.store, Key(owner))
	b.logs[owner] = &bookEntry{log: l, lastUsed: b.now()}
	return l
}

// Len reports the number of logs held in memory.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logs)
}

// Evict forgets logs last handed out before cutoff. Logs with live
// subscribers are kept. It returns the number evicted.
func (b *Book) Evict(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for owner, be := range b.logs {
		if be.lastUsed.Before(cutoff) && !be.log.watched() {
			delete(b.logs, owner)
			n++
		}
	}
	return n
}

// Claim moves the history of from into to and clears from.
func (b *Book) Claim(from, to string) {
	if from == "" || to == "" || from == to {
		return
	}
	src := b.For(from)
	entries := src.GetHistory()
	if len(entries) == 0 {
		return
	}
	b.For(to).Merge(entries)
	src.ClearHistory()
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
}
