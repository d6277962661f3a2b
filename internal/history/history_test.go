package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/robalobadob/mejikuhibiniu/internal/kv"
)

func entry(won bool, n int) Entry {
	return Entry{
		Date:           time.Date(2024, 5, 1, 12, 0, n, 0, time.UTC),
		Difficulty:     "Sedang",
		Won:            won,
		SequenceLength: 6,
		TimeTaken:      n,
		Attempts:       6,
	}
}

func TestAddEntryBoundedMostRecentFirst(t *testing.T) {
	l := New(kv.NewMemoryStore(), "")
	for i := 0; i < Capacity+1; i++ {
		l.AddEntry(entry(i%2 == 0, i))
	}
	h := l.GetHistory()
	if len(h) != Capacity {
		t.Fatalf("expected %d entries, got %d", Capacity, len(h))
	}
	// TimeTaken doubles as the insertion index: newest (20) first, 0 evicted.
	for i, e := range h {
		if want := Capacity - i; e.TimeTaken != want {
			t.Fatalf("entry %d: TimeTaken=%d, want %d", i, e.TimeTaken, want)
		}
	}
}

func TestAddEntryAssignsUniqueIDs(t *testing.T) {
	l := New(nil, "")
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		e := l.AddEntry(Entry{ID: "caller-supplied", Won: true})
		if e.ID == "" || e.ID == "caller-supplied" || seen[e.ID] {
			t.Fatalf("bad id %q", e.ID)
		}
		seen[e.ID] = true
		if e.Date.IsZero() {
			t.Fatal("date not defaulted")
		}
	}
}

func TestGetHistoryReturnsCopy(t *testing.T) {
	l := New(nil, "")
	l.AddEntry(entry(true, 1))
	h := l.GetHistory()
	h[0].Won = false
	if !l.GetHistory()[0].Won {
		t.Fatal("caller mutation leaked into the log")
	}
}

func TestGetStats(t *testing.T) {
	l := New(nil, "")
	if s := l.GetStats(); s != (Stats{}) {
		t.Fatalf("empty stats = %+v", s)
	}
	l.AddEntry(entry(true, 1))
	l.AddEntry(entry(true, 2))
	l.AddEntry(entry(false, 3))
	want := Stats{TotalGames: 3, Wins: 2, Losses: 1, WinRate: 67}
	if s := l.GetStats(); s != want {
		t.Fatalf("stats = %+v, want %+v", s, want)
	}
}

func TestPersistAndReload(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, "")
	first := l.AddEntry(entry(true, 4))

	again := New(store, "")
	h := again.GetHistory()
	if len(h) != 1 {
		t.Fatalf("expected 1 reloaded entry, got %d", len(h))
	}
	if h[0].ID != first.ID || !h[0].Date.Equal(first.Date) || h[0].TimeTaken != 4 {
		t.Fatalf("reloaded %+v, want %+v", h[0], first)
	}
}

func TestLoadsISODates(t *testing.T) {
	store := kv.NewMemoryStore()
	raw := `[{"id":"a","date":"2024-03-01T10:20:30.123Z","difficulty":"Mudah","won":true,"sequenceLength":4,"timeTaken":7,"attempts":4}]`
	_ = store.Set(context.Background(), StorageKey, raw)

	h := New(store, "").GetHistory()
	if len(h) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(h))
	}
	want := time.Date(2024, 3, 1, 10, 20, 30, 123000000, time.UTC)
	if !h[0].Date.Equal(want) {
		t.Fatalf("date = %v, want %v", h[0].Date, want)
	}
}

func TestMalformedStoreStartsEmpty(t *testing.T) {
	store := kv.NewMemoryStore()
	_ = store.Set(context.Background(), StorageKey, "{not json")

	l := New(store, "")
	calls := 0
	l.Subscribe(func() { calls++ })
	if n := len(l.GetHistory()); n != 0 {
		t.Fatalf("expected empty history, got %d", n)
	}
	if calls != 0 {
		t.Fatal("load failure must not notify")
	}
}

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("disk gone") }

func TestStoreFailuresAreSwallowed(t *testing.T) {
	l := New(failingStore{}, "")
	l.AddEntry(entry(true, 1))
	if n := len(l.GetHistory()); n != 1 {
		t.Fatalf("entry should be kept in memory, got %d", n)
	}
	l.ClearHistory()
	if n := len(l.GetHistory()); n != 0 {
		t.Fatalf("expected cleared log, got %d", n)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, "")
	calls := 0
	unsubscribe := l.Subscribe(func() {
		calls++
		// Listeners run outside the lock and may read the log.
		_ = l.GetStats()
	})

	l.AddEntry(entry(true, 1))
	l.ClearHistory()
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}
	raw, ok, _ := store.Get(context.Background(), StorageKey)
	var persisted []Entry
	if !ok || json.Unmarshal([]byte(raw), &persisted) != nil || len(persisted) != 0 {
		t.Fatalf("clear not persisted: %q", raw)
	}

	unsubscribe()
	unsubscribe()
	l.AddEntry(entry(false, 2))
	if calls != 2 {
		t.Fatalf("unsubscribed listener still called (%d)", calls)
	}
}

func TestBookClaim(t *testing.T) {
	store := kv.NewMemoryStore()
	b := NewBook(store)
	guest := b.For("anon-1")
	guest.AddEntry(entry(true, 5))
	b.For("user-1").AddEntry(entry(false, 9))

	if b.For("anon-1") != guest {
		t.Fatal("Book.For must return the same log per owner")
	}

	b.Claim("anon-1", "user-1")
	if n := len(guest.GetHistory()); n != 0 {
		t.Fatalf("guest log should be empty after claim, got %d", n)
	}
	h := b.For("user-1").GetHistory()
	if len(h) != 2 || h[0].TimeTaken != 9 || h[1].TimeTaken != 5 {
		t.Fatalf("merged history out of order: %+v", h)
	}
	if _, ok, _ := store.Get(context.Background(), Key("user-1")); !ok {
		t.Fatal("merged history not persisted")
	}
}

func TestBookEvictsIdleLogs(t *testing.T) {
	store := kv.NewMemoryStore()
	b := NewBook(store)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }

	for i := 0; i < 100; i++ {
		b.For(fmt.Sprintf("anon-%d", i))
	}
	b.For("user-1").AddEntry(entry(true, 3))
	unsubscribe := b.For("watched").Subscribe(func() {})
	defer unsubscribe()

	clock = clock.Add(time.Hour)
	b.For("recent")

	if n := b.Evict(clock.Add(-30 * time.Minute)); n != 101 {
		t.Fatalf("evicted %d logs, want 101", n)
	}
	if b.Len() != 2 {
		t.Fatalf("kept %d logs, want the recent and the watched one", b.Len())
	}

	if h := b.For("user-1").GetHistory(); len(h) != 1 || h[0].TimeTaken != 3 {
		t.Fatalf("evicted log not reloaded from store: %+v", h)
	}
}
