// internal/game/engine.go
//
// Core engine for a single memory-game session.
// Responsibilities:
//   - Seed rounds from the sequence generator (Initialize/Reset/SetDifficulty).
//   - Shuffle the display order.
//   - Drive the one-second countdown and open the selection phase on expiry.
//   - Validate and apply player picks/removals.
//   - Evaluate the player's order against the original and log the outcome.
//
// State transitions:
//   memorizing → (StartTimer) counting_down → (timer hits 0) selecting → (Evaluate) settled
//
// Notes:
//   - Invalid actions are silent no-ops; nothing here returns an error except
//     SetDifficulty for an unknown key.
//   - One mutex serializes timer ticks and caller actions. Cues, the recorder
//     and listeners are invoked after the mutex is released, one update at a
//     time; a state older than the last one delivered is never sent.

package game

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/sequence"
)

const tickInterval = time.Second

// Options configures a Game. Zero values get working defaults.
type Options struct {
	ID         string
	Catalog    *sequence.Catalog
	Difficulty sequence.Difficulty
	Rand       *rand.Rand
	Cues       Cues
	Recorder   Recorder
	Scheduler  Scheduler
	Now        func() time.Time
}

// Game is a single-owner controller around the round state.
type Game struct {
	ID string

	mu       sync.Mutex
	catalog  *sequence.Catalog
	gen      *sequence.Generator
	st       State
	timer    Ticker
	timerGen uint64 // bumped per StartTimer; stale ticks carry an old value
	closed   bool

	cues     Cues
	recorder Recorder
	sched    Scheduler
	now      func() time.Time

	listeners map[uint64]func(Event)
	nextLn    uint64
	seq       uint64 // bumped per announced change, under mu

	emitMu    sync.Mutex // serializes delivery
	delivered uint64     // seq of lastSnap
	lastSnap  State
}

// effects collects what a mutation wants announced once the lock is released.
type effects struct {
	changed bool
	cues    []Cue
	record  *history.Entry
}

func (fx *effects) cue(c Cue) {
	fx.changed = true
	fx.cues = append(fx.cues, c)
}

// New constructs a game in the memorizing phase with empty sequences.
// Call Reset (or Initialize) to deal the first round.
func New(opts Options) *Game {
	if opts.Catalog == nil {
		opts.Catalog = sequence.Default()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Cues == nil {
		opts.Cues = nopCues{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if _, ok := opts.Catalog.Level(opts.Difficulty); !ok {
		opts.Difficulty = opts.Catalog.Default
	}
	lv, _ := opts.Catalog.Level(opts.Difficulty)

	return &Game{
		ID:       opts.ID,
		catalog:  opts.Catalog,
		gen:      sequence.NewGenerator(opts.Catalog, opts.Rand),
		cues:     opts.Cues,
		recorder: opts.Recorder,
		sched:    opts.Scheduler,
		now:      opts.Now,
		st: State{
			OriginalSequence: []sequence.Item{},
			DisplaySequence:  []sequence.Item{},
			PlayerSequence:   []sequence.Item{},
			IsMemorizing:     true,
			TimerSecond:      lv.TimerSeconds,
			Difficulty:       opts.Difficulty,
		},
		listeners: make(map[uint64]func(Event)),
	}
}

// ----------------------------- state store ---------------------------------

// Initialize deals a new unshuffled round at the current difficulty.
func (g *Game) Initialize() {
	g.update(func(fx *effects) {
		g.initializeLocked()
		fx.changed = true
	})
}

func (g *Game) initializeLocked() {
	lv := g.levelLocked()
	g.st.OriginalSequence = g.gen.Generate()[:lv.SequenceLength]
	g.st.DisplaySequence = append([]sequence.Item{}, g.st.OriginalSequence...)
	g.st.PlayerSequence = []sequence.Item{}
	g.st.Result = Result{}
	g.st.IsMemorizing = true
	g.st.IsPlaying = false
	g.st.TimerSecond = lv.TimerSeconds
	g.st.SelectionStartedAt = nil
	g.st.TotalSelectionTimeSeconds = 0
}

// Shuffle replaces the display order with a random permutation of the original.
func (g *Game) Shuffle() {
	g.update(func(fx *effects) {
		g.shuffleLocked()
		fx.changed = true
	})
}

func (g *Game) shuffleLocked() {
	g.st.DisplaySequence = g.gen.Shuffled(g.st.OriginalSequence)
}

// Reset stops the timer and deals a fresh shuffled round.
func (g *Game) Reset() {
	g.update(func(fx *effects) {
		g.stopTimerLocked()
		g.initializeLocked()
		g.shuffleLocked()
		fx.changed = true
	})
}

// SetDifficulty switches level and regenerates the sequences while keeping the
// logical phase: a memorizing game stays memorizing, an unsettled game in play
// stays in play, and a settled verdict stays on display. Any running timer is
// stopped.
func (g *Game) SetDifficulty(d sequence.Difficulty) error {
	lv, ok := g.catalog.Level(d)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, d)
	}
	g.update(func(fx *effects) {
		wasMemorizing := g.st.IsMemorizing
		wasPlaying := g.st.IsPlaying
		wasSettled := g.st.Result.Settled

		g.st.Difficulty = d
		g.st.TimerSecond = lv.TimerSeconds
		g.st.OriginalSequence = g.gen.Generate()[:lv.SequenceLength]
		g.st.PlayerSequence = []sequence.Item{}

		switch {
		case wasMemorizing:
			g.st.IsMemorizing, g.st.IsPlaying = true, false
		case wasPlaying && !wasSettled:
			g.st.IsMemorizing, g.st.IsPlaying = false, true
		case wasSettled:
			g.st.IsMemorizing, g.st.IsPlaying = false, false
		default:
			g.st.IsMemorizing, g.st.IsPlaying = true, false
		}

		g.shuffleLocked()
		g.stopTimerLocked()
		fx.changed = true
	})
	return nil
}

func (g *Game) levelLocked() sequence.Level {
	lv, _ := g.catalog.Level(g.st.Difficulty)
	return lv
}

// ------------------------------- timer --------------------------------------

// StartTimer leaves the memorizing phase and starts the countdown, replacing
// any timer already running. It is a no-op on a closed game.
func (g *Game) StartTimer() {
	g.update(func(fx *effects) {
		if g.closed {
			return
		}
		g.st.IsPlaying = true
		g.st.IsMemorizing = false
		g.stopTimerLocked()

		g.timerGen++
		gen := g.timerGen
		g.timer = g.sched.Every(tickInterval, func() { g.tick(gen) })
		fx.cue(CueStart)
	})
}

// StopTimer cancels the countdown. Stopping an idle timer does nothing.
func (g *Game) StopTimer() {
	g.update(func(fx *effects) {
		fx.changed = g.stopTimerLocked()
	})
}

func (g *Game) stopTimerLocked() bool {
	if g.timer == nil {
		return false
	}
	g.timer.Stop()
	g.timer = nil
	return true
}

// tick advances the countdown started as generation gen; ticks from a
// replaced or stopped timer are dropped.
func (g *Game) tick(gen uint64) {
	g.update(func(fx *effects) {
		if g.timer == nil || g.timerGen != gen {
			return
		}
		if g.st.TimerSecond <= 0 {
			g.st.TimerSecond = 0
			g.stopTimerLocked()
			now := g.now()
			g.st.SelectionStartedAt = &now
		} else {
			g.st.TimerSecond--
		}
		fx.changed = true
	})
}

// ------------------------------ selection -----------------------------------

// Select appends item to the player's sequence. It only applies during the
// selection phase of an unsettled round, and ignores repeats and overflow.
func (g *Game) Select(item sequence.Item) {
	g.update(func(fx *effects) {
		if !g.st.IsPlaying || g.st.TimerSecond != 0 || g.st.Result.Settled {
			return
		}
		if len(g.st.PlayerSequence) >= len(g.st.OriginalSequence) {
			return
		}
		for _, p := range g.st.PlayerSequence {
			if p.Name == item.Name {
				return
			}
		}
		g.st.PlayerSequence = append(g.st.PlayerSequence, item)
		fx.cue(CueSelect)
	})
}

// Remove drops the pick named name. Ignored once the round is settled.
func (g *Game) Remove(name string) {
	g.update(func(fx *effects) {
		if g.st.Result.Settled {
			return
		}
		kept := make([]sequence.Item, 0, len(g.st.PlayerSequence))
		for _, p := range g.st.PlayerSequence {
			if p.Name != name {
				kept = append(kept, p)
			}
		}
		g.st.PlayerSequence = kept
		fx.cue(CueRemove)
	})
}

// DisplayItem looks up an item of the current display sequence by name.
func (g *Game) DisplayItem(name string) (sequence.Item, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, it := range g.st.DisplaySequence {
		if it.Name == name {
			return it, true
		}
	}
	return sequence.Item{}, false
}

// ------------------------------ evaluation ----------------------------------

// Evaluate settles the round: the player wins only if their sequence matches
// the original item for item, in order.
func (g *Game) Evaluate() {
	g.update(func(fx *effects) {
		if g.st.SelectionStartedAt != nil {
			elapsed := g.now().Sub(*g.st.SelectionStartedAt)
			g.st.TotalSelectionTimeSeconds = int(math.Round(elapsed.Seconds()))
		}

		won := matches(g.st.OriginalSequence, g.st.PlayerSequence)
		if won {
			g.st.Result = Result{Label: WinLabel, Settled: true}
			fx.cue(CueWin)
		} else {
			g.st.Result = Result{Label: LoseLabel, Settled: true}
			fx.cue(CueLose)
		}

		g.st.IsMemorizing = false
		g.stopTimerLocked()

		if n := len(g.st.OriginalSequence); n > 0 {
			fx.record = &history.Entry{
				Date:           g.now(),
				Difficulty:     g.levelLocked().DisplayName,
				Won:            won,
				SequenceLength: n,
				TimeTaken:      g.st.TotalSelectionTimeSeconds,
				Attempts:       len(g.st.PlayerSequence),
			}
		}
	})
}

func matches(want, got []sequence.Item) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if !want[i].Equal(got[i]) {
			return false
		}
	}
	return true
}

// ------------------------------ lifecycle -----------------------------------

// Close stops the timer and drops all listeners. The game stays readable.
func (g *Game) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimerLocked()
	g.closed = true
	g.listeners = make(map[uint64]func(Event))
}

// Snapshot returns a deep copy of the current state.
func (g *Game) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() State {
	s := g.st
	s.OriginalSequence = append([]sequence.Item{}, g.st.OriginalSequence...)
	s.DisplaySequence = append([]sequence.Item{}, g.st.DisplaySequence...)
	s.PlayerSequence = append([]sequence.Item{}, g.st.PlayerSequence...)
	if g.st.SelectionStartedAt != nil {
		t := *g.st.SelectionStartedAt
		s.SelectionStartedAt = &t
	}
	s.TimerActive = g.timer != nil
	s.Phase = phaseOf(&s)
	return s
}

// Subscribe registers fn for change events. Listeners run outside the game
// lock, on whichever goroutine made the change, and may read the game but not
// mutate it.
func (g *Game) Subscribe(fn func(Event)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextLn
	g.nextLn++
	g.listeners[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// update runs fn under the lock, then fires cues, records the outcome and
// notifies listeners with the resulting snapshot. Deliveries do not overlap;
// when a newer change has already been delivered, listeners get the cues
// against that newer state and no state event.
func (g *Game) update(fn func(fx *effects)) {
	var fx effects

	g.mu.Lock()
	fn(&fx)
	if !fx.changed && fx.record == nil {
		g.mu.Unlock()
		return
	}
	g.seq++
	seq := g.seq
	snap := g.snapshotLocked()
	fns := make([]func(Event), 0, len(g.listeners))
	for _, l := range g.listeners {
		fns = append(fns, l)
	}
	g.mu.Unlock()

	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	stale := seq < g.delivered
	if !stale {
		g.delivered, g.lastSnap = seq, snap
	}
	for _, c := range fx.cues {
		g.cues.Cue(c)
		for _, l := range fns {
			l(Event{Type: EventCue, Cue: c.String(), State: g.lastSnap})
		}
	}
	if fx.record != nil && g.recorder != nil {
		e := g.recorder.AddEntry(*fx.record)
		log.Debug().Str("gameId", g.ID).Str("entry", e.ID).Bool("won", e.Won).Msg("round recorded")
	}
	if stale {
		return
	}
	for _, l := range fns {
		l(Event{Type: EventState, State: snap})
	}
}
