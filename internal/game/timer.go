// internal/game/timer.go
//
// Countdown scheduling. The engine only sees Scheduler/Ticker, so tests can
// drive ticks by hand; RealScheduler ticks on a goroutine per timer.

package game

import (
	"sync"
	"time"
)

// Ticker is the handle of a running periodic timer.
type Ticker interface {
	// Stop cancels the timer. It must not block and must tolerate repeat calls.
	Stop()
}

// Scheduler starts periodic timers.
type Scheduler interface {
	// Every calls fn every d until the returned Ticker is stopped.
	Every(d time.Duration, fn func()) Ticker
}

// RealScheduler runs fn on a goroutine driven by time.Ticker.
type RealScheduler struct{}

func (RealScheduler) Every(d time.Duration, fn func()) Ticker {
	t := &intervalTicker{t: time.NewTicker(d), done: make(chan struct{})}
	go t.run(fn)
	return t
}

type intervalTicker struct {
	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

func (it *intervalTicker) run(fn func()) {
	for {
		select {
		case <-it.done:
			return
		case <-it.t.C:
			fn()
		}
	}
}

func (it *intervalTicker) Stop() {
	it.once.Do(func() {
		it.t.Stop()
		close(it.done)
	})
}
