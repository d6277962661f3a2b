// internal/cleanup/cleaner.go
//
// Background janitor.
// Every interval it:
//   1. drops history logs not used within the idle window from memory
//   2. closes game sessions idle for longer than the idle window

package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/store"
)

// Cleaner periodically closes game sessions nobody has touched for a while,
// so abandoned countdown timers do not run forever, and drops idle history
// logs from memory.
type Cleaner struct {
	sessions store.Store
	logs     *history.Book // may be nil
	idle     time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCleaner creates a new cleanup worker.
func NewCleaner(sessions store.Store, logs *history.Book, idle, interval time.Duration) *Cleaner {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Cleaner{sessions: sessions, logs: logs, idle: idle, interval: interval, now: time.Now}
}

// Start begins the cleanup worker in a goroutine; it stops with ctx.
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	log.Info().Dur("interval", c.interval).Dur("idle", c.idle).Msg("cleanup worker started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("cleanup worker stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup cycle and returns the number of sessions closed.
func (c *Cleaner) Sweep(ctx context.Context) int {
	cutoff := c.now().Add(-c.idle)
	if c.logs != nil {
		if n := c.logs.Evict(cutoff); n > 0 {
			log.Debug().Int("count", n).Int("held", c.logs.Len()).Msg("evicted idle history logs")
		}
	}

	n, err := c.sessions.Expire(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire sessions")
		return 0
	}
	if n > 0 {
		log.Info().Int("count", n).Int("live", c.sessions.Len()).Msg("expired idle sessions")
	} else {
		log.Debug().Msg("no idle sessions")
	}
	return n
}
