// internal/settings/settings.go
//
// Persisted sound preferences.
//
// Keys (scalar strings in the kv store):
//   soundEnabled = "true" | "false"   (default true)
//   soundVolume  = decimal in [0,1]   (default 0.5)
//
// Unreadable or unparsable values are logged and replaced by defaults.

package settings

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/kv"
)

const (
	EnabledKey = "soundEnabled"
	VolumeKey  = "soundVolume"

	DefaultVolume = 0.5

	ioTimeout = 2 * time.Second
)

// Sound holds the sound preferences. Safe for concurrent use.
type Sound struct {
	mu      sync.RWMutex
	store   kv.Store
	enabled bool
	volume  float64
}

// SoundView is the JSON shape of the preferences.
type SoundView struct {
	Enabled bool    `json:"enabled"`
	Volume  float64 `json:"volume"`
}

// LoadSound reads the preferences from store (nil means defaults, not persisted).
func LoadSound(store kv.Store) *Sound {
	s := &Sound{store: store, enabled: true, volume: DefaultVolume}
	if store == nil {
		return s
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	if v, ok, err := store.Get(ctx, EnabledKey); err != nil {
		log.Warn().Err(err).Msg("load sound enabled")
	} else if ok {
		s.enabled = v == "true"
	}
	if v, ok, err := store.Get(ctx, VolumeKey); err != nil {
		log.Warn().Err(err).Msg("load sound volume")
	} else if ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			log.Warn().Str("value", v).Msg("bad stored volume, using default")
		} else {
			s.volume = clamp(f)
		}
	}
	return s
}

func (s *Sound) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *Sound) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// View returns both values at once.
func (s *Sound) View() SoundView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SoundView{Enabled: s.enabled, Volume: s.volume}
}

func (s *Sound) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	s.save()
}

// SetVolume stores v clamped to [0,1].
func (s *Sound) SetVolume(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.mu.Lock()
	s.volume = clamp(v)
	s.mu.Unlock()
	s.save()
}

func (s *Sound) save() {
	if s.store == nil {
		return
	}
	view := s.View()
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.store.Set(ctx, EnabledKey, strconv.FormatBool(view.Enabled)); err != nil {
		log.Warn().Err(err).Msg("save sound enabled")
	}
	if err := s.store.Set(ctx, VolumeKey, strconv.FormatFloat(view.Volume, 'f', -1, 64)); err != nil {
		log.Warn().Err(err).Msg("save sound volume")
	}
}

func clamp(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
