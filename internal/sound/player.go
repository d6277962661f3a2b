// internal/sound/player.go
//
// Cue playback.
//   - Player renders a cue's tone at the configured volume and hands it to an
//     Output; a disabled setting silences it.
//   - Speaker is the Output on the host audio device (one shared mixer).
//   - Multi fans a cue out to several receivers.

package sound

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/game"
)

// Settings is the subset of settings.Sound the player reads.
type Settings interface {
	Enabled() bool
	Volume() float64
}

// Output plays a rendered stream without blocking.
type Output interface {
	Play(s beep.Streamer)
}

// Player turns game cues into tones on an Output, gated by Settings.
// It implements game.Cues.
type Player struct {
	settings Settings
	out      Output
	rate     beep.SampleRate
}

// NewPlayer builds a player rendering at SampleRate.
func NewPlayer(settings Settings, out Output) *Player {
	return &Player{settings: settings, out: out, rate: SampleRate}
}

// Cue renders and plays c unless sound is disabled.
func (p *Player) Cue(c game.Cue) {
	if p.settings != nil && !p.settings.Enabled() {
		return
	}
	vol := 1.0
	if p.settings != nil {
		vol = p.settings.Volume()
	}
	s := Streamer(c, vol, p.rate)
	if s == nil {
		return
	}
	p.out.Play(s)
}

// Speaker is an Output on the host's audio device.
type Speaker struct {
	mu     sync.Mutex
	mixer  *beep.Mixer
	inited bool
}

// NewSpeaker returns an uninitialized speaker output.
func NewSpeaker() *Speaker {
	return &Speaker{mixer: &beep.Mixer{}}
}

// Init opens the audio device. Safe to call more than once.
func (s *Speaker) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inited {
		return nil
	}
	if err := speaker.Init(SampleRate, SampleRate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(s.mixer)
	s.inited = true
	return nil
}

// Play mixes st into the running output. Before Init it is dropped.
func (s *Speaker) Play(st beep.Streamer) {
	s.mu.Lock()
	ready := s.inited
	s.mu.Unlock()
	if !ready {
		log.Debug().Msg("speaker not initialized, dropping cue")
		return
	}
	speaker.Lock()
	s.mixer.Add(st)
	speaker.Unlock()
}

// Close silences everything still playing.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return
	}
	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
	s.inited = false
}

// Multi fans a cue out to several receivers.
type Multi []game.Cues

func (m Multi) Cue(c game.Cue) {
	for _, r := range m {
		r.Cue(c)
	}
}
