// internal/sound/tones.go
//
// Tone synthesis for game cues.
//
// Every cue is a short run of sine notes:
//   start  E5 100ms
//   select C5 50ms
//   remove G4 50ms
//   win    C5 100ms, E5 100ms, G5 200ms (rising)
//   lose   C5 100ms, G4 100ms, E4 200ms (falling)

package sound

import (
	"math"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/robalobadob/mejikuhibiniu/internal/game"
)

// SampleRate is the rate all cues are rendered at.
const SampleRate = beep.SampleRate(48000)

// Note frequencies in Hz.
const (
	E4 = 329.63
	G4 = 392.00
	C5 = 523.25
	E5 = 659.25
	G5 = 783.99
)

// edge is the fade applied to both ends of a note to avoid clicks.
const edge = 5 * time.Millisecond

// Note is one tone of a cue.
type Note struct {
	Freq     float64
	Duration time.Duration
}

// Notes returns the note sequence played for c.
func Notes(c game.Cue) []Note {
	switch c {
	case game.CueStart:
		return []Note{{E5, 100 * time.Millisecond}}
	case game.CueSelect:
		return []Note{{C5, 50 * time.Millisecond}}
	case game.CueRemove:
		return []Note{{G4, 50 * time.Millisecond}}
	case game.CueWin:
		return []Note{{C5, 100 * time.Millisecond}, {E5, 100 * time.Millisecond}, {G5, 200 * time.Millisecond}}
	case game.CueLose:
		return []Note{{C5, 100 * time.Millisecond}, {G4, 100 * time.Millisecond}, {E4, 200 * time.Millisecond}}
	}
	return nil
}

// Streamer renders c at volume (0..1). Unknown cues yield nil.
func Streamer(c game.Cue, volume float64, rate beep.SampleRate) beep.Streamer {
	notes := Notes(c)
	if len(notes) == 0 {
		return nil
	}
	parts := make([]beep.Streamer, len(notes))
	for i, n := range notes {
		parts[i] = newTone(n.Freq, n.Duration, rate)
	}
	return withVolume(beep.Seq(parts...), volume)
}

// tone is a sine oscillator with a linear fade in and out.
type tone struct {
	step     float64 // phase advance per sample
	phase    float64
	position int
	total    int
	fade     int
}

func newTone(freq float64, d time.Duration, rate beep.SampleRate) *tone {
	total := rate.N(d)
	fade := rate.N(edge)
	if 2*fade > total {
		fade = total / 2
	}
	return &tone{step: freq / float64(rate), total: total, fade: fade}
}

func (t *tone) Stream(samples [][2]float64) (n int, ok bool) {
	if t.position >= t.total {
		return 0, false
	}
	for i := range samples {
		if t.position >= t.total {
			return i, true
		}
		gain := 1.0
		if t.fade > 0 {
			if t.position < t.fade {
				gain = float64(t.position) / float64(t.fade)
			} else if left := t.total - t.position; left < t.fade {
				gain = float64(left) / float64(t.fade)
			}
		}
		v := math.Sin(2*math.Pi*t.phase) * gain
		samples[i][0] = v
		samples[i][1] = v

		t.phase += t.step
		t.phase -= math.Floor(t.phase)
		t.position++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }

// withVolume maps a linear 0..1 gain onto effects.Volume (base 2); 0 is silent.
func withVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(math.Min(vol, 1))}
}
