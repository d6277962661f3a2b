// internal/game/types.go
//
// Core type definitions for the memory game engine.
// Defines:
//   - Result: the verdict of a round.
//   - Phase: the effective phase derived from the state flags.
//   - State: a snapshot of the aggregate root.
//   - Cue / Cues: fire-and-forget side-effect hooks (sound, UI feedback).
//   - Recorder: where settled rounds are logged.
//   - Event: what change listeners receive.

package game

import (
	"errors"
	"time"

	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/sequence"
)

// Verdict labels. The casing is part of the client contract.
const (
	WinLabel  = "Menang"
	LoseLabel = "Kalah"
)

// ErrUnknownDifficulty is returned by SetDifficulty for keys missing from the catalog.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Result is the verdict of a round. Settled=false means no verdict yet.
type Result struct {
	Label   string `json:"result"`
	Settled bool   `json:"bool"`
}

// Phase is the effective phase of a round.
type Phase string

const (
	PhaseMemorizing   Phase = "memorizing"
	PhaseCountingDown Phase = "counting_down"
	PhaseSelecting    Phase = "selecting"
	PhaseSettled      Phase = "settled"
	PhaseIdle         Phase = "idle"
)

// State is a deep copy of the game at one instant.
type State struct {
	OriginalSequence          []sequence.Item     `json:"originalSequence"`
	DisplaySequence           []sequence.Item     `json:"displaySequence"`
	PlayerSequence            []sequence.Item     `json:"playerSequence"`
	Result                    Result              `json:"gameResult"`
	IsMemorizing              bool                `json:"isMemorizing"`
	IsPlaying                 bool                `json:"isPlaying"`
	TimerSecond               int                 `json:"timerSecond"`
	TimerActive               bool                `json:"timerActive"`
	Difficulty                sequence.Difficulty `json:"difficulty"`
	SelectionStartedAt        *time.Time          `json:"startTime"`
	TotalSelectionTimeSeconds int                 `json:"totalSelectionTime"`
	Phase                     Phase               `json:"phase"`
}

// phaseOf derives the effective phase from the flags.
func phaseOf(s *State) Phase {
	switch {
	case s.Result.Settled:
		return PhaseSettled
	case s.IsMemorizing:
		return PhaseMemorizing
	case s.IsPlaying && s.TimerSecond == 0:
		return PhaseSelecting
	case s.IsPlaying:
		return PhaseCountingDown
	default:
		return PhaseIdle
	}
}

// Cue identifies a side effect the engine announces.
type Cue int

const (
	CueStart Cue = iota + 1
	CueSelect
	CueRemove
	CueWin
	CueLose
)

func (c Cue) String() string {
	switch c {
	case CueStart:
		return "start"
	case CueSelect:
		return "select"
	case CueRemove:
		return "remove"
	case CueWin:
		return "win"
	case CueLose:
		return "lose"
	}
	return "unknown"
}

// Cues receives fire-and-forget notifications. Implementations must not block.
type Cues interface {
	Cue(c Cue)
}

// CueFunc adapts a function to Cues.
type CueFunc func(Cue)

func (f CueFunc) Cue(c Cue) { f(c) }

type nopCues struct{}

func (nopCues) Cue(Cue) {}

// Recorder stores the outcome of settled rounds. *history.Log satisfies it.
type Recorder interface {
	AddEntry(e history.Entry) history.Entry
}

// Event types delivered to listeners.
const (
	EventState = "state"
	EventCue   = "cue"
)

// Event is delivered to Subscribe listeners after a change.
type Event struct {
	Type  string `json:"type"`
	Cue   string `json:"cue,omitempty"`
	State State  `json:"state"`
}
