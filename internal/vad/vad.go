// Package vad classifies arriving audio frames as speech or silence using
// RMS energy with a dB threshold and hysteresis, emitting SpeechStart and
// SpeechEnd events with a configurable pre-roll window to avoid clipping
// word onsets.
package vad

import (
	"math"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
)

const (
	// DefaultEnergyThresholdDB is the RMS-to-dB floor above which a frame counts as speech.
	DefaultEnergyThresholdDB = -40.0
	// DefaultSpeechTriggerFrames is the consecutive above-threshold frame count to enter speaking.
	DefaultSpeechTriggerFrames = 3
	// DefaultPreRollFrames approximates 0.2s of pre-roll at the pipeline's 512-sample/16kHz framing (~32ms/frame).
	DefaultPreRollFrames = 6

	minDB = -120.0
)

// Mode is the VAD's current classification.
type Mode int

const (
	ModeIdle Mode = iota
	ModeSpeaking
)

// Config holds the tunable thresholds for a Gate.
type Config struct {
	EnergyThresholdDB   float64
	SpeechTriggerFrames int
	SilenceTriggerFrames int
	PreRollFrames       int
}

// DefaultConfig returns the spec's documented defaults. SilenceTriggerFrames
// is a fixed 25 frames, ~800ms at the pipeline's ~32ms frames; callers
// that know their exact frame duration should set it explicitly.
func DefaultConfig() Config {
	return Config{
		EnergyThresholdDB:    DefaultEnergyThresholdDB,
		SpeechTriggerFrames:  DefaultSpeechTriggerFrames,
		SilenceTriggerFrames: 25, // ~800ms at ~32ms/frame
		PreRollFrames:        DefaultPreRollFrames,
	}
}

// Event is either a SpeechStart or SpeechEnd transition.
type Event struct {
	Kind    EventKind
	PreRoll []ring.Frame // set on SpeechStart
	Window  []ring.Frame // set on SpeechEnd: pre-roll through the transition
}

type EventKind int

const (
	EventSpeechStart EventKind = iota
	EventSpeechEnd
)

// Gate is a stateful energy classifier. It is not safe for concurrent use;
// one goroutine drives Push for one session's audio window.
type Gate struct {
	cfg Config

	mode          Mode
	speechFrames  int
	silenceFrames int

	preRoll []ring.Frame // bounded ring of the last PreRollFrames frames
	window  []ring.Frame // accumulated frames since SpeechStart, for SpeechEnd
}

// NewGate constructs a Gate with cfg, filling in documented defaults for
// any zero-valued field.
func NewGate(cfg Config) *Gate {
	defaults := DefaultConfig()
	if cfg.EnergyThresholdDB == 0 {
		cfg.EnergyThresholdDB = defaults.EnergyThresholdDB
	}
	if cfg.SpeechTriggerFrames <= 0 {
		cfg.SpeechTriggerFrames = defaults.SpeechTriggerFrames
	}
	if cfg.SilenceTriggerFrames <= 0 {
		cfg.SilenceTriggerFrames = defaults.SilenceTriggerFrames
	}
	if cfg.PreRollFrames <= 0 {
		cfg.PreRollFrames = defaults.PreRollFrames
	}
	return &Gate{cfg: cfg}
}

// Push classifies one frame and returns any events it triggers (at most one
// SpeechStart or SpeechEnd per call).
func (g *Gate) Push(frame ring.Frame) []Event {
	db := rmsDB(frame)
	above := db >= g.cfg.EnergyThresholdDB

	g.pushPreRoll(frame)

	var events []Event
	switch g.mode {
	case ModeIdle:
		if above {
			g.speechFrames++
			g.silenceFrames = 0
			if g.speechFrames >= g.cfg.SpeechTriggerFrames {
				g.mode = ModeSpeaking
				g.speechFrames = 0
				preRoll := append([]ring.Frame(nil), g.preRoll...)
				g.window = append([]ring.Frame(nil), preRoll...)
				events = append(events, Event{Kind: EventSpeechStart, PreRoll: preRoll})
			}
		} else {
			g.speechFrames = 0
		}
	case ModeSpeaking:
		g.window = append(g.window, frame)
		if above {
			g.silenceFrames = 0
		} else {
			g.silenceFrames++
			if g.silenceFrames >= g.cfg.SilenceTriggerFrames {
				window := g.window
				g.mode = ModeIdle
				g.silenceFrames = 0
				g.window = nil
				events = append(events, Event{Kind: EventSpeechEnd, Window: window})
			}
		}
	}
	return events
}

// Close forces the current segment closed regardless of hysteresis state,
// used when C9 receives confirm mid-utterance.
func (g *Gate) Close() *Event {
	if g.mode != ModeSpeaking {
		return nil
	}
	window := g.window
	g.mode = ModeIdle
	g.window = nil
	g.silenceFrames = 0
	return &Event{Kind: EventSpeechEnd, Window: window}
}

func (g *Gate) pushPreRoll(frame ring.Frame) {
	g.preRoll = append(g.preRoll, frame)
	if len(g.preRoll) > g.cfg.PreRollFrames {
		g.preRoll = g.preRoll[len(g.preRoll)-g.cfg.PreRollFrames:]
	}
}

// rmsDB computes 20*log10(rms), floored at minDB.
func rmsDB(frame ring.Frame) float64 {
	if len(frame) == 0 {
		return minDB
	}
	var sumSquares float64
	for _, s := range frame {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(frame)))
	if rms <= 0 {
		return minDB
	}
	db := 20 * math.Log10(rms)
	if db < minDB {
		return minDB
	}
	return db
}
