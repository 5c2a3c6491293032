package avatarengine

import (
	"log"

	"github.com/avatarstream/avatarengine/audiorunway"
	"github.com/avatarstream/avatarengine/diagnostics"
)

// Config tunes the engine. A zero Config is valid; unset fields fall
// back to the documented defaults.
type Config struct {
	TargetFPS               int // default 30
	IdleFPS                 int // default 10
	BufferMin               int // default 2, tunable 2..30
	MaxConsecutiveSkipDraws int // default 15
	DecodeWorkers           int // default 4
	DecodeBatchYield        int // default 15
	IdleAnimationName       string

	Logger   *log.Logger
	Listener EngineListener
	Decoder  audiorunway.Decoder // MP3->PCM; required to play audio, optional otherwise
	Player   audiorunway.Player  // default audiorunway.NoopPlayer if nil

	// Diagnostics, when set, additionally persists Conductor mode changes,
	// chunk completions and forced skip-draws to SQLite. OnError and
	// OnStartAudio notifications are not persisted.
	Diagnostics *diagnostics.Log
}

func (c Config) withDefaults() Config {
	if c.TargetFPS <= 0 {
		c.TargetFPS = 30
	}
	if c.IdleFPS <= 0 {
		c.IdleFPS = 10
	}
	if c.BufferMin <= 0 {
		c.BufferMin = 2
	}
	if c.MaxConsecutiveSkipDraws <= 0 {
		c.MaxConsecutiveSkipDraws = 15
	}
	if c.DecodeWorkers <= 0 {
		c.DecodeWorkers = 4
	}
	if c.DecodeBatchYield <= 0 {
		c.DecodeBatchYield = 15
	}
	if c.IdleAnimationName == "" {
		c.IdleAnimationName = "idle"
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Listener == nil {
		c.Listener = NoopListener{}
	}
	if c.Player == nil {
		c.Player = &audiorunway.NoopPlayer{}
	}
	return c
}
