package avatarengine

import (
	"log"

	"github.com/avatarstream/avatarengine/audiorunway"
	"github.com/avatarstream/avatarengine/diagnostics"
)

// Option configures an Engine at construction time.
type Option func(*Config) error

// WithTargetFPS sets the playing-mode pull rate.
func WithTargetFPS(fps int) Option {
	return func(c *Config) error {
		c.TargetFPS = fps
		return nil
	}
}

// WithIdleFPS sets the idle-mode pull rate.
func WithIdleFPS(fps int) Option {
	return func(c *Config) error {
		c.IdleFPS = fps
		return nil
	}
}

// WithBufferMin sets the minimum consecutive decoded frames required
// before a section starts playing.
func WithBufferMin(n int) Option {
	return func(c *Config) error {
		c.BufferMin = n
		return nil
	}
}

// WithMaxConsecutiveSkipDraws sets the skip-draw force-advance timeout.
func WithMaxConsecutiveSkipDraws(n int) Option {
	return func(c *Config) error {
		c.MaxConsecutiveSkipDraws = n
		return nil
	}
}

// WithDecodeWorkers sets the image decode pool's worker count.
func WithDecodeWorkers(n int) Option {
	return func(c *Config) error {
		c.DecodeWorkers = n
		return nil
	}
}

// WithDecodeBatchYield sets how many records the decode pool processes
// within a batch before yielding the scheduler.
func WithDecodeBatchYield(n int) Option {
	return func(c *Config) error {
		c.DecodeBatchYield = n
		return nil
	}
}

// WithIdleAnimationName sets which registered base animation plays while
// the engine has no section to present.
func WithIdleAnimationName(name string) Option {
	return func(c *Config) error {
		c.IdleAnimationName = name
		return nil
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithListener registers an EngineListener.
func WithListener(listener EngineListener) Option {
	return func(c *Config) error {
		c.Listener = listener
		return nil
	}
}

// WithAudioDecoder sets the MP3->PCM collaborator.
func WithAudioDecoder(decoder audiorunway.Decoder) Option {
	return func(c *Config) error {
		c.Decoder = decoder
		return nil
	}
}

// WithAudioPlayer sets the audio output device.
func WithAudioPlayer(player audiorunway.Player) Option {
	return func(c *Config) error {
		c.Player = player
		return nil
	}
}

// WithDiagnostics attaches a SQLite-backed session event log.
func WithDiagnostics(log *diagnostics.Log) Option {
	return func(c *Config) error {
		c.Diagnostics = log
		return nil
	}
}
