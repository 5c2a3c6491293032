// Package audiorunway implements AudioRunway: chunk MP3 pre-decode
// serialization, a single-thread sequential playback queue, and wall-clock
// elapsed/duration reporting that paces the Conductor's advancement.
package audiorunway

import (
	"context"
	"time"
)

// Player is the output-device abstraction a Runway drives. Its shape is
// carried over from the reference audio player contract this codebase's
// sibling projects use: a blocking Play call per PCM chunk, idempotent
// Cleanup, and latency/format metadata the caller needs to decide whether
// to pre-pad PCM with a WAV header.
type Player interface {
	// Play blocks until the device has finished draining pcm, or ctx is
	// canceled.
	Play(ctx context.Context, pcm []byte) error
	// Cleanup releases any resources held by the player. Safe to call
	// more than once.
	Cleanup() error
	// RequiresWAVHeader reports whether pcm passed to Play must be a
	// complete WAV file rather than raw interleaved samples.
	RequiresWAVHeader() bool
	// EstimatedLatency is the player's own device/buffering latency,
	// which Runway does not attempt to compensate for — callers needing
	// tighter sync should subtract it from ElapsedFor themselves.
	EstimatedLatency() time.Duration
}

// Config describes the PCM format Runway's Decoder is expected to
// produce and Player is expected to consume.
type Config struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Format        string
}

// DefaultConfig matches the wire format the reference Decoder and
// ExecPlayer agree on: 24kHz mono 16-bit signed little-endian PCM.
var DefaultConfig = Config{
	SampleRate:    24000,
	Channels:      1,
	BitsPerSample: 16,
	Format:        "s16le",
}
