package audiorunway

import (
	"context"
	"sync"
	"time"
)

// NoopPlayer is an in-memory Player used for tests and headless demo
// modes: it records what it was asked to play without touching any real
// audio device.
type NoopPlayer struct {
	mu     sync.Mutex
	Played [][]byte
	Delay  time.Duration
}

func (p *NoopPlayer) Play(ctx context.Context, pcm []byte) error {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.Played = append(p.Played, pcm)
	p.mu.Unlock()
	return nil
}

func (p *NoopPlayer) Cleanup() error                  { return nil }
func (p *NoopPlayer) RequiresWAVHeader() bool         { return false }
func (p *NoopPlayer) EstimatedLatency() time.Duration { return 0 }

// FixedDecoder is a Decoder stub for tests: it returns a fixed PCM
// payload and duration regardless of input, optionally after a delay to
// exercise Start's pre-decode poll.
type FixedDecoder struct {
	PCM        []byte
	DurationMs int64
	Delay      time.Duration
}

func (d *FixedDecoder) Decode(mp3 []byte) ([]byte, int64, error) {
	if d.Delay > 0 {
		time.Sleep(d.Delay)
	}
	return d.PCM, d.DurationMs, nil
}
