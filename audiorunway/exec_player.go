package audiorunway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"
)

// ExecPlayer plays PCM by writing it, WAV-wrapped, to a temp
// file and shelling out to a command-line player, in the manner of the
// afplay-backed reference implementation this module's sibling projects
// use: one temp file per chunk, command run synchronously under a
// context, temp file removed on return.
type ExecPlayer struct {
	config  Config
	command string
	args    []string
	logger  *log.Logger
}

// NewExecPlayer looks up command in PATH and returns an ExecPlayer that
// invokes it as: command args... <temp-wav-path>. args may be nil.
func NewExecPlayer(command string, args []string, cfg Config, logger *log.Logger) (*ExecPlayer, error) {
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("audiorunway: command %q not found in PATH: %w", command, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExecPlayer{config: cfg, command: command, args: args, logger: logger}, nil
}

// Play implements Player.
func (p *ExecPlayer) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return errors.New("audiorunway: cannot play empty pcm")
	}

	tmp, err := os.CreateTemp("", "avatarengine-audio-*.wav")
	if err != nil {
		return fmt.Errorf("audiorunway: create temp file: %w", err)
	}
	path := tmp.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			p.logger.Printf("[AUDIORUNWAY] failed to remove temp file %s: %v", path, rmErr)
		}
	}()

	header := wavHeader(len(pcm), p.config.Channels, p.config.SampleRate, p.config.BitsPerSample)
	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("audiorunway: write wav header: %w", err)
	}
	if _, err := tmp.Write(pcm); err != nil {
		tmp.Close()
		return fmt.Errorf("audiorunway: write pcm: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("audiorunway: close temp file: %w", err)
	}

	args := append(append([]string{}, p.args...), path)
	cmd := exec.CommandContext(ctx, p.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return fmt.Errorf("audiorunway: %s exec failed after %v: %w (stderr: %s)", p.command, time.Since(start), err, stderr.String())
	}
	return nil
}

// Cleanup implements Player. ExecPlayer holds no persistent resources.
func (p *ExecPlayer) Cleanup() error { return nil }

// RequiresWAVHeader implements Player: ExecPlayer wraps raw pcm in a WAV
// container itself before handing it to the external command, so callers
// pass raw samples rather than a complete WAV file.
func (p *ExecPlayer) RequiresWAVHeader() bool { return false }

// EstimatedLatency implements Player.
func (p *ExecPlayer) EstimatedLatency() time.Duration { return 150 * time.Millisecond }
