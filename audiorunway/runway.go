package audiorunway

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Decoder turns one chunk's MP3 bytes into PCM matching Config, reporting
// the resulting playback duration. Implementations run on Runway's single
// serial pre-decode worker and may block.
type Decoder interface {
	Decode(mp3 []byte) (pcm []byte, durationMs int64, err error)
}

type chunkAudio struct {
	pcm        []byte
	durationMs int64
}

type decodeTask struct {
	generation uint64
	chunkIndex uint32
	mp3        []byte
}

type playRequest struct {
	generation uint64
	chunkIndex uint32
	pcm        []byte
}

// Runway is AudioRunway: it pre-decodes MP3 chunks on a single serial
// worker (kept apart from the four image-decode workers so MP3 decode
// never starves frame decode or vice versa), queues decoded PCM onto a
// single playback thread, and reports wall-clock elapsed/duration so the
// Conductor can pace overlay advancement against real audio playback.
type Runway struct {
	decoder Decoder
	player  Player
	logger  *log.Logger
	cfg     Config

	generation atomic.Uint64

	mu            sync.Mutex
	audio         map[uint32]*chunkAudio
	started       map[uint32]bool
	playStart     map[uint32]time.Time
	playElapsedMs map[uint32]int64 // frozen elapsed once playback of the chunk finishes
	playDone      map[uint32]bool
	messageActive bool

	decodeQueue chan decodeTask
	playQueue   chan playRequest

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Runway. decoder and player must be non-nil.
func New(decoder Decoder, player Player, cfg Config, logger *log.Logger) *Runway {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	decodeQueue := make(chan decodeTask, 32)
	playQueue := make(chan playRequest, 32)
	r := &Runway{
		decoder:       decoder,
		player:        player,
		logger:        logger,
		cfg:           cfg,
		audio:         make(map[uint32]*chunkAudio),
		started:       make(map[uint32]bool),
		playStart:     make(map[uint32]time.Time),
		playElapsedMs: make(map[uint32]int64),
		playDone:      make(map[uint32]bool),
		messageActive: true,
		decodeQueue:   decodeQueue,
		playQueue:     playQueue,
		ctx:           ctx,
		cancel:        cancel,
	}
	go r.decodeLoop(ctx, decodeQueue)
	go r.playLoop(ctx, playQueue)
	return r
}

// PreDecode implements pre_decode: dispatches chunkIndex's MP3 bytes to
// the serial decode worker. A call for a chunk whose PCM is already
// decoded is a no-op; a call made while an earlier one for the same chunk
// is still queued or decoding is not deduplicated, and the chunk is
// decoded again.
//
// ctx and queue are snapshotted under the lock rather than read from r
// directly, since Clear replaces both live: a call in flight when Clear
// runs must keep using the generation it started with, not jump to the
// freshly-reset one.
func (r *Runway) PreDecode(chunkIndex uint32, mp3Bytes []byte) {
	r.mu.Lock()
	if _, ok := r.audio[chunkIndex]; ok {
		r.mu.Unlock()
		return
	}
	gen := r.generation.Load()
	ctx := r.ctx
	queue := r.decodeQueue
	r.mu.Unlock()

	select {
	case queue <- decodeTask{gen, chunkIndex, mp3Bytes}:
	case <-ctx.Done():
	}
}

func (r *Runway) decodeLoop(ctx context.Context, queue chan decodeTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-queue:
			if task.generation != r.generation.Load() {
				continue
			}
			pcm, durationMs, err := r.decoder.Decode(task.mp3)
			if err != nil {
				r.logger.Printf("[AUDIORUNWAY] decode failed chunk=%d: %v", task.chunkIndex, err)
				continue
			}
			r.mu.Lock()
			if task.generation == r.generation.Load() {
				r.audio[task.chunkIndex] = &chunkAudio{pcm: pcm, durationMs: durationMs}
			}
			r.mu.Unlock()
		}
	}
}

// Start implements start: moves chunkIndex's PCM onto the playback queue,
// polling up to 10s if pre-decode hasn't finished yet. At most once per
// chunk for the current generation. Start itself returns at once; the
// poll and the enqueue run on their own goroutine, so a caller on the
// render path never blocks.
//
// ctx and queue are snapshotted once at entry (see PreDecode) so a poll
// in flight when Clear runs keeps waiting on its own generation's
// cancellation instead of racing onto the new one.
func (r *Runway) Start(chunkIndex uint32) {
	r.mu.Lock()
	if r.started[chunkIndex] {
		r.mu.Unlock()
		return
	}
	r.started[chunkIndex] = true
	gen := r.generation.Load()
	ctx := r.ctx
	queue := r.playQueue
	r.mu.Unlock()

	go func() {
		deadline := time.Now().Add(10 * time.Second)
		for {
			r.mu.Lock()
			a, ok := r.audio[chunkIndex]
			r.mu.Unlock()
			if ok {
				select {
				case queue <- playRequest{generation: gen, chunkIndex: chunkIndex, pcm: a.pcm}:
				case <-ctx.Done():
				}
				return
			}
			if time.Now().After(deadline) {
				r.logger.Printf("[AUDIORUNWAY] start timed out waiting for pre-decode chunk=%d", chunkIndex)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}()
}

func (r *Runway) playLoop(ctx context.Context, queue chan playRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-queue:
			if req.generation != r.generation.Load() {
				continue
			}
			r.mu.Lock()
			r.playStart[req.chunkIndex] = time.Now()
			r.mu.Unlock()

			pcm := req.pcm
			if r.player.RequiresWAVHeader() {
				pcm = append(wavHeader(len(req.pcm), r.cfg.Channels, r.cfg.SampleRate, r.cfg.BitsPerSample), req.pcm...)
			}
			if err := r.player.Play(ctx, pcm); err != nil && ctx.Err() == nil {
				r.logger.Printf("[AUDIORUNWAY] playback failed chunk=%d: %v", req.chunkIndex, err)
			}

			r.mu.Lock()
			if req.generation == r.generation.Load() {
				if start, ok := r.playStart[req.chunkIndex]; ok {
					r.playElapsedMs[req.chunkIndex] = time.Since(start).Milliseconds()
				}
				r.playDone[req.chunkIndex] = true
			}
			r.mu.Unlock()
		}
	}
}

// ElapsedFor implements elapsed_for.
func (r *Runway) ElapsedFor(chunkIndex uint32) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playDone[chunkIndex] {
		return r.playElapsedMs[chunkIndex]
	}
	start, ok := r.playStart[chunkIndex]
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}

// DurationFor implements duration_for.
func (r *Runway) DurationFor(chunkIndex uint32) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.audio[chunkIndex]
	if !ok {
		return 0
	}
	return a.durationMs
}

// MarkMessageActive implements mark_message_active.
func (r *Runway) MarkMessageActive() {
	r.mu.Lock()
	r.messageActive = true
	r.mu.Unlock()
}

// MarkMessageComplete implements mark_message_complete.
func (r *Runway) MarkMessageComplete() {
	r.mu.Lock()
	r.messageActive = false
	r.mu.Unlock()
}

// Clear implements clear: cancels in-flight pre-decode and playback,
// drains every per-chunk map, and bumps the generation so any in-flight
// decode/play results that land afterward are discarded.
//
// The new ctx/cancel/queues are built as locals and only published onto
// the struct while holding r.mu, so decodeLoop/playLoop — and PreDecode/
// Start, which snapshot ctx and the relevant queue under the same lock —
// never observe a half-updated Runway. The old generation's cancel is
// invoked only after the new state is published and the lock released,
// using the reference captured before reassignment; the new goroutines
// are spawned last, bound to the new ctx/queues by parameter rather than
// by reading the (by-then-already-changed) struct fields.
func (r *Runway) Clear() {
	newCtx, newCancel := context.WithCancel(context.Background())
	newDecodeQueue := make(chan decodeTask, 32)
	newPlayQueue := make(chan playRequest, 32)

	r.mu.Lock()
	r.generation.Add(1)
	oldCancel := r.cancel
	r.ctx = newCtx
	r.cancel = newCancel
	r.decodeQueue = newDecodeQueue
	r.playQueue = newPlayQueue
	r.audio = make(map[uint32]*chunkAudio)
	r.started = make(map[uint32]bool)
	r.playStart = make(map[uint32]time.Time)
	r.playElapsedMs = make(map[uint32]int64)
	r.playDone = make(map[uint32]bool)
	r.messageActive = false
	r.mu.Unlock()

	oldCancel()

	go r.decodeLoop(newCtx, newDecodeQueue)
	go r.playLoop(newCtx, newPlayQueue)
}
