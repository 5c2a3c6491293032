package avatarengine

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avatarstream/avatarengine/audiorunway"
	"github.com/avatarstream/avatarengine/internal/conductor"
	"github.com/avatarstream/avatarengine/internal/decodepool"
	"github.com/avatarstream/avatarengine/internal/events"
	"github.com/avatarstream/avatarengine/internal/framestore"
	"github.com/avatarstream/avatarengine/internal/scheduler"
)

// Engine wires the event demultiplexer, decode pool, frame store,
// section scheduler, conductor, and audio runway into the single
// streaming avatar animation pipeline described by this module.
type Engine struct {
	cfg Config

	store  *framestore.Store
	pool   *decodepool.Pool
	sched  *scheduler.Scheduler
	cond   *conductor.Conductor
	runway *audiorunway.Runway
	demux  *events.Demux

	mu               sync.Mutex
	currentMessageID string
	forcingIdle      bool
	ctx              context.Context
	cancel           context.CancelFunc
}

// New constructs an Engine. Decoder and Player may be supplied via
// WithAudioDecoder/WithAudioPlayer; without a Decoder, audio pre-decode
// silently no-ops and playback falls back to the wall-clock degenerate
// branch (per spec's audio pre-decode failure policy).
func New(opts ...Option) (*Engine, error) {
	cfg := Config{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	cfg = cfg.withDefaults()

	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: cfg.BufferMin})

	var runway *audiorunway.Runway
	if cfg.Decoder != nil {
		runway = audiorunway.New(cfg.Decoder, cfg.Player, audiorunway.DefaultConfig, cfg.Logger)
	} else {
		runway = audiorunway.New(noopDecoder{}, cfg.Player, audiorunway.DefaultConfig, cfg.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:    cfg,
		store:  store,
		sched:  sched,
		runway: runway,
		ctx:    ctx,
		cancel: cancel,
	}

	// OnFatal wires decodepool's resource-exhaustion path (an oversized or
	// hostile overlay frame) to handleDecodeFatal, which is why e must
	// already exist before the pool is constructed.
	e.pool = decodepool.New(store, decodepool.Config{
		Workers:    cfg.DecodeWorkers,
		BatchYield: cfg.DecodeBatchYield,
		Logger:     cfg.Logger,
		OnFatal:    e.handleDecodeFatal,
	})

	e.cond = conductor.New(sched, store, &audioRunwayBridge{e: e, runway: runway}, conductor.Config{
		TargetFPS:               cfg.TargetFPS,
		IdleFPS:                 cfg.IdleFPS,
		MaxConsecutiveSkipDraws: cfg.MaxConsecutiveSkipDraws,
		IdleAnimationName:       cfg.IdleAnimationName,
		Logger:                  cfg.Logger,
	}, &listenerBridge{e: e})

	e.demux = events.New(events.Handlers{
		OnAudioChunk:    e.handleAudioChunk,
		OnFrameBatch:    e.handleFrameBatch,
		OnChunkComplete: e.handleChunkComplete,
		OnAudioEnd:      e.handleAudioEnd,
		OnReset:         e.ForceIdleNow,
		OnViolation:     e.handleViolation,
	})

	return e, nil
}

// noopDecoder is used when the caller never configures a real MP3
// decoder; every pre-decode completes at once with empty PCM and a zero
// duration, so duration_for always reports 0 and playback pacing degrades to the documented
// wall-clock fallback branch.
type noopDecoder struct{}

func (noopDecoder) Decode(mp3 []byte) ([]byte, int64, error) {
	return nil, 0, nil
}

// RegisterBaseAnimation publishes a fully-decoded base animation for
// name. frames must be non-empty and are encoded with encode before being
// handed to the Conductor, since the core stores encoded bytes rather
// than rasterized images (the render sink owns rasterization).
func (e *Engine) RegisterBaseAnimation(name string, frames []image.Image, encode func(image.Image) ([]byte, error)) error {
	encoded := make([][]byte, len(frames))
	for i, f := range frames {
		b, err := encode(f)
		if err != nil {
			return err
		}
		encoded[i] = b
	}
	e.cond.RegisterBaseAnimation(name, encoded)
	return nil
}

// RegisterEncodedBaseAnimation is the same as RegisterBaseAnimation but
// for callers that already have encoded bytes on hand (e.g. loaded
// directly from a sprite-sheet cache on disk).
func (e *Engine) RegisterEncodedBaseAnimation(name string, frames [][]byte) {
	e.cond.RegisterBaseAnimation(name, frames)
}

// SubmitEvent feeds one inbound event through the demultiplexer. The
// first event of any kind submitted while no message is in progress
// assigns a fresh message ID used to correlate subsequent listener
// notifications.
func (e *Engine) SubmitEvent(ev events.Event) {
	e.mu.Lock()
	if e.currentMessageID == "" {
		e.currentMessageID = uuid.New().String()
		e.cond.MarkMessageActive()
	}
	e.mu.Unlock()
	e.demux.Dispatch(ev)
}

// Run drains src until it closes, dispatching every event through the
// demultiplexer. Intended to be run on its own goroutine.
func (e *Engine) Run(src events.Source) {
	for ev := range src.Events() {
		e.SubmitEvent(ev)
	}
}

// PullRenderFrame computes the next RenderFrame for display-refresh time
// now. Strictly non-blocking.
func (e *Engine) PullRenderFrame(now time.Time) RenderFrame {
	rf := e.cond.Pull(now)
	e.mu.Lock()
	msgID := e.currentMessageID
	e.mu.Unlock()
	return RenderFrame{
		BaseImage:    rf.BaseImage,
		OverlayImage: rf.OverlayImage,
		OverlayX:     rf.OverlayX,
		OverlayY:     rf.OverlayY,
		TimestampMs:  rf.TimestampMs,
		Idle:         rf.Idle,
		MessageID:    msgID,
	}
}

// RunPullLoop ticks PullRenderFrame at TargetFPS (or IdleFPS while idle)
// and presents each frame to sink, until ctx is canceled. It is a
// convenience for embedders without their own display-refresh callback.
func (e *Engine) RunPullLoop(ctx context.Context, sink RenderSink) {
	playInterval := time.Second / time.Duration(e.cfg.TargetFPS)
	idleInterval := time.Second / time.Duration(e.cfg.IdleFPS)
	interval := playInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rf := e.PullRenderFrame(now)
			sink.Present(rf)
			want := playInterval
			if rf.Idle {
				want = idleInterval
			}
			if want != interval {
				interval = want
				ticker.Reset(interval)
			}
		}
	}
}

// ForceIdleNow implements force_idle_now: it drops any in-flight decode
// results and clears the frame store, the section scheduler, the
// Conductor's playback state and the audio runway, returning the engine
// to idle. The demultiplexer's per-chunk batch bookkeeping is not reset
// here; it is reset only when the abort arrives as a reset event.
//
// forcingIdle is set for the duration of the synchronous cond.ForceIdleNow
// call so listenerBridge.OnModeChange can tell this abort-triggered Idle
// transition apart from a genuine "all chunks complete" one and suppress
// OnAllChunksComplete accordingly.
func (e *Engine) ForceIdleNow() {
	e.pool.BumpGeneration()
	e.store.ClearAll()
	e.mu.Lock()
	e.forcingIdle = true
	e.mu.Unlock()
	e.cond.ForceIdleNow()
	e.mu.Lock()
	e.forcingIdle = false
	e.currentMessageID = ""
	e.mu.Unlock()
}

func (e *Engine) handleAudioChunk(chunkIndex uint32, mp3 []byte, zone events.ZoneTopLeft) {
	e.sched.SetZone(chunkIndex, zone.X, zone.Y)
	e.runway.PreDecode(chunkIndex, mp3)
}

func (e *Engine) handleFrameBatch(chunkIndex uint32, frames []events.FrameRecord) {
	schedFrames := make([]scheduler.Frame, len(frames))
	for i, f := range frames {
		key := f.OverlayID
		if key == "" {
			key = framestore.ComputeKey(f.AnimationName, f.MatchedSpriteFrameNumber, f.SheetFilename)
		}
		schedFrames[i] = scheduler.Frame{
			SequenceIndex:            f.SequenceIndex,
			SectionIndex:             f.SectionIndex,
			AnimationName:            f.AnimationName,
			MatchedSpriteFrameNumber: f.MatchedSpriteFrameNumber,
			OverlayKey:               key,
			Character:                f.Character,
		}
	}
	e.sched.AddFrames(chunkIndex, schedFrames)
	if err := e.pool.SubmitBatch(e.ctx, chunkIndex, frames); err != nil {
		e.cfg.Listener.OnError("decodepool", err)
	}
	e.demux.CompleteBatch(chunkIndex)
}

func (e *Engine) handleChunkComplete(chunkIndex uint32, totalSent uint32) {
	e.sched.OnChunkComplete(chunkIndex)
}

func (e *Engine) handleAudioEnd() {
	e.cond.MarkAudioEnd()
}

// handleDecodeFatal wires decodepool's resource-shortage class failures
// (e.g. a frame too large to safely decode) to the documented policy:
// wrap as a FatalEngineError, surface it through EngineListener.OnError,
// and invoke force_idle_now since the engine cannot recover cleanly
// without discarding the in-flight message.
func (e *Engine) handleDecodeFatal(err error) {
	wrapped := &FatalEngineError{Component: "decodepool", Err: err}
	e.cfg.Logger.Printf("[ENGINE] fatal: %v", wrapped)
	e.cfg.Listener.OnError("decodepool", wrapped)
	e.ForceIdleNow()
}

func (e *Engine) handleViolation(err *events.ProtocolViolation) {
	e.cfg.Logger.Printf("[DEMUX] %v", err)
	e.cfg.Listener.OnError("demux", &ProtocolViolation{ChunkIndex: err.ChunkIndex, Reason: err.Reason})
}

// audioRunwayBridge adapts *audiorunway.Runway to conductor.AudioRunway,
// additionally firing EngineListener.OnStartAudio on every Start call so
// an embedder can route playback start to its own audio device if it
// isn't using audiorunway.Player directly.
type audioRunwayBridge struct {
	e      *Engine
	runway *audiorunway.Runway
}

func (b *audioRunwayBridge) Start(chunkIndex uint32) {
	b.runway.Start(chunkIndex)
	b.e.mu.Lock()
	msgID := b.e.currentMessageID
	b.e.mu.Unlock()
	b.e.cfg.Listener.OnStartAudio(msgID, chunkIndex)
}

func (b *audioRunwayBridge) ElapsedFor(chunkIndex uint32) int64  { return b.runway.ElapsedFor(chunkIndex) }
func (b *audioRunwayBridge) DurationFor(chunkIndex uint32) int64 { return b.runway.DurationFor(chunkIndex) }
func (b *audioRunwayBridge) Clear()                              { b.runway.Clear() }

// listenerBridge adapts internal/conductor.Listener to EngineListener
// (plus diagnostics persistence) without the conductor package importing
// either.
type listenerBridge struct {
	e *Engine
}

func (b *listenerBridge) OnModeChange(from, to conductor.Mode) {
	b.e.mu.Lock()
	msgID := b.e.currentMessageID
	forced := b.e.forcingIdle
	b.e.mu.Unlock()
	b.e.cfg.Listener.OnStateChange(msgID, from.String(), to.String())
	if b.e.cfg.Diagnostics != nil {
		_ = b.e.cfg.Diagnostics.RecordModeChange(time.Now(), from.String(), to.String())
	}
	// A force_idle_now-triggered transition (abort) is not the same event
	// as a message genuinely finishing its last chunk; only the latter
	// fires OnAllChunksComplete.
	if to == conductor.ModeIdle && from != conductor.ModeIdle && !forced {
		b.e.cfg.Listener.OnAllChunksComplete(msgID)
		b.e.mu.Lock()
		b.e.currentMessageID = ""
		b.e.mu.Unlock()
	}
}

func (b *listenerBridge) OnSkipDrawForced(chunkIndex, sectionIndex, frameIndex uint32) {
	if b.e.cfg.Diagnostics != nil {
		_ = b.e.cfg.Diagnostics.RecordSkipDrawForced(time.Now(), chunkIndex, sectionIndex, frameIndex)
	}
}

func (b *listenerBridge) OnChunkComplete(chunkIndex uint32) {
	if b.e.cfg.Diagnostics != nil {
		_ = b.e.cfg.Diagnostics.RecordChunkComplete(time.Now(), chunkIndex)
	}
}
