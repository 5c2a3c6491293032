// Package conductor implements the Conductor: the non-blocking 30 Hz
// render-pull loop that drives audio-paced overlay advancement, the
// decode-gate, jitter hold, and skip-draw.
package conductor

import (
	"log"
	"time"

	"github.com/avatarstream/avatarengine/internal/framestore"
	"github.com/avatarstream/avatarengine/internal/scheduler"
)

// Mode is the Conductor's playback state.
type Mode int

const (
	ModeIdle Mode = iota
	ModePlaying
	ModeWaitingNext
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePlaying:
		return "playing"
	case ModeWaitingNext:
		return "waiting_next"
	default:
		return "unknown"
	}
}

// AudioRunway is the capability surface Conductor needs from the audio
// side. It is satisfied structurally by audiorunway.Runway; Conductor
// never imports that package, avoiding a back-reference between the two.
type AudioRunway interface {
	Start(chunkIndex uint32)
	ElapsedFor(chunkIndex uint32) (ms int64)
	DurationFor(chunkIndex uint32) (ms int64)
	Clear()
}

// baseAnimation holds a registered, immutable base-frame array. Conductor
// keeps registrations directly (see RegisterBaseAnimation) rather than
// querying a collaborator, since base-animation arrays are write-once
// published data, not a live capability.
type baseAnimation struct {
	frames [][]byte
}

// RenderFrame is the unit Conductor.Pull emits each tick.
type RenderFrame struct {
	BaseImage    []byte
	OverlayImage []byte
	OverlayX     int32
	OverlayY     int32
	TimestampMs  int64
	Idle         bool
}

// Config tunes the Conductor. Zero values fall back to spec defaults.
type Config struct {
	TargetFPS               int // 30
	IdleFPS                 int // 10
	MaxConsecutiveSkipDraws int // 15
	IdleAnimationName       string
	Logger                  *log.Logger
}

// Listener receives Conductor lifecycle notifications, mirroring the
// engine's EngineListener without importing the root package.
type Listener interface {
	OnModeChange(from, to Mode)
	OnSkipDrawForced(chunkIndex, sectionIndex uint32, frameIndex uint32)
	OnChunkComplete(chunkIndex uint32)
}

// Conductor is the Conductor.
type Conductor struct {
	sched  *scheduler.Scheduler
	store  *framestore.Store
	audio  AudioRunway
	logger *log.Logger
	listen Listener

	targetFPS   int
	idleFPS     int
	maxSkipHold int
	idleAnim    string

	baseAnimations map[string]*baseAnimation

	mode                 Mode
	current              *scheduler.Section
	currentDrawingFrame  uint32
	holdingLastFrame     bool
	audioStarted         bool
	audioTriggerTimeMs   int64
	audioDurationMs      int64
	consecutiveSkipDraws int
	nextExpectedChunk    uint32
	messageActive        bool
	audioEndReceived     bool

	previous *RenderFrame

	// Degenerate wall-clock fallback state, used only when no audio
	// timing information is available at all.
	lastAdvanceAt time.Time
	haveLastTick  bool

	idleFrameIndex  uint32
	lastIdleAdvance time.Time
	haveIdleAdvance bool
}

// New constructs a Conductor. listener may be nil.
func New(sched *scheduler.Scheduler, store *framestore.Store, audio AudioRunway, cfg Config, listener Listener) *Conductor {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 30
	}
	if cfg.IdleFPS <= 0 {
		cfg.IdleFPS = 10
	}
	if cfg.MaxConsecutiveSkipDraws <= 0 {
		cfg.MaxConsecutiveSkipDraws = 15
	}
	if cfg.IdleAnimationName == "" {
		cfg.IdleAnimationName = "idle"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Conductor{
		sched:          sched,
		store:          store,
		audio:          audio,
		logger:         cfg.Logger,
		listen:         listener,
		targetFPS:      cfg.TargetFPS,
		idleFPS:        cfg.IdleFPS,
		maxSkipHold:    cfg.MaxConsecutiveSkipDraws,
		idleAnim:       cfg.IdleAnimationName,
		baseAnimations: make(map[string]*baseAnimation),
		mode:           ModeIdle,
		messageActive:  true,
	}
}

// RegisterBaseAnimation publishes a fully-decoded, immutable base
// animation. Safe to call before or after playback begins; frames may
// arrive in any order relative to other animations.
func (c *Conductor) RegisterBaseAnimation(name string, frames [][]byte) {
	c.baseAnimations[name] = &baseAnimation{frames: frames}
}

// Mode reports the current playback mode.
func (c *Conductor) Mode() Mode { return c.mode }

// MarkMessageActive signals a new message has begun (more chunks expected).
func (c *Conductor) MarkMessageActive() {
	c.messageActive = true
	c.audioEndReceived = false
}

// MarkAudioEnd signals no further chunks will arrive for the current
// message; once the queue and current section drain, the Conductor settles
// to Idle instead of WaitingNext.
func (c *Conductor) MarkAudioEnd() {
	c.audioEndReceived = true
}

// NotifyQueueGrew should be called whenever the scheduler's queue gains a
// section; it is a no-op beyond giving Pull a chance to leave Idle/
// WaitingNext promptly on the next tick, since Pull already attempts
// try_start_next_section every call.
func (c *Conductor) NotifyQueueGrew() {}

func (c *Conductor) setMode(m Mode) {
	if c.mode == m {
		return
	}
	prev := c.mode
	c.mode = m
	if c.listen != nil {
		c.listen.OnModeChange(prev, m)
	}
}

// tryStartNextSection implements try_start_next_section.
func (c *Conductor) tryStartNextSection() bool {
	head, ok := c.sched.PeekHead()
	if !ok {
		return false
	}
	if head.ChunkIndex != c.nextExpectedChunk {
		return false
	}
	if !c.sched.IsBufferReady(head) {
		return false
	}
	sec, _ := c.sched.PopHead()
	c.current = sec
	c.currentDrawingFrame = 0
	c.holdingLastFrame = false
	c.audioStarted = false
	c.audioTriggerTimeMs = 0
	c.audioDurationMs = 0
	c.consecutiveSkipDraws = 0
	c.haveLastTick = false
	c.setMode(ModePlaying)
	return true
}

// Pull computes the next RenderFrame for display-refresh time now. It is
// strictly non-blocking: it reads FrameStore readiness and AudioRunway
// elapsed/duration, then advances or holds.
func (c *Conductor) Pull(now time.Time) RenderFrame {
	nowMs := now.UnixMilli()

	switch c.mode {
	case ModeIdle, ModeWaitingNext:
		c.tryStartNextSection()
	}

	switch c.mode {
	case ModeIdle:
		return c.pullIdle(now, nowMs)
	case ModeWaitingNext:
		if c.audioEndReceived && c.sched.QueueLen() == 0 {
			c.setMode(ModeIdle)
			return c.pullIdle(now, nowMs)
		}
		// Nothing to draw but the message isn't over; keep presenting the
		// last overlay rather than dropping to idle, matching the jitter
		// hold's no-visible-gap intent at section boundaries.
		if c.previous != nil {
			f := *c.previous
			f.TimestampMs = nowMs
			return f
		}
		return c.pullIdle(now, nowMs)
	default:
		return c.pullPlaying(now, nowMs)
	}
}

func (c *Conductor) pullIdle(now time.Time, nowMs int64) RenderFrame {
	anim := c.baseAnimations[c.idleAnim]
	if anim == nil || len(anim.frames) == 0 {
		return RenderFrame{Idle: true, TimestampMs: nowMs}
	}
	intervalMs := 1000 / c.idleFPS
	if !c.haveIdleAdvance || now.Sub(c.lastIdleAdvance) >= time.Duration(intervalMs)*time.Millisecond {
		c.idleFrameIndex = (c.idleFrameIndex + 1) % uint32(len(anim.frames))
		c.lastIdleAdvance = now
		c.haveIdleAdvance = true
	}
	f := RenderFrame{
		BaseImage:   anim.frames[c.idleFrameIndex],
		TimestampMs: nowMs,
		Idle:        true,
	}
	c.previous = &f
	return f
}

func (c *Conductor) pullPlaying(now time.Time, nowMs int64) RenderFrame {
	sec := c.current
	total := uint32(len(sec.Frames))

	// 1. Audio trigger, before advancement.
	if !c.audioStarted {
		c.audioStarted = true
		c.audioTriggerTimeMs = nowMs
		c.audioDurationMs = c.audio.DurationFor(sec.ChunkIndex)
		c.audio.Start(sec.ChunkIndex)
	}

	// 2. Late-duration poll.
	if c.audioDurationMs == 0 {
		c.audioDurationMs = c.audio.DurationFor(sec.ChunkIndex)
	}

	elapsed := c.audio.ElapsedFor(sec.ChunkIndex)

	var target uint32
	var haveTarget bool
	switch {
	case elapsed > 0 && c.audioDurationMs > 0:
		target = c.audioPacedTarget(total, elapsed)
		haveTarget = true
	case c.audioDurationMs > 0:
		// Audio known but device hasn't started draining PCM yet: hold so
		// overlay and audio begin together.
	default:
		target, haveTarget = c.wallClockFallbackTarget(now, total)
	}

	// 3+5. Decode-gate the advance toward target, tracking how long we've
	// been blocked trying to reach it. The wait (skip-draw) applies to the
	// *next* frame we are trying to reach, not to the one on screen: the
	// displayed frame is the most recent one that was actually ready,
	// except right after a forced advance, which lands on the stuck frame
	// itself.
	if haveTarget && !c.holdingLastFrame {
		blocked := c.advanceDecodeGated(target, sec)
		if blocked {
			c.consecutiveSkipDraws++
			if c.consecutiveSkipDraws >= c.maxSkipHold {
				if c.listen != nil {
					c.listen.OnSkipDrawForced(sec.ChunkIndex, sec.SectionIndex, c.currentDrawingFrame+1)
				}
				c.logger.Printf("[CONDUCTOR] forcing past stuck frame chunk=%d section=%d frame=%d after %d holds",
					sec.ChunkIndex, sec.SectionIndex, c.currentDrawingFrame+1, c.consecutiveSkipDraws)
				c.consecutiveSkipDraws = 0
				if c.currentDrawingFrame < total-1 {
					c.currentDrawingFrame++
				}
			}
		} else {
			c.consecutiveSkipDraws = 0
		}
	}

	// 4. Jitter hold: only meaningful once we are at the last frame.
	// Re-evaluated every tick rather than latched, so the hold resolves
	// the moment the next section's buffer becomes ready instead of
	// sticking forever once triggered.
	if c.currentDrawingFrame == total-1 {
		if next, ok := c.sched.PeekHead(); ok {
			c.holdingLastFrame = !c.sched.IsBufferReady(next)
		} else {
			c.holdingLastFrame = false
		}
	}

	frame := sec.Frames[c.currentDrawingFrame]
	base := c.resolveBaseImage(frame.AnimationName, frame.MatchedSpriteFrameNumber)
	overlay, _ := c.store.Get(frame.OverlayKey) // may be absent if force-advanced past an undecoded frame

	rf := RenderFrame{
		BaseImage:    base,
		OverlayImage: overlay,
		OverlayX:     sec.ZoneTopLeftX,
		OverlayY:     sec.ZoneTopLeftY,
		TimestampMs:  nowMs,
	}
	c.previous = &rf

	sectionExhausted := c.audioDurationMs == 0 || elapsed >= c.audioDurationMs
	if sectionExhausted && c.currentDrawingFrame == total-1 && !c.holdingLastFrame {
		c.finishSection(nowMs)
	}

	return rf
}

func (c *Conductor) audioPacedTarget(total uint32, elapsed int64) uint32 {
	if elapsed >= c.audioDurationMs {
		return total - 1
	}
	ratio := float64(elapsed) / float64(c.audioDurationMs)
	if ratio > 1 {
		ratio = 1
	}
	target := uint32(ratio * float64(total))
	if target >= total {
		target = total - 1
	}
	return target
}

func (c *Conductor) wallClockFallbackTarget(now time.Time, total uint32) (uint32, bool) {
	tickMs := 1000 / c.targetFPS
	if !c.haveLastTick {
		c.lastAdvanceAt = now
		c.haveLastTick = true
		return c.currentDrawingFrame, false
	}
	if now.Sub(c.lastAdvanceAt) < time.Duration(tickMs)*time.Millisecond {
		return c.currentDrawingFrame, false
	}
	c.lastAdvanceAt = now
	next := c.currentDrawingFrame + 1
	if next >= total {
		next = total - 1
	}
	return next, true
}

// advanceDecodeGated advances current_drawing_frame one frame at a time
// toward target, stopping at the first undecoded frame — the decode-gate.
// It reports whether the advance was blocked short of target.
func (c *Conductor) advanceDecodeGated(target uint32, sec *scheduler.Section) (blocked bool) {
	if target <= c.currentDrawingFrame {
		return false
	}
	i := c.currentDrawingFrame
	for i < target {
		next := i + 1
		if !c.store.IsReady(sec.Frames[next].OverlayKey) {
			c.currentDrawingFrame = i
			return true
		}
		i = next
	}
	c.currentDrawingFrame = i
	return false
}

func (c *Conductor) resolveBaseImage(animationName string, matchedSpriteFrameNumber uint32) []byte {
	anim := c.baseAnimations[animationName]
	if anim == nil || len(anim.frames) == 0 {
		return nil
	}
	idx := matchedSpriteFrameNumber % uint32(len(anim.frames))
	return anim.frames[idx]
}

func (c *Conductor) finishSection(nowMs int64) {
	chunkIndex := c.current.ChunkIndex
	c.current = nil
	c.nextExpectedChunk++
	if c.listen != nil {
		c.listen.OnChunkComplete(chunkIndex)
	}
	if c.tryStartNextSection() {
		return
	}
	if c.audioEndReceived && c.sched.QueueLen() == 0 {
		c.setMode(ModeIdle)
	} else {
		c.setMode(ModeWaitingNext)
	}
}

// ForceIdleNow implements force_idle_now: it atomically clears every
// mutable collection the Conductor touches, including AudioRunway.
// Callers are responsible for also clearing FrameStore and bumping the
// decode generation, since those are shared with (not owned by) the
// Conductor.
func (c *Conductor) ForceIdleNow() {
	c.sched.Clear()
	c.audio.Clear()
	c.current = nil
	c.currentDrawingFrame = 0
	c.holdingLastFrame = false
	c.audioStarted = false
	c.consecutiveSkipDraws = 0
	c.nextExpectedChunk = 0
	c.messageActive = false
	c.audioEndReceived = false
	c.previous = nil
	c.setMode(ModeIdle)
}
