package conductor

import (
	"testing"
	"time"

	"github.com/avatarstream/avatarengine/internal/framestore"
	"github.com/avatarstream/avatarengine/internal/scheduler"
)

type fakeAudio struct {
	started   map[uint32]int
	elapsedMs map[uint32]int64
	durations map[uint32]int64
	cleared   bool
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{
		started:   make(map[uint32]int),
		elapsedMs: make(map[uint32]int64),
		durations: make(map[uint32]int64),
	}
}

func (f *fakeAudio) Start(chunkIndex uint32)               { f.started[chunkIndex]++ }
func (f *fakeAudio) ElapsedFor(chunkIndex uint32) int64     { return f.elapsedMs[chunkIndex] }
func (f *fakeAudio) DurationFor(chunkIndex uint32) int64    { return f.durations[chunkIndex] }
func (f *fakeAudio) Clear()                                 { f.cleared = true }

type fakeListener struct {
	skipForced     int
	chunksComplete []uint32
	modeChanges    [][2]Mode
}

func (l *fakeListener) OnModeChange(from, to Mode) { l.modeChanges = append(l.modeChanges, [2]Mode{from, to}) }
func (l *fakeListener) OnSkipDrawForced(chunkIndex, sectionIndex, frameIndex uint32) {
	l.skipForced++
}
func (l *fakeListener) OnChunkComplete(chunkIndex uint32) {
	l.chunksComplete = append(l.chunksComplete, chunkIndex)
}

func buildSection(store *framestore.Store, sched *scheduler.Scheduler, chunkIndex uint32, n int, allReady bool) {
	frames := make([]scheduler.Frame, n)
	for i := 0; i < n; i++ {
		key := keyFor(chunkIndex, uint32(i))
		frames[i] = scheduler.Frame{
			SequenceIndex:            uint32(i),
			AnimationName:            "talk",
			MatchedSpriteFrameNumber: uint32(i),
			OverlayKey:               key,
		}
		if allReady {
			store.Put(key, framestore.Image{1})
		}
	}
	sched.SetZone(chunkIndex, 10, 20)
	sched.AddFrames(chunkIndex, frames)
	sched.OnChunkComplete(chunkIndex)
}

func keyFor(chunk, i uint32) string {
	return string(rune('A'+chunk)) + "-" + string(rune('a'+i))
}

func TestConductor_HappyPathAudioPaced(t *testing.T) {
	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: 2})
	audio := newFakeAudio()
	c := New(sched, store, audio, Config{}, nil)
	c.RegisterBaseAnimation("talk", [][]byte{{0}, {1}, {2}, {3}, {4}})

	buildSection(store, sched, 0, 5, true)
	audio.durations[0] = 1000

	now := time.Now()
	rf := c.Pull(now)
	if c.Mode() != ModePlaying {
		t.Fatalf("expected Playing after buffer-ready section starts, got %s", c.Mode())
	}
	if audio.started[0] != 1 {
		t.Fatalf("expected audio started exactly once, got %d", audio.started[0])
	}
	if rf.OverlayX != 10 || rf.OverlayY != 20 {
		t.Fatalf("expected zone propagated to render frame, got %+v", rf)
	}

	audio.elapsedMs[0] = 500
	rf = c.Pull(now.Add(time.Millisecond))
	if rf.BaseImage == nil {
		t.Fatal("expected a base image once audio is elapsing")
	}

	audio.elapsedMs[0] = 1000
	c.MarkAudioEnd()
	c.Pull(now.Add(2 * time.Millisecond))
	if c.Mode() != ModeIdle {
		t.Fatalf("expected Idle after final chunk completes with audio_end, got %s", c.Mode())
	}
}

func TestConductor_DecodeGateStopsAtFirstUndecodedFrame(t *testing.T) {
	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: 2})
	audio := newFakeAudio()
	c := New(sched, store, audio, Config{}, nil)
	c.RegisterBaseAnimation("talk", [][]byte{{0}, {1}, {2}, {3}, {4}})

	// Only the first two frames are decoded; the rest are not.
	buildSection(store, sched, 0, 5, false)
	store.Put(keyFor(0, 0), framestore.Image{1})
	store.Put(keyFor(0, 1), framestore.Image{1})
	audio.durations[0] = 1000

	now := time.Now()
	c.Pull(now) // triggers audio + section start

	audio.elapsedMs[0] = 800 // would target frame ~4 if not gated
	c.Pull(now.Add(time.Millisecond))

	if c.currentDrawingFrame != 1 {
		t.Fatalf("expected decode-gate to stop at frame 1, got %d", c.currentDrawingFrame)
	}
}

func TestConductor_SkipDrawForcesAfterMaxHolds(t *testing.T) {
	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: 1})
	audio := newFakeAudio()
	listener := &fakeListener{}
	c := New(sched, store, audio, Config{MaxConsecutiveSkipDraws: 15}, listener)
	c.RegisterBaseAnimation("talk", [][]byte{{0}, {1}, {2}})

	// Frame 0 ready (buffer-min satisfied), frame 1 never decodes.
	frames := []scheduler.Frame{
		{SequenceIndex: 0, AnimationName: "talk", OverlayKey: "s0"},
		{SequenceIndex: 1, AnimationName: "talk", OverlayKey: "stuck"},
		{SequenceIndex: 2, AnimationName: "talk", OverlayKey: "s2"},
	}
	store.Put("s0", framestore.Image{1})
	store.Put("s2", framestore.Image{1})
	sched.AddFrames(0, frames)
	sched.OnChunkComplete(0)

	now := time.Now()
	c.Pull(now) // starts section at frame 0; primes the wall-clock ticker

	tick := time.Duration(1000/30) * time.Millisecond

	// Every subsequent tick wants to advance to frame 1 ("stuck") but the
	// decode-gate blocks it: currentDrawingFrame must stay at 0 for
	// exactly MaxConsecutiveSkipDraws-1 further blocked pulls, then force
	// past it on the 15th.
	for i := 0; i < 14; i++ {
		now = now.Add(tick)
		c.Pull(now)
		if c.currentDrawingFrame != 0 {
			t.Fatalf("frame advanced early after %d blocked pulls", i+1)
		}
	}
	if listener.skipForced != 0 {
		t.Fatalf("should not have force-advanced before 15 holds, got %d", listener.skipForced)
	}

	now = now.Add(tick)
	c.Pull(now) // 15th blocked pull: forces past the stuck frame

	if listener.skipForced != 1 {
		t.Fatalf("expected exactly one forced skip-draw, got %d", listener.skipForced)
	}
	if c.currentDrawingFrame != 1 {
		t.Fatalf("expected forced advance onto (past) the stuck frame, got %d", c.currentDrawingFrame)
	}
}

func TestConductor_BaseFrameModBaseLen(t *testing.T) {
	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: 1})
	audio := newFakeAudio()
	c := New(sched, store, audio, Config{}, nil)
	c.RegisterBaseAnimation("talk", [][]byte{{0xA}, {0xB}, {0xC}})

	store.Put("k", framestore.Image{1})
	sched.AddFrames(0, []scheduler.Frame{
		{SequenceIndex: 0, AnimationName: "talk", MatchedSpriteFrameNumber: 7, OverlayKey: "k"},
	})
	sched.OnChunkComplete(0)

	audio.durations[0] = 100
	audio.elapsedMs[0] = 0

	rf := c.Pull(time.Now())
	// 7 % 3 == 1
	if len(rf.BaseImage) != 1 || rf.BaseImage[0] != 0xB {
		t.Fatalf("expected base frame 7%%3=1 resolved, got %+v", rf.BaseImage)
	}
}

func TestConductor_JitterHoldResolvesWhenNextSectionBecomesReady(t *testing.T) {
	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: 2})
	audio := newFakeAudio()
	listener := &fakeListener{}
	c := New(sched, store, audio, Config{}, listener)
	c.RegisterBaseAnimation("talk", [][]byte{{0}, {1}})

	// Chunk 0 completes and is immediately fully ready.
	buildSection(store, sched, 0, 2, true)
	audio.durations[0] = 1000

	// Chunk 1's batch has arrived (on_chunk_complete already ran, so it is
	// queued behind chunk 0) but none of its frames have decoded yet.
	chunk1Frames := []scheduler.Frame{
		{SequenceIndex: 0, AnimationName: "talk", OverlayKey: "chunk1-0"},
		{SequenceIndex: 1, AnimationName: "talk", OverlayKey: "chunk1-1"},
	}
	sched.SetZone(1, 30, 40)
	sched.AddFrames(1, chunk1Frames)
	sched.OnChunkComplete(1)

	now := time.Now()
	c.Pull(now) // starts chunk 0's section

	audio.elapsedMs[0] = 1000 // drive straight to the last frame
	c.Pull(now.Add(time.Millisecond))

	if !c.holdingLastFrame {
		t.Fatal("expected jitter hold once chunk 1's buffer is not ready")
	}
	if c.Mode() != ModePlaying {
		t.Fatalf("expected to remain in Playing while holding, got %s", c.Mode())
	}

	// Holding persists across further ticks while chunk 1 stays unready.
	c.Pull(now.Add(2 * time.Millisecond))
	if !c.holdingLastFrame || len(listener.chunksComplete) != 0 {
		t.Fatal("expected hold to persist and chunk 0 to remain incomplete")
	}

	// Chunk 1's frames finish decoding; the buffer becomes ready.
	store.Put("chunk1-0", framestore.Image{1})
	store.Put("chunk1-1", framestore.Image{1})

	c.Pull(now.Add(3 * time.Millisecond))

	if c.holdingLastFrame {
		t.Fatal("expected hold to clear once chunk 1 became buffer-ready")
	}
	if len(listener.chunksComplete) != 1 || listener.chunksComplete[0] != 0 {
		t.Fatalf("expected chunk 0 to finish exactly once, got %v", listener.chunksComplete)
	}
	if c.Mode() != ModePlaying {
		t.Fatalf("expected chunk 1 to start playing immediately, got %s", c.Mode())
	}

	// The tick that finishes chunk 0 still renders chunk 0's last frame;
	// chunk 1's audio trigger fires on the following pull.
	c.Pull(now.Add(4 * time.Millisecond))
	if audio.started[1] != 1 {
		t.Fatalf("expected chunk 1's audio to start exactly once, got %d", audio.started[1])
	}
}

func TestConductor_ForceIdleNowResetsState(t *testing.T) {
	store := framestore.New()
	sched := scheduler.New(store, scheduler.Config{BufferMin: 1})
	audio := newFakeAudio()
	c := New(sched, store, audio, Config{}, nil)
	c.RegisterBaseAnimation("talk", [][]byte{{0}})

	buildSection(store, sched, 0, 3, true)
	audio.durations[0] = 1000
	c.Pull(time.Now())

	if c.Mode() != ModePlaying {
		t.Fatal("expected Playing before force idle")
	}

	c.ForceIdleNow()

	if c.Mode() != ModeIdle {
		t.Fatalf("expected Idle after ForceIdleNow, got %s", c.Mode())
	}
	if !audio.cleared {
		t.Fatal("expected AudioRunway.Clear to be called")
	}
	if sched.QueueLen() != 0 {
		t.Fatal("expected section queue cleared")
	}
}
