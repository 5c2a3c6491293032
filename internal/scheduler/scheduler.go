// Package scheduler implements the SectionScheduler: it builds
// OverlaySections out of a completed chunk's frames, queues them in strict
// chunk/section order, and gates playback start on buffer readiness.
package scheduler

import (
	"sort"

	"github.com/avatarstream/avatarengine/internal/framestore"
)

// Frame is the scheduler's view of one overlay frame: enough to order,
// group into sections, and resolve a FrameStore key.
type Frame struct {
	SequenceIndex            uint32
	SectionIndex              uint32
	AnimationName             string
	MatchedSpriteFrameNumber  uint32
	OverlayKey                string
	Character                 string
}

// Section is the OverlaySection: an immutable run of frames sharing one
// animation_name, plus the chunk-level placement.
type Section struct {
	ChunkIndex    uint32
	SectionIndex  uint32
	AnimationName string
	ZoneTopLeftX  int32
	ZoneTopLeftY  int32
	Frames        []Frame
}

// OverlayKeys returns the FrameStore keys of every frame in the section, in
// sequence order, for use with framestore.Store.FirstNReady.
func (s *Section) OverlayKeys() []string {
	keys := make([]string, len(s.Frames))
	for i, f := range s.Frames {
		keys[i] = f.OverlayKey
	}
	return keys
}

// Scheduler is the SectionScheduler.
type Scheduler struct {
	store          *framestore.Store
	bufferMin      int
	pending        map[uint32][]Frame // chunk_index -> frames, accumulated until on_chunk_complete
	queue          []*Section         // ordered by (chunk_index, section_index)
	zone           map[uint32][2]int32
	onQueueGrew    func()
}

// Config tunes the scheduler.
type Config struct {
	BufferMin   int // BUFFER_MIN, default 2
	OnQueueGrew func()
}

// New constructs a Scheduler reading readiness from store.
func New(store *framestore.Store, cfg Config) *Scheduler {
	if cfg.BufferMin <= 0 {
		cfg.BufferMin = 2
	}
	return &Scheduler{
		store:       store,
		bufferMin:   cfg.BufferMin,
		pending:     make(map[uint32][]Frame),
		zone:        make(map[uint32][2]int32),
		onQueueGrew: cfg.OnQueueGrew,
	}
}

// AddFrames accumulates frames for chunkIndex ahead of on_chunk_complete.
// Order among calls does not matter; frames are sorted by SequenceIndex
// when the chunk completes.
func (s *Scheduler) AddFrames(chunkIndex uint32, frames []Frame) {
	s.pending[chunkIndex] = append(s.pending[chunkIndex], frames...)
}

// SetZone records the chunk-level overlay placement, authoritative over
// any per-frame coordinates (which are ignored by design).
func (s *Scheduler) SetZone(chunkIndex uint32, x, y int32) {
	s.zone[chunkIndex] = [2]int32{x, y}
}

// OnChunkComplete builds sections for chunkIndex and enqueues them in
// order. Frames are split into a new section whenever AnimationName
// changes between consecutive frames, ordered by SequenceIndex.
func (s *Scheduler) OnChunkComplete(chunkIndex uint32) []*Section {
	frames := s.pending[chunkIndex]
	delete(s.pending, chunkIndex)
	if len(frames) == 0 {
		return nil
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].SequenceIndex < frames[j].SequenceIndex })

	zone := s.zone[chunkIndex]

	var sections []*Section
	var cur *Section
	for _, f := range frames {
		if cur == nil || cur.AnimationName != f.AnimationName {
			cur = &Section{
				ChunkIndex:    chunkIndex,
				SectionIndex:  uint32(len(sections)),
				AnimationName: f.AnimationName,
				ZoneTopLeftX:  zone[0],
				ZoneTopLeftY:  zone[1],
			}
			sections = append(sections, cur)
		}
		cur.Frames = append(cur.Frames, f)
	}

	for _, sec := range sections {
		s.queue = append(s.queue, sec)
	}
	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].ChunkIndex != s.queue[j].ChunkIndex {
			return s.queue[i].ChunkIndex < s.queue[j].ChunkIndex
		}
		return s.queue[i].SectionIndex < s.queue[j].SectionIndex
	})

	if s.onQueueGrew != nil {
		s.onQueueGrew()
	}
	return sections
}

// IsBufferReady reports whether section's first min(BufferMin, len(frames))
// overlay keys are all ready.
func (s *Scheduler) IsBufferReady(section *Section) bool {
	n := s.bufferMin
	if n > len(section.Frames) {
		n = len(section.Frames)
	}
	return s.store.FirstNReady(section.OverlayKeys(), n)
}

// PeekHead returns the queue head without removing it.
func (s *Scheduler) PeekHead() (*Section, bool) {
	if len(s.queue) == 0 {
		return nil, false
	}
	return s.queue[0], true
}

// PopHead removes and returns the queue head.
func (s *Scheduler) PopHead() (*Section, bool) {
	if len(s.queue) == 0 {
		return nil, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	return head, true
}

// QueueLen reports the number of sections currently queued.
func (s *Scheduler) QueueLen() int { return len(s.queue) }

// Clear empties the pending-frame accumulator and the section queue; used
// by force_idle_now.
func (s *Scheduler) Clear() {
	s.pending = make(map[uint32][]Frame)
	s.zone = make(map[uint32][2]int32)
	s.queue = nil
}
