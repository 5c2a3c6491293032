package events

import "fmt"

// ProtocolViolation is returned (never panicked) when the inbound stream
// violates the chunk/batch contract. Demux logs it through Handlers.OnViolation
// and drops the offending event; it never aborts the message.
type ProtocolViolation struct {
	ChunkIndex uint32
	Reason     string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation on chunk %d: %s", e.ChunkIndex, e.Reason)
}

// Handlers are the demux's downstream collaborators. Every field is called
// synchronously from the demux's own goroutine; a handler that needs to do
// blocking work should dispatch to its own worker instead of blocking here.
type Handlers struct {
	// OnAudioChunk is invoked immediately on receipt, ahead of any frame
	// decode, per the "audio observed before frames" ordering guarantee.
	OnAudioChunk func(chunkIndex uint32, mp3 []byte, zone ZoneTopLeft)

	// OnFrameBatch is invoked once per frame_batch event. The caller must
	// eventually call Demux.CompleteBatch(chunkIndex) exactly once for
	// each batch it was given, once that batch has been fully intaken
	// (decode started, not necessarily finished).
	OnFrameBatch func(chunkIndex uint32, frames []FrameRecord)

	// OnChunkComplete fires once all frame_batch events for a chunk have
	// both arrived and been intaken, and the terminating chunk_ready has
	// been observed.
	OnChunkComplete func(chunkIndex uint32, totalSent uint32)

	OnAudioEnd func()
	OnReset    func()

	// OnViolation receives every ProtocolViolation; the default (nil) is
	// a silent drop, so callers that want logging must set it.
	OnViolation func(err *ProtocolViolation)
}

type chunkState struct {
	sawAudio         bool
	batchesSeen      int
	batchesCompleted int
	readySeen        bool
	totalSent        uint32
}

// Demux is the EventDemux: it parses inbound events, routes them to
// Handlers, and enforces the batch-intake-before-chunk_ready sequencing
// contract described for a given chunk_index.
type Demux struct {
	h      Handlers
	chunks map[uint32]*chunkState
}

// New constructs a Demux bound to the given handlers.
func New(h Handlers) *Demux {
	return &Demux{h: h, chunks: make(map[uint32]*chunkState)}
}

func (d *Demux) stateFor(chunkIndex uint32) *chunkState {
	cs, ok := d.chunks[chunkIndex]
	if !ok {
		cs = &chunkState{}
		d.chunks[chunkIndex] = cs
	}
	return cs
}

// Run ranges over src.Events() until the channel closes, dispatching each
// event to Handlers. It is meant to be run on its own goroutine by the
// caller; Run itself never spawns one.
func (d *Demux) Run(src Source) {
	for ev := range src.Events() {
		d.Dispatch(ev)
	}
}

// Dispatch processes a single event. Exported so tests and alternative
// drivers can feed events one at a time without a channel.
func (d *Demux) Dispatch(ev Event) {
	switch ev.Kind {
	case KindAudioChunk:
		cs := d.stateFor(ev.ChunkIndex)
		cs.sawAudio = true
		if d.h.OnAudioChunk != nil {
			d.h.OnAudioChunk(ev.ChunkIndex, ev.MP3Bytes, ev.ZoneTopLeft)
		}

	case KindFrameBatch:
		cs := d.stateFor(ev.ChunkIndex)
		cs.batchesSeen++
		if d.h.OnFrameBatch != nil {
			d.h.OnFrameBatch(ev.ChunkIndex, ev.Frames)
		}

	case KindChunkReady:
		cs := d.stateFor(ev.ChunkIndex)
		if !cs.sawAudio && cs.batchesSeen == 0 {
			d.violation(ev.ChunkIndex, "chunk_ready with no prior audio_chunk or frame_batch")
			return
		}
		cs.readySeen = true
		cs.totalSent = ev.TotalSent
		d.maybeComplete(ev.ChunkIndex, cs)

	case KindAudioEnd:
		if d.h.OnAudioEnd != nil {
			d.h.OnAudioEnd()
		}

	case KindReset:
		d.chunks = make(map[uint32]*chunkState)
		if d.h.OnReset != nil {
			d.h.OnReset()
		}
	}
}

// CompleteBatch must be called exactly once per frame_batch previously
// delivered to Handlers.OnFrameBatch, once that batch's frames have been
// handed to the decode pool. It unblocks a chunk_ready that arrived before
// intake finished (the split-batch scenario).
func (d *Demux) CompleteBatch(chunkIndex uint32) {
	cs := d.stateFor(chunkIndex)
	cs.batchesCompleted++
	d.maybeComplete(chunkIndex, cs)
}

func (d *Demux) maybeComplete(chunkIndex uint32, cs *chunkState) {
	if cs.readySeen && cs.batchesCompleted >= cs.batchesSeen {
		totalSent := cs.totalSent
		delete(d.chunks, chunkIndex)
		if d.h.OnChunkComplete != nil {
			d.h.OnChunkComplete(chunkIndex, totalSent)
		}
	}
}

func (d *Demux) violation(chunkIndex uint32, reason string) {
	if d.h.OnViolation != nil {
		d.h.OnViolation(&ProtocolViolation{ChunkIndex: chunkIndex, Reason: reason})
	}
}
