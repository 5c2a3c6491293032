// Package events defines the wire-level event types consumed by the engine
// and the demultiplexer that routes them to the decode pool, the audio
// runway, and the section scheduler.
package events

// Kind discriminates the five inbound event shapes.
type Kind int

const (
	KindAudioChunk Kind = iota
	KindFrameBatch
	KindChunkReady
	KindAudioEnd
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindAudioChunk:
		return "audio_chunk"
	case KindFrameBatch:
		return "frame_batch"
	case KindChunkReady:
		return "chunk_ready"
	case KindAudioEnd:
		return "audio_end"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// FrameRecord is one overlay sprite as it arrives on the wire, before
// decode. ImageBytes and ImageBase64 are mutually exclusive; exactly one
// must be set.
type FrameRecord struct {
	SequenceIndex            uint32
	SectionIndex              uint32
	FrameIndex                uint32
	AnimationName             string
	MatchedSpriteFrameNumber  uint32
	OverlayID                 string
	SheetFilename             string
	Character                 string
	ImageBytes                []byte
	ImageBase64               string
}

// ZoneTopLeft is the chunk-level overlay placement, in base-frame pixel
// coordinates. Any per-frame coordinates on the wire are ignored per the
// external interface contract.
type ZoneTopLeft struct {
	X, Y int32
}

// Event is the demultiplexer's unit of work. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind Kind

	// KindAudioChunk
	ChunkIndex  uint32
	MP3Bytes    []byte
	ZoneTopLeft ZoneTopLeft

	// KindFrameBatch
	Frames []FrameRecord

	// KindChunkReady
	TotalSent uint32
}

// Source is the opaque, externally supplied event channel. The engine
// never concerns itself with reconnection, framing, or backpressure on the
// transport; it only ranges over Events until the channel closes.
type Source interface {
	Events() <-chan Event
}

// ChanSource adapts a plain channel into a Source. It is the shape every
// reference Source implementation (and every test fake) converges on.
type ChanSource chan Event

func (c ChanSource) Events() <-chan Event { return c }
