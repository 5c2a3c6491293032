// Package avatarengine is a client-side streaming avatar animation
// engine: it demultiplexes a server-driven event stream into decoded
// overlay frames, schedules them into sections, and paces playback
// against streamed audio, presenting composited RenderFrames to a
// caller-supplied sink.
package avatarengine

import "image"

// OverlayFrame is one overlay sprite record, as exposed to callers
// registering base animations and inspecting sections.
type OverlayFrame struct {
	SequenceIndex            uint32
	AnimationName             string
	MatchedSpriteFrameNumber  uint32
	OverlayID                 string
	Character                 string
	ChunkIndex                uint32
	SectionIndex              uint32
}

// OverlaySection is a contiguous run of overlay frames that plays as a
// unit, mirroring internal/scheduler.Section for callers that want to
// inspect queued work (e.g. the debug monitor).
type OverlaySection struct {
	ChunkIndex    uint32
	SectionIndex  uint32
	AnimationName string
	ZoneTopLeftX  int32
	ZoneTopLeftY  int32
	Frames        []OverlayFrame
}

// BaseAnimation is a fully decoded, immutable base-frame array keyed by
// animation name, as supplied via Engine.RegisterBaseAnimation.
type BaseAnimation struct {
	Name   string
	Frames []image.Image
}

// RenderFrame is one composited unit ready for presentation: a base
// frame plus an optional overlay at a fixed placement.
type RenderFrame struct {
	BaseImage    []byte
	OverlayImage []byte
	OverlayX     int32
	OverlayY     int32
	TimestampMs  int64
	Idle         bool
	MessageID    string
}

// RenderSink is the platform presentation boundary: the engine's core
// never touches GPU or windowing APIs directly, it only calls Present.
type RenderSink interface {
	Present(frame RenderFrame)
}

// RenderSinkFunc adapts a plain function to RenderSink.
type RenderSinkFunc func(RenderFrame)

func (f RenderSinkFunc) Present(frame RenderFrame) { f(frame) }
