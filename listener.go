package avatarengine

// EngineListener receives lifecycle notifications from the engine,
// recast from the original callback-field design into a single observer
// registered once at construction (see SPEC_FULL.md §9, "Callbacks").
type EngineListener interface {
	// OnStateChange fires whenever the Conductor's playback mode changes.
	OnStateChange(messageID string, from, to string)
	// OnError fires for errors surfaced by a named component (e.g.
	// "demux", "decodepool"). A decode resource shortage arrives here as a
	// *FatalEngineError, after which the engine forces itself idle.
	OnError(component string, err error)
	// OnStartAudio fires when AudioRunway.Start is invoked for a chunk.
	OnStartAudio(messageID string, chunkIndex uint32)
	// OnAllChunksComplete fires once a message's final chunk has
	// finished playing and no further chunks are expected.
	OnAllChunksComplete(messageID string)
}

// NoopListener implements EngineListener with no-op methods; it is the
// Engine's default when no Listener option is supplied.
type NoopListener struct{}

func (NoopListener) OnStateChange(messageID string, from, to string) {}
func (NoopListener) OnError(component string, err error)              {}
func (NoopListener) OnStartAudio(messageID string, chunkIndex uint32)  {}
func (NoopListener) OnAllChunksComplete(messageID string)              {}
