// Package wsevents adapts a websocket JSON-envelope protocol into
// events.Source, and provides a recorder/replayer pair for deterministic
// tests without a live connection.
package wsevents

import "encoding/json"

// envelope is the one-of wire message: exactly one field is non-nil per
// message, discriminated the way the Live API's own ServerContent/
// SetupComplete/UsageMetadata envelope is.
type envelope struct {
	AudioChunk *wireAudioChunk `json:"audioChunk,omitempty"`
	FrameBatch *wireFrameBatch `json:"frameBatch,omitempty"`
	ChunkReady *wireChunkReady `json:"chunkReady,omitempty"`
	AudioEnd   *struct{}       `json:"audioEnd,omitempty"`
	Reset      *struct{}       `json:"reset,omitempty"`
}

type wireZone struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

type wireAudioChunk struct {
	ChunkIndex  uint32   `json:"chunkIndex"`
	MP3Base64   string   `json:"mp3Base64"`
	ZoneTopLeft wireZone `json:"zoneTopLeft"`
}

type wireFrameRecord struct {
	SequenceIndex            uint32 `json:"sequenceIndex"`
	SectionIndex              uint32 `json:"sectionIndex"`
	FrameIndex                uint32 `json:"frameIndex"`
	AnimationName             string `json:"animationName"`
	MatchedSpriteFrameNumber  uint32 `json:"matchedSpriteFrameNumber"`
	OverlayID                 string `json:"overlayId"`
	SheetFilename             string `json:"sheetFilename"`
	Character                 string `json:"character,omitempty"`
	ImageBase64               string `json:"imageBase64"`
}

type wireFrameBatch struct {
	ChunkIndex uint32            `json:"chunkIndex"`
	Frames     []wireFrameRecord `json:"frames"`
}

type wireChunkReady struct {
	ChunkIndex     uint32 `json:"chunkIndex"`
	TotalFramesSent uint32 `json:"totalFramesSent"`
}

func marshalEnvelope(env envelope) ([]byte, error) {
	return json.Marshal(env)
}

func unmarshalEnvelope(raw []byte) (envelope, error) {
	var env envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
