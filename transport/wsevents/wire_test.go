package wsevents

import (
	"encoding/base64"
	"log"
	"testing"

	"github.com/avatarstream/avatarengine/internal/events"
)

func TestDecodeEnvelope_AudioChunk(t *testing.T) {
	mp3 := []byte{1, 2, 3}
	env := envelope{AudioChunk: &wireAudioChunk{
		ChunkIndex:  3,
		MP3Base64:   base64.StdEncoding.EncodeToString(mp3),
		ZoneTopLeft: wireZone{X: 10, Y: 20},
	}}
	ev, ok := decodeEnvelope(env, log.Default())
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if ev.Kind != events.KindAudioChunk || ev.ChunkIndex != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if string(ev.MP3Bytes) != string(mp3) {
		t.Fatalf("expected mp3 bytes round-tripped, got %v", ev.MP3Bytes)
	}
	if ev.ZoneTopLeft.X != 10 || ev.ZoneTopLeft.Y != 20 {
		t.Fatalf("expected zone propagated, got %+v", ev.ZoneTopLeft)
	}
}

func TestDecodeEnvelope_FrameBatch(t *testing.T) {
	env := envelope{FrameBatch: &wireFrameBatch{
		ChunkIndex: 1,
		Frames: []wireFrameRecord{
			{SequenceIndex: 0, AnimationName: "talk", OverlayID: "k0"},
			{SequenceIndex: 1, AnimationName: "talk", OverlayID: "k1"},
		},
	}}
	ev, ok := decodeEnvelope(env, log.Default())
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if ev.Kind != events.KindFrameBatch || len(ev.Frames) != 2 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestDecodeEnvelope_ChunkReadyAudioEndReset(t *testing.T) {
	cases := []struct {
		env  envelope
		kind events.Kind
	}{
		{envelope{ChunkReady: &wireChunkReady{ChunkIndex: 2, TotalFramesSent: 9}}, events.KindChunkReady},
		{envelope{AudioEnd: &struct{}{}}, events.KindAudioEnd},
		{envelope{Reset: &struct{}{}}, events.KindReset},
	}
	for _, c := range cases {
		ev, ok := decodeEnvelope(c.env, log.Default())
		if !ok || ev.Kind != c.kind {
			t.Fatalf("expected kind %s, got %+v ok=%v", c.kind, ev, ok)
		}
	}
}

func TestDecodeEnvelope_EmptyEnvelopeRejected(t *testing.T) {
	_, ok := decodeEnvelope(envelope{}, log.Default())
	if ok {
		t.Fatal("expected empty envelope to be rejected")
	}
}

func TestMarshalUnmarshalEnvelopeRoundTrip(t *testing.T) {
	env := envelope{ChunkReady: &wireChunkReady{ChunkIndex: 7, TotalFramesSent: 40}}
	raw, err := marshalEnvelope(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := unmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ChunkReady == nil || back.ChunkReady.ChunkIndex != 7 {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}
