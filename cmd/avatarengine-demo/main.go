// Command avatarengine-demo wires a synthetic, in-memory event stream
// through the engine to a logging render sink, without any network or
// audio-device dependency. It exists to exercise the pipeline end to
// end from a single process.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/avatarstream/avatarengine"
	"github.com/avatarstream/avatarengine/audiorunway"
	"github.com/avatarstream/avatarengine/internal/events"
)

func main() {
	frameCountFlag := flag.Int("frames", 45, "number of overlay frames in the synthetic chunk")
	fpsFlag := flag.Int("fps", 30, "target render pull rate")
	flag.Parse()

	logger := log.New(os.Stderr, "[demo] ", log.Ltime|log.Lmicroseconds)

	eng, err := avatarengine.New(
		avatarengine.WithTargetFPS(*fpsFlag),
		avatarengine.WithLogger(logger),
		avatarengine.WithAudioDecoder(&audiorunway.FixedDecoder{PCM: make([]byte, 48000), DurationMs: 1500}),
		// The player's Delay stands in for a device draining the 1500 ms
		// clip, so ElapsedFor advances and paces the overlays.
		avatarengine.WithAudioPlayer(&audiorunway.NoopPlayer{Delay: 1500 * time.Millisecond}),
		avatarengine.WithListener(loggingListener{logger: logger}),
	)
	if err != nil {
		logger.Fatalf("construct engine: %v", err)
	}

	eng.RegisterEncodedBaseAnimation("idle", [][]byte{[]byte("idle-frame-0")})
	eng.RegisterEncodedBaseAnimation("talk", [][]byte{
		[]byte("talk-frame-0"),
		[]byte("talk-frame-1"),
	})

	src := make(events.ChanSource)
	go emitScriptedMessage(src, *frameCountFlag)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go eng.Run(src)

	sink := avatarengine.RenderSinkFunc(func(rf avatarengine.RenderFrame) {
		if rf.Idle {
			return
		}
		fmt.Printf("t=%dms overlay=(%d,%d) base=%dB overlay=%dB\n",
			rf.TimestampMs, rf.OverlayX, rf.OverlayY, len(rf.BaseImage), len(rf.OverlayImage))
	})
	eng.RunPullLoop(ctx, sink)
}

// emitScriptedMessage plays out scenario S1 from the external interface
// contract: one chunk, one batch, chunk_ready, audio_end.
func emitScriptedMessage(src events.ChanSource, frameCount int) {
	defer close(src)

	frames := make([]events.FrameRecord, frameCount)
	for i := range frames {
		// Overlays must be real PNGs: the decode pool validates each one.
		img := image.NewGray(image.Rect(0, 0, 1, 1))
		img.Pix[0] = byte(i)
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			panic(err)
		}
		frames[i] = events.FrameRecord{
			SequenceIndex:            uint32(i),
			SectionIndex:             0,
			FrameIndex:               uint32(i),
			AnimationName:            "talk",
			MatchedSpriteFrameNumber: uint32(i % 2),
			OverlayID:                fmt.Sprintf("ov-%d", i),
			ImageBytes:               buf.Bytes(),
		}
	}

	src <- events.Event{
		Kind:        events.KindAudioChunk,
		ChunkIndex:  0,
		MP3Bytes:    []byte("fake-mp3-bytes"),
		ZoneTopLeft: events.ZoneTopLeft{X: 100, Y: 200},
	}
	src <- events.Event{Kind: events.KindFrameBatch, ChunkIndex: 0, Frames: frames}
	src <- events.Event{Kind: events.KindChunkReady, ChunkIndex: 0, TotalSent: uint32(frameCount)}
	src <- events.Event{Kind: events.KindAudioEnd}
}

type loggingListener struct {
	logger *log.Logger
}

func (l loggingListener) OnStateChange(messageID, from, to string) {
	l.logger.Printf("message %s: %s -> %s", messageID, from, to)
}

func (l loggingListener) OnError(component string, err error) {
	l.logger.Printf("error in %s: %v", component, err)
}

func (l loggingListener) OnStartAudio(messageID string, chunkIndex uint32) {
	l.logger.Printf("message %s: audio started for chunk %d", messageID, chunkIndex)
}

func (l loggingListener) OnAllChunksComplete(messageID string) {
	l.logger.Printf("message %s: all chunks complete", messageID)
}
