package wsevents

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avatarstream/avatarengine/internal/events"
)

// Source connects to a single websocket endpoint and decodes the JSON
// envelope protocol into events.Event, matching the dial/header-auth/
// connMutex-guarded lifecycle of the reference Live API client this
// package is adapted from.
type Source struct {
	url    string
	header http.Header
	logger *log.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	initialized bool
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc

	out chan events.Event

	recorder *Recorder
}

// Option configures a Source.
type Option func(*Source)

// WithHeader adds an HTTP header (e.g. authentication) sent during the
// websocket handshake.
func WithHeader(key, value string) Option {
	return func(s *Source) { s.header.Add(key, value) }
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// WithRecorder attaches a Recorder; every message received is persisted
// for later replay.
func WithRecorder(r *Recorder) Option {
	return func(s *Source) { s.recorder = r }
}

// New constructs a Source for url without dialing yet; call Dial to
// connect and begin the read pump.
func New(url string, opts ...Option) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		url:    url,
		header: http.Header{},
		logger: log.Default(),
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan events.Event, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the websocket endpoint and starts the read pump that
// feeds Events(). It is idempotent.
func (s *Source) Dial() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if s.closed {
		return fmt.Errorf("wsevents: source has been closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(s.ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("wsevents: dial %s failed: %w (status %d)", s.url, err, resp.StatusCode)
		}
		return fmt.Errorf("wsevents: dial %s failed: %w", s.url, err)
	}
	s.conn = conn
	s.initialized = true
	go s.readPump()
	return nil
}

// Events implements events.Source.
func (s *Source) Events() <-chan events.Event { return s.out }

func (s *Source) readPump() {
	defer close(s.out)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Printf("[WSEVENTS] read error: %v", err)
			}
			return
		}
		if s.recorder != nil {
			s.recorder.Record(raw)
		}
		ev, ok := s.decode(raw)
		if !ok {
			continue
		}
		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Source) decode(raw []byte) (events.Event, bool) {
	env, err := unmarshalEnvelope(raw)
	if err != nil {
		s.logger.Printf("[WSEVENTS] malformed envelope: %v", err)
		return events.Event{}, false
	}
	return decodeEnvelope(env, s.logger)
}

func decodeEnvelope(env envelope, logger *log.Logger) (events.Event, bool) {
	switch {
	case env.AudioChunk != nil:
		mp3, err := base64.StdEncoding.DecodeString(env.AudioChunk.MP3Base64)
		if err != nil {
			logger.Printf("[WSEVENTS] bad mp3 base64: %v", err)
			return events.Event{}, false
		}
		return events.Event{
			Kind:       events.KindAudioChunk,
			ChunkIndex: env.AudioChunk.ChunkIndex,
			MP3Bytes:   mp3,
			ZoneTopLeft: events.ZoneTopLeft{
				X: env.AudioChunk.ZoneTopLeft.X,
				Y: env.AudioChunk.ZoneTopLeft.Y,
			},
		}, true
	case env.FrameBatch != nil:
		frames := make([]events.FrameRecord, len(env.FrameBatch.Frames))
		for i, f := range env.FrameBatch.Frames {
			frames[i] = events.FrameRecord{
				SequenceIndex:            f.SequenceIndex,
				SectionIndex:             f.SectionIndex,
				FrameIndex:               f.FrameIndex,
				AnimationName:            f.AnimationName,
				MatchedSpriteFrameNumber: f.MatchedSpriteFrameNumber,
				OverlayID:                f.OverlayID,
				SheetFilename:            f.SheetFilename,
				Character:                f.Character,
				ImageBase64:              f.ImageBase64,
			}
		}
		return events.Event{
			Kind:       events.KindFrameBatch,
			ChunkIndex: env.FrameBatch.ChunkIndex,
			Frames:     frames,
		}, true
	case env.ChunkReady != nil:
		return events.Event{
			Kind:       events.KindChunkReady,
			ChunkIndex: env.ChunkReady.ChunkIndex,
			TotalSent:  env.ChunkReady.TotalFramesSent,
		}, true
	case env.AudioEnd != nil:
		return events.Event{Kind: events.KindAudioEnd}, true
	case env.Reset != nil:
		return events.Event{Kind: events.KindReset}, true
	default:
		logger.Printf("[WSEVENTS] empty envelope, ignoring")
		return events.Event{}, false
	}
}

// Close terminates the connection and stops the read pump.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
