// Package decodepool implements the DecodePool: a bounded-parallelism
// image decoder that decodes the first record of a batch synchronously so
// readiness can be observed before the caller yields, then fans the rest
// out to a small worker pool with periodic scheduler yields.
package decodepool

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/avatarstream/avatarengine/internal/events"
	"github.com/avatarstream/avatarengine/internal/framestore"
)

// ErrResourceExhausted is wrapped into any error returned by a Decoder
// that detects a frame too large to safely hold in memory. decodeOne
// treats it as fatal rather than a per-frame drop.
var ErrResourceExhausted = errors.New("decodepool: decoded image exceeds memory budget")

// maxDecodedPixels bounds a single overlay frame's width*height. A
// client-streamed sprite this large almost certainly indicates a
// corrupted or hostile payload rather than legitimate content, and
// decoding it risks exhausting the process's memory.
const maxDecodedPixels = 16_000_000 // e.g. 4000x4000

// Decoder turns the wire bytes of one frame into a decoded image. The
// default, DecodeImageBytes, sniffs PNG/JPEG via the standard image
// package; callers needing a different sprite format inject their own.
type Decoder func(frame events.FrameRecord) (framestore.Image, error)

// Config tunes the pool. Zero values fall back to the documented defaults.
type Config struct {
	Workers    int // DECODE_WORKERS, default 4
	BatchYield int // DECODE_BATCH_YIELD, default 15
	Decoder    Decoder
	Logger     *log.Logger

	// OnFatal, if set, is invoked (at most once per generation) when a
	// decode fails with ErrResourceExhausted. The engine wraps the error
	// as a FatalEngineError, surfaces it via EngineListener.OnError, and
	// invokes force_idle_now.
	OnFatal func(error)
}

// Pool is the DecodePool.
type Pool struct {
	store      *framestore.Store
	workers    int
	batchYield int
	decode     Decoder
	logger     *log.Logger
	onFatal    func(error)
	generation atomic.Uint64
	fatalGen   atomic.Uint64 // generation+1 of the most recent OnFatal call
}

// New constructs a Pool writing decoded images into store.
func New(store *framestore.Store, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchYield <= 0 {
		cfg.BatchYield = 15
	}
	if cfg.Decoder == nil {
		cfg.Decoder = DecodeImageBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Pool{
		store:      store,
		workers:    cfg.Workers,
		batchYield: cfg.BatchYield,
		decode:     cfg.Decoder,
		logger:     cfg.Logger,
		onFatal:    cfg.OnFatal,
	}
}

// Generation returns the current decode generation. Results computed under
// a stale generation are dropped rather than published.
func (p *Pool) Generation() uint64 { return p.generation.Load() }

// BumpGeneration invalidates every decode currently in flight; called by
// force_idle_now so an abandoned message's decodes never mutate FrameStore.
func (p *Pool) BumpGeneration() { p.generation.Add(1) }

// SubmitBatch decodes frames[0] synchronously on the caller's goroutine,
// then fans frames[1:] out to a bounded worker pool. It returns once every
// record has been *submitted* (the first synchronously decoded, the rest
// handed to workers) — not once every worker has finished. This is the
// "intake complete" point the caller (the event demultiplexer) uses to
// unblock a deferred chunk_ready.
func (p *Pool) SubmitBatch(ctx context.Context, chunkIndex uint32, frames []events.FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}

	gen := p.generation.Load()
	p.decodeOne(gen, chunkIndex, frames[0])

	rest := frames[1:]
	if len(rest) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, frame := range rest {
		i, frame := i, frame
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			p.decodeOne(gen, chunkIndex, frame)
			if (i+1)%p.batchYield == 0 {
				runtime.Gosched()
			}
			return nil
		})
	}
	// Submission (goroutine dispatch) is what "intake" means here; we do
	// not wait on g here, so the caller is not blocked on full-batch
	// decode completion. The errgroup still bounds concurrency to
	// p.workers and propagates the shared context.
	go func() {
		_ = g.Wait()
	}()
	return nil
}

func (p *Pool) decodeOne(gen uint64, chunkIndex uint32, frame events.FrameRecord) {
	img, err := p.decode(frame)
	if err != nil {
		if errors.Is(err, ErrResourceExhausted) {
			p.logger.Printf("[DECODE] fatal: frame decode exhausted memory budget (chunk=%d seq=%d overlay=%s): %v",
				chunkIndex, frame.SequenceIndex, frame.OverlayID, err)
			if p.onFatal != nil && p.fatalGen.Swap(gen+1) != gen+1 {
				p.onFatal(err)
			}
			return
		}
		p.logger.Printf("[DECODE] frame decode failed (chunk=%d seq=%d overlay=%s): %v",
			chunkIndex, frame.SequenceIndex, frame.OverlayID, err)
		return
	}
	if p.generation.Load() != gen {
		// Stale generation: force_idle_now ran while this record was
		// in flight. Drop the result rather than publish it.
		return
	}
	key := frame.OverlayID
	if key == "" {
		key = framestore.ComputeKey(frame.AnimationName, frame.MatchedSpriteFrameNumber, frame.SheetFilename)
	}
	p.store.Put(key, img)
}

// DecodeImageBytes is the default Decoder: it base64-decodes the payload if
// ImageBytes is empty, validates it as a real PNG or JPEG via image.DecodeConfig
// (so corrupted bytes fail here rather than silently publishing garbage),
// and returns the original encoded bytes unchanged. The pool stores the
// encoded form, not a decoded pixel buffer — the render sink owns
// rasterization, per the engine's platform-surface boundary.
func DecodeImageBytes(frame events.FrameRecord) (framestore.Image, error) {
	raw := frame.ImageBytes
	if len(raw) == 0 {
		if frame.ImageBase64 == "" {
			return nil, fmt.Errorf("frame record %s has no image payload", frame.OverlayID)
		}
		decoded, err := base64.StdEncoding.DecodeString(frame.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("decode base64 overlay %s: %w", frame.OverlayID, err)
		}
		raw = decoded
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate overlay image %s: %w", frame.OverlayID, err)
	}
	if pixels := cfg.Width * cfg.Height; pixels > maxDecodedPixels {
		return nil, fmt.Errorf("overlay image %s is %dx%d (%d px): %w", frame.OverlayID, cfg.Width, cfg.Height, pixels, ErrResourceExhausted)
	}
	return raw, nil
}
