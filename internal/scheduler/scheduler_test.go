package scheduler

import (
	"testing"

	"github.com/avatarstream/avatarengine/internal/framestore"
)

func TestScheduler_SplitsSectionsOnAnimationChange(t *testing.T) {
	store := framestore.New()
	s := New(store, Config{BufferMin: 2})

	s.SetZone(0, 100, 200)
	s.AddFrames(0, []Frame{
		{SequenceIndex: 0, AnimationName: "talk", OverlayKey: "k0"},
		{SequenceIndex: 1, AnimationName: "talk", OverlayKey: "k1"},
		{SequenceIndex: 2, AnimationName: "smile", OverlayKey: "k2"},
	})

	sections := s.OnChunkComplete(0)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].AnimationName != "talk" || len(sections[0].Frames) != 2 {
		t.Fatalf("unexpected first section: %+v", sections[0])
	}
	if sections[1].AnimationName != "smile" || len(sections[1].Frames) != 1 {
		t.Fatalf("unexpected second section: %+v", sections[1])
	}
	if sections[0].ZoneTopLeftX != 100 || sections[0].ZoneTopLeftY != 200 {
		t.Fatalf("expected chunk-level zone propagated, got %+v", sections[0])
	}
}

func TestScheduler_QueueOrderedByChunkThenSection(t *testing.T) {
	store := framestore.New()
	s := New(store, Config{BufferMin: 2})

	s.AddFrames(1, []Frame{{SequenceIndex: 0, AnimationName: "a", OverlayKey: "x"}})
	s.OnChunkComplete(1)
	s.AddFrames(0, []Frame{{SequenceIndex: 0, AnimationName: "a", OverlayKey: "y"}})
	s.OnChunkComplete(0)

	head, ok := s.PeekHead()
	if !ok {
		t.Fatal("expected a queued section")
	}
	if head.ChunkIndex != 0 {
		t.Fatalf("expected chunk 0 first regardless of completion order, got %d", head.ChunkIndex)
	}
}

func TestScheduler_IsBufferReady(t *testing.T) {
	store := framestore.New()
	s := New(store, Config{BufferMin: 2})

	s.AddFrames(0, []Frame{
		{SequenceIndex: 0, AnimationName: "a", OverlayKey: "k0"},
		{SequenceIndex: 1, AnimationName: "a", OverlayKey: "k1"},
		{SequenceIndex: 2, AnimationName: "a", OverlayKey: "k2"},
	})
	sections := s.OnChunkComplete(0)
	sec := sections[0]

	if s.IsBufferReady(sec) {
		t.Fatal("expected not ready with nothing decoded")
	}
	store.Put("k0", framestore.Image{1})
	if s.IsBufferReady(sec) {
		t.Fatal("expected not ready with only 1 of BufferMin=2 decoded")
	}
	store.Put("k1", framestore.Image{1})
	if !s.IsBufferReady(sec) {
		t.Fatal("expected ready once first 2 decoded")
	}
}

func TestScheduler_Clear(t *testing.T) {
	store := framestore.New()
	s := New(store, Config{BufferMin: 2})
	s.AddFrames(0, []Frame{{SequenceIndex: 0, AnimationName: "a", OverlayKey: "k0"}})
	s.OnChunkComplete(0)

	s.Clear()
	if s.QueueLen() != 0 {
		t.Fatalf("expected empty queue after Clear, got %d", s.QueueLen())
	}
	if _, ok := s.PeekHead(); ok {
		t.Fatal("expected no head after Clear")
	}
}
