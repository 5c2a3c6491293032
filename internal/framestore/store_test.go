package framestore

import (
	"math/rand"
	"testing"
)

func TestStore_PutGetIsReady(t *testing.T) {
	s := New()
	if s.IsReady("a") {
		t.Fatal("empty store should not report ready")
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("empty store should not return an image")
	}

	s.Put("a", Image{1, 2, 3})
	if !s.IsReady("a") {
		t.Fatal("expected key ready after Put")
	}
	img, ok := s.Get("a")
	if !ok || len(img) != 3 {
		t.Fatalf("expected image of length 3, got %v ok=%v", img, ok)
	}
}

func TestStore_FirstNReady_NoGapTolerance(t *testing.T) {
	s := New()
	keys := []string{"k0", "k1", "k2", "k3", "k4"}
	s.Put("k0", Image{0})
	s.Put("k1", Image{0})
	// k2 deliberately missing
	s.Put("k3", Image{0})
	s.Put("k4", Image{0})

	if !s.FirstNReady(keys, 2) {
		t.Fatal("expected first 2 ready")
	}
	if s.FirstNReady(keys, 3) {
		t.Fatal("expected gap at index 2 to block first-3 readiness")
	}
	if s.FirstNReady(keys, 4) {
		t.Fatal("gap-tolerant readiness must not be permitted")
	}
}

func TestStore_FirstNReady_RandomSubsetMatchesLongestReadyPrefix(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		n := 20
		keys := make([]string, n)
		for i := range keys {
			keys[i] = string(rune('a' + i))
		}
		s := New()
		readyMask := make([]bool, n)
		for i := range readyMask {
			if rng.Intn(2) == 0 {
				readyMask[i] = true
				s.Put(keys[i], Image{byte(i)})
			}
		}
		longestPrefix := 0
		for longestPrefix < n && readyMask[longestPrefix] {
			longestPrefix++
		}
		for want := 0; want <= n; want++ {
			got := s.FirstNReady(keys, want)
			expect := want <= longestPrefix
			if got != expect {
				t.Fatalf("trial %d: FirstNReady(keys,%d)=%v, want %v (longestPrefix=%d)", trial, want, got, expect, longestPrefix)
			}
		}
	}
}

func TestStore_ClearAll(t *testing.T) {
	s := New()
	s.Put("a", Image{1})
	s.Put("b", Image{2})
	s.ClearAll()

	if s.IsReady("a") || s.IsReady("b") {
		t.Fatal("expected no ready keys after ClearAll")
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected no images after ClearAll")
	}
}

func TestComputeKey_Deterministic(t *testing.T) {
	k1 := ComputeKey("wave", 7, "sheet.png")
	k2 := ComputeKey("wave", 7, "sheet.png")
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %q and %q", k1, k2)
	}
	k3 := ComputeKey("wave", 8, "sheet.png")
	if k1 == k3 {
		t.Fatal("expected different matched_sprite_frame_number to change the key")
	}
}
