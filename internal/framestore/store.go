// Package framestore implements the content-addressed cache of decoded
// overlay images that DecodePool writes to and Conductor reads from.
package framestore

import (
	"strconv"
	"sync"
)

// Image is a decoded overlay sprite. The store is agnostic to the concrete
// pixel representation; callers supply whatever their render sink expects.
type Image = []byte

// Store is the FrameStore: a mapping from overlay key to decoded image,
// plus the decoded_keys set that is the sole authoritative readiness
// predicate. An entry may exist in the image mapping before its key
// appears in decoded_keys; consumers must always check IsReady, never
// infer readiness from Get alone.
type Store struct {
	mu     sync.RWMutex
	images map[string]Image
	ready  map[string]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		images: make(map[string]Image),
		ready:  make(map[string]struct{}),
	}
}

// Put inserts image under key, publishing to the image mapping before
// marking the key ready — the write-order discipline required for the
// reader side (IsReady first, then Get) to never observe a ready key with
// no image behind it.
func (s *Store) Put(key string, image Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[key] = image
	s.ready[key] = struct{}{}
}

// Get returns the decoded image for key, if present.
func (s *Store) Get(key string) (Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[key]
	return img, ok
}

// IsReady reports whether key is in decoded_keys. Once true for a given
// key it remains true until ClearAll.
func (s *Store) IsReady(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ready[key]
	return ok
}

// FirstNReady reports whether keys[0:n] are all ready, short-circuiting on
// the first gap. Gap-tolerant readiness (a ready key past a non-ready one
// counting toward n) is explicitly disallowed.
func (s *Store) FirstNReady(keys []string, n int) bool {
	if n <= 0 {
		return true
	}
	if n > len(keys) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < n; i++ {
		if _, ok := s.ready[keys[i]]; !ok {
			return false
		}
	}
	return true
}

// ClearAll drops both the image mapping and the decoded_keys set. Used by
// force_idle_now to guarantee no stale overlay key reads as ready after a
// message is abandoned.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = make(map[string]Image)
	s.ready = make(map[string]struct{})
}

// ComputeKey derives the content-addressed FrameStore key for a record
// whose overlay_id was absent on the wire: identical (animationName,
// matchedSpriteFrameNumber, sheetFilename) always yields the same key.
func ComputeKey(animationName string, matchedSpriteFrameNumber uint32, sheetFilename string) string {
	return animationName + "/" + strconv.FormatUint(uint64(matchedSpriteFrameNumber), 10) + "/" + sheetFilename
}
