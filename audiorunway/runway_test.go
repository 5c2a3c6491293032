package audiorunway

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunway_PreDecodeThenStartReportsElapsedAndDuration(t *testing.T) {
	decoder := &FixedDecoder{PCM: []byte{1, 2, 3, 4}, DurationMs: 500}
	player := &NoopPlayer{Delay: 20 * time.Millisecond}
	r := New(decoder, player, DefaultConfig, nil)

	r.PreDecode(1, []byte("fake-mp3"))
	waitFor(t, time.Second, func() bool { return r.DurationFor(1) != 0 })

	if r.DurationFor(1) != 500 {
		t.Fatalf("expected duration 500, got %d", r.DurationFor(1))
	}

	r.Start(1)
	waitFor(t, time.Second, func() bool { return r.ElapsedFor(1) > 0 })

	waitFor(t, time.Second, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return len(player.Played) == 1
	})
}

func TestRunway_StartIsIdempotent(t *testing.T) {
	decoder := &FixedDecoder{PCM: []byte{1}, DurationMs: 10}
	player := &NoopPlayer{}
	r := New(decoder, player, DefaultConfig, nil)

	r.PreDecode(1, []byte("a"))
	waitFor(t, time.Second, func() bool { return r.DurationFor(1) != 0 })

	r.Start(1)
	r.Start(1)
	r.Start(1)

	waitFor(t, time.Second, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return len(player.Played) >= 1
	})
	time.Sleep(20 * time.Millisecond)

	player.mu.Lock()
	defer player.mu.Unlock()
	if len(player.Played) != 1 {
		t.Fatalf("expected exactly one playback despite repeated Start, got %d", len(player.Played))
	}
}

func TestRunway_ClearCancelsAndResets(t *testing.T) {
	decoder := &FixedDecoder{PCM: []byte{1}, DurationMs: 10000, Delay: 200 * time.Millisecond}
	player := &NoopPlayer{Delay: 5 * time.Second}
	r := New(decoder, player, DefaultConfig, nil)

	r.PreDecode(1, []byte("a"))
	r.Clear()

	if r.DurationFor(1) != 0 {
		t.Fatalf("expected cleared state to report 0 duration, got %d", r.DurationFor(1))
	}
	if r.ElapsedFor(1) != 0 {
		t.Fatalf("expected cleared state to report 0 elapsed, got %d", r.ElapsedFor(1))
	}
}

func TestRunway_PreDecodeIdempotentNoRedecodeAfterReady(t *testing.T) {
	calls := 0
	decoder := decodeCounter(&calls, 5)
	player := &NoopPlayer{}
	r := New(decoder, player, DefaultConfig, nil)

	r.PreDecode(1, []byte("a"))
	waitFor(t, time.Second, func() bool { return r.DurationFor(1) != 0 })
	r.PreDecode(1, []byte("a-again"))
	time.Sleep(20 * time.Millisecond)

	if calls != 1 {
		t.Fatalf("expected exactly one decode call, got %d", calls)
	}
}

// TestRunway_ConcurrentPreDecodeStartDuringClearIsRaceFree exercises
// PreDecode/Start hammering the Runway while Clear repeatedly swaps out
// ctx/cancel/queues underneath them. It carries no behavioral assertion;
// its job is to give `go test -race` something to catch if the ctx/queue
// snapshotting in PreDecode/Start/Clear ever regresses back to reading
// the shared fields live.
func TestRunway_ConcurrentPreDecodeStartDuringClearIsRaceFree(t *testing.T) {
	decoder := &FixedDecoder{PCM: []byte{1, 2, 3}, DurationMs: 50}
	player := &NoopPlayer{}
	r := New(decoder, player, DefaultConfig, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			r.PreDecode(i%8, []byte("a"))
			r.Start(i % 8)
		}
	}()

	for i := 0; i < 20; i++ {
		r.Clear()
		time.Sleep(time.Millisecond)
	}
	close(stop)
	wg.Wait()
}

func decodeCounter(calls *int, durationMs int64) Decoder {
	return &countingDecoder{calls: calls, durationMs: durationMs}
}

type countingDecoder struct {
	calls      *int
	durationMs int64
}

func (d *countingDecoder) Decode(mp3 []byte) ([]byte, int64, error) {
	*d.calls++
	return []byte{1}, d.durationMs, nil
}
