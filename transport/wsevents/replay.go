package wsevents

import (
	"log"
	"time"

	"github.com/avatarstream/avatarengine/internal/events"
)

// maxReplayDelay caps any single inter-message pause during replay, so a
// recording made across a slow network doesn't make tests or demos hang.
const maxReplayDelay = time.Second

// Events implements events.Source by pumping the loaded recording,
// honoring each message's recorded delay (capped at maxReplayDelay), and
// closing the channel once the recording is exhausted.
func (r *Replayer) Events() <-chan events.Event {
	out := make(chan events.Event, 64)
	logger := log.Default()
	go func() {
		defer close(out)
		for _, msg := range r.log {
			delay := time.Duration(msg.DelayMs) * time.Millisecond
			if delay > maxReplayDelay {
				delay = maxReplayDelay
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			env, err := unmarshalEnvelope(msg.Payload)
			if err != nil {
				logger.Printf("[WSEVENTS] replay: malformed envelope: %v", err)
				continue
			}
			ev, ok := decodeEnvelope(env, logger)
			if !ok {
				continue
			}
			out <- ev
		}
	}()
	return out
}
