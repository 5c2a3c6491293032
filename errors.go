package avatarengine

import "fmt"

// ProtocolViolation mirrors internal/events.ProtocolViolation at the
// public API boundary: a malformed or out-of-order inbound event that
// was dropped rather than aborting the message.
type ProtocolViolation struct {
	ChunkIndex uint32
	Reason     string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("avatarengine: protocol violation on chunk %d: %s", e.ChunkIndex, e.Reason)
}

// FatalEngineError is raised for resource-shortage class failures (e.g.
// decode allocation failure) that force_idle_now alone cannot recover
// from cleanly; the engine surfaces it through EngineListener.OnError and
// then invokes force_idle_now.
type FatalEngineError struct {
	Component string
	Err       error
}

func (e *FatalEngineError) Error() string {
	return fmt.Sprintf("avatarengine: fatal error in %s: %v", e.Component, e.Err)
}

func (e *FatalEngineError) Unwrap() error { return e.Err }
