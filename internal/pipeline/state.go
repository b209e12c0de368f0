package pipeline

import "sync/atomic"

// SessionState is the controller's lifecycle state, observable atomically per
// the data model's "Observable atomically" requirement.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateStopping:
		return "Stopping"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// AtomicState is a lock-free holder for the session state plus, when Failed, the
// error kind that caused it. Stages never write this directly; only the controller
// and stage metrics publishers do (§5's "status snapshot is a lock-free atomic struct").
type AtomicState struct {
	v atomic.Int32 // low byte: SessionState; next byte: failure kind, 0 when not Failed
}

// Store sets the state. kind is ignored unless s == StateFailed.
func (a *AtomicState) Store(s SessionState, kind int) {
	a.v.Store(int32(s) | int32(kind)<<8)
}

// Load returns the current state and, if Failed, the failure kind.
func (a *AtomicState) Load() (SessionState, int) {
	packed := a.v.Load()
	return SessionState(packed & 0xff), int(packed >> 8)
}
