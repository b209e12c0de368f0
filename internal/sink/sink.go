// Package sink defines the common sink contract of spec.md §4.6. Each
// concrete sink (camera, recorder, stream, webrtc) owns one goroutine and
// implements Sink; failures are confined to the sink that produced them
// (spec.md §3 invariant: "Any sink failure never blocks any other sink").
package sink

import (
	"context"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Status is a sink's lifecycle state, reported in the controller's status
// snapshot (spec.md §4.7's "per-sink last error").
type Status int

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	default:
		return "stopped"
	}
}

// Sink is the common contract every concrete sink implements.
type Sink interface {
	// Kind identifies the sink for logging/status.
	Kind() pipeline.SinkKind

	// Start brings the sink up, reading from the given channels until Stop
	// is called or ctx is cancelled. Fails with a sink-specific nitroerr.Kind.
	Start(ctx context.Context, video, audio <-chan *pipeline.Packet) error

	// Stop flushes and releases resources. Idempotent.
	Stop() error

	// Status returns the sink's current lifecycle state.
	Status() Status

	// LastError returns the most recent error the sink observed, or nil.
	LastError() error

	// DroppedCount returns how many packets this sink has dropped locally
	// (spec.md §5's "every channel's drop count is exposed").
	DroppedCount() uint64
}
