// Package controller owns session state and orchestrates the capture →
// transform → encode → fan-out → sinks pipeline per spec.md §4.7. Cyclic
// references are broken by an observer pattern (spec.md §9): stages and
// sinks never hold a handle back to the controller, they publish events on
// a Bus the controller is the sole subscriber of. Adapted from the
// teacher pack's kelindar/event wrapper (smazurov-videonode/internal/events/bus.go),
// generalized from that repo's ten stream-management event types to this
// session's five.
package controller

import (
	"github.com/kelindar/event"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Event type constants for kelindar/event's dispatch-by-type-id.
const (
	TypeSinkFailed uint32 = iota + 1
	TypeSinkRecovered
	TypeKeyframeDelivered
	TypeSourceLost
	TypeHotkeyCommand
)

// Event is the interface every published event implements.
type Event interface {
	Type() uint32
}

// SinkFailedEvent reports a sink transitioning to Failed.
type SinkFailedEvent struct {
	Sink pipeline.SinkKind
	Err  error
}

func (e SinkFailedEvent) Type() uint32 { return TypeSinkFailed }

// SinkRecoveredEvent reports a previously-failed sink coming back up (not
// currently emitted by any sink, reserved for a future reconnect-then-resume
// path; kept so the bus's type switch is exhaustive over the sink lifecycle).
type SinkRecoveredEvent struct {
	Sink pipeline.SinkKind
}

func (e SinkRecoveredEvent) Type() uint32 { return TypeSinkRecovered }

// KeyframeDeliveredEvent fires the first time the video encoder drains a
// keyframe, just before that packet is handed to the video fan-out; it is the
// Starting → Running trigger of spec.md §4.7. SinkCount is the number of
// sinks started at that point. No sink acknowledges receipt of the keyframe.
type KeyframeDeliveredEvent struct {
	SinkCount int
}

func (e KeyframeDeliveredEvent) Type() uint32 { return TypeKeyframeDelivered }

// SourceLostEvent reports the capture source disappearing mid-session, the
// any → Stopping trigger of spec.md §4.7.
type SourceLostEvent struct {
	Err error
}

func (e SourceLostEvent) Type() uint32 { return TypeSourceLost }

// HotkeyCommandKind identifies which operator command a hotkey bound to.
type HotkeyCommandKind int

const (
	HotkeyToggle HotkeyCommandKind = iota
	HotkeyPause
	HotkeyRecordToggle
	HotkeyOverlayToggle
)

// HotkeyCommandEvent carries an operator hotkey press into the controller.
type HotkeyCommandEvent struct {
	Command HotkeyCommandKind
}

func (e HotkeyCommandEvent) Type() uint32 { return TypeHotkeyCommand }

// Bus wraps kelindar/event's dispatcher with a typed Publish/Subscribe pair,
// so stages and sinks depend only on Event, never on the controller.
type Bus struct {
	dispatcher *event.Dispatcher
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish dispatches ev to every subscriber registered for its concrete type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case SinkFailedEvent:
		event.Publish(b.dispatcher, e)
	case SinkRecoveredEvent:
		event.Publish(b.dispatcher, e)
	case KeyframeDeliveredEvent:
		event.Publish(b.dispatcher, e)
	case SourceLostEvent:
		event.Publish(b.dispatcher, e)
	case HotkeyCommandEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for whichever event type its signature names,
// returning an unsubscribe function. Usage: bus.Subscribe(func(e SinkFailedEvent) {...}).
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SinkFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SinkRecoveredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(KeyframeDeliveredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SourceLostEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HotkeyCommandEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// fatalKind reports whether kind always escalates straight to Stopping,
// per spec.md §7 ("Capture source loss or video encoder Fatal transitions
// the whole session to Stopping").
func fatalKind(kind nitroerr.Kind) bool {
	return kind == nitroerr.KindSourceLost || kind == nitroerr.KindHardwareUnavailable
}
