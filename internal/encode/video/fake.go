package video

import (
	"sync"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// FakeEncoder is a software stand-in for HardwareEncoder, used by tests that
// exercise the pipeline's keyframe/PTS/backpressure invariants without a
// real vendor SDK present. It satisfies Encoder by "encoding" each frame into
// a deterministic payload derived from the frame's sequence number.
type FakeEncoder struct {
	mu            sync.Mutex
	params        Params
	sessionOrigin int64
	frameCount    int64
	keyframeEvery int64
	forceKF       bool
	pending       []*pipeline.Packet
	stallAt       int // 0 disables; Submit returns Stalled once stallAt packets are queued
}

// NewFakeEncoder constructs a FakeEncoder. stallAt == 0 disables simulated
// backpressure.
func NewFakeEncoder(sessionOrigin int64, stallAt int) *FakeEncoder {
	return &FakeEncoder{sessionOrigin: sessionOrigin, stallAt: stallAt}
}

func (e *FakeEncoder) Configure(p Params) error {
	if err := validate(p); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
	e.keyframeEvery = int64(p.FPS) * 2
	e.frameCount = 0
	e.forceKF = true
	e.pending = nil
	return nil
}

func (e *FakeEncoder) Submit(f *pipeline.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stallAt > 0 && len(e.pending) >= e.stallAt {
		return nitroerr.New(nitroerr.KindStalled, "encode.video")
	}

	e.frameCount++
	keyframe := e.forceKF
	e.forceKF = false
	if e.keyframeEvery > 0 && (e.frameCount-1)%e.keyframeEvery == 0 {
		keyframe = true
	}

	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(f.Seq >> (8 * (i % 8)))
	}
	pts := pipeline.VideoTimeBase.FromNanos(f.Timestamp - e.sessionOrigin)
	pkt := pipeline.NewPacket(pipeline.MediaVideo, payload, pts, f.Duration, pipeline.VideoTimeBase, keyframe)
	e.pending = append(e.pending, pkt)
	return nil
}

func (e *FakeEncoder) RequestKeyframe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forceKF = true
}

func (e *FakeEncoder) Drain() ([]*pipeline.Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.pending
	e.pending = nil
	return out, nil
}

func (e *FakeEncoder) Flush() ([]*pipeline.Packet, error) { return e.Drain() }

func (e *FakeEncoder) Close() error { return nil }
