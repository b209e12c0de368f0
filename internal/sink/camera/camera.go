// Package camera implements the virtual camera sink of spec.md §4.6: video
// packets are decoded/re-packed to the loopback device's accepted format and
// published under a configurable display name; audio is ignored.
package camera

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
)

// Device is the loopback camera backend contract; the real implementation
// drives a kernel loopback facility (e.g. v4l2loopback on Linux), adapted
// from the teacher's devices_linux_purego.go V4L2 dlopen pattern but for the
// *output* direction (publishing a node) rather than enumerating inputs.
type Device interface {
	Open(displayName string, width, height, fps int) error
	// WriteFrame pushes one decoded I420 frame to the device's buffer.
	WriteFrame(f *pipeline.Frame) error
	Close() error
}

// Decoder turns coded video packets back into raw frames the loopback
// device accepts. The real decode session is the same vendor SDK family as
// the encoder (spec.md §4.6: "re-decodes or re-packs"); this package only
// depends on the contract so tests can substitute a pass-through stub.
type Decoder interface {
	Decode(pkt *pipeline.Packet) (*pipeline.Frame, error)
	Close() error
}

// Config configures the sink.
type Config struct {
	DisplayName string
	Width, Height, FPS int
}

// Sink implements sink.Sink for the virtual camera.
type Sink struct {
	cfg     Config
	device  Device
	decoder Decoder

	status    atomic.Int32
	lastErr   atomic.Value
	dropped   atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a camera Sink. device/decoder are injected so tests can
// supply fakes without a real loopback kernel facility present.
func New(cfg Config, device Device, decoder Decoder) *Sink {
	return &Sink{cfg: cfg, device: device, decoder: decoder}
}

func (s *Sink) Kind() pipeline.SinkKind { return pipeline.SinkCamera }

func (s *Sink) Status() sink.Status { return sink.Status(s.status.Load()) }

func (s *Sink) LastError() error {
	if v := s.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (s *Sink) DroppedCount() uint64 { return s.dropped.Load() }

// Start implements sink.Sink. Fails with nitroerr.KindDeviceUnavailable if
// the loopback kernel facility is missing (spec.md §4.6).
func (s *Sink) Start(ctx context.Context, video, audio <-chan *pipeline.Packet) error {
	s.status.Store(int32(sink.StatusStarting))

	if err := s.device.Open(s.cfg.DisplayName, s.cfg.Width, s.cfg.Height, s.cfg.FPS); err != nil {
		wrapped := nitroerr.Wrap(nitroerr.KindDeviceUnavailable, "sink.camera", err)
		s.lastErr.Store(error(wrapped))
		s.status.Store(int32(sink.StatusFailed))
		return wrapped
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.status.Store(int32(sink.StatusRunning))

	go s.run(runCtx, video, audio)
	return nil
}

func (s *Sink) run(ctx context.Context, video, audio <-chan *pipeline.Packet) {
	defer close(s.done)

	// Audio is ignored by this sink (spec.md §4.6); drain it so the fan-out's
	// audio subscription doesn't back up indefinitely.
	go func() {
		for range audio {
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-video:
			if !ok {
				return
			}
			s.onPacket(pkt)
		}
	}
}

func (s *Sink) onPacket(pkt *pipeline.Packet) {
	defer pkt.Release()
	frame, err := s.decoder.Decode(pkt)
	if err != nil {
		s.dropped.Add(1)
		return
	}
	if err := s.device.WriteFrame(frame); err != nil {
		s.dropped.Add(1)
	}
}

// Stop implements sink.Sink. Idempotent.
func (s *Sink) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.status.Store(int32(sink.StatusStopped))
	return s.device.Close()
}
