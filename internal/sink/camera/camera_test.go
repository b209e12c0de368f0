package camera

import (
	"context"
	"testing"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
)

func i420Payload(w, h int, val byte) []byte {
	uvW, uvH := (w+1)/2, (h+1)/2
	buf := make([]byte, w*h+2*uvW*uvH)
	for i := range buf {
		buf[i] = val
	}
	return buf
}

func TestKindIsCamera(t *testing.T) {
	s := New(Config{DisplayName: "Nitrogen"}, &FakeDevice{}, &PassthroughDecoder{})
	if s.Kind() != pipeline.SinkCamera {
		t.Errorf("Kind() = %v, want SinkCamera", s.Kind())
	}
}

func TestStartOpensDeviceAndWritesFrames(t *testing.T) {
	device := &FakeDevice{}
	decoder := &PassthroughDecoder{Width: 16, Height: 16}
	s := New(Config{DisplayName: "Nitrogen", Width: 16, Height: 16, FPS: 30}, device, decoder)

	video := make(chan *pipeline.Packet, 2)
	audio := make(chan *pipeline.Packet, 1)

	if err := s.Start(context.Background(), video, audio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !device.Opened {
		t.Fatal("expected the device to be opened")
	}
	if s.Status() != sink.StatusRunning {
		t.Errorf("Status() = %v, want StatusRunning", s.Status())
	}

	video <- pipeline.NewPacket(pipeline.MediaVideo, i420Payload(16, 16, 200), 0, 1, pipeline.VideoTimeBase, true)
	deadline := time.After(time.Second)
	for {
		if len(device.Frames) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the frame to reach the device")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(video)
	close(audio)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if device.Opened {
		t.Error("expected the device to be closed after Stop")
	}
	if s.Status() != sink.StatusStopped {
		t.Errorf("Status() = %v, want StatusStopped", s.Status())
	}
}

func TestStartFailsWhenDeviceUnavailable(t *testing.T) {
	device := &FakeDevice{Fail: true}
	s := New(Config{DisplayName: "Nitrogen"}, device, &PassthroughDecoder{Width: 16, Height: 16})

	err := s.Start(context.Background(), make(chan *pipeline.Packet), make(chan *pipeline.Packet))
	if nitroerr.KindOf(err) != nitroerr.KindDeviceUnavailable {
		t.Fatalf("Kind = %v, want KindDeviceUnavailable", nitroerr.KindOf(err))
	}
	if s.Status() != sink.StatusFailed {
		t.Errorf("Status() = %v, want StatusFailed", s.Status())
	}
	if s.LastError() == nil {
		t.Error("expected LastError to be set")
	}
}

func TestShortPayloadStillReachesDeviceViaFallbackFrame(t *testing.T) {
	device := &FakeDevice{}
	decoder := &PassthroughDecoder{Width: 16, Height: 16}
	s := New(Config{DisplayName: "Nitrogen", Width: 16, Height: 16, FPS: 30}, device, decoder)

	video := make(chan *pipeline.Packet, 1)
	audio := make(chan *pipeline.Packet, 1)
	if err := s.Start(context.Background(), video, audio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A too-short payload still decodes (PassthroughDecoder synthesizes a
	// minimal frame), so it reaches the device and nothing is dropped.
	video <- pipeline.NewPacket(pipeline.MediaVideo, nil, 0, 1, pipeline.VideoTimeBase, false)
	time.Sleep(20 * time.Millisecond)

	close(video)
	close(audio)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(device.Frames) != 1 {
		t.Fatalf("expected the synthesized fallback frame to still reach the device, got %d frames", len(device.Frames))
	}
	if s.DroppedCount() != 0 {
		t.Errorf("DroppedCount() = %d, want 0 (PassthroughDecoder never errors)", s.DroppedCount())
	}
}

func TestAudioIsDrainedWithoutBlockingShutdown(t *testing.T) {
	device := &FakeDevice{}
	s := New(Config{DisplayName: "Nitrogen", Width: 16, Height: 16, FPS: 30}, device, &PassthroughDecoder{Width: 16, Height: 16})

	video := make(chan *pipeline.Packet, 1)
	audio := make(chan *pipeline.Packet, 4)
	if err := s.Start(context.Background(), video, audio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	audio <- pipeline.NewPacket(pipeline.MediaAudio, []byte{1, 2, 3}, 0, 1, pipeline.AudioTimeBase(48000), false)

	close(video)
	close(audio)

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not return; audio drain goroutine may be blocking shutdown")
	}
}
