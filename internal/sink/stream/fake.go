package stream

import (
	"context"
	"errors"
	"sync"
)

// FakeTransport is an in-memory Transport for tests, recording calls instead
// of dialing a real RTMP or SRT endpoint.
type FakeTransport struct {
	mu sync.Mutex

	ConnectAttempts int
	FailConnects    int // first N Connect calls fail, then succeed
	AlwaysFail      bool
	Connected       bool
	Closed          bool

	VideoPTS      []int64
	VideoKeyframe []bool
	AudioPTS      []int64
}

func (f *FakeTransport) Connect(ctx context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectAttempts++
	if f.AlwaysFail || f.ConnectAttempts <= f.FailConnects {
		return errors.New("fake connect failure")
	}
	f.Connected = true
	return nil
}

func (f *FakeTransport) SendVideo(payload []byte, ptsNanos, durationNanos int64, keyframe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Connected {
		return errors.New("fake: not connected")
	}
	f.VideoPTS = append(f.VideoPTS, ptsNanos)
	f.VideoKeyframe = append(f.VideoKeyframe, keyframe)
	return nil
}

func (f *FakeTransport) SendAudio(payload []byte, ptsNanos, durationNanos int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Connected {
		return errors.New("fake: not connected")
	}
	f.AudioPTS = append(f.AudioPTS, ptsNanos)
	return nil
}

// Keyframes returns a snapshot of the keyframe flags recorded so far, safe to
// call concurrently with SendVideo.
func (f *FakeTransport) Keyframes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.VideoKeyframe...)
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected = false
	f.Closed = true
	return nil
}
