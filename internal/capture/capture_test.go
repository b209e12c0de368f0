package capture_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/capture"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// fakeSession is a minimal capture.PortalSession: it hands back a fixed batch
// of frames on its first Poll and nothing afterward, signalling each Poll
// call on polled so tests can synchronize without sleeping.
type fakeSession struct {
	mu          sync.Mutex
	served      bool
	frames      []*pipeline.Frame
	audio       []*pipeline.AudioFrame
	openErr     error
	polled      chan struct{}
	closeCalled bool
}

func (f *fakeSession) Open(ctx context.Context, source pipeline.SourceDescriptor) error {
	return f.openErr
}

func (f *fakeSession) Poll() ([]*pipeline.Frame, []*pipeline.AudioFrame, error) {
	f.mu.Lock()
	var frames []*pipeline.Frame
	var audio []*pipeline.AudioFrame
	if !f.served {
		f.served = true
		frames, audio = f.frames, f.audio
	}
	f.mu.Unlock()

	if f.polled != nil {
		select {
		case f.polled <- struct{}{}:
		default:
		}
	}
	return frames, audio, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closeCalled = true
	f.mu.Unlock()
	return nil
}

func makeFrames(n int) []*pipeline.Frame {
	out := make([]*pipeline.Frame, n)
	for i := range out {
		out[i] = &pipeline.Frame{Width: 4, Height: 4}
	}
	return out
}

func TestSourceOpenStoresSessionOrigin(t *testing.T) {
	sess := &fakeSession{}
	src := capture.New(sess)
	if err := src.Open(context.Background(), pipeline.SourceDescriptor{}, 12345); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := src.Stats().SessionOrigin.Load(); got != 12345 {
		t.Errorf("SessionOrigin = %d, want 12345", got)
	}
}

func TestSourceOpenPropagatesPortalDenial(t *testing.T) {
	sess := &fakeSession{openErr: nitroerr.New(nitroerr.KindPortalDenied, "capture.test")}
	src := capture.New(sess)
	err := src.Open(context.Background(), pipeline.SourceDescriptor{}, 0)
	if nitroerr.KindOf(err) != nitroerr.KindPortalDenied {
		t.Fatalf("Kind = %v, want KindPortalDenied", nitroerr.KindOf(err))
	}
}

func TestSourceDropsOldestOnFullChannel(t *testing.T) {
	sess := &fakeSession{frames: makeFrames(3), polled: make(chan struct{}, 4)}
	src := capture.New(sess, capture.WithVideoCapacity(1))

	if err := src.Open(context.Background(), pipeline.SourceDescriptor{}, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	select {
	case <-sess.polled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the first Poll")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sess.closeCalled {
		t.Error("expected the underlying session's Close to be invoked")
	}

	if got := src.Stats().VideoSeq.Load(); got != 3 {
		t.Errorf("VideoSeq = %d, want 3", got)
	}
	if got := src.Stats().VideoDropped.Load(); got != 2 {
		t.Errorf("VideoDropped = %d, want 2 (capacity 1, 3 frames pushed)", got)
	}

	select {
	case f := <-src.Video():
		if f.Seq != 2 {
			t.Errorf("remaining frame Seq = %d, want 2 (the newest survives)", f.Seq)
		}
	default:
		t.Fatal("expected one surviving frame on the video channel")
	}
}

func TestSourceMutedDropsWithoutAssigningSequence(t *testing.T) {
	sess := &fakeSession{frames: makeFrames(2), polled: make(chan struct{}, 4)}
	src := capture.New(sess, capture.WithVideoCapacity(4))
	src.SetMuted(true)

	if err := src.Open(context.Background(), pipeline.SourceDescriptor{}, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	select {
	case <-sess.polled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the first Poll")
	}
	cancel()
	<-done

	if got := src.Stats().VideoSeq.Load(); got != 0 {
		t.Errorf("VideoSeq = %d, want 0 while muted", got)
	}
	select {
	case <-src.Video():
		t.Fatal("expected no frames on the video channel while muted")
	default:
	}
}

func TestSourceCloseIsIdempotent(t *testing.T) {
	sess := &fakeSession{polled: make(chan struct{}, 4)}
	src := capture.New(sess)
	if err := src.Open(context.Background(), pipeline.SourceDescriptor{}, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()
	<-sess.polled
	cancel()
	<-done

	if err := src.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
