// Package capture models the compositor portal screencast session: a
// PortalSession contract plus the bounded video/audio channels that carry
// frames off the capture thread without ever blocking it.
package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nitrogen-cast/nitrogen/internal/logging"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Default channel capacities per spec.md §4.1.
const (
	DefaultVideoChannelCapacity = 3
	DefaultAudioChannelCapacity = 4
)

// PortalSession is the opaque compositor-mediated screencast session. The
// real implementation is an external collaborator (xdg-desktop-portal over
// D-Bus, the PipeWire client); this package only depends on the contract so
// tests can supply internal/capture/testsource instead.
type PortalSession interface {
	// Open negotiates the screencast session for the given source descriptor.
	// Fails with nitroerr.KindPortalDenied, KindPortalUnavailable, or KindNoSuchSource.
	Open(ctx context.Context, source pipeline.SourceDescriptor) error

	// Poll is invoked repeatedly from the capture thread; it returns whatever
	// frames/audio buffers became available since the last call. It must
	// never block for longer than a single frame interval.
	Poll() ([]*pipeline.Frame, []*pipeline.AudioFrame, error)

	// Close releases the portal session. Idempotent.
	Close() error
}

// Stats exposes the source's drop counters and sequence/clock state for the
// controller's status snapshot (spec.md §4.7 and §5's "every channel's drop
// count is exposed").
type Stats struct {
	VideoSeq        atomic.Uint64
	VideoDropped    atomic.Uint64
	AudioDropped    atomic.Uint64
	SessionOrigin   atomic.Int64 // monotonic ns captured once at session start
}

// Source drives a PortalSession's capture thread and exposes bounded,
// drop-oldest video/audio channels to the rest of the pipeline. It never
// blocks the producing thread: per spec.md §4.1, a full channel drops the
// oldest entry and counts it.
type Source struct {
	session PortalSession

	videoCh chan *pipeline.Frame
	audioCh chan *pipeline.AudioFrame

	stats Stats

	muted atomic.Bool // set while the controller is Paused (spec.md §4.7)

	mu      sync.Mutex
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Source's channel capacities.
type Option func(*Source)

// WithVideoCapacity overrides the default video channel capacity.
func WithVideoCapacity(n int) Option {
	return func(s *Source) { s.videoCh = make(chan *pipeline.Frame, n) }
}

// WithAudioCapacity overrides the default audio channel capacity.
func WithAudioCapacity(n int) Option {
	return func(s *Source) { s.audioCh = make(chan *pipeline.AudioFrame, n) }
}

// New wraps session in a Source with the default channel capacities.
func New(session PortalSession, opts ...Option) *Source {
	s := &Source{
		session: session,
		videoCh: make(chan *pipeline.Frame, DefaultVideoChannelCapacity),
		audioCh: make(chan *pipeline.AudioFrame, DefaultAudioChannelCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Video returns the channel the transform chain reads raw frames from.
func (s *Source) Video() <-chan *pipeline.Frame { return s.videoCh }

// Audio returns the channel the audio encoder reads PCM buffers from.
func (s *Source) Audio() <-chan *pipeline.AudioFrame { return s.audioCh }

// Stats returns the source's drop/sequence counters.
func (s *Source) Stats() *Stats { return &s.stats }

// SetMuted toggles drop-everything mode; the controller mutes the source on
// entering Paused and un-mutes on Resume (spec.md §4.7).
func (s *Source) SetMuted(muted bool) { s.muted.Store(muted) }

// Open negotiates the portal session and records the session origin clock
// value used by every downstream PTS computation (spec.md §9 "timestamp origin").
func (s *Source) Open(ctx context.Context, source pipeline.SourceDescriptor, originNanos int64) error {
	if err := s.session.Open(ctx, source); err != nil {
		return err
	}
	s.stats.SessionOrigin.Store(originNanos)
	return nil
}

// Run starts the capture thread's poll loop; it returns once ctx is
// cancelled or the portal session reports SourceLost. Run must be called
// once per session after Open succeeds.
func (s *Source) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	log := logging.For(logging.Capture)
	for {
		select {
		case <-runCtx.Done():
			return nil
		default:
		}

		frames, audio, err := s.session.Poll()
		if err != nil {
			log.Error("capture source lost", "error", err)
			return nitroerr.Wrap(nitroerr.KindSourceLost, "capture", err)
		}

		if s.muted.Load() {
			// Paused: frames are dropped before entering the channel, and audio
			// buffers are discarded (spec.md §4.7).
			continue
		}

		for _, f := range frames {
			f.Seq = s.stats.VideoSeq.Add(1) - 1
			s.pushVideo(f)
		}
		for _, a := range audio {
			s.pushAudio(a)
		}
	}
}

// pushVideo enqueues f, dropping the oldest queued frame if the channel is
// full rather than blocking the capture thread (spec.md §4.1).
func (s *Source) pushVideo(f *pipeline.Frame) {
	for {
		select {
		case s.videoCh <- f:
			return
		default:
		}
		select {
		case <-s.videoCh:
			s.stats.VideoDropped.Add(1)
		default:
			// Someone else drained it between the full check and now; retry.
		}
	}
}

func (s *Source) pushAudio(a *pipeline.AudioFrame) {
	for {
		select {
		case s.audioCh <- a:
			return
		default:
		}
		select {
		case <-s.audioCh:
			s.stats.AudioDropped.Add(1)
		default:
		}
	}
}

// Close stops the capture thread and releases the portal session. Idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return s.session.Close()
}
