// Package stream implements the network streamer sink of spec.md §4.6: it
// pushes coded packets to a remote RTMP(S) or SRT endpoint, reconnecting with
// exponential backoff on disconnect and dropping packets (never blocking the
// fan-out) while no connection is live. Grounded on the teacher's pipeline.go
// goroutine-per-sink shape, generalized from an in-process WebRTC relay to an
// outbound network push.
package stream

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/logging"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
)

// Reconnect policy, per spec.md §4.6: base 1s, cap 30s, max 10 attempts.
const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
	maxAttempts = 10
)

// Transport is the wire-level contract a backend (RTMP, SRT) implements.
// Connect must block until the remote endpoint has accepted the publish.
type Transport interface {
	Connect(ctx context.Context, endpoint string) error
	SendVideo(payload []byte, ptsNanos, durationNanos int64, keyframe bool) error
	SendAudio(payload []byte, ptsNanos, durationNanos int64) error
	Close() error
}

// TransportFactory builds a fresh, unconnected Transport for one endpoint
// scheme. Dial() selects one by URL scheme; tests inject a fake factory.
type TransportFactory func() Transport

// Config configures the network streamer sink.
type Config struct {
	Endpoint string // rtmp://, rtmps://, or srt://
}

// Sink implements sink.Sink, pushing packets to a single remote endpoint.
type Sink struct {
	cfg     Config
	newTransport TransportFactory

	status  atomic.Int32
	lastErr atomic.Value
	dropped atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a streamer Sink. newTransport is injected so tests can
// supply a fake Transport without a real network stack; Dial picks the real
// backend from cfg.Endpoint's scheme.
func New(cfg Config, newTransport TransportFactory) *Sink {
	return &Sink{cfg: cfg, newTransport: newTransport}
}

// Dial returns the TransportFactory appropriate for endpoint's URL scheme.
func Dial(endpoint string) TransportFactory {
	u, err := url.Parse(endpoint)
	scheme := ""
	if err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	switch scheme {
	case "srt":
		return func() Transport { return newSRTTransport() }
	default:
		return func() Transport { return newRTMPTransport() }
	}
}

func (s *Sink) Kind() pipeline.SinkKind { return pipeline.SinkStream }
func (s *Sink) Status() sink.Status     { return sink.Status(s.status.Load()) }
func (s *Sink) DroppedCount() uint64    { return s.dropped.Load() }

func (s *Sink) LastError() error {
	if v := s.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Start implements sink.Sink.
func (s *Sink) Start(ctx context.Context, video, audio <-chan *pipeline.Packet) error {
	s.status.Store(int32(sink.StatusStarting))
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx, video, audio)
	return nil
}

func (s *Sink) run(ctx context.Context, video, audio <-chan *pipeline.Packet) {
	defer close(s.done)
	log := logging.For(logging.Sink).With("sink", "stream", "endpoint", s.cfg.Endpoint)

	transport := s.newTransport()
	connected := s.connectWithBackoff(ctx, transport, log)
	if connected {
		s.status.Store(int32(sink.StatusRunning))
	}

	for {
		select {
		case <-ctx.Done():
			transport.Close()
			return
		case pkt, ok := <-video:
			if !ok {
				video = nil
			} else {
				connected = s.send(ctx, transport, pkt, connected, log)
			}
		case pkt, ok := <-audio:
			if !ok {
				audio = nil
			} else {
				connected = s.send(ctx, transport, pkt, connected, log)
			}
		}
		if video == nil && audio == nil {
			transport.Close()
			return
		}
	}
}

// send transmits pkt if connected, dropping it otherwise; on a transport
// error it releases the connection and starts reconnecting, folding drops
// into the counter in the meantime (spec.md §4.6: "never blocks the fan-out").
func (s *Sink) send(ctx context.Context, transport Transport, pkt *pipeline.Packet, connected bool, log interface {
	Error(string, ...any)
	Warn(string, ...any)
}) bool {
	defer pkt.Release()

	if !connected {
		s.dropped.Add(1)
		return false
	}

	var err error
	if pkt.Kind == pipeline.MediaVideo {
		err = transport.SendVideo(pkt.Payload, pkt.PTSNanos(), pkt.Duration, pkt.Keyframe)
	} else {
		err = transport.SendAudio(pkt.Payload, pkt.PTSNanos(), pkt.Duration)
	}
	if err == nil {
		return true
	}

	wrapped := nitroerr.WithDetail(nitroerr.KindNetworkIO, "sink.stream", s.cfg.Endpoint, err)
	s.lastErr.Store(error(wrapped))
	log.Warn("stream transport error, reconnecting", "error", wrapped)
	s.dropped.Add(1)
	return s.connectWithBackoff(ctx, transport, log)
}

// connectWithBackoff retries transport.Connect with exponential backoff
// (base 1s, cap 30s) up to maxAttempts times. Returns whether it succeeded;
// on exhaustion the sink transitions to Failed and subsequent sends keep
// dropping until Stop is called.
func (s *Sink) connectWithBackoff(ctx context.Context, transport Transport, log interface {
	Error(string, ...any)
	Warn(string, ...any)
}) bool {
	delay := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := transport.Connect(ctx, s.cfg.Endpoint); err == nil {
			return true
		} else if attempt == maxAttempts {
			wrapped := nitroerr.WithDetail(nitroerr.KindNetworkIO, "sink.stream", s.cfg.Endpoint, err)
			s.lastErr.Store(error(wrapped))
			s.status.Store(int32(sink.StatusFailed))
			log.Error("stream reconnect attempts exhausted", "attempts", maxAttempts, "error", wrapped)
			return false
		}

		jitter := time.Duration(rand.Int63n(int64(delay) / 4 + 1))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return false
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
	if s.status.Load() != int32(sink.StatusFailed) {
		s.status.Store(int32(sink.StatusStopped))
	}
	return nil
}
