// Package recorder implements the file recorder sink of spec.md §4.6: it
// interleaves audio and video coded packets into an MP4/MKV container,
// writing whichever packet has the smallest wall-time PTS first, within a
// bounded reorder window. Interleave/priority-queue approach is adapted from
// the teacher's muxer.go MediaMuxer Pull()/pullStrict() pattern, generalized
// from the teacher's simulcast audio+N-video sync to a single audio+video pair
// muxed straight to a container writer instead of handed back to a caller.
package recorder

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/logging"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
)

// ReorderWindow bounds how long a packet waits for an earlier-PTS packet on
// the other track before being written, per spec.md §4.6 ("≤ 500 ms").
const ReorderWindow = 500 * time.Millisecond

// ContainerWriter is the muxer contract; the real MP4/MKV box writer is an
// external collaborator (spec.md §1 scopes out "container muxers").
type ContainerWriter interface {
	// WriteVideo/WriteAudio write one interleaved sample; ptsNanos is wall-clock-
	// relative presentation time. WriteVideo's keyframe flag matches the packet's.
	WriteVideo(payload []byte, ptsNanos, durationNanos int64, keyframe bool) error
	WriteAudio(payload []byte, ptsNanos, durationNanos int64) error
	Close() error
}

// pendingItem is one packet waiting in the reorder heap, ordered by PTS.
type pendingItem struct {
	pkt       *pipeline.Packet
	ptsNanos  int64
	arrival   time.Time
}

type pendingHeap []*pendingItem

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].ptsNanos < h[j].ptsNanos }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)         { *h = append(*h, x.(*pendingItem)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Config configures the recorder sink.
type Config struct {
	Path      string // output file path
	Format    string // "mp4" | "mkv"
}

// Sink implements sink.Sink for file recording.
type Sink struct {
	cfg    Config
	writer ContainerWriter

	status  atomic.Int32
	lastErr atomic.Value
	dropped atomic.Uint64

	mu     sync.Mutex
	heap   pendingHeap
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a recorder Sink. writer is injected so tests can supply a
// fake ContainerWriter without a real MP4/MKV library.
func New(cfg Config, writer ContainerWriter) *Sink {
	return &Sink{cfg: cfg, writer: writer}
}

func (s *Sink) Kind() pipeline.SinkKind { return pipeline.SinkRecorder }
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

	s.status.Store(int32(sink.StatusRunning))
	go s.run(runCtx, video, audio)
	return nil
}

func (s *Sink) run(ctx context.Context, video, audio <-chan *pipeline.Packet) {
	defer close(s.done)
	log := logging.For(logging.Sink).With("sink", "recorder", "path", s.cfg.Path)

	flushTicker := time.NewTicker(ReorderWindow / 2)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainAll()
			return
		case pkt, ok := <-video:
			if !ok {
				video = nil
				continue
			}
			s.enqueue(pkt, pipeline.MediaVideo)
		case pkt, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			s.enqueue(pkt, pipeline.MediaAudio)
		case <-flushTicker.C:
			if err := s.flushReady(); err != nil {
				s.fail(err, log)
				return
			}
		}
		if video == nil && audio == nil {
			s.drainAll()
			return
		}
	}
}

func (s *Sink) enqueue(pkt *pipeline.Packet, kind pipeline.MediaKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.heap, &pendingItem{pkt: pkt, ptsNanos: pkt.PTSNanos(), arrival: time.Now()})
}

// flushReady writes every item in the reorder window whose wait has expired,
// in PTS order (spec.md §4.6: "write the packet with the smallest PTS... first").
func (s *Sink) flushReady() error {
	s.mu.Lock()
	var toWrite []*pendingItem
	now := time.Now()
	for s.heap.Len() > 0 && now.Sub(s.heap[0].arrival) >= ReorderWindow {
		toWrite = append(toWrite, heap.Pop(&s.heap).(*pendingItem))
	}
	s.mu.Unlock()

	for _, item := range toWrite {
		if err := s.write(item); err != nil {
			item.pkt.Release()
			return err
		}
		item.pkt.Release()
	}
	return nil
}

func (s *Sink) drainAll() {
	s.mu.Lock()
	items := make([]*pendingItem, s.heap.Len())
	for i := range items {
		items[i] = heap.Pop(&s.heap).(*pendingItem)
	}
	s.mu.Unlock()

	for _, item := range items {
		_ = s.write(item)
		item.pkt.Release()
	}
}

func (s *Sink) write(item *pendingItem) error {
	if item.pkt.Kind == pipeline.MediaVideo {
		return s.writer.WriteVideo(item.pkt.Payload, item.ptsNanos, item.pkt.Duration, item.pkt.Keyframe)
	}
	return s.writer.WriteAudio(item.pkt.Payload, item.ptsNanos, item.pkt.Duration)
}

func (s *Sink) fail(err error, log interface{ Error(string, ...any) }) {
	wrapped := nitroerr.WithDetail(nitroerr.KindFileIO, "sink.recorder", s.cfg.Path, err)
	s.lastErr.Store(error(wrapped))
	s.status.Store(int32(sink.StatusFailed))
	log.Error("recorder write failed, sink stopping", "error", wrapped)
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
	return s.writer.Close()
}
