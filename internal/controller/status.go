package controller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// SinkStatus is the per-sink slice of the status snapshot.
type SinkStatus struct {
	Kind      pipeline.SinkKind
	Status    string
	Dropped   uint64
	LastError string
}

// Snapshot is the immutable status-at-a-point-in-time the controller
// publishes; spec.md §4.7 and §5 require it be readable lock-free, so
// readers always get a fully-formed value via an atomic.Pointer swap
// rather than reading fields out of a mutable struct under a lock.
type Snapshot struct {
	State pipeline.SessionState

	VideoDropped uint64
	AudioDropped uint64

	CurrentFPS float64
	TargetFPS  int

	LatencyP50Ms float64
	LatencyP95Ms float64

	BitrateKbps float64

	Sinks []SinkStatus
}

// statusPublisher accumulates the rolling windows (encode latency, bitrate,
// fps) and atomically republishes a Snapshot. Only the controller and the
// encode stage's metrics callback ever write to it (spec.md §5).
type statusPublisher struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	latencies   []latencySample
	bitrateWin  []bitrateSample
	fpsWin      []time.Time
}

type latencySample struct {
	at time.Time
	ms float64
}

type bitrateSample struct {
	at    time.Time
	bytes int
}

func newStatusPublisher() *statusPublisher {
	p := &statusPublisher{}
	p.current.Store(&Snapshot{State: pipeline.StateIdle})
	return p
}

// Load returns the most recent snapshot.
func (p *statusPublisher) Load() *Snapshot {
	return p.current.Load()
}

// observeEncodeLatency records how long one frame's Submit call took, for
// the sliding 5s p50/p95 window (spec.md §4.7).
func (p *statusPublisher) observeEncodeLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.latencies = append(p.latencies, latencySample{at: now, ms: float64(d.Milliseconds())})
	p.latencies = prune5s(p.latencies, now)
}

// observeBitrate records one packet's size for the 1s bitrate window.
func (p *statusPublisher) observeBitrate(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.bitrateWin = append(p.bitrateWin, bitrateSample{at: now, bytes: n})
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(p.bitrateWin) && p.bitrateWin[i].at.Before(cutoff) {
		i++
	}
	p.bitrateWin = p.bitrateWin[i:]
}

// observeFrame records one delivered video frame for the current-fps window.
func (p *statusPublisher) observeFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.fpsWin = append(p.fpsWin, now)
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(p.fpsWin) && p.fpsWin[i].Before(cutoff) {
		i++
	}
	p.fpsWin = p.fpsWin[i:]
}

func prune5s(samples []latencySample, now time.Time) []latencySample {
	cutoff := now.Add(-5 * time.Second)
	i := 0
	for i < len(samples) && samples[i].at.Before(cutoff) {
		i++
	}
	return samples[i:]
}

// publish computes the rolling-window aggregates and atomically swaps in a
// fresh Snapshot built from state/sinks plus those aggregates.
func (p *statusPublisher) publish(state pipeline.SessionState, targetFPS int, videoDropped, audioDropped uint64, sinks []SinkStatus) {
	p.mu.Lock()
	p50, p95 := percentiles(p.latencies)
	var bitrateBytes int
	for _, s := range p.bitrateWin {
		bitrateBytes += s.bytes
	}
	fps := float64(len(p.fpsWin))
	p.mu.Unlock()

	p.current.Store(&Snapshot{
		State:        state,
		VideoDropped: videoDropped,
		AudioDropped: audioDropped,
		CurrentFPS:   fps,
		TargetFPS:    targetFPS,
		LatencyP50Ms: p50,
		LatencyP95Ms: p95,
		BitrateKbps:  float64(bitrateBytes) * 8 / 1000,
		Sinks:        sinks,
	})
}

func percentiles(samples []latencySample) (p50, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.ms
	}
	// Small windows (≤ a few hundred samples over 5s at typical frame rates):
	// an insertion sort-by-copy is simpler than pulling in a sort import for
	// a handful of nearly-sorted arrival-order values.
	for i := 1; i < len(vals); i++ {
		v := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > v {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = v
	}
	p50 = vals[len(vals)*50/100]
	p95 = vals[min(len(vals)-1, len(vals)*95/100)]
	return p50, p95
}
