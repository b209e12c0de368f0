// Package metrics exposes the status snapshot and drop counters as
// Prometheus gauges/counters, grounded on the teacher pack's
// smazurov-videonode/internal/obs/exporters/prometheus.go (registry +
// promhttp.Handler pattern), simplified to static metric declarations since
// this repo's metric set is fixed and known up front rather than a
// dynamically-named observability point stream.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nitrogen-cast/nitrogen/internal/controller"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Collector owns one Prometheus metric per status-snapshot field and per
// drop counter spec.md §5/§7 names, registered against its own registry so
// mounting it never collides with the default global registry another
// package might also use.
type Collector struct {
	registry *prometheus.Registry

	videoDropped prometheus.Gauge
	audioDropped prometheus.Gauge
	currentFPS   prometheus.Gauge
	targetFPS    prometheus.Gauge
	latencyP50   prometheus.Gauge
	latencyP95   prometheus.Gauge
	bitrateKbps  prometheus.Gauge
	sinkDropped  *prometheus.GaugeVec
	sinkFailures *prometheus.CounterVec
}

// NewCollector constructs and registers every metric.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		videoDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_video_frames_dropped_total",
			Help: "Cumulative video frames dropped since session start.",
		}),
		audioDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_audio_frames_dropped_total",
			Help: "Cumulative audio frames dropped since session start.",
		}),
		currentFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_video_fps_current",
			Help: "Delivered video frames per second over the trailing 1s window.",
		}),
		targetFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_video_fps_target",
			Help: "Configured target frames per second.",
		}),
		latencyP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_encode_latency_p50_ms",
			Help: "Encode Submit-call latency, 50th percentile over the trailing 5s window.",
		}),
		latencyP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_encode_latency_p95_ms",
			Help: "Encode Submit-call latency, 95th percentile over the trailing 5s window.",
		}),
		bitrateKbps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitrogen_bitrate_kbps",
			Help: "Encoded bitrate over the trailing 1s window.",
		}),
		sinkDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nitrogen_sink_packets_dropped_total",
			Help: "Cumulative packets dropped per sink.",
		}, []string{"sink"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitrogen_sink_failures_total",
			Help: "Count of sink failure transitions observed, per sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		c.videoDropped, c.audioDropped, c.currentFPS, c.targetFPS,
		c.latencyP50, c.latencyP95, c.bitrateKbps, c.sinkDropped, c.sinkFailures,
	)
	return c
}

// RecordSnapshot updates every gauge from one controller.Snapshot. Callers
// (internal/cli's status-polling loop) pull a fresh Snapshot on an interval
// and hand it here; Collector never reaches back into the controller
// itself, keeping the same one-way dependency the rest of the pipeline uses.
func (c *Collector) RecordSnapshot(s *controller.Snapshot) {
	if s == nil {
		return
	}
	c.videoDropped.Set(float64(s.VideoDropped))
	c.audioDropped.Set(float64(s.AudioDropped))
	c.currentFPS.Set(s.CurrentFPS)
	c.targetFPS.Set(float64(s.TargetFPS))
	c.latencyP50.Set(s.LatencyP50Ms)
	c.latencyP95.Set(s.LatencyP95Ms)
	c.bitrateKbps.Set(s.BitrateKbps)

	for _, sink := range s.Sinks {
		c.sinkDropped.WithLabelValues(sinkLabel(sink.Kind)).Set(float64(sink.Dropped))
	}
}

// ObserveSinkFailure increments the failure counter for kind. Wired as a
// controller.Bus subscriber (func(controller.SinkFailedEvent)) by whichever
// package constructs both the bus and the collector.
func (c *Collector) ObserveSinkFailure(e controller.SinkFailedEvent) {
	c.sinkFailures.WithLabelValues(sinkLabel(e.Sink)).Inc()
}

func sinkLabel(kind pipeline.SinkKind) string {
	switch kind {
	case pipeline.SinkCamera:
		return "camera"
	case pipeline.SinkRecorder:
		return "recorder"
	case pipeline.SinkStream:
		return "stream"
	case pipeline.SinkWebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}

// Handler returns the http.Handler serving this Collector's metrics in
// Prometheus text exposition format, mountable alongside the webrtc sink's
// /status endpoint or the CLI's own diagnostic server.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
