// Package testsource implements a synthetic capture.PortalSession used by
// end-to-end tests in lieu of a real xdg-desktop-portal session. Its pattern
// generation is grounded on the teacher's source_test_pattern.go synthetic
// VideoSource, generalized to satisfy the capture.PortalSession contract and
// to emit pipeline.Frame/pipeline.AudioFrame instead of the teacher's
// VideoFrame/AudioSamples types.
package testsource

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Pattern selects the generated image content.
type Pattern int

const (
	PatternColorBars Pattern = iota
	PatternGradient
	PatternMovingBox
	PatternSceneCut // alternates solid colors every CutIntervalFrames, for S6
)

// Config configures the synthetic source.
type Config struct {
	Width, Height int
	FPS           int
	Pattern       Pattern
	CutIntervalFrames int // PatternSceneCut: frames between hard cuts, default 90

	// EmitAudio synthesizes a 48kHz float32 sine-wave desktop audio stream
	// alongside the video, for alignment tests (spec.md scenario S5).
	EmitAudio bool

	// EmitMic synthesizes a second, distinctly-pitched float32 sine-wave
	// stream tagged pipeline.AudioStreamMic, for AudioSourceBoth tests.
	EmitMic bool

	// Transfer/Space let tests exercise the HDR tonemap stage.
	Transfer pipeline.ColorTransfer
	Space    pipeline.ColorSpace
	PeakNits float64

	// DenySource, when set, makes Open fail with KindPortalDenied, emulating
	// the user cancelling the portal picker (spec.md scenario S4).
	DenySource bool
}

// DefaultConfig returns 1280x720@30 color bars with no audio.
func DefaultConfig() Config {
	return Config{Width: 1280, Height: 720, FPS: 30, Pattern: PatternColorBars, CutIntervalFrames: 90}
}

// Source is a synthetic capture.PortalSession.
type Source struct {
	cfg Config

	frameIdx    atomic.Int64
	startClock  int64
	opened      bool
	audioPhase  float64
	micPhase    float64
	lastAudioAt int64
}

// New constructs a synthetic source with cfg.
func New(cfg Config) *Source {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.CutIntervalFrames <= 0 {
		cfg.CutIntervalFrames = 90
	}
	return &Source{cfg: cfg}
}

// Open implements capture.PortalSession.
func (s *Source) Open(ctx context.Context, source pipeline.SourceDescriptor) error {
	if s.cfg.DenySource {
		return nitroerr.New(nitroerr.KindPortalDenied, "capture.testsource")
	}
	s.opened = true
	s.startClock = time.Now().UnixNano()
	return nil
}

// Close implements capture.PortalSession. Idempotent.
func (s *Source) Close() error {
	s.opened = false
	return nil
}

// Poll generates exactly one video frame (and, if EmitAudio, zero or more
// audio buffers) per call; callers typically call Poll on a ticker paced to
// cfg.FPS.
func (s *Source) Poll() ([]*pipeline.Frame, []*pipeline.AudioFrame, error) {
	if !s.opened {
		return nil, nil, nitroerr.New(nitroerr.KindSourceLost, "capture.testsource")
	}

	idx := s.frameIdx.Add(1) - 1
	interval := time.Second / time.Duration(s.cfg.FPS)
	ts := s.startClock + int64(idx)*int64(interval)

	frame := s.renderFrame(idx, ts)

	var audio []*pipeline.AudioFrame
	if s.cfg.EmitAudio {
		audio = append(audio, s.renderAudioStream(ts, &s.audioPhase, 440.0, pipeline.AudioStreamDesktop))
	}
	if s.cfg.EmitMic {
		audio = append(audio, s.renderAudioStream(ts, &s.micPhase, 880.0, pipeline.AudioStreamMic))
	}

	return []*pipeline.Frame{frame}, audio, nil
}

func (s *Source) renderFrame(idx int64, ts int64) *pipeline.Frame {
	interval := time.Second / time.Duration(s.cfg.FPS)
	w, h := s.cfg.Width, s.cfg.Height
	ySize := w * h
	uvW, uvH := (w+1)/2, (h+1)/2
	uvSize := uvW * uvH

	y := make([]byte, ySize)
	u := make([]byte, uvSize)
	v := make([]byte, uvSize)

	switch s.cfg.Pattern {
	case PatternColorBars:
		renderColorBars(y, u, v, w, h)
	case PatternGradient:
		renderGradient(y, u, v, w, h, int(idx))
	case PatternMovingBox:
		renderMovingBox(y, u, v, w, h, int(idx))
	case PatternSceneCut:
		cutNum := int(idx) / s.cfg.CutIntervalFrames
		fillSolid(y, u, v, w, h, cutNum)
	}

	return &pipeline.Frame{
		Seq:       uint64(idx),
		Data:      [][]byte{y, u, v},
		Stride:    []int{w, uvW, uvW},
		Width:     w,
		Height:    h,
		Format:    pipeline.PixelFormatI420,
		Transfer:  s.cfg.Transfer,
		Space:     s.cfg.Space,
		PeakNits:  s.cfg.PeakNits,
		Owner:     pipeline.OwnershipMapped,
		Timestamp: ts,
		Duration:  int64(interval),
	}
}

const audioSampleRate = 48000
const audioChunkSamples = 960 // 20ms @ 48kHz, matches Opus framing

// renderAudioStream synthesizes one chunk of a sine-wave PCM stream at freq,
// tagged kind, advancing *phase independently so the desktop and mic streams
// don't share (and corrupt) each other's oscillator state.
func (s *Source) renderAudioStream(ts int64, phase *float64, freq float64, kind pipeline.AudioStreamKind) *pipeline.AudioFrame {
	const channels = 2
	data := make([]byte, audioChunkSamples*channels*4)
	for i := 0; i < audioChunkSamples; i++ {
		sample := float32(0.2 * math.Sin(2*math.Pi*freq**phase))
		*phase += 1.0 / audioSampleRate
		bits := math.Float32bits(sample)
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			data[off] = byte(bits)
			data[off+1] = byte(bits >> 8)
			data[off+2] = byte(bits >> 16)
			data[off+3] = byte(bits >> 24)
		}
	}
	return &pipeline.AudioFrame{
		Data:        data,
		SampleCount: audioChunkSamples,
		Channels:    channels,
		Format:      pipeline.AudioSampleFormatF32,
		SampleRate:  audioSampleRate,
		Timestamp:   ts,
		Source:      kind,
	}
}

func renderColorBars(y, u, v []byte, w, h int) {
	// SMPTE-ish 7-bar pattern.
	bars := [][3]byte{
		{180, 128, 128}, // white-ish
		{162, 44, 142},  // yellow
		{131, 156, 44},  // cyan
		{112, 72, 58},   // green
		{84, 184, 198},  // magenta
		{65, 100, 212},  // red
		{35, 212, 114},  // blue
	}
	barW := w / len(bars)
	if barW == 0 {
		barW = 1
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			bar := col / barW
			if bar >= len(bars) {
				bar = len(bars) - 1
			}
			y[row*w+col] = bars[bar][0]
		}
	}
	uvW, uvH := (w+1)/2, (h+1)/2
	for row := 0; row < uvH; row++ {
		for col := 0; col < uvW; col++ {
			bar := (col * 2) / barW
			if bar >= len(bars) {
				bar = len(bars) - 1
			}
			u[row*uvW+col] = bars[bar][1]
			v[row*uvW+col] = bars[bar][2]
		}
	}
}

func renderGradient(y, u, v []byte, w, h, frameIdx int) {
	shift := byte(frameIdx % 256)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			y[row*w+col] = byte((col*255/maxInt(w, 1) + int(shift)) % 256)
		}
	}
	uvW, uvH := (w+1)/2, (h+1)/2
	for i := range u[:uvW*uvH] {
		u[i] = 128
		v[i] = 128
	}
}

func renderMovingBox(y, u, v []byte, w, h, frameIdx int) {
	for i := range y {
		y[i] = 16
	}
	uvW, uvH := (w+1)/2, (h+1)/2
	for i := 0; i < uvW*uvH; i++ {
		u[i], v[i] = 128, 128
	}
	boxSize := minInt(w, h) / 8
	if boxSize < 1 {
		boxSize = 1
	}
	period := maxInt(w-boxSize, 1)
	x := (frameIdx * 4) % period
	ytop := h/2 - boxSize/2
	for row := ytop; row < ytop+boxSize && row < h && row >= 0; row++ {
		for col := x; col < x+boxSize && col < w; col++ {
			y[row*w+col] = 235
		}
	}
}

func fillSolid(y, u, v []byte, w, h, cutNum int) {
	shade := byte(40 + (cutNum%5)*40)
	for i := range y {
		y[i] = shade
	}
	uvW, uvH := (w+1)/2, (h+1)/2
	for i := 0; i < uvW*uvH; i++ {
		u[i], v[i] = 128, 128
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
