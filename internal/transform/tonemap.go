package transform

import (
	"math"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Tonemap implements the HDR→SDR stage of spec.md §4.2. It engages when the
// input's transfer function is PQ/HLG (mode On or Auto with an explicit HDR
// transfer) or, in Auto mode, when the frame declares a wide color space
// beyond BT.709. Disabled or non-HDR-triggering input passes through
// unchanged.
type Tonemap struct {
	Mode      pipeline.HDRMode
	Algorithm pipeline.TonemapAlgorithm
	PeakNits  float64 // fallback peak luminance when not carried in frame metadata
}

// NewTonemap constructs a Tonemap stage from the session's capture config.
func NewTonemap(mode pipeline.HDRMode, algo pipeline.TonemapAlgorithm, peakNits float64) *Tonemap {
	return &Tonemap{Mode: mode, Algorithm: algo, PeakNits: peakNits}
}

func (t *Tonemap) Name() string { return "tonemap" }

func (t *Tonemap) shouldEngage(f *pipeline.Frame) bool {
	if t.Mode == pipeline.HDROff {
		return false
	}
	if f.Transfer.IsHDR() {
		return true
	}
	if t.Mode == pipeline.HDRAuto && (f.Space == pipeline.ColorSpaceBT2020 || f.Space == pipeline.ColorSpaceDCIP3) {
		return true
	}
	return false
}

// Process tonemaps f in place (luma plane only, chroma left untouched — the
// curves operate on luminance, and I420 chroma under a BT.709 target needs no
// adjustment beyond what the encoder's color_space tag communicates downstream).
func (t *Tonemap) Process(f *pipeline.Frame) ([]*pipeline.Frame, error) {
	if !t.shouldEngage(f) || f.Owner == pipeline.OwnershipGPUHandle {
		// GPU-handle frames take the GPU tonemap pathway (spec.md §9); this
		// purego/CPU stage only ever sees mapped frames. Non-HDR input is a
		// pure pass-through.
		return []*pipeline.Frame{f}, nil
	}

	peak := f.PeakNits
	if peak <= 0 {
		peak = t.PeakNits
	}
	if peak <= 0 {
		peak = 1000
	}

	curve := t.curve()
	y := f.Data[0]
	for i, lum := range y {
		linear := float64(lum) / 255.0
		mapped := curve(linear, peak)
		y[i] = byte(clamp01(mapped) * 255.0)
	}

	f.Transfer = pipeline.ColorTransferSDR
	f.Space = pipeline.ColorSpaceBT709
	return []*pipeline.Frame{f}, nil
}

func (t *Tonemap) curve() func(l, peak float64) float64 {
	switch t.Algorithm {
	case pipeline.TonemapACES:
		return acesFilmic
	case pipeline.TonemapHable:
		return hableFilmic
	default:
		return reinhard
	}
}

// reinhard implements spec.md §4.2: L' = L / (1 + L/Lpeak).
func reinhard(l, peak float64) float64 {
	lp := l * peak / 100.0 // normalize input 0..1 to a nits scale relative to 100-nit SDR reference
	return lp / (1 + lp/peak)
}

// acesFilmic is Narkowicz's polynomial fit of the ACES filmic curve.
func acesFilmic(l, peak float64) float64 {
	x := l * peak / 100.0 / peak
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	return clamp01((x * (a*x + b)) / (x*(c*x+d) + e))
}

// hableFilmic is the Uncharted-2 filmic curve with a fixed white point.
func hableFilmic(l, peak float64) float64 {
	x := l * peak / 100.0
	const whitePoint = 11.2
	curve := func(x float64) float64 {
		const A, B, C, D, E, F = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
		return ((x*(A*x+C*B) + D*E) / (x*(A*x+B) + D*F)) - E/F
	}
	return curve(x) / curve(whitePoint)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
