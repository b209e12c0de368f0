package transform

import (
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// SceneChangeThreshold is the default motion-metric threshold above which
// Adaptive mode treats a frame pair as a hard cut and emits no synthesized
// frames (spec.md §9 Open Questions: "exact constants are
// implementation-defined but must be documented and adjustable in testing").
// Expressed as mean absolute luma difference per downsampled pixel, 0-255 scale.
var SceneChangeThreshold = 28.0

// Adaptive motion bands: below LowMotionThreshold uses the highest
// multiplier; above SceneChangeThreshold is a cut (multiplier 1).
var (
	LowMotionThreshold    = 3.0
	MediumMotionThreshold = 12.0
)

// downsampleStride is the luma subsampling stride used for the motion metric,
// trading accuracy for speed on the hot path.
const downsampleStride = 8

// Interpolator implements spec.md §4.2's frame-rate up-conversion stage.
// Off is a pure pass-through. Fixed multipliers (2/3/4x) emit N-1 synthesized
// frames between each adjacent capture pair. Adaptive picks the multiplier
// per pair from a SAD-over-downsampled-luma motion metric.
type Interpolator struct {
	Mode pipeline.InterpMode

	prev *pipeline.Frame

	// SceneChange is set true on the frame immediately following a detected
	// cut, signalling the video encoder to force a keyframe (spec.md §4.2,
	// §4.3's "keyframe... forced... on interpolator scene change hints").
	SceneChange bool
}

// NewInterpolator constructs an Interpolator in the given mode.
func NewInterpolator(mode pipeline.InterpMode) *Interpolator {
	return &Interpolator{Mode: mode}
}

func (ip *Interpolator) Name() string { return "interpolator" }

// Process buffers the previous frame and, once a pair is available, emits
// the synthesized in-between frames followed by the new capture frame.
// Off (or multiplier 1) is indistinguishable from pass-through at the output
// (spec.md §8 boundary behavior).
func (ip *Interpolator) Process(f *pipeline.Frame) ([]*pipeline.Frame, error) {
	ip.SceneChange = false

	if ip.Mode == pipeline.InterpOff {
		return []*pipeline.Frame{f}, nil
	}

	prev := ip.prev
	ip.prev = f
	if prev == nil {
		return []*pipeline.Frame{f}, nil
	}

	mult := ip.Mode.Multiplier()
	if ip.Mode == pipeline.InterpAdaptive {
		metric := motionSAD(prev, f)
		mult = adaptiveMultiplier(metric)
		if mult == 1 {
			ip.SceneChange = metric >= SceneChangeThreshold
		}
	}

	if mult <= 1 {
		return []*pipeline.Frame{f}, nil
	}

	out := make([]*pipeline.Frame, 0, mult)
	for k := 1; k < mult; k++ {
		weight := float64(k) / float64(mult)
		out = append(out, synthesize(prev, f, weight, k))
	}
	out = append(out, f)
	return out, nil
}

func adaptiveMultiplier(metric float64) int {
	switch {
	case metric >= SceneChangeThreshold:
		return 1
	case metric < LowMotionThreshold:
		return 4
	case metric < MediumMotionThreshold:
		return 2
	default:
		return 1
	}
}

// motionSAD computes the mean absolute difference between a and b's luma
// planes, sampled every downsampleStride pixels in each dimension.
func motionSAD(a, b *pipeline.Frame) float64 {
	if a.Width != b.Width || a.Height != b.Height || len(a.Data) == 0 || len(b.Data) == 0 {
		return SceneChangeThreshold // dimension mismatch: treat as a cut
	}
	var sum, count int64
	aY, bY := a.Data[0], b.Data[0]
	strideA, strideB := a.Stride[0], b.Stride[0]
	for row := 0; row < a.Height; row += downsampleStride {
		for col := 0; col < a.Width; col += downsampleStride {
			ai, bi := row*strideA+col, row*strideB+col
			if ai >= len(aY) || bi >= len(bY) {
				continue
			}
			diff := int(aY[ai]) - int(bY[bi])
			if diff < 0 {
				diff = -diff
			}
			sum += int64(diff)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// synthesize produces the k-th in-between frame by linearly blending prev and
// next's pixel planes, weighted by the sub-interval position; presentation
// timestamps linearly subdivide the capture interval (spec.md §4.2). For
// gpu-handle frames with no CPU mapping, synthesis degrades to duplicating
// the earlier frame (spec.md §4.2 "degrades to duplication") and the frame is
// flagged Degraded for metrics.
func synthesize(prev, next *pipeline.Frame, weight float64, k int) *pipeline.Frame {
	span := next.Timestamp - prev.Timestamp
	ts := prev.Timestamp + int64(float64(span)*weight)

	if prev.Owner == pipeline.OwnershipGPUHandle || next.Owner == pipeline.OwnershipGPUHandle {
		dup := *prev
		dup.Timestamp = ts
		dup.Degraded = true
		dup.Seq = next.Seq // caller renumbers synthesized sequencing downstream if needed
		return &dup
	}

	out := &pipeline.Frame{
		Seq:       next.Seq,
		Width:     next.Width,
		Height:    next.Height,
		Format:    next.Format,
		Transfer:  next.Transfer,
		Space:     next.Space,
		PeakNits:  next.PeakNits,
		Owner:     pipeline.OwnershipMapped,
		Timestamp: ts,
		Duration:  next.Duration,
		Stride:    append([]int(nil), next.Stride...),
	}
	out.Data = make([][]byte, len(next.Data))
	for i := range next.Data {
		if i >= len(prev.Data) || len(prev.Data[i]) != len(next.Data[i]) {
			out.Data[i] = append([]byte(nil), next.Data[i]...)
			continue
		}
		plane := make([]byte, len(next.Data[i]))
		for j := range plane {
			blended := float64(prev.Data[i][j])*(1-weight) + float64(next.Data[i][j])*weight
			plane[j] = byte(blended)
		}
		out.Data[i] = plane
	}
	return out
}
