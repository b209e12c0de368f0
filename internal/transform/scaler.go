package transform

import "github.com/nitrogen-cast/nitrogen/internal/pipeline"

// Scaler resizes I420 frames to a fixed target resolution, adapted from the
// teacher's VideoScaler (scaler.go): bypass when dimensions already match,
// otherwise a bilinear resample; letterbox/pillarbox with black padding when
// the target aspect ratio differs from the source's, per spec.md §4.2
// ("aspect ratio is preserved... only when the configured target aspect
// differs from the source's").
type Scaler struct {
	dstWidth, dstHeight int
}

// NewScaler constructs a Scaler targeting dstWidth x dstHeight.
func NewScaler(dstWidth, dstHeight int) *Scaler {
	return &Scaler{dstWidth: dstWidth, dstHeight: dstHeight}
}

func (s *Scaler) Name() string { return "scaler" }

// Process bypasses (zero copies) when f already matches the target
// dimensions (spec.md §8 boundary behavior), otherwise resamples into a
// freshly allocated frame.
func (s *Scaler) Process(f *pipeline.Frame) ([]*pipeline.Frame, error) {
	if s.dstWidth <= 0 || s.dstHeight <= 0 {
		return []*pipeline.Frame{f}, nil
	}
	if f.Width == s.dstWidth && f.Height == s.dstHeight {
		return []*pipeline.Frame{f}, nil
	}
	if f.Owner == pipeline.OwnershipGPUHandle {
		// GPU pathway scales in-place on the compositor side in a real build;
		// this CPU stage is the fallback and only operates on mapped frames.
		return []*pipeline.Frame{f}, nil
	}

	srcAspect := float64(f.Width) / float64(f.Height)
	dstAspect := float64(s.dstWidth) / float64(s.dstHeight)

	var contentW, contentH, offX, offY int
	if srcAspect > dstAspect {
		// Source is wider: pillarbox top/bottom.
		contentW = s.dstWidth
		contentH = int(float64(s.dstWidth) / srcAspect)
		offY = (s.dstHeight - contentH) / 2
	} else if srcAspect < dstAspect {
		// Source is taller: letterbox left/right.
		contentH = s.dstHeight
		contentW = int(float64(s.dstHeight) * srcAspect)
		offX = (s.dstWidth - contentW) / 2
	} else {
		contentW, contentH = s.dstWidth, s.dstHeight
	}

	out := newI420Frame(f, s.dstWidth, s.dstHeight)
	fillBlack(out)
	scaleInto(f, out, contentW, contentH, offX, offY)
	return []*pipeline.Frame{out}, nil
}

func newI420Frame(src *pipeline.Frame, w, h int) *pipeline.Frame {
	uvW, uvH := (w+1)/2, (h+1)/2
	return &pipeline.Frame{
		Seq:       src.Seq,
		Data:      [][]byte{make([]byte, w*h), make([]byte, uvW*uvH), make([]byte, uvW*uvH)},
		Stride:    []int{w, uvW, uvW},
		Width:     w,
		Height:    h,
		Format:    pipeline.PixelFormatI420,
		Transfer:  src.Transfer,
		Space:     src.Space,
		PeakNits:  src.PeakNits,
		Owner:     pipeline.OwnershipMapped,
		Timestamp: src.Timestamp,
		Duration:  src.Duration,
	}
}

func fillBlack(f *pipeline.Frame) {
	for i := range f.Data[0] {
		f.Data[0][i] = 16 // black in limited-range luma
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
}

// scaleInto performs a bilinear resample of src's three I420 planes into the
// contentW x contentH region of dst starting at (offX, offY).
func scaleInto(src, dst *pipeline.Frame, contentW, contentH, offX, offY int) {
	scalePlane(src.Data[0], src.Stride[0], src.Width, src.Height,
		dst.Data[0], dst.Stride[0], contentW, contentH, offX, offY)

	sUVW, sUVH := (src.Width+1)/2, (src.Height+1)/2
	dUVW, dUVH := (contentW+1)/2, (contentH+1)/2
	scalePlane(src.Data[1], src.Stride[1], sUVW, sUVH,
		dst.Data[1], dst.Stride[1], dUVW, dUVH, offX/2, offY/2)
	scalePlane(src.Data[2], src.Stride[2], sUVW, sUVH,
		dst.Data[2], dst.Stride[2], dUVW, dUVH, offX/2, offY/2)
}

func scalePlane(src []byte, srcStride, srcW, srcH int, dst []byte, dstStride, contentW, contentH, offX, offY int) {
	if contentW <= 0 || contentH <= 0 || srcW <= 0 || srcH <= 0 {
		return
	}
	xRatio := float64(srcW) / float64(contentW)
	yRatio := float64(srcH) / float64(contentH)

	for row := 0; row < contentH; row++ {
		srcYf := float64(row) * yRatio
		y0 := int(srcYf)
		y1 := minInt(y0+1, srcH-1)
		fy := srcYf - float64(y0)

		for col := 0; col < contentW; col++ {
			srcXf := float64(col) * xRatio
			x0 := int(srcXf)
			x1 := minInt(x0+1, srcW-1)
			fx := srcXf - float64(x0)

			p00 := float64(src[y0*srcStride+x0])
			p01 := float64(src[y0*srcStride+x1])
			p10 := float64(src[y1*srcStride+x0])
			p11 := float64(src[y1*srcStride+x1])

			top := p00*(1-fx) + p01*fx
			bot := p10*(1-fx) + p11*fx
			val := top*(1-fy) + bot*fy

			dstRow := offY + row
			dstCol := offX + col
			dst[dstRow*dstStride+dstCol] = byte(val)
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
