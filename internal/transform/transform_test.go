package transform

import (
	"errors"
	"testing"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

type recordingStage struct {
	name string
	fn   func(*pipeline.Frame) ([]*pipeline.Frame, error)
}

func (s *recordingStage) Name() string { return s.name }
func (s *recordingStage) Process(f *pipeline.Frame) ([]*pipeline.Frame, error) {
	return s.fn(f)
}

func mappedLumaFrame(w, h int, val byte) *pipeline.Frame {
	uvW, uvH := (w+1)/2, (h+1)/2
	y := make([]byte, w*h)
	for i := range y {
		y[i] = val
	}
	return &pipeline.Frame{
		Data:   [][]byte{y, make([]byte, uvW*uvH), make([]byte, uvW*uvH)},
		Stride: []int{w, uvW, uvW},
		Width:  w,
		Height: h,
		Format: pipeline.PixelFormatI420,
		Owner:  pipeline.OwnershipMapped,
	}
}

func TestChainThreadsOutputThroughEachStage(t *testing.T) {
	tagA := &recordingStage{name: "a", fn: func(f *pipeline.Frame) ([]*pipeline.Frame, error) {
		f.Seq++
		return []*pipeline.Frame{f}, nil
	}}
	tagB := &recordingStage{name: "b", fn: func(f *pipeline.Frame) ([]*pipeline.Frame, error) {
		f.Seq *= 10
		return []*pipeline.Frame{f}, nil
	}}

	c := NewChain(tagA, tagB, nil)
	out, err := c.Process(&pipeline.Frame{Seq: 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 || out[0].Seq != 20 {
		t.Fatalf("out = %+v, want a single frame with Seq 20", out)
	}
}

func TestChainSkipsNilStages(t *testing.T) {
	c := NewChain(nil, nil, nil)
	f := &pipeline.Frame{Seq: 5}
	out, err := c.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 || out[0] != f {
		t.Fatalf("out = %+v, want the input frame unchanged", out)
	}
}

func TestChainPropagatesStageFanOut(t *testing.T) {
	splitter := &recordingStage{name: "split", fn: func(f *pipeline.Frame) ([]*pipeline.Frame, error) {
		a, b := *f, *f
		a.Seq, b.Seq = 1, 2
		return []*pipeline.Frame{&a, &b}, nil
	}}
	doubler := &recordingStage{name: "double", fn: func(f *pipeline.Frame) ([]*pipeline.Frame, error) {
		f.Seq *= 100
		return []*pipeline.Frame{f}, nil
	}}

	c := NewChain(splitter, doubler, nil)
	out, err := c.Process(&pipeline.Frame{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 2 || out[0].Seq != 100 || out[1].Seq != 200 {
		t.Fatalf("out = %+v, want [100, 200]", out)
	}
}

func TestChainStopsOnStageError(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordingStage{name: "fail", fn: func(f *pipeline.Frame) ([]*pipeline.Frame, error) {
		return nil, boom
	}}
	never := &recordingStage{name: "never", fn: func(f *pipeline.Frame) ([]*pipeline.Frame, error) {
		t.Fatal("downstream stage should not run after an earlier stage errors")
		return nil, nil
	}}

	c := NewChain(failing, never, nil)
	_, err := c.Process(&pipeline.Frame{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestScalerBypassesWhenDimensionsMatch(t *testing.T) {
	s := NewScaler(640, 480)
	f := mappedLumaFrame(640, 480, 100)
	out, err := s.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 || out[0] != f {
		t.Fatal("expected the exact same frame back when dimensions already match")
	}
}

func TestScalerBypassesGPUHandleFrames(t *testing.T) {
	s := NewScaler(1280, 720)
	f := &pipeline.Frame{Width: 640, Height: 480, Owner: pipeline.OwnershipGPUHandle}
	out, err := s.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 || out[0] != f {
		t.Fatal("expected gpu-handle frames to pass through unscaled")
	}
}

func TestScalerLetterboxesMismatchedAspect(t *testing.T) {
	s := NewScaler(1280, 720) // 16:9
	f := mappedLumaFrame(640, 640, 200) // 1:1, taller relative aspect -> letterbox left/right
	out, err := s.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	got := out[0]
	if got.Width != 1280 || got.Height != 720 {
		t.Fatalf("dims = %dx%d, want 1280x720", got.Width, got.Height)
	}
	// The padding columns at the far edges stay black (luma 16); content fills the center.
	if got.Data[0][0] != 16 {
		t.Errorf("corner pixel = %d, want 16 (black padding)", got.Data[0][0])
	}
	mid := got.Width/2 + (got.Height/2)*got.Stride[0]
	if got.Data[0][mid] == 16 {
		t.Error("center pixel is still black padding, want resampled content")
	}
}

func TestTonemapPassesThroughSDRInput(t *testing.T) {
	tm := NewTonemap(pipeline.HDRAuto, pipeline.TonemapReinhard, 1000)
	f := mappedLumaFrame(4, 4, 180)
	f.Transfer = pipeline.ColorTransferSDR
	f.Space = pipeline.ColorSpaceBT709
	before := append([]byte(nil), f.Data[0]...)

	out, err := tm.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range out[0].Data[0] {
		if v != before[i] {
			t.Fatalf("SDR input was modified at %d: got %d, want %d", i, v, before[i])
		}
	}
}

func TestTonemapEngagesOnHDRTransfer(t *testing.T) {
	tm := NewTonemap(pipeline.HDRAuto, pipeline.TonemapReinhard, 1000)
	f := mappedLumaFrame(4, 4, 255)
	f.Transfer = pipeline.ColorTransferPQ
	f.PeakNits = 1000

	out, err := tm.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out[0].Transfer != pipeline.ColorTransferSDR {
		t.Errorf("Transfer = %v, want ColorTransferSDR after tonemap", out[0].Transfer)
	}
	if out[0].Space != pipeline.ColorSpaceBT709 {
		t.Errorf("Space = %v, want ColorSpaceBT709 after tonemap", out[0].Space)
	}
}

func TestTonemapOffModeNeverEngages(t *testing.T) {
	tm := NewTonemap(pipeline.HDROff, pipeline.TonemapReinhard, 1000)
	f := mappedLumaFrame(4, 4, 255)
	f.Transfer = pipeline.ColorTransferPQ
	before := append([]byte(nil), f.Data[0]...)

	out, err := tm.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range out[0].Data[0] {
		if v != before[i] {
			t.Fatal("HDROff should never tonemap, even on PQ input")
		}
	}
}

func TestInterpolatorOffPassesThroughOneForOne(t *testing.T) {
	ip := NewInterpolator(pipeline.InterpOff)
	for seq := uint64(0); seq < 3; seq++ {
		out, err := ip.Process(&pipeline.Frame{Seq: seq})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if len(out) != 1 {
			t.Fatalf("seq %d: len(out) = %d, want 1", seq, len(out))
		}
	}
}

func TestInterpolator2xEmitsOneSynthesizedFrame(t *testing.T) {
	ip := NewInterpolator(pipeline.Interp2x)

	first := mappedLumaFrame(8, 8, 0)
	first.Timestamp = 0
	out, err := ip.Process(first)
	if err != nil {
		t.Fatalf("Process(first): %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("first frame: len(out) = %d, want 1 (no prior frame to pair with)", len(out))
	}

	second := mappedLumaFrame(8, 8, 100)
	second.Timestamp = 1_000_000
	out, err = ip.Process(second)
	if err != nil {
		t.Fatalf("Process(second): %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (one synthesized + the capture frame)", len(out))
	}
	synth := out[0]
	if synth.Timestamp <= first.Timestamp || synth.Timestamp >= second.Timestamp {
		t.Errorf("synthesized Timestamp = %d, want strictly between %d and %d", synth.Timestamp, first.Timestamp, second.Timestamp)
	}
	if out[1] != second {
		t.Error("the final emitted frame should be the capture frame itself")
	}
}

func TestInterpolatorAdaptiveTreatsLargeJumpAsCut(t *testing.T) {
	ip := NewInterpolator(pipeline.InterpAdaptive)

	black := mappedLumaFrame(32, 32, 0)
	black.Timestamp = 0
	if _, err := ip.Process(black); err != nil {
		t.Fatalf("Process(black): %v", err)
	}

	white := mappedLumaFrame(32, 32, 255)
	white.Timestamp = 1_000_000
	out, err := ip.Process(white)
	if err != nil {
		t.Fatalf("Process(white): %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (a hard cut synthesizes nothing)", len(out))
	}
	if !ip.SceneChange {
		t.Error("SceneChange should be set after a hard cut")
	}
}

func TestInterpolatorGPUHandleDegradesToDuplication(t *testing.T) {
	ip := NewInterpolator(pipeline.Interp2x)

	first := &pipeline.Frame{Owner: pipeline.OwnershipGPUHandle, Timestamp: 0}
	if _, err := ip.Process(first); err != nil {
		t.Fatalf("Process(first): %v", err)
	}

	second := &pipeline.Frame{Owner: pipeline.OwnershipGPUHandle, Timestamp: 1_000_000}
	out, err := ip.Process(second)
	if err != nil {
		t.Fatalf("Process(second): %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if !out[0].Degraded {
		t.Error("expected the synthesized gpu-handle frame to be flagged Degraded")
	}
}
