package video

import (
	"testing"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

func validParams(codec pipeline.VideoCodec) Params {
	return Params{Codec: codec, Width: 1920, Height: 1080, FPS: 60, BitrateKbps: 8000, Quality: pipeline.QualityMedium}
}

func TestSupportedProfiles(t *testing.T) {
	cases := map[pipeline.VideoCodec][]string{
		pipeline.CodecH264: {"baseline", "main", "high"},
		pipeline.CodecHEVC: {"main", "main10"},
		pipeline.CodecAV1:  {"main"},
	}
	for codec, want := range cases {
		got := SupportedProfiles(codec)
		if len(got) != len(want) {
			t.Errorf("%v: got %v, want %v", codec, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%v: got %v, want %v", codec, got, want)
				break
			}
		}
	}
}

func TestValidateRejectsZeroDimensions(t *testing.T) {
	p := validParams(pipeline.CodecH264)
	p.Width = 0
	if _, err := configureFake(p); nitroerr.KindOf(err) != nitroerr.KindInvalidParameters {
		t.Fatalf("Kind = %v, want KindInvalidParameters", nitroerr.KindOf(err))
	}
}

func TestValidateRejectsAV1OnlyOptionsOnOtherCodecs(t *testing.T) {
	p := validParams(pipeline.CodecH264)
	p.Advanced.SpatialAQ = true
	if _, err := configureFake(p); nitroerr.KindOf(err) != nitroerr.KindUnsupportedProfile {
		t.Fatalf("Kind = %v, want KindUnsupportedProfile", nitroerr.KindOf(err))
	}
}

func TestValidateRejectsTenBitH264(t *testing.T) {
	p := validParams(pipeline.CodecH264)
	p.Advanced.TenBit = true
	if _, err := configureFake(p); nitroerr.KindOf(err) != nitroerr.KindUnsupportedProfile {
		t.Fatalf("Kind = %v, want KindUnsupportedProfile", nitroerr.KindOf(err))
	}
}

func TestValidateAcceptsAV1AdvancedOptions(t *testing.T) {
	p := validParams(pipeline.CodecAV1)
	p.Advanced.SpatialAQ = true
	p.Advanced.BRefFrames = true
	p.Advanced.TenBit = true
	if _, err := configureFake(p); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func TestValidateRejectsUnknownChromaSubsampling(t *testing.T) {
	p := validParams(pipeline.CodecAV1)
	p.Advanced.ChromaSubsampling = "411"
	if _, err := configureFake(p); nitroerr.KindOf(err) != nitroerr.KindUnsupportedProfile {
		t.Fatalf("Kind = %v, want KindUnsupportedProfile", nitroerr.KindOf(err))
	}
}

func configureFake(p Params) (*FakeEncoder, error) {
	e := NewFakeEncoder(0, 0)
	if err := e.Configure(p); err != nil {
		return nil, err
	}
	return e, nil
}

func TestFakeEncoderForcesKeyframeOnFirstSubmitAfterConfigure(t *testing.T) {
	e, err := configureFake(validParams(pipeline.CodecH264))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := e.Submit(&pipeline.Frame{Seq: 0, Timestamp: 0}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pkts, err := e.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(pkts) != 1 || !pkts[0].Keyframe {
		t.Fatalf("first packet after Configure must be a keyframe, got %+v", pkts)
	}
}

func TestFakeEncoderRepeatsKeyframeOnInterval(t *testing.T) {
	p := validParams(pipeline.CodecH264)
	p.FPS = 2 // keyframeEvery = FPS*2 = 4
	e, err := configureFake(p)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for seq := uint64(0); seq < 8; seq++ {
		if err := e.Submit(&pipeline.Frame{Seq: seq, Timestamp: int64(seq)}); err != nil {
			t.Fatalf("Submit(%d): %v", seq, err)
		}
	}
	pkts, err := e.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(pkts) != 8 {
		t.Fatalf("len(pkts) = %d, want 8", len(pkts))
	}
	for i, pkt := range pkts {
		want := i == 0 || i == 4
		if pkt.Keyframe != want {
			t.Errorf("packet %d: Keyframe = %v, want %v", i, pkt.Keyframe, want)
		}
	}
}

func TestFakeEncoderStallsWhenPendingExceedsLimit(t *testing.T) {
	e, err := configureFake(validParams(pipeline.CodecH264))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	e.stallAt = 2

	if err := e.Submit(&pipeline.Frame{Seq: 0}); err != nil {
		t.Fatalf("Submit 0: %v", err)
	}
	if err := e.Submit(&pipeline.Frame{Seq: 1}); err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	err = e.Submit(&pipeline.Frame{Seq: 2})
	if nitroerr.KindOf(err) != nitroerr.KindStalled {
		t.Fatalf("Kind = %v, want KindStalled once pending >= stallAt", nitroerr.KindOf(err))
	}
}

func TestFakeEncoderRequestKeyframeForcesNextSubmit(t *testing.T) {
	e, err := configureFake(validParams(pipeline.CodecH264))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := e.Drain(); err != nil { // nothing queued yet; Seq 0 below is still the forced first keyframe
		t.Fatalf("Drain: %v", err)
	}
	if err := e.Submit(&pipeline.Frame{Seq: 0}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e.RequestKeyframe()
	if err := e.Submit(&pipeline.Frame{Seq: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pkts, _ := e.Drain()
	if len(pkts) != 2 || !pkts[1].Keyframe {
		t.Fatalf("expected the packet after RequestKeyframe to be a keyframe, got %+v", pkts)
	}
}
