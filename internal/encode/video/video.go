// Package video wraps the GPU-resident hardware encode session described in
// spec.md §4.3. The vendor SDK itself is an opaque external collaborator
// (spec.md §1); this package defines the Encoder contract and a purego-loaded
// backend, adapted from the teacher's h264_purego.go/av1_purego.go
// dlopen-and-RegisterLibFunc pattern.
package video

import (
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// AdvancedOptions carries the AV1-specific knobs spec.md §4.3 passes through
// to the encoder; unsupported combinations must surface as
// nitroerr.KindUnsupportedProfile at Configure time, never at Submit.
type AdvancedOptions struct {
	Tuning            string // e.g. "psnr", "ssim", "vq"
	LookaheadDepth    int
	SpatialAQ         bool
	TemporalAQ        bool
	ChromaSubsampling string // "420", "422", "444"
	BRefFrames        bool   // av1-b-ref
	TenBit            bool
}

// Params is the full Configure() argument set.
type Params struct {
	Codec         pipeline.VideoCodec
	Width, Height int
	FPS           int
	BitrateKbps   int
	Quality       pipeline.QualityPreset
	LowLatency    bool
	Advanced      AdvancedOptions
}

// Encoder is the hardware encode session contract of spec.md §4.3.
type Encoder interface {
	// Configure brings up (or reconfigures) the encode session. Fails with
	// HardwareUnavailable, UnsupportedCodec, UnsupportedProfile, or
	// InvalidParameters.
	Configure(p Params) error

	// Submit hands a raw frame to the encoder. Non-blocking; on Stalled the
	// caller must drop the frame and increment its own drop counter.
	Submit(f *pipeline.Frame) error

	// Drain returns coded packets produced since the last call, in encoder
	// output order (== presentation order for the codecs configured here
	// absent av1-b-ref, in which case PTS is still carried explicitly).
	// May be called from a dedicated consumer thread.
	Drain() ([]*pipeline.Packet, error)

	// Flush returns any remaining buffered packets on shutdown.
	Flush() ([]*pipeline.Packet, error)

	// RequestKeyframe forces the next submitted frame to be coded as a
	// keyframe (used for the periodic interval and interpolator scene-change
	// hints of spec.md §4.3).
	RequestKeyframe()

	// Close releases the encode session. Idempotent.
	Close() error
}

// SupportedProfiles enumerates the minimum feature set spec.md §4.3
// mandates per codec: H.264 baseline+main+high, HEVC main/main10, AV1 main.
func SupportedProfiles(codec pipeline.VideoCodec) []string {
	switch codec {
	case pipeline.CodecH264:
		return []string{"baseline", "main", "high"}
	case pipeline.CodecHEVC:
		return []string{"main", "main10"}
	case pipeline.CodecAV1:
		return []string{"main"}
	default:
		return nil
	}
}

// validate applies spec.md §4.3's configure-time checks so unsupported
// combinations never reach Submit.
func validate(p Params) error {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 || p.BitrateKbps <= 0 {
		return nitroerr.New(nitroerr.KindInvalidParameters, "encode.video")
	}
	if p.Codec != pipeline.CodecAV1 {
		if p.Advanced.BRefFrames || p.Advanced.SpatialAQ || p.Advanced.TemporalAQ || p.Advanced.LookaheadDepth > 0 {
			return nitroerr.New(nitroerr.KindUnsupportedProfile, "encode.video")
		}
	}
	if p.Advanced.TenBit && p.Codec == pipeline.CodecH264 {
		// H.264 profiles in SupportedProfiles don't include a 10-bit variant.
		return nitroerr.New(nitroerr.KindUnsupportedProfile, "encode.video")
	}
	switch p.Advanced.ChromaSubsampling {
	case "", "420", "422", "444":
	default:
		return nitroerr.New(nitroerr.KindUnsupportedProfile, "encode.video")
	}
	return nil
}
