// Package audio implements the audio pipeline of spec.md §4.4: format
// conversion, resampling, desktop/mic mixing with ducking, re-chunking to
// the target encoder's frame size, and the Opus/AAC encode backends.
package audio

import (
	"math"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// FrameSize returns the codec's fixed PCM frame size in samples per channel,
// per spec.md §4.4 (AAC: 1024, Opus: 960 @ 48kHz = 20ms).
func FrameSize(codec pipeline.AudioCodec, sampleRate int) int {
	if codec == pipeline.AudioCodecAAC {
		return 1024
	}
	// Opus: 20ms chunks scale with sample rate; 960 is the 48kHz case.
	return sampleRate / 50
}

// Encoder is the audio encode backend contract.
type Encoder interface {
	Configure(codec pipeline.AudioCodec, sampleRate, channels, bitrateKbps int) error
	// Submit takes exactly FrameSize(codec, sampleRate) samples per channel,
	// already resampled/converted/mixed, and returns the coded packet
	// (nil if the backend buffers internally and isn't ready to emit yet).
	Submit(pcm []float32, timestamp, sessionOrigin int64, sampleRate int) (*pipeline.Packet, error)
	Flush() ([]*pipeline.Packet, error)
	Close() error
}

// Converter turns a raw capture AudioFrame into float32 samples at the
// pipeline's working rate, converting sample format before resampling per
// spec.md §4.4 ("Sample format conversion precedes resampling").
type Converter struct {
	TargetRate int
}

// ToFloat32 converts f's PCM payload to interleaved float32 samples,
// independent of its original sample format (spec.md §3's fallback order:
// float32 preferred, s32, s16).
func ToFloat32(f *pipeline.AudioFrame) []float32 {
	out := make([]float32, f.SampleCount*f.Channels)
	switch f.Format {
	case pipeline.AudioSampleFormatF32:
		for i := range out {
			bits := uint32(f.Data[i*4]) | uint32(f.Data[i*4+1])<<8 | uint32(f.Data[i*4+2])<<16 | uint32(f.Data[i*4+3])<<24
			out[i] = math.Float32frombits(bits)
		}
	case pipeline.AudioSampleFormatS32:
		for i := range out {
			v := int32(uint32(f.Data[i*4]) | uint32(f.Data[i*4+1])<<8 | uint32(f.Data[i*4+2])<<16 | uint32(f.Data[i*4+3])<<24)
			out[i] = float32(v) / float32(math.MaxInt32)
		}
	case pipeline.AudioSampleFormatS16:
		for i := range out {
			v := int16(uint16(f.Data[i*2]) | uint16(f.Data[i*2+1])<<8)
			out[i] = float32(v) / float32(math.MaxInt16)
		}
	}
	return out
}

// Resample performs linear interpolation resampling from srcRate to
// dstRate. Source material is typically already 48kHz and usually requires
// no conversion (spec.md §4.4); this path only engages when it differs.
// No dithering is applied on down-conversion — left undithered deliberately,
// see DESIGN.md's Open Question note on resampler quality.
func Resample(samples []float32, channels, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	frames := len(samples) / channels
	outFrames := int(float64(frames) * float64(dstRate) / float64(srcRate))
	out := make([]float32, outFrames*channels)
	ratio := float64(frames-1) / float64(maxInt(outFrames-1, 1))
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		i1 := minInt(i0+1, frames-1)
		frac := float32(srcPos - float64(i0))
		for c := 0; c < channels; c++ {
			a := samples[i0*channels+c]
			b := samples[i1*channels+c]
			out[i*channels+c] = a + (b-a)*frac
		}
	}
	return out
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

// duckingReleaseMs is the release ramp duration spec.md §4.4 specifies for
// ducking (200ms release).
const duckingReleaseMs = 200.0

// duckingThresholdRMS triggers a 12dB desktop attenuation whenever the RMS of
// the mic buffer passed to Mix exceeds it. The RMS is taken over that whole
// buffer, whatever its length; no fixed 50ms window is kept across calls.
var duckingThresholdRMS float32 = 0.05

// duckingAttenuationDB is the fixed attenuation spec.md §4.4 specifies.
const duckingAttenuationDB = -12.0

// Mixer mixes desktop and mic PCM with independent gains and optional
// sidechain ducking (spec.md §4.4).
type Mixer struct {
	DesktopVolume float64 // [0.0, 2.0]
	MicVolume     float64 // [0.0, 2.0]
	Ducking       bool
	SampleRate    int

	currentDuck  float32 // 1.0 = no duck, linear gain multiplier currently applied
	releaseStep  float32
}

// NewMixer constructs a Mixer; gains default to 1.0 (unity) if zero.
func NewMixer(desktopVol, micVol float64, ducking bool, sampleRate int) *Mixer {
	if desktopVol == 0 {
		desktopVol = 1.0
	}
	if micVol == 0 {
		micVol = 1.0
	}
	m := &Mixer{DesktopVolume: desktopVol, MicVolume: micVol, Ducking: ducking, SampleRate: sampleRate, currentDuck: 1.0}
	if sampleRate > 0 {
		// Linear gain change per sample to complete the release ramp in 200ms.
		m.releaseStep = 1.0 / float32(sampleRate*duckingReleaseMs/1000.0)
	}
	return m
}

// Mix combines desktop and mic buffers (interleaved, same channel count,
// independently sized since the two capture streams are not sample-aligned)
// into one buffer sized to the longer of the two. A zero mic_volume with
// source desktop-only reproduces the same signal as AudioSourceDesktop alone
// (spec.md §8 boundary behavior).
func (m *Mixer) Mix(desktop, mic []float32) []float32 {
	n := len(desktop)
	if len(mic) > n {
		n = len(mic)
	}
	out := make([]float32, n)
	duckTarget := float32(1.0)
	if m.Ducking && len(mic) > 0 {
		rms := rmsOf(mic)
		if rms > duckingThresholdRMS {
			duckTarget = dbToLinear(duckingAttenuationDB)
		}
	}

	desktopGain := float32(m.DesktopVolume)
	micGain := float32(m.MicVolume)

	for i := range out {
		// Step the duck envelope toward duckTarget at most releaseStep per sample,
		// so the transition takes the full 200ms release window (spec.md §4.4).
		if m.currentDuck < duckTarget {
			m.currentDuck = minF32(m.currentDuck+m.releaseStep, duckTarget)
		} else if m.currentDuck > duckTarget {
			// Attack (ducking in) is immediate; only release ramps per spec.md.
			m.currentDuck = duckTarget
		}

		var desktopSample float32
		if i < len(desktop) {
			desktopSample = desktop[i] * desktopGain * m.currentDuck
		}
		var micSample float32
		if i < len(mic) {
			micSample = mic[i] * micGain
		}
		out[i] = desktopSample + micSample
	}
	return out
}

func rmsOf(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

func dbToLinear(db float64) float32 {
	return float32(math.Pow(10, db/20))
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// Chunker re-chunks mixed/resampled float32 samples into the encoder's fixed
// frame size, per spec.md §4.4.
type Chunker struct {
	channels  int
	frameSize int
	buf       []float32
}

// NewChunker constructs a Chunker for the given channel count and frame size.
func NewChunker(channels, frameSize int) *Chunker {
	return &Chunker{channels: channels, frameSize: frameSize}
}

// Push appends samples and returns zero or more full frames ready to submit.
func (c *Chunker) Push(samples []float32) [][]float32 {
	c.buf = append(c.buf, samples...)
	var frames [][]float32
	frameLen := c.frameSize * c.channels
	for len(c.buf) >= frameLen {
		frame := make([]float32, frameLen)
		copy(frame, c.buf[:frameLen])
		frames = append(frames, frame)
		c.buf = c.buf[frameLen:]
	}
	return frames
}

// validateConfig mirrors nitroerr's invalid-parameters mapping for audio Configure calls.
func validateConfig(sampleRate, channels, bitrateKbps int) error {
	if sampleRate <= 0 || channels <= 0 || bitrateKbps <= 0 {
		return nitroerr.New(nitroerr.KindInvalidParameters, "encode.audio")
	}
	return nil
}
