package audio

import (
	"math"
	"testing"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

func TestFrameSize(t *testing.T) {
	if got := FrameSize(pipeline.AudioCodecAAC, 48000); got != 1024 {
		t.Errorf("AAC FrameSize = %d, want 1024", got)
	}
	if got := FrameSize(pipeline.AudioCodecOpus, 48000); got != 960 {
		t.Errorf("Opus FrameSize @48kHz = %d, want 960", got)
	}
	if got := FrameSize(pipeline.AudioCodecOpus, 24000); got != 480 {
		t.Errorf("Opus FrameSize @24kHz = %d, want 480", got)
	}
}

func encodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func TestToFloat32RoundTripsF32Format(t *testing.T) {
	want := []float32{0.5, -0.25, 1.0, -1.0}
	f := &pipeline.AudioFrame{
		Data:        encodeFloat32LE(want),
		SampleCount: 2,
		Channels:    2,
		Format:      pipeline.AudioSampleFormatF32,
	}
	got := ToFloat32(f)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestToFloat32S16RoundTrip(t *testing.T) {
	v := int16(16384) // ~0.5 of full scale
	data := []byte{byte(v), byte(v >> 8)}
	f := &pipeline.AudioFrame{Data: data, SampleCount: 1, Channels: 1, Format: pipeline.AudioSampleFormatS16}
	got := ToFloat32(f)
	want := float32(v) / float32(math.MaxInt16)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %v, want [%v]", got, want)
	}
}

func TestResampleIdentityWhenRatesMatch(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := Resample(in, 1, 48000, 48000)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d changed: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestResampleChangesLength(t *testing.T) {
	in := make([]float32, 480) // mono, 10ms @ 48kHz
	out := Resample(in, 1, 48000, 24000)
	if len(out) != 240 {
		t.Fatalf("len = %d, want 240 (half the rate)", len(out))
	}
}

func TestMixerUnityGainsSumsSignals(t *testing.T) {
	m := NewMixer(1.0, 1.0, false, 48000)
	desktop := []float32{0.2, 0.2}
	mic := []float32{0.1, 0.1}
	out := m.Mix(desktop, mic)
	for i, v := range out {
		want := float32(0.3)
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestMixerZeroMicVolumeReproducesDesktopOnly(t *testing.T) {
	m := NewMixer(1.0, 0.0, false, 48000)
	m.MicVolume = 0 // explicit zero, bypassing NewMixer's default-to-unity
	desktop := []float32{0.5, -0.5}
	mic := []float32{0.9, 0.9}
	out := m.Mix(desktop, mic)
	for i := range desktop {
		if out[i] != desktop[i] {
			t.Errorf("sample %d = %v, want desktop-only %v", i, out[i], desktop[i])
		}
	}
}

func TestMixerMicOnlyProducesOutputWithNilDesktop(t *testing.T) {
	m := NewMixer(1.0, 1.0, false, 48000)
	mic := []float32{0.4, -0.4, 0.2}
	out := m.Mix(nil, mic)
	if len(out) != len(mic) {
		t.Fatalf("len(out) = %d, want %d (mic-only must not collapse to zero length)", len(out), len(mic))
	}
	for i, v := range out {
		if math.Abs(float64(v-mic[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want mic-only %v", i, v, mic[i])
		}
	}
}

func TestMixerDuckingAttenuatesDesktopOnLoudMic(t *testing.T) {
	m := NewMixer(1.0, 1.0, true, 48000)
	loudMic := make([]float32, 100)
	for i := range loudMic {
		loudMic[i] = 0.9
	}
	desktop := make([]float32, 100)
	for i := range desktop {
		desktop[i] = 1.0
	}
	out := m.Mix(desktop, loudMic)
	// Ducking attacks immediately, so the very last sample should be well below
	// the undamped desktop+mic sum.
	last := out[len(out)-1]
	undamped := desktop[0] + loudMic[0]
	if last >= undamped {
		t.Errorf("last sample = %v, want attenuated below undamped sum %v", last, undamped)
	}
}

func TestChunkerEmitsFullFramesOnly(t *testing.T) {
	c := NewChunker(2, 4) // stereo, 4 samples/channel per frame = 8 interleaved values
	frames := c.Push(make([]float32, 5))
	if len(frames) != 0 {
		t.Fatalf("expected no frames yet, got %d", len(frames))
	}
	frames = c.Push(make([]float32, 5))
	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 full frame from 10 buffered values, got %d", len(frames))
	}
	if len(frames[0]) != 8 {
		t.Errorf("frame length = %d, want 8", len(frames[0]))
	}
}

func TestValidateConfigRejectsNonPositiveValues(t *testing.T) {
	if err := validateConfig(0, 2, 128); nitroerr.KindOf(err) != nitroerr.KindInvalidParameters {
		t.Errorf("sampleRate=0: Kind = %v, want KindInvalidParameters", nitroerr.KindOf(err))
	}
	if err := validateConfig(48000, 0, 128); nitroerr.KindOf(err) != nitroerr.KindInvalidParameters {
		t.Errorf("channels=0: Kind = %v, want KindInvalidParameters", nitroerr.KindOf(err))
	}
}

func TestFakeEncoderSubmitProducesPacketWithAdjustedPTS(t *testing.T) {
	e := NewFakeEncoder()
	if err := e.Configure(pipeline.AudioCodecOpus, 48000, 2, 128); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	pcm := make([]float32, 960*2)
	pkt, err := e.Submit(pcm, 5_000_000, 1_000_000, 48000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if pkt == nil {
		t.Fatal("expected a packet")
	}
	if pkt.PTS != 192 {
		t.Errorf("PTS = %d, want 192 (4ms of timestamp - sessionOrigin in 1/48000 ticks)", pkt.PTS)
	}
}

func TestFakeEncoderSubmitEmptyPCMReturnsNil(t *testing.T) {
	e := NewFakeEncoder()
	if err := e.Configure(pipeline.AudioCodecOpus, 48000, 2, 128); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	pkt, err := e.Submit(nil, 0, 0, 48000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if pkt != nil {
		t.Error("expected nil packet for empty pcm")
	}
}
