package testsource

import (
	"context"
	"testing"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

func TestPollBeforeOpenFails(t *testing.T) {
	s := New(DefaultConfig())
	_, _, err := s.Poll()
	if nitroerr.KindOf(err) != nitroerr.KindSourceLost {
		t.Fatalf("Kind = %v, want KindSourceLost", nitroerr.KindOf(err))
	}
}

func TestOpenDeniedReturnsPortalDenied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DenySource = true
	s := New(cfg)
	err := s.Open(context.Background(), pipeline.SourceDescriptor{})
	if nitroerr.KindOf(err) != nitroerr.KindPortalDenied {
		t.Fatalf("Kind = %v, want KindPortalDenied", nitroerr.KindOf(err))
	}
}

func TestPollEmitsSequentialFrames(t *testing.T) {
	s := New(DefaultConfig())
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for want := uint64(0); want < 3; want++ {
		frames, _, err := s.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if len(frames) != 1 {
			t.Fatalf("len(frames) = %d, want 1", len(frames))
		}
		if frames[0].Seq != want {
			t.Errorf("Seq = %d, want %d", frames[0].Seq, want)
		}
		if frames[0].Width != DefaultConfig().Width || frames[0].Height != DefaultConfig().Height {
			t.Errorf("dims = %dx%d, want %dx%d", frames[0].Width, frames[0].Height, DefaultConfig().Width, DefaultConfig().Height)
		}
	}
}

func TestPollTimestampsAdvanceByFrameInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FPS = 30
	s := New(cfg)
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, _, _ := s.Poll()
	second, _, _ := s.Poll()
	gotInterval := second[0].Timestamp - first[0].Timestamp
	wantInterval := int64(1_000_000_000 / 30)
	if gotInterval != wantInterval {
		t.Errorf("interval = %d, want %d", gotInterval, wantInterval)
	}
}

func TestPollEmitsAudioWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmitAudio = true
	s := New(cfg)
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, audio, err := s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(audio) != 1 {
		t.Fatalf("len(audio) = %d, want 1", len(audio))
	}
	if audio[0].SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", audio[0].SampleRate)
	}
	if audio[0].Channels != 2 {
		t.Errorf("Channels = %d, want 2", audio[0].Channels)
	}
}

func TestPollEmitsTaggedDesktopAndMicStreamsIndependently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmitAudio = true
	cfg.EmitMic = true
	s := New(cfg)
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, audio, err := s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(audio) != 2 {
		t.Fatalf("len(audio) = %d, want 2 (one desktop, one mic)", len(audio))
	}
	if audio[0].Source != pipeline.AudioStreamDesktop {
		t.Errorf("audio[0].Source = %v, want desktop", audio[0].Source)
	}
	if audio[1].Source != pipeline.AudioStreamMic {
		t.Errorf("audio[1].Source = %v, want mic", audio[1].Source)
	}
}

func TestPollNoAudioByDefault(t *testing.T) {
	s := New(DefaultConfig())
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, audio, _ := s.Poll()
	if len(audio) != 0 {
		t.Errorf("len(audio) = %d, want 0", len(audio))
	}
}

func TestPatternSceneCutChangesShadeAcrossCuts(t *testing.T) {
	cfg := Config{Width: 16, Height: 16, FPS: 30, Pattern: PatternSceneCut, CutIntervalFrames: 2}
	s := New(cfg)
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var shades []byte
	for i := 0; i < 4; i++ {
		frames, _, err := s.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		shades = append(shades, frames[0].Data[0][0])
	}
	// CutIntervalFrames=2: frames 0,1 share a shade, frames 2,3 share another.
	if shades[0] != shades[1] {
		t.Errorf("frames within the same cut window should share a shade: %v", shades)
	}
	if shades[1] == shades[2] {
		t.Errorf("frames across a cut boundary should differ: %v", shades)
	}
}

func TestCloseThenPollFails(t *testing.T) {
	s := New(DefaultConfig())
	if err := s.Open(context.Background(), pipeline.SourceDescriptor{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, _, err := s.Poll()
	if nitroerr.KindOf(err) != nitroerr.KindSourceLost {
		t.Fatalf("Kind = %v, want KindSourceLost after Close", nitroerr.KindOf(err))
	}
}
