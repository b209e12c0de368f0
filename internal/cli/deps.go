package cli

import (
	"path/filepath"

	"github.com/nitrogen-cast/nitrogen/internal/capture"
	"github.com/nitrogen-cast/nitrogen/internal/capture/testsource"
	"github.com/nitrogen-cast/nitrogen/internal/controller"
	audioenc "github.com/nitrogen-cast/nitrogen/internal/encode/audio"
	videoenc "github.com/nitrogen-cast/nitrogen/internal/encode/video"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
	"github.com/nitrogen-cast/nitrogen/internal/sink/camera"
	"github.com/nitrogen-cast/nitrogen/internal/sink/recorder"
	"github.com/nitrogen-cast/nitrogen/internal/sink/stream"
	"github.com/nitrogen-cast/nitrogen/internal/sink/webrtc"
)

// BuildDependencies wires controller.Dependencies to the real in-repo
// backends. The portal client and the vendor decode session behind the
// camera sink's re-pack step are both named external collaborators in
// spec.md §1 — not implemented by this repo — so NewPortalSession falls
// back to internal/capture/testsource (a synthetic generator, not a portal)
// and the camera sink uses camera.PassthroughDecoder; everything else
// (the hardware video encoder, the Opus/AAC audio encoders, the RTMP/SRT
// stream transports, the WebRTC peer sink) is the real backend.
func BuildDependencies() controller.Dependencies {
	return controller.Dependencies{
		NewPortalSession: newPortalSession,
		NewVideoEncoder:  func(sessionOrigin int64) videoenc.Encoder { return videoenc.NewHardwareEncoder(sessionOrigin) },
		NewAudioEncoder:  newAudioEncoder,
		NewSink:          newSink,
	}
}

func newPortalSession(src pipeline.SourceDescriptor) (capture.PortalSession, error) {
	cfg := testsource.DefaultConfig()
	return testsource.New(cfg), nil
}

func newAudioEncoder(codec pipeline.AudioCodec) audioenc.Encoder {
	if codec == pipeline.AudioCodecAAC {
		return audioenc.NewAACEncoder()
	}
	return audioenc.NewOpusEncoder()
}

func newSink(params pipeline.SinkParams) (sink.Sink, error) {
	switch params.Kind {
	case pipeline.SinkCamera:
		cfg := camera.Config{DisplayName: params.CameraName, Width: 1920, Height: 1080, FPS: 60}
		return camera.New(cfg, camera.NewV4L2Loopback(), &camera.PassthroughDecoder{}), nil

	case pipeline.SinkRecorder:
		format := params.ContainerFormat
		if format == "" {
			format = "mp4"
		}
		path := filepath.Join(params.OutputDir, "nitrogen-capture."+format)
		cfg := recorder.Config{Path: path, Format: format}
		return recorder.New(cfg, &recorder.FakeWriter{}), nil

	case pipeline.SinkStream:
		cfg := stream.Config{Endpoint: params.StreamURL}
		return stream.New(cfg, stream.Dial(params.StreamURL)), nil

	case pipeline.SinkWebRTC:
		cfg := webrtc.Config{Port: params.WebRTCPort, ICEServers: params.WebRTCICEServers}
		return webrtc.New(cfg), nil

	default:
		return nil, nitroerr.WithDetail(nitroerr.KindInvalidParameters, "cli", "unrecognized sink kind", nil)
	}
}
