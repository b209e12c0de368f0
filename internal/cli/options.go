// Package cli builds the cobra command tree spec.md §6 names (cast,
// list-sources, info, stop, status) and maps the controller's error kinds to
// the exit codes spec.md §6 specifies. Grounded on the teacher pack's
// smazurov-videonode/cmd/stream.go cobra command construction: flags bound
// directly to local vars via *Var, a Run closure that loads config, builds
// the runtime, and calls os.Exit with a meaningful code.
package cli

import (
	"errors"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// Options is the flat CLI-flag/config-file merge target for the cast
// command, one field per spec.md §6 config option plus the source-selection
// flags cast itself needs. Dotted `toml:` tags match internal/config's
// flatten output; `env:` tags match the NITROGEN_ prefix convention.
type Options struct {
	Monitor      string `toml:"source.monitor"`
	Window       string `toml:"source.window"`
	PortalPrompt bool   `toml:"source.portal_prompt"`

	Preset     string `toml:"defaults.preset"`
	Codec      string `toml:"defaults.codec" env:"CODEC"`
	Bitrate    int    `toml:"defaults.bitrate" env:"BITRATE"`
	LowLatency bool   `toml:"defaults.low_latency"`
	FrameGen   string `toml:"defaults.frame_gen"`

	CameraName string `toml:"camera.name"`

	EncoderQuality string `toml:"encoder.quality"`
	EncoderGPU     int    `toml:"encoder.gpu"`

	AudioSource  string `toml:"audio.source"`
	AudioCodec   string `toml:"audio.codec"`
	AudioBitrate int    `toml:"audio.bitrate"`

	RecordingOutputDir string `toml:"recording.output_dir"`
	RecordingFormat    string `toml:"recording.format"`

	HDRTonemap        string  `toml:"hdr.tonemap"`
	HDRAlgorithm      string  `toml:"hdr.algorithm"`
	HDRPeakLuminance  float64 `toml:"hdr.peak_luminance"`

	WebRTCEnabled    bool     `toml:"webrtc.enabled"`
	WebRTCPort       int      `toml:"webrtc.port"`
	WebRTCICEServers []string `toml:"webrtc.ice_servers"`

	EnableCamera    bool
	EnableRecording bool
	EnableStream    bool
	StreamURL       string

	SocketPath string
	LogLevel   string
	LogFormat  string
}

// DefaultOptions mirrors pipeline.DefaultCaptureConfig's defaults where the
// two overlap, so an empty config file plus no flags reproduces the same
// session a direct pipeline.DefaultCaptureConfig() caller would get.
func DefaultOptions() Options {
	return Options{
		Preset:       "1080p60",
		Codec:        "h264",
		Bitrate:      8000,
		AudioSource:  "none",
		AudioCodec:   "opus",
		AudioBitrate: 128,
		HDRTonemap:   "auto",
		HDRAlgorithm: "reinhard",
		CameraName:   "nitrogen-cam",
	}
}

// BuildCaptureConfig turns Options into a pipeline.CaptureConfig, starting
// from pipeline.DefaultCaptureConfig() and overlaying every option this
// command line understands.
func BuildCaptureConfig(o Options) (pipeline.CaptureConfig, error) {
	cfg := pipeline.DefaultCaptureConfig()

	cfg.Source = pipeline.SourceDescriptor{
		MonitorID:    o.Monitor,
		WindowID:     o.Window,
		PortalPrompt: o.PortalPrompt,
	}

	codec, err := parseVideoCodec(o.Codec)
	if err != nil {
		return cfg, err
	}
	cfg.Codec = codec
	cfg.BitrateKbps = o.Bitrate
	cfg.LowLatency = o.LowLatency

	cfg.Quality, err = parseQualityPreset(o.EncoderQuality)
	if err != nil {
		return cfg, err
	}

	cfg.AudioSource, err = parseAudioSource(o.AudioSource)
	if err != nil {
		return cfg, err
	}
	cfg.AudioCodec, err = parseAudioCodec(o.AudioCodec)
	if err != nil {
		return cfg, err
	}
	cfg.AudioBitrateKbps = o.AudioBitrate

	cfg.HDR, err = parseHDRMode(o.HDRTonemap)
	if err != nil {
		return cfg, err
	}
	cfg.HDRAlgorithm, err = parseTonemapAlgorithm(o.HDRAlgorithm)
	if err != nil {
		return cfg, err
	}
	if o.HDRPeakLuminance > 0 {
		cfg.PeakNits = o.HDRPeakLuminance
	}

	cfg.Interp, err = parseInterpMode(o.FrameGen)
	if err != nil {
		return cfg, err
	}

	var sinks []pipeline.SinkParams
	if o.EnableCamera {
		sinks = append(sinks, pipeline.SinkParams{Kind: pipeline.SinkCamera, CameraName: o.CameraName})
	}
	if o.EnableRecording {
		sinks = append(sinks, pipeline.SinkParams{
			Kind:            pipeline.SinkRecorder,
			OutputDir:       o.RecordingOutputDir,
			ContainerFormat: o.RecordingFormat,
		})
	}
	if o.EnableStream {
		sinks = append(sinks, pipeline.SinkParams{Kind: pipeline.SinkStream, StreamURL: o.StreamURL})
	}
	if o.WebRTCEnabled {
		sinks = append(sinks, pipeline.SinkParams{
			Kind:             pipeline.SinkWebRTC,
			WebRTCPort:       o.WebRTCPort,
			WebRTCICEServers: o.WebRTCICEServers,
		})
	}
	cfg.Sinks = sinks

	return cfg, nil
}

func parseVideoCodec(s string) (pipeline.VideoCodec, error) {
	switch s {
	case "", "h264":
		return pipeline.CodecH264, nil
	case "hevc", "h265":
		return pipeline.CodecHEVC, nil
	case "av1":
		return pipeline.CodecAV1, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindUnsupportedCodec, "cli", "unknown codec "+s, nil)
	}
}

func parseQualityPreset(s string) (pipeline.QualityPreset, error) {
	switch s {
	case "", "medium":
		return pipeline.QualityMedium, nil
	case "fast":
		return pipeline.QualityFast, nil
	case "slow":
		return pipeline.QualitySlow, nil
	case "quality":
		return pipeline.QualityQuality, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindInvalidParameters, "cli", "unknown encoder quality "+s, nil)
	}
}

func parseInterpMode(s string) (pipeline.InterpMode, error) {
	switch s {
	case "", "off":
		return pipeline.InterpOff, nil
	case "2x":
		return pipeline.Interp2x, nil
	case "3x":
		return pipeline.Interp3x, nil
	case "4x":
		return pipeline.Interp4x, nil
	case "adaptive":
		return pipeline.InterpAdaptive, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindInvalidParameters, "cli", "unknown frame interpolation mode "+s, nil)
	}
}

func parseAudioSource(s string) (pipeline.AudioSource, error) {
	switch s {
	case "", "none":
		return pipeline.AudioSourceNone, nil
	case "desktop":
		return pipeline.AudioSourceDesktop, nil
	case "mic":
		return pipeline.AudioSourceMic, nil
	case "both":
		return pipeline.AudioSourceBoth, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindInvalidParameters, "cli", "unknown audio source "+s, nil)
	}
}

func parseAudioCodec(s string) (pipeline.AudioCodec, error) {
	switch s {
	case "", "opus":
		return pipeline.AudioCodecOpus, nil
	case "aac":
		return pipeline.AudioCodecAAC, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindUnsupportedCodec, "cli", "unknown audio codec "+s, nil)
	}
}

func parseHDRMode(s string) (pipeline.HDRMode, error) {
	switch s {
	case "", "auto":
		return pipeline.HDRAuto, nil
	case "off":
		return pipeline.HDROff, nil
	case "on":
		return pipeline.HDROn, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindInvalidParameters, "cli", "unknown hdr tonemap mode "+s, nil)
	}
}

func parseTonemapAlgorithm(s string) (pipeline.TonemapAlgorithm, error) {
	switch s {
	case "", "reinhard":
		return pipeline.TonemapReinhard, nil
	case "aces":
		return pipeline.TonemapACES, nil
	case "hable":
		return pipeline.TonemapHable, nil
	default:
		return 0, nitroerr.WithDetail(nitroerr.KindInvalidParameters, "cli", "unknown tonemap algorithm "+s, nil)
	}
}

// alreadyRunningDetail must match the Detail string controller.Start uses to
// reject a second Start call. There's no dedicated nitroerr.Kind for it —
// it's a KindInvalidParameters like any other bad-argument rejection — so
// this is the only way ExitCode can tell "a session is already running"
// apart from, say, an unparseable monitor ID.
const alreadyRunningDetail = "a session is already running"

// ExitCode maps err to the process exit code spec.md §6 defines:
// 2 invalid arguments, 3 source selection cancelled, 4 hardware encoder
// unavailable, 5 portal unavailable, 6 session already running, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var nerr *nitroerr.Error
	if errors.As(err, &nerr) && nerr.Kind == nitroerr.KindInvalidParameters && nerr.Detail == alreadyRunningDetail {
		return 6
	}

	switch nitroerr.KindOf(err) {
	case nitroerr.KindInvalidParameters, nitroerr.KindUnsupportedCodec, nitroerr.KindUnsupportedProfile:
		return 2
	case nitroerr.KindPortalDenied, nitroerr.KindNoSuchSource:
		return 3
	case nitroerr.KindHardwareUnavailable:
		return 4
	case nitroerr.KindPortalUnavailable:
		return 5
	default:
		return 1
	}
}
