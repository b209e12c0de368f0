package pipeline

import "time"

// VideoCodec identifies the target video codec identity.
type VideoCodec int

const (
	CodecH264 VideoCodec = iota
	CodecHEVC
	CodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// QualityPreset maps to the hardware encoder's effort dial.
type QualityPreset int

const (
	QualityFast QualityPreset = iota
	QualityMedium
	QualitySlow
	QualityQuality
)

func (q QualityPreset) String() string {
	switch q {
	case QualityFast:
		return "fast"
	case QualityMedium:
		return "medium"
	case QualitySlow:
		return "slow"
	case QualityQuality:
		return "quality"
	default:
		return "unknown"
	}
}

// AudioSource selects which audio streams feed the mixer.
type AudioSource int

const (
	AudioSourceNone AudioSource = iota
	AudioSourceDesktop
	AudioSourceMic
	AudioSourceBoth
)

func (a AudioSource) String() string {
	switch a {
	case AudioSourceNone:
		return "none"
	case AudioSourceDesktop:
		return "desktop"
	case AudioSourceMic:
		return "mic"
	case AudioSourceBoth:
		return "both"
	default:
		return "unknown"
	}
}

// AudioCodec identifies the target audio codec identity.
type AudioCodec int

const (
	AudioCodecAAC AudioCodec = iota
	AudioCodecOpus
)

func (a AudioCodec) String() string {
	if a == AudioCodecAAC {
		return "aac"
	}
	return "opus"
}

// InterpMode selects the frame interpolator's behavior.
type InterpMode int

const (
	InterpOff InterpMode = iota
	Interp2x
	Interp3x
	Interp4x
	InterpAdaptive
)

func (m InterpMode) String() string {
	switch m {
	case InterpOff:
		return "off"
	case Interp2x:
		return "2x"
	case Interp3x:
		return "3x"
	case Interp4x:
		return "4x"
	case InterpAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Multiplier returns the fixed multiplier for non-adaptive modes, or 0 for
// InterpOff/InterpAdaptive (the caller must compute those separately).
func (m InterpMode) Multiplier() int {
	switch m {
	case Interp2x:
		return 2
	case Interp3x:
		return 3
	case Interp4x:
		return 4
	default:
		return 1
	}
}

// HDRMode selects whether the tonemap stage engages.
type HDRMode int

const (
	HDROff HDRMode = iota
	HDROn
	HDRAuto
)

func (m HDRMode) String() string {
	switch m {
	case HDROff:
		return "off"
	case HDROn:
		return "on"
	case HDRAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// TonemapAlgorithm selects the HDR→SDR curve.
type TonemapAlgorithm int

const (
	TonemapReinhard TonemapAlgorithm = iota
	TonemapACES
	TonemapHable
)

func (a TonemapAlgorithm) String() string {
	switch a {
	case TonemapReinhard:
		return "reinhard"
	case TonemapACES:
		return "aces"
	case TonemapHable:
		return "hable"
	default:
		return "unknown"
	}
}

// SourceDescriptor names the capture target: exactly one of MonitorID, WindowID
// should be set, or PortalPrompt true to ask the compositor to prompt the user.
type SourceDescriptor struct {
	MonitorID    string
	WindowID     string
	PortalPrompt bool
}

// SinkParams is the per-sink configuration block; only the fields relevant to
// Kind are meaningful. Kept flat (rather than an interface) so it can be
// merged by the config loader's reflection-based precedence pass.
type SinkParams struct {
	Kind SinkKind

	// camera
	CameraName string

	// recorder
	OutputDir   string
	ContainerFormat string // "mp4" | "mkv"

	// stream
	StreamURL string // rtmp://, rtmps://, or srt://

	// webrtc
	WebRTCPort       int
	WebRTCICEServers []string
}

// SinkKind enumerates the sink types spec.md §4.6 defines.
type SinkKind int

const (
	SinkCamera SinkKind = iota
	SinkRecorder
	SinkStream
	SinkWebRTC
)

func (k SinkKind) String() string {
	switch k {
	case SinkCamera:
		return "camera"
	case SinkRecorder:
		return "recorder"
	case SinkStream:
		return "stream"
	case SinkWebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}

// CaptureConfig is the fully-merged session configuration: CLI flags override
// config-file values override built-in defaults (merge happens in internal/config;
// this struct is the merge's output, consumed by the controller to start a session).
type CaptureConfig struct {
	Source SourceDescriptor

	TargetWidth  int
	TargetHeight int
	TargetFPS    int

	Codec         VideoCodec
	BitrateKbps   int
	Quality       QualityPreset
	LowLatency    bool

	AudioSource      AudioSource
	AudioCodec       AudioCodec
	AudioBitrateKbps int
	DesktopVolume    float64 // [0.0, 2.0]
	MicVolume        float64 // [0.0, 2.0]
	AudioDucking     bool

	Interp InterpMode

	HDR          HDRMode
	HDRAlgorithm TonemapAlgorithm
	PeakNits     float64

	Sinks []SinkParams

	// KeyframeIntervalFrames, when zero, defaults to 2*TargetFPS per §4.3.
	KeyframeIntervalFrames int

	// StartTimeout bounds the Starting state per §5 ("10 s overall timeout");
	// the timer is meant to pause during portal prompts, tracked by the caller.
	StartTimeout time.Duration

	// StageStopTimeout bounds cooperative shutdown per stage (§5's "2 s").
	StageStopTimeout time.Duration
}

// KeyframeInterval returns the effective keyframe interval in frames.
func (c *CaptureConfig) KeyframeInterval() int {
	if c.KeyframeIntervalFrames > 0 {
		return c.KeyframeIntervalFrames
	}
	if c.TargetFPS > 0 {
		return 2 * c.TargetFPS
	}
	return 60
}

// DefaultCaptureConfig returns the built-in defaults the config loader starts from
// before applying file and CLI overrides.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		TargetWidth:      1920,
		TargetHeight:     1080,
		TargetFPS:        60,
		Codec:            CodecH264,
		BitrateKbps:      8000,
		Quality:          QualityMedium,
		AudioSource:      AudioSourceNone,
		AudioCodec:       AudioCodecOpus,
		AudioBitrateKbps: 128,
		DesktopVolume:    1.0,
		MicVolume:        1.0,
		Interp:           InterpOff,
		HDR:              HDRAuto,
		HDRAlgorithm:     TonemapReinhard,
		PeakNits:         1000,
		StartTimeout:     10 * time.Second,
		StageStopTimeout: 2 * time.Second,
	}
}
