// Package nitroerr defines the closed set of error kinds stages and sinks
// surface, each carrying a short human-readable hint for operator-facing
// messaging.
package nitroerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of error categories. New kinds are never added
// by callers; every site that fails maps its failure onto one of these.
type Kind int

const (
	KindUnknown Kind = iota
	KindPortalDenied
	KindPortalUnavailable
	KindNoSuchSource
	KindSourceLost
	KindHardwareUnavailable
	KindUnsupportedCodec
	KindUnsupportedProfile
	KindInvalidParameters
	KindStalled
	KindDeviceUnavailable
	KindFileIO
	KindNetworkIO
	KindSignalingError
	KindTimeout
	KindInternalInvariant
)

func (k Kind) String() string {
	switch k {
	case KindPortalDenied:
		return "PortalDenied"
	case KindPortalUnavailable:
		return "PortalUnavailable"
	case KindNoSuchSource:
		return "NoSuchSource"
	case KindSourceLost:
		return "SourceLost"
	case KindHardwareUnavailable:
		return "HardwareUnavailable"
	case KindUnsupportedCodec:
		return "UnsupportedCodec"
	case KindUnsupportedProfile:
		return "UnsupportedProfile"
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindStalled:
		return "Stalled"
	case KindDeviceUnavailable:
		return "DeviceUnavailable"
	case KindFileIO:
		return "FileIo"
	case KindNetworkIO:
		return "NetworkIo"
	case KindSignalingError:
		return "SignalingError"
	case KindTimeout:
		return "Timeout"
	case KindInternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// hints carries one human-readable pointer-at-the-cause string per kind, shown
// alongside the error to operators (e.g. in CLI output and status snapshots).
var hints = map[Kind]string{
	KindPortalDenied:        "the user declined the portal's screen-share prompt; re-run cast to try again",
	KindPortalUnavailable:   "check that the desktop portal service (xdg-desktop-portal) is running",
	KindNoSuchSource:        "the requested monitor or window id does not exist; run list-sources to see valid ids",
	KindSourceLost:          "the capture source disappeared mid-session, often because the portal permission was revoked",
	KindHardwareUnavailable: "no compatible GPU encoder was found; check that the vendor driver and SDK are installed",
	KindUnsupportedCodec:    "the requested codec is not supported by the available encoder",
	KindUnsupportedProfile:  "the requested profile or advanced option combination is not supported by the encoder",
	KindInvalidParameters:   "one or more configuration values are out of range or mutually inconsistent",
	KindStalled:             "the encoder's input queue is full; frames are being dropped until it drains",
	KindDeviceUnavailable:   "the virtual camera loopback kernel facility is missing or already in use",
	KindFileIO:              "a file write failed; check disk space and permissions at the configured path",
	KindNetworkIO:           "the network connection to the streaming endpoint failed or was reset",
	KindSignalingError:      "the browser peer's SDP offer/answer exchange failed",
	KindTimeout:             "a stage did not reach its next checkpoint within its allotted time",
	KindInternalInvariant:   "an internal invariant was violated; this is a bug, please file a report",
}

// Hint returns the human-readable guidance for k, or "" if k has none.
func (k Kind) Hint() string {
	return hints[k]
}

// Error wraps a failure with its Kind, the stage or sink that produced it, and
// an optional underlying cause. Stage/endpoint-qualified kinds (FileIo(path),
// NetworkIo(endpoint), Timeout(stage)) carry that qualifier in Detail.
type Error struct {
	Kind   Kind
	Stage  string // e.g. "capture", "encode.video", "sink.recorder"
	Detail string // path, endpoint, or stage name for the parameterized kinds
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s(%s)", msg, e.Detail)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no detail or cause.
func New(kind Kind, stage string) *Error {
	return &Error{Kind: kind, Stage: stage}
}

// Wrap constructs an Error wrapping cause, with no detail.
func Wrap(kind Kind, stage string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Cause: cause}
}

// WithDetail constructs an Error carrying a parameter (path/endpoint/stage name)
// for the parameterized kinds FileIo, NetworkIo, and Timeout.
func WithDetail(kind Kind, stage, detail string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Detail: detail, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an *Error,
// else returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
