//go:build (darwin || linux) && !novideohw

// Package video: purego-loaded hardware encoder backend. Adapted from the
// teacher's h264_purego.go/av1_purego.go dlopen-and-RegisterLibFunc pattern:
// the vendor SDK is discovered across a library search path, one encode
// session handle is created per Configure, and decode/encode output
// parameters are written into a heap-allocated struct (purego/arm64 requires
// this — stack locals can be invalidated by a GC move during the C call).
package video

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

var (
	hwencOnce    sync.Once
	hwencHandle  uintptr
	hwencInitErr error
	hwencLoaded  bool
)

var (
	nitrogenHWEncCreate         func(codec, width, height, fps, bitrateKbps, quality, lowLatency, tenBit int32) uint64
	nitrogenHWEncSubmit         func(session uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride int32, ptsNum, ptsDen int64, forceKeyframe int32) int32
	nitrogenHWEncDrain          func(session uint64, outData uintptr, outCapacity int32, outLen, outPTS, outDuration, outKeyframe uintptr) int32
	nitrogenHWEncFlush          func(session uint64, outData uintptr, outCapacity int32, outLen, outPTS, outDuration, outKeyframe uintptr) int32
	nitrogenHWEncRequestKF      func(session uint64)
	nitrogenHWEncDestroy        func(session uint64)
	nitrogenHWEncAvailable      func() int32
	nitrogenHWEncLastError      func() uintptr
)

const (
	hwencCodecH264 = 0
	hwencCodecHEVC = 1
	hwencCodecAV1  = 2

	hwencOK         = 0
	hwencErrNoMem   = -1
	hwencErrInvalid = -2
	hwencErrStalled = -3
	hwencErrFatal   = -4
)

func initHWEnc() error {
	hwencOnce.Do(func() {
		hwencInitErr = loadHWEncLib()
		hwencLoaded = hwencInitErr == nil
	})
	return hwencInitErr
}

func loadHWEncLib() error {
	var lastErr error
	for _, path := range hwencLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		hwencHandle = handle
		if err := registerHWEncSymbols(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libnitrogen_hwenc: %w", lastErr)
	}
	return errors.New("libnitrogen_hwenc not found in any standard location")
}

func hwencLibPaths() []string {
	libName := "libnitrogen_hwenc.so"
	if runtime.GOOS == "darwin" {
		libName = "libnitrogen_hwenc.dylib"
	}

	var paths []string
	if envPath := os.Getenv("NITROGEN_HWENC_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(exeDir, libName), filepath.Join(exeDir, "..", "lib", libName))
	}
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, libName, "/usr/local/lib/"+libName, "/opt/homebrew/lib/"+libName)
	case "linux":
		paths = append(paths, libName, "/usr/local/lib/"+libName, "/usr/lib/"+libName)
	}
	return paths
}

func registerHWEncSymbols() error {
	purego.RegisterLibFunc(&nitrogenHWEncCreate, hwencHandle, "nitrogen_hwenc_create")
	purego.RegisterLibFunc(&nitrogenHWEncSubmit, hwencHandle, "nitrogen_hwenc_submit")
	purego.RegisterLibFunc(&nitrogenHWEncDrain, hwencHandle, "nitrogen_hwenc_drain")
	purego.RegisterLibFunc(&nitrogenHWEncFlush, hwencHandle, "nitrogen_hwenc_flush")
	purego.RegisterLibFunc(&nitrogenHWEncRequestKF, hwencHandle, "nitrogen_hwenc_request_keyframe")
	purego.RegisterLibFunc(&nitrogenHWEncDestroy, hwencHandle, "nitrogen_hwenc_destroy")
	purego.RegisterLibFunc(&nitrogenHWEncAvailable, hwencHandle, "nitrogen_hwenc_available")
	purego.RegisterLibFunc(&nitrogenHWEncLastError, hwencHandle, "nitrogen_hwenc_last_error")
	return nil
}

// hwencOutputResult is heap-allocated so purego's C call can safely write
// into it regardless of GC stack movement (see package doc).
type hwencOutputResult struct {
	Len       int32
	PTS       int64
	Duration  int64
	Keyframe  int32
}

// HardwareEncoder implements Encoder against the purego-loaded vendor SDK.
type HardwareEncoder struct {
	session      uint64
	params       Params
	sessionOrigin int64
	frameCount   atomic.Int64
	keyframeEvery int64
	forceKF      atomic.Bool

	outBuf  []byte
	outCap  int32
}

// NewHardwareEncoder constructs an unconfigured HardwareEncoder.
// sessionOrigin is the monotonic clock value captured at session start
// (spec.md §9 "timestamp origin"); all PTS values are relative to it.
func NewHardwareEncoder(sessionOrigin int64) *HardwareEncoder {
	return &HardwareEncoder{sessionOrigin: sessionOrigin, outCap: 4 << 20}
}

func codecToHWEnc(c pipeline.VideoCodec) (int32, bool) {
	switch c {
	case pipeline.CodecH264:
		return hwencCodecH264, true
	case pipeline.CodecHEVC:
		return hwencCodecHEVC, true
	case pipeline.CodecAV1:
		return hwencCodecAV1, true
	default:
		return 0, false
	}
}

func qualityToEffort(q pipeline.QualityPreset) int32 {
	switch q {
	case pipeline.QualityFast:
		return 0
	case pipeline.QualityMedium:
		return 1
	case pipeline.QualitySlow:
		return 2
	case pipeline.QualityQuality:
		return 3
	default:
		return 1
	}
}

// Configure implements Encoder.
func (e *HardwareEncoder) Configure(p Params) error {
	if err := validate(p); err != nil {
		return err
	}
	if err := initHWEnc(); err != nil || !hwencLoaded {
		return nitroerr.Wrap(nitroerr.KindHardwareUnavailable, "encode.video", err)
	}
	codec, ok := codecToHWEnc(p.Codec)
	if !ok {
		return nitroerr.New(nitroerr.KindUnsupportedCodec, "encode.video")
	}

	lowLatency := int32(0)
	if p.LowLatency {
		lowLatency = 1
	}
	tenBit := int32(0)
	if p.Advanced.TenBit {
		tenBit = 1
	}

	session := nitrogenHWEncCreate(codec, int32(p.Width), int32(p.Height), int32(p.FPS),
		int32(p.BitrateKbps), qualityToEffort(p.Quality), lowLatency, tenBit)
	if session == 0 {
		return nitroerr.Wrap(nitroerr.KindUnsupportedProfile, "encode.video", hwencLastError())
	}

	if e.session != 0 {
		nitrogenHWEncDestroy(e.session)
	}
	e.session = session
	e.params = p
	e.keyframeEvery = int64(p.FPS) * 2
	e.frameCount.Store(0)
	e.outBuf = make([]byte, e.outCap)
	e.forceKF.Store(true) // first emitted packet of a session must be a keyframe (spec.md §4.3)
	return nil
}

func hwencLastError() error {
	ptr := nitrogenHWEncLastError()
	if ptr == 0 {
		return nil
	}
	return errors.New(goStringFromPtr(ptr))
}

// goStringFromPtr converts a C string pointer to a Go string, adapted from
// the teacher's purego_utils.go helper shared across its codec backends.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
		if length > 1024 {
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// Submit implements Encoder. Non-blocking: the vendor SDK signals backpressure
// via a Stalled return rather than ever having submit itself block.
func (e *HardwareEncoder) Submit(f *pipeline.Frame) error {
	if e.session == 0 {
		return nitroerr.New(nitroerr.KindInvalidParameters, "encode.video")
	}
	if len(f.Data) < 3 {
		return nitroerr.New(nitroerr.KindInvalidParameters, "encode.video")
	}

	n := e.frameCount.Add(1)
	forceKF := e.forceKF.Swap(false)
	if e.keyframeEvery > 0 && (n-1)%e.keyframeEvery == 0 {
		forceKF = true
	}
	forceKFInt := int32(0)
	if forceKF {
		forceKFInt = 1
	}

	pts := f.Timestamp - e.sessionOrigin

	rc := nitrogenHWEncSubmit(e.session,
		uintptr(unsafe.Pointer(&f.Data[0][0])),
		uintptr(unsafe.Pointer(&f.Data[1][0])),
		uintptr(unsafe.Pointer(&f.Data[2][0])),
		int32(f.Stride[0]), int32(f.Stride[1]),
		pts, int64(pipeline.VideoTimeBase.Den), forceKFInt)

	switch rc {
	case hwencOK:
		return nil
	case hwencErrStalled:
		return nitroerr.New(nitroerr.KindStalled, "encode.video")
	default:
		return nitroerr.Wrap(nitroerr.KindInternalInvariant, "encode.video", hwencLastError())
	}
}

// RequestKeyframe implements Encoder.
func (e *HardwareEncoder) RequestKeyframe() {
	e.forceKF.Store(true)
	if e.session != 0 {
		nitrogenHWEncRequestKF(e.session)
	}
}

// Drain implements Encoder.
func (e *HardwareEncoder) Drain() ([]*pipeline.Packet, error) {
	return e.drainFn(nitrogenHWEncDrain)
}

// Flush implements Encoder.
func (e *HardwareEncoder) Flush() ([]*pipeline.Packet, error) {
	return e.drainFn(nitrogenHWEncFlush)
}

func (e *HardwareEncoder) drainFn(fn func(uint64, uintptr, int32, uintptr, uintptr, uintptr, uintptr) int32) ([]*pipeline.Packet, error) {
	if e.session == 0 {
		return nil, nil
	}
	var packets []*pipeline.Packet
	for {
		result := &hwencOutputResult{}
		rc := fn(e.session, uintptr(unsafe.Pointer(&e.outBuf[0])), e.outCap,
			uintptr(unsafe.Pointer(&result.Len)), uintptr(unsafe.Pointer(&result.PTS)),
			uintptr(unsafe.Pointer(&result.Duration)), uintptr(unsafe.Pointer(&result.Keyframe)))
		if rc != hwencOK || result.Len <= 0 {
			break
		}
		payload := make([]byte, result.Len)
		copy(payload, e.outBuf[:result.Len])
		packets = append(packets, pipeline.NewPacket(pipeline.MediaVideo, payload, result.PTS, result.Duration,
			pipeline.VideoTimeBase, result.Keyframe != 0))
	}
	return packets, nil
}

// Close implements Encoder. Idempotent.
func (e *HardwareEncoder) Close() error {
	if e.session != 0 {
		nitrogenHWEncDestroy(e.session)
		e.session = 0
	}
	return nil
}
