//go:build (darwin || linux) && !noopus

// Opus encode backend, adapted from the teacher's opus_purego.go: a
// purego-loaded libstream_opus handle, dlopen'd across the same search-path
// precedence (env override, executable-relative, system paths).
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

var (
	opusOnce    sync.Once
	opusHandle  uintptr
	opusInitErr error
	opusLoaded  bool
)

var (
	streamOpusEncoderCreate      func(sampleRate, channels, application int32) uint64
	streamOpusEncoderEncodeFloat func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamOpusEncoderSetBitrate  func(encoder uint64, bitrate int32) int32
	streamOpusEncoderDestroy     func(encoder uint64)
	streamOpusGetError           func() uintptr
)

const (
	opusApplicationAudio = 2049
)

func initOpus() error {
	opusOnce.Do(func() {
		opusInitErr = loadOpusLib()
		opusLoaded = opusInitErr == nil
	})
	return opusInitErr
}

func loadOpusLib() error {
	var lastErr error
	for _, path := range opusLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		opusHandle = handle
		purego.RegisterLibFunc(&streamOpusEncoderCreate, opusHandle, "stream_opus_encoder_create")
		purego.RegisterLibFunc(&streamOpusEncoderEncodeFloat, opusHandle, "stream_opus_encoder_encode_float")
		purego.RegisterLibFunc(&streamOpusEncoderSetBitrate, opusHandle, "stream_opus_encoder_set_bitrate")
		purego.RegisterLibFunc(&streamOpusEncoderDestroy, opusHandle, "stream_opus_encoder_destroy")
		purego.RegisterLibFunc(&streamOpusGetError, opusHandle, "stream_opus_get_error")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_opus: %w", lastErr)
	}
	return errors.New("libstream_opus not found in any standard location")
}

func opusLibPaths() []string {
	libName := "libstream_opus.so"
	if runtime.GOOS == "darwin" {
		libName = "libstream_opus.dylib"
	}
	var paths []string
	if envPath := os.Getenv("STREAM_OPUS_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), libName))
	}
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, libName, "/usr/local/lib/"+libName, "/opt/homebrew/lib/"+libName)
	case "linux":
		paths = append(paths, libName, "/usr/local/lib/"+libName, "/usr/lib/"+libName)
	}
	return paths
}

// OpusEncoder implements Encoder against libstream_opus.
type OpusEncoder struct {
	handle      uint64
	sampleRate  int
	channels    int
	outBuf      []byte
}

// NewOpusEncoder constructs an unconfigured OpusEncoder.
func NewOpusEncoder() *OpusEncoder { return &OpusEncoder{outBuf: make([]byte, 4096)} }

func (e *OpusEncoder) Configure(codec pipeline.AudioCodec, sampleRate, channels, bitrateKbps int) error {
	if err := validateConfig(sampleRate, channels, bitrateKbps); err != nil {
		return err
	}
	if err := initOpus(); err != nil || !opusLoaded {
		return fmt.Errorf("opus unavailable: %w", err)
	}
	handle := streamOpusEncoderCreate(int32(sampleRate), int32(channels), opusApplicationAudio)
	if handle == 0 {
		return errors.New(opusErrorString())
	}
	if e.handle != 0 {
		streamOpusEncoderDestroy(e.handle)
	}
	e.handle = handle
	e.sampleRate, e.channels = sampleRate, channels
	streamOpusEncoderSetBitrate(e.handle, int32(bitrateKbps*1000))
	return nil
}

func opusErrorString() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown opus error"
	}
	return goStringFromPtr(ptr)
}

func (e *OpusEncoder) Submit(pcm []float32, timestamp, sessionOrigin int64, sampleRate int) (*pipeline.Packet, error) {
	if e.handle == 0 || len(pcm) == 0 {
		return nil, nil
	}
	frameSize := len(pcm) / e.channels
	n := streamOpusEncoderEncodeFloat(e.handle, uintptr(unsafe.Pointer(&pcm[0])), int32(frameSize),
		uintptr(unsafe.Pointer(&e.outBuf[0])), int32(len(e.outBuf)))
	if n <= 0 {
		return nil, nil
	}
	payload := make([]byte, n)
	copy(payload, e.outBuf[:n])
	tb := pipeline.AudioTimeBase(sampleRate)
	pts := tb.FromNanos(timestamp - sessionOrigin)
	durationSamples := int64(frameSize)
	return pipeline.NewPacket(pipeline.MediaAudio, payload, pts, durationSamples, tb, false), nil
}

func (e *OpusEncoder) Flush() ([]*pipeline.Packet, error) { return nil, nil }

func (e *OpusEncoder) Close() error {
	if e.handle != 0 {
		streamOpusEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}
