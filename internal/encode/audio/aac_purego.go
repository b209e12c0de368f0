//go:build (darwin || linux) && !noaac

// AAC encode backend, following the same purego dlopen idiom as opus_purego.go
// for ambient-style consistency (an AAC library dlopen'd the same way as the
// video encoder).
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
	aacOnce    sync.Once
	aacHandle  uintptr
	aacInitErr error
	aacLoaded  bool
)

var (
	streamAACEncoderCreate  func(sampleRate, channels, bitrate int32) uint64
	streamAACEncoderEncode  func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamAACEncoderDestroy func(encoder uint64)
	streamAACGetError       func() uintptr
)

func initAAC() error {
	aacOnce.Do(func() {
		aacInitErr = loadAACLib()
		aacLoaded = aacInitErr == nil
	})
	return aacInitErr
}

func loadAACLib() error {
	var lastErr error
	for _, path := range aacLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		aacHandle = handle
		purego.RegisterLibFunc(&streamAACEncoderCreate, aacHandle, "stream_aac_encoder_create")
		purego.RegisterLibFunc(&streamAACEncoderEncode, aacHandle, "stream_aac_encoder_encode")
		purego.RegisterLibFunc(&streamAACEncoderDestroy, aacHandle, "stream_aac_encoder_destroy")
		purego.RegisterLibFunc(&streamAACGetError, aacHandle, "stream_aac_get_error")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_aac: %w", lastErr)
	}
	return errors.New("libstream_aac not found in any standard location")
}

func aacLibPaths() []string {
	libName := "libstream_aac.so"
	if runtime.GOOS == "darwin" {
		libName = "libstream_aac.dylib"
	}
	var paths []string
	if envPath := os.Getenv("STREAM_AAC_LIB_PATH"); envPath != "" {
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

// AACEncoder implements Encoder against libstream_aac.
type AACEncoder struct {
	handle     uint64
	channels   int
	outBuf     []byte
}

// NewAACEncoder constructs an unconfigured AACEncoder.
func NewAACEncoder() *AACEncoder { return &AACEncoder{outBuf: make([]byte, 4096)} }

func (e *AACEncoder) Configure(codec pipeline.AudioCodec, sampleRate, channels, bitrateKbps int) error {
	if err := validateConfig(sampleRate, channels, bitrateKbps); err != nil {
		return err
	}
	if err := initAAC(); err != nil || !aacLoaded {
		return fmt.Errorf("aac unavailable: %w", err)
	}
	handle := streamAACEncoderCreate(int32(sampleRate), int32(channels), int32(bitrateKbps*1000))
	if handle == 0 {
		return errors.New(aacErrorString())
	}
	if e.handle != 0 {
		streamAACEncoderDestroy(e.handle)
	}
	e.handle = handle
	e.channels = channels
	return nil
}

func aacErrorString() string {
	ptr := streamAACGetError()
	if ptr == 0 {
		return "unknown aac error"
	}
	return goStringFromPtr(ptr)
}

func (e *AACEncoder) Submit(pcm []float32, timestamp, sessionOrigin int64, sampleRate int) (*pipeline.Packet, error) {
	if e.handle == 0 || len(pcm) == 0 {
		return nil, nil
	}
	frameSize := len(pcm) / e.channels
	n := streamAACEncoderEncode(e.handle, uintptr(unsafe.Pointer(&pcm[0])), int32(frameSize),
		uintptr(unsafe.Pointer(&e.outBuf[0])), int32(len(e.outBuf)))
	if n <= 0 {
		return nil, nil
	}
	payload := make([]byte, n)
	copy(payload, e.outBuf[:n])
	tb := pipeline.AudioTimeBase(sampleRate)
	pts := tb.FromNanos(timestamp - sessionOrigin)
	return pipeline.NewPacket(pipeline.MediaAudio, payload, pts, int64(frameSize), tb, false), nil
}

func (e *AACEncoder) Flush() ([]*pipeline.Packet, error) { return nil, nil }

func (e *AACEncoder) Close() error {
	if e.handle != 0 {
		streamAACEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}
