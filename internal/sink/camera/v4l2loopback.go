//go:build linux

// V4L2Loopback device, adapted from the teacher's devices_linux_purego.go
// V4L2 dlopen pattern (library discovery, RegisterLibFunc symbol table) but
// driving the loopback *output* path rather than enumerating camera inputs.
package camera

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

var (
	v4l2LoopbackOnce    sync.Once
	v4l2LoopbackHandle  uintptr
	v4l2LoopbackInitErr error
	v4l2LoopbackLoaded  bool
)

var (
	nitrogenV4L2LoopbackOpen       func(displayName string, width, height, fps int32) uint64
	nitrogenV4L2LoopbackWriteFrame func(device uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride int32) int32
	nitrogenV4L2LoopbackClose      func(device uint64)
	nitrogenV4L2LoopbackGetError   func() uintptr
)

func initV4L2Loopback() error {
	v4l2LoopbackOnce.Do(func() {
		v4l2LoopbackInitErr = loadV4L2LoopbackLib()
		v4l2LoopbackLoaded = v4l2LoopbackInitErr == nil
	})
	return v4l2LoopbackInitErr
}

func loadV4L2LoopbackLib() error {
	paths := []string{"libnitrogen_v4l2loopback.so"}
	if envPath := os.Getenv("NITROGEN_V4L2LOOPBACK_LIB_PATH"); envPath != "" {
		paths = append([]string{envPath}, paths...)
	}
	paths = append(paths, "/usr/local/lib/libnitrogen_v4l2loopback.so", "/usr/lib/libnitrogen_v4l2loopback.so")

	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		v4l2LoopbackHandle = handle
		purego.RegisterLibFunc(&nitrogenV4L2LoopbackOpen, handle, "nitrogen_v4l2loopback_open")
		purego.RegisterLibFunc(&nitrogenV4L2LoopbackWriteFrame, handle, "nitrogen_v4l2loopback_write_frame")
		purego.RegisterLibFunc(&nitrogenV4L2LoopbackClose, handle, "nitrogen_v4l2loopback_close")
		purego.RegisterLibFunc(&nitrogenV4L2LoopbackGetError, handle, "nitrogen_v4l2loopback_get_error")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libnitrogen_v4l2loopback: %w", lastErr)
	}
	return errors.New("libnitrogen_v4l2loopback not found; is the v4l2loopback kernel module loaded?")
}

// V4L2Loopback implements Device against the Linux v4l2loopback kernel
// facility via a thin native shim.
type V4L2Loopback struct {
	handle uint64
}

// NewV4L2Loopback constructs an unopened V4L2Loopback device.
func NewV4L2Loopback() *V4L2Loopback { return &V4L2Loopback{} }

func (d *V4L2Loopback) Open(displayName string, width, height, fps int) error {
	if err := initV4L2Loopback(); err != nil || !v4l2LoopbackLoaded {
		return fmt.Errorf("v4l2loopback unavailable: %w", err)
	}
	handle := nitrogenV4L2LoopbackOpen(displayName, int32(width), int32(height), int32(fps))
	if handle == 0 {
		return errors.New(v4l2LoopbackErrorString())
	}
	d.handle = handle
	return nil
}

func v4l2LoopbackErrorString() string {
	ptr := nitrogenV4L2LoopbackGetError()
	if ptr == 0 {
		return "unknown v4l2loopback error"
	}
	p := unsafe.Pointer(ptr)
	var length int
	for *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) != 0 && length < 1024 {
		length++
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// WriteFrame implements Device, pushing one I420 frame into the loopback
// device's buffer.
func (d *V4L2Loopback) WriteFrame(f *pipeline.Frame) error {
	if d.handle == 0 || len(f.Data) < 3 {
		return errors.New("v4l2loopback device not open")
	}
	for _, plane := range f.Data[:3] {
		if len(plane) == 0 {
			return errors.New("empty plane")
		}
	}
	rc := nitrogenV4L2LoopbackWriteFrame(d.handle,
		uintptr(unsafe.Pointer(&f.Data[0][0])),
		uintptr(unsafe.Pointer(&f.Data[1][0])),
		uintptr(unsafe.Pointer(&f.Data[2][0])),
		int32(f.Stride[0]), int32(f.Stride[1]))
	if rc != 0 {
		return errors.New(v4l2LoopbackErrorString())
	}
	return nil
}

func (d *V4L2Loopback) Close() error {
	if d.handle != 0 {
		nitrogenV4L2LoopbackClose(d.handle)
		d.handle = 0
	}
	return nil
}
