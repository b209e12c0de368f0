//go:build !linux

package camera

import (
	"errors"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// V4L2Loopback stub: the loopback kernel facility is Linux-only.
type V4L2Loopback struct{}

func NewV4L2Loopback() *V4L2Loopback { return &V4L2Loopback{} }

func (d *V4L2Loopback) Open(displayName string, width, height, fps int) error {
	return errors.New("v4l2loopback is only available on linux")
}
func (d *V4L2Loopback) WriteFrame(f *pipeline.Frame) error {
	return errors.New("v4l2loopback is only available on linux")
}
func (d *V4L2Loopback) Close() error { return nil }
