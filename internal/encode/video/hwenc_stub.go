//go:build !((darwin || linux) && !novideohw)

package video

import (
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// HardwareEncoder is a stub on platforms (or build configurations) without a
// purego-loadable vendor SDK. Configure always fails HardwareUnavailable,
// matching spec.md §7's propagation policy for a missing encoder.
type HardwareEncoder struct{}

// NewHardwareEncoder constructs the stub encoder.
func NewHardwareEncoder(sessionOrigin int64) *HardwareEncoder { return &HardwareEncoder{} }

func (e *HardwareEncoder) Configure(p Params) error {
	return nitroerr.New(nitroerr.KindHardwareUnavailable, "encode.video")
}
func (e *HardwareEncoder) Submit(f *pipeline.Frame) error {
	return nitroerr.New(nitroerr.KindHardwareUnavailable, "encode.video")
}
func (e *HardwareEncoder) Drain() ([]*pipeline.Packet, error) { return nil, nil }
func (e *HardwareEncoder) Flush() ([]*pipeline.Packet, error) { return nil, nil }
func (e *HardwareEncoder) RequestKeyframe()                   {}
func (e *HardwareEncoder) Close() error                       { return nil }
