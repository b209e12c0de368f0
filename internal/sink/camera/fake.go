package camera

import "github.com/nitrogen-cast/nitrogen/internal/pipeline"

// FakeDevice is an in-memory Device for tests, recording frames instead of
// writing to a real loopback kernel facility.
type FakeDevice struct {
	Opened bool
	Frames []*pipeline.Frame
	Fail   bool
}

func (d *FakeDevice) Open(displayName string, width, height, fps int) error {
	if d.Fail {
		return errDeviceUnavailable{}
	}
	d.Opened = true
	return nil
}

func (d *FakeDevice) WriteFrame(f *pipeline.Frame) error {
	d.Frames = append(d.Frames, f)
	return nil
}

func (d *FakeDevice) Close() error {
	d.Opened = false
	return nil
}

type errDeviceUnavailable struct{}

func (errDeviceUnavailable) Error() string { return "fake device unavailable" }

// PassthroughDecoder treats the packet payload as already-raw I420 data for
// tests that don't need real decode semantics (a payload shorter than a full
// I420 frame at the configured dimensions yields a blank frame of that size).
type PassthroughDecoder struct {
	Width, Height int
}

func (d *PassthroughDecoder) Decode(pkt *pipeline.Packet) (*pipeline.Frame, error) {
	uvW, uvH := (d.Width+1)/2, (d.Height+1)/2
	ySize := d.Width * d.Height
	uvSize := uvW * uvH
	if len(pkt.Payload) < ySize+2*uvSize {
		// Synthesize a minimal frame so tests can still assert on cadence.
		return &pipeline.Frame{
			Width: d.Width, Height: d.Height, Format: pipeline.PixelFormatI420,
			Data:   [][]byte{make([]byte, ySize), make([]byte, uvSize), make([]byte, uvSize)},
			Stride: []int{d.Width, uvW, uvW},
		}, nil
	}
	return &pipeline.Frame{
		Width: d.Width, Height: d.Height, Format: pipeline.PixelFormatI420,
		Data: [][]byte{
			pkt.Payload[:ySize],
			pkt.Payload[ySize : ySize+uvSize],
			pkt.Payload[ySize+uvSize : ySize+2*uvSize],
		},
		Stride: []int{d.Width, uvW, uvW},
	}, nil
}

func (d *PassthroughDecoder) Close() error { return nil }
