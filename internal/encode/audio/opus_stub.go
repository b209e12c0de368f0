//go:build !((darwin || linux) && !noopus)

package audio

import (
	"errors"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// OpusEncoder stub for platforms without a purego-loadable libstream_opus.
type OpusEncoder struct{}

func NewOpusEncoder() *OpusEncoder { return &OpusEncoder{} }
func (e *OpusEncoder) Configure(codec pipeline.AudioCodec, sampleRate, channels, bitrateKbps int) error {
	return errors.New("opus encoder unavailable on this platform")
}
func (e *OpusEncoder) Submit(pcm []float32, timestamp, sessionOrigin int64, sampleRate int) (*pipeline.Packet, error) {
	return nil, errors.New("opus encoder unavailable on this platform")
}
func (e *OpusEncoder) Flush() ([]*pipeline.Packet, error) { return nil, nil }
func (e *OpusEncoder) Close() error                       { return nil }
