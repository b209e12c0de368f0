//go:build !((darwin || linux) && !noaac)

package audio

import (
	"errors"

	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// AACEncoder stub for platforms without a purego-loadable libstream_aac.
type AACEncoder struct{}

func NewAACEncoder() *AACEncoder { return &AACEncoder{} }
func (e *AACEncoder) Configure(codec pipeline.AudioCodec, sampleRate, channels, bitrateKbps int) error {
	return errors.New("aac encoder unavailable on this platform")
}
func (e *AACEncoder) Submit(pcm []float32, timestamp, sessionOrigin int64, sampleRate int) (*pipeline.Packet, error) {
	return nil, errors.New("aac encoder unavailable on this platform")
}
func (e *AACEncoder) Flush() ([]*pipeline.Packet, error) { return nil, nil }
func (e *AACEncoder) Close() error                       { return nil }
