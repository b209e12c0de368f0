package audio

import "github.com/nitrogen-cast/nitrogen/internal/pipeline"

// FakeEncoder is a software Encoder stand-in for tests, avoiding a
// dependency on a real Opus/AAC vendor library.
type FakeEncoder struct {
	channels int
}

// NewFakeEncoder constructs a FakeEncoder.
func NewFakeEncoder() *FakeEncoder { return &FakeEncoder{} }

func (e *FakeEncoder) Configure(codec pipeline.AudioCodec, sampleRate, channels, bitrateKbps int) error {
	if err := validateConfig(sampleRate, channels, bitrateKbps); err != nil {
		return err
	}
	e.channels = channels
	return nil
}

func (e *FakeEncoder) Submit(pcm []float32, timestamp, sessionOrigin int64, sampleRate int) (*pipeline.Packet, error) {
	if len(pcm) == 0 {
		return nil, nil
	}
	frameSize := len(pcm) / maxInt(e.channels, 1)
	payload := make([]byte, 8)
	for i, s := range pcm[:minInt(8, len(pcm))] {
		payload[i] = byte(int32(s * 127))
	}
	tb := pipeline.AudioTimeBase(sampleRate)
	pts := tb.FromNanos(timestamp - sessionOrigin)
	return pipeline.NewPacket(pipeline.MediaAudio, payload, pts, int64(frameSize), tb, false), nil
}

func (e *FakeEncoder) Flush() ([]*pipeline.Packet, error) { return nil, nil }
func (e *FakeEncoder) Close() error                       { return nil }
