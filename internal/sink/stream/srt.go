package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	srt "github.com/datarhei/gosrt"
)

// srtTransport pushes coded packets over SRT behind a small custom header (see send), grounded
// on the teacher pack's SRT server (datarhei-core/srt) but used here as a
// caller of srt.Dial rather than srt.Server — the network streamer is an SRT
// caller pushing into a remote listener's stream id, the mirror image of the
// ingest role that package plays.
type srtTransport struct {
	conn srt.Conn
}

func newSRTTransport() *srtTransport {
	return &srtTransport{}
}

func (t *srtTransport) Connect(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse srt endpoint: %w", err)
	}
	streamID := strings.TrimPrefix(u.Path, "/")
	if q := u.Query().Get("streamid"); q != "" {
		streamID = q
	}

	cfg := srt.DefaultConfig()
	cfg.StreamId = streamID
	cfg.ConnectionTimeout = 5 * time.Second

	conn, err := srt.Dial("srt", u.Host, cfg)
	if err != nil {
		return fmt.Errorf("dial srt endpoint: %w", err)
	}
	t.conn = conn
	return nil
}

// SendVideo/SendAudio write one unit per call: a 13-byte header (keyframe
// flag byte, big-endian PTS in nanoseconds, big-endian payload length)
// followed by the coded payload. This is not MPEG-TS framing; the remote
// ingest server is expected to understand it (spec.md §1 scopes out
// container muxers generally).
func (t *srtTransport) SendVideo(payload []byte, ptsNanos, durationNanos int64, keyframe bool) error {
	return t.send(payload, ptsNanos, keyframe)
}

func (t *srtTransport) SendAudio(payload []byte, ptsNanos, durationNanos int64) error {
	return t.send(payload, ptsNanos, false)
}

func (t *srtTransport) send(payload []byte, ptsNanos int64, keyframe bool) error {
	if t.conn == nil {
		return fmt.Errorf("srt: not connected")
	}
	header := make([]byte, 13)
	if keyframe {
		header[0] = 1
	}
	binary.BigEndian.PutUint64(header[1:9], uint64(ptsNanos))
	binary.BigEndian.PutUint32(header[9:13], uint32(len(payload)))

	if _, err := t.conn.Write(header); err != nil {
		return err
	}
	_, err := t.conn.Write(payload)
	return err
}

func (t *srtTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
