package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"
	"strings"
	"time"

	amf0 "github.com/yutopp/go-amf0"
)

// rtmpTransport pushes an RTMP publish to a remote server. The corpus's only
// RTMP usage (the example relay) runs the *server* role accepting an inbound
// publish; there is no demonstrated client/publisher helper to build on, so
// the handshake and chunk stream here are written directly against the RTMP
// wire format, reusing the same yutopp/go-amf0 command encoding the example
// relay's stack is built on. Response messages (_result, onStatus) are never
// read: this client always publishes as stream id 1 and assumes the server
// accepts, so Connect returns as soon as the publish command is written,
// without waiting for the server's reply.
type rtmpTransport struct {
	conn net.Conn

	chunkSize uint32
	tsOrigin  time.Time
}

func newRTMPTransport() *rtmpTransport {
	return &rtmpTransport{chunkSize: 128}
}

func (t *rtmpTransport) Connect(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse rtmp endpoint: %w", err)
	}

	app, streamKey := splitRTMPPath(u.Path)

	dialer := &net.Dialer{}
	var conn net.Conn
	if strings.EqualFold(u.Scheme, "rtmps") {
		port := u.Port()
		if port == "" {
			port = "443"
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", u.Hostname()+":"+port, &tls.Config{})
	} else {
		port := u.Port()
		if port == "" {
			port = "1935"
		}
		conn, err = dialer.DialContext(ctx, "tcp", u.Hostname()+":"+port)
	}
	if err != nil {
		return fmt.Errorf("dial rtmp endpoint: %w", err)
	}

	if err := rtmpHandshake(conn); err != nil {
		conn.Close()
		return fmt.Errorf("rtmp handshake: %w", err)
	}

	t.conn = conn
	t.tsOrigin = time.Now()

	tcURL := fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, app)
	if err := t.sendCommand(3, 0, 0, "connect", []any{map[string]any{
		"app":      app,
		"type":     "nonprivate",
		"flashVer": "Nitrogen/1.0",
		"tcUrl":    tcURL,
	}}); err != nil {
		conn.Close()
		return err
	}
	if err := t.sendCommand(3, 0, 0, "releaseStream", []any{nil, streamKey}); err != nil {
		conn.Close()
		return err
	}
	if err := t.sendCommand(3, 0, 0, "FCPublish", []any{nil, streamKey}); err != nil {
		conn.Close()
		return err
	}
	if err := t.sendCommand(3, 0, 0, "createStream", []any{nil}); err != nil {
		conn.Close()
		return err
	}
	if err := t.sendCommand(3, 1, 1, "publish", []any{nil, streamKey, "live"}); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func splitRTMPPath(p string) (app, streamKey string) {
	p = strings.TrimPrefix(p, "/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return p, ""
}

// rtmpHandshake performs the plain (unencrypted) RTMP handshake.
func rtmpHandshake(conn net.Conn) error {
	c1 := make([]byte, 1536)
	binary.BigEndian.PutUint32(c1[0:4], uint32(time.Now().UnixMilli()&0xffffffff))
	binary.BigEndian.PutUint32(c1[4:8], 0)
	if _, err := rand.Read(c1[8:]); err != nil {
		return err
	}

	if _, err := conn.Write([]byte{0x03}); err != nil {
		return err
	}
	if _, err := conn.Write(c1); err != nil {
		return err
	}

	s0s1s2 := make([]byte, 1+1536+1536)
	if _, err := io.ReadFull(conn, s0s1s2); err != nil {
		return err
	}
	s1 := s0s1s2[1 : 1+1536]

	c2 := append([]byte(nil), s1...)
	if _, err := conn.Write(c2); err != nil {
		return err
	}
	return nil
}

// sendCommand AMF0-encodes name/txnID/args and writes it as a chunked RTMP
// command message (type 20) on csID/streamID.
func (t *rtmpTransport) sendCommand(csID uint32, streamID uint32, txnID float64, name string, args []any) error {
	buf := new(bytes.Buffer)
	enc := amf0.NewEncoder(buf)
	if err := enc.Encode(name); err != nil {
		return err
	}
	if err := enc.Encode(txnID); err != nil {
		return err
	}
	for _, a := range args {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return t.writeChunked(csID, 20, 0, streamID, buf.Bytes())
}

func (t *rtmpTransport) SendVideo(payload []byte, ptsNanos, durationNanos int64, keyframe bool) error {
	body := make([]byte, 0, len(payload)+5)
	frameType := byte(2) // inter frame
	if keyframe {
		frameType = 1
	}
	body = append(body, (frameType<<4)|7) // codec id 7 = AVC
	body = append(body, 1, 0, 0, 0)        // AVCPacketType=1 (NALU), composition time 0
	body = append(body, payload...)
	return t.writeChunked(6, 9, t.timestamp(ptsNanos), 1, body)
}

func (t *rtmpTransport) SendAudio(payload []byte, ptsNanos, durationNanos int64) error {
	body := make([]byte, 0, len(payload)+2)
	// soundFormat=10 (AAC), rate=3 (44kHz flag, ignored by most servers for AAC),
	// size=1 (16-bit), type=1 (stereo); AACPacketType=1 (raw frame).
	body = append(body, (10<<4)|(3<<2)|(1<<1)|1)
	body = append(body, 1)
	body = append(body, payload...)
	return t.writeChunked(4, 8, t.timestamp(ptsNanos), 1, body)
}

func (t *rtmpTransport) timestamp(ptsNanos int64) uint32 {
	return uint32(time.Duration(ptsNanos).Milliseconds() & 0xffffffff)
}

// writeChunked splits payload into chunkSize-sized RTMP chunks, each prefixed
// by a basic header (fmt 0 for the first, fmt 3 for continuations).
func (t *rtmpTransport) writeChunked(csID uint32, typeID byte, timestamp, streamID uint32, payload []byte) error {
	if t.conn == nil {
		return errors.New("rtmp: not connected")
	}

	header := make([]byte, 0, 12)
	header = append(header, basicHeaderByte(0, csID))
	header = appendUint24BE(header, timestamp)
	header = appendUint24BE(header, uint32(len(payload)))
	header = append(header, typeID)
	header = append(header, byte(streamID), byte(streamID>>8), byte(streamID>>16), byte(streamID>>24))

	if _, err := t.conn.Write(header); err != nil {
		return err
	}

	remaining := payload
	first := true
	for len(remaining) > 0 {
		n := int(t.chunkSize)
		if n > len(remaining) {
			n = len(remaining)
		}
		if !first {
			if _, err := t.conn.Write([]byte{basicHeaderByte(3, csID)}); err != nil {
				return err
			}
		}
		if _, err := t.conn.Write(remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
		first = false
	}
	return nil
}

func basicHeaderByte(fmtBits byte, csID uint32) byte {
	return (fmtBits << 6) | byte(csID&0x3f)
}

func appendUint24BE(b []byte, v uint32) []byte {
	return append(b, byte(v>>16), byte(v>>8), byte(v))
}

func (t *rtmpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
