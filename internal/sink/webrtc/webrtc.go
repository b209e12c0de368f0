// Package webrtc implements the browser peer sink of spec.md §4.6: a single
// concurrent WebRTC viewer, signaled over plain HTTP, receiving H.264 video
// and Opus audio repackaged into RTP. Track and packetizer shape are adapted
// from the teacher's track.go LocalTrack/webrtc.TrackLocal wiring and
// packetizer_opus.go's pion/rtp/codecs payloader pattern; the offer/answer
// exchange is inverted from the teacher's example (there the browser offers
// and the server answers) because spec.md has the server originate the offer.
package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	pionwebrtc "github.com/pion/webrtc/v4"

	"github.com/nitrogen-cast/nitrogen/internal/logging"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
)

// DefaultMTU bounds one RTP payload, mirroring the teacher packetizers' default.
const DefaultMTU = 1200

// Config configures the browser peer sink.
type Config struct {
	Port       int
	ICEServers []string
}

// peerSession holds the one live connection's state. A new offer while the
// current session's peer is connected is rejected with 409; an offer made
// while an earlier session is in any other state replaces that session.
type peerSession struct {
	pc          *pionwebrtc.PeerConnection
	videoTrack  *pionwebrtc.TrackLocalStaticRTP
	audioTrack  *pionwebrtc.TrackLocalStaticRTP
	videoPacker *codecs.H264Payloader
	audioPacker *codecs.OpusPayloader
	videoSeq    rtp.Sequencer
	audioSeq    rtp.Sequencer
	state       atomic.Value // pionwebrtc.PeerConnectionState
}

// Sink implements sink.Sink, serving one browser viewer over HTTP signaling.
type Sink struct {
	cfg Config

	status  atomic.Int32
	lastErr atomic.Value
	dropped atomic.Uint64

	mu      sync.Mutex
	session *peerSession
	cancel  context.CancelFunc
	done    chan struct{}
	server  *http.Server
}

// New constructs a browser peer Sink.
func New(cfg Config) *Sink {
	return &Sink{cfg: cfg}
}

func (s *Sink) Kind() pipeline.SinkKind { return pipeline.SinkWebRTC }
func (s *Sink) Status() sink.Status     { return sink.Status(s.status.Load()) }
func (s *Sink) DroppedCount() uint64    { return s.dropped.Load() }

func (s *Sink) LastError() error {
	if v := s.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Handler returns the HTTP handler exposing GET /offer, POST /answer, and
// GET /status, so the controller can mount it on its own listener or serve
// it standalone via Start.
func (s *Sink) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/offer", s.handleOffer)
	mux.HandleFunc("/answer", s.handleAnswer)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start implements sink.Sink: it launches the HTTP signaling server and the
// packet-forwarding loop that feeds whatever peer session is currently live.
func (s *Sink) Start(ctx context.Context, video, audio <-chan *pipeline.Packet) error {
	s.status.Store(int32(sink.StatusStarting))
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.server = &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Port), Handler: s.Handler()}
	s.mu.Unlock()

	log := logging.For(logging.Sink).With("sink", "webrtc", "port", s.cfg.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wrapped := nitroerr.Wrap(nitroerr.KindSignalingError, "sink.webrtc", err)
			s.lastErr.Store(error(wrapped))
			s.status.Store(int32(sink.StatusFailed))
			log.Error("signaling server failed", "error", wrapped)
		}
	}()

	s.status.Store(int32(sink.StatusRunning))
	go s.run(runCtx, video, audio, log)
	return nil
}

func (s *Sink) run(ctx context.Context, video, audio <-chan *pipeline.Packet, log interface {
	Error(string, ...any)
	Warn(string, ...any)
}) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-video:
			if !ok {
				video = nil
			} else {
				s.forward(pkt, log)
			}
		case pkt, ok := <-audio:
			if !ok {
				audio = nil
			} else {
				s.forward(pkt, log)
			}
		}
		if video == nil && audio == nil {
			return
		}
	}
}

// forward packetizes pkt onto the live session's matching track, dropping it
// if there is no connected peer (spec.md §3: sink failure/absence never
// blocks the fan-out).
func (s *Sink) forward(pkt *pipeline.Packet, log interface {
	Error(string, ...any)
	Warn(string, ...any)
}) {
	defer pkt.Release()

	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil || session.connectionState() != pionwebrtc.PeerConnectionStateConnected {
		s.dropped.Add(1)
		return
	}

	var track *pionwebrtc.TrackLocalStaticRTP
	var payloads [][]byte
	ts := uint32(pkt.PTS)

	if pkt.Kind == pipeline.MediaVideo {
		track = session.videoTrack
		payloads = session.videoPacker.Payload(uint16(DefaultMTU-12), pkt.Payload)
	} else {
		track = session.audioTrack
		payloads = session.audioPacker.Payload(uint16(DefaultMTU-12), pkt.Payload)
	}
	if track == nil || len(payloads) == 0 {
		s.dropped.Add(1)
		return
	}

	for i, payload := range payloads {
		seq := session.videoSeq
		if pkt.Kind == pipeline.MediaAudio {
			seq = session.audioSeq
		}
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				SequenceNumber: seq.NextSequenceNumber(),
				Timestamp:      ts,
			},
			Payload: payload,
		}
		if err := track.WriteRTP(packet); err != nil {
			log.Warn("webrtc track write failed", "error", err)
			s.dropped.Add(1)
		}
	}
}

func (s *peerSession) connectionState() pionwebrtc.PeerConnectionState {
	if v, ok := s.state.Load().(pionwebrtc.PeerConnectionState); ok {
		return v
	}
	return pionwebrtc.PeerConnectionStateNew
}

// handleOffer creates a fresh peer session (rejecting a second concurrent
// one with 409), adds H.264/Opus local tracks, and returns the server's own
// SDP offer for the browser to answer.
func (s *Sink) handleOffer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.session != nil && s.session.connectionState() == pionwebrtc.PeerConnectionStateConnected {
		s.mu.Unlock()
		http.Error(w, "a peer is already connected", http.StatusConflict)
		return
	}
	s.mu.Unlock()

	iceServers := make([]pionwebrtc.ICEServer, 0, len(s.cfg.ICEServers))
	for _, u := range s.cfg.ICEServers {
		iceServers = append(iceServers, pionwebrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := pionwebrtc.NewPeerConnection(pionwebrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	videoTrack, err := pionwebrtc.NewTrackLocalStaticRTP(
		pionwebrtc.RTPCodecCapability{MimeType: pionwebrtc.MimeTypeH264, ClockRate: 90000}, "video", "nitrogen")
	if err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	audioTrack, err := pionwebrtc.NewTrackLocalStaticRTP(
		pionwebrtc.RTPCodecCapability{MimeType: pionwebrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", "nitrogen")
	if err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	session := &peerSession{
		pc:          pc,
		videoTrack:  videoTrack,
		audioTrack:  audioTrack,
		videoPacker: &codecs.H264Payloader{},
		audioPacker: &codecs.OpusPayloader{},
		videoSeq:    rtp.NewRandomSequencer(),
		audioSeq:    rtp.NewRandomSequencer(),
	}
	session.state.Store(pionwebrtc.PeerConnectionStateNew)

	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		session.state.Store(state)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	gatherComplete := pionwebrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	s.mu.Lock()
	if s.session != nil {
		s.session.pc.Close()
	}
	s.session = session
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sdp": pc.LocalDescription().SDP})
}

// handleAnswer accepts the browser's SDP answer for the session handleOffer
// created.
func (s *Sink) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SDP string `json:"sdp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		http.Error(w, "no pending offer", http.StatusBadRequest)
		return
	}

	answer := pionwebrtc.SessionDescription{Type: pionwebrtc.SDPTypeAnswer, SDP: body.SDP}
	if err := session.pc.SetRemoteDescription(answer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Sink) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	state := "no-peer"
	if session != nil {
		state = session.connectionState().String()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"state":   state,
		"dropped": s.dropped.Load(),
	})
}

// Stop implements sink.Sink. Idempotent.
func (s *Sink) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	server := s.server
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if session != nil {
		session.pc.Close()
	}
	if server != nil {
		server.Close()
	}
	if s.status.Load() != int32(sink.StatusFailed) {
		s.status.Store(int32(sink.StatusStopped))
	}
	return nil
}
