package controller

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/nitrogen-cast/nitrogen/internal/capture"
	"github.com/nitrogen-cast/nitrogen/internal/encode/audio"
	"github.com/nitrogen-cast/nitrogen/internal/encode/video"
	"github.com/nitrogen-cast/nitrogen/internal/fanout"
	"github.com/nitrogen-cast/nitrogen/internal/logging"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
	"github.com/nitrogen-cast/nitrogen/internal/sink"
	"github.com/nitrogen-cast/nitrogen/internal/transform"
)

// defaultFanoutCapacity is the per-subscriber queue depth sinks get unless a
// sink asks for a different one (spec.md §4.5: "per-sink queue capacities
// are independent").
const defaultFanoutCapacity = 8

// Dependencies are the external collaborators the controller drives but
// does not construct itself, so tests can supply fakes for every one
// (spec.md §1's external collaborators: the portal, the hardware SDK, the
// sinks' underlying devices/files/sockets).
type Dependencies struct {
	NewPortalSession func(pipeline.SourceDescriptor) (capture.PortalSession, error)
	NewVideoEncoder  func(sessionOrigin int64) video.Encoder
	NewAudioEncoder  func(codec pipeline.AudioCodec) audio.Encoder
	NewSink          func(params pipeline.SinkParams) (sink.Sink, error)
}

type sinkHandle struct {
	params   pipeline.SinkParams
	instance sink.Sink
	videoSub fanout.SubscriptionID
	audioSub fanout.SubscriptionID
}

// session holds everything that exists only between Start and Stop.
type session struct {
	cfg pipeline.CaptureConfig

	portal capture.PortalSession
	source *capture.Source

	chain        *transform.Chain
	interp       *transform.Interpolator
	videoEncoder video.Encoder
	audioEncoder audio.Encoder
	mixer        *audio.Mixer
	chunker      *audio.Chunker

	videoFanout *fanout.Fanout
	audioFanout *fanout.Fanout
	sinks       []*sinkHandle

	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessionOrigin int64
	keyframeOnce  sync.Once
	paused        bool

	// pendingDesktop/pendingMic hold the most recently observed chunk from
	// each tagged audio stream, so AudioSourceBoth can mix real desktop and
	// mic buffers even though they arrive as separate AudioFrame events
	// (spec.md §4.4).
	pendingDesktop []float32
	pendingMic     []float32
}

// Controller owns the session lifecycle state machine of spec.md §4.7. All
// cross-cutting references run through Bus events; no stage or sink ever
// holds a pointer back to the Controller (spec.md §9).
type Controller struct {
	deps   Dependencies
	bus    *Bus
	state  pipeline.AtomicState
	status *statusPublisher

	mu   sync.Mutex
	sess *session
}

// New constructs an idle Controller.
func New(deps Dependencies) *Controller {
	c := &Controller{deps: deps, bus: NewBus(), status: newStatusPublisher()}
	c.state.Store(pipeline.StateIdle, 0)
	c.bus.Subscribe(func(e SourceLostEvent) { c.handleSourceLost(e) })
	c.bus.Subscribe(func(e SinkFailedEvent) {
		logging.For(logging.Controller).Warn("sink failed", "sink", e.Sink, "error", e.Err)
		if fatalKind(nitroerr.KindOf(e.Err)) {
			c.Stop()
		}
	})
	return c
}

// Bus exposes the event bus so the hotkey reader and IPC server can publish
// operator commands without importing the controller's internals.
func (c *Controller) Bus() *Bus { return c.bus }

// Status returns the current status snapshot.
func (c *Controller) Status() *Snapshot { return c.status.Load() }

// State returns the current session state.
func (c *Controller) State() pipeline.SessionState {
	s, _ := c.state.Load()
	return s
}

// Start brings up a new session per cfg. It blocks until the session reaches
// Running or the start attempt fails/rolls back, per spec.md §4.7.
func (c *Controller) Start(ctx context.Context, cfg pipeline.CaptureConfig) error {
	c.mu.Lock()
	if s, _ := c.state.Load(); s != pipeline.StateIdle {
		c.mu.Unlock()
		return invalidParam("a session is already running")
	}
	c.state.Store(pipeline.StateStarting, 0)
	c.mu.Unlock()

	timeout := cfg.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := c.bringUp(startCtx, cfg)
	if err != nil {
		c.state.Store(pipeline.StateIdle, 0)
		return err
	}

	if err := c.awaitFirstKeyframe(startCtx, sess); err != nil {
		c.rollback(sess)
		c.state.Store(pipeline.StateIdle, 0)
		return err
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.state.Store(pipeline.StateRunning, 0)
	c.publishStatus(sess)
	return nil
}

// bringUp configures and starts each stage in order (source → encoders →
// sinks), rolling back whatever already started on any failure.
func (c *Controller) bringUp(ctx context.Context, cfg pipeline.CaptureConfig) (sess *session, err error) {
	sess = &session{cfg: cfg, sessionOrigin: time.Now().UnixNano()}

	portal, err := c.deps.NewPortalSession(cfg.Source)
	if err != nil {
		return nil, err
	}
	sess.portal = portal
	sess.source = capture.New(portal)

	if err := sess.source.Open(ctx, cfg.Source, sess.sessionOrigin); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			sess.source.Close()
		}
	}()

	sess.interp = transform.NewInterpolator(cfg.Interp)
	sess.chain = transform.NewChain(
		transform.NewTonemap(cfg.HDR, cfg.HDRAlgorithm, cfg.PeakNits),
		transform.NewScaler(cfg.TargetWidth, cfg.TargetHeight),
		sess.interp,
	)

	sess.videoEncoder = c.deps.NewVideoEncoder(sess.sessionOrigin)
	if err = sess.videoEncoder.Configure(video.Params{
		Codec: cfg.Codec, Width: cfg.TargetWidth, Height: cfg.TargetHeight,
		FPS: cfg.TargetFPS, BitrateKbps: cfg.BitrateKbps, Quality: cfg.Quality, LowLatency: cfg.LowLatency,
	}); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			sess.videoEncoder.Close()
		}
	}()

	if cfg.AudioSource != pipeline.AudioSourceNone {
		sess.audioEncoder = c.deps.NewAudioEncoder(cfg.AudioCodec)
		sampleRate := 48000
		if err = sess.audioEncoder.Configure(cfg.AudioCodec, sampleRate, 2, cfg.AudioBitrateKbps); err != nil {
			return nil, err
		}
		sess.mixer = audio.NewMixer(cfg.DesktopVolume, cfg.MicVolume, cfg.AudioDucking, sampleRate)
		sess.chunker = audio.NewChunker(2, audio.FrameSize(cfg.AudioCodec, sampleRate))
		defer func() {
			if err != nil {
				sess.audioEncoder.Close()
			}
		}()
	}

	sess.videoFanout = fanout.New(defaultFanoutCapacity)
	sess.audioFanout = fanout.New(defaultFanoutCapacity)

	// Sinks and every pipeline loop run for the session's full lifetime, so
	// they're handed runCtx (cancelled only by Stop/rollback), never the
	// start-sequence's own timeout-bound ctx.
	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	defer func() {
		if err != nil {
			cancel()
		}
	}()

	if err = c.startSinks(runCtx, sess); err != nil {
		return nil, err
	}

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		if rerr := sess.source.Run(runCtx); rerr != nil {
			c.bus.Publish(SourceLostEvent{Err: rerr})
		}
	}()

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		c.videoLoop(runCtx, sess)
	}()

	if sess.audioEncoder != nil {
		sess.wg.Add(1)
		go func() {
			defer sess.wg.Done()
			c.audioLoop(runCtx, sess)
		}()
	}

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		c.statusLoop(runCtx, sess)
	}()

	return sess, nil
}

// statusLoop periodically republishes the status snapshot so Status() never
// goes stale while a session is live (spec.md §4.7/§5's lock-free snapshot).
func (c *Controller) statusLoop(ctx context.Context, sess *session) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishStatus(sess)
		}
	}
}

// publishStatus gathers the current per-sink state and drop counters and
// swaps in a fresh Snapshot.
func (c *Controller) publishStatus(sess *session) {
	state, _ := c.state.Load()
	sinks := make([]SinkStatus, 0, len(sess.sinks))
	for _, h := range sess.sinks {
		lastErr := ""
		if e := h.instance.LastError(); e != nil {
			lastErr = e.Error()
		}
		sinks = append(sinks, SinkStatus{
			Kind:      h.instance.Kind(),
			Status:    h.instance.Status().String(),
			Dropped:   h.instance.DroppedCount(),
			LastError: lastErr,
		})
	}
	videoStats := sess.source.Stats()
	c.status.publish(state, sess.cfg.TargetFPS, videoStats.VideoDropped.Load(), videoStats.AudioDropped.Load(), sinks)
}

// startSinks constructs and starts each configured sink, subscribing it to
// both fanouts; on any failure it stops what has already started, in
// reverse order, and aggregates the failures (spec.md §4.7 rollback).
func (c *Controller) startSinks(ctx context.Context, sess *session) error {
	for _, params := range sess.cfg.Sinks {
		inst, err := c.deps.NewSink(params)
		if err != nil {
			c.rollbackSinks(sess)
			return err
		}
		videoSub, videoCh := sess.videoFanout.Subscribe()
		audioSub, audioCh := sess.audioFanout.Subscribe()

		if err := inst.Start(ctx, videoCh, audioCh); err != nil {
			sess.videoFanout.Unsubscribe(videoSub)
			sess.audioFanout.Unsubscribe(audioSub)
			c.rollbackSinks(sess)
			return err
		}
		sess.sinks = append(sess.sinks, &sinkHandle{params: params, instance: inst, videoSub: videoSub, audioSub: audioSub})
	}
	return nil
}

func (c *Controller) rollbackSinks(sess *session) {
	for i := len(sess.sinks) - 1; i >= 0; i-- {
		h := sess.sinks[i]
		h.instance.Stop()
		sess.videoFanout.Unsubscribe(h.videoSub)
		sess.audioFanout.Unsubscribe(h.audioSub)
	}
	sess.sinks = nil
}

// rollback tears down every stage of a failed-to-fully-start session, in
// reverse start order, aggregating any stop errors with go-multierror
// (spec.md §4.7: "rolls back already-started stages (reverse order)").
func (c *Controller) rollback(sess *session) error {
	var result *multierror.Error
	if sess.cancel != nil {
		sess.cancel()
	}
	sess.wg.Wait()

	c.rollbackSinks(sess)
	if sess.videoFanout != nil {
		sess.videoFanout.Close()
	}
	if sess.audioFanout != nil {
		sess.audioFanout.Close()
	}
	if sess.audioEncoder != nil {
		if err := sess.audioEncoder.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if sess.videoEncoder != nil {
		if err := sess.videoEncoder.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if sess.source != nil {
		if err := sess.source.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// awaitFirstKeyframe blocks until a KeyframeDeliveredEvent fires or ctx's
// start timeout elapses (spec.md §4.7: "Starting → Running once the first
// keyframe has reached at least one sink successfully").
func (c *Controller) awaitFirstKeyframe(ctx context.Context, sess *session) error {
	done := make(chan struct{})
	unsub := c.bus.Subscribe(func(e KeyframeDeliveredEvent) {
		select {
		case <-done:
		default:
			close(done)
		}
	})
	defer unsub()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nitroerr.WithDetail(nitroerr.KindTimeout, "controller", "start", ctx.Err())
	}
}

// videoLoop runs raw frames through the transform chain, submits them to the
// hardware encoder, drains coded packets, and publishes them to the video
// fan-out, all on one goroutine pair per spec.md §9 ("the encoder session
// must be driven from a single thread").
func (c *Controller) videoLoop(ctx context.Context, sess *session) {
	log := logging.For(logging.Controller)
	keyframeInterval := sess.cfg.KeyframeInterval()
	framesSinceKey := 0

	drainTicker := time.NewTicker(time.Second / time.Duration(maxInt(sess.cfg.TargetFPS, 1)))
	defer drainTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drainAndPublish(sess, log)
			return
		case f, ok := <-sess.source.Video():
			if !ok {
				return
			}
			if sess.paused {
				continue
			}
			outs, err := sess.chain.Process(f)
			if err != nil {
				log.Error("transform chain error", "error", err)
				continue
			}
			if sess.interp != nil && sess.interp.SceneChange {
				sess.videoEncoder.RequestKeyframe()
				framesSinceKey = 0
			}
			for _, out := range outs {
				framesSinceKey++
				if framesSinceKey >= keyframeInterval {
					sess.videoEncoder.RequestKeyframe()
					framesSinceKey = 0
				}
				submittedAt := time.Now()
				if err := sess.videoEncoder.Submit(out); err != nil {
					if nitroerr.Is(err, nitroerr.KindStalled) {
						continue
					}
					log.Error("video encoder fatal error", "error", err)
					c.bus.Publish(SourceLostEvent{Err: err})
					return
				}
				c.status.observeEncodeLatency(time.Since(submittedAt))
				c.status.observeFrame()
			}
			c.drainAndPublish(sess, log)
		case <-drainTicker.C:
			c.drainAndPublish(sess, log)
		}
	}
}

func (c *Controller) drainAndPublish(sess *session, log interface{ Error(string, ...any) }) {
	packets, err := sess.videoEncoder.Drain()
	if err != nil {
		log.Error("video encoder drain error", "error", err)
		return
	}
	for _, pkt := range packets {
		c.status.observeBitrate(len(pkt.Payload))
		if pkt.Keyframe {
			sess.keyframeOnce.Do(func() {
				c.bus.Publish(KeyframeDeliveredEvent{SinkCount: len(sess.sinks)})
			})
		}
		sess.videoFanout.Publish(pkt)
	}
}

// audioLoop mixes desktop/mic PCM, re-chunks to the encoder's fixed frame
// size, and publishes coded packets to the audio fan-out.
func (c *Controller) audioLoop(ctx context.Context, sess *session) {
	log := logging.For(logging.Controller)
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-sess.source.Audio():
			if !ok {
				return
			}
			if sess.paused {
				continue
			}
			samples := audio.ToFloat32(a)
			if a.Source == pipeline.AudioStreamMic {
				sess.pendingMic = samples
			} else {
				sess.pendingDesktop = samples
			}

			var desktop, mic []float32
			switch sess.cfg.AudioSource {
			case pipeline.AudioSourceMic:
				mic = sess.pendingMic
			case pipeline.AudioSourceBoth:
				desktop = sess.pendingDesktop
				mic = sess.pendingMic
			default:
				desktop = sess.pendingDesktop
			}
			mixed := sess.mixer.Mix(desktop, mic)
			for _, chunk := range sess.chunker.Push(mixed) {
				pkt, err := sess.audioEncoder.Submit(chunk, time.Now().UnixNano(), sess.sessionOrigin, 48000)
				if err != nil {
					log.Error("audio encoder error", "error", err)
					continue
				}
				if pkt != nil {
					sess.audioFanout.Publish(pkt)
				}
			}
		}
	}
}

// handleSourceLost reacts to a SourceLostEvent by driving the any → Stopping
// → Idle transition through Stop.
func (c *Controller) handleSourceLost(e SourceLostEvent) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	logging.For(logging.Controller).Error("capture source lost, stopping session", "error", e.Err)
	c.Stop()
}

// Stop implements the any → Stopping → Idle transition: cooperative
// signal to every stage, a bounded join per spec.md §5 ("2s" per stage),
// then encoder flush and sink stop. Idempotent. The session always ends in
// Idle, also when the stop was triggered by source loss or a fatal sink
// error; Stop never stores Failed.
func (c *Controller) Stop() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	c.state.Store(pipeline.StateStopping, 0)
	log := logging.For(logging.Controller)

	stopTimeout := sess.cfg.StageStopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 2 * time.Second
	}

	if sess.cancel != nil {
		sess.cancel()
	}
	if !joinWithTimeout(&sess.wg, stopTimeout) {
		log.Error("capture/encode goroutines did not exit within stop timeout, abandoning")
	}

	if sess.videoEncoder != nil {
		if packets, err := sess.videoEncoder.Flush(); err == nil {
			for _, pkt := range packets {
				sess.videoFanout.Publish(pkt)
			}
		}
	}
	if sess.audioEncoder != nil {
		if packets, err := sess.audioEncoder.Flush(); err == nil {
			for _, pkt := range packets {
				sess.audioFanout.Publish(pkt)
			}
		}
	}

	var result *multierror.Error
	for _, h := range sess.sinks {
		if err := h.instance.Stop(); err != nil {
			result = multierror.Append(result, err)
		}
		sess.videoFanout.Unsubscribe(h.videoSub)
		sess.audioFanout.Unsubscribe(h.audioSub)
	}
	sess.videoFanout.Close()
	sess.audioFanout.Close()

	if sess.audioEncoder != nil {
		sess.audioEncoder.Close()
	}
	if sess.videoEncoder != nil {
		sess.videoEncoder.Close()
	}
	if err := sess.source.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	c.state.Store(pipeline.StateIdle, 0)
	return result.ErrorOrNil()
}

// Pause mutes the capture source (frames dropped before entering the
// channel) and discards audio buffers; no further packets reach sinks
// (spec.md §4.7).
func (c *Controller) Pause() error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return invalidParam("no session is running")
	}
	if s, _ := c.state.Load(); s != pipeline.StateRunning {
		return invalidParam("session is not running")
	}
	sess.paused = true
	sess.source.SetMuted(true)
	c.state.Store(pipeline.StatePaused, 0)
	return nil
}

// Resume un-mutes the capture source and forces a keyframe on the next
// submitted frame (spec.md §4.7: "Resume emits a forced keyframe").
func (c *Controller) Resume() error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return invalidParam("no session is running")
	}
	if s, _ := c.state.Load(); s != pipeline.StatePaused {
		return invalidParam("session is not paused")
	}
	sess.source.SetMuted(false)
	sess.paused = false
	if sess.videoEncoder != nil {
		sess.videoEncoder.RequestKeyframe()
	}
	c.state.Store(pipeline.StateRunning, 0)
	return nil
}

// joinWithTimeout waits for wg with a bound, polling rather than blocking
// forever, and reports whether it completed in time.
func joinWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// invalidParam builds a KindInvalidParameters error carrying msg as its Detail.
func invalidParam(msg string) *nitroerr.Error {
	return &nitroerr.Error{Kind: nitroerr.KindInvalidParameters, Stage: "controller", Detail: msg}
}
