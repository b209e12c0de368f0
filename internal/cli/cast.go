package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitrogen-cast/nitrogen/internal/config"
	"github.com/nitrogen-cast/nitrogen/internal/controller"
	"github.com/nitrogen-cast/nitrogen/internal/hotkey"
	"github.com/nitrogen-cast/nitrogen/internal/ipc"
	"github.com/nitrogen-cast/nitrogen/internal/logging"
	"github.com/nitrogen-cast/nitrogen/internal/metrics"
)

// newCastCmd builds the one subcommand that actually starts a session.
// Its Run closure follows smazurov-videonode/cmd/stream.go's shape: bind
// flags to local vars, merge config, build the runtime, block until told to
// stop, then os.Exit with ExitCode(err).
func newCastCmd() *cobra.Command {
	opts := DefaultOptions()
	var hotkeysEnabled bool
	var toggleKey, pauseKey, recordKey, overlayKey string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "cast",
		Short: "Start a capture session",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			if err := config.Merge(&opts, file, cmd); err != nil {
				return err
			}
			resolveGlobalFlags(cmd, &opts)

			logging.Initialize(logging.Config{Level: opts.LogLevel, Format: opts.LogFormat})

			cfg, err := BuildCaptureConfig(opts)
			if err != nil {
				return err
			}

			ctrl := controller.New(BuildDependencies())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := ctrl.Start(ctx, cfg); err != nil {
				return err
			}

			collector := metrics.NewCollector()
			ctrl.Bus().Subscribe(func(e controller.SinkFailedEvent) { collector.ObserveSinkFailure(e) })
			if metricsAddr != "" {
				go serveMetrics(metricsAddr, collector)
			}
			go pollStatus(ctrl, collector)

			if hotkeysEnabled {
				if _, err := hotkey.NewRegistry(ctrl.Bus(), toggleKey, pauseKey, recordKey, overlayKey); err != nil {
					return err
				}
				// The registry's Observe method is driven by a global-hotkey OS
				// hook; that hook is an external collaborator this repo doesn't
				// implement (see internal/hotkey's package doc), so no source
				// of Binding values exists here yet.
			}

			sockPath := opts.SocketPath
			if sockPath == "" {
				sockPath = ipc.DefaultSocketPath()
			}
			srv := ipc.New(sockPath, ctrl)
			go func() {
				if err := srv.Serve(); err != nil {
					logging.For(logging.CLI).Error("ipc server stopped", "error", err)
				}
			}()
			defer srv.Close()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			return ctrl.Stop()
		},
	}

	cmd.Flags().StringVar(&opts.Monitor, "monitor", opts.Monitor, "monitor id to capture")
	cmd.Flags().StringVar(&opts.Window, "window", opts.Window, "window id to capture")
	cmd.Flags().BoolVar(&opts.PortalPrompt, "portal-prompt", opts.PortalPrompt, "prompt the desktop portal for source selection")

	cmd.Flags().StringVar(&opts.Preset, "preset", opts.Preset, "resolution/fps preset")
	cmd.Flags().StringVar(&opts.Codec, "codec", opts.Codec, "video codec (h264, hevc, av1)")
	cmd.Flags().IntVar(&opts.Bitrate, "bitrate", opts.Bitrate, "video bitrate in kbps")
	cmd.Flags().BoolVar(&opts.LowLatency, "low-latency", opts.LowLatency, "favor latency over quality")
	cmd.Flags().StringVar(&opts.EncoderQuality, "quality", opts.EncoderQuality, "encoder effort (fast, medium, slow, quality)")
	cmd.Flags().StringVar(&opts.FrameGen, "frame-gen", opts.FrameGen, "frame interpolation mode (off, 2x, 3x, 4x, adaptive)")

	cmd.Flags().StringVar(&opts.AudioSource, "audio-source", opts.AudioSource, "audio source (none, desktop, mic, both)")
	cmd.Flags().StringVar(&opts.AudioCodec, "audio-codec", opts.AudioCodec, "audio codec (opus, aac)")
	cmd.Flags().IntVar(&opts.AudioBitrate, "audio-bitrate", opts.AudioBitrate, "audio bitrate in kbps")

	cmd.Flags().StringVar(&opts.HDRTonemap, "hdr", opts.HDRTonemap, "HDR tonemap mode (off, on, auto)")
	cmd.Flags().StringVar(&opts.HDRAlgorithm, "hdr-algorithm", opts.HDRAlgorithm, "tonemap algorithm (reinhard, aces, hable)")
	cmd.Flags().Float64Var(&opts.HDRPeakLuminance, "hdr-peak-nits", opts.HDRPeakLuminance, "HDR peak luminance in nits")

	cmd.Flags().BoolVar(&opts.EnableCamera, "sink-camera", opts.EnableCamera, "enable the virtual camera sink")
	cmd.Flags().StringVar(&opts.CameraName, "camera-name", opts.CameraName, "virtual camera device display name")

	cmd.Flags().BoolVar(&opts.EnableRecording, "sink-record", opts.EnableRecording, "enable the file recorder sink")
	cmd.Flags().StringVar(&opts.RecordingOutputDir, "record-dir", opts.RecordingOutputDir, "recording output directory")
	cmd.Flags().StringVar(&opts.RecordingFormat, "record-format", opts.RecordingFormat, "container format (mp4, mkv)")

	cmd.Flags().BoolVar(&opts.EnableStream, "sink-stream", opts.EnableStream, "enable the network stream sink")
	cmd.Flags().StringVar(&opts.StreamURL, "stream-url", opts.StreamURL, "stream endpoint URL (rtmp://, srt://)")

	cmd.Flags().BoolVar(&opts.WebRTCEnabled, "sink-webrtc", opts.WebRTCEnabled, "enable the WebRTC sink")
	cmd.Flags().IntVar(&opts.WebRTCPort, "webrtc-port", opts.WebRTCPort, "WebRTC signaling port")
	cmd.Flags().StringSliceVar(&opts.WebRTCICEServers, "webrtc-ice-server", opts.WebRTCICEServers, "ICE server URL (repeatable)")

	cmd.Flags().BoolVar(&hotkeysEnabled, "hotkeys", false, "enable global hotkeys")
	cmd.Flags().StringVar(&toggleKey, "hotkey-toggle", "ctrl+shift+r", "toggle start/stop chord")
	cmd.Flags().StringVar(&pauseKey, "hotkey-pause", "ctrl+shift+p", "pause/resume chord")
	cmd.Flags().StringVar(&recordKey, "hotkey-record", "ctrl+shift+o", "record-toggle chord")
	cmd.Flags().StringVar(&overlayKey, "hotkey-overlay", "ctrl+shift+h", "overlay-toggle chord")

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled if empty)")

	return cmd
}

// wrapExit turns a RunE's returned error into a process exit via ExitCode,
// matching spec.md §6's exit code table, instead of letting cobra print a
// generic usage error and exit 1 for everything.
func wrapExit(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		if code := ExitCode(err); code != 0 {
			os.Exit(code)
		}
		return nil
	}
}

func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return config.DefaultPath()
}

// resolveGlobalFlags fills opts.SocketPath/LogLevel/LogFormat from the
// persistent --socket/--log-level/--log-format flags, falling back to
// NITROGEN_LOG_LEVEL for the log level when the flag was left at its
// cobra-declared default. These three live outside the dotted toml/env
// struct tags config.Merge walks, since they describe the process itself
// rather than a capture session.
func resolveGlobalFlags(cmd *cobra.Command, opts *Options) {
	opts.SocketPath, _ = cmd.Flags().GetString("socket")
	opts.LogFormat, _ = cmd.Flags().GetString("log-format")

	opts.LogLevel, _ = cmd.Flags().GetString("log-level")
	if !cmd.Flags().Changed("log-level") {
		if v := os.Getenv(config.EnvLogLevel); v != "" {
			opts.LogLevel = v
		}
	}
}

func pollStatus(ctrl *controller.Controller, collector *metrics.Collector) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		collector.RecordSnapshot(ctrl.Status())
	}
}

func serveMetrics(addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.For(logging.CLI).Error("metrics server stopped", "error", err)
	}
}
