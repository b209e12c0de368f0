package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	videoenc "github.com/nitrogen-cast/nitrogen/internal/encode/video"
	"github.com/nitrogen-cast/nitrogen/internal/nitroerr"
	"github.com/nitrogen-cast/nitrogen/internal/pipeline"
)

// newListSourcesCmd enumerates capturable sources. The real enumeration
// lives behind the desktop portal, a named external collaborator this repo
// doesn't implement (see internal/cli/deps.go's BuildDependencies doc); what
// this command can honestly report is the synthetic source
// internal/capture/testsource stands in with, plus the portal-prompt path
// that defers selection to the portal itself at cast time.
func newListSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-sources",
		Short: "List available capture sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "portal-prompt\tdefer selection to the desktop portal at cast time")
			fmt.Fprintln(cmd.OutOrStdout(), "test-pattern\tsynthetic 1280x720 source (no portal wired in this build)")
			return nil
		},
	}
}

// newInfoCmd reports host/GPU capability by actually exercising the
// hardware encoder's Configure path for each codec identity and reporting
// which ones it accepts, rather than printing a static capability table.
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print host and GPU capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, codec := range []pipeline.VideoCodec{pipeline.CodecH264, pipeline.CodecHEVC, pipeline.CodecAV1} {
				enc := videoenc.NewHardwareEncoder(0)
				err := enc.Configure(videoenc.Params{
					Codec: codec, Width: 1920, Height: 1080, FPS: 60,
					BitrateKbps: 8000, Quality: pipeline.QualityMedium,
				})
				enc.Close()
				if err == nil {
					fmt.Fprintf(out, "%s\tavailable\n", codec)
					continue
				}
				switch nitroerr.KindOf(err) {
				case nitroerr.KindHardwareUnavailable:
					fmt.Fprintf(out, "%s\tunavailable (no hardware encode session)\n", codec)
				case nitroerr.KindUnsupportedCodec:
					fmt.Fprintf(out, "%s\tunsupported\n", codec)
				default:
					fmt.Fprintf(out, "%s\tunavailable (%s)\n", codec, err)
				}
			}
			return nil
		},
	}
}
