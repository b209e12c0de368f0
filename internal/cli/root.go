package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the nitrogen command tree: cast, list-sources, info,
// stop, status, pause, resume — the subcommand list spec.md §6 names, plus
// pause/resume since the IPC surface accepts them alongside stop/status.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nitrogen",
		Short:         "Wayland-native screen-sharing engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().String("config", "", "path to config.toml (default: per-user config dir)")
	root.PersistentFlags().String("socket", "", "path to the IPC socket (default: per-user runtime dir)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")

	for _, cmd := range []*cobra.Command{
		newCastCmd(),
		newListSourcesCmd(),
		newInfoCmd(),
		newStopCmd(),
		newStatusCmd(),
		newPauseCmd(),
		newResumeCmd(),
	} {
		cmd.RunE = wrapExit(cmd.RunE)
		root.AddCommand(cmd)
	}

	return root
}
