// Command nitrogen is the Wayland-native screen-sharing engine's CLI
// entrypoint: cast starts a session, list-sources/info are read-only
// queries, stop/status/pause/resume talk to a running session over its
// IPC socket.
package main

import (
	"fmt"
	"os"

	"github.com/nitrogen-cast/nitrogen/internal/cli"
)

func main() {
	root := cli.NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
