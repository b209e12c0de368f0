package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/nitrogen-cast/nitrogen/internal/controller"
	"github.com/nitrogen-cast/nitrogen/internal/ipc"
)

// sendCommand dials the IPC socket, writes one newline-terminated command,
// and decodes the JSON response, matching internal/ipc.Server's wire format
// exactly (bufio line read, json.Encoder write).
func sendCommand(path, command string) (ipc.Response, error) {
	if path == "" {
		path = ipc.DefaultSocketPath()
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("cli: connecting to %s: %w", path, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, command); err != nil {
		return ipc.Response{}, fmt.Errorf("cli: sending command: %w", err)
	}

	var resp ipc.Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return ipc.Response{}, fmt.Errorf("cli: decoding response: %w", err)
	}
	return resp, nil
}

func runIPCCommand(cmd *cobra.Command, command string) error {
	sockPath, _ := cmd.Flags().GetString("socket")
	resp, err := sendCommand(sockPath, command)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	if resp.Snapshot != nil {
		printSnapshot(cmd, resp.Snapshot)
	}
	return nil
}

func printSnapshot(cmd *cobra.Command, snap *controller.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:          %s\n", snap.State)
	fmt.Fprintf(out, "fps:            %.1f / %d target\n", snap.CurrentFPS, snap.TargetFPS)
	fmt.Fprintf(out, "bitrate:        %.0f kbps\n", snap.BitrateKbps)
	fmt.Fprintf(out, "latency p50/p95: %.1fms / %.1fms\n", snap.LatencyP50Ms, snap.LatencyP95Ms)
	fmt.Fprintf(out, "dropped:        video=%d audio=%d\n", snap.VideoDropped, snap.AudioDropped)
	for _, sink := range snap.Sinks {
		fmt.Fprintf(out, "sink %s:\t%s\tdropped=%d", sink.Kind, sink.Status, sink.Dropped)
		if sink.LastError != "" {
			fmt.Fprintf(out, "\terror=%s", sink.LastError)
		}
		fmt.Fprintln(out)
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIPCCommand(cmd, "stop")
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the running session's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIPCCommand(cmd, "status")
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIPCCommand(cmd, "pause")
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIPCCommand(cmd, "resume")
		},
	}
}
