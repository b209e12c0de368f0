package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Defaults.Preset != "" {
		t.Fatalf("expected zero-value File, got %+v", f.Defaults)
	}
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[defaults]
preset = "balanced"
bitrate = 6000
low_latency = true

[camera]
name = "nitrogen-cam"

[webrtc]
enabled = true
port = 9100
ice_servers = ["stun:stun.l.google.com:19302"]
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Defaults.Preset != "balanced" || f.Defaults.Bitrate != 6000 || !f.Defaults.LowLatency {
		t.Fatalf("defaults section mismatch: %+v", f.Defaults)
	}
	if f.Camera.Name != "nitrogen-cam" {
		t.Fatalf("camera section mismatch: %+v", f.Camera)
	}
	if !f.WebRTC.Enabled || f.WebRTC.Port != 9100 || len(f.WebRTC.ICEServers) != 1 {
		t.Fatalf("webrtc section mismatch: %+v", f.WebRTC)
	}
}

func TestFlattenSkipsZeroFields(t *testing.T) {
	file := &File{}
	file.Defaults.Preset = "quality"
	file.Defaults.Bitrate = 8000

	m := flatten(file)
	if m["defaults.preset"] != "quality" || m["defaults.bitrate"] != 8000 {
		t.Fatalf("flatten produced unexpected map: %+v", m)
	}
	if _, ok := m["defaults.codec"]; ok {
		t.Fatalf("expected zero-value defaults.codec to be omitted, got %+v", m)
	}
}

type mergeTarget struct {
	Preset  string `toml:"defaults.preset"`
	Bitrate int    `toml:"defaults.bitrate"`
}

func TestMergeFillsFromFileWhenFlagUnset(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("preset", "", "")
	cmd.Flags().Int("bitrate", 0, "")

	opts := &mergeTarget{}
	file := &File{Defaults: DefaultsSection{Preset: "quality", Bitrate: 8000}}

	if err := Merge(opts, file, cmd); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if opts.Preset != "quality" || opts.Bitrate != 8000 {
		t.Fatalf("Merge did not fill from file: %+v", opts)
	}
}

func TestMergeLeavesChangedFlagAlone(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("preset", "", "")
	if err := cmd.Flags().Set("preset", "cli-value"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	opts := &mergeTarget{Preset: "cli-value"}
	file := &File{Defaults: DefaultsSection{Preset: "quality"}}

	if err := Merge(opts, file, cmd); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if opts.Preset != "cli-value" {
		t.Fatalf("Merge overwrote a CLI-set flag: got %q", opts.Preset)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	cases := map[string]string{
		"Preset":     "preset",
		"LowLatency": "low-latency",
		"GPU":        "g-p-u",
	}
	for in, want := range cases {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
