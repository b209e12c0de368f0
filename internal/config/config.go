// Package config loads the on-disk TOML configuration (spec.md §6) and
// merges it with CLI flags and environment variables, CLI taking precedence
// over env, env over file, file over built-in defaults. Merge mechanism is
// adapted from the teacher pack's smazurov-videonode/internal/config's
// reflection-driven LoadConfig: struct tags (`toml:`, `env:`) walked via
// reflect, skipping any field whose matching cobra flag was explicitly set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvConfigPath and EnvLogLevel are the environment variables spec.md §6
// names ("a variable to override the configuration file path; a variable to
// control log verbosity").
const (
	EnvConfigPath = "NITROGEN_CONFIG"
	EnvLogLevel   = "NITROGEN_LOG_LEVEL"
)

// DefaultsSection mirrors spec.md §6's "defaults" table row.
type DefaultsSection struct {
	Preset     string `toml:"preset"`
	Codec      string `toml:"codec"`
	Bitrate    int    `toml:"bitrate"`
	LowLatency bool   `toml:"low_latency"`
	FrameGen   string `toml:"frame_gen"`
}

// CameraSection mirrors spec.md §6's "camera" table row.
type CameraSection struct {
	Name string `toml:"name"`
}

// EncoderSection mirrors spec.md §6's "encoder" table row.
type EncoderSection struct {
	Quality string `toml:"quality"`
	GPU     int    `toml:"gpu"`
}

// AudioSection mirrors spec.md §6's "audio" table row.
type AudioSection struct {
	Source  string `toml:"source"`
	Codec   string `toml:"codec"`
	Bitrate int    `toml:"bitrate"`
}

// HotkeysSection mirrors spec.md §6's "hotkeys" table row.
type HotkeysSection struct {
	Enabled       bool   `toml:"enabled"`
	Toggle        string `toml:"toggle"`
	Pause         string `toml:"pause"`
	Record        string `toml:"record"`
	OverlayToggle string `toml:"overlay_toggle"`
}

// RecordingSection mirrors spec.md §6's "recording" table row.
type RecordingSection struct {
	OutputDir string `toml:"output_dir"`
	Format    string `toml:"format"`
}

// HDRSection mirrors spec.md §6's "hdr" table row.
type HDRSection struct {
	Tonemap            string  `toml:"tonemap"`
	Algorithm          string  `toml:"algorithm"`
	PeakLuminance      float64 `toml:"peak_luminance"`
	PreserveHDRRecord  bool    `toml:"preserve_hdr_recording"`
}

// OverlaySection mirrors spec.md §6's "overlay" table row.
type OverlaySection struct {
	Enabled    bool    `toml:"enabled"`
	Position   string  `toml:"position"`
	ShowFPS    bool    `toml:"show_fps"`
	ShowBitrate bool   `toml:"show_bitrate"`
	FontScale  float64 `toml:"font_scale"`
}

// WebRTCSection mirrors spec.md §6's "webrtc" table row.
type WebRTCSection struct {
	Enabled    bool     `toml:"enabled"`
	Port       int      `toml:"port"`
	ICEServers []string `toml:"ice_servers"`
	VideoCodec string   `toml:"video_codec"`
}

// DetectionSection is named in spec.md §6's section list with no option
// table row; scene/source-switch detection is the only behavior spec.md §4.2
// otherwise alludes to (the interpolator's scene-change fallback), so this
// section's one field lets an operator tune that heuristic's sensitivity.
type DetectionSection struct {
	SceneChangeThreshold float64 `toml:"scene_change_threshold"`
}

// PerformanceSection, likewise named with no option row in spec.md §6;
// carries the one knob every example in this corpus exposes for a
// resource-bounded background service.
type PerformanceSection struct {
	MaxCPUPercent int `toml:"max_cpu_percent"`
}

// File is the on-disk TOML shape, one struct field per spec.md §6 section.
type File struct {
	Defaults    DefaultsSection    `toml:"defaults"`
	Camera      CameraSection      `toml:"camera"`
	Encoder     EncoderSection     `toml:"encoder"`
	Audio       AudioSection       `toml:"audio"`
	Hotkeys     HotkeysSection     `toml:"hotkeys"`
	Recording   RecordingSection   `toml:"recording"`
	Detection   DetectionSection   `toml:"detection"`
	HDR         HDRSection         `toml:"hdr"`
	Performance PerformanceSection `toml:"performance"`
	Overlay     OverlaySection     `toml:"overlay"`
	WebRTC      WebRTCSection      `toml:"webrtc"`
}

// DefaultPath returns the well-known per-user config path, honoring
// EnvConfigPath if set.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "nitrogen", "config.toml")
}

// Load reads path (DefaultPath() if empty) and returns its parsed sections.
// A missing file is not an error; it yields the zero File so callers layer
// built-in defaults on top.
func Load(path string) (*File, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// Merge applies file values onto opts via reflection, for every field whose
// `toml:` tag resolves to a non-zero value in file and whose corresponding
// cobra flag has NOT been explicitly set on cmd — CLI always wins over file
// (spec.md §6: "CLI flags override configuration file values override built-in
// defaults"). opts must be a pointer to a flat options struct whose `toml:`
// tags use the dotted "section.option" form produced by flatten (e.g.
// `toml:"defaults.preset"`), and whose `env:` tags name the bare option (e.g.
// `env:"PRESET"`, read as NITROGEN_PRESET).
func Merge(opts any, file *File, cmd *cobra.Command) error {
	flat := flatten(file)

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer {
		return fmt.Errorf("config: Merge requires a pointer, got %s", v.Kind())
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		ft := t.Field(i)
		flagName := fieldNameToFlag(ft.Name)
		if changed[flagName] {
			continue
		}
		if key := ft.Tag.Get("toml"); key != "" {
			if val, ok := flat[key]; ok {
				setField(field, val)
			}
		}
		if key := ft.Tag.Get("env"); key != "" {
			if raw := os.Getenv("NITROGEN_" + strings.ToUpper(key)); raw != "" {
				setFieldFromString(field, raw)
			}
		}
	}
	return nil
}

// flatten turns the section structs into a "section.option" -> value map so
// Merge can look values up by the same dotted key CLI flag names would use.
func flatten(f *File) map[string]any {
	out := make(map[string]any)
	addSection(out, "defaults", f.Defaults)
	addSection(out, "camera", f.Camera)
	addSection(out, "encoder", f.Encoder)
	addSection(out, "audio", f.Audio)
	addSection(out, "hotkeys", f.Hotkeys)
	addSection(out, "recording", f.Recording)
	addSection(out, "detection", f.Detection)
	addSection(out, "hdr", f.HDR)
	addSection(out, "performance", f.Performance)
	addSection(out, "overlay", f.Overlay)
	addSection(out, "webrtc", f.WebRTC)
	return out
}

func addSection(out map[string]any, name string, section any) {
	v := reflect.ValueOf(section)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		key := t.Field(i).Tag.Get("toml")
		if key == "" {
			continue
		}
		field := v.Field(i)
		if field.IsZero() {
			continue
		}
		out[name+"."+key] = field.Interface()
	}
}

func fieldNameToFlag(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func setField(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			if arr, ok := value.([]string); ok {
				field.Set(reflect.ValueOf(arr))
			}
		}
	}
}

func setFieldFromString(field reflect.Value, raw string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float64:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			field.SetFloat(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(strings.Split(raw, ",")))
		}
	}
}
