// Package hotkey parses the "modifier+…+key" binding grammar of spec.md §6
// and turns recognized bindings into controller.HotkeyCommandEvents. The
// global-hotkey OS hook itself is out of scope (spec.md §1 names it an
// external event source, alongside the portal and hardware SDK); this
// package only owns the grammar and the contract a real hook would call
// into, the same split as internal/capture's PortalSession contract.
package hotkey

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nitrogen-cast/nitrogen/internal/controller"
)

// Modifier is one of the four modifier keys spec.md §6 names. Left/right
// variants are accepted on input but collapse to the same Modifier value,
// per spec.md §6 ("left and right modifier variants are treated equivalently").
type Modifier int

const (
	ModCtrl Modifier = iota
	ModAlt
	ModShift
	ModSuper
)

func (m Modifier) String() string {
	switch m {
	case ModCtrl:
		return "ctrl"
	case ModAlt:
		return "alt"
	case ModShift:
		return "shift"
	case ModSuper:
		return "super"
	default:
		return "unknown"
	}
}

var modifierSynonyms = map[string]Modifier{
	"ctrl":     ModCtrl,
	"control":  ModCtrl,
	"lctrl":    ModCtrl,
	"rctrl":    ModCtrl,
	"alt":      ModAlt,
	"option":   ModAlt,
	"lalt":     ModAlt,
	"ralt":     ModAlt,
	"shift":    ModShift,
	"lshift":   ModShift,
	"rshift":   ModShift,
	"super":    ModSuper,
	"cmd":      ModSuper,
	"command":  ModSuper,
	"win":      ModSuper,
	"windows":  ModSuper,
	"meta":     ModSuper,
	"lsuper":   ModSuper,
	"rsuper":   ModSuper,
}

// Binding is a parsed "modifier+…+key" chord: a set of modifiers plus the
// one non-modifier key that completes the chord.
type Binding struct {
	Modifiers []Modifier
	Key       string
}

// String renders a Binding back to its canonical "mod+mod+key" form, with
// modifiers in a fixed ctrl/alt/shift/super order so two Bindings parsed
// from differently-ordered input compare equal as strings.
func (b Binding) String() string {
	mods := append([]Modifier(nil), b.Modifiers...)
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })
	parts := make([]string, 0, len(mods)+1)
	for _, m := range mods {
		parts = append(parts, m.String())
	}
	parts = append(parts, b.Key)
	return strings.Join(parts, "+")
}

// Equal reports whether two Bindings name the same chord, modifier order
// and left/right variant ignored.
func (b Binding) Equal(other Binding) bool {
	return b.String() == other.String()
}

// namedKeys are the non-modifier key names spec.md §6 allows beyond single
// letters and digits: function keys, navigation keys, and numpad keys.
var namedKeys = func() map[string]bool {
	names := []string{
		"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12",
		"up", "down", "left", "right", "home", "end", "pageup", "pagedown",
		"insert", "delete", "backspace", "tab", "enter", "return", "escape", "esc", "space",
		"num0", "num1", "num2", "num3", "num4", "num5", "num6", "num7", "num8", "num9",
		"numlock", "numadd", "numsub", "nummul", "numdiv", "numdecimal", "numenter",
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}()

// Parse validates raw against the "modifier+…+key" grammar and returns the
// parsed Binding. At least one modifier is required (a bare key is not a
// valid global hotkey binding); the trailing segment must be a single
// letter, a single digit, or one of namedKeys.
func Parse(raw string) (Binding, error) {
	segments := strings.Split(strings.ToLower(strings.TrimSpace(raw)), "+")
	if len(segments) < 2 {
		return Binding{}, fmt.Errorf("hotkey: %q needs at least one modifier and a key", raw)
	}
	for i, s := range segments {
		if s == "" {
			return Binding{}, fmt.Errorf("hotkey: %q has an empty segment", raw)
		}
		segments[i] = s
	}

	keySeg := segments[len(segments)-1]
	modSegs := segments[:len(segments)-1]

	seen := make(map[Modifier]bool, len(modSegs))
	mods := make([]Modifier, 0, len(modSegs))
	for _, s := range modSegs {
		m, ok := modifierSynonyms[s]
		if !ok {
			return Binding{}, fmt.Errorf("hotkey: %q is not a recognized modifier in %q", s, raw)
		}
		if !seen[m] {
			seen[m] = true
			mods = append(mods, m)
		}
	}

	if !isValidKey(keySeg) {
		return Binding{}, fmt.Errorf("hotkey: %q is not a recognized key in %q", keySeg, raw)
	}

	return Binding{Modifiers: mods, Key: keySeg}, nil
}

func isValidKey(key string) bool {
	if len(key) == 1 {
		r := key[0]
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	return namedKeys[key]
}

// Command pairs a parsed Binding with the controller command it triggers.
type Command struct {
	Binding Binding
	Kind    controller.HotkeyCommandKind
}

// Registry resolves observed chords to controller commands and publishes
// the matching HotkeyCommandEvent on bus. It holds no reference back into
// the controller beyond the Bus, the same cyclic-reference-avoidance the
// rest of the pipeline follows (spec.md §9).
type Registry struct {
	bus      *controller.Bus
	commands map[string]controller.HotkeyCommandKind
}

// NewRegistry builds a Registry from the hotkeys config section: bindings
// for toggle, pause, record, and overlay_toggle, any of which may be empty
// to mean "unbound". Parse errors on a non-empty binding are returned
// immediately; an empty registry (all bindings unbound) is valid.
func NewRegistry(bus *controller.Bus, toggle, pause, record, overlayToggle string) (*Registry, error) {
	r := &Registry{bus: bus, commands: make(map[string]controller.HotkeyCommandKind)}
	bindings := []struct {
		raw  string
		kind controller.HotkeyCommandKind
	}{
		{toggle, controller.HotkeyToggle},
		{pause, controller.HotkeyPause},
		{record, controller.HotkeyRecordToggle},
		{overlayToggle, controller.HotkeyOverlayToggle},
	}
	for _, b := range bindings {
		if b.raw == "" {
			continue
		}
		parsed, err := Parse(b.raw)
		if err != nil {
			return nil, err
		}
		r.commands[parsed.String()] = b.kind
	}
	return r, nil
}

// Observe is the contract a real OS-level hotkey hook calls into on every
// chord it detects. Bindings not registered are silently ignored (matching
// spec.md §9's boundary behavior that an unrecognized or unbound chord is a
// no-op, not an error).
func (r *Registry) Observe(b Binding) {
	kind, ok := r.commands[b.String()]
	if !ok {
		return
	}
	r.bus.Publish(controller.HotkeyCommandEvent{Command: kind})
}
