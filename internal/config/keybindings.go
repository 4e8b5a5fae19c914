package config

import (
	"fmt"
	"strings"

	"tattoy/internal/protocol"
)

// specialKeys maps the named keys the config format accepts (beyond a bare
// single character) to the byte sequence a real terminal actually sends for
// them. Grounded on the teacher's session/client escape-sequence constants
// for arrow/paging keys.
var specialKeys = map[string]string{
	"Escape":   "\x1b",
	"Enter":    "\r",
	"Tab":      "\t",
	"Backspace": "\x7f",
	"Up":       "\x1b[A",
	"Down":     "\x1b[B",
	"Right":    "\x1b[C",
	"Left":     "\x1b[D",
	"Home":     "\x1b[H",
	"End":      "\x1b[F",
	"PageUp":   "\x1b[5~",
	"PageDown": "\x1b[6~",
}

// ToByteSequence converts one Keybinding into the literal byte sequence
// input.Decoder matches against incoming stdin, per
// crates/tattoy/src/config/input.rs's KeybindingConfigRaw -> KeyEvent
// conversion, generalized from termwiz's structured KeyEvent to the raw
// byte sequences this design's input decoder works with directly.
func (k Keybinding) ToByteSequence() (string, error) {
	if seq, ok := specialKeys[k.Key]; ok {
		return applyMods(seq, k.Mods), nil
	}
	if len([]rune(k.Key)) != 1 {
		return "", fmt.Errorf("unknown keybinding key %q", k.Key)
	}
	return applyMods(k.Key, k.Mods), nil
}

// applyMods rewrites seq for the CTRL modifier by mapping a single ASCII
// letter to its control-code equivalent (e.g. "t" -> 0x14). Any other
// single character (such as "[" or "]") and any multi-byte sequence is
// returned unchanged, so CTRL has no effect on it. Other modifiers (SHIFT,
// ALT) also pass the base sequence through unchanged.
func applyMods(seq, mods string) string {
	if !strings.Contains(strings.ToUpper(mods), "CTRL") {
		return seq
	}
	if len([]rune(seq)) != 1 {
		return seq
	}
	b := []byte(seq)[0]
	if b >= 'a' && b <= 'z' {
		return string(rune(b - 'a' + 1))
	}
	if b >= 'A' && b <= 'Z' {
		return string(rune(b - 'A' + 1))
	}
	return seq
}

// ToKeybindingTable converts the whole configured keybinding map into the
// map[string]protocol.KeybindAction shape input.Config expects. Invalid
// entries are skipped; a well-formed default config never hits that path.
func (c Config) ToKeybindingTable() map[string]protocol.KeybindAction {
	table := make(map[string]protocol.KeybindAction, len(c.Keybindings))
	for action, kb := range c.Keybindings {
		seq, err := kb.ToByteSequence()
		if err != nil {
			continue
		}
		table[seq] = action
	}
	return table
}
