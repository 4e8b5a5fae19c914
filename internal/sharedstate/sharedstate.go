// Package sharedstate holds the single process-wide record spec.md §5
// describes: config, keybindings, tty size, the shadow terminal's screen
// and scrollback surfaces, the scrolling/alternate-screen/rendering/logging
// flags, and the running PTY output sequence number. Every field is behind
// its own reader/writer lock so a writer only ever blocks readers of that
// one field, never the whole record, matching spec.md's "writers hold
// locks only long enough to replace or mutate; no lock held across await".
//
// Grounded on internal/virtualterminal/vt.go's VT, which guards several
// fields (Vt, Scrollback, LastOut, OscFg/OscBg) behind one sync.Mutex;
// this design splits that single coarse lock into one sync.RWMutex per
// field, since unlike VT's fields (which are almost always touched
// together during PipeOutput) the fields named in spec.md §5 are read and
// written independently by unrelated tasks (C6 reads the screen surface,
// C10 reads is_scrolling, C7 reads tty size, and so on).
package sharedstate

import (
	"sync"

	"tattoy/internal/cell"
	"tattoy/internal/config"
	"tattoy/internal/protocol"
)

// Size is the real terminal's current dimensions.
type Size struct {
	Cols, Rows int
}

// State is the process-wide shared record. Use New to construct one; the
// zero value has nil surfaces and an empty keybinding table.
type State struct {
	configMu sync.RWMutex
	cfg      config.Config

	keybindMu sync.RWMutex
	keybinds  map[string]protocol.KeybindAction

	sizeMu sync.RWMutex
	size   Size

	screenMu sync.RWMutex
	screen   *cell.Surface

	scrollbackMu sync.RWMutex
	scrollback   *cell.Surface

	scrollingMu sync.RWMutex
	scrolling   bool

	alternateMu sync.RWMutex
	alternate   bool

	renderingMu sync.RWMutex
	rendering   bool

	loggingMu sync.RWMutex
	logging   bool

	sequenceMu sync.RWMutex
	sequence   uint64
}

// New constructs a State seeded with cfg, rendering enabled, and no
// surfaces yet (set via SetScreen/SetScrollback).
func New(cfg config.Config) *State {
	return &State{cfg: cfg, rendering: true}
}

// Config returns the current configuration.
func (s *State) Config() config.Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.cfg
}

// SetConfig replaces the configuration, e.g. after internal/config's
// file-watch reload.
func (s *State) SetConfig(cfg config.Config) {
	s.configMu.Lock()
	s.cfg = cfg
	s.configMu.Unlock()
}

// Keybindings returns the active keybinding table.
func (s *State) Keybindings() map[string]protocol.KeybindAction {
	s.keybindMu.RLock()
	defer s.keybindMu.RUnlock()
	return s.keybinds
}

// SetKeybindings replaces the active keybinding table.
func (s *State) SetKeybindings(table map[string]protocol.KeybindAction) {
	s.keybindMu.Lock()
	s.keybinds = table
	s.keybindMu.Unlock()
}

// Size returns the real terminal's current dimensions.
func (s *State) Size() Size {
	s.sizeMu.RLock()
	defer s.sizeMu.RUnlock()
	return s.size
}

// SetSize records a new terminal size, e.g. on SIGWINCH.
func (s *State) SetSize(size Size) {
	s.sizeMu.Lock()
	s.size = size
	s.sizeMu.Unlock()
}

// Screen returns the shadow terminal's current screen surface. Callers
// must not mutate the returned surface; it is shared.
func (s *State) Screen() *cell.Surface {
	s.screenMu.RLock()
	defer s.screenMu.RUnlock()
	return s.screen
}

// SetScreen replaces the screen surface, e.g. after each C3 tick.
func (s *State) SetScreen(surface *cell.Surface) {
	s.screenMu.Lock()
	s.screen = surface
	s.screenMu.Unlock()
}

// Scrollback returns the shadow terminal's current scrollback surface.
func (s *State) Scrollback() *cell.Surface {
	s.scrollbackMu.RLock()
	defer s.scrollbackMu.RUnlock()
	return s.scrollback
}

// SetScrollback replaces the scrollback surface.
func (s *State) SetScrollback(surface *cell.Surface) {
	s.scrollbackMu.Lock()
	s.scrollback = surface
	s.scrollbackMu.Unlock()
}

// IsScrolling reports the scrolling flag, which the ToggleScrolling
// keybinding flips. C10 does not read it; it tracks the scroll position
// from the bus itself.
func (s *State) IsScrolling() bool {
	s.scrollingMu.RLock()
	defer s.scrollingMu.RUnlock()
	return s.scrolling
}

// SetScrolling updates the scrolling flag.
func (s *State) SetScrolling(v bool) {
	s.scrollingMu.Lock()
	s.scrolling = v
	s.scrollingMu.Unlock()
}

// IsAlternateScreen reports the alternate-screen flag last stored with
// SetAlternateScreen. C10 does not read it; it tracks the screen mode from
// the bus itself.
func (s *State) IsAlternateScreen() bool {
	s.alternateMu.RLock()
	defer s.alternateMu.RUnlock()
	return s.alternate
}

// SetAlternateScreen updates the alternate-screen flag.
func (s *State) SetAlternateScreen(v bool) {
	s.alternateMu.Lock()
	s.alternate = v
	s.alternateMu.Unlock()
}

// IsRenderingEnabled reports the rendering-enabled flag, which the
// ToggleTattoy keybinding flips. The renderer (C7) does not consult it.
func (s *State) IsRenderingEnabled() bool {
	s.renderingMu.RLock()
	defer s.renderingMu.RUnlock()
	return s.rendering
}

// SetRenderingEnabled updates the rendering-enabled flag.
func (s *State) SetRenderingEnabled(v bool) {
	s.renderingMu.Lock()
	s.rendering = v
	s.renderingMu.Unlock()
}

// IsLogging reports whether structured logging is currently active, for
// the notifications overlay's "see logs" hint.
func (s *State) IsLogging() bool {
	s.loggingMu.RLock()
	defer s.loggingMu.RUnlock()
	return s.logging
}

// SetLogging updates the logging-active flag.
func (s *State) SetLogging(v bool) {
	s.loggingMu.Lock()
	s.logging = v
	s.loggingMu.Unlock()
}

// PTYSequence returns the most recent PTY output sequence number, used by
// overlays to detect whether the underlying terminal changed since they
// last rendered.
func (s *State) PTYSequence() uint64 {
	s.sequenceMu.RLock()
	defer s.sequenceMu.RUnlock()
	return s.sequence
}

// SetPTYSequence records a new PTY output sequence number. Monotonic
// increase is the caller's responsibility.
func (s *State) SetPTYSequence(seq uint64) {
	s.sequenceMu.Lock()
	s.sequence = seq
	s.sequenceMu.Unlock()
}
