// Package input implements C10: it blocking-reads the real terminal's
// stdin in 128-byte buffers, decodes keybindings and mouse wheel events,
// and forwards everything else as raw PTY input, all over the protocol
// bus (C4) rather than a direct reference to the shadow terminal — C10
// only ever talks to C4, per spec.md §2's data-flow note "C10 → C4.Input
// → C3". Grounded on internal/session/client/input.go's escape-sequence
// state machine (StartPendingEsc/HandlePassthroughBytes) and
// HandleSGRMouse's SGR mouse-button parsing.
package input

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"tattoy/internal/protocol"
)

const readChunkSize = 128

// Config configures a Decoder.
type Config struct {
	Bus    *protocol.Bus
	Reader io.Reader // the real terminal's stdin; defaults to os.Stdin by the caller

	// Keybindings maps a raw byte sequence (as a string) to the action it
	// triggers. Sequences are matched against the longest configured
	// prefix at each position.
	Keybindings map[string]protocol.KeybindAction
}

// Decoder owns the blocking stdin-read loop.
type Decoder struct {
	cfg Config

	mu        sync.Mutex
	scrolling bool
	alternate bool
}

// New constructs a Decoder. Call Run to start the blocking read loop; call
// WatchBus (in its own goroutine, before or concurrently with Run) to keep
// the decoder's scroll/screen-mode state current.
func New(cfg Config) *Decoder {
	return &Decoder{cfg: cfg}
}

// WatchBus subscribes to the protocol bus and tracks scroll position and
// screen mode from Output events, so the decoder's Escape-cancels-scroll
// and primary-screen-only mouse wheel rules (spec.md §4.9) can be applied
// without reaching into C2/C3 directly. Blocks until End or the bus
// subscription ends; run it in its own goroutine.
func (d *Decoder) WatchBus() {
	ch, unsub := d.cfg.Bus.Subscribe()
	defer unsub()
	for v := range ch {
		ev, ok := v.(protocol.Event)
		if !ok {
			continue
		}
		switch ev.Kind {
		case protocol.EventEnd:
			return
		case protocol.EventOutput:
			switch ev.Output.Surface {
			case protocol.SurfaceScreen:
				d.mu.Lock()
				d.alternate = ev.Output.Mode == protocol.ModeAlternate
				d.mu.Unlock()
			case protocol.SurfaceScrollback:
				d.mu.Lock()
				d.scrolling = ev.Output.Position != 0
				d.mu.Unlock()
			}
		}
	}
}

func (d *Decoder) isScrolling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrolling
}

func (d *Decoder) isPrimaryScreen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.alternate
}

// Run blocking-reads stdin in readChunkSize buffers and decodes each one,
// per spec.md §4.9. Returns when Reader returns an error (typically EOF on
// shutdown).
func (d *Decoder) Run() error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := d.cfg.Reader.Read(buf)
		if n > 0 {
			d.processChunk(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

func (d *Decoder) processChunk(buf []byte) {
	i := 0
	for i < len(buf) {
		if action, consumed, ok := d.matchKeybinding(buf[i:]); ok {
			d.dispatchAction(action)
			i += consumed
			continue
		}

		if dir, consumed, ok := matchMouseWheel(buf[i:]); ok && d.isPrimaryScreen() {
			switch {
			case dir > 0:
				d.dispatchAction(protocol.ActionScrollUp)
			case dir < 0:
				d.dispatchAction(protocol.ActionScrollDown)
			default:
				// Recognized SGR mouse report, but not a wheel button:
				// forward it through like any other input instead of
				// mis-dispatching a scroll.
				d.forward(buf[i : i+consumed])
			}
			i += consumed
			continue
		}

		if d.isScrolling() {
			if buf[i] == 0x1B {
				d.dispatchAction(protocol.ActionScrollExit)
			}
			// Other keys are dropped while scrolling, per spec.md §4.9.
			i++
			continue
		}

		d.forward(buf[i : i+1])
		i++
	}
}

// matchKeybinding finds the longest configured sequence that is a prefix
// of buf, if any.
func (d *Decoder) matchKeybinding(buf []byte) (action protocol.KeybindAction, consumed int, ok bool) {
	best := -1
	for seq, a := range d.cfg.Keybindings {
		if len(seq) > len(buf) || len(seq) <= best {
			continue
		}
		if strings.HasPrefix(string(buf), seq) {
			best = len(seq)
			action = a
			ok = true
		}
	}
	return action, best, ok
}

// matchMouseWheel recognizes an SGR mouse report (ESC [ < Cb ; Cx ; Cy M)
// for the vertical wheel buttons (64 = up, 65 = down), returning +1/-1 and
// the number of bytes consumed. Grounded on
// internal/session/client/input.go's HandleSGRMouse.
func matchMouseWheel(buf []byte) (dir int, consumed int, ok bool) {
	if len(buf) < 3 || buf[0] != 0x1B || buf[1] != '[' || buf[2] != '<' {
		return 0, 0, false
	}
	end := -1
	for i := 3; i < len(buf); i++ {
		if buf[i] == 'M' || buf[i] == 'm' {
			end = i
			break
		}
	}
	if end == -1 {
		return 0, 0, false
	}
	params := strings.Split(string(buf[3:end]), ";")
	if len(params) < 1 {
		return 0, 0, false
	}
	button, err := strconv.Atoi(params[0])
	if err != nil {
		return 0, 0, false
	}
	switch button {
	case 64:
		return 1, end + 1, true
	case 65:
		return -1, end + 1, true
	default:
		return 0, end + 1, true // a recognized SGR mouse event, just not wheel
	}
}

func (d *Decoder) dispatchAction(action protocol.KeybindAction) {
	d.cfg.Bus.Publish(protocol.Event{Kind: protocol.EventKeybind, Keybind: action})
}

func (d *Decoder) forward(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	d.cfg.Bus.Publish(protocol.Event{Kind: protocol.EventInput, Input: cp})
}
