// Package emulator implements C2: it wraps a vito/midterm virtual
// terminal, buffering and batching PTY output into coalesced snapshots
// and diffs, tracking scrollback position and screen mode, and answering
// device-status-report cursor queries. Grounded on
// internal/virtualterminal/vt.go (Vt/Scrollback fields, RespondOSCColors'
// scan-then-react technique) and internal/overlay/overlay.go's
// ForwardRequests/ForwardResponses wiring in the teacher repo.
package emulator

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vito/midterm"

	"tattoy/internal/cell"
	"tattoy/internal/protocol"
)

// waitForMorePTYOutput is the output-coalescing quiescence window from
// spec.md §4.2.
const waitForMorePTYOutput = 1 * time.Millisecond

// dsrCursorPosition is the device-status-report byte sequence the emulator
// watches for: ESC [ 6 n.
var dsrCursorPosition = []byte("\033[6n")

// appModeOn/Off are the keypad-application-mode sequences that must also
// be relayed verbatim to the real terminal, per spec.md §4.2.
var appModeOn = []byte("\033[?1h")
var appModeOff = []byte("\033[?1l")

// coalescingState names the three states of the PTY-output batching state
// machine from spec.md §9.
type coalescingState int

const (
	stateIdle coalescingState = iota
	stateAccumulating
	stateFlushing
)

// Config configures an Emulator.
type Config struct {
	Rows, Cols int
	ScrollStep int // rows moved per Scroll{Up,Down}; defaults to 3
	Bus        *protocol.Bus
	// ForwardAppMode, when non-nil, receives keypad-application-mode
	// sequences verbatim so the real terminal can switch mode too.
	ForwardAppMode io.Writer
}

// Emulator owns a midterm.Terminal screen buffer and a separate
// append-only scrollback terminal, plus the coalescing state machine.
type Emulator struct {
	cfg Config

	mu         sync.Mutex
	screen     *midterm.Terminal
	scrollback *midterm.Terminal
	mode       protocol.ScreenMode

	buf   bytes.Buffer
	state coalescingState
	timer *time.Timer

	scrollPos  int
	scrollStep int

	lastScreen     *cell.Surface
	lastScrollback *cell.Surface
	firstScreen    bool
	firstScrollback bool

	internalInput chan []byte
}

// New constructs an Emulator with fresh screen and scrollback buffers.
func New(cfg Config) *Emulator {
	if cfg.ScrollStep <= 0 {
		cfg.ScrollStep = 3
	}
	e := &Emulator{
		cfg:             cfg,
		screen:          midterm.NewTerminal(cfg.Rows, cfg.Cols),
		scrollback:      midterm.NewTerminal(cfg.Rows, cfg.Cols),
		scrollStep:      cfg.ScrollStep,
		firstScreen:     true,
		firstScrollback: true,
		internalInput:   make(chan []byte, 8),
	}
	e.scrollback.AutoResizeY = true
	e.scrollback.AppendOnly = true
	return e
}

// InternalInput returns the channel on which cursor-position-reply bytes
// are enqueued for the PTY writer (C1's internal input stream).
func (e *Emulator) InternalInput() <-chan []byte { return e.internalInput }

// Feed accumulates a chunk of PTY output and (re)arms the coalescing
// timer. It never blocks on the parser; the actual midterm.Write call
// happens later, on the timer goroutine, once output goes quiet. Scanning
// for DSR/app-mode sequences happens here, synchronously, before the
// buffered bytes are applied — spec.md §4.2 requires the cursor-position
// reply reflect the state the child expects *before* its own bytes are
// parsed.
func (e *Emulator) Feed(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bytes.Contains(data, dsrCursorPosition) {
		e.replyCursorPositionLocked()
	}
	if e.cfg.ForwardAppMode != nil {
		if bytes.Contains(data, appModeOn) {
			_, _ = e.cfg.ForwardAppMode.Write(appModeOn)
		}
		if bytes.Contains(data, appModeOff) {
			_, _ = e.cfg.ForwardAppMode.Write(appModeOff)
		}
	}
	e.detectScreenModeLocked(data)

	e.buf.Write(data)
	e.state = stateAccumulating
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(waitForMorePTYOutput, e.flush)
}

func (e *Emulator) replyCursorPositionLocked() {
	row := e.screen.Cursor.Y + 1
	col := e.screen.Cursor.X + 1
	reply := []byte(fmt.Sprintf("\033[%d;%dR", row, col))
	select {
	case e.internalInput <- reply:
	default:
	}
}

// detectScreenModeLocked scans for the alternate-screen CSI sequences
// (?1049h/l, and the older ?47h/l) so ScreenMode can be reported even
// though midterm itself does not expose a mode getter.
func (e *Emulator) detectScreenModeLocked(data []byte) {
	switch {
	case bytes.Contains(data, []byte("\033[?1049h")), bytes.Contains(data, []byte("\033[?47h")):
		e.mode = protocol.ModeAlternate
	case bytes.Contains(data, []byte("\033[?1049l")), bytes.Contains(data, []byte("\033[?47l")):
		e.mode = protocol.ModePrimary
	}
}

// flush is invoked by the coalescing timer once PTY output has gone
// quiet for waitForMorePTYOutput. It feeds the buffered bytes to the
// parser in one call and emits fresh Output events.
func (e *Emulator) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buf.Len() == 0 {
		e.state = stateIdle
		return
	}
	e.state = stateFlushing
	data := e.buf.Bytes()
	e.screen.Write(data)
	e.scrollback.Write(data)
	e.buf.Reset()
	e.state = stateIdle

	e.publishScreenLocked(false)
	e.publishScrollbackLocked(false)
}

// Resize updates the screen and scrollback dimensions and forces a
// Complete republish of both, per spec.md §4.2's snapshot/diff policy.
func (e *Emulator) Resize(rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.screen.Resize(rows, cols)
	e.scrollback.ResizeX(cols)
	e.publishScreenLocked(true)
	e.publishScrollbackLocked(true)
}

// Subscribe marks the next publish as a Complete snapshot, per spec.md
// §4.2 ("on first subscription... publish Complete"). Call once per new
// observer before it starts reading Output events.
func (e *Emulator) Subscribe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.firstScreen = true
	e.firstScrollback = true
}

// ScrollDirection selects Up, Down, or Cancel for Scroll.
type ScrollDirection int

const (
	ScrollUp ScrollDirection = iota
	ScrollDown
	ScrollCancel
)

// Scroll moves the scrollback viewing position, clamped so the top is
// never above row 0 of history and the bottom never below the live
// screen (spec.md §4.2). Cancel resets to 0 and forces a Complete.
func (e *Emulator) Scroll(dir ScrollDirection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.scrollbackTotalHeightLocked()

	switch dir {
	case ScrollUp:
		e.scrollPos += e.scrollStep
	case ScrollDown:
		e.scrollPos -= e.scrollStep
	case ScrollCancel:
		e.scrollPos = 0
	}
	e.clampScrollPosLocked(total)

	if dir == ScrollCancel {
		e.publishScreenLocked(true)
		e.publishScrollbackLocked(true)
	} else {
		e.publishScreenLocked(false)
		e.publishScrollbackLocked(false)
	}
}

func (e *Emulator) clampScrollPosLocked(total int) {
	maxPos := total - e.cfg.Rows
	if maxPos < 0 {
		maxPos = 0
	}
	if e.scrollPos < 0 {
		e.scrollPos = 0
	}
	if e.scrollPos > maxPos {
		e.scrollPos = maxPos
	}
}

func (e *Emulator) scrollbackTotalHeightLocked() int {
	h := len(e.scrollback.Content)
	if h < e.cfg.Rows {
		h = e.cfg.Rows
	}
	return h
}

func (e *Emulator) publishScreenLocked(forceComplete bool) {
	// midterm can grow Content/Height beyond the configured rows (via its
	// own auto-grow), so the cursor row — not row 0 — anchors the visible
	// window, same as the teacher's renderLiveView in
	// internal/overlay/render.go.
	startRow := e.screen.Cursor.Y - e.cfg.Rows + 1
	if startRow < 0 {
		startRow = 0
	}
	surface := e.buildSurfaceWindow(e.screen, startRow, e.cfg.Rows, e.cfg.Cols)
	surface.Cursor = cell.Cursor{X: e.screen.Cursor.X, Y: e.screen.Cursor.Y - startRow, Visible: true}

	complete := forceComplete || e.firstScreen
	out := protocol.Output{
		Surface:  protocol.SurfaceScreen,
		Complete: complete,
		Size:     cell.Size{Rows: surface.Height, Cols: surface.Width},
		Mode:     e.mode,
		Seq:      e.cfg.Bus.NextSeq(),
	}
	if complete {
		out.Snapshot = surface
		e.firstScreen = false
	} else {
		out.Changes = cell.Diff(e.lastScreen, surface)
	}
	e.lastScreen = surface
	e.cfg.Bus.Publish(protocol.Event{Kind: protocol.EventOutput, Output: out})
}

func (e *Emulator) publishScrollbackLocked(forceComplete bool) {
	total := e.scrollbackTotalHeightLocked()
	bottom := e.scrollback.Cursor.Y
	startRow := bottom - e.cfg.Rows + 1 - e.scrollPos
	if startRow < 0 {
		startRow = 0
	}
	surface := e.buildSurfaceWindow(e.scrollback, startRow, e.cfg.Rows, e.cfg.Cols)

	complete := forceComplete || e.firstScrollback
	out := protocol.Output{
		Surface:     protocol.SurfaceScrollback,
		Complete:    complete,
		Size:        cell.Size{Rows: e.cfg.Rows, Cols: surface.Width},
		TotalHeight: total,
		Position:    e.scrollPos,
		Seq:         e.cfg.Bus.NextSeq(),
	}
	if complete {
		out.Snapshot = surface
		e.firstScrollback = false
	} else {
		out.Changes = cell.Diff(e.lastScrollback, surface)
	}
	e.lastScrollback = surface
	e.cfg.Bus.Publish(protocol.Event{Kind: protocol.EventOutput, Output: out})
}

// buildSurfaceWindow converts rows [startRow, startRow+rows) of a
// midterm.Terminal into a cell.Surface, reusing the
// Format.Regions()+Render() walk from internal/overlay/render.go's
// RenderLineFrom, generalized to build Cells instead of writing ANSI
// bytes.
func (e *Emulator) buildSurfaceWindow(vt *midterm.Terminal, startRow, rows, cols int) *cell.Surface {
	s := cell.NewSurface(cols, rows)

	for i := 0; i < rows; i++ {
		row := startRow + i
		if row < 0 || row >= len(vt.Content) {
			continue
		}
		line := vt.Content[row]
		pos := 0
		for region := range vt.Format.Regions(row) {
			fg, bg, attrs := sgrToCellAttrs(region.F.Render())
			end := pos + region.Size
			for x := pos; x < end && x < cols; x++ {
				g := " "
				if x < len(line) {
					g = string(line[x])
				}
				s.Set(x, i, cell.Cell{Grapheme: g, Foreground: fg, Background: bg, Attrs: attrs})
			}
			pos = end
		}
	}
	return s
}
