// Package renderer implements C7: it owns the real terminal in raw mode,
// composites the latest overlay surface over the latest PTY surface with
// internal/compositor, diffs the result against what was last written, and
// flushes the minimum sequence of ANSI writes. Grounded on
// internal/session/client/render.go's RenderScreen/RenderLineFrom (the
// "\033[row;colH\033[2K" cursor-addressed line writer) and
// internal/session/client/overlay.go's SetupInteractiveTerminal/WatchResize
// for raw-mode ownership and SIGWINCH handling.
package renderer

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"tattoy/internal/cell"
	"tattoy/internal/compositor"
	"tattoy/internal/logging"
	"tattoy/internal/protocol"
)

// Config configures the renderer.
type Config struct {
	Bus    *protocol.Bus
	Output io.Writer // defaults to os.Stdout
	InFd   int        // stdin fd for raw-mode and size queries; defaults to os.Stdin

	// ContrastThreshold is the WCAG ratio enforced between text foreground
	// and background after compositing; 0 disables enforcement.
	ContrastThreshold float64
}

// Renderer owns the real terminal and runs the compositing tick loop.
type Renderer struct {
	cfg     Config
	profile termenv.Profile

	mu          sync.Mutex
	ttySize     cell.Size
	overlay     *cell.Surface
	pty         *cell.Surface
	ptyCursor   cell.Cursor
	lastWritten *cell.Surface

	termState *term.State
}

// New constructs a Renderer. Call Start to enter raw mode and begin the
// tick loop.
func New(cfg Config) *Renderer {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.InFd == 0 {
		cfg.InFd = int(os.Stdin.Fd())
	}
	return &Renderer{cfg: cfg, profile: termenv.NewOutput(cfg.Output).Profile}
}

// Start puts the real terminal into raw mode, determines its initial size,
// and launches the SIGWINCH watcher and the event-driven tick loop. The
// returned cleanup function restores cooked mode; it must be called on
// every exit path, per spec.md §4.5.
func (r *Renderer) Start() (cleanup func(), err error) {
	cols, rows, err := term.GetSize(r.cfg.InFd)
	if err != nil {
		return nil, fmt.Errorf("renderer: get terminal size: %w", err)
	}
	r.ttySize = cell.Size{Rows: rows, Cols: cols}

	r.termState, err = term.MakeRaw(r.cfg.InFd)
	if err != nil {
		return nil, fmt.Errorf("renderer: enter raw mode: %w", err)
	}
	fmt.Fprint(r.cfg.Output, "\033[?25l\033[2J\033[H")

	restore := func() {
		fmt.Fprint(r.cfg.Output, "\033[0m\033[?25h\r\n")
		_ = term.Restore(r.cfg.InFd, r.termState)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)

	ch, unsub := r.cfg.Bus.Subscribe()

	go r.watchResize(sigCh)
	go r.tickLoop(ch)

	cleanup = func() {
		signal.Stop(sigCh)
		unsub()
		restore()
	}
	return cleanup, nil
}

// watchResize handles SIGWINCH by re-querying the terminal size and
// broadcasting Resize, per spec.md §4.5 step 1.
func (r *Renderer) watchResize(sigCh <-chan os.Signal) {
	for range sigCh {
		cols, rows, err := term.GetSize(r.cfg.InFd)
		if err != nil {
			continue
		}
		r.mu.Lock()
		changed := r.ttySize.Rows != rows || r.ttySize.Cols != cols
		if changed {
			r.ttySize = cell.Size{Rows: rows, Cols: cols}
			fmt.Fprint(r.cfg.Output, "\033[2J")
			r.lastWritten = nil
		}
		r.mu.Unlock()
		if changed {
			r.cfg.Bus.Publish(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Rows: rows, Cols: cols}})
		}
	}
}

// tickLoop drives one render per relevant bus event: an overlay frame
// update or a PTY screen Output, per spec.md §4.5.
func (r *Renderer) tickLoop(ch <-chan any) {
	for v := range ch {
		ev, ok := v.(protocol.Event)
		if !ok {
			continue
		}
		switch ev.Kind {
		case protocol.EventOutput:
			if ev.Output.Surface != protocol.SurfaceScreen {
				continue
			}
			r.updatePTY(ev.Output)
			r.tick()
		case protocol.EventEnd:
			return
		}
	}
}

// SubmitOverlay feeds the latest composited overlay surface (spec.md
// §4.5's tattoy_composite) in from the overlay manager (C5's aggregator)
// and triggers a tick.
func (r *Renderer) SubmitOverlay(s *cell.Surface) {
	r.mu.Lock()
	r.overlay = s
	r.mu.Unlock()
	r.tick()
}

func (r *Renderer) updatePTY(out protocol.Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out.Complete {
		r.pty = out.Snapshot
	} else if r.pty != nil {
		r.pty.Apply(out.Changes)
	}
	if r.pty != nil {
		r.ptyCursor = r.pty.Cursor
	}
}

// tick implements spec.md §4.5's five-step algorithm.
func (r *Renderer) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pty == nil {
		return
	}
	size := r.ttySize

	// Step 2: refuse to render on a size mismatch (logged at debug level,
	// not fatal).
	if r.pty.Width != size.Cols || r.pty.Height != size.Rows {
		logging.Debug("renderer: PTY size mismatch, skipping frame", "width", r.pty.Width, "height", r.pty.Height, "cols", size.Cols, "rows", size.Rows)
		return
	}
	overlay := r.overlay
	if overlay == nil {
		overlay = cell.NewSurface(size.Cols, size.Rows)
	}
	if overlay.Width != size.Cols || overlay.Height != size.Rows {
		logging.Debug("renderer: overlay size mismatch, skipping frame", "width", overlay.Width, "height", overlay.Height, "cols", size.Cols, "rows", size.Rows)
		return
	}

	// Step 3: overlay is the backdrop (z=0), PTY content draws over it.
	target := compositor.Composite(size.Cols, size.Rows, []compositor.Layer{
		{Z: 0, Opacity: 1, Surface: overlay},
		{Z: 1, Opacity: 1, Surface: r.pty},
	})
	if r.cfg.ContrastThreshold > 0 {
		compositor.EnforceContrast(target, r.cfg.ContrastThreshold, false)
	}
	target.Cursor = r.ptyCursor
	compositor.CursorGuard(target)

	r.flush(target)
}

// flush diffs target against the last frame actually written and emits the
// minimum ANSI sequence, in the style of
// internal/session/client/render.go's cursor-addressed, SGR-coalescing
// writer.
func (r *Renderer) flush(target *cell.Surface) {
	var buf strings.Builder
	buf.WriteString("\033[?25l")

	if r.lastWritten == nil || r.lastWritten.Width != target.Width || r.lastWritten.Height != target.Height {
		r.writeFull(&buf, target)
	} else {
		changes := cell.Diff(r.lastWritten, target)
		r.writeChanges(&buf, changes)
	}

	fmt.Fprintf(&buf, "\033[%d;%dH", target.Cursor.Y+1, target.Cursor.X+1)
	buf.WriteString("\033[?25h")

	r.cfg.Output.Write([]byte(buf.String()))
	r.lastWritten = target
}

func (r *Renderer) writeFull(buf *strings.Builder, target *cell.Surface) {
	for y := 0; y < target.Height; y++ {
		fmt.Fprintf(buf, "\033[%d;1H", y+1)
		var last string
		for x := 0; x < target.Width; x++ {
			c := target.At(x, y)
			sgr := sgrFor(r.profile, c)
			if sgr != last {
				buf.WriteString(sgr)
				last = sgr
			}
			buf.WriteString(graphemeOrSpace(c))
		}
	}
	buf.WriteString("\033[0m")
}

func (r *Renderer) writeChanges(buf *strings.Builder, changes []cell.Change) {
	var lastSGR string
	lastRow, lastCol := -1, -1
	for _, c := range changes {
		if c.Kind != cell.ChangeCell {
			continue
		}
		if c.Y != lastRow || c.X != lastCol {
			fmt.Fprintf(buf, "\033[%d;%dH", c.Y+1, c.X+1)
		}
		sgr := sgrFor(r.profile, c.Cell)
		if sgr != lastSGR {
			buf.WriteString(sgr)
			lastSGR = sgr
		}
		buf.WriteString(graphemeOrSpace(c.Cell))
		lastRow, lastCol = c.Y, c.X+1
	}
	if lastSGR != "" {
		buf.WriteString("\033[0m")
	}
}

func graphemeOrSpace(c cell.Cell) string {
	if c.Grapheme == "" {
		return " "
	}
	return c.Grapheme
}
