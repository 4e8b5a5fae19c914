// Package shadow implements C3: the shadow terminal supervisor. It owns a
// ptydriver.Driver (C1) and an emulator.Emulator (C2), wires their channels
// together, and exposes the thin asynchronous facade spec.md §4.3 calls
// ActiveTerminal — input in, Output events out (via the shared protocol
// bus), and control operations (resize, scroll, kill). Grounded on
// internal/session/session.go's RunDaemon/RunInteractive, which performs
// the same "construct VT, start PTY, launch PipeOutput goroutine, return a
// handle the rest of the program drives" wiring for the teacher's own child
// process.
package shadow

import (
	"errors"
	"io"
	"sync"

	"tattoy/internal/emulator"
	"tattoy/internal/protocol"
	"tattoy/internal/ptydriver"
)

// Config configures a shadow terminal.
type Config struct {
	Command  string
	Args     []string
	Rows     int
	Cols     int
	ExtraEnv map[string]string

	// ScrollStep is forwarded to the emulator; see emulator.Config.
	ScrollStep int

	// ForwardAppMode, when non-nil, receives keypad-application-mode
	// sequences so the real terminal can switch mode too (spec.md §4.2).
	ForwardAppMode io.Writer

	// Bus is the shared protocol bus (C4). Required: the shadow terminal
	// publishes Output events on it and listens for End/Resize alongside
	// every other component.
	Bus *protocol.Bus
}

// ErrClosed is returned by SendInput once the terminal has been killed.
var ErrClosed = errors.New("shadow: terminal closed")

const inputCapacity = 64

// ActiveTerminal is the handle returned by Start: an async facade over a
// running child process and its emulator, per spec.md §4.3.
type ActiveTerminal struct {
	cfg    Config
	driver *ptydriver.Driver
	emu    *emulator.Emulator

	input       chan []byte
	output      <-chan any
	unsubOutput func()

	done     chan struct{}
	runDone  chan struct{}
	killOnce sync.Once
}

// Start spawns the child process on a PTY, constructs its emulator, and
// launches the goroutines that ferry bytes between them. It corresponds to
// spec.md §4.3's `start(config) → ActiveTerminal`.
func Start(cfg Config) (*ActiveTerminal, error) {
	driver, err := ptydriver.New(ptydriver.Config{
		Command:  cfg.Command,
		Args:     cfg.Args,
		Rows:     cfg.Rows,
		Cols:     cfg.Cols,
		ExtraEnv: cfg.ExtraEnv,
		Bus:      cfg.Bus,
	})
	if err != nil {
		return nil, err
	}

	emu := emulator.New(emulator.Config{
		Rows:           cfg.Rows,
		Cols:           cfg.Cols,
		ScrollStep:     cfg.ScrollStep,
		Bus:            cfg.Bus,
		ForwardAppMode: cfg.ForwardAppMode,
	})

	outCh, unsub := cfg.Bus.Subscribe()
	emu.Subscribe() // first publish after a subscriber joins must be Complete

	t := &ActiveTerminal{
		cfg:         cfg,
		driver:      driver,
		emu:         emu,
		input:       make(chan []byte, inputCapacity),
		output:      outCh,
		unsubOutput: unsub,
		done:        make(chan struct{}),
		runDone:     make(chan struct{}),
	}

	go func() {
		defer close(t.runDone)
		driver.Run(emu.Feed, t.input, emu.InternalInput())
	}()

	return t, nil
}

// SendInput enqueues bytes for the child's stdin. It fails only once the
// terminal has been killed; otherwise backpressure is the input channel's
// bounded capacity, per spec.md §4.3.
func (t *ActiveTerminal) SendInput(p []byte) error {
	select {
	case t.input <- p:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

// Output returns the channel of broadcast protocol events (Output, Resize,
// End, ...) this terminal's subscription receives.
func (t *ActiveTerminal) Output() <-chan any { return t.output }

// Resize updates the emulator's size immediately and broadcasts Resize so
// the PTY driver applies SIGWINCH asynchronously, per spec.md §4.3.
func (t *ActiveTerminal) Resize(rows, cols int) {
	t.emu.Resize(rows, cols)
	t.cfg.Bus.Publish(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Rows: rows, Cols: cols}})
}

// ScrollUp moves the scrollback view up by the configured step.
func (t *ActiveTerminal) ScrollUp() { t.emu.Scroll(emulator.ScrollUp) }

// ScrollDown moves the scrollback view down by the configured step.
func (t *ActiveTerminal) ScrollDown() { t.emu.Scroll(emulator.ScrollDown) }

// ScrollCancel resets the scrollback view to the live screen.
func (t *ActiveTerminal) ScrollCancel() { t.emu.Scroll(emulator.ScrollCancel) }

// Kill broadcasts End, tearing down the child process and unblocking every
// task waiting on it. Idempotent, per spec.md §4.3.
func (t *ActiveTerminal) Kill() {
	t.killOnce.Do(func() {
		close(t.done)
		t.cfg.Bus.End()
	})
}

// Close is the idiomatic-Go equivalent of spec.md §4.3's "Drop must
// broadcast End": it kills the child, unsubscribes this handle's own
// Output channel, and waits for the driver's goroutines to exit.
func (t *ActiveTerminal) Close() {
	t.Kill()
	<-t.runDone
	t.unsubOutput()
}
