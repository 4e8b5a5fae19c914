// Package ptydriver implements C1: it spawns a child command on a
// pseudo-terminal and ferries bytes in and out, reacting to resize and
// kill signals from the protocol bus. Grounded on
// internal/virtualterminal/vt.go's StartPTY/PipeOutput/WritePTY in the
// teacher repo.
package ptydriver

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"tattoy/internal/protocol"
)

// readChunkSize matches spec.md §4.1: fixed-size byte buffers, up to 4 KiB.
const readChunkSize = 4096

// writeFrameSize matches spec.md §4.1: 128-byte, zero-padded write frames.
const writeFrameSize = 128

// Config configures a Driver.
type Config struct {
	Command string
	Args    []string
	Cols    int
	Rows    int
	ExtraEnv map[string]string
	Bus     *protocol.Bus
}

// Driver owns the PTY master and the child process for its lifetime.
type Driver struct {
	cfg Config
	ptm *os.File
	cmd *exec.Cmd

	mu    sync.Mutex
	ended bool
}

// ErrWriteTimeout is returned when a PTY write does not complete before the
// deadline passes, meaning the child is likely not reading stdin.
var ErrWriteTimeout = fmt.Errorf("ptydriver: write timed out")

// New opens a pseudo-terminal at the configured size and spawns the
// command. Fatal at start per spec.md §4.1.
func New(cfg Config) (*Driver, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.ExtraEnv) > 0 {
		env := make([]string, 0, len(os.Environ())+len(cfg.ExtraEnv))
		for _, e := range os.Environ() {
			key := e
			if idx := strings.Index(e, "="); idx >= 0 {
				key = e[:idx]
			}
			if _, override := cfg.ExtraEnv[key]; !override {
				env = append(env, e)
			}
		}
		for k, v := range cfg.ExtraEnv {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	cmd.Dir, _ = os.Getwd()

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(cfg.Rows),
		Cols: uint16(cfg.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("ptydriver: start command: %w", err)
	}

	return &Driver{cfg: cfg, ptm: ptm, cmd: cmd}, nil
}

// Read reads up to len(p) bytes (at most readChunkSize are ever requested
// by Run) from the PTY master.
func (d *Driver) Read(p []byte) (int, error) { return d.ptm.Read(p) }

// Run starts the blocking reader and writer loops described in spec.md
// §4.1. onChunk is called with each chunk read from the child (forwarded
// to the emulator); it must not block. input and internalInput are the two
// write streams: user keystrokes and internal replies (e.g. cursor-position
// DSR responses) respectively. Run blocks until the child exits or the PTY
// read loop errors, then broadcasts End and returns.
func (d *Driver) Run(onChunk func([]byte), input <-chan []byte, internalInput <-chan []byte) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		d.readLoop(onChunk)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer wg.Done()
		d.writeLoop(input, internalInput, writerDone)
	}()

	go func() {
		_ = d.cmd.Wait()
		d.broadcastEnd()
	}()

	// Listen for End on the bus to kill the child and stop the writer.
	ch, unsub := d.cfg.Bus.Subscribe()
	defer unsub()
	for ev := range ch {
		e, ok := ev.(protocol.Event)
		if !ok {
			continue
		}
		switch e.Kind {
		case protocol.EventEnd:
			d.kill()
			close(writerDone)
			return
		case protocol.EventResize:
			d.resize(e.Resize.Rows, e.Resize.Cols)
		}
	}
}

func (d *Driver) readLoop(onChunk func([]byte)) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := d.ptm.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			d.broadcastEnd()
			return
		}
	}
}

func (d *Driver) writeLoop(input, internalInput <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case p, ok := <-internalInput:
			if !ok {
				internalInput = nil
				continue
			}
			d.writeFramed(p)
		case p, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			d.writeFramed(p)
		case <-done:
			return
		}
	}
}

// writeFramed writes p to the PTY master in writeFrameSize, zero-padded
// frames, per spec.md §4.1. Recipients slice at the first NUL or the full
// buffer.
func (d *Driver) writeFramed(p []byte) {
	d.mu.Lock()
	ended := d.ended
	d.mu.Unlock()
	if ended {
		return
	}
	for len(p) > 0 {
		frame := make([]byte, writeFrameSize)
		n := copy(frame, p)
		p = p[n:]
		if _, err := d.ptm.Write(frame); err != nil {
			return
		}
	}
}

// WriteTimeout writes p to the PTY master directly (unframed), giving up
// after timeout if the child isn't reading stdin and the kernel pipe fills.
func (d *Driver) WriteTimeout(p []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := d.ptm.Write(p)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
}

func (d *Driver) resize(rows, cols int) {
	_ = pty.Setsize(d.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// kill terminates the child process. Idempotent.
func (d *Driver) kill() {
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.ptm.Close()
}

// broadcastEnd publishes End exactly once even if called from multiple
// goroutines (child-exit race with explicit End).
func (d *Driver) broadcastEnd() {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return
	}
	d.ended = true
	d.mu.Unlock()
	d.cfg.Bus.End()
}
