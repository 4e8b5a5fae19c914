//go:build e2e

// Package e2etests drives the compiled tattoy binary under a real PTY,
// mirroring the teacher's build-binary-then-exec-against-it harness
// (e2etests/framework_test.go's TestMain + runH2) but replacing
// one-shot subcommand invocation with an interactive PTY session, since
// tattoy is a single long-running wrapper rather than a CLI with
// subcommands.
package e2etests

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
)

var tattoyBinary string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "tattoy-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "e2e: create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmp)

	tattoyBinary = filepath.Join(tmp, "tattoy")
	build := exec.Command("go", "build", "-o", tattoyBinary, "./cmd/tattoy")
	build.Dir = filepath.Join(mustGetwd(), "..")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "e2e: build tattoy: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func mustGetwd() string {
	dir, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return dir
}

// session is a tattoy process running under a PTY, giving the test the
// same write-stdin/read-screen access a real user has.
type session struct {
	cmd *exec.Cmd
	f   *os.File

	buf []byte
}

// startSession launches tattoy with configDir isolated to a fresh temp
// directory (so a test never touches the developer's own config) and the
// given extra args (e.g. "--use", "random_walker").
func startSession(t *testing.T, command string, args ...string) *session {
	t.Helper()
	configDir := t.TempDir()

	fullArgs := append([]string{"--config-dir", configDir, "--command", command}, args...)
	cmd := exec.Command(tattoyBinary, fullArgs...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("start tattoy under pty: %v", err)
	}

	s := &session{cmd: cmd, f: f}
	t.Cleanup(func() {
		_ = f.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return s
}

func (s *session) write(p string) {
	_, _ = s.f.Write([]byte(p))
}

// resize changes the PTY's window size; the kernel delivers SIGWINCH to
// the foreground process group automatically.
func (s *session) resize(rows, cols int) {
	_ = pty.Setsize(s.f, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// pump drains whatever output is currently available into the session's
// accumulated screen buffer without blocking past deadline.
func (s *session) pump(deadline time.Time) {
	chunk := make([]byte, 4096)
	_ = s.f.SetReadDeadline(deadline)
	for {
		n, err := s.f.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			return
		}
		if time.Now().After(deadline) {
			return
		}
	}
}

// waitForSubstring polls the accumulated screen buffer for needle, up to
// timeout, matching the Steppable Terminal helper's per-operation polling
// loop described in spec.md §5 (millisecond granularity, default 500ms).
func (s *session) waitForSubstring(needle string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.pump(time.Now().Add(20 * time.Millisecond))
		if strings.Contains(string(s.buf), needle) {
			return true
		}
	}
	return false
}
