//go:build e2e

package e2etests

import (
	"strconv"
	"testing"
	"time"
)

// TestRandomWalkerMovement exercises spec.md §8 scenario 1: the
// random_walker overlay must move within 500 iterations of waiting up to
// 500ms each.
func TestRandomWalkerMovement(t *testing.T) {
	s := startSession(t, "/bin/sh", "--use", "random_walker")

	s.pump(time.Now().Add(time.Second))
	first := firstPixelCoordinates(string(s.buf))

	moved := false
	for i := 0; i < 500; i++ {
		s.pump(time.Now().Add(500 * time.Millisecond))
		if coords := firstPixelCoordinates(string(s.buf)); coords != "" && coords != first {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatal("expected the random walker's pixel to move within 500 iterations")
	}
}

// firstPixelCoordinates returns a coarse fingerprint (byte offset of the
// first half-block glyph) standing in for "coordinates of the cell
// containing a pixel", since a raw ANSI stream doesn't carry row/col
// tags directly; a changing offset across polls is still sufficient
// evidence of movement.
func firstPixelCoordinates(screen string) string {
	idx := indexOfHalfBlock(screen)
	if idx < 0 {
		return ""
	}
	return strconv.Itoa(idx)
}

func indexOfHalfBlock(s string) int {
	const halfBlock = "\u2584" // ▄
	for i := 0; i+len(halfBlock) <= len(s); i++ {
		if s[i:i+len(halfBlock)] == halfBlock {
			return i
		}
	}
	return -1
}

// TestCursorPositionReply exercises spec.md §8 scenario 2: a DSR cursor
// position request sent to the child shell must echo back through the
// terminal within the default timeout.
func TestCursorPositionReply(t *testing.T) {
	s := startSession(t, "/bin/sh")

	if !s.waitForSubstring("$", 2*time.Second) {
		t.Fatal("shell prompt never appeared")
	}

	s.write("echo -en \"\\E[6n\"; read -sdR CURPOS; echo ${CURPOS#*[}\n")

	if !s.waitForSubstring("1;0", 2*time.Second) {
		t.Fatal("expected the cursor position reply to contain 1;0")
	}
}
