package ptydriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tattoy/internal/protocol"
)

func TestRunEchoesChildOutputAndBroadcastsEndOnExit(t *testing.T) {
	bus := protocol.NewBus()
	d, err := New(Config{Command: "sh", Args: []string{"-c", "echo hi; sleep 0.2"}, Cols: 80, Rows: 24, Bus: bus})
	require.NoError(t, err)

	ch, unsub := bus.Subscribe()
	defer unsub()

	received := make(chan []byte, 16)
	input := make(chan []byte)
	internal := make(chan []byte)

	done := make(chan struct{})
	go func() {
		d.Run(func(chunk []byte) { received <- chunk }, input, internal)
		close(done)
	}()

	var sawOutput bool
	var sawEnd bool
	timeout := time.After(3 * time.Second)
	for !sawEnd {
		select {
		case <-received:
			sawOutput = true
		case ev := <-ch:
			if e, ok := ev.(protocol.Event); ok && e.Kind == protocol.EventEnd {
				sawEnd = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for child output/End")
		}
	}
	require.True(t, sawOutput)
}

func TestWriteTimeoutReturnsWhenChildStopsReading(t *testing.T) {
	bus := protocol.NewBus()
	d, err := New(Config{Command: "sh", Args: []string{"-c", "sleep 1"}, Cols: 80, Rows: 24, Bus: bus})
	require.NoError(t, err)
	defer d.kill()

	// The child never reads stdin and exits quickly; eventually the pipe is
	// gone and the write either errors or times out — either is acceptable,
	// we just assert it never hangs forever.
	done := make(chan struct{})
	go func() {
		_, _ = d.WriteTimeout(make([]byte, 128), 50*time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WriteTimeout did not return within its deadline")
	}
}
