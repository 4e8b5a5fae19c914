package input

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/protocol"
)

func collectEvents(t *testing.T, bus *protocol.Bus, n int) []protocol.Event {
	t.Helper()
	ch, unsub := bus.Subscribe()
	defer unsub()

	got := make([]protocol.Event, 0, n)
	deadline := time.After(time.Second)
	for len(got) < n {
		select {
		case v := <-ch:
			if ev, ok := v.(protocol.Event); ok {
				got = append(got, ev)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(got))
		}
	}
	return got
}

func TestRunForwardsPlainBytesAsInputEvents(t *testing.T) {
	bus := protocol.NewBus()
	d := New(Config{Bus: bus, Reader: bytes.NewBufferString("hi")})

	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	events := collectEvents(t, bus, 2)
	assert.Equal(t, protocol.EventInput, events[0].Kind)
	assert.Equal(t, []byte("h"), events[0].Input)
	assert.Equal(t, []byte("i"), events[1].Input)
}

func TestRunDispatchesConfiguredKeybinding(t *testing.T) {
	bus := protocol.NewBus()
	d := New(Config{
		Bus:    bus,
		Reader: bytes.NewBufferString("\x14"),
		Keybindings: map[string]protocol.KeybindAction{
			"\x14": protocol.ActionToggleTattoy,
		},
	})

	go d.Run()

	events := collectEvents(t, bus, 1)
	assert.Equal(t, protocol.EventKeybind, events[0].Kind)
	assert.Equal(t, protocol.ActionToggleTattoy, events[0].Keybind)
}

func TestMouseWheelUpTranslatesToScrollOnPrimaryScreen(t *testing.T) {
	bus := protocol.NewBus()
	d := New(Config{Bus: bus, Reader: bytes.NewBufferString("\x1b[<64;10;5M")})
	// default alternate=false => primary screen active

	go d.Run()

	events := collectEvents(t, bus, 1)
	assert.Equal(t, protocol.EventKeybind, events[0].Kind)
	assert.Equal(t, protocol.ActionScrollUp, events[0].Keybind)
}

func TestMouseWheelIgnoredOnAlternateScreen(t *testing.T) {
	bus := protocol.NewBus()
	d := New(Config{Bus: bus, Reader: bytes.NewBufferString("\x1b[<64;10;5M")})
	d.alternate = true

	go d.Run()

	// Should be forwarded as raw input bytes instead of a scroll keybind.
	events := collectEvents(t, bus, 1)
	require.Equal(t, protocol.EventInput, events[0].Kind)
}

func TestMouseWheelNonWheelButtonIsForwardedNotDispatchedAsScroll(t *testing.T) {
	bus := protocol.NewBus()
	// Button 0 (left click) on the primary screen: recognized as an SGR
	// mouse report but not a wheel event, so it must be forwarded rather
	// than mis-dispatched as a scroll keybind.
	d := New(Config{Bus: bus, Reader: bytes.NewBufferString("\x1b[<0;10;5M")})

	go d.Run()

	events := collectEvents(t, bus, 1)
	assert.Equal(t, protocol.EventInput, events[0].Kind)
	assert.Equal(t, []byte("\x1b[<0;10;5M"), events[0].Input)
}

func TestEscapeWhileScrollingDispatchesScrollExitAndDropsOthers(t *testing.T) {
	bus := protocol.NewBus()
	d := New(Config{Bus: bus, Reader: bytes.NewBufferString("a\x1bb")})
	d.scrolling = true

	go d.Run()

	events := collectEvents(t, bus, 1)
	assert.Equal(t, protocol.EventKeybind, events[0].Kind)
	assert.Equal(t, protocol.ActionScrollExit, events[0].Keybind)
}

func TestWatchBusTracksScrollAndScreenMode(t *testing.T) {
	bus := protocol.NewBus()
	d := New(Config{Bus: bus})

	go d.WatchBus()
	// Give the subscriber goroutine a moment to subscribe.
	time.Sleep(10 * time.Millisecond)

	bus.Publish(protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{
		Surface: protocol.SurfaceScreen, Mode: protocol.ModeAlternate,
	}})
	bus.Publish(protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{
		Surface: protocol.SurfaceScrollback, Position: 3,
	}})

	require.Eventually(t, func() bool { return !d.isPrimaryScreen() }, time.Second, time.Millisecond)
	require.Eventually(t, d.isScrolling, time.Second, time.Millisecond)

	bus.End()
}
