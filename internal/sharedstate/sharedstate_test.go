package sharedstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"tattoy/internal/cell"
	"tattoy/internal/config"
	"tattoy/internal/protocol"
)

func TestNewSeedsConfigAndEnablesRendering(t *testing.T) {
	cfg := config.Default()
	s := New(cfg)

	assert.Equal(t, cfg.Term, s.Config().Term)
	assert.True(t, s.IsRenderingEnabled())
	assert.False(t, s.IsScrolling())
	assert.False(t, s.IsAlternateScreen())
	assert.False(t, s.IsLogging())
	assert.Nil(t, s.Screen())
}

func TestSetConfigReplacesWholeRecord(t *testing.T) {
	s := New(config.Default())
	s.SetConfig(config.Config{Term: "xterm-ghost"})
	assert.Equal(t, "xterm-ghost", s.Config().Term)
}

func TestKeybindingsRoundTrip(t *testing.T) {
	s := New(config.Default())
	table := map[string]protocol.KeybindAction{"\x14": protocol.ActionToggleTattoy}
	s.SetKeybindings(table)
	assert.Equal(t, protocol.ActionToggleTattoy, s.Keybindings()["\x14"])
}

func TestSizeRoundTrip(t *testing.T) {
	s := New(config.Default())
	s.SetSize(Size{Cols: 80, Rows: 24})
	assert.Equal(t, Size{Cols: 80, Rows: 24}, s.Size())
}

func TestScreenAndScrollbackRoundTrip(t *testing.T) {
	s := New(config.Default())
	screen := cell.NewSurface(80, 24)
	scrollback := cell.NewSurface(80, 1000)

	s.SetScreen(screen)
	s.SetScrollback(scrollback)

	assert.Same(t, screen, s.Screen())
	assert.Same(t, scrollback, s.Scrollback())
}

func TestBooleanFlagsRoundTrip(t *testing.T) {
	s := New(config.Default())

	s.SetScrolling(true)
	assert.True(t, s.IsScrolling())

	s.SetAlternateScreen(true)
	assert.True(t, s.IsAlternateScreen())

	s.SetRenderingEnabled(false)
	assert.False(t, s.IsRenderingEnabled())

	s.SetLogging(true)
	assert.True(t, s.IsLogging())
}

func TestPTYSequenceRoundTrip(t *testing.T) {
	s := New(config.Default())
	s.SetPTYSequence(42)
	assert.Equal(t, uint64(42), s.PTYSequence())
}

// TestConcurrentAccessDoesNotRace exercises every field's lock under -race;
// each field is independent so concurrent readers/writers on different
// fields must never block or corrupt one another.
func TestConcurrentAccessDoesNotRace(t *testing.T) {
	s := New(config.Default())
	var wg sync.WaitGroup

	writers := []func(){
		func() { s.SetSize(Size{Cols: 100, Rows: 40}) },
		func() { s.SetScrolling(true) },
		func() { s.SetAlternateScreen(true) },
		func() { s.SetRenderingEnabled(true) },
		func() { s.SetLogging(true) },
		func() { s.SetPTYSequence(1) },
		func() { s.SetScreen(cell.NewSurface(10, 10)) },
	}
	readers := []func(){
		func() { s.Size() },
		func() { s.IsScrolling() },
		func() { s.IsAlternateScreen() },
		func() { s.IsRenderingEnabled() },
		func() { s.IsLogging() },
		func() { s.PTYSequence() },
		func() { s.Screen() },
	}

	for i := 0; i < 50; i++ {
		for _, fn := range writers {
			wg.Add(1)
			go func(fn func()) { defer wg.Done(); fn() }(fn)
		}
		for _, fn := range readers {
			wg.Add(1)
			go func(fn func()) { defer wg.Done(); fn() }(fn)
		}
	}
	wg.Wait()
}
