package tattoy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/cell"
	"tattoy/internal/protocol"
)

func TestHandleCommonAppliesCompleteScreenOutput(t *testing.T) {
	b := NewBase("test", 1, 0, protocol.NewBus(), nil)
	surface := cell.NewSurface(4, 2)
	handled := b.HandleCommon(protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{
		Surface: protocol.SurfaceScreen, Complete: true, Snapshot: surface, Mode: protocol.ModeAlternate,
	}})
	assert.True(t, handled)
	assert.Same(t, surface, b.Screen())
	assert.True(t, b.IsAlternateScreen())
}

func TestHandleCommonUpdatesResize(t *testing.T) {
	b := NewBase("test", 1, 0, protocol.NewBus(), nil)
	b.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Rows: 40, Cols: 120}})
	assert.Equal(t, cell.Size{Rows: 40, Cols: 120}, b.TTYSize())
}

func TestIsScrollingReflectsScrollPosition(t *testing.T) {
	b := NewBase("test", 1, 0, protocol.NewBus(), nil)
	assert.False(t, b.IsScrolling())

	b.HandleCommon(protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{
		Surface: protocol.SurfaceScrollback, Complete: true, Snapshot: cell.NewSurface(1, 1), Position: 5,
	}})
	assert.True(t, b.IsScrolling())
	assert.False(t, b.IsScrollingEnd())

	b.HandleCommon(protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{
		Surface: protocol.SurfaceScrollback, Complete: true, Snapshot: cell.NewSurface(1, 1), Position: 0,
	}})
	assert.False(t, b.IsScrolling())
	assert.True(t, b.IsScrollingEnd())
}

func TestIsScreenAndScrollbackOutputChanged(t *testing.T) {
	screenEv := protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{Surface: protocol.SurfaceScreen}}
	scrollbackEv := protocol.Event{Kind: protocol.EventOutput, Output: protocol.Output{Surface: protocol.SurfaceScrollback}}
	assert.True(t, IsScreenOutputChanged(screenEv))
	assert.False(t, IsScrollbackOutputChanged(screenEv))
	assert.True(t, IsScrollbackOutputChanged(scrollbackEv))
	assert.False(t, IsScreenOutputChanged(scrollbackEv))
}

func TestSleepUntilNextFrameTickNeverBlocksNegative(t *testing.T) {
	b := NewBase("test", 1, 1000, protocol.NewBus(), nil)
	start := time.Now()
	b.SleepUntilNextFrameTick()
	b.SleepUntilNextFrameTick()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

type recordingProducer struct {
	rendered chan struct{}
}

func (p *recordingProducer) Render() *cell.Surface {
	select {
	case p.rendered <- struct{}{}:
	default:
	}
	return cell.NewSurface(1, 1)
}

func (p *recordingProducer) HandleEvent(protocol.Event) {}

func TestRunStopsOnEnd(t *testing.T) {
	bus := protocol.NewBus()
	agg := NewAggregator(1, 1, func(*cell.Surface) {})
	b := NewBase("test", 1, 200, bus, agg)
	p := &recordingProducer{rendered: make(chan struct{}, 1)}

	done := make(chan struct{})
	go func() {
		Run(b, p)
		close(done)
	}()

	select {
	case <-p.rendered:
	case <-time.After(time.Second):
		t.Fatal("expected at least one Render call")
	}

	bus.End()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after End")
	}
}

type panickingProducer struct{}

func (panickingProducer) Render() *cell.Surface        { panic("boom") }
func (panickingProducer) HandleEvent(protocol.Event) {}

func TestRunRecoversPanicAndPublishesNotification(t *testing.T) {
	bus := protocol.NewBus()
	agg := NewAggregator(1, 1, func(*cell.Surface) {})
	b := NewBase("crasher", 1, 500, bus, agg)

	ch, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		Run(b, panickingProducer{})
		close(done)
	}()

	var got protocol.Event
	found := false
	deadline := time.After(time.Second)
	for !found {
		select {
		case v := <-ch:
			if ev, ok := v.(protocol.Event); ok && ev.Kind == protocol.EventNotification {
				got = ev
				found = true
			}
		case <-deadline:
			t.Fatal("expected a notification after the producer panicked")
		}
	}
	assert.Equal(t, protocol.LevelError, got.Notification.Level)
	assert.Contains(t, got.Notification.Title, "crasher")

	bus.End()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after End")
	}
}

func TestAggregatorComposesLayersInZOrder(t *testing.T) {
	var got *cell.Surface
	agg := NewAggregator(1, 1, func(s *cell.Surface) { got = s })

	below := cell.NewSurface(1, 1)
	below.Set(0, 0, cell.Cell{Grapheme: "a"})
	above := cell.NewSurface(1, 1)
	above.Set(0, 0, cell.Cell{Grapheme: "b"})

	agg.Submit("below", 0, below)
	agg.Submit("above", 1, above)

	require.NotNil(t, got)
	assert.Equal(t, "b", got.At(0, 0).Grapheme)
}

func TestAggregatorWithdrawRemovesContribution(t *testing.T) {
	var got *cell.Surface
	agg := NewAggregator(1, 1, func(s *cell.Surface) { got = s })

	layer := cell.NewSurface(1, 1)
	layer.Set(0, 0, cell.Cell{Grapheme: "x"})
	agg.Submit("only", 0, layer)
	require.Equal(t, "x", got.At(0, 0).Grapheme)

	agg.Withdraw("only")
	assert.Equal(t, "", got.At(0, 0).Grapheme)
}
