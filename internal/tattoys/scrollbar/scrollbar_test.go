package scrollbar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tattoy/internal/cell"
	"tattoy/internal/protocol"
)

func TestThumbBoundsMiddleOfScrollback(t *testing.T) {
	start, end := thumbBounds(50, 200, 20)
	assert.LessOrEqual(t, start, end)
	assert.GreaterOrEqual(t, start, 0)
	assert.Less(t, end, 20)
}

func TestRenderReturnsNilWhenNotScrolling(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30)
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 20, Rows: 10}})

	assert.Nil(t, o.Render())
}

func TestRenderDrawsThumbOnRightEdgeWhileScrolling(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30)
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 20, Rows: 10}})
	o.base.HandleCommon(protocol.Event{
		Kind: protocol.EventOutput,
		Output: protocol.Output{
			Surface:  protocol.SurfaceScrollback,
			Complete: true,
			Position: 50,
			Snapshot: cell.NewSurface(20, 200),
		},
	})

	surface := o.Render()
	if assert.NotNil(t, surface) {
		found := false
		for y := 0; y < surface.Height; y++ {
			if surface.At(19, y).Background.Kind == cell.ColorTrueColor {
				found = true
			}
		}
		assert.True(t, found, "expected a lit cell on the right edge")
	}
}

func TestRenderClearsOnceAfterScrollingEnds(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30)
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 20, Rows: 10}})
	o.base.HandleCommon(protocol.Event{
		Kind: protocol.EventOutput,
		Output: protocol.Output{
			Surface:  protocol.SurfaceScrollback,
			Complete: true,
			Position: 50,
			Snapshot: cell.NewSurface(20, 200),
		},
	})
	o.Render()

	o.base.HandleCommon(protocol.Event{
		Kind: protocol.EventOutput,
		Output: protocol.Output{
			Surface:  protocol.SurfaceScrollback,
			Complete: true,
			Position: 0,
			Snapshot: cell.NewSurface(20, 200),
		},
	})

	cleared := o.Render()
	assert.NotNil(t, cleared)

	again := o.Render()
	assert.Nil(t, again)
}
