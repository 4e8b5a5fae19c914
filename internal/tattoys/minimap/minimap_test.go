package minimap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tattoy/internal/cell"
	"tattoy/internal/palette"
	"tattoy/internal/protocol"
)

func TestFitAspectPreservesRatioWithinBounds(t *testing.T) {
	w, h := fitAspect(100, 400, 10, 40)
	assert.LessOrEqual(t, w, 10)
	assert.LessOrEqual(t, h, 40)
	assert.Greater(t, w, 0)
	assert.Greater(t, h, 0)
}

func TestRenderReturnsNilWhenNotScrolling(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, palette.Default())
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 20, Rows: 10}})

	assert.Nil(t, o.Render())
}

func TestRenderProducesThumbnailWhileScrolling(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, palette.Default())
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 20, Rows: 10}})
	o.base.HandleCommon(protocol.Event{
		Kind: protocol.EventOutput,
		Output: protocol.Output{
			Surface:  protocol.SurfaceScrollback,
			Complete: true,
			Position: 5,
			Snapshot: cell.NewSurface(20, 100),
		},
	})

	surface := o.Render()
	if assert.NotNil(t, surface) {
		assert.Equal(t, 20, surface.Width)
		assert.Equal(t, 10, surface.Height)
	}
}
