package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/protocol"
)

func TestNamesIsSortedAndNonEmpty(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestDiscoverDirectoryReturnsNilForMissingDir(t *testing.T) {
	assert.Nil(t, DiscoverDirectory("/no/such/directory/exists"))
}

func TestCycleWrapsAroundBothDirections(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, -10, "/no/such/directory", "", true)
	require.NotEmpty(t, o.names)

	start := o.current
	o.cycle(-1)
	assert.Equal(t, (start-1+len(o.names))%len(o.names), o.current)
	o.cycle(1)
	assert.Equal(t, start, o.current)
}

func TestRenderProducesHalfBlockSurfaceMatchingTTYSize(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, -10, "/no/such/directory", "", false)
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 20, Rows: 10}})

	surface := o.Render()
	require.NotNil(t, surface)
	assert.Equal(t, 20, surface.Width)
	assert.Equal(t, 10, surface.Height)

	for _, c := range surface.Cells {
		assert.Equal(t, string(rune('▀')), c.Grapheme)
	}
}

func TestHandleEventCyclesOnKeybind(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, -10, "/no/such/directory", "", false)
	start := o.current

	o.HandleEvent(protocol.Event{Kind: protocol.EventKeybind, Keybind: protocol.ActionShaderNext})
	assert.Equal(t, (start+1)%len(o.names), o.current)
}

func TestPlasmaStaysWithinUnitRange(t *testing.T) {
	uni := Uniforms{Time: 1.23}
	r, g, b := plasma(0.5, 0.5, uni)
	for _, v := range []float64{r, g, b} {
		assert.True(t, v >= 0 && v <= 1)
	}
}
