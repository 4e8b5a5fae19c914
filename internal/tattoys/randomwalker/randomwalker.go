// Package randomwalker implements the "random_walker" overlay: a single
// pixel that smoothly drifts around the screen, randomly but gradually
// changing colour each tick. Grounded on
// crates/tattoy/src/tattoys/random_walker.rs (original_source); the
// termwiz-specific half-block cell surgery in that file's add_pixel is
// replaced here by a direct cell write since this design's compositor
// (internal/compositor) already owns cross-layer half-block blending.
package randomwalker

import (
	"math/rand"

	"tattoy/internal/cell"
	"tattoy/internal/protocol"
	"tattoy/internal/tattoy"
)

// colourChangeRate bounds how much each RGB channel can drift per tick,
// matching random_walker.rs's COLOUR_CHANGE_RATE.
const colourChangeRate = 0.3

// Overlay is the random_walker producer.
type Overlay struct {
	base *tattoy.Base

	x, halfY int
	r, g, b  float64
}

// New constructs a random_walker overlay seeded with a random starting
// position and colour across the current tty size, and registers it on
// the bus under layer -5, matching the original's "beneath everything"
// z-order.
func New(bus *protocol.Bus, agg *tattoy.Aggregator, frameRate float64) *Overlay {
	base := tattoy.NewBase("random_walker", -5, frameRate, bus, agg)
	size := base.TTYSize()
	width, height := size.Cols, size.Rows
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Overlay{
		base: base,
		x:    1 + rand.Intn(maxInt(width-1, 1)),
		halfY: 1 + rand.Intn(maxInt(height*2-1, 1)),
		r:    0.1 + rand.Float64()*0.9,
		g:    0.1 + rand.Float64()*0.9,
		b:    0.1 + rand.Float64()*0.9,
	}
}

// Base exposes the embedded protocol state for tattoy.Run.
func (o *Overlay) Base() *tattoy.Base { return o.base }

// HandleEvent is a no-op beyond Base's common handling; random_walker has
// no overlay-specific events to react to.
func (o *Overlay) HandleEvent(protocol.Event) {}

// Render steps the walk by one tick and returns a surface containing only
// the one lit pixel; everywhere else is blank (transparent) so lower
// layers show through.
func (o *Overlay) Render() *cell.Surface {
	size := o.base.TTYSize()
	width, height := size.Cols, size.Rows
	if width < 1 || height < 1 {
		return nil
	}

	o.step(width, height)

	surface := cell.NewSurface(width, height)
	row := o.halfY / 2
	if row >= height {
		row = height - 1
	}
	upperHalf := o.halfY%2 == 0

	c := cell.RGBA(channel(o.r), channel(o.g), channel(o.b), 255)
	px := cell.Cell{Foreground: c}
	if upperHalf {
		px.Grapheme = string(cell.HalfBlockUpper)
	} else {
		px.Grapheme = string(cell.HalfBlockLower)
	}
	surface.Set(o.x, row, px)
	return surface
}

func (o *Overlay) step(width, height int) {
	o.x = clampInt(o.x+rand.Intn(3)-1, 1, width-1)
	o.halfY = clampInt(o.halfY+rand.Intn(3)-1, 1, height*2-1)

	o.r = clampFloat(o.r + rand.Float64()*colourChangeRate - colourChangeRate/2)
	o.g = clampFloat(o.g + rand.Float64()*colourChangeRate - colourChangeRate/2)
	o.b = clampFloat(o.b + rand.Float64()*colourChangeRate - colourChangeRate/2)
}

func channel(v float64) uint8 {
	return uint8(clampFloat(v) * 255)
}

func clampFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
