// Package scrollbar implements the "scrollbar" overlay: a translucent
// thumb along the right edge of the screen, shown only while the user is
// scrolled back into history. Grounded on
// crates/tattoy/src/tattoys/scrollbar.rs (original_source).
package scrollbar

import (
	"tattoy/internal/cell"
	"tattoy/internal/protocol"
	"tattoy/internal/tattoy"
)

// Overlay is the scrollbar producer.
type Overlay struct {
	base         *tattoy.Base
	wasScrolling bool
}

// New constructs a scrollbar overlay at layer 100, matching the original's
// "above everything" z-order.
func New(bus *protocol.Bus, agg *tattoy.Aggregator, frameRate float64) *Overlay {
	return &Overlay{base: tattoy.NewBase("scrollbar", 100, frameRate, bus, agg)}
}

// Base exposes the embedded protocol state for tattoy.Run.
func (o *Overlay) Base() *tattoy.Base { return o.base }

// HandleEvent is a no-op beyond Base's common handling.
func (o *Overlay) HandleEvent(protocol.Event) {}

// Render draws the thumb while scrolling, and a single blank frame the
// tick after scrolling ends (to withdraw the previous contribution),
// matching the original's cleanup branch.
func (o *Overlay) Render() *cell.Surface {
	size := o.base.TTYSize()
	width, height := size.Cols, size.Rows
	if width < 1 || height < 1 {
		return nil
	}

	scrolling := o.base.IsScrolling()
	if !scrolling {
		if o.wasScrolling {
			o.wasScrolling = false
			return cell.NewSurface(width, height)
		}
		return nil
	}
	o.wasScrolling = true

	scrollback := o.base.Scrollback()
	if scrollback == nil {
		return nil
	}

	start, end := thumbBounds(o.base.ScrollPosition(), scrollback.Height, height)
	if start > end {
		return nil
	}

	surface := cell.NewSurface(width, height)
	thumb := cell.Cell{
		Grapheme:   " ",
		Background: cell.RGBA(255, 255, 255, 128),
	}
	for y := start; y <= end; y++ {
		surface.Set(width-1, y, thumb)
	}
	return surface
}

// thumbBounds computes the scrollbar's start/end rows from the scrollback
// position and height, per scrollbar.rs's get_start_end.
func thumbBounds(scrollPosition, scrollbackHeight, height int) (start, end int) {
	if scrollbackHeight <= 0 {
		return 0, 0
	}

	topPosition := scrollbackHeight - scrollPosition - height
	topFraction := float64(topPosition) / float64(scrollbackHeight)
	start = int(topFraction * float64(height))

	bottomPosition := scrollbackHeight - scrollPosition
	bottomFraction := float64(bottomPosition) / float64(scrollbackHeight)
	end = int(bottomFraction * float64(height))

	start = clamp(start, 0, height-1)
	end = clamp(end, 0, height-1)
	return start, end
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
