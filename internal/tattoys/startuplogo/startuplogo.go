// Package startuplogo implements the "startup_logo" overlay: a
// centered ASCII logo that appears for a few seconds when the process
// starts, then smoothstep-fades out a row at a time and withdraws itself
// for good. Grounded on crates/tattoy/src/tattoys/startup_logo.rs
// (original_source).
package startuplogo

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"tattoy/internal/cell"
	"tattoy/internal/palette"
	"tattoy/internal/protocol"
	"tattoy/internal/tattoy"
)

// logo is the ASCII art shown at startup, matching the original's
// include_str!("../../logo.txt").
const logo = ` _____  _____ _____ _____ _____ __ __
|_   _||  _  |_   _|_   _|     |  |  |
  | |  |     | | |   | | |  |  |_   _|
  |_|  |__|__| |_|   |_| |_____| |_|
`

// startFadeAfter is how long the logo stays fully opaque before fading,
// in seconds, matching startup_logo.rs's start_fade_after.
const startFadeAfter = 1.5

// Overlay is the startup_logo producer.
type Overlay struct {
	base      *tattoy.Base
	palette   *palette.Palette
	lines     []string
	width     int
	height    int
	startedAt time.Time
	finished  bool
}

// New constructs a startup_logo overlay at layer 200, the original's
// "above everything, briefly" z-order.
func New(bus *protocol.Bus, agg *tattoy.Aggregator, frameRate float64, pal *palette.Palette) *Overlay {
	lines := strings.Split(strings.Trim(logo, "\n"), "\n")
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}
	return &Overlay{
		base:      tattoy.NewBase("startup_logo", 200, frameRate, bus, agg),
		palette:   pal,
		lines:     lines,
		width:     width,
		height:    len(lines),
		startedAt: time.Now(),
	}
}

// Base exposes the embedded protocol state for tattoy.Run.
func (o *Overlay) Base() *tattoy.Base { return o.base }

// HandleEvent is a no-op beyond Base's common handling.
func (o *Overlay) HandleEvent(protocol.Event) {}

// Render centers and colorizes the logo, fading it out after
// startFadeAfter seconds; once fully faded it submits one blank frame and
// stops rendering forever, matching the original's is_finished latch.
func (o *Overlay) Render() *cell.Surface {
	if o.finished {
		return nil
	}

	size := o.base.TTYSize()
	ttyWidth, ttyHeight := size.Cols, size.Rows
	if ttyWidth <= o.width || ttyHeight <= o.height {
		return nil
	}

	if o.fadeOut(0) == 0 {
		o.finished = true
		return cell.NewSurface(ttyWidth, ttyHeight)
	}

	surface := cell.NewSurface(ttyWidth, ttyHeight)
	startY := ttyHeight/2 - o.height/2
	startX := ttyWidth/2 - o.width/2

	for row, line := range o.lines {
		for col, ch := range line {
			if ch == ' ' {
				continue
			}
			r, g, b, a := o.colorAt(col, row)
			if a <= 0 {
				continue
			}
			surface.Set(startX+col, startY+row, cell.Cell{
				Grapheme:   string(ch),
				Foreground: cell.RGBA(r, g, b, 255),
			})
		}
	}
	return surface
}

// colorAt derives a palette-index-driven colour for one logo character,
// occasionally blending in a neighboring row's colour for visual
// texture, matching get_colour's seeded jitter.
func (o *Overlay) colorAt(x, y int) (r, g, b uint8, a float32) {
	seed := int64(x * y)
	rng := rand.New(rand.NewSource(seed))

	index := uint8(clampInt(y, 1, 16))
	mainColor := o.palette.TrueColor(index)

	if rng.Intn(3) == 0 {
		if rng.Intn(2) == 0 {
			index = uint8(clampInt(int(index)-1, 1, 16))
		} else {
			index = uint8(clampInt(int(index)+1, 1, 16))
		}
		blend := o.palette.TrueColor(index)
		mainColor = palette.RGB{
			R: multiplyChannel(mainColor.R, blend.R),
			G: multiplyChannel(mainColor.G, blend.G),
			B: multiplyChannel(mainColor.B, blend.B),
		}
	}

	fade := o.fadeOut(index)
	return scaleChannel(mainColor.R, fade), scaleChannel(mainColor.G, fade), scaleChannel(mainColor.B, fade), fade
}

func multiplyChannel(a, b uint8) uint8 {
	// Half-weighted multiply, matching the original's alpha=0.5 blend
	// layer composited with the Multiply blend mode.
	return uint8((float64(a)/255*0.5 + float64(a)/255*float64(b)/255*0.5) * 255)
}

func scaleChannel(v uint8, factor float32) uint8 {
	scaled := float64(v) * float64(clamp01(factor))
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

// fadeOut computes the fade-out opacity at age = now - startedAt,
// offset by index/32 seconds so rows with a higher palette index fade
// slightly earlier than lower ones, matching startup_logo.rs's fade_out.
func (o *Overlay) fadeOut(index uint8) float32 {
	age := time.Since(o.startedAt).Seconds()
	if age < startFadeAfter {
		return 1
	}
	fromBottom := float64(index) / 32.0
	x := age - startFadeAfter + fromBottom
	return smoothstep(1, 0, float32(x))
}

func smoothstep(edge0, edge1, x float32) float32 {
	if edge0 == edge1 {
		return 0
	}
	t := (x - edge0) / (edge1 - edge0)
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

func clamp01(v float32) float32 {
	return float32(math.Min(1, math.Max(0, float64(v))))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
