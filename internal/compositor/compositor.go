// Package compositor implements C6: pure functions that blend layered cell
// grids in z-order, enforce a minimum contrast ratio, and guard the cursor
// cell against half-block corruption. Grounded on
// internal/overlay/render.go's RenderLineFrom (the teacher's own
// "walk cells, compare/merge formatting" shape), generalized from
// single-surface rendering to N-layer blending, and on
// github.com/lucasb-eyer/go-colorful for the color-science pieces the
// teacher's render code doesn't need but the spec does.
package compositor

import (
	"github.com/lucasb-eyer/go-colorful"

	"tattoy/internal/cell"
)

// Layer is one producer's contribution: a z-index and a surface. Layer 0
// is implicitly the PTY; negative layers composite below it, positive
// above.
type Layer struct {
	Z       int16
	Opacity float32
	Surface *cell.Surface
}

// Composite blends layers in ascending Z order onto a fresh surface of the
// given size. Cells outside any given layer's bounds are treated as blank
// (fully transparent).
func Composite(width, height int, layers []Layer) *cell.Surface {
	sortByZ(layers)
	out := cell.NewSurface(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := cell.Blank
			for _, l := range layers {
				above := l.Surface.At(x, y)
				acc = BlendCell(acc, above, clamp01(l.Opacity))
			}
			out.Set(x, y, acc)
		}
	}
	return out
}

func sortByZ(layers []Layer) {
	// Insertion sort: layer counts are small (single digits), and this
	// keeps the function allocation-free and stable for equal Z (spec.md
	// §3 leaves ordering among equal layers undefined, so stability is a
	// bonus, not a requirement).
	for i := 1; i < len(layers); i++ {
		for j := i; j > 0 && layers[j].Z < layers[j-1].Z; j-- {
			layers[j], layers[j-1] = layers[j-1], layers[j]
		}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BlendCell implements the five-step blending rule from spec.md §4.4 for a
// single cell: below is the accumulated composite so far, above is the
// next layer's cell, opacity is above's layer opacity.
func BlendCell(below, above cell.Cell, opacity float32) cell.Cell {
	if opacity == 0 {
		return below
	}
	kind := cell.Kind(above.Grapheme)

	switch kind {
	case cell.GraphemeEmpty:
		// A blank cell whose background is Default carries no colour of
		// its own: it is fully transparent and leaves below unchanged.
		if above.Background.Kind == cell.ColorDefault {
			return below
		}
		// Step 2: blend fg/bg of below toward above.background*opacity;
		// grapheme unchanged.
		out := below
		out.Foreground = lerpColor(below.Foreground, above.Background, opacity)
		out.Background = lerpColor(below.Background, above.Background, opacity)
		return materializeAlpha(out)

	case cell.GraphemeHalfUpper, cell.GraphemeHalfLower:
		belowKind := cell.Kind(below.Grapheme)
		if (belowKind == cell.GraphemeHalfUpper || belowKind == cell.GraphemeHalfLower) && belowKind != kind {
			// Step 3: opposing half-blocks — invert: above.bg → below.fg,
			// above.fg → below.bg.
			out := below
			out.Foreground = lerpColor(below.Foreground, above.Background, opacity)
			out.Background = lerpColor(below.Background, above.Foreground, opacity)
			out.Grapheme = canonicalizeHalfBlock(below.Grapheme, above.Grapheme)
			return materializeAlpha(out)
		}
		// Step 4: replace grapheme, blend both attributes.
		out := above
		out.Foreground = lerpColor(below.Foreground, above.Foreground, opacity)
		out.Background = lerpColor(below.Background, above.Background, opacity)
		return materializeAlpha(out)

	default: // text
		// Step 4: replace grapheme, blend both attributes.
		out := above
		out.Foreground = lerpColor(below.Foreground, above.Foreground, opacity)
		out.Background = lerpColor(below.Background, above.Background, opacity)
		return materializeAlpha(out)
	}
}

// canonicalizeHalfBlock implements spec.md §4.4 step 5: if the composite
// grapheme would be ▄ while above was ▀, rewrite to the canonical ▀.
func canonicalizeHalfBlock(belowGrapheme, aboveGrapheme string) string {
	if aboveGrapheme == string(cell.HalfBlockUpper) {
		return string(cell.HalfBlockUpper)
	}
	return belowGrapheme
}

// materializeAlpha always resolves alpha to fully opaque at emission time,
// per spec.md §4.4 step 5 and §9 (the real terminal ignores alpha).
func materializeAlpha(c cell.Cell) cell.Cell {
	if c.Foreground.Kind == cell.ColorTrueColor {
		c.Foreground.A = 255
	}
	if c.Background.Kind == cell.ColorTrueColor {
		c.Background.A = 255
	}
	return c
}

// lerpColor blends from toward to by t ∈ [0,1]. Only true-color and
// palette colors carry meaningful RGB; a Default-colored operand that must
// be blended is treated as black (see toColorful) before interpolating.
func lerpColor(from, to cell.Color, t float32) cell.Color {
	if t >= 1 {
		return to
	}
	if t <= 0 {
		return from
	}
	fc := toColorful(from)
	tc := toColorful(to)
	r := fc.R + float64(t)*(tc.R-fc.R)
	g := fc.G + float64(t)*(tc.G-fc.G)
	b := fc.B + float64(t)*(tc.B-fc.B)
	return cell.RGBA(clampByte(r*255), clampByte(g*255), clampByte(b*255), 255)
}

func toColorful(c cell.Color) colorful.Color {
	switch c.Kind {
	case cell.ColorTrueColor:
		return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	case cell.ColorPalette:
		r, g, b := cell.PaletteRGB(c.Index)
		return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	default:
		return colorful.Color{R: 0, G: 0, B: 0}
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// CursorGuard replaces a half-block glyph under the cursor with a space
// (copying its attributes) so the cursor shape is not visually corrupted
// by pixel graphics, per spec.md §4.4.
func CursorGuard(s *cell.Surface) {
	c := s.At(s.Cursor.X, s.Cursor.Y)
	if c.IsHalfBlock() {
		c.Grapheme = " "
		s.Set(s.Cursor.X, s.Cursor.Y, c)
	}
}
