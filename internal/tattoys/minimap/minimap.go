// Package minimap implements the "minimap" overlay: while scrolled back
// into history, a downsampled thumbnail of the scrollback buffer is drawn
// in the bottom-right corner, giving a bird's-eye view of where the
// current viewport sits. Grounded on
// crates/tattoy/src/tattoys/minimap.rs (original_source); its
// image::DynamicImage::resize(..., Lanczos3) downsampling is replaced here
// by golang.org/x/image/draw's CatmullRom scaler, the closest
// high-quality resampling kernel the ecosystem offers without a Lanczos
// implementation of its own.
package minimap

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"tattoy/internal/cell"
	"tattoy/internal/palette"
	"tattoy/internal/protocol"
	"tattoy/internal/tattoy"
)

// maxWidth is the minimap's maximum width in terminal columns, matching
// minimap.rs's MAX_WIDTH.
const maxWidth = 10

// Overlay is the minimap producer.
type Overlay struct {
	base         *tattoy.Base
	palette      *palette.Palette
	wasScrolling bool
}

// New constructs a minimap overlay at layer 100. pal resolves palette
// indexed and default colors to true-color RGB for the thumbnail; pass
// palette.Default() when no calibrated palette has been loaded.
func New(bus *protocol.Bus, agg *tattoy.Aggregator, frameRate float64, pal *palette.Palette) *Overlay {
	return &Overlay{base: tattoy.NewBase("minimap", 100, frameRate, bus, agg), palette: pal}
}

// Base exposes the embedded protocol state for tattoy.Run.
func (o *Overlay) Base() *tattoy.Base { return o.base }

// HandleEvent is a no-op beyond Base's common handling.
func (o *Overlay) HandleEvent(protocol.Event) {}

// Render draws the scrollback thumbnail while scrolling, and a single
// blank frame the tick scrolling ends, matching minimap.rs's cleanup
// branch.
func (o *Overlay) Render() *cell.Surface {
	size := o.base.TTYSize()
	width, height := size.Cols, size.Rows
	if width < 1 || height < 1 {
		return nil
	}

	scrolling := o.base.IsScrolling()
	if scrolling != o.wasScrolling {
		o.wasScrolling = scrolling
		if !scrolling {
			return cell.NewSurface(width, height)
		}
	}
	if !scrolling {
		return nil
	}

	scrollback := o.base.Scrollback()
	if scrollback == nil || scrollback.Width == 0 || scrollback.Height == 0 {
		return nil
	}

	src := o.rasterize(scrollback)
	targetW, targetH := fitAspect(src.Bounds().Dx(), src.Bounds().Dy(), maxWidth, height*2)
	if targetW < 1 || targetH < 1 {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return o.compose(dst, width, height)
}

// rasterize renders scrollback's cells into a two-rows-per-cell RGBA
// image, resolving each sub-pixel the way minimap.rs's OpaqueCell
// extraction does: blank cells sample background, everything else samples
// foreground, and half-block glyphs split foreground/background across
// the two sub-rows.
func (o *Overlay) rasterize(scrollback *cell.Surface) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, scrollback.Width, scrollback.Height*2))
	for y := 0; y < scrollback.Height; y++ {
		for x := 0; x < scrollback.Width; x++ {
			c := scrollback.At(x, y)
			upper, lower := o.subPixelColors(c)
			img.Set(x, y*2, upper)
			img.Set(x, y*2+1, lower)
		}
	}
	return img
}

func (o *Overlay) subPixelColors(c cell.Cell) (upper, lower color.Color) {
	switch cell.Kind(c.Grapheme) {
	case cell.GraphemeHalfUpper, cell.GraphemeHalfLower:
		return o.resolve(c.Foreground, true), o.resolve(c.Background, false)
	case cell.GraphemeEmpty:
		bg := o.resolve(c.Background, false)
		return bg, bg
	default:
		fg := o.resolve(c.Foreground, true)
		return fg, fg
	}
}

func (o *Overlay) resolve(c cell.Color, isForeground bool) color.Color {
	resolved := o.palette.ResolveCellColor(c, isForeground)
	switch resolved.Kind {
	case cell.ColorTrueColor:
		return color.RGBA{R: resolved.R, G: resolved.G, B: resolved.B, A: 255}
	case cell.ColorPalette:
		rgb := o.palette.TrueColor(resolved.Index)
		return color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}
	default:
		rgb := o.palette.DefaultBackground()
		return color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}
	}
}

// fitAspect scales (srcW,srcH) down to fit within (maxW,maxH) preserving
// aspect ratio, matching minimap.rs's "resizer may choose a slimmer
// minimap in order to maintain the original ratio".
func fitAspect(srcW, srcH, maxW, maxH int) (w, h int) {
	if srcW == 0 || srcH == 0 {
		return 0, 0
	}
	w, h = maxW, maxH
	if srcW*h > srcH*w {
		h = srcH * w / srcW
	} else {
		w = srcW * h / srcH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// compose anchors dst's pixels to the bottom-right corner of a
// width×height cell surface, folding each pair of image rows into one
// cell's upper/lower half-block, matching minimap.rs's
// add_pixel(x_cell, y_cell, ...) placement.
func (o *Overlay) compose(dst *image.RGBA, width, height int) *cell.Surface {
	bounds := dst.Bounds()
	surface := cell.NewSurface(width, height)

	for yp := 0; yp < bounds.Dy(); yp++ {
		for xp := 0; xp < bounds.Dx(); xp++ {
			xCell := width - bounds.Dx() + xp
			yImage := height*2 - bounds.Dy() + yp
			yCell := yImage / 2
			if xCell < 0 || xCell >= width || yCell < 0 || yCell >= height {
				continue
			}

			rgba := dst.RGBAAt(xp, yp)
			c := surface.At(xCell, yCell)
			c.Grapheme = string(cell.HalfBlockUpper)
			if yImage%2 == 0 {
				c.Foreground = cell.RGBA(rgba.R, rgba.G, rgba.B, 255)
			} else {
				c.Background = cell.RGBA(rgba.R, rgba.G, rgba.B, 255)
			}
			surface.Set(xCell, yCell, c)
		}
	}
	return surface
}
