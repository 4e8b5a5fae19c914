// Package cell defines the grid data model shared by the emulator, the
// compositor, and every overlay: a Cell, a Surface of cells, and the
// change-list types used to describe diffs between two surfaces.
package cell

import "github.com/mattn/go-runewidth"

// ColorKind distinguishes the three ways a cell's foreground or background
// can be expressed.
type ColorKind int

const (
	ColorDefault ColorKind = iota
	ColorPalette
	ColorTrueColor
)

// Color is either the terminal default, a 256-color palette index, or a
// true-color RGBA value with an optional palette fallback (used when the
// sink can't render true color).
type Color struct {
	Kind     ColorKind
	Index    uint8 // valid when Kind == ColorPalette, or as fallback when Kind == ColorTrueColor
	R, G, B  uint8
	A        uint8
	Fallback bool // true when Index is a deliberate fallback for TrueColor
}

// Default is the terminal's default color.
var Default = Color{Kind: ColorDefault}

// Palette constructs a palette-indexed color.
func Palette(i uint8) Color { return Color{Kind: ColorPalette, Index: i} }

// RGBA constructs a true-color value, optionally carrying a palette
// fallback index for sinks that can't render true color.
func RGBA(r, g, b, a uint8) Color {
	return Color{Kind: ColorTrueColor, R: r, G: g, B: b, A: a}
}

// WithFallback returns a copy of c carrying a palette fallback index.
func (c Color) WithFallback(idx uint8) Color {
	c.Fallback = true
	c.Index = idx
	return c
}

// Attrs are the boolean text attributes a cell can carry.
type Attrs struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Blink         bool
	Reverse       bool
	Strikethrough bool
}

// Grapheme classification used by the compositor's blending rule.
const (
	HalfBlockUpper = '▀' // ▀
	HalfBlockLower = '▄' // ▄
)

// GraphemeKind classifies a cell's visible content for blending purposes.
type GraphemeKind int

const (
	GraphemeEmpty GraphemeKind = iota
	GraphemeHalfUpper
	GraphemeHalfLower
	GraphemeText
)

// Kind classifies g the way the compositor's blending rule needs.
func Kind(g string) GraphemeKind {
	switch g {
	case "", " ":
		return GraphemeEmpty
	case string(HalfBlockUpper):
		return GraphemeHalfUpper
	case string(HalfBlockLower):
		return GraphemeHalfLower
	default:
		return GraphemeText
	}
}

// Cell is one visible terminal position.
type Cell struct {
	Grapheme   string
	Foreground Color
	Background Color
	Attrs      Attrs
}

// Blank is the zero-value cell: empty grapheme, default colors, no attrs.
var Blank = Cell{}

// Width returns the display width of the cell's grapheme (0, 1, or 2).
func (c Cell) Width() int {
	if c.Grapheme == "" {
		return 1
	}
	return runewidth.StringWidth(c.Grapheme)
}

// IsHalfBlock reports whether the cell's grapheme is one of the two
// half-block pixel glyphs.
func (c Cell) IsHalfBlock() bool {
	k := Kind(c.Grapheme)
	return k == GraphemeHalfUpper || k == GraphemeHalfLower
}

// Size is a width/height pair.
type Size struct {
	Rows int
	Cols int
}

// Cursor is a cell position (0-indexed).
type Cursor struct {
	X, Y    int
	Visible bool
}

// Surface is a width×height grid of cells plus a cursor.
//
// Invariant: len(Cells) == Width*Height at all times. Callers must go
// through Resize/Replace/Apply to preserve this; direct field mutation of
// Cells is permitted only for single-index writes within the current bounds.
type Surface struct {
	Width, Height int
	Cells         []Cell
	Cursor        Cursor
}

// NewSurface allocates a blank surface of the given size.
func NewSurface(width, height int) *Surface {
	return &Surface{
		Width:  width,
		Height: height,
		Cells:  make([]Cell, width*height),
	}
}

// At returns the cell at (x,y). Out-of-bounds coordinates return Blank.
func (s *Surface) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return Blank
	}
	return s.Cells[y*s.Width+x]
}

// Set writes the cell at (x,y). Out-of-bounds coordinates are ignored.
func (s *Surface) Set(x, y int, c Cell) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return
	}
	s.Cells[y*s.Width+x] = c
}

// Replace overwrites the entire surface with other's dimensions and
// contents, clamping the cursor to the new bounds.
func (s *Surface) Replace(other *Surface) {
	s.Width = other.Width
	s.Height = other.Height
	s.Cells = append(s.Cells[:0], other.Cells...)
	s.Cursor = other.Cursor
	s.clampCursor()
}

// Resize changes the surface's dimensions in place, preserving as much
// content as possible (top-left aligned) and clamping the cursor so it is
// never lost.
func (s *Surface) Resize(width, height int) {
	if width == s.Width && height == s.Height {
		return
	}
	next := make([]Cell, width*height)
	copyRows := minInt(height, s.Height)
	copyCols := minInt(width, s.Width)
	for y := 0; y < copyRows; y++ {
		srcBase := y * s.Width
		dstBase := y * width
		copy(next[dstBase:dstBase+copyCols], s.Cells[srcBase:srcBase+copyCols])
	}
	s.Width = width
	s.Height = height
	s.Cells = next
	s.clampCursor()
}

func (s *Surface) clampCursor() {
	if s.Width == 0 || s.Height == 0 {
		s.Cursor.X, s.Cursor.Y = 0, 0
		return
	}
	if s.Cursor.X >= s.Width {
		s.Cursor.X = s.Width - 1
	}
	if s.Cursor.X < 0 {
		s.Cursor.X = 0
	}
	if s.Cursor.Y >= s.Height {
		s.Cursor.Y = s.Height - 1
	}
	if s.Cursor.Y < 0 {
		s.Cursor.Y = 0
	}
}

// ChangeKind distinguishes the operations a Change can carry.
type ChangeKind int

const (
	ChangeCell ChangeKind = iota
	ChangeCursorMove
)

// Change is one entry of an incremental change list: either a single cell
// write or a cursor move, sufficient to reconstruct a diffed surface when
// replayed against its previous state.
type Change struct {
	Kind   ChangeKind
	X, Y   int
	Cell   Cell
	Cursor Cursor
}

// Apply replays a change list against the surface in order.
func (s *Surface) Apply(changes []Change) {
	for _, c := range changes {
		switch c.Kind {
		case ChangeCell:
			s.Set(c.X, c.Y, c.Cell)
		case ChangeCursorMove:
			s.Cursor = c.Cursor
			s.clampCursor()
		}
	}
}

// Diff computes the minimal change list turning prev into s (cell-by-cell
// plus a trailing cursor move if it changed). Both surfaces must share the
// same dimensions; callers should emit a Complete instead of a Diff when
// dimensions differ.
func Diff(prev, next *Surface) []Change {
	var changes []Change
	if prev.Width != next.Width || prev.Height != next.Height {
		// Caller error: dimensions must match for a diff. Treat as full replace.
		for y := 0; y < next.Height; y++ {
			for x := 0; x < next.Width; x++ {
				changes = append(changes, Change{Kind: ChangeCell, X: x, Y: y, Cell: next.At(x, y)})
			}
		}
		changes = append(changes, Change{Kind: ChangeCursorMove, Cursor: next.Cursor})
		return changes
	}
	for i, c := range next.Cells {
		if prev.Cells[i] != c {
			changes = append(changes, Change{Kind: ChangeCell, X: i % next.Width, Y: i / next.Width, Cell: c})
		}
	}
	if prev.Cursor != next.Cursor {
		changes = append(changes, Change{Kind: ChangeCursorMove, Cursor: next.Cursor})
	}
	return changes
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
