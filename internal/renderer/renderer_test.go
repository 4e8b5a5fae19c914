package renderer

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/cell"
	"tattoy/internal/protocol"
)

func TestSGRForDefaultIsReset(t *testing.T) {
	got := sgrFor(termenv.TrueColor, cell.Cell{Grapheme: "a"})
	assert.Equal(t, "\033[0m", got)
}

func TestSGRForTrueColorIncludesRGBSequence(t *testing.T) {
	got := sgrFor(termenv.TrueColor, cell.Cell{
		Grapheme:   "a",
		Foreground: cell.RGBA(10, 20, 30, 255),
		Attrs:      cell.Attrs{Bold: true},
	})
	assert.Contains(t, got, "1;")
	assert.Contains(t, got, "38;2;")
	assert.True(t, strings.HasPrefix(got, "\033[0;"))
	assert.True(t, strings.HasSuffix(got, "m"))
}

func TestSGRForPaletteUsesANSI256Sequence(t *testing.T) {
	got := sgrFor(termenv.TrueColor, cell.Cell{Grapheme: "a", Background: cell.Palette(200)})
	assert.Contains(t, got, "48;5;200")
}

func newTestRenderer(w, h int) (*Renderer, *strings.Builder) {
	var out strings.Builder
	r := New(Config{Bus: protocol.NewBus(), Output: &out})
	r.ttySize = cell.Size{Rows: h, Cols: w}
	return r, &out
}

func TestTickSkipsWhenPTYSizeMismatchesTTY(t *testing.T) {
	r, out := newTestRenderer(10, 5)
	r.pty = cell.NewSurface(8, 5) // wrong width
	r.tick()
	assert.Empty(t, out.String())
}

func TestTickWritesFullFrameOnFirstRender(t *testing.T) {
	r, out := newTestRenderer(3, 1)
	pty := cell.NewSurface(3, 1)
	pty.Set(0, 0, cell.Cell{Grapheme: "a"})
	pty.Set(1, 0, cell.Cell{Grapheme: "b"})
	pty.Set(2, 0, cell.Cell{Grapheme: "c"})
	r.pty = pty

	r.tick()
	got := out.String()
	assert.Contains(t, got, "a")
	assert.Contains(t, got, "b")
	assert.Contains(t, got, "c")
	require.NotNil(t, r.lastWritten)
}

func TestTickSecondFrameOnlyWritesChangedCells(t *testing.T) {
	r, _ := newTestRenderer(3, 1)
	pty := cell.NewSurface(3, 1)
	pty.Set(0, 0, cell.Cell{Grapheme: "a"})
	pty.Set(1, 0, cell.Cell{Grapheme: "b"})
	pty.Set(2, 0, cell.Cell{Grapheme: "c"})
	r.pty = pty
	r.tick()

	var out2 strings.Builder
	r.cfg.Output = &out2
	pty2 := cell.NewSurface(3, 1)
	pty2.Set(0, 0, cell.Cell{Grapheme: "a"})
	pty2.Set(1, 0, cell.Cell{Grapheme: "X"})
	pty2.Set(2, 0, cell.Cell{Grapheme: "c"})
	r.pty = pty2
	r.tick()

	assert.Contains(t, out2.String(), "X")
}

func TestOverlayBackdropShowsThroughBlankPTYCells(t *testing.T) {
	r, out := newTestRenderer(1, 1)
	overlay := cell.NewSurface(1, 1)
	overlay.Set(0, 0, cell.Cell{Grapheme: " ", Background: cell.RGBA(9, 9, 9, 255)})
	r.overlay = overlay
	r.pty = cell.NewSurface(1, 1) // blank PTY cell

	r.tick()
	assert.NotEmpty(t, out.String())
	assert.Equal(t, cell.RGBA(9, 9, 9, 255), r.lastWritten.At(0, 0).Background)
}
