package palette

import (
	"fmt"
	"image"
	"image/color"
	"io"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"tattoy/internal/cell"
)

// PaletteRowSize is the number of palette colours printed per row of the
// "QR code"-like calibration grid, per parser.rs's PALETTE_ROW_SIZE.
const PaletteRowSize = 16

const (
	colourConfidence  = 3 // consecutive matching pixels required to confirm a block
	maxLossyNoiseLevel = 4 // max per-channel-summed difference tolerated as "same colour"
)

type parseState int

const (
	stateLookingForRedish parseState = iota
	stateLookingForBlue
	stateLookingForFirstColourInRow
	stateCollectingRow
)

var pureBlue = rgb8{0, 0, 255}

type rgb8 struct{ r, g, b uint8 }

// machine is a state machine for parsing a QR-code-like grid of colours out
// of a screenshot, grounded on palette/state_machine.rs's Machine.
type machine struct {
	state         parseState
	palette       *Palette
	current       rgb8
	paletteIndex  uint16
	rowIndex      uint8
	collectingCol uint8
	blockConfidence uint8
	rowConfidence   uint8
}

// ParseScreenshot scans img for the calibration grid (see parser.rs's
// print_generic_palette for the grid this expects to find: each row starts
// with a pure-ish red marking the row index, then pure blue, then 16
// palette colours) and returns the parsed true-color palette.
func ParseScreenshot(img image.Image) (*Palette, error) {
	m := &machine{state: stateLookingForRedish, palette: New()}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			finished := m.transition(pixelAt(img, x, y))
			if finished {
				return m.palette, nil
			}
		}
	}

	return nil, fmt.Errorf("couldn't find all colours in palette, only found %d", m.paletteIndex)
}

func pixelAt(img image.Image, x, y int) rgb8 {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return rgb8{c.R, c.G, c.B}
}

func (m *machine) isRowStartRedish(previous rgb8) bool {
	redishRowStart := rgb8{255, m.rowIndex, 0}
	if previous != redishRowStart || m.current != redishRowStart {
		return false
	}
	m.rowConfidence++
	return m.rowConfidence > colourConfidence
}

func (m *machine) isNewPaletteBlock(previous rgb8) bool {
	if m.blockConfidence == 0 {
		if !m.isSameColour(previous) {
			m.blockConfidence++
		}
		return false
	}
	if m.isSameColour(previous) {
		m.blockConfidence++
	}
	return m.blockConfidence > colourConfidence
}

func (m *machine) colourDifference(c rgb8) uint16 {
	return channelDiff(m.current.r, c.r) + channelDiff(m.current.g, c.g) + channelDiff(m.current.b, c.b)
}

func channelDiff(a, b uint8) uint16 {
	if a > b {
		return uint16(a - b)
	}
	return uint16(b - a)
}

func (m *machine) isSameColour(c rgb8) bool {
	return m.colourDifference(c) < maxLossyNoiseLevel
}

// isTransition reports whether the new pixel colour crosses a state
// boundary (a new palette block, or a new calibration row), updating
// m.current as a side effect exactly like state_machine.rs's is_transition.
func (m *machine) isTransition(pixelColour rgb8) bool {
	previous := m.current
	m.current = pixelColour

	if m.state == stateLookingForRedish {
		return m.isRowStartRedish(previous)
	}
	return m.isNewPaletteBlock(previous)
}

func (m *machine) transition(pixelColour rgb8) bool {
	if !m.isTransition(pixelColour) {
		return false
	}

	switch m.state {
	case stateLookingForRedish:
		m.state = stateLookingForBlue

	case stateLookingForBlue:
		if m.current == pureBlue {
			m.state = stateLookingForFirstColourInRow
		} else {
			m.state = stateLookingForRedish
		}

	case stateLookingForFirstColourInRow:
		m.state = stateCollectingRow
		m.collectingCol = 0
		m.palette.Set(uint8(m.paletteIndex), RGB{m.current.r, m.current.g, m.current.b})
		m.paletteIndex++

	case stateCollectingRow:
		newColumn := m.collectingCol + 1
		if newColumn >= PaletteRowSize {
			m.rowIndex++
			m.state = stateLookingForRedish
		} else {
			m.palette.Set(uint8(m.paletteIndex), RGB{m.current.r, m.current.g, m.current.b})
			if m.paletteIndex == 255 {
				return true
			}
			m.paletteIndex++
			m.collectingCol = newColumn
		}
	}

	m.blockConfidence = 0
	m.rowConfidence = 0
	return false
}

// PrintCalibrationGrid writes the QR-code-like grid of true-color swatches
// this package's state machine expects to find in a screenshot: each row
// starts with a pure(ish) red marker encoding the row index, then pure
// blue, then 16 colors from get. Grounded on palette_parser.rs's
// print_generic_palette; get supplies either the real terminal's own
// 256-color palette (print_native_palette, for --capture-palette) or a
// previously parsed Palette's true colors (print_true_colour_palette, to
// let the user visually confirm a --parse-palette result).
func PrintCalibrationGrid(w io.Writer, get func(index uint8) (r, g, b uint8)) {
	fmt.Fprintln(w, "╭──────────────────╮")
	for y := uint8(0); y < 16; y++ {
		fmt.Fprint(w, "│")
		fmt.Fprint(w, swatch(255, y, 0))
		fmt.Fprint(w, swatch(0, 0, 255))
		for x := 0; x < PaletteRowSize; x++ {
			idx := y*PaletteRowSize + uint8(x)
			r, g, b := get(idx)
			fmt.Fprint(w, swatch(r, g, b))
		}
		fmt.Fprintln(w, "│")
	}
	fmt.Fprintln(w, "╰──────────────────╯")
}

// swatch renders one 24-bit-color cell (a space on that background color),
// reset immediately after so
// colors don't bleed into surrounding text.
func swatch(r, g, b uint8) string {
	return fmt.Sprintf("\x1b[48;2;%d;%d;%dm \x1b[0m", r, g, b)
}

// PrintNativePalette prints the real terminal's own 256-color palette as a
// calibration grid, per print_native_palette: the user screenshots this
// output and feeds it to --parse-palette.
func PrintNativePalette(w io.Writer) {
	fmt.Fprintln(w, "These are all the colours in your terminal's palette:")
	PrintCalibrationGrid(w, func(index uint8) (uint8, uint8, uint8) {
		return cell.PaletteRGB(index)
	})
}

// PrintTrueColorPalette re-prints a parsed Palette's swatches so the user
// can visually confirm it against the native grid above, per
// print_true_colour_palette.
func PrintTrueColorPalette(w io.Writer, p *Palette) {
	fmt.Fprintln(w, "These colours should match the colours above:")
	PrintCalibrationGrid(w, func(index uint8) (uint8, uint8, uint8) {
		rgb := p.TrueColor(index)
		return rgb.R, rgb.G, rgb.B
	})
}
