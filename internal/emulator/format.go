package emulator

import (
	"strconv"
	"strings"

	"tattoy/internal/cell"
)

// sgrToCellAttrs parses the ANSI SGR sequence produced by
// (midterm.Format).Render() — the exact string the teacher writes
// verbatim in internal/overlay/render.go ("buf.WriteString(f.Render())")
// — into a foreground/background Color pair and Attrs. Rendering a
// Format to its SGR string and parsing that string back is the only
// stable public surface the teacher's own rendering code relies on, so
// the emulator reuses it rather than reaching into midterm's internal
// Format fields.
func sgrToCellAttrs(sgr string) (fg, bg cell.Color, attrs cell.Attrs) {
	fg, bg = cell.Default, cell.Default
	sgr = strings.TrimPrefix(sgr, "\033[")
	sgr = strings.TrimSuffix(sgr, "m")
	if sgr == "" {
		return
	}
	parts := strings.Split(sgr, ";")
	for i := 0; i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		switch {
		case n == 0:
			fg, bg = cell.Default, cell.Default
			attrs = cell.Attrs{}
		case n == 1:
			attrs.Bold = true
		case n == 3:
			attrs.Italic = true
		case n == 4:
			attrs.Underline = true
		case n == 5:
			attrs.Blink = true
		case n == 7:
			attrs.Reverse = true
		case n == 9:
			attrs.Strikethrough = true
		case n == 39:
			fg = cell.Default
		case n == 49:
			bg = cell.Default
		case n >= 30 && n <= 37:
			fg = cell.Palette(uint8(n - 30))
		case n >= 90 && n <= 97:
			fg = cell.Palette(uint8(n - 90 + 8))
		case n >= 40 && n <= 47:
			bg = cell.Palette(uint8(n - 40))
		case n >= 100 && n <= 107:
			bg = cell.Palette(uint8(n - 100 + 8))
		case n == 38 || n == 48:
			isFg := n == 38
			if i+1 >= len(parts) {
				break
			}
			mode, _ := strconv.Atoi(parts[i+1])
			if mode == 5 && i+2 < len(parts) {
				idx, _ := strconv.Atoi(parts[i+2])
				c := cell.Palette(uint8(idx))
				if isFg {
					fg = c
				} else {
					bg = c
				}
				i += 2
			} else if mode == 2 && i+4 < len(parts) {
				r, _ := strconv.Atoi(parts[i+2])
				g, _ := strconv.Atoi(parts[i+3])
				bch, _ := strconv.Atoi(parts[i+4])
				c := cell.RGBA(uint8(r), uint8(g), uint8(bch), 255)
				if isFg {
					fg = c
				} else {
					bg = c
				}
				i += 4
			}
		}
	}
	return
}
