package renderer

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"

	"tattoy/internal/cell"
)

// sgrFor renders one cell's colors and attributes to an SGR escape
// sequence, downgrading through profile (TrueColor/ANSI256/ANSI/Ascii)
// exactly as github.com/muesli/termenv does for the teacher's color
// detection in internal/session/client/overlay.go's newTermOutput. Mirrors
// the "accumulate codes, join with ;" shape of the teacher's own
// ModeBarStyle/RenderBar sequences in internal/session/client/render.go.
func sgrFor(profile termenv.Profile, c cell.Cell) string {
	var codes []string
	if c.Attrs.Bold {
		codes = append(codes, "1")
	}
	if c.Attrs.Italic {
		codes = append(codes, "3")
	}
	if c.Attrs.Underline {
		codes = append(codes, "4")
	}
	if c.Attrs.Blink {
		codes = append(codes, "5")
	}
	if c.Attrs.Reverse {
		codes = append(codes, "7")
	}
	if c.Attrs.Strikethrough {
		codes = append(codes, "9")
	}

	if fg := colorCodes(profile, c.Foreground, false); fg != "" {
		codes = append(codes, fg)
	}
	if bg := colorCodes(profile, c.Background, true); bg != "" {
		codes = append(codes, bg)
	}

	if len(codes) == 0 {
		return "\033[0m"
	}
	return "\033[0;" + strings.Join(codes, ";") + "m"
}

// colorCodes returns the bare SGR parameter codes (no ESC/m wrapper) for a
// single color, downgraded to the sink's profile.
func colorCodes(profile termenv.Profile, c cell.Color, background bool) string {
	switch c.Kind {
	case cell.ColorDefault:
		return ""
	case cell.ColorPalette:
		return termenv.ANSI256Color(int(c.Index)).Sequence(background)
	case cell.ColorTrueColor:
		col := profile.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
		if col == nil {
			return ""
		}
		return col.Sequence(background)
	default:
		return ""
	}
}
