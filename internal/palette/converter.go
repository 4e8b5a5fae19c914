// Package palette maps the 256 terminal palette indices to the true-color
// values the user's actual terminal renders them as, so the compositor can
// alpha-blend and contrast-correct palette-indexed cells. Screenshot OCR
// (live capture) is the external-collaborator seam spec.md §1 excludes;
// parsing a provided screenshot and persisting the result is not, and is
// implemented here.
//
// Grounded on crates/tattoy/src/palette/converter.rs (Palette, true-colour
// lookup, default fg/bg conventions) and parser.rs/state_machine.rs
// (original_source) for the parser in parser.go.
package palette

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"tattoy/internal/cell"
)

// defaultTextIndex is the palette index text uses when no other color is
// specified, per converter.rs's DEFAULT_TEXT_PALETTE_INDEX.
const defaultTextIndex = 15

// RGB is one palette entry's true-color value.
type RGB struct {
	R, G, B uint8
}

// Palette maps a 256-color palette index to its true-color value.
type Palette struct {
	entries map[uint8]RGB
}

// New constructs an empty Palette.
func New() *Palette {
	return &Palette{entries: make(map[uint8]RGB)}
}

// Default builds a Palette from the standard xterm RGB values
// (cell.PaletteRGB), used whenever no parsed/persisted palette is
// available.
func Default() *Palette {
	p := New()
	for i := 0; i < 256; i++ {
		r, g, b := cell.PaletteRGB(uint8(i))
		p.entries[uint8(i)] = RGB{r, g, b}
	}
	return p
}

// Set records index's true-color value.
func (p *Palette) Set(index uint8, rgb RGB) {
	p.entries[index] = rgb
}

// Len returns the number of entries currently recorded.
func (p *Palette) Len() int {
	return len(p.entries)
}

// TrueColor returns index's true-color value, falling back to the standard
// xterm value for any index the palette hasn't recorded.
func (p *Palette) TrueColor(index uint8) RGB {
	if rgb, ok := p.entries[index]; ok {
		return rgb
	}
	r, g, b := cell.PaletteRGB(index)
	return RGB{r, g, b}
}

// DefaultBackground is palette index 0, by terminal convention.
func (p *Palette) DefaultBackground() RGB { return p.TrueColor(0) }

// DefaultForeground is palette index 1, by terminal convention.
func (p *Palette) DefaultForeground() RGB { return p.TrueColor(1) }

// ResolveCellColor rewrites a palette-indexed color to its true-color
// equivalent (carrying the original index as a Fallback), mirroring
// converter.rs's cell_attributes_to_true_colour. ColorDefault and
// ColorTrueColor pass through unchanged, except that isForeground
// ColorDefault resolves to defaultTextIndex's true color, matching the
// original's foreground-only default substitution.
func (p *Palette) ResolveCellColor(c cell.Color, isForeground bool) cell.Color {
	switch c.Kind {
	case cell.ColorPalette:
		rgb := p.TrueColor(c.Index)
		return cell.RGBA(rgb.R, rgb.G, rgb.B, 255).WithFallback(c.Index)
	case cell.ColorDefault:
		if isForeground {
			rgb := p.TrueColor(defaultTextIndex)
			return cell.RGBA(rgb.R, rgb.G, rgb.B, 255).WithFallback(defaultTextIndex)
		}
		return c
	default:
		return c
	}
}

// toml-serializable shape: BurntSushi/toml needs string keys for maps.
type fileFormat struct {
	Entries map[string][3]uint8 `toml:"palette"`
}

// Save persists the palette as TOML at path, per spec.md §6's
// "<config_dir>/palette.toml".
func Save(path string, p *Palette) error {
	ff := fileFormat{Entries: make(map[string][3]uint8, len(p.entries))}
	for idx, rgb := range p.entries {
		ff.Entries[fmt.Sprintf("%d", idx)] = [3]uint8{rgb.R, rgb.G, rgb.B}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create palette file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(ff)
}

// Load reads a persisted palette.toml. A missing file is not an error: it
// reports ok=false so callers fall back to Default().
func Load(path string) (p *Palette, ok bool, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil, false, nil
	}
	var ff fileFormat
	if _, err := toml.DecodeFile(path, &ff); err != nil {
		return nil, false, fmt.Errorf("parse palette file %s: %w", path, err)
	}
	p = New()
	for key, rgb := range ff.Entries {
		var idx int
		if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx > 255 {
			continue
		}
		p.Set(uint8(idx), RGB{rgb[0], rgb[1], rgb[2]})
	}
	return p, true, nil
}
