package compositor

import (
	"math"
	"unicode"

	"github.com/lucasb-eyer/go-colorful"

	"tattoy/internal/cell"
)

// contrastStep and maxContrastSteps match spec.md §4.4: iteratively
// lighten or darken in 0.005 increments, up to ~200 steps.
const contrastStep = 0.005
const maxContrastSteps = 200

// EnforceContrast walks every cell whose grapheme is alphanumeric (or, if
// includeAllNonPixel is set, any non-pixel non-space grapheme) and, if its
// foreground/background WCAG contrast ratio is below threshold,
// iteratively lightens or darkens the foreground until the threshold is
// met or the step budget is exhausted — taking whichever direction wins
// if both max out.
func EnforceContrast(s *cell.Surface, threshold float64, includeAllNonPixel bool) {
	for i := range s.Cells {
		c := s.Cells[i]
		if !eligibleForContrast(c.Grapheme, includeAllNonPixel) {
			continue
		}
		s.Cells[i].Foreground = adjustForContrast(c.Foreground, c.Background, threshold)
	}
}

func eligibleForContrast(g string, includeAllNonPixel bool) bool {
	if g == "" || g == " " {
		return false
	}
	k := cell.Kind(g)
	if k == cell.GraphemeHalfUpper || k == cell.GraphemeHalfLower {
		return false
	}
	if includeAllNonPixel {
		return true
	}
	for _, r := range g {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// ContrastRatio computes the WCAG 2.0 relative contrast ratio between two
// colors, in [1, 21].
func ContrastRatio(a, b cell.Color) float64 {
	l1 := relativeLuminance(toColorful(a))
	l2 := relativeLuminance(toColorful(b))
	if l1 < l2 {
		l1, l2 = l2, l1
	}
	return (l1 + 0.05) / (l2 + 0.05)
}

func relativeLuminance(c colorful.Color) float64 {
	lin := func(v float64) float64 {
		if v <= 0.03928 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(c.R) + 0.7152*lin(c.G) + 0.0722*lin(c.B)
}

// adjustForContrast returns a foreground color whose contrast against bg
// meets threshold, if reachable within maxContrastSteps of contrastStep;
// otherwise it returns whichever of the lightened/darkened extremes
// achieved the higher contrast. Idempotent when fg already meets
// threshold (returns fg unchanged, per spec.md §8).
func adjustForContrast(fg, bg cell.Color, threshold float64) cell.Color {
	if ContrastRatio(fg, bg) >= threshold {
		return fg
	}
	base := toColorful(fg)
	lighten := base
	darken := base
	lightenRatio := ContrastRatio(fg, bg)
	darkenRatio := lightenRatio
	var lightenOK, darkenOK bool
	for i := 0; i < maxContrastSteps; i++ {
		if !lightenOK {
			lighten = stepLighten(lighten, contrastStep)
			lightenRatio = ContrastRatio(fromColorful(lighten), bg)
			if lightenRatio >= threshold {
				lightenOK = true
			}
		}
		if !darkenOK {
			darken = stepDarken(darken, contrastStep)
			darkenRatio = ContrastRatio(fromColorful(darken), bg)
			if darkenRatio >= threshold {
				darkenOK = true
			}
		}
		if lightenOK || darkenOK {
			break
		}
	}
	switch {
	case lightenOK && darkenOK:
		if lightenRatio >= darkenRatio {
			return fromColorful(lighten)
		}
		return fromColorful(darken)
	case lightenOK:
		return fromColorful(lighten)
	case darkenOK:
		return fromColorful(darken)
	default:
		if lightenRatio >= darkenRatio {
			return fromColorful(lighten)
		}
		return fromColorful(darken)
	}
}

func stepLighten(c colorful.Color, amount float64) colorful.Color {
	l, a, b := c.Lab()
	l += amount
	if l > 1 {
		l = 1
	}
	return colorful.Lab(l, a, b).Clamped()
}

func stepDarken(c colorful.Color, amount float64) colorful.Color {
	l, a, b := c.Lab()
	l -= amount
	if l < 0 {
		l = 0
	}
	return colorful.Lab(l, a, b).Clamped()
}

func fromColorful(c colorful.Color) cell.Color {
	return cell.RGBA(clampByte(c.R*255), clampByte(c.G*255), clampByte(c.B*255), 255)
}
