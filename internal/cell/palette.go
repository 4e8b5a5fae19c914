package cell

// ansiBasic16 are the standard xterm colors for palette indices 0-15.
var ansiBasic16 = [16][3]uint8{
	{0, 0, 0}, {205, 0, 0}, {0, 205, 0}, {205, 205, 0},
	{0, 0, 238}, {205, 0, 205}, {0, 205, 205}, {229, 229, 229},
	{127, 127, 127}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
	{92, 92, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
}

// cubeSteps are the six intensity steps xterm uses for its 6x6x6 color
// cube (indices 16-231).
var cubeSteps = [6]uint8{0, 95, 135, 175, 215, 255}

// PaletteRGB converts a 256-color palette index to its standard xterm RGB
// value: the 16 basic colors, the 6x6x6 color cube, and the 24-step
// grayscale ramp.
func PaletteRGB(idx uint8) (r, g, b uint8) {
	switch {
	case idx < 16:
		c := ansiBasic16[idx]
		return c[0], c[1], c[2]
	case idx < 232:
		i := int(idx) - 16
		r = cubeSteps[i/36]
		g = cubeSteps[(i/6)%6]
		b = cubeSteps[i%6]
		return
	default:
		level := uint8(8 + 10*(int(idx)-232))
		return level, level, level
	}
}
