package palette

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/cell"
)

func TestDefaultPaletteMatchesStandardXterm(t *testing.T) {
	p := Default()
	assert.Equal(t, RGB{0, 0, 0}, p.TrueColor(0))
	assert.Equal(t, RGB{255, 255, 255}, p.TrueColor(15))
}

func TestTrueColorFallsBackToXtermForUnknownIndex(t *testing.T) {
	p := New()
	r, g, b := cell.PaletteRGB(42)
	assert.Equal(t, RGB{r, g, b}, p.TrueColor(42))
}

func TestResolveCellColorReplacesPaletteIndexWithTrueColorFallback(t *testing.T) {
	p := New()
	p.Set(5, RGB{10, 20, 30})

	resolved := p.ResolveCellColor(cell.Palette(5), false)
	assert.Equal(t, cell.ColorTrueColor, resolved.Kind)
	assert.Equal(t, uint8(10), resolved.R)
	assert.Equal(t, uint8(20), resolved.G)
	assert.Equal(t, uint8(30), resolved.B)
	assert.True(t, resolved.Fallback)
	assert.Equal(t, uint8(5), resolved.Index)
}

func TestResolveCellColorForegroundDefaultUsesTextIndex(t *testing.T) {
	p := New()
	p.Set(15, RGB{1, 2, 3})

	resolved := p.ResolveCellColor(cell.Default, true)
	assert.Equal(t, cell.ColorTrueColor, resolved.Kind)
	assert.Equal(t, uint8(1), resolved.R)
}

func TestResolveCellColorBackgroundDefaultPassesThrough(t *testing.T) {
	p := New()
	resolved := p.ResolveCellColor(cell.Default, false)
	assert.Equal(t, cell.Default, resolved)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := New()
	p.Set(0, RGB{14, 13, 21})
	p.Set(255, RGB{238, 238, 238})

	path := filepath.Join(t.TempDir(), "palette.toml")
	require.NoError(t, Save(path, p))

	loaded, ok, err := Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RGB{14, 13, 21}, loaded.TrueColor(0))
	assert.Equal(t, RGB{238, 238, 238}, loaded.TrueColor(255))
}

func TestLoadReturnsNotOkWhenFileMissing(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.False(t, ok)
}
