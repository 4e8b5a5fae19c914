package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/protocol"
)

func TestDefaultHasExpectedKeybindings(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "xterm-256color", cfg.Term)
	assert.Contains(t, cfg.Keybindings, protocol.ActionToggleTattoy)
	assert.Contains(t, cfg.Keybindings, protocol.ActionScrollExit)
	assert.Equal(t, 4.5, cfg.MinimumTextContrast)
}

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Term, cfg.Term)

	_, statErr := os.Stat(MainConfigPath(dir))
	assert.NoError(t, statErr)
}

func TestLoadFromRoundTripsCustomValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tattoy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
term = "xterm"
command = "/bin/zsh"
log_level = "debug"
log_path = "/tmp/tattoy.log"
frame_rate = 60
minimum_text_contrast = 7.0

[color]
saturation = 0.5
brightness = 0.1
hue = 0.0

[keybindings.ToggleTattoy]
mods = "CTRL"
key = "t"
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "xterm", cfg.Term)
	assert.Equal(t, "/bin/zsh", cfg.Command)
	assert.Equal(t, 60.0, cfg.FrameRate)
	assert.Equal(t, 7.0, cfg.MinimumTextContrast)
	assert.Equal(t, 0.5, cfg.Color.Saturation)
	assert.Equal(t, Keybinding{Mods: "CTRL", Key: "t"}, cfg.Keybindings[protocol.ActionToggleTattoy])
}

func TestResolveDirHonorsEnvVar(t *testing.T) {
	defer ResetResolveCache()
	dir := t.TempDir()
	t.Setenv("TATTOY_CONFIG_DIR", dir)
	ResetResolveCache()

	got, err := ResolveDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.True(t, IsTattoyDir(dir))
}

func TestWatchBroadcastsConfigOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tattoy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`term = "xterm"`+"\n"), 0o644))

	bus := protocol.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- Watch(dir, bus) }()

	// Give the watcher a moment to start, then modify the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`term = "screen-256color"`+"\n"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if ev, ok := v.(protocol.Event); ok && ev.Kind == protocol.EventConfig {
				cfg, ok := ev.Config.(Config)
				require.True(t, ok)
				assert.Equal(t, "screen-256color", cfg.Term)
				bus.End()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload event")
		}
	}
}

func TestToByteSequenceHandlesCtrlAndNamedKeys(t *testing.T) {
	seq, err := Keybinding{Mods: "CTRL", Key: "t"}.ToByteSequence()
	require.NoError(t, err)
	assert.Equal(t, "\x14", seq)

	seq, err = Keybinding{Key: "Escape"}.ToByteSequence()
	require.NoError(t, err)
	assert.Equal(t, "\x1b", seq)

	seq, err = Keybinding{Key: "PageUp"}.ToByteSequence()
	require.NoError(t, err)
	assert.Equal(t, "\x1b[5~", seq)
}

func TestToKeybindingTableConvertsAllEntries(t *testing.T) {
	table := Default().ToKeybindingTable()
	assert.Equal(t, protocol.ActionToggleTattoy, table["\x14"])
	assert.Equal(t, protocol.ActionScrollExit, table["\x1b"])
}
