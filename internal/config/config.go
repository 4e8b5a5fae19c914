// Package config loads and watches the TOML config file described in
// spec.md §6: term/command/logging fields, colour grading, the keybinding
// table, the plugin list, and per-overlay subtables. Grounded on
// internal/config/config.go's ResolveDir/marker-file directory-resolution
// idiom (walk CWD, env var, home fallback, sync.Once caching), generalized
// from h2's own YAML agent config to this TOML tattoy config, and on
// crates/tattoy/src/config.rs (original_source) for the field set and the
// "write defaults on first run, reload on file-watch change" behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"tattoy/internal/protocol"
)

const markerFile = ".tattoy-dir.txt"

// Color is the final colour-grading pass applied to the whole render.
type Color struct {
	Saturation float64 `toml:"saturation"`
	Brightness float64 `toml:"brightness"`
	Hue        float64 `toml:"hue"`
}

// Keybinding is one user-configured key combination.
type Keybinding struct {
	Mods string `toml:"mods,omitempty"`
	Key  string `toml:"key"`
}

// Plugin describes one subprocess-backed overlay to launch, per spec.md
// §4.10's "name, path, layer?, opacity?, enabled?" plugin entry shape.
type Plugin struct {
	Name    string `toml:"name"`
	Path    string `toml:"path"`
	Layer   int16  `toml:"layer,omitempty"`
	Opacity float64 `toml:"opacity,omitempty"`
	Enabled bool   `toml:"enabled"`
}

// Config is the whole of tattoy.toml.
type Config struct {
	Term      string `toml:"term"`
	Command   string `toml:"command"`
	LogLevel  string `toml:"log_level"`
	LogPath   string `toml:"log_path"`
	FrameRate float64 `toml:"frame_rate"`

	// MinimumTextContrast is the WCAG relative-contrast ratio the renderer
	// enforces between a cell's foreground and background before handing
	// the frame to the real terminal, generalized from
	// compositor.rs's auto_text_contrast/target_text_contrast. 0 disables
	// enforcement.
	MinimumTextContrast float64 `toml:"minimum_text_contrast"`

	Color       Color                               `toml:"color"`
	Keybindings map[protocol.KeybindAction]Keybinding `toml:"keybindings"`
	Plugins     []Plugin                             `toml:"plugins"`

	Minimap      map[string]any `toml:"minimap,omitempty"`
	Shader       map[string]any `toml:"shader,omitempty"`
	SmokeyCursor map[string]any `toml:"smokey_cursor,omitempty"`
}

// Default returns the built-in default config, generalized from
// crates/tattoy/src/config.rs's Default impl: command from $SHELL (falling
// back to /bin/sh, since bash is not guaranteed on every system this binary
// targets), log file under the user's state/cache directory, and a
// starter keybinding table matching spec.md §4.9's action list.
func Default() Config {
	command := os.Getenv("SHELL")
	if command == "" {
		command = "/bin/sh"
	}

	logDir, err := os.UserCacheDir()
	if err != nil {
		logDir = "."
	}

	return Config{
		Term:      "xterm-256color",
		Command:   command,
		LogLevel:  "info",
		LogPath:   filepath.Join(logDir, "tattoy", "tattoy.log"),
		FrameRate: 30,
		MinimumTextContrast: 4.5,
		Color:     Color{},
		Keybindings: map[protocol.KeybindAction]Keybinding{
			protocol.ActionToggleTattoy:    {Mods: "CTRL", Key: "t"},
			protocol.ActionToggleScrolling: {Mods: "CTRL", Key: "s"},
			protocol.ActionScrollUp:        {Key: "PageUp"},
			protocol.ActionScrollDown:      {Key: "PageDown"},
			protocol.ActionScrollExit:      {Key: "Escape"},
			protocol.ActionShaderNext:      {Mods: "CTRL", Key: "]"},
			protocol.ActionShaderPrev:      {Mods: "CTRL", Key: "["},
		},
	}
}

// IsTattoyDir checks whether dir contains a valid marker file.
func IsTattoyDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, markerFile))
	return err == nil && !info.IsDir()
}

var (
	resolvedDir string
	resolvedErr error
	resolveOnce sync.Once
)

// ResolveDir finds tattoy's config directory. Order: TATTOY_CONFIG_DIR env
// var -> the platform's standard config directory -> ~/.config/tattoy
// fallback. The result is cached for the process lifetime.
func ResolveDir() (string, error) {
	resolveOnce.Do(func() {
		resolvedDir, resolvedErr = resolveDir()
	})
	return resolvedDir, resolvedErr
}

// ResetResolveCache clears the cached ResolveDir result. For tests only.
func ResetResolveCache() {
	resolveOnce = sync.Once{}
	resolvedDir = ""
	resolvedErr = nil
}

func resolveDir() (string, error) {
	if dir := os.Getenv("TATTOY_CONFIG_DIR"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("TATTOY_CONFIG_DIR: %w", err)
		}
		return abs, ensureDir(abs)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(dir, "tattoy")
		return path, ensureDir(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	path := filepath.Join(home, ".config", "tattoy")
	return path, ensureDir(path)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "shaders"), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if !IsTattoyDir(dir) {
		if err := os.WriteFile(filepath.Join(dir, markerFile), []byte("v1\n"), 0o644); err != nil {
			return fmt.Errorf("write marker: %w", err)
		}
	}
	return nil
}

// MainConfigPath returns <dir>/tattoy.toml.
func MainConfigPath(dir string) string {
	return filepath.Join(dir, "tattoy.toml")
}

// Load reads tattoy.toml from dir, writing the built-in default (with its
// fields merged onto zero values for any keys the file is missing) if the
// file does not exist yet, mirroring crates/tattoy/src/config.rs's
// copy-default-on-first-run behavior.
func Load(dir string) (Config, error) {
	path := MainConfigPath(dir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := WriteDefault(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return LoadFrom(path)
}

// WriteDefault serializes cfg to path as TOML, creating the file.
func WriteDefault(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// LoadFrom reads and validates a config file at an explicit path.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Watch watches dir for changes to tattoy.toml and publishes a
// protocol.Event{Kind: EventConfig} carrying the freshly reloaded Config on
// every write. It blocks until the bus broadcasts End; run it in its own
// goroutine. Grounded on crates/tattoy/src/config.rs's watch/
// handle_file_change_event pair (notify::Watcher + broadcast-on-Modify),
// translated from notify-rs to fsnotify.
func Watch(dir string, bus *protocol.Bus) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	ch, unsub := bus.Subscribe()
	defer unsub()

	configPath := MainConfigPath(dir)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != configPath || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFrom(configPath)
			if err != nil {
				bus.Publish(protocol.Event{Kind: protocol.EventNotification, Notification: protocol.Notification{
					ID: "config-reload", Title: "config reload failed", Body: err.Error(), Hint: "see logs",
				}})
				continue
			}
			bus.Publish(protocol.Event{Kind: protocol.EventConfig, Config: cfg})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_ = err // best-effort; a watcher error doesn't stop the loop
		case v := <-ch:
			if wev, ok := v.(protocol.Event); ok && wev.Kind == protocol.EventEnd {
				return nil
			}
		}
	}
}
