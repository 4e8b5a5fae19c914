package cmd

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tattoy/internal/config"
	"tattoy/internal/input"
	"tattoy/internal/logging"
	"tattoy/internal/palette"
	"tattoy/internal/protocol"
	"tattoy/internal/renderer"
	"tattoy/internal/shadow"
	"tattoy/internal/sharedstate"
	"tattoy/internal/tattoy"
	"tattoy/internal/tattoys/minimap"
	"tattoy/internal/tattoys/notifications"
	"tattoy/internal/tattoys/plugin"
	"tattoy/internal/tattoys/randomwalker"
	"tattoy/internal/tattoys/scrollbar"
	"tattoy/internal/tattoys/shader"
	"tattoy/internal/tattoys/startuplogo"
)

// NewRootCmd creates the root cobra command: the single-binary transparent
// terminal wrapper described in spec.md §6, plus the --capture-palette and
// --parse-palette maintenance modes.
func NewRootCmd() *cobra.Command {
	var use []string
	var command string
	var capturePalette bool
	var parsePalette string
	var configDir string
	var mainConfig string
	var logPath string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "tattoy",
		Short: "A transparent terminal wrapper that composites overlays atop a child shell",
		Long: `tattoy wraps a child shell in a PTY and composites independent overlay
surfaces (a minimap, notifications, a startup logo, shaders, plugins, ...)
on top of its output without the child ever knowing tattoy is there.

  tattoy                          Wrap the user's shell
  tattoy --use random_walker      Force-enable an overlay regardless of config
  tattoy --capture-palette        Print a calibration grid and exit
  tattoy --parse-palette shot.png Parse a screenshot of that grid and exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if capturePalette {
				fmt.Fprintln(cmd.OutOrStdout(), "Screenshot the grid below, then rerun with --parse-palette <path>.")
				palette.PrintNativePalette(cmd.OutOrStdout())
				return nil
			}
			if parsePalette != "" {
				return runParsePalette(cmd, parsePalette, configDir)
			}
			return run(runOptions{
				use:        use,
				command:    command,
				configDir:  configDir,
				mainConfig: mainConfig,
				logPath:    logPath,
				logLevel:   logLevel,
			})
		},
	}

	rootCmd.Flags().StringArrayVar(&use, "use", nil, "force-enable a named overlay (repeatable)")
	rootCmd.Flags().StringVar(&command, "command", "", "override the child command (default: user's shell)")
	rootCmd.Flags().BoolVar(&capturePalette, "capture-palette", false, "print a calibration grid and exit")
	rootCmd.Flags().StringVar(&parsePalette, "parse-palette", "", "parse palette from a screenshot and exit")
	rootCmd.Flags().StringVar(&configDir, "config-dir", "", "config directory override")
	rootCmd.Flags().StringVar(&mainConfig, "main-config", "tattoy.toml", "main config file name")
	rootCmd.Flags().StringVar(&logPath, "log-path", "", "override the log file path")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "error|warn|info|debug|trace|off")

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// runParsePalette implements --parse-palette: decode the screenshot at
// path, run it through the calibration-grid state machine, persist the
// result to <config_dir>/palette.toml, and print it back for visual
// confirmation, per palette_parser.rs's run(maybe_user_screenshot).
func runParsePalette(cmd *cobra.Command, path, configDirOverride string) error {
	dir, err := resolveConfigDir(configDirOverride)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open screenshot: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}

	pal, err := palette.ParseScreenshot(img)
	if err != nil {
		return fmt.Errorf("parse palette: %w", err)
	}

	palettePath := filepath.Join(dir, "palette.toml")
	if err := palette.Save(palettePath, pal); err != nil {
		return fmt.Errorf("save palette: %w", err)
	}

	palette.PrintTrueColorPalette(cmd.OutOrStdout(), pal)
	fmt.Fprintf(cmd.OutOrStdout(), "\nSaved to %s\n", palettePath)
	return nil
}

func resolveConfigDir(override string) (string, error) {
	if override != "" {
		os.Setenv("TATTOY_CONFIG_DIR", override)
	}
	return config.ResolveDir()
}

// runOptions bundles the flags the normal run path needs.
type runOptions struct {
	use        []string
	command    string
	configDir  string
	mainConfig string
	logPath    string
	logLevel   string
}

// run wires up every component spec.md §2 describes: the shadow terminal
// (C1-C3), the protocol bus (C4), the overlay producers (C5, C8, C9), the
// renderer (C7), the input decoder (C10), and config file-watching,
// then blocks until the bus broadcasts End.
func run(opts runOptions) error {
	dir, err := resolveConfigDir(opts.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}

	cfg, err := loadConfig(dir, opts.mainConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.command != "" {
		cfg.Command = opts.command
	}
	if opts.logPath != "" {
		cfg.LogPath = opts.logPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := logging.Init(logging.Options{Level: cfg.LogLevel, Path: cfg.LogPath}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close()

	pal, ok, err := palette.Load(filepath.Join(dir, "palette.toml"))
	if err != nil {
		return fmt.Errorf("load palette: %w", err)
	}
	if !ok {
		pal = palette.Default()
	}

	cols, rows, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}

	bus := protocol.NewBus()

	state := sharedstate.New(cfg)
	state.SetKeybindings(cfg.ToKeybindingTable())
	state.SetSize(sharedstate.Size{Cols: cols, Rows: rows})

	activeTerm, err := shadow.Start(shadow.Config{
		Command:    cfg.Command,
		Args:       []string{},
		Rows:       rows,
		Cols:       cols,
		ScrollStep: 3,
		Bus:        bus,
	})
	if err != nil {
		return fmt.Errorf("start shadow terminal: %w", err)
	}
	defer activeTerm.Close()

	rend := renderer.New(renderer.Config{Bus: bus, ContrastThreshold: cfg.MinimumTextContrast})
	cleanupRenderer, err := rend.Start()
	if err != nil {
		return fmt.Errorf("start renderer: %w", err)
	}
	defer cleanupRenderer()

	agg := tattoy.NewAggregator(cols, rows, rend.SubmitOverlay)

	dec := input.New(input.Config{
		Bus:         bus,
		Reader:      os.Stdin,
		Keybindings: state.Keybindings(),
	})
	go dec.WatchBus()
	go func() {
		if err := dec.Run(); err != nil {
			bus.End()
		}
	}()

	go func() {
		if err := config.Watch(dir, bus); err != nil {
			logging.Warn("config watcher stopped", "error", err)
		}
	}()

	startOverlays(bus, agg, cfg, pal, opts.use)

	// Every overlay's Base subscribes to bus synchronously inside its own
	// New (see internal/tattoy.NewBase), so by this point every overlay is
	// already a registered subscriber. Broadcasting the real size now, once,
	// seeds their cached ttySize without waiting on a user resize; activeTerm
	// and agg already know the real size since they were both constructed
	// with cols/rows directly above.
	bus.Publish(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: cols, Rows: rows}})

	go dispatchBusActions(bus, activeTerm, state)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		bus.End()
	}()

	endCh, unsub := bus.Subscribe()
	defer unsub()
	for v := range endCh {
		if ev, ok := v.(protocol.Event); ok && ev.Kind == protocol.EventEnd {
			break
		}
	}
	return nil
}

// loadConfig loads mainConfig from dir, honoring a non-default filename;
// config.Watch only ever watches the default tattoy.toml, so a custom
// --main-config only affects the initial load, not hot reload.
func loadConfig(dir, mainConfig string) (config.Config, error) {
	if mainConfig == "" || mainConfig == "tattoy.toml" {
		return config.Load(dir)
	}
	path := filepath.Join(dir, mainConfig)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		if err := config.WriteDefault(path, cfg); err != nil {
			return config.Config{}, err
		}
		return cfg, nil
	}
	return config.LoadFrom(path)
}

// dispatchBusActions forwards the two event kinds no package owns end to
// end: EventInput (decoded stdin bytes bound for the child) and
// EventKeybind (scroll/toggle actions bound for the shadow terminal and
// the shared toggles overlays consult).
func dispatchBusActions(bus *protocol.Bus, term *shadow.ActiveTerminal, state *sharedstate.State) {
	ch, unsub := bus.Subscribe()
	defer unsub()
	for v := range ch {
		ev, ok := v.(protocol.Event)
		if !ok {
			continue
		}
		switch ev.Kind {
		case protocol.EventEnd:
			return
		case protocol.EventInput:
			_ = term.SendInput(ev.Input)
		case protocol.EventKeybind:
			switch ev.Keybind {
			case protocol.ActionScrollUp:
				term.ScrollUp()
			case protocol.ActionScrollDown:
				term.ScrollDown()
			case protocol.ActionScrollExit:
				term.ScrollCancel()
			case protocol.ActionToggleScrolling:
				state.SetScrolling(!state.IsScrolling())
			case protocol.ActionToggleTattoy:
				state.SetRenderingEnabled(!state.IsRenderingEnabled())
			}
		case protocol.EventConfig:
			if cfg, ok := ev.Config.(config.Config); ok {
				state.SetConfig(cfg)
				state.SetKeybindings(cfg.ToKeybindingTable())
			}
		}
	}
}

// startOverlays launches the always-on UI overlays (scrollbar, minimap,
// notifications, startup_logo) plus every overlay force-enabled via --use
// or enabled in cfg, each in its own goroutine driven by tattoy.Run.
func startOverlays(bus *protocol.Bus, agg *tattoy.Aggregator, cfg config.Config, pal *palette.Palette, use []string) {
	forced := make(map[string]bool, len(use))
	for _, name := range use {
		forced[strings.TrimSpace(name)] = true
	}

	sb := scrollbar.New(bus, agg, cfg.FrameRate)
	go tattoy.Run(sb.Base(), sb)

	mm := minimap.New(bus, agg, cfg.FrameRate, pal)
	go tattoy.Run(mm.Base(), mm)

	nt := notifications.New(bus, agg, cfg.FrameRate, pal, notifications.DefaultConfig())
	go tattoy.Run(nt.Base(), nt)

	logo := startuplogo.New(bus, agg, cfg.FrameRate, pal)
	go tattoy.Run(logo.Base(), logo)

	if forced["random_walker"] {
		rw := randomwalker.New(bus, agg, cfg.FrameRate)
		go tattoy.Run(rw.Base(), rw)
	}

	if forced["shader"] || subtableEnabled(cfg.Shader) {
		sh := shaderOverlay(bus, agg, cfg)
		go tattoy.Run(sh.Base(), sh)
	}

	for _, p := range cfg.Plugins {
		if !p.Enabled && !forced[p.Name] {
			continue
		}
		pc := plugin.Config{Name: p.Name, Path: p.Path, Enabled: true}
		if p.Layer != 0 {
			layer := p.Layer
			pc.Layer = &layer
		}
		if p.Opacity != 0 {
			opacity := float32(p.Opacity)
			pc.Opacity = &opacity
		}
		po, err := plugin.New(bus, agg, cfg.FrameRate, pal, pc)
		if err != nil {
			logging.Error("plugin start failed", "plugin", p.Name, "error", err)
			continue
		}
		go tattoy.Run(po.Base(), po)
	}
}

func subtableEnabled(table map[string]any) bool {
	if table == nil {
		return false
	}
	enabled, _ := table["enabled"].(bool)
	return enabled
}

func shaderOverlay(bus *protocol.Bus, agg *tattoy.Aggregator, cfg config.Config) *shader.Overlay {
	dir, _ := config.ResolveDir()
	shaderDir := filepath.Join(dir, "shaders")
	startFile := ""
	var layer int16 = -10
	uploadTTY := false

	if cfg.Shader != nil {
		if v, ok := cfg.Shader["directory"].(string); ok && v != "" {
			shaderDir = v
		}
		if v, ok := cfg.Shader["start_file"].(string); ok {
			startFile = v
		}
		if v, ok := cfg.Shader["upload_tty_as_pixels"].(bool); ok {
			uploadTTY = v
		}
		switch v := cfg.Shader["layer"].(type) {
		case int64:
			layer = int16(v)
		case float64:
			layer = int16(v)
		}
	}

	return shader.New(bus, agg, cfg.FrameRate, layer, shaderDir, startFile, uploadTTY)
}
