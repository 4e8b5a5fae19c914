// Package plugin implements C9, the "plugin" overlay: an external
// executable is spawned as a subprocess and communicates with the
// overlay over NDJSON on stdin/stdout. Grounded on
// crates/tattoy/src/tattoys/plugins.rs (original_source) for the message
// contract (TTYResize/PTYUpdate outbound, OutputText/OutputPixels/
// OutputCells inbound) and on the teacher's internal/terminal/wrapper.go
// (Wrapper.Run's pty.StartWithSize/exec.Cmd spawn plus a dedicated
// goroutine pumping subprocess output) and internal/bridge/telegram.go
// (json.NewDecoder streaming loop) for the Go-side subprocess and JSON
// streaming idiom. encoding/json is used rather than a third-party JSON
// library because the teacher's own telegram.go already reaches for the
// standard decoder for exactly this kind of streamed-response parsing.
package plugin

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"tattoy/internal/cell"
	"tattoy/internal/logging"
	"tattoy/internal/palette"
	"tattoy/internal/protocol"
	"tattoy/internal/tattoy"
)

const (
	defaultLayer   int16   = -10
	defaultOpacity float32 = 1.0
)

// Config is the user-configurable settings for one plugin, mirroring
// plugins.rs's Config.
type Config struct {
	Name    string
	Path    string
	Layer   *int16
	Opacity *float32
	Enabled bool
}

func (c Config) layer() int16 {
	if c.Layer != nil {
		return *c.Layer
	}
	return defaultLayer
}

func (c Config) opacity() float32 {
	if c.Opacity != nil {
		return *c.Opacity
	}
	return defaultOpacity
}

// rgb is the wire shape for a color, mirroring the protocol's (r,g,b)
// tuples. MarshalJSON/UnmarshalJSON encode it as a compact 3-element
// array rather than an object.
type rgb struct {
	R, G, B uint8
}

func (c rgb) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint8{c.R, c.G, c.B})
}

func (c *rgb) UnmarshalJSON(data []byte) error {
	var arr [3]uint8
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	c.R, c.G, c.B = arr[0], arr[1], arr[2]
	return nil
}

// outboundMessage is what the overlay sends down the plugin's stdin.
type outboundMessage struct {
	Type    string     `json:"type"`
	Width   int        `json:"width,omitempty"`
	Height  int        `json:"height,omitempty"`
	Cells   []wireCell `json:"cells,omitempty"`
	CursorX int        `json:"cursor_x,omitempty"`
	CursorY int        `json:"cursor_y,omitempty"`
}

type wireCell struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Character string `json:"character"`
	Bg        *rgb   `json:"bg,omitempty"`
	Fg        *rgb   `json:"fg,omitempty"`
}

// inboundMessage is what the plugin writes to its own stdout, one JSON
// object per line (or back to back — the decoder doesn't require
// newline delimiters, matching plugins.rs's byte-stream Deserializer).
type inboundMessage struct {
	Type   string      `json:"type"`
	Text   string      `json:"text,omitempty"`
	X      int         `json:"x,omitempty"`
	Y      int         `json:"y,omitempty"`
	Bg     *rgb        `json:"bg,omitempty"`
	Fg     *rgb        `json:"fg,omitempty"`
	Pixels []wirePixel `json:"pixels,omitempty"`
	Cells  []wireCell  `json:"cells,omitempty"`
}

type wirePixel struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Color *rgb `json:"color,omitempty"`
}

// Overlay is the plugin producer. Every incoming plugin message is
// applied directly onto a persistent surface; Render hands back a
// snapshot of whatever the plugin has drawn so far, so a plugin that only
// occasionally emits messages still has its last frame composited every
// tick.
type Overlay struct {
	base    *tattoy.Base
	palette *palette.Palette
	cfg     Config

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	surface *cell.Surface
}

// New spawns the plugin executable and starts its output-reading
// goroutine. The caller is responsible for calling HandleEvent on
// protocol.EventEnd so the subprocess is killed during shutdown.
func New(bus *protocol.Bus, agg *tattoy.Aggregator, frameRate float64, pal *palette.Palette, cfg Config) (*Overlay, error) {
	o := &Overlay{
		base:    tattoy.NewBase("plugin:"+cfg.Name, cfg.layer(), frameRate, bus, agg),
		palette: pal,
		cfg:     cfg,
	}

	cmd := exec.Command(cfg.Path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: stdin pipe: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: stdout pipe: %w", cfg.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugin %s: start: %w", cfg.Name, err)
	}

	o.cmd = cmd
	o.stdin = stdin

	go o.listen(stdout)
	go func() {
		if err := cmd.Wait(); err != nil {
			logging.Debug("plugin process exited", "plugin", cfg.Name, "error", err)
		}
	}()

	return o, nil
}

// Base exposes the embedded protocol state for tattoy.Run.
func (o *Overlay) Base() *tattoy.Base { return o.base }

// listen parses newline-delimited JSON from the plugin's stdout forever,
// applying each message as it arrives. One malformed line is logged and
// skipped rather than killing the whole overlay, matching plugins.rs's
// listener loop which logs a parse error and keeps reading.
func (o *Overlay) listen(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	decoder := json.NewDecoder(reader)
	for {
		var msg inboundMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return
			}
			logging.Warn("plugin stdout decode failed", "plugin", o.cfg.Name, "error", err)
			// Drop the rest of the offending line and resume after it.
			reader = bufio.NewReader(io.MultiReader(decoder.Buffered(), reader))
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			decoder = json.NewDecoder(reader)
			continue
		}
		o.apply(msg)
	}
}

func (o *Overlay) apply(msg inboundMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.surface == nil {
		return
	}

	switch msg.Type {
	case "output_text":
		o.writeText(msg.X, msg.Y, msg.Text, msg.Bg, msg.Fg)
	case "output_pixels":
		for _, px := range msg.Pixels {
			col := cell.RGBA(255, 255, 255, 255)
			if px.Color != nil {
				col = cell.RGBA(px.Color.R, px.Color.G, px.Color.B, 255)
			}
			o.writeHalfPixel(px.X, px.Y, col)
		}
	case "output_cells":
		for _, c := range msg.Cells {
			o.writeText(c.X, c.Y, c.Character, c.Bg, c.Fg)
		}
	}
}

func (o *Overlay) writeText(x, y int, text string, bg, fg *rgb) {
	if o.surface == nil || y < 0 || y >= o.surface.Height {
		return
	}
	fgColor := o.fade(defaultColorOr(fg, cell.RGBA(255, 255, 255, 255)))
	bgColor := cell.Cell{}.Background
	if bg != nil {
		bgColor = o.fade(cell.RGBA(bg.R, bg.G, bg.B, 255))
	}
	for i, r := range []rune(text) {
		px := x + i
		if px < 0 || px >= o.surface.Width {
			continue
		}
		o.surface.Set(px, y, cell.Cell{Grapheme: string(r), Foreground: fgColor, Background: bgColor})
	}
}

func defaultColorOr(c *rgb, fallback cell.Color) cell.Color {
	if c == nil {
		return fallback
	}
	return cell.RGBA(c.R, c.G, c.B, 255)
}

// writeHalfPixel sets one half-block sub-pixel, addressing two vertical
// pixels per cell the same way random_walker and minimap do. The default
// is the upper half block, with the upper sub-pixel in the foreground and
// the lower in the background; the one case that can't be expressed that
// way is a lower sub-pixel landing in a still-empty cell, which would
// otherwise lose the cell's default background, so that case is rendered
// as a lower half block instead.
func (o *Overlay) writeHalfPixel(x, y int, color cell.Color) {
	row := y / 2
	if x < 0 || x >= o.surface.Width || row < 0 || row >= o.surface.Height {
		return
	}
	color = o.fade(color)
	existing := o.surface.At(x, row)

	isEmptyUpper := existing.Grapheme != string(cell.HalfBlockUpper)
	isUpperHalf := y%2 == 0
	addingToBottomOfEmptyUpper := isEmptyUpper && !isUpperHalf
	convertingLowerToFull := isUpperHalf && existing.Grapheme == string(cell.HalfBlockLower)

	switch {
	case addingToBottomOfEmptyUpper:
		existing.Grapheme = string(cell.HalfBlockLower)
		existing.Foreground = color
	case convertingLowerToFull:
		existing.Grapheme = string(cell.HalfBlockUpper)
		existing.Background = existing.Foreground
		existing.Foreground = color
	case isUpperHalf:
		existing.Grapheme = string(cell.HalfBlockUpper)
		existing.Foreground = color
	default:
		existing.Grapheme = string(cell.HalfBlockUpper)
		existing.Background = color
	}
	o.surface.Set(x, row, existing)
}

// fade blends color toward the terminal's default background by
// (1 - opacity), the same RGB-bake-in technique the notifications
// overlay uses: the aggregator always composites layers at opacity 1, so
// a plugin's configured opacity has to be baked into its own colors
// rather than carried through as per-cell alpha.
func (o *Overlay) fade(color cell.Color) cell.Color {
	t := clamp01(o.cfg.opacity())
	if t >= 1 {
		return color
	}
	base := o.palette.DefaultBackground()
	lerp := func(from, to uint8) uint8 {
		return uint8(float32(from)*(1-t) + float32(to)*t)
	}
	return cell.RGBA(lerp(base.R, color.R), lerp(base.G, color.G), lerp(base.B, color.B), 255)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HandleEvent forwards terminal size and PTY content to the plugin, and
// kills the subprocess on EventEnd, matching
// Plugin::handle_protocol_messages plus the shutdown branch of
// Plugin::start's select loop.
func (o *Overlay) HandleEvent(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventResize:
		o.resetSurface(ev.Resize.Cols, ev.Resize.Rows)
		o.send(outboundMessage{Type: "tty_resize", Width: ev.Resize.Cols, Height: ev.Resize.Rows})
	case protocol.EventOutput:
		if ev.Output.Surface == protocol.SurfaceScreen && ev.Output.Complete {
			o.sendPTYUpdate(ev.Output.Snapshot)
		}
	case protocol.EventEnd:
		if o.stdin != nil {
			o.stdin.Close()
		}
		if o.cmd != nil && o.cmd.Process != nil {
			_ = o.cmd.Process.Kill()
		}
	}
}

func (o *Overlay) resetSurface(width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.surface = cell.NewSurface(width, height)
}

func (o *Overlay) sendPTYUpdate(screen *cell.Surface) {
	if screen == nil {
		return
	}
	cells := make([]wireCell, 0, screen.Width*screen.Height)
	for y := 0; y < screen.Height; y++ {
		for x := 0; x < screen.Width; x++ {
			c := screen.At(x, y)
			if c.Grapheme == "" || c.Grapheme == " " {
				continue
			}
			fg := o.palette.ResolveCellColor(c.Foreground, true)
			bg := o.palette.ResolveCellColor(c.Background, false)
			cells = append(cells, wireCell{
				X: x, Y: y, Character: c.Grapheme,
				Fg: toWireColor(fg),
				Bg: toWireColor(bg),
			})
		}
	}
	o.send(outboundMessage{
		Type: "pty_update", Width: screen.Width, Height: screen.Height,
		Cells: cells, CursorX: screen.Cursor.X, CursorY: screen.Cursor.Y,
	})
}

func toWireColor(c cell.Color) *rgb {
	if c.Kind != cell.ColorTrueColor {
		return nil
	}
	return &rgb{R: c.R, G: c.G, B: c.B}
}

func (o *Overlay) send(msg outboundMessage) {
	if o.stdin == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Warn("plugin message marshal failed", "plugin", o.cfg.Name, "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := o.stdin.Write(data); err != nil {
		logging.Warn("plugin stdin write failed", "plugin", o.cfg.Name, "error", err)
	}
}

// Render returns a snapshot of whatever the plugin has drawn so far.
func (o *Overlay) Render() *cell.Surface {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.surface == nil {
		return nil
	}
	snapshot := cell.NewSurface(o.surface.Width, o.surface.Height)
	copy(snapshot.Cells, o.surface.Cells)
	snapshot.Cursor = o.surface.Cursor
	return snapshot
}
