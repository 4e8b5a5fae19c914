// Package notifications implements the "notifications" overlay: a queue of
// title/body messages rendered in the top-right corner, fading in and out
// and auto-expiring after a configured duration, filtered by a minimum
// urgency level. Grounded on
// crates/tattoy/src/tattoys/notifications/{main,message}.rs
// (original_source). Message IDs use github.com/google/uuid, the same
// library the pack's session metadata already depends on for identifiers.
package notifications

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"tattoy/internal/cell"
	"tattoy/internal/palette"
	"tattoy/internal/protocol"
	"tattoy/internal/tattoy"
)

// fadeTransition is how long the fade-in and fade-out edges last, in
// seconds, matching message.rs's local `transition` constant.
const fadeTransition = 0.2

// message is one queued notification with its arrival time, mirroring
// message.rs's Message plus the id message.rs defers to the caller.
type message struct {
	id       string
	title    string
	body     string
	level    protocol.NotificationLevel
	hint     string
	received time.Time
}

func (m message) age(now time.Time) float32 {
	return float32(now.Sub(m.received).Seconds())
}

// fade computes the fade in/out opacity for age seconds into a
// notification's display, duration seconds long, per message.rs's
// fade_in_out.
func fade(age, duration float32) float32 {
	switch {
	case age < 0:
		return 0
	case age <= fadeTransition:
		return smoothstep(0, fadeTransition, age)
	case age <= duration-fadeTransition:
		return 1
	case age <= duration:
		return smoothstep(duration, duration-fadeTransition, age)
	default:
		return 0
	}
}

// smoothstep interpolates x between edge0 and edge1 using the classic
// cubic Hermite curve.
func smoothstep(edge0, edge1, x float32) float32 {
	if edge0 == edge1 {
		return 0
	}
	t := (x - edge0) / (edge1 - edge0)
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

func clamp01(v float32) float32 {
	return float32(math.Min(1, math.Max(0, float64(v))))
}

func (m message) maxWidth() int {
	width := len(m.title)
	for _, line := range splitLines(m.body) {
		if len(line) > width {
			width = len(line)
		}
	}
	return width
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// levelColor is the background tint for each urgency level, matching
// message.rs's Message::colour.
func levelColor(level protocol.NotificationLevel) (r, g, b float32) {
	switch level {
	case protocol.LevelError:
		return 0.3, 0, 0
	case protocol.LevelWarn:
		return 0.3, 0.3, 0
	case protocol.LevelInfo:
		return 0, 0.3, 0
	case protocol.LevelDebug:
		return 0, 0, 0.3
	default: // LevelTrace
		return 0.3, 0.3, 0.3
	}
}

// Config is the notifications overlay's user-configurable behavior,
// mirroring notifications/main.rs's Config.
type Config struct {
	Enabled  bool
	Opacity  float32
	Level    protocol.NotificationLevel
	Duration float32
}

// DefaultConfig matches the original's sensible defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, Opacity: 0.9, Level: protocol.LevelWarn, Duration: 5}
}

// Overlay is the notifications producer.
type Overlay struct {
	base     *tattoy.Base
	palette  *palette.Palette
	cfg      Config
	messages []message
}

// New constructs a notifications overlay at layer 200, the original's
// "always on top" z-order.
func New(bus *protocol.Bus, agg *tattoy.Aggregator, frameRate float64, pal *palette.Palette, cfg Config) *Overlay {
	return &Overlay{
		base:    tattoy.NewBase("notifications", 200, frameRate, bus, agg),
		palette: pal,
		cfg:     cfg,
	}
}

// Base exposes the embedded protocol state for tattoy.Run.
func (o *Overlay) Base() *tattoy.Base { return o.base }

// HandleEvent queues incoming notifications, matching
// handle_protocol_message's push onto self.messages.
func (o *Overlay) HandleEvent(ev protocol.Event) {
	if ev.Kind != protocol.EventNotification {
		return
	}
	n := ev.Notification
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	received := n.CreatedAt
	if received.IsZero() {
		received = time.Now()
	}
	o.messages = append(o.messages, message{
		id:       id,
		title:    n.Title,
		body:     n.Body,
		level:    n.Level,
		hint:     n.Hint,
		received: received,
	})
}

// Render lays out every live message that clears the configured level
// threshold, most urgent first, fading each in/out by age, per
// notifications/main.rs's render.
func (o *Overlay) Render() *cell.Surface {
	if !o.cfg.Enabled {
		return nil
	}
	size := o.base.TTYSize()
	width, height := size.Cols, size.Rows
	if width < 1 || height < 1 {
		return nil
	}

	now := time.Now()
	o.removeExpired(now)
	if len(o.messages) == 0 {
		return nil
	}

	visible := make([]message, 0, len(o.messages))
	for _, m := range o.messages {
		if m.level <= o.cfg.Level {
			visible = append(visible, m)
		}
	}
	if len(visible) == 0 {
		return nil
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].level < visible[j].level })

	surface := cell.NewSurface(width, height)
	y := 0
	for _, m := range visible {
		o.addLine(surface, width, y, m, m.title, now, false)
		for _, line := range splitLines(m.body) {
			y++
			o.addLine(surface, width, y, m, line, now, true)
		}
		y++
	}
	return surface
}

func (o *Overlay) removeExpired(now time.Time) {
	kept := o.messages[:0]
	for _, m := range o.messages {
		if m.age(now) < o.cfg.Duration {
			kept = append(kept, m)
		}
	}
	o.messages = kept
}

// addLine writes one line of one message at row y, right-aligned with
// padding, matching add_text's placement and darken-for-body rule.
func (o *Overlay) addLine(surface *cell.Surface, width, y int, m message, text string, now time.Time, isBody bool) {
	if y < 0 || y >= surface.Height {
		return
	}
	opacity := fade(m.age(now), o.cfg.Duration) * o.cfg.Opacity

	// The aggregator always composites overlay layers at opacity 1 (only
	// Submit's layer-level Opacity participates in blending, not a cell's
	// own alpha), so a fading notification is approximated by blending its
	// own colors toward the background default as opacity drops, rather
	// than by carrying per-cell alpha through to the compositor.
	base := o.palette.DefaultBackground()
	textRGB := o.palette.DefaultForeground()
	bgR, bgG, bgB := levelColor(m.level)
	if isBody {
		bgR, bgG, bgB = bgR*0.7, bgG*0.7, bgB*0.7
	}

	fg := lerpRGB(base, textRGB.R, textRGB.G, textRGB.B, opacity)
	bg := lerpRGB(base, toByte(bgR), toByte(bgG), toByte(bgB), opacity)

	const padding = 2
	maxWidth := clampInt(m.maxWidth(), 0, width-padding)
	x := width - maxWidth - padding
	if x < 0 {
		x = 0
	}

	rightPad := clampInt(maxWidth-clampInt(len(text), 0, maxWidth)+1, 0, width)
	line := " " + text + repeatSpace(rightPad)
	for i, r := range []rune(line) {
		px := x + i
		if px < 0 || px >= width {
			continue
		}
		surface.Set(px, y, cell.Cell{Grapheme: string(r), Foreground: fg, Background: bg})
	}
}

// lerpRGB blends from base toward (r,g,b) by t ∈ [0,1].
func lerpRGB(base palette.RGB, r, g, b uint8, t float32) cell.Color {
	t = clamp01(t)
	lerp := func(from, to uint8) uint8 {
		return toByte(float32(from)/255*(1-t) + float32(to)/255*t)
	}
	return cell.RGBA(lerp(base.R, r), lerp(base.G, g), lerp(base.B, b), 255)
}

func repeatSpace(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func toByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 255
	}
	return uint8(v * 255)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
