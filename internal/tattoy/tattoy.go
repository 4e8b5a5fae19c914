// Package tattoy implements C5, the overlay producer protocol every
// concrete overlay under internal/tattoys/ embeds: identity, cached
// screen/scrollback state, the tick/select loop, the common event
// handlers, and the derived predicates spec.md §4.6 lists. Grounded on
// internal/overlay/overlay.go's Overlay struct (cached VT state plus
// OnOutput/OnModeChange callbacks) and its Run method's raw select-style
// event handling, generalized from one hardwired UI to N independent
// overlay tasks driven by the same protocol bus.
package tattoy

import (
	"fmt"
	"sync"
	"time"

	"tattoy/internal/cell"
	"tattoy/internal/config"
	"tattoy/internal/protocol"
)

// Identity is an overlay's unique name and z-order.
type Identity struct {
	ID    string
	Layer int16
}

// defaultFrameRate matches a comfortable animation rate when a producer
// doesn't ask for a specific one.
const defaultFrameRate = 30.0

// Base carries the state every overlay needs per spec.md §4.6: cached
// copies of the screen and scrollback surfaces, the tty size, a frame-rate
// target, the last frame tick time, and the last known scroll position.
// Concrete overlays embed *Base and implement Producer.
type Base struct {
	Identity
	FrameRate float64
	Bus       *protocol.Bus
	Agg       *Aggregator

	mu            sync.Mutex
	screen        *cell.Surface
	scrollback    *cell.Surface
	ttySize       cell.Size
	mode          protocol.ScreenMode
	scrollPos     int
	lastScrollPos int
	lastTick      time.Time

	sub   <-chan any
	unsub func()
}

// NewBase constructs a Base for one overlay. frameRate <= 0 uses
// defaultFrameRate. It subscribes to bus immediately, synchronously with
// the caller, rather than waiting for Run to start: cmd/tattoy constructs
// every overlay before it ever publishes the initial EventResize, so by
// the time that publish happens every overlay is already a registered
// subscriber and none of them miss it.
func NewBase(id string, layer int16, frameRate float64, bus *protocol.Bus, agg *Aggregator) *Base {
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	sub, unsub := bus.Subscribe()
	return &Base{
		Identity:  Identity{ID: id, Layer: layer},
		FrameRate: frameRate,
		Bus:       bus,
		Agg:       agg,
		sub:       sub,
		unsub:     unsub,
	}
}

// Screen returns the overlay's cached copy of the latest screen surface.
func (b *Base) Screen() *cell.Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.screen
}

// Scrollback returns the overlay's cached copy of the latest scrollback
// surface.
func (b *Base) Scrollback() *cell.Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollback
}

// TTYSize returns the overlay's cached view of the real terminal's size.
func (b *Base) TTYSize() cell.Size {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ttySize
}

// HandleCommon applies spec.md §4.6's common handlers: Resize updates
// size, Output updates the cached screen/scrollback (diff-applied or
// replaced), Config updates the frame rate. Returns true if ev was one of
// the handled kinds.
func (b *Base) HandleCommon(ev protocol.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Kind {
	case protocol.EventResize:
		b.ttySize = cell.Size{Rows: ev.Resize.Rows, Cols: ev.Resize.Cols}
		return true
	case protocol.EventOutput:
		b.applyOutputLocked(ev.Output)
		return true
	case protocol.EventConfig:
		rate, _ := ev.Config.(float64)
		if cfg, ok := ev.Config.(config.Config); ok {
			rate = cfg.FrameRate
		}
		if rate > 0 {
			b.FrameRate = rate
		}
		return true
	default:
		return false
	}
}

func (b *Base) applyOutputLocked(out protocol.Output) {
	var target **cell.Surface
	switch out.Surface {
	case protocol.SurfaceScreen:
		target = &b.screen
		b.mode = out.Mode
	case protocol.SurfaceScrollback:
		target = &b.scrollback
		b.lastScrollPos = b.scrollPos
		b.scrollPos = out.Position
	}
	if out.Complete {
		*target = out.Snapshot
		return
	}
	if *target != nil {
		(*target).Apply(out.Changes)
	}
}

// ScrollPosition returns the overlay's cached scrollback position (0 means
// at the live screen; positive values are how many rows back the user has
// scrolled).
func (b *Base) ScrollPosition() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollPos
}

// IsScrolling reports whether the cached scrollback position is away from
// the live screen.
func (b *Base) IsScrolling() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollPos != 0
}

// IsScrollingEnd reports whether the most recent Output transitioned the
// scroll position from nonzero back to zero (the moment a scroll session
// ends), per spec.md §4.6.
func (b *Base) IsScrollingEnd() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastScrollPos != 0 && b.scrollPos == 0
}

// IsAlternateScreen reports whether the cached screen mode is Alternate.
func (b *Base) IsAlternateScreen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode == protocol.ModeAlternate
}

// IsScreenOutputChanged reports whether ev is an Output event for the
// screen surface.
func IsScreenOutputChanged(ev protocol.Event) bool {
	return ev.Kind == protocol.EventOutput && ev.Output.Surface == protocol.SurfaceScreen
}

// IsScrollbackOutputChanged reports whether ev is an Output event for the
// scrollback surface.
func IsScrollbackOutputChanged(ev protocol.Event) bool {
	return ev.Kind == protocol.EventOutput && ev.Output.Surface == protocol.SurfaceScrollback
}

// SleepUntilNextFrameTick blocks until the next frame is due, computing
// target = 1_000_000 / frame_rate microseconds and waiting only the
// remaining time since the last tick; it never sleeps a negative duration,
// per spec.md §4.6.
func (b *Base) SleepUntilNextFrameTick() {
	b.mu.Lock()
	rate := b.FrameRate
	last := b.lastTick
	b.mu.Unlock()

	target := time.Duration(1000000/rate) * time.Microsecond
	elapsed := time.Since(last)
	remaining := target - elapsed
	if remaining > 0 {
		time.Sleep(remaining)
	}

	b.mu.Lock()
	b.lastTick = time.Now()
	b.mu.Unlock()
}

// Producer is what a concrete overlay implements: Render runs on every
// frame tick and returns the overlay's contribution (nil to contribute
// nothing this tick), and HandleEvent is called for every bus event after
// Base's common handlers have already run.
type Producer interface {
	Render() *cell.Surface
	HandleEvent(ev protocol.Event)
}

// Run drives an overlay's tick/select loop per spec.md §4.6:
//
//	select {
//	  sleep_until_next_frame_tick -> render()
//	  control_rx -> handle_common(...)
//	  end -> break
//	}
//
// It blocks until the bus broadcasts End or the overlay's subscription is
// torn down. Grounded on internal/overlay/overlay.go's Run, which performs
// the same "read event, dispatch by kind, loop" shape against a single
// input channel instead of N concurrent overlay tasks.
func Run(b *Base, p Producer) {
	ch, unsub := b.sub, b.unsub
	defer unsub()

	frameCh := make(chan struct{})
	stopTicker := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopTicker:
				return
			default:
			}
			b.SleepUntilNextFrameTick()
			select {
			case frameCh <- struct{}{}:
			case <-stopTicker:
				return
			}
		}
	}()
	defer close(stopTicker)

	for {
		select {
		case <-frameCh:
			if surface := renderGuarded(b, p); surface != nil && b.Agg != nil {
				b.Agg.Submit(b.ID, b.Layer, surface)
			}
		case v, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := v.(protocol.Event)
			if !ok {
				continue
			}
			b.HandleCommon(ev)
			handleEventGuarded(b, p, ev)
			if ev.Kind == protocol.EventEnd {
				return
			}
		}
	}
}

// renderGuarded and handleEventGuarded implement spec.md §4.7's panic
// containment: a misbehaving overlay is caught, reported as a user
// notification, and left to try again next tick rather than taking the
// whole process down.
func renderGuarded(b *Base, p Producer) (surface *cell.Surface) {
	defer recoverInto(b, &surface)
	return p.Render()
}

func handleEventGuarded(b *Base, p Producer, ev protocol.Event) {
	defer recoverInto(b, nil)
	p.HandleEvent(ev)
}

func recoverInto(b *Base, surface **cell.Surface) {
	r := recover()
	if r == nil {
		return
	}
	if surface != nil {
		*surface = nil
	}
	b.Bus.Publish(protocol.Event{Kind: protocol.EventNotification, Notification: protocol.Notification{
		ID:    b.ID + "-panic",
		Title: b.ID + " crashed",
		Body:  fmt.Sprintf("%v", r),
		Hint:  "see logs",
		Level: protocol.LevelError,
	}})
}
