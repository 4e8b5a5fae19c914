// Package protocol implements the control/protocol bus (C4): a broadcast
// channel carrying lifecycle events between the shadow terminal, the
// renderer, and every overlay. Modeled on the teacher's habit of guarding
// shared mutable state with a narrow mutex (internal/virtualterminal/vt.go's
// VT.Mu) rather than reaching for a third-party pub/sub library — no such
// library appears anywhere in the retrieval pack, so this bus is original
// plumbing built in that same mutex-and-slice idiom.
package protocol

import (
	"sync"
	"sync/atomic"
	"time"

	"tattoy/internal/cell"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventEnd EventKind = iota
	EventResize
	EventOutput
	EventInput
	EventConfig
	EventKeybind
	EventNotification
)

func (k EventKind) String() string {
	switch k {
	case EventEnd:
		return "End"
	case EventResize:
		return "Resize"
	case EventOutput:
		return "Output"
	case EventInput:
		return "Input"
	case EventConfig:
		return "Config"
	case EventKeybind:
		return "KeybindEvent"
	case EventNotification:
		return "Notification"
	default:
		return "Unknown"
	}
}

// OutputSurfaceKind distinguishes which surface an Output event describes.
type OutputSurfaceKind int

const (
	SurfaceScreen OutputSurfaceKind = iota
	SurfaceScrollback
)

// ScreenMode is Primary or Alternate, mirrored from the emulator.
type ScreenMode int

const (
	ModePrimary ScreenMode = iota
	ModeAlternate
)

// Output is the tagged union described in spec.md §3: either a Complete
// snapshot or an incremental Diff, for either the screen or the scrollback.
type Output struct {
	Surface  OutputSurfaceKind
	Complete bool // true => Snapshot is valid; false => Changes is valid

	Size        cell.Size
	Mode        ScreenMode // meaningful when Surface == SurfaceScreen
	TotalHeight int        // meaningful when Surface == SurfaceScrollback
	Position    int        // meaningful when Surface == SurfaceScrollback

	Snapshot *cell.Surface
	Changes  []cell.Change

	Seq uint64
}

// KeybindAction enumerates the actions the input decoder can dispatch.
type KeybindAction string

const (
	ActionToggleTattoy    KeybindAction = "ToggleTattoy"
	ActionToggleScrolling KeybindAction = "ToggleScrolling"
	ActionScrollUp        KeybindAction = "ScrollUp"
	ActionScrollDown      KeybindAction = "ScrollDown"
	ActionScrollExit      KeybindAction = "ScrollExit"
	ActionShaderNext      KeybindAction = "ShaderNext"
	ActionShaderPrev      KeybindAction = "ShaderPrev"
)

// NotificationLevel orders notifications by urgency, mirroring message.rs's
// Level (Error is the lowest ordinal/highest urgency).
type NotificationLevel int

const (
	LevelError NotificationLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Notification is a user-visible diagnostic surfaced by any task.
type Notification struct {
	ID        string
	Title     string
	Body      string
	Hint      string // e.g. "see logs"
	Level     NotificationLevel
	CreatedAt time.Time
}

// ResizeEvent carries the new real-terminal dimensions.
type ResizeEvent struct {
	Cols, Rows int
}

// Event is one broadcast message on the bus. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Event struct {
	Kind         EventKind
	Resize       ResizeEvent
	Output       Output
	Input        []byte
	Config       any
	Keybind      KeybindAction
	Notification Notification
}

// ErrLagged is delivered to a subscriber in place of an Event when its
// ring buffer overflowed before it could keep up; the consumer should
// resync from the next Complete snapshot.
type ErrLagged struct{ Skipped int }

func (e ErrLagged) Error() string { return "protocol bus: receiver lagged" }

// subscriber is one receiver's bounded mailbox.
type subscriber struct {
	ch     chan any // carries either Event or ErrLagged
	closed bool
}

const subscriberCapacity = 64

// Bus is a multi-producer, multi-consumer broadcast channel. Zero value is
// not usable; construct with NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
	seq  atomic.Uint64
}

// NewBus constructs an empty broadcast bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a new receiver and returns its channel plus an
// unsubscribe function. The channel yields Event values, or an ErrLagged
// wrapped as an event-shaped error when the receiver fell behind.
func (b *Bus) Subscribe() (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan any, subscriberCapacity)}
	b.subs[id] = sub
	return sub.ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok && !sub.closed {
		sub.closed = true
		close(sub.ch)
		delete(b.subs, id)
	}
}

// NextSeq returns the next monotonically increasing Output sequence
// number. Safe for concurrent callers; no two calls ever return the same
// value.
func (b *Bus) NextSeq() uint64 {
	return b.seq.Add(1)
}

// Publish broadcasts ev to every current subscriber. A subscriber whose
// mailbox is full receives an ErrLagged instead of blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Drop the oldest pending lag-notice collapse: just try to signal
			// lag without blocking; if even that would block, the subscriber
			// is already marked lagging by a prior send failure and we skip.
			select {
			case sub.ch <- ErrLagged{Skipped: 1}:
			default:
			}
		}
	}
}

// End is a convenience for Publish(Event{Kind: EventEnd}).
func (b *Bus) End() { b.Publish(Event{Kind: EventEnd}) }
