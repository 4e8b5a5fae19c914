package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tattoy/internal/palette"
	"tattoy/internal/protocol"
)

func TestFadeRampsUpThenHoldsThenRampsDown(t *testing.T) {
	assert.InDelta(t, 0, fade(-0.1, 5), 0.001)
	assert.InDelta(t, 1, fade(2.5, 5), 0.001)
	assert.InDelta(t, 0, fade(5.1, 5), 0.001)
}

func TestHandleEventQueuesNotification(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, palette.Default(), DefaultConfig())
	o.HandleEvent(protocol.Event{
		Kind:         protocol.EventNotification,
		Notification: protocol.Notification{Title: "hello", Level: protocol.LevelWarn},
	})
	require.Len(t, o.messages, 1)
	assert.Equal(t, "hello", o.messages[0].title)
	assert.NotEmpty(t, o.messages[0].id)
}

func TestRenderFiltersByConfiguredLevel(t *testing.T) {
	bus := protocol.NewBus()
	cfg := DefaultConfig()
	cfg.Level = protocol.LevelError
	o := New(bus, nil, 30, palette.Default(), cfg)
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 40, Rows: 10}})
	o.HandleEvent(protocol.Event{
		Kind:         protocol.EventNotification,
		Notification: protocol.Notification{Title: "just a warning", Level: protocol.LevelWarn},
	})

	assert.Nil(t, o.Render())
}

func TestRenderDrawsVisibleMessage(t *testing.T) {
	bus := protocol.NewBus()
	o := New(bus, nil, 30, palette.Default(), DefaultConfig())
	o.base.HandleCommon(protocol.Event{Kind: protocol.EventResize, Resize: protocol.ResizeEvent{Cols: 40, Rows: 10}})
	o.HandleEvent(protocol.Event{
		Kind:         protocol.EventNotification,
		Notification: protocol.Notification{Title: "disk full", Level: protocol.LevelError},
	})

	surface := o.Render()
	require.NotNil(t, surface)

	found := false
	for _, c := range surface.Cells {
		if c.Grapheme != "" && c.Grapheme != " " {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRemoveExpiredDropsOldMessages(t *testing.T) {
	bus := protocol.NewBus()
	cfg := DefaultConfig()
	cfg.Duration = 0.01
	o := New(bus, nil, 30, palette.Default(), cfg)
	o.messages = []message{{id: "a", title: "old", received: time.Now().Add(-time.Second)}}

	o.removeExpired(time.Now())
	assert.Empty(t, o.messages)
}
