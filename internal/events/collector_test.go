package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueAssignsIDAndLevel(t *testing.T) {
	c := NewCollector()
	c.Queue(Event{Type: "plant.grew"})
	c.Queue(Event{Type: "alarm", Level: LevelWarn, ID: "fixed-id"})

	out := c.Flush(1, time.Now())
	require.Len(t, out, 2)

	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, LevelInfo, out[0].Level)

	// Producer-set fields survive untouched.
	assert.Equal(t, "fixed-id", out[1].ID)
	assert.Equal(t, LevelWarn, out[1].Level)
}

func TestFlushStampsOnlyUnsetFields(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	flushTS := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	c := NewCollector()
	c.Queue(Event{Type: "a"})
	c.Queue(Event{Type: "b", Tick: 7, TS: fixed})

	out := c.Flush(42, flushTS)
	require.Len(t, out, 2)

	assert.EqualValues(t, 42, out[0].Tick)
	assert.Equal(t, flushTS, out[0].TS)

	assert.EqualValues(t, 7, out[1].Tick)
	assert.Equal(t, fixed, out[1].TS)
}

func TestFlushPreservesQueueOrder(t *testing.T) {
	c := NewCollector()
	types := []string{"first", "second", "third", "fourth"}
	for _, typ := range types {
		c.Queue(Event{Type: typ})
	}
	require.Equal(t, len(types), c.Len())

	out := c.Flush(1, time.Now())
	for i, typ := range types {
		assert.Equal(t, typ, out[i].Type)
	}
}

func TestQueueAll(t *testing.T) {
	c := NewCollector()
	c.QueueAll([]Event{{Type: "x"}, {Type: "y"}})
	assert.Equal(t, 2, c.Len())
}
