// Package events provides the tick-scoped event collector. Phase handlers
// queue domain events during a tick; the engine stamps and flushes them in
// queue order once the tick commits. Fan-out is an explicit host-owned sink
// list, not a process-global bus.
package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Well-known event types emitted by the core.
const (
	TypeTickCompleted = "tick.completed"
	TypeFinanceOpex   = "finance.opex"
	TypeFinanceCapex  = "finance.capex"
	TypeFinanceTick   = "finance.tick"
)

// Severity levels. Plain strings so handlers can extend them.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is one domain fact produced during a tick. Tick and TS are assigned
// by the collector at flush time when the producer left them unset.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Tick    int64          `json:"tick"`
	TS      time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Sink receives flushed events. Sinks run on the tick goroutine and must
// not block.
type Sink func(Event)

// Collector is an append buffer created fresh for every tick. It is
// single-writer: only the currently active phase handler queues into it.
type Collector struct {
	buf []Event
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Queue appends one event, assigning an ID and default level if missing.
// Tick and TS stay as the producer set them until Flush.
func (c *Collector) Queue(e Event) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	c.buf = append(c.buf, e)
}

// QueueAll appends events preserving their order.
func (c *Collector) QueueAll(list []Event) {
	for _, e := range list {
		c.Queue(e)
	}
}

// Len reports how many events are queued.
func (c *Collector) Len() int {
	return len(c.buf)
}

// Flush stamps every queued event with the tick number and timestamp where
// the producer did not set them, and returns the buffer in queue order.
// The collector is not reusable afterwards; the engine discards it.
func (c *Collector) Flush(tick int64, ts time.Time) []Event {
	for i := range c.buf {
		if c.buf[i].Tick == 0 {
			c.buf[i].Tick = tick
		}
		if c.buf[i].TS.IsZero() {
			c.buf[i].TS = ts
		}
	}
	return c.buf
}
