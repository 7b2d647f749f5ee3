package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SimTime breakpoints relative to the tick counter, at the default tick
// length of one sim-hour per tick.
const (
	TicksPerSimDay  = 24
	TicksPerSimWeek = 168
)

// Loop drives ProcessTick on a wall-clock cadence. It is the long-running
// host shell around the engine: the engine itself has no notion of real
// time or pacing.
type Loop struct {
	Engine   *Engine
	Interval time.Duration // wall-clock time per tick at speed 1.0

	// Periodic callbacks, keyed off the committed tick counter.
	OnResult func(res *TickResult) // every successful tick
	OnDay    func(tick int64)      // every 24 ticks
	OnWeek   func(tick int64)      // every 168 ticks

	speedMu sync.Mutex
	speed   float64

	stop chan struct{}
}

// NewLoop creates a loop over an engine with default pacing: one tick per
// wall-clock second.
func NewLoop(e *Engine) *Loop {
	return &Loop{
		Engine:   e,
		Interval: time.Second,
		speed:    1.0,
		stop:     make(chan struct{}),
	}
}

// Speed returns the current pacing multiplier.
func (l *Loop) Speed() float64 {
	l.speedMu.Lock()
	defer l.speedMu.Unlock()
	return l.speed
}

// SetSpeed changes the pacing multiplier: 1.0 = real-time, 0 = paused.
// Safe to call from any goroutine; the loop itself reads under the lock.
func (l *Loop) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	l.speedMu.Lock()
	l.speed = v
	l.speedMu.Unlock()
}

// Run blocks, processing ticks until Stop is called or the context is
// cancelled. A failed tick is logged and retried on the next beat with the
// same tick number; the loop never dies from a simulation error.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("tick loop started",
		"tick", l.Engine.State().Clock.Tick,
		"speed", l.Speed(),
		"interval", l.Interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("tick loop stopped", "tick", l.Engine.State().Clock.Tick, "reason", "context cancelled")
			return
		case <-l.stop:
			slog.Info("tick loop stopped", "tick", l.Engine.State().Clock.Tick)
			return
		default:
		}

		speed := l.Speed()
		if speed <= 0 {
			// Paused. Check again shortly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		l.step(ctx)

		// Sleep out the remainder of the beat, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(l.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}
}

// Stop halts the loop after the in-flight tick finishes. Safe to call once.
func (l *Loop) Stop() {
	close(l.stop)
}

// step runs one tick and fires the periodic callbacks.
func (l *Loop) step(ctx context.Context) {
	res, err := l.Engine.ProcessTick(ctx)
	if err != nil {
		if errors.Is(err, ErrTickInProgress) {
			// Another caller (admin API, test) beat us to this beat.
			return
		}
		slog.Error("tick failed, will retry",
			"tick", l.Engine.State().Clock.Tick+1, "error", err)
		return
	}

	if l.OnResult != nil {
		l.OnResult(res)
	}
	if res.Tick%TicksPerSimDay == 0 && l.OnDay != nil {
		l.OnDay(res.Tick)
	}
	if res.Tick%TicksPerSimWeek == 0 && l.OnWeek != nil {
		l.OnWeek(res.Tick)
	}
}

// SimTime renders a tick counter as a human-readable facility time at the
// default one-hour tick length.
func SimTime(tick int64) string {
	hour := tick % 24
	totalDays := tick / 24
	day := totalDays%7 + 1
	week := totalDays/7 + 1
	return fmt.Sprintf("Week %d, Day %d, %02d:00", week, day, hour)
}
