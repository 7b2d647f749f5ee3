// Package engine provides the tick engine: a fixed seven-phase sequencer
// that drives pluggable simulation phases, collects and stamps domain
// events, and commits each tick's economic activity exactly once.
package engine

import (
	"errors"
	"fmt"
)

// Phase is one of the seven ordered tick phases. The order is fixed and
// total: no phase is skipped, reordered, or re-entered, and commit always
// runs last, exactly once per successful tick.
type Phase int

const (
	PhaseDeviceEffects Phase = iota
	PhaseEnvironment
	PhaseIrrigation
	PhasePlants
	PhaseHarvest
	PhaseAccounting
	PhaseCommit
)

// PhaseCount is the number of phases in a tick.
const PhaseCount = int(PhaseCommit) + 1

var phaseNames = [PhaseCount]string{
	"device_effects",
	"environment",
	"irrigation",
	"plants",
	"harvest",
	"accounting",
	"commit",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= PhaseCount {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Structural errors: these indicate host misuse, not simulation failures.
var (
	ErrTickInProgress = errors.New("tick already in progress")
	ErrNotRunning     = errors.New("no tick in progress")
)

// machineState enumerates the sequencer's lifecycle.
type machineState int

const (
	stateIdle machineState = iota
	stateRunning
	stateCompleted
	stateFailed
)

func (s machineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// PhaseMachine is the explicit finite-state walk over the seven phases.
// It makes "which phase are we in" an inspectable fact and makes starting
// a tick while one is in flight structurally impossible.
//
// The machine is not goroutine-safe; the engine serializes access.
type PhaseMachine struct {
	state machineState
	idx   int
	tick  int64
	err   error
}

// Start begins a walk at the given tick number. It fails if a tick is
// already running; starting over a completed or failed walk is allowed and
// discards the previous outcome.
func (m *PhaseMachine) Start(tick int64) error {
	if m.state == stateRunning {
		return fmt.Errorf("%w: tick %d at phase %s", ErrTickInProgress, m.tick, Phase(m.idx))
	}
	m.state = stateRunning
	m.idx = 0
	m.tick = tick
	m.err = nil
	return nil
}

// Current returns the active phase. It fails unless a walk is running.
func (m *PhaseMachine) Current() (Phase, error) {
	if m.state != stateRunning {
		return 0, fmt.Errorf("%w: machine is %s", ErrNotRunning, m.state)
	}
	return Phase(m.idx), nil
}

// Advance moves to the next phase, or to completed after the last one.
func (m *PhaseMachine) Advance() error {
	if m.state != stateRunning {
		return fmt.Errorf("%w: machine is %s", ErrNotRunning, m.state)
	}
	m.idx++
	if m.idx >= PhaseCount {
		m.state = stateCompleted
	}
	return nil
}

// Fail marks the walk as failed, retaining the in-flight tick number for
// inspection.
func (m *PhaseMachine) Fail(err error) {
	m.state = stateFailed
	m.err = err
}

// Reset returns the machine to idle.
func (m *PhaseMachine) Reset() {
	m.state = stateIdle
	m.idx = 0
	m.tick = 0
	m.err = nil
}

// Running reports whether a walk is in progress.
func (m *PhaseMachine) Running() bool {
	return m.state == stateRunning
}

// Completed reports whether the last walk finished all phases.
func (m *PhaseMachine) Completed() bool {
	return m.state == stateCompleted
}

// Failed returns the failure error, or nil when the machine has not failed.
func (m *PhaseMachine) Failed() error {
	if m.state != stateFailed {
		return nil
	}
	return m.err
}

// Tick returns the tick number of the current or most recent walk.
func (m *PhaseMachine) Tick() int64 {
	return m.tick
}
