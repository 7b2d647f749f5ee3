package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/events"
	"github.com/talgya/cultivar/internal/facility"
)

// DefaultTickLengthMinutes is the simulated duration of one tick when the
// host does not configure one.
const DefaultTickLengthMinutes = 60.0

// PhaseHandler is the single extension point of the engine: one function
// per phase per tick. Handlers communicate facts to the outside world only
// by queueing events and by calling the accounting facade.
type PhaseHandler func(ctx context.Context, pc *PhaseContext) error

// Accounting is the narrow facade phase handlers get. Handlers never touch
// the ledger or the accumulator directly.
type Accounting interface {
	RecordUtilityConsumption(demand economy.UtilityDemand, scope string) (economy.UtilityCharge, error)
	RecordDevicePurchase(blueprintID string, qty int, description string) (float64, error)
}

// EnvironmentService supplies the built-in defaults for the device-effects
// and environment phases when the host injects neither handler.
type EnvironmentService interface {
	ApplyDeviceEffects(ctx context.Context, pc *PhaseContext) error
	DeriveEnvironment(ctx context.Context, pc *PhaseContext) error
}

// PhaseContext is the immutable per-phase view handed to handlers. The
// State pointer is an exclusive mutable borrow for the duration of the
// phase: only one phase runs at a time.
type PhaseContext struct {
	State             *facility.State
	Tick              int64
	TickLengthMinutes float64
	Phase             Phase
	Events            *events.Collector
	Accounting        Accounting // nil when no cost engine is configured
}

// PhaseTiming is observability data for one phase, measured against the
// monotonic clock relative to tick start. Not game-deterministic.
type PhaseTiming struct {
	Phase       string  `json:"phase"`
	StartedMs   float64 `json:"started_ms"`
	CompletedMs float64 `json:"completed_ms"`
	DurationMs  float64 `json:"duration_ms"`
}

// TickResult is the outcome of one successful ProcessTick call. It is
// immutable after return; PhaseTimings always holds all seven phases in
// phase order.
type TickResult struct {
	Tick         int64          `json:"tick"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at"`
	Events       []events.Event `json:"events"`
	PhaseTimings []PhaseTiming  `json:"phase_timings"`
}

// Engine composes the phase machine, the event collector, the cost engine,
// and the phase handlers into one ProcessTick operation. One engine owns
// one facility state; scope one engine per facility instance.
type Engine struct {
	state      *facility.State
	cost       *economy.CostEngine
	env        EnvironmentService
	handlers   [PhaseCount]PhaseHandler
	commitHook PhaseHandler
	sinks      []events.Sink

	tickLengthMinutes float64

	machine PhaseMachine
	busy    atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithHandler injects a handler for one phase. Injecting a handler for the
// commit phase sets the commit hook.
func WithHandler(p Phase, h PhaseHandler) Option {
	return func(e *Engine) {
		if p == PhaseCommit {
			e.commitHook = h
			return
		}
		if p >= 0 && int(p) < PhaseCount {
			e.handlers[p] = h
		}
	}
}

// WithCostEngine wires the cost accounting engine. Without one, the
// accounting phase is a no-op and no accumulator is created.
func WithCostEngine(ce *economy.CostEngine) Option {
	return func(e *Engine) { e.cost = ce }
}

// WithEnvironment wires the default environment service used when neither
// the device-effects nor the environment handler is injected.
func WithEnvironment(env EnvironmentService) Option {
	return func(e *Engine) { e.env = env }
}

// WithCommitHook injects end-of-tick external work (persistence, data
// reloads). The hook runs at the start of the commit phase, before the
// clock advances.
func WithCommitHook(h PhaseHandler) Option {
	return func(e *Engine) { e.commitHook = h }
}

// WithSink adds an output channel for flushed events.
func WithSink(s events.Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// WithTickLength sets the simulated minutes covered by one tick.
func WithTickLength(minutes float64) Option {
	return func(e *Engine) {
		if minutes > 0 {
			e.tickLengthMinutes = minutes
		}
	}
}

// New creates an engine over a facility state.
func New(state *facility.State, opts ...Option) *Engine {
	e := &Engine{
		state:             state,
		tickLengthMinutes: DefaultTickLengthMinutes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State exposes the owned facility state for hosts and read-only surfaces.
func (e *Engine) State() *facility.State {
	return e.state
}

// TickLengthMinutes reports the configured tick length.
func (e *Engine) TickLengthMinutes() float64 {
	return e.tickLengthMinutes
}

// SetTickLength changes the tick length. Call between ticks only.
func (e *Engine) SetTickLength(minutes float64) {
	if minutes > 0 {
		e.tickLengthMinutes = minutes
	}
}

// CostEngine returns the wired cost engine, or nil.
func (e *Engine) CostEngine() *economy.CostEngine {
	return e.cost
}

// ProcessTick advances the simulation by exactly one tick: it walks the
// seven phases in order, commits the clock on the terminal phase, finalizes
// accounting, and flushes collected events in queue order.
//
// Only one tick may be in flight; a concurrent call fails with
// ErrTickInProgress without mutating anything. On a phase handler error the
// machine transitions to failed, the accumulator is discarded, and the
// clock does not advance, so a retry reattempts the same tick number.
func (e *Engine) ProcessTick(ctx context.Context) (*TickResult, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer e.busy.Store(false)

	tick := e.state.Clock.Tick + 1
	collector := events.NewCollector()

	var books *economy.TickBooks
	var facade Accounting
	if e.cost != nil {
		books = &economy.TickBooks{
			State:  e.state,
			Acc:    economy.NewTickAccumulator(),
			Events: collector,
			Tick:   tick,
			Hours:  e.tickLengthMinutes / 60.0,
		}
		facade = &accountingFacade{ce: e.cost, books: books}
	}

	if err := e.machine.Start(tick); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	timings := make([]PhaseTiming, 0, PhaseCount)

	for e.machine.Running() {
		phase, err := e.machine.Current()
		if err != nil {
			return nil, err
		}

		pc := &PhaseContext{
			State:             e.state,
			Tick:              tick,
			TickLengthMinutes: e.tickLengthMinutes,
			Phase:             phase,
			Events:            collector,
			Accounting:        facade,
		}

		phaseStart := time.Since(startedAt)
		if err := e.runPhase(ctx, phase, pc, books); err != nil {
			e.machine.Fail(err)
			return nil, fmt.Errorf("phase %s: %w", phase, err)
		}
		phaseEnd := time.Since(startedAt)

		timings = append(timings, PhaseTiming{
			Phase:       phase.String(),
			StartedMs:   float64(phaseStart.Microseconds()) / 1000.0,
			CompletedMs: float64(phaseEnd.Microseconds()) / 1000.0,
			DurationMs:  float64((phaseEnd - phaseStart).Microseconds()) / 1000.0,
		})

		if err := e.machine.Advance(); err != nil {
			return nil, err
		}
	}

	if books != nil {
		e.cost.FinalizeTick(books)
	}

	completedAt := time.Now()
	flushed := collector.Flush(tick, completedAt.UTC())
	for _, ev := range flushed {
		e.emit(ev)
	}

	e.emit(events.Event{
		ID:    ulid.Make().String(),
		Type:  events.TypeTickCompleted,
		Tick:  tick,
		TS:    completedAt.UTC(),
		Level: events.LevelInfo,
		Payload: map[string]any{
			"tick":          tick,
			"duration_ms":   float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0,
			"event_count":   len(flushed),
			"events":        flushed,
			"phase_timings": timings,
		},
	})

	return &TickResult{
		Tick:         tick,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		Events:       flushed,
		PhaseTimings: timings,
	}, nil
}

// runPhase dispatches one phase: injected handler, built-in default, or
// no-op.
func (e *Engine) runPhase(ctx context.Context, phase Phase, pc *PhaseContext, books *economy.TickBooks) error {
	switch phase {
	case PhaseDeviceEffects:
		if h := e.handlers[phase]; h != nil {
			return h(ctx, pc)
		}
		if e.defaultEnvironmentActive() {
			return e.env.ApplyDeviceEffects(ctx, pc)
		}
		return nil

	case PhaseEnvironment:
		if h := e.handlers[phase]; h != nil {
			return h(ctx, pc)
		}
		if e.defaultEnvironmentActive() {
			return e.env.DeriveEnvironment(ctx, pc)
		}
		return nil

	case PhaseAccounting:
		if h := e.handlers[phase]; h != nil {
			if err := h(ctx, pc); err != nil {
				return err
			}
		}
		if books != nil {
			return e.runBuiltinAccounting(pc, books)
		}
		return nil

	case PhaseCommit:
		if e.commitHook != nil {
			if err := e.commitHook(ctx, pc); err != nil {
				return err
			}
		}
		// The single moment the tick becomes real.
		e.state.Clock.Tick = pc.Tick
		e.state.Clock.LastUpdated = time.Now().UTC()
		return nil

	default:
		if h := e.handlers[phase]; h != nil {
			return h(ctx, pc)
		}
		return nil
	}
}

// defaultEnvironmentActive reports whether the built-in environment service
// should run: it does only when neither of the two environment-phase
// handlers was injected.
func (e *Engine) defaultEnvironmentActive() bool {
	return e.env != nil &&
		e.handlers[PhaseDeviceEffects] == nil &&
		e.handlers[PhaseEnvironment] == nil
}

// runBuiltinAccounting is the fixed tail of the accounting phase: device
// degradation and wear-driven maintenance, rent, payroll, and harvest
// auto-sale.
func (e *Engine) runBuiltinAccounting(pc *PhaseContext, books *economy.TickBooks) error {
	for _, dev := range e.state.AllDevices() {
		if dev.PowerOn {
			dev.Degradation += dev.WearPerHour * dev.DutyCycle * books.Hours
			if dev.Degradation > 1 {
				dev.Degradation = 1
			}
		}
		if _, err := e.cost.ChargeMaintenance(books, dev); err != nil {
			return err
		}
	}

	for _, st := range e.state.Structures {
		e.cost.ChargeRent(books, st)
	}

	e.cost.ChargePayroll(books)

	if e.state.AutoSellHarvest {
		remaining := e.state.Inventory.Lots[:0]
		for _, lot := range e.state.Inventory.Lots {
			if _, err := e.cost.RecordSale(books, lot, ""); err != nil {
				slog.Warn("lot not sellable, keeping in inventory",
					"lot", lot.ID, "strain", lot.StrainID, "error", err)
				remaining = append(remaining, lot)
			}
		}
		e.state.Inventory.Lots = remaining
	}
	return nil
}

// emit fans one event out to every host sink.
func (e *Engine) emit(ev events.Event) {
	for _, s := range e.sinks {
		s(ev)
	}
}

// accountingFacade adapts the cost engine to the two-operation surface
// phase handlers are allowed to use.
type accountingFacade struct {
	ce    *economy.CostEngine
	books *economy.TickBooks
}

func (f *accountingFacade) RecordUtilityConsumption(demand economy.UtilityDemand, scope string) (economy.UtilityCharge, error) {
	return f.ce.ChargeUtilities(f.books, demand, scope)
}

func (f *accountingFacade) RecordDevicePurchase(blueprintID string, qty int, description string) (float64, error) {
	return f.ce.ChargeDevicePurchase(f.books, blueprintID, qty, description)
}
