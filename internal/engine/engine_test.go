package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/events"
	"github.com/talgya/cultivar/internal/facility"
)

func testState() *facility.State {
	return &facility.State{
		Name:                "Test Facility",
		ItemPriceMultiplier: 1.0,
		Finances:            facility.Finances{CashOnHand: 1000},
		Inventory: facility.Inventory{
			WaterLiters:    100,
			NutrientsGrams: 100,
		},
	}
}

func TestProcessTickAdvancesClock(t *testing.T) {
	eng := New(testState())

	res, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Tick)
	assert.EqualValues(t, 1, eng.State().Clock.Tick)
	assert.False(t, eng.State().Clock.LastUpdated.IsZero())

	res, err = eng.ProcessTick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Tick)
	assert.EqualValues(t, 2, eng.State().Clock.Tick)
}

func TestProcessTickRunsAllPhasesInOrder(t *testing.T) {
	var seen []Phase
	opts := make([]Option, 0, PhaseCount)
	for i := 0; i < PhaseCount-1; i++ {
		p := Phase(i)
		opts = append(opts, WithHandler(p, func(ctx context.Context, pc *PhaseContext) error {
			seen = append(seen, pc.Phase)
			return nil
		}))
	}
	eng := New(testState(), opts...)

	res, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, PhaseCount-1)
	for i, p := range seen {
		assert.Equal(t, Phase(i), p)
	}

	// Timings cover all seven phases, commit included, in phase order.
	require.Len(t, res.PhaseTimings, PhaseCount)
	for i, pt := range res.PhaseTimings {
		assert.Equal(t, Phase(i).String(), pt.Phase)
		assert.GreaterOrEqual(t, pt.CompletedMs, pt.StartedMs)
	}
}

func TestProcessTickRejectsConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	eng := New(testState(), WithHandler(PhasePlants, func(ctx context.Context, pc *PhaseContext) error {
		close(entered)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := eng.ProcessTick(context.Background())
		done <- err
	}()

	<-entered
	_, err := eng.ProcessTick(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, eng.State().Clock.Tick)
}

func TestProcessTickFailureLeavesClockUntouched(t *testing.T) {
	boom := errors.New("pump jammed")
	fail := true
	eng := New(testState(), WithHandler(PhaseIrrigation, func(ctx context.Context, pc *PhaseContext) error {
		if fail {
			return boom
		}
		return nil
	}))

	_, err := eng.ProcessTick(context.Background())
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, eng.State().Clock.Tick)

	// The retry reattempts the same tick number.
	fail = false
	res, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Tick)
	assert.EqualValues(t, 1, eng.State().Clock.Tick)
}

func TestCommitHookRunsBeforeClockAdvance(t *testing.T) {
	var tickAtHook int64 = -1
	eng := New(testState(), WithCommitHook(func(ctx context.Context, pc *PhaseContext) error {
		tickAtHook = pc.State.Clock.Tick
		return nil
	}))

	_, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, tickAtHook)
	assert.EqualValues(t, 1, eng.State().Clock.Tick)
}

func TestCommitHookFailureBlocksCommit(t *testing.T) {
	boom := errors.New("disk full")
	eng := New(testState(), WithCommitHook(func(ctx context.Context, pc *PhaseContext) error {
		return boom
	}))

	_, err := eng.ProcessTick(context.Background())
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, eng.State().Clock.Tick)
}

func TestEventsStampedAndOrdered(t *testing.T) {
	eng := New(testState(),
		WithHandler(PhaseEnvironment, func(ctx context.Context, pc *PhaseContext) error {
			pc.Events.Queue(events.Event{Type: "first"})
			return nil
		}),
		WithHandler(PhaseHarvest, func(ctx context.Context, pc *PhaseContext) error {
			pc.Events.Queue(events.Event{Type: "second"})
			return nil
		}),
	)

	res, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "first", res.Events[0].Type)
	assert.Equal(t, "second", res.Events[1].Type)
	for _, ev := range res.Events {
		assert.EqualValues(t, 1, ev.Tick)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.TS.IsZero())
	}
}

func TestSinksReceiveTickCompleted(t *testing.T) {
	var got []events.Event
	eng := New(testState(),
		WithSink(func(ev events.Event) { got = append(got, ev) }),
		WithHandler(PhasePlants, func(ctx context.Context, pc *PhaseContext) error {
			pc.Events.Queue(events.Event{Type: "plant.grew"})
			return nil
		}),
	)

	_, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "plant.grew", got[0].Type)
	assert.Equal(t, events.TypeTickCompleted, got[1].Type)
	assert.EqualValues(t, 1, got[1].Payload["event_count"])

	// The completion event carries the tick's batch so a sink seeing only
	// tick.completed still gets every event.
	batch, ok := got[1].Payload["events"].([]events.Event)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, "plant.grew", batch[0].Type)
}

func TestBuiltinAccountingChargesRentAndPayroll(t *testing.T) {
	state := testState()
	state.Structures = []*facility.Structure{{
		ID: "s1", Name: "Shed", RentPerTick: 10,
	}}
	state.Personnel = []*facility.Employee{
		{ID: "e1", Name: "Ana", SalaryPerTick: 20},
	}

	catalog := &economy.PriceCatalog{
		Devices: map[string]economy.DevicePrice{},
		Strains: map[string]economy.StrainPrice{},
	}
	eng := New(state, WithCostEngine(economy.NewCostEngine(catalog)))

	_, err := eng.ProcessTick(context.Background())
	require.NoError(t, err)

	// One hour billed: 10 rent + 20 payroll.
	assert.InDelta(t, 1000-30, state.Finances.CashOnHand, 1e-9)
	assert.InDelta(t, 30, state.Finances.Summary.TotalExpenses, 1e-9)
	assert.InDelta(t, 20, state.Finances.Summary.TotalPayroll, 1e-9)
	assert.InDelta(t, -30, state.Finances.Summary.NetIncome, 1e-9)
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Week 1, Day 1, 00:00", SimTime(0))
	assert.Equal(t, "Week 1, Day 2, 05:00", SimTime(29))
	assert.Equal(t, "Week 2, Day 1, 00:00", SimTime(168))
}

func TestLoopStops(t *testing.T) {
	eng := New(testState())
	loop := NewLoop(eng)
	loop.Interval = time.Millisecond
	loop.SetSpeed(1000)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	loop.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Greater(t, eng.State().Clock.Tick, int64(0))
}
