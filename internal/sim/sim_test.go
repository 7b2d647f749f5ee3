package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cultivar/internal/blueprints"
	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/engine"
	"github.com/talgya/cultivar/internal/events"
	"github.com/talgya/cultivar/internal/facility"
)

func testLibrary() *blueprints.Library {
	return &blueprints.Library{
		Devices: map[string]blueprints.DeviceBlueprint{
			"lamp": {
				ID: "lamp", Name: "Lamp", Category: "light",
				PowerDrawKw: 0.6, WearPerHour: 0.0001,
				HeatOutputC: 1.0, PPFDOutput: 800,
			},
			"chiller": {
				ID: "chiller", Name: "Chiller", Category: "hvac",
				PowerDrawKw: 2.0, CoolingC: 2.0,
			},
		},
		Strains: map[string]blueprints.Strain{
			"haze": {
				ID: "haze", Name: "Haze",
				SeedlingTicks: 10, VegTicks: 20, FlowerTicks: 30,
				OptimalTempC: 24, TempTolerance: 4,
				OptimalHumidity: 0.55, HumidityTolerance: 0.15,
				WaterLPerPlantHour:    0.1,
				NutrientGPerPlantHour: 0.4,
				GrowthGPerHour:        1.0,
				MaxBiomassG:           100,
			},
		},
	}
}

func testZoneState() (*facility.State, *facility.Zone) {
	zone := &facility.Zone{
		ID: "zone-a", Name: "Zone A", Insulation: 0.5,
		Environment: facility.Environment{
			TemperatureC: 24, RelativeHumidity: 0.55, CO2PPM: 800,
		},
	}
	state := &facility.State{
		Outdoor: facility.Environment{
			TemperatureC: 10, RelativeHumidity: 0.8, CO2PPM: 420,
		},
		Structures: []*facility.Structure{{
			ID: "s1",
			Rooms: []*facility.Room{{
				ID: "r1", Zones: []*facility.Zone{zone},
			}},
		}},
	}
	return state, zone
}

func phaseCtx(state *facility.State, acct engine.Accounting) *engine.PhaseContext {
	return &engine.PhaseContext{
		State:             state,
		Tick:              1,
		TickLengthMinutes: 60,
		Events:            events.NewCollector(),
		Accounting:        acct,
	}
}

// fakeAccounting records demands and grants a configurable fraction of the
// requested water.
type fakeAccounting struct {
	demands       []economy.UtilityDemand
	scopes        []string
	waterFraction float64
}

func (f *fakeAccounting) RecordUtilityConsumption(d economy.UtilityDemand, scope string) (economy.UtilityCharge, error) {
	f.demands = append(f.demands, d)
	f.scopes = append(f.scopes, scope)
	frac := f.waterFraction
	if frac == 0 {
		frac = 1
	}
	return economy.UtilityCharge{
		Energy:  economy.CostBreakdown{Quantity: d.EnergyKwh},
		Water:   economy.CostBreakdown{Quantity: d.WaterLiters * frac},
		Charged: true,
	}, nil
}

func (f *fakeAccounting) RecordDevicePurchase(blueprintID string, qty int, description string) (float64, error) {
	return 0, nil
}

func TestApplyDeviceEffectsMetersEnergy(t *testing.T) {
	state, zone := testZoneState()
	zone.Devices = []*facility.Device{
		{ID: "d1", BlueprintID: "lamp", PowerOn: true, DutyCycle: 0.5, PowerDrawKw: 0.6},
		{ID: "d2", BlueprintID: "chiller", PowerOn: false, PowerDrawKw: 2.0},
	}

	acct := &fakeAccounting{}
	s := New(testLibrary(), nil, nil)
	require.NoError(t, s.ApplyDeviceEffects(context.Background(), phaseCtx(state, acct)))

	// Only the powered lamp draws: 0.6 kW × 0.5 duty × 1 h.
	require.Len(t, acct.demands, 1)
	assert.InDelta(t, 0.3, acct.demands[0].EnergyKwh, 1e-12)
	assert.Equal(t, "devices zone-a", acct.scopes[0])
}

func TestDeriveEnvironmentLeaksTowardOutdoor(t *testing.T) {
	state, zone := testZoneState()
	s := New(testLibrary(), nil, nil)

	pc := phaseCtx(state, nil)
	require.NoError(t, s.ApplyDeviceEffects(context.Background(), pc))
	require.NoError(t, s.DeriveEnvironment(context.Background(), pc))

	// Insulation 0.5 over one hour leaks half the gap: 24 → 17.
	assert.InDelta(t, 17, zone.Environment.TemperatureC, 1e-9)
	assert.InDelta(t, 0.675, zone.Environment.RelativeHumidity, 1e-9)
	assert.InDelta(t, 610, zone.Environment.CO2PPM, 1e-9)
	// No powered light: dark canopy.
	assert.Zero(t, zone.Environment.PPFD)
}

func TestDeriveEnvironmentAppliesDeviceDeltas(t *testing.T) {
	state, zone := testZoneState()
	zone.Insulation = 1.0 // no leak, isolate the device contribution
	zone.Devices = []*facility.Device{
		{ID: "d1", BlueprintID: "lamp", PowerOn: true, DutyCycle: 1.0, PowerDrawKw: 0.6},
	}

	s := New(testLibrary(), nil, nil)
	pc := phaseCtx(state, nil)
	require.NoError(t, s.ApplyDeviceEffects(context.Background(), pc))
	require.NoError(t, s.DeriveEnvironment(context.Background(), pc))

	assert.InDelta(t, 25, zone.Environment.TemperatureC, 1e-9)
	assert.InDelta(t, 800, zone.Environment.PPFD, 1e-9)
}

func TestIrrigateRecordsDemandAndShortfall(t *testing.T) {
	state, zone := testZoneState()
	zone.Plants = []*facility.Plant{
		{ID: "p1", StrainID: "haze", Health: 1},
		{ID: "p2", StrainID: "haze", Health: 1},
	}

	acct := &fakeAccounting{waterFraction: 0.5}
	s := New(testLibrary(), nil, nil)
	require.NoError(t, s.Irrigate(context.Background(), phaseCtx(state, acct)))

	require.Len(t, acct.demands, 1)
	assert.InDelta(t, 0.2, acct.demands[0].WaterLiters, 1e-12)
	assert.InDelta(t, 0.8, acct.demands[0].NutrientsGrams, 1e-12)
	assert.Equal(t, "irrigation zone-a", acct.scopes[0])
	assert.InDelta(t, 0.5, s.waterSupply["zone-a"], 1e-12)
}

func TestGrowPlantsWaterShortfallStresses(t *testing.T) {
	state, zone := testZoneState()
	plant := &facility.Plant{ID: "p1", StrainID: "haze", Health: 1, Stage: facility.StageVegetative}
	zone.Plants = []*facility.Plant{plant}

	s := New(testLibrary(), nil, nil)
	s.waterSupply["zone-a"] = 0.5 // half the water demand went unmet

	require.NoError(t, s.GrowPlants(context.Background(), phaseCtx(state, nil)))

	// Optimal climate, so stress is the shortfall term alone: 0.5×1.5/2.
	assert.InDelta(t, 0.375, plant.Stress, 1e-9)
	assert.Less(t, plant.Health, 1.0)
	assert.EqualValues(t, 1, plant.AgeTicks)
}

func TestGrowPlantsHealthyInBand(t *testing.T) {
	state, zone := testZoneState()
	plant := &facility.Plant{ID: "p1", StrainID: "haze", Health: 0.9}
	zone.Plants = []*facility.Plant{plant}

	s := New(testLibrary(), nil, nil)
	require.NoError(t, s.GrowPlants(context.Background(), phaseCtx(state, nil)))

	assert.Zero(t, plant.Stress)
	assert.InDelta(t, 0.92, plant.Health, 1e-9)
}

func TestGrowPlantsStageTransitions(t *testing.T) {
	state, zone := testZoneState()
	// One tick away from each cumulative threshold: 10, 30, 60.
	seedling := &facility.Plant{ID: "p1", StrainID: "haze", Health: 1, Stage: facility.StageSeedling, AgeTicks: 9}
	veg := &facility.Plant{ID: "p2", StrainID: "haze", Health: 1, Stage: facility.StageVegetative, AgeTicks: 29}
	flower := &facility.Plant{ID: "p3", StrainID: "haze", Health: 1, Stage: facility.StageFlowering, AgeTicks: 59}
	zone.Plants = []*facility.Plant{seedling, veg, flower}

	s := New(testLibrary(), nil, nil)
	require.NoError(t, s.GrowPlants(context.Background(), phaseCtx(state, nil)))

	assert.Equal(t, facility.StageVegetative, seedling.Stage)
	assert.Equal(t, facility.StageFlowering, veg.Stage)
	assert.Equal(t, facility.StageRipe, flower.Stage)
}

func TestGrowPlantsBiomassCapped(t *testing.T) {
	state, zone := testZoneState()
	zone.Environment.PPFD = 800
	plant := &facility.Plant{
		ID: "p1", StrainID: "haze", Health: 1,
		Stage: facility.StageFlowering, BiomassG: 99.5,
	}
	zone.Plants = []*facility.Plant{plant}

	s := New(testLibrary(), nil, nil)
	require.NoError(t, s.GrowPlants(context.Background(), phaseCtx(state, nil)))

	assert.InDelta(t, 100, plant.BiomassG, 1e-9)
}

func TestHarvestRipeCreatesLotAndRemovesPlant(t *testing.T) {
	state, zone := testZoneState()
	ripe := &facility.Plant{ID: "p1", StrainID: "haze", Health: 0.9, Stage: facility.StageRipe, BiomassG: 80}
	growing := &facility.Plant{ID: "p2", StrainID: "haze", Health: 1, Stage: facility.StageFlowering, BiomassG: 40}
	zone.Plants = []*facility.Plant{ripe, growing}

	s := New(testLibrary(), nil, nil)
	pc := phaseCtx(state, nil)
	require.NoError(t, s.HarvestRipe(context.Background(), pc))

	require.Len(t, zone.Plants, 1)
	assert.Equal(t, "p2", zone.Plants[0].ID)

	require.Len(t, state.Inventory.Lots, 1)
	lot := state.Inventory.Lots[0]
	assert.Equal(t, "haze", lot.StrainID)
	assert.InDelta(t, 80, lot.WeightGrams, 1e-12)
	assert.InDelta(t, 0.9, lot.Quality, 1e-12) // no entropy source: exact health
	assert.EqualValues(t, 1, lot.HarvestedTick)

	require.Equal(t, 1, pc.Events.Len())
	ev := pc.Events.Flush(1, state.Clock.LastUpdated)[0]
	assert.Equal(t, "harvest.completed", ev.Type)
	assert.Equal(t, "zone-a", ev.Payload["zone_id"])
}

func TestHarvestRipeSkipsZeroBiomass(t *testing.T) {
	state, zone := testZoneState()
	zone.Plants = []*facility.Plant{
		{ID: "p1", StrainID: "haze", Stage: facility.StageRipe, BiomassG: 0},
	}

	s := New(testLibrary(), nil, nil)
	require.NoError(t, s.HarvestRipe(context.Background(), phaseCtx(state, nil)))
	assert.Len(t, zone.Plants, 1)
	assert.Empty(t, state.Inventory.Lots)
}

func TestPlantSeedling(t *testing.T) {
	_, zone := testZoneState()
	s := New(testLibrary(), nil, nil)

	plant, err := s.PlantSeedling(zone, "haze")
	require.NoError(t, err)
	assert.Equal(t, facility.StageSeedling, plant.Stage)
	assert.InDelta(t, 1.0, plant.Health, 1e-12)
	assert.Len(t, zone.Plants, 1)

	_, err = s.PlantSeedling(zone, "ghost")
	require.Error(t, err)
	assert.Len(t, zone.Plants, 1)
}

func TestInstallDeviceDenormalizesBlueprint(t *testing.T) {
	_, zone := testZoneState()
	s := New(testLibrary(), nil, nil)

	dev, err := s.InstallDevice(zone, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "lamp", dev.BlueprintID)
	assert.True(t, dev.PowerOn)
	assert.InDelta(t, 1.0, dev.DutyCycle, 1e-12)
	assert.InDelta(t, 0.6, dev.PowerDrawKw, 1e-12)
	assert.InDelta(t, 0.0001, dev.WearPerHour, 1e-12)

	_, err = s.InstallDevice(zone, "flux-capacitor")
	require.Error(t, err)
}

func TestClimateDeterministicAndDiurnal(t *testing.T) {
	a := NewClimate(42)
	b := NewClimate(42)

	for _, tick := range []int64{0, 13, 100, 9999} {
		assert.Equal(t, a.Outdoor(tick), b.Outdoor(tick))
	}

	// Night is dark, midday is lit, afternoon is warmer than pre-dawn.
	night := a.Outdoor(2)
	noon := a.Outdoor(13)
	assert.Zero(t, night.PPFD)
	assert.Greater(t, noon.PPFD, 1000.0)
	assert.EqualValues(t, 420, noon.CO2PPM)

	other := NewClimate(7)
	assert.NotEqual(t, a.Outdoor(500).TemperatureC, other.Outdoor(500).TemperatureC)
}
