package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/oklog/ulid/v2"

	"github.com/talgya/cultivar/internal/blueprints"
	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/engine"
	"github.com/talgya/cultivar/internal/entropy"
	"github.com/talgya/cultivar/internal/events"
	"github.com/talgya/cultivar/internal/facility"
)

// envDelta accumulates device climate effects for one zone during the
// device-effects phase, consumed by the environment phase.
type envDelta struct {
	tempC    float64
	humidity float64
	co2PPM   float64
	ppfd     float64
}

// Simulation holds the cultivation systems and their per-tick scratch
// state. One Simulation serves one engine; the engine's single-flight
// guarantee makes the scratch maps safe without locking.
type Simulation struct {
	Library *blueprints.Library
	Climate *Climate
	Rand    *entropy.Source

	zoneDeltas  map[string]envDelta
	waterSupply map[string]float64 // zone id → fraction of water demand met this tick
}

// New creates a simulation over loaded game data.
func New(lib *blueprints.Library, climate *Climate, rand *entropy.Source) *Simulation {
	return &Simulation{
		Library:     lib,
		Climate:     climate,
		Rand:        rand,
		zoneDeltas:  make(map[string]envDelta),
		waterSupply: make(map[string]float64),
	}
}

// Options wires every simulation system into its engine phase.
func (s *Simulation) Options() []engine.Option {
	return []engine.Option{
		engine.WithHandler(engine.PhaseDeviceEffects, s.ApplyDeviceEffects),
		engine.WithHandler(engine.PhaseEnvironment, s.DeriveEnvironment),
		engine.WithHandler(engine.PhaseIrrigation, s.Irrigate),
		engine.WithHandler(engine.PhasePlants, s.GrowPlants),
		engine.WithHandler(engine.PhaseHarvest, s.HarvestRipe),
	}
}

// ApplyDeviceEffects totals each zone's device climate output and meters
// the energy the powered devices drew.
func (s *Simulation) ApplyDeviceEffects(ctx context.Context, pc *engine.PhaseContext) error {
	clear(s.zoneDeltas)
	hours := pc.TickLengthMinutes / 60.0

	for _, zone := range pc.State.AllZones() {
		var delta envDelta
		energyKwh := 0.0

		for _, dev := range zone.Devices {
			if !dev.PowerOn {
				continue
			}
			duty := clamp01(dev.DutyCycle)
			energyKwh += dev.PowerDrawKw * duty * hours

			bp, ok := s.Library.Device(dev.BlueprintID)
			if !ok {
				continue
			}
			eff := duty * hours * (1 - 0.5*clamp01(dev.Degradation))
			delta.tempC += (bp.HeatOutputC - bp.CoolingC) * eff
			delta.humidity += bp.HumidityDelta * eff
			delta.co2PPM += bp.CO2PPMPerHour * eff
			delta.ppfd += bp.PPFDOutput * duty * (1 - 0.5*clamp01(dev.Degradation))
		}

		s.zoneDeltas[zone.ID] = delta

		if pc.Accounting != nil && energyKwh > 0 {
			_, err := pc.Accounting.RecordUtilityConsumption(
				economy.UtilityDemand{EnergyKwh: energyKwh},
				fmt.Sprintf("devices %s", zone.ID))
			if err != nil {
				return fmt.Errorf("meter zone %s energy: %w", zone.ID, err)
			}
		}
	}
	return nil
}

// DeriveEnvironment recomputes the outdoor ambient and relaxes every zone
// toward it through its insulation, then layers on the device deltas.
func (s *Simulation) DeriveEnvironment(ctx context.Context, pc *engine.PhaseContext) error {
	hours := pc.TickLengthMinutes / 60.0
	outdoor := pc.State.Outdoor
	if s.Climate != nil {
		outdoor = s.Climate.Outdoor(pc.Tick)
		pc.State.Outdoor = outdoor
	}

	for _, zone := range pc.State.AllZones() {
		env := &zone.Environment
		// Leakage toward ambient: a perfectly insulated zone holds its
		// climate, a bare one converges within a few hours.
		leak := (1 - clamp01(zone.Insulation)) * hours
		if leak > 1 {
			leak = 1
		}
		env.TemperatureC += (outdoor.TemperatureC - env.TemperatureC) * leak
		env.RelativeHumidity += (outdoor.RelativeHumidity - env.RelativeHumidity) * leak
		env.CO2PPM += (outdoor.CO2PPM - env.CO2PPM) * leak

		delta := s.zoneDeltas[zone.ID]
		env.TemperatureC += delta.tempC
		env.RelativeHumidity = clamp01(env.RelativeHumidity + delta.humidity)
		env.CO2PPM += delta.co2PPM
		if env.CO2PPM < 0 {
			env.CO2PPM = 0
		}
		// Indoor canopy light is device light only.
		env.PPFD = delta.ppfd
	}
	return nil
}

// Irrigate meters each zone's water and nutrient draw and records how much
// of the demand inventory could actually cover. Shortfall becomes plant
// stress in the plants phase.
func (s *Simulation) Irrigate(ctx context.Context, pc *engine.PhaseContext) error {
	clear(s.waterSupply)
	hours := pc.TickLengthMinutes / 60.0

	for _, zone := range pc.State.AllZones() {
		waterL := 0.0
		nutrientG := 0.0
		for _, plant := range zone.Plants {
			strain, ok := s.Library.Strain(plant.StrainID)
			if !ok {
				continue
			}
			waterL += strain.WaterLPerPlantHour * hours
			nutrientG += strain.NutrientGPerPlantHour * hours
		}

		s.waterSupply[zone.ID] = 1.0
		if waterL <= 0 && nutrientG <= 0 {
			continue
		}
		if pc.Accounting == nil {
			continue
		}

		charge, err := pc.Accounting.RecordUtilityConsumption(
			economy.UtilityDemand{WaterLiters: waterL, NutrientsGrams: nutrientG},
			fmt.Sprintf("irrigation %s", zone.ID))
		if err != nil {
			return fmt.Errorf("irrigate zone %s: %w", zone.ID, err)
		}
		if waterL > 0 {
			s.waterSupply[zone.ID] = clamp01(charge.Water.Quantity / waterL)
		}
	}
	return nil
}

// GrowPlants ages every plant one tick: environment-band stress, health
// drift, stage transitions, and biomass gain under the canopy light.
func (s *Simulation) GrowPlants(ctx context.Context, pc *engine.PhaseContext) error {
	hours := pc.TickLengthMinutes / 60.0

	for _, zone := range pc.State.AllZones() {
		supply := 1.0
		if v, ok := s.waterSupply[zone.ID]; ok {
			supply = v
		}

		for _, plant := range zone.Plants {
			strain, ok := s.Library.Strain(plant.StrainID)
			if !ok {
				continue
			}

			plant.AgeTicks++
			plant.Stress = s.plantStress(zone.Environment, strain, supply)
			plant.Health = clamp01(plant.Health + (0.02-plant.Stress*0.08)*hours)
			s.advanceStage(plant, strain)

			if plant.Stage == facility.StageVegetative || plant.Stage == facility.StageFlowering {
				light := clamp01(zone.Environment.PPFD / 800.0)
				gain := strain.GrowthGPerHour * hours * plant.Health * light
				plant.BiomassG = math.Min(plant.BiomassG+gain, strain.MaxBiomassG)
			}
		}
	}
	return nil
}

// plantStress scores how far the zone climate sits outside the strain's
// tolerance bands, folding in the irrigation shortfall.
func (s *Simulation) plantStress(env facility.Environment, strain blueprints.Strain, waterSupply float64) float64 {
	stress := 0.0
	if strain.TempTolerance > 0 {
		over := math.Abs(env.TemperatureC-strain.OptimalTempC) - strain.TempTolerance
		if over > 0 {
			stress += clamp01(over / strain.TempTolerance)
		}
	}
	if strain.HumidityTolerance > 0 {
		over := math.Abs(env.RelativeHumidity-strain.OptimalHumidity) - strain.HumidityTolerance
		if over > 0 {
			stress += clamp01(over / strain.HumidityTolerance)
		}
	}
	stress += (1 - clamp01(waterSupply)) * 1.5
	return clamp01(stress / 2)
}

// advanceStage moves a plant forward when it has aged past the strain's
// cumulative stage thresholds. Stages never move backwards.
func (s *Simulation) advanceStage(plant *facility.Plant, strain blueprints.Strain) {
	vegAt := strain.SeedlingTicks
	flowerAt := vegAt + strain.VegTicks
	ripeAt := flowerAt + strain.FlowerTicks

	switch {
	case plant.Stage == facility.StageSeedling && plant.AgeTicks >= vegAt:
		plant.Stage = facility.StageVegetative
	case plant.Stage == facility.StageVegetative && plant.AgeTicks >= flowerAt:
		plant.Stage = facility.StageFlowering
	case plant.Stage == facility.StageFlowering && plant.AgeTicks >= ripeAt:
		plant.Stage = facility.StageRipe
	}
}

// HarvestRipe cuts every ripe plant into an inventory lot. Lot quality is
// the plant's final health with a little per-lot variance.
func (s *Simulation) HarvestRipe(ctx context.Context, pc *engine.PhaseContext) error {
	for _, zone := range pc.State.AllZones() {
		remaining := zone.Plants[:0]
		for _, plant := range zone.Plants {
			if plant.Stage != facility.StageRipe || plant.BiomassG <= 0 {
				remaining = append(remaining, plant)
				continue
			}

			quality := clamp01(plant.Health)
			if s.Rand != nil {
				quality = clamp01(s.Rand.Jitter(quality, 0.05))
			}
			lot := facility.HarvestLot{
				ID:            ulid.Make().String(),
				StrainID:      plant.StrainID,
				WeightGrams:   plant.BiomassG,
				Quality:       quality,
				HarvestedTick: pc.Tick,
			}
			pc.State.Inventory.Lots = append(pc.State.Inventory.Lots, lot)

			pc.Events.Queue(events.Event{
				Type: "harvest.completed",
				Payload: map[string]any{
					"lot_id":       lot.ID,
					"plant_id":     plant.ID,
					"strain_id":    lot.StrainID,
					"zone_id":      zone.ID,
					"weight_grams": lot.WeightGrams,
					"quality":      lot.Quality,
				},
			})
		}
		zone.Plants = remaining
	}
	return nil
}

// PlantSeedling adds a new plant of a strain to a zone. Used by the admin
// surface and scenario seeding; it does not touch finances.
func (s *Simulation) PlantSeedling(zone *facility.Zone, strainID string) (*facility.Plant, error) {
	if _, ok := s.Library.Strain(strainID); !ok {
		return nil, fmt.Errorf("unknown strain %q", strainID)
	}
	plant := &facility.Plant{
		ID:       ulid.Make().String(),
		StrainID: strainID,
		Stage:    facility.StageSeedling,
		Health:   1.0,
	}
	zone.Plants = append(zone.Plants, plant)
	return plant, nil
}

// InstallDevice instantiates a blueprint into a zone, denormalizing the
// physical parameters the engine and the device phase read every tick.
func (s *Simulation) InstallDevice(zone *facility.Zone, blueprintID string) (*facility.Device, error) {
	bp, ok := s.Library.Device(blueprintID)
	if !ok {
		return nil, fmt.Errorf("unknown device blueprint %q", blueprintID)
	}
	dev := &facility.Device{
		ID:          ulid.Make().String(),
		Name:        bp.Name,
		BlueprintID: bp.ID,
		PowerOn:     true,
		DutyCycle:   1.0,
		PowerDrawKw: bp.PowerDrawKw,
		WearPerHour: bp.WearPerHour,
	}
	zone.Devices = append(zone.Devices, dev)
	return dev, nil
}
