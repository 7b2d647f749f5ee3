// Package facility defines the persistent game-state tree for a cultivation
// facility: structures → rooms → zones → devices and plants, plus personnel,
// inventory, and finances. The tree is plain data; the rules that mutate it
// live in the engine, sim, and economy packages.
package facility

import "time"

// Clock is the persistent simulation clock. Tick only advances when a tick
// commits; a failed tick leaves it untouched.
type Clock struct {
	Tick        int64     `json:"tick"`
	LastUpdated time.Time `json:"last_updated"`
}

// Environment is the climate state of a zone (or the outdoor ambient).
type Environment struct {
	TemperatureC     float64 `json:"temperature_c"`
	RelativeHumidity float64 `json:"relative_humidity"` // 0..1
	CO2PPM           float64 `json:"co2_ppm"`
	PPFD             float64 `json:"ppfd"` // photon flux at canopy, µmol/m²/s
}

// GrowthStage is the coarse lifecycle position of a plant.
type GrowthStage uint8

const (
	StageSeedling GrowthStage = iota
	StageVegetative
	StageFlowering
	StageRipe
)

// StageName returns a human-readable stage label.
func StageName(s GrowthStage) string {
	switch s {
	case StageSeedling:
		return "seedling"
	case StageVegetative:
		return "vegetative"
	case StageFlowering:
		return "flowering"
	case StageRipe:
		return "ripe"
	}
	return "unknown"
}

// Plant is one growing plant inside a zone.
type Plant struct {
	ID       string      `json:"id"`
	StrainID string      `json:"strain_id"`
	Stage    GrowthStage `json:"stage"`
	AgeTicks int64       `json:"age_ticks"`
	Health   float64     `json:"health"` // 0..1
	Stress   float64     `json:"stress"` // 0..1, from environment bands
	BiomassG float64     `json:"biomass_g"`
}

// Device is an installed climate or lighting device.
//
// LastServiceTick and Degradation feed the maintenance cost tiering: the
// maintenance rate steps up once per 1000 age-ticks since the last service,
// and servicing resets both fields so the next charge lands back on the
// base tier.
type Device struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	BlueprintID string  `json:"blueprint_id"`
	PowerOn     bool    `json:"power_on"`
	DutyCycle   float64 `json:"duty_cycle"` // 0..1 fraction of the tick the device runs

	// Denormalized from the blueprint at install time.
	PowerDrawKw float64 `json:"power_draw_kw"`
	WearPerHour float64 `json:"wear_per_hour"`

	Degradation     float64 `json:"degradation"` // 0..1 accumulated wear
	LastServiceTick int64   `json:"last_service_tick"`
}

// Zone is the unit of cultivation: one climate envelope with its devices
// and plants.
type Zone struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	AreaM2      float64     `json:"area_m2"`
	Insulation  float64     `json:"insulation"` // 0..1, how well the zone holds its climate
	Environment Environment `json:"environment"`
	Devices     []*Device   `json:"devices"`
	Plants      []*Plant    `json:"plants"`
}

// Room groups zones inside a structure.
type Room struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Purpose string  `json:"purpose"` // "growroom", "drying", "storage", ...
	Zones   []*Zone `json:"zones"`
}

// Structure is a rented building.
//
// RentPerTick is, despite the name, an HOURLY base rate. The legacy field
// name is kept for savegame compatibility; billing always multiplies by the
// billed hours of the tick so total rent over a span of simulated time does
// not change when the tick length changes.
type Structure struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	RentPerTick float64 `json:"rent_per_tick"`
	Rooms       []*Room `json:"rooms"`
}

// Employee is a hired worker drawing salary each tick.
type Employee struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	Skill         float64 `json:"skill"` // 0..1
	SalaryPerTick float64 `json:"salary_per_tick"`
	HiredTick     int64   `json:"hired_tick"`
}

// HarvestLot is harvested plant matter sitting in inventory.
type HarvestLot struct {
	ID            string  `json:"id"`
	StrainID      string  `json:"strain_id"`
	WeightGrams   float64 `json:"weight_grams"`
	Quality       float64 `json:"quality"` // 0..1
	HarvestedTick int64   `json:"harvested_tick"`
}

// Inventory holds consumable stock and harvested lots. Water and nutrients
// cap utility consumption: a tick can never consume more than is on hand.
type Inventory struct {
	WaterLiters    float64      `json:"water_liters"`
	NutrientsGrams float64      `json:"nutrients_grams"`
	Lots           []HarvestLot `json:"lots"`
}

// State is the root of the facility tree. One State is owned by exactly one
// engine; all tick-time mutation flows through the active phase handler.
type State struct {
	Name       string       `json:"name"`
	Clock      Clock        `json:"clock"`
	Structures []*Structure `json:"structures"`
	Personnel  []*Employee  `json:"personnel"`
	Inventory  Inventory    `json:"inventory"`
	Finances   Finances     `json:"finances"`
	Outdoor    Environment  `json:"outdoor"`

	// ItemPriceMultiplier scales every catalog-priced charge (utilities,
	// maintenance, purchases). 1.0 = catalog prices as written.
	ItemPriceMultiplier float64 `json:"item_price_multiplier"`

	// AutoSellHarvest drains inventory lots into revenue during the
	// accounting phase.
	AutoSellHarvest bool `json:"auto_sell_harvest"`
}

// AllZones returns every zone in the facility in a stable walk order
// (structures → rooms → zones, in slice order).
func (s *State) AllZones() []*Zone {
	var out []*Zone
	for _, st := range s.Structures {
		for _, r := range st.Rooms {
			out = append(out, r.Zones...)
		}
	}
	return out
}

// AllDevices returns every installed device in stable walk order.
func (s *State) AllDevices() []*Device {
	var out []*Device
	for _, z := range s.AllZones() {
		out = append(out, z.Devices...)
	}
	return out
}

// PlantCount reports living plants across all zones.
func (s *State) PlantCount() int {
	n := 0
	for _, z := range s.AllZones() {
		n += len(z.Plants)
	}
	return n
}
