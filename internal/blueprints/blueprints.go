// Package blueprints loads the static game data — device blueprints, plant
// strains, and utility prices — from a YAML data file, validates it against
// a JSON Schema, and projects it into the price catalog the cost engine
// consumes.
package blueprints

import (
	"fmt"

	"github.com/talgya/cultivar/internal/economy"
)

// DeviceBlueprint describes one installable device model: its purchase and
// maintenance economics plus its per-hour climate effects.
type DeviceBlueprint struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"` // light, hvac, dehumidifier, co2, irrigation

	CapitalCost                float64 `json:"capital_cost" yaml:"capital_cost"`
	BaseMaintenanceRatePerHour float64 `json:"base_maintenance_rate_per_hour" yaml:"base_maintenance_rate_per_hour"`
	MaintenanceStepPerHour     float64 `json:"maintenance_step_per_hour" yaml:"maintenance_step_per_hour"`

	PowerDrawKw float64 `json:"power_draw_kw" yaml:"power_draw_kw"`
	WearPerHour float64 `json:"wear_per_hour" yaml:"wear_per_hour"`

	// Climate effects while powered, scaled by duty cycle. Zero means the
	// device does not touch that channel.
	HeatOutputC    float64 `json:"heat_output_c" yaml:"heat_output_c"`       // °C per hour added to the zone
	CoolingC       float64 `json:"cooling_c" yaml:"cooling_c"`               // °C per hour removed
	HumidityDelta  float64 `json:"humidity_delta" yaml:"humidity_delta"`     // RH fraction per hour, signed
	CO2PPMPerHour  float64 `json:"co2_ppm_per_hour" yaml:"co2_ppm_per_hour"` // ppm per hour, signed
	PPFDOutput     float64 `json:"ppfd_output" yaml:"ppfd_output"`           // µmol/m²/s at canopy while on
	WaterLPerHour  float64 `json:"water_l_per_hour" yaml:"water_l_per_hour"`
	NutrientGPerHr float64 `json:"nutrient_g_per_hour" yaml:"nutrient_g_per_hour"`
}

// Strain describes one plant cultivar: lifecycle lengths, environment
// preferences, resource draw, and sale economics.
type Strain struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	SeedCost         float64 `json:"seed_cost" yaml:"seed_cost"`
	SalePricePerGram float64 `json:"sale_price_per_gram" yaml:"sale_price_per_gram"`

	SeedlingTicks int64 `json:"seedling_ticks" yaml:"seedling_ticks"`
	VegTicks      int64 `json:"veg_ticks" yaml:"veg_ticks"`
	FlowerTicks   int64 `json:"flower_ticks" yaml:"flower_ticks"`

	OptimalTempC      float64 `json:"optimal_temp_c" yaml:"optimal_temp_c"`
	TempTolerance     float64 `json:"temp_tolerance" yaml:"temp_tolerance"`
	OptimalHumidity   float64 `json:"optimal_humidity" yaml:"optimal_humidity"`
	HumidityTolerance float64 `json:"humidity_tolerance" yaml:"humidity_tolerance"`

	WaterLPerPlantHour    float64 `json:"water_l_per_plant_hour" yaml:"water_l_per_plant_hour"`
	NutrientGPerPlantHour float64 `json:"nutrient_g_per_plant_hour" yaml:"nutrient_g_per_plant_hour"`

	// Grams of biomass gained per hour at full health under flowering.
	GrowthGPerHour float64 `json:"growth_g_per_hour" yaml:"growth_g_per_hour"`
	MaxBiomassG    float64 `json:"max_biomass_g" yaml:"max_biomass_g"`
}

// Library is the loaded, validated game data set.
type Library struct {
	Utilities economy.UtilityPrices      `json:"utilities" yaml:"utilities"`
	Devices   map[string]DeviceBlueprint `json:"devices" yaml:"-"`
	Strains   map[string]Strain          `json:"strains" yaml:"-"`
}

// Device looks up a blueprint by id.
func (l *Library) Device(id string) (DeviceBlueprint, bool) {
	d, ok := l.Devices[id]
	return d, ok
}

// Strain looks up a strain by id.
func (l *Library) Strain(id string) (Strain, bool) {
	s, ok := l.Strains[id]
	return s, ok
}

// PriceCatalog projects the library into the cost engine's catalog shape.
func (l *Library) PriceCatalog() *economy.PriceCatalog {
	cat := &economy.PriceCatalog{
		Utilities: l.Utilities,
		Devices:   make(map[string]economy.DevicePrice, len(l.Devices)),
		Strains:   make(map[string]economy.StrainPrice, len(l.Strains)),
	}
	for id, d := range l.Devices {
		cat.Devices[id] = economy.DevicePrice{
			CapitalCost:                d.CapitalCost,
			BaseMaintenanceRatePerHour: d.BaseMaintenanceRatePerHour,
			MaintenanceStepPerHour:     d.MaintenanceStepPerHour,
		}
	}
	for id, s := range l.Strains {
		cat.Strains[id] = economy.StrainPrice{
			SeedCost:         s.SeedCost,
			SalePricePerGram: s.SalePricePerGram,
		}
	}
	return cat
}

// validate applies cross-field checks the schema cannot express.
func (l *Library) validate() error {
	for id, d := range l.Devices {
		if d.ID != id {
			return fmt.Errorf("device %q: id field %q does not match map key", id, d.ID)
		}
	}
	for id, s := range l.Strains {
		if s.ID != id {
			return fmt.Errorf("strain %q: id field %q does not match map key", id, s.ID)
		}
		if s.MaxBiomassG <= 0 {
			return fmt.Errorf("strain %q: max_biomass_g must be positive", id)
		}
	}
	return nil
}
