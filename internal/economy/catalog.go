// Package economy implements the cost accounting engine: the business rules
// that turn raw consumption, purchase, and payroll facts into priced ledger
// entries, a tick-scoped accumulator, and the persistent financial summary.
package economy

// UtilityPrices are the catalog unit prices for metered utilities.
type UtilityPrices struct {
	PricePerKwh           float64 `json:"price_per_kwh" yaml:"price_per_kwh"`
	PricePerLiterWater    float64 `json:"price_per_liter_water" yaml:"price_per_liter_water"`
	PricePerGramNutrients float64 `json:"price_per_gram_nutrients" yaml:"price_per_gram_nutrients"`
}

// DevicePrice is the catalog entry for one device blueprint.
type DevicePrice struct {
	CapitalCost float64 `json:"capital_cost" yaml:"capital_cost"`

	// Base hourly maintenance rate and the hourly step added per 1000
	// age-ticks since the last service.
	BaseMaintenanceRatePerHour float64 `json:"base_maintenance_rate_per_hour" yaml:"base_maintenance_rate_per_hour"`
	MaintenanceStepPerHour     float64 `json:"maintenance_step_per_hour" yaml:"maintenance_step_per_hour"`
}

// StrainPrice is the catalog entry for one plant strain.
type StrainPrice struct {
	SeedCost         float64 `json:"seed_cost" yaml:"seed_cost"`
	SalePricePerGram float64 `json:"sale_price_per_gram" yaml:"sale_price_per_gram"`
}

// PriceCatalog is the long-lived price reference held by the cost engine.
// It is hot-swapped between ticks via CostEngine.UpdateCatalog; a plain
// pointer swap suffices because the engine only reads it while a tick is
// in flight.
type PriceCatalog struct {
	Utilities UtilityPrices          `json:"utilities"`
	Devices   map[string]DevicePrice `json:"devices"`
	Strains   map[string]StrainPrice `json:"strains"`
}

// DevicePrice looks up the price entry for a blueprint id.
func (c *PriceCatalog) DevicePrice(blueprintID string) (DevicePrice, bool) {
	p, ok := c.Devices[blueprintID]
	return p, ok
}

// StrainPrice looks up the price entry for a strain id.
func (c *PriceCatalog) StrainPrice(strainID string) (StrainPrice, bool) {
	p, ok := c.Strains[strainID]
	return p, ok
}
