package blueprints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLibrary = `
utilities:
  price_per_kwh: 0.18
  price_per_liter_water: 0.004
  price_per_gram_nutrients: 0.02

devices:
  - id: led-panel
    name: LED Panel
    category: light
    capital_cost: 850
    base_maintenance_rate_per_hour: 0.06
    maintenance_step_per_hour: 0.02
    power_draw_kw: 0.6
    wear_per_hour: 0.00004
    heat_output_c: 0.9
    ppfd_output: 650

strains:
  - id: haze
    name: Haze
    seed_cost: 12
    sale_price_per_gram: 6.5
    seedling_ticks: 336
    veg_ticks: 672
    flower_ticks: 1344
    optimal_temp_c: 24
    temp_tolerance: 4
    optimal_humidity: 0.55
    humidity_tolerance: 0.15
    water_l_per_plant_hour: 0.08
    nutrient_g_per_plant_hour: 0.35
    growth_g_per_hour: 0.11
    max_biomass_g: 160
`

func TestParseValidLibrary(t *testing.T) {
	lib, err := Parse([]byte(validLibrary))
	require.NoError(t, err)

	assert.InDelta(t, 0.18, lib.Utilities.PricePerKwh, 1e-12)

	dev, ok := lib.Device("led-panel")
	require.True(t, ok)
	assert.Equal(t, "LED Panel", dev.Name)
	assert.InDelta(t, 0.6, dev.PowerDrawKw, 1e-12)
	assert.InDelta(t, 650, dev.PPFDOutput, 1e-12)

	strain, ok := lib.Strain("haze")
	require.True(t, ok)
	assert.EqualValues(t, 672, strain.VegTicks)
	assert.InDelta(t, 160, strain.MaxBiomassG, 1e-12)

	_, ok = lib.Device("haze")
	assert.False(t, ok)
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	bad := `
utilities:
  price_per_kwh: 0.18
  price_per_liter_water: 0.004
  price_per_gram_nutrients: 0.02
devices:
  - id: thing
    name: Thing
    category: light
strains: []
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "library data invalid")
}

func TestParseRejectsUnknownCategory(t *testing.T) {
	bad := `
utilities:
  price_per_kwh: 0.18
  price_per_liter_water: 0.004
  price_per_gram_nutrients: 0.02
devices:
  - id: thing
    name: Thing
    category: teleporter
    capital_cost: 10
strains: []
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParseRejectsDuplicateDeviceID(t *testing.T) {
	dup := `
utilities:
  price_per_kwh: 0.18
  price_per_liter_water: 0.004
  price_per_gram_nutrients: 0.02
devices:
  - id: thing
    name: Thing A
    category: light
    capital_cost: 10
  - id: thing
    name: Thing B
    category: hvac
    capital_cost: 20
strains: []
`
	_, err := Parse([]byte(dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate device blueprint id")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("::not yaml::\n\t- {"))
	require.Error(t, err)
}

func TestPriceCatalogProjection(t *testing.T) {
	lib, err := Parse([]byte(validLibrary))
	require.NoError(t, err)

	cat := lib.PriceCatalog()

	price, ok := cat.DevicePrice("led-panel")
	require.True(t, ok)
	assert.InDelta(t, 850, price.CapitalCost, 1e-12)
	assert.InDelta(t, 0.06, price.BaseMaintenanceRatePerHour, 1e-12)
	assert.InDelta(t, 0.02, price.MaintenanceStepPerHour, 1e-12)

	sp, ok := cat.StrainPrice("haze")
	require.True(t, ok)
	assert.InDelta(t, 12, sp.SeedCost, 1e-12)
	assert.InDelta(t, 6.5, sp.SalePricePerGram, 1e-12)

	assert.InDelta(t, 0.004, cat.Utilities.PricePerLiterWater, 1e-12)
}
