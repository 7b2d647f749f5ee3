package economy

import (
	"fmt"
	"math"
	"time"

	"github.com/talgya/cultivar/internal/events"
	"github.com/talgya/cultivar/internal/facility"
)

// Epsilon is the minimum absolute amount that justifies a ledger entry.
// Charges at or below it are dropped entirely: no cash mutation, no entry,
// no finance event. This keeps floating residue out of the books.
const Epsilon = 1e-9

// maintenanceTierTicks is the device age span per maintenance cost step.
const maintenanceTierTicks = 1000

// TickBooks bundles the caller-supplied mutable targets of one tick's
// accounting: the state tree, the fresh accumulator, the event collector,
// the tick number, and the billed hours (tick length / 60). The cost engine
// itself holds no tick-scoped state.
type TickBooks struct {
	State  *facility.State
	Acc    *TickAccumulator
	Events *events.Collector
	Tick   int64
	Hours  float64
}

// CostEngine prices raw consumption, purchase, and payroll facts. It is
// stateless per call; the only long-lived reference is the price catalog,
// which the host may hot-swap between ticks.
type CostEngine struct {
	catalog *PriceCatalog
}

// NewCostEngine creates a cost engine over a price catalog.
func NewCostEngine(catalog *PriceCatalog) *CostEngine {
	return &CostEngine{catalog: catalog}
}

// Catalog returns the current price catalog.
func (ce *CostEngine) Catalog() *PriceCatalog {
	return ce.catalog
}

// UpdateCatalog swaps in a new price catalog. Call between ticks only; the
// engine reads the catalog without locking while a tick is in flight.
func (ce *CostEngine) UpdateCatalog(catalog *PriceCatalog) {
	if catalog != nil {
		ce.catalog = catalog
	}
}

// UtilityDemand is a request to consume metered utilities. Water and
// nutrients are clamped to on-hand inventory; energy is never stock-limited.
type UtilityDemand struct {
	EnergyKwh      float64 `json:"energy_kwh"`
	WaterLiters    float64 `json:"water_liters"`
	NutrientsGrams float64 `json:"nutrients_grams"`
}

// UtilityCharge is the priced outcome of a utility consumption request.
// Charged is false when nothing exceeded the recording epsilon.
type UtilityCharge struct {
	Energy    CostBreakdown `json:"energy"`
	Water     CostBreakdown `json:"water"`
	Nutrients CostBreakdown `json:"nutrients"`
	TotalCost float64       `json:"total_cost"`
	Charged   bool          `json:"charged"`
}

// ChargeUtilities clamps the demand against inventory, prices the consumed
// quantities, and books the charge. Inventory is decremented by the
// consumed amounts, not the requested ones.
func (ce *CostEngine) ChargeUtilities(b *TickBooks, demand UtilityDemand, scope string) (UtilityCharge, error) {
	inv := &b.State.Inventory
	mult := priceMultiplier(b.State)
	prices := ce.catalog.Utilities

	energy := clampQty(demand.EnergyKwh)
	water := math.Min(clampQty(demand.WaterLiters), inv.WaterLiters)
	nutrients := math.Min(clampQty(demand.NutrientsGrams), inv.NutrientsGrams)

	charge := UtilityCharge{
		Energy:    breakdown(energy, prices.PricePerKwh, mult),
		Water:     breakdown(water, prices.PricePerLiterWater, mult),
		Nutrients: breakdown(nutrients, prices.PricePerGramNutrients, mult),
	}
	charge.TotalCost = charge.Energy.TotalCost + charge.Water.TotalCost + charge.Nutrients.TotalCost

	if charge.TotalCost <= Epsilon {
		return charge, nil
	}
	charge.Charged = true

	inv.WaterLiters -= water
	inv.NutrientsGrams -= nutrients

	desc := "utility consumption"
	if scope != "" {
		desc = "utility consumption: " + scope
	}
	ce.record(b, -charge.TotalCost, facility.CategoryUtilities, desc)
	b.Acc.addOpex(charge.TotalCost)
	b.Acc.Utilities.Energy.Merge(charge.Energy)
	b.Acc.Utilities.Water.Merge(charge.Water)
	b.Acc.Utilities.Nutrients.Merge(charge.Nutrients)

	b.Events.Queue(events.Event{
		Type: events.TypeFinanceOpex,
		Payload: map[string]any{
			"amount":      charge.TotalCost,
			"category":    string(facility.CategoryUtilities),
			"description": desc,
			"energy":      charge.Energy,
			"water":       charge.Water,
			"nutrients":   charge.Nutrients,
		},
	})
	return charge, nil
}

// ChargeMaintenance books the maintenance cost of one device for this tick.
// The hourly rate steps up once per 1000 age-ticks since the last service
// and is scaled by (1 + degradation) and the billed hours.
func (ce *CostEngine) ChargeMaintenance(b *TickBooks, dev *facility.Device) (float64, error) {
	price, ok := ce.catalog.DevicePrice(dev.BlueprintID)
	if !ok {
		// No maintenance pricing for this blueprint: nothing to bill.
		return 0, nil
	}

	age := b.Tick - dev.LastServiceTick
	if age < 0 {
		age = 0
	}
	tier := age / maintenanceTierTicks
	rate := price.BaseMaintenanceRatePerHour + float64(tier)*price.MaintenanceStepPerHour
	degr := clampQty(dev.Degradation)

	cost := rate * (1 + degr) * b.Hours * priceMultiplier(b.State)
	if cost <= Epsilon {
		return 0, nil
	}

	desc := fmt.Sprintf("maintenance: %s", dev.Name)
	ce.record(b, -cost, facility.CategoryMaintenance, desc)
	b.Acc.addOpex(cost)
	b.Acc.Maintenance += cost
	b.Acc.MaintenanceDetails = append(b.Acc.MaintenanceDetails, MaintenanceDetail{
		DeviceID:    dev.ID,
		BlueprintID: dev.BlueprintID,
		AgeTicks:    age,
		Tier:        tier,
		RatePerHour: rate,
		HoursBilled: b.Hours,
		TotalCost:   cost,
	})

	b.Events.Queue(events.Event{
		Type: events.TypeFinanceOpex,
		Payload: map[string]any{
			"amount":      cost,
			"category":    string(facility.CategoryMaintenance),
			"description": desc,
			"device_id":   dev.ID,
			"age_ticks":   age,
			"tier":        tier,
		},
	})
	return cost, nil
}

// ServiceDevice marks a device as freshly serviced: its age and wear reset,
// dropping the next maintenance charge back to the base tier.
func (ce *CostEngine) ServiceDevice(dev *facility.Device, tick int64) {
	dev.LastServiceTick = tick
	dev.Degradation = 0
}

// ChargeRent books one structure's rent for this tick. The stored rate is
// hourly (see facility.Structure), so billing rate × billed hours keeps
// total rent invariant to tick-length changes.
func (ce *CostEngine) ChargeRent(b *TickBooks, st *facility.Structure) float64 {
	rate := clampQty(st.RentPerTick)
	cost := rate * b.Hours
	if cost <= Epsilon {
		return 0
	}

	desc := fmt.Sprintf("rent: %s", st.Name)
	ce.record(b, -cost, facility.CategoryRent, desc)
	b.Acc.addOpex(cost)

	b.Events.Queue(events.Event{
		Type: events.TypeFinanceOpex,
		Payload: map[string]any{
			"amount":       cost,
			"category":     string(facility.CategoryRent),
			"description":  desc,
			"structure_id": st.ID,
		},
	})
	return cost
}

// ChargePayroll books the whole roster's salaries for this tick. Negative
// salaries are clamped to zero, never subtracted.
func (ce *CostEngine) ChargePayroll(b *TickBooks) float64 {
	total := 0.0
	for _, emp := range b.State.Personnel {
		total += clampQty(emp.SalaryPerTick)
	}
	if total <= Epsilon {
		return 0
	}

	desc := fmt.Sprintf("payroll: %d employees", len(b.State.Personnel))
	ce.record(b, -total, facility.CategoryPayroll, desc)
	b.Acc.addOpex(total)
	b.Acc.Payroll += total

	b.Events.Queue(events.Event{
		Type: events.TypeFinanceOpex,
		Payload: map[string]any{
			"amount":      total,
			"category":    string(facility.CategoryPayroll),
			"description": desc,
			"headcount":   len(b.State.Personnel),
		},
	})
	return total
}

// ChargeDevicePurchase books the capital cost of buying qty devices of a
// blueprint. A blueprint without a catalog entry fails with
// MissingPriceError before any mutation.
func (ce *CostEngine) ChargeDevicePurchase(b *TickBooks, blueprintID string, qty int, description string) (float64, error) {
	price, ok := ce.catalog.DevicePrice(blueprintID)
	if !ok {
		return 0, &MissingPriceError{BlueprintID: blueprintID}
	}
	if qty <= 0 {
		return 0, nil
	}

	cost := price.CapitalCost * float64(qty) * priceMultiplier(b.State)
	if cost <= Epsilon {
		return 0, nil
	}

	desc := description
	if desc == "" {
		desc = fmt.Sprintf("purchase: %d × %s", qty, blueprintID)
	}
	ce.record(b, -cost, facility.CategoryDevice, desc)
	b.Acc.addCapex(cost)

	b.Events.Queue(events.Event{
		Type: events.TypeFinanceCapex,
		Payload: map[string]any{
			"amount":       cost,
			"category":     string(facility.CategoryDevice),
			"description":  desc,
			"blueprint_id": blueprintID,
			"quantity":     qty,
		},
	})
	return cost, nil
}

// RecordSale books revenue for one harvested lot. Quality scales the sale
// price between 50% and 100% of the catalog rate.
func (ce *CostEngine) RecordSale(b *TickBooks, lot facility.HarvestLot, description string) (float64, error) {
	price, ok := ce.catalog.StrainPrice(lot.StrainID)
	if !ok {
		return 0, &MissingPriceError{BlueprintID: lot.StrainID}
	}

	quality := clampQty(lot.Quality)
	if quality > 1 {
		quality = 1
	}
	amount := clampQty(lot.WeightGrams) * price.SalePricePerGram * (0.5 + 0.5*quality) * priceMultiplier(b.State)
	if amount <= Epsilon {
		return 0, nil
	}

	desc := description
	if desc == "" {
		desc = fmt.Sprintf("sale: %.0fg of %s", lot.WeightGrams, lot.StrainID)
	}
	ce.record(b, amount, facility.CategorySales, desc)
	b.Acc.Revenue += amount

	b.Events.Queue(events.Event{
		Type: "harvest.sold",
		Payload: map[string]any{
			"amount":       amount,
			"lot_id":       lot.ID,
			"strain_id":    lot.StrainID,
			"weight_grams": lot.WeightGrams,
			"quality":      lot.Quality,
		},
	})
	return amount, nil
}

// FinalizeTick folds the accumulator into the persistent summary and emits
// the consolidated finance.tick event. Totals grow by exact addition of the
// accumulator; net income is recomputed from the cumulative totals.
func (ce *CostEngine) FinalizeTick(b *TickBooks) {
	sum := &b.State.Finances.Summary
	sum.TotalRevenue += b.Acc.Revenue
	sum.TotalExpenses += b.Acc.Expenses
	sum.TotalPayroll += b.Acc.Payroll
	sum.TotalMaintenance += b.Acc.Maintenance
	sum.NetIncome = sum.TotalRevenue - sum.TotalExpenses
	sum.LastTickRevenue = b.Acc.Revenue
	sum.LastTickExpenses = b.Acc.Expenses

	b.Events.Queue(events.Event{
		Type: events.TypeFinanceTick,
		Payload: map[string]any{
			"tick":                b.Tick,
			"revenue":             b.Acc.Revenue,
			"expenses":            b.Acc.Expenses,
			"net_income":          sum.NetIncome,
			"capex":               b.Acc.Capex,
			"opex":                b.Acc.Opex,
			"payroll":             b.Acc.Payroll,
			"utilities":           b.Acc.Utilities,
			"maintenance_details": b.Acc.MaintenanceDetails,
			"cash_on_hand":        b.State.Finances.CashOnHand,
		},
	})
}

// record appends a ledger entry and moves cash. Amount is signed; callers
// pass negative amounts for expenses. Callers are responsible for the
// epsilon check.
func (ce *CostEngine) record(b *TickBooks, amount float64, cat facility.Category, desc string) {
	fin := &b.State.Finances
	fin.CashOnHand += amount

	typ := facility.EntryIncome
	if amount < 0 {
		typ = facility.EntryExpense
	}
	fin.Ledger = append(fin.Ledger, facility.LedgerEntry{
		ID:          int64(len(fin.Ledger)),
		Tick:        b.Tick,
		Timestamp:   time.Now().UTC(),
		Amount:      amount,
		Type:        typ,
		Category:    cat,
		Description: desc,
	})
}

// breakdown prices one consumed quantity.
func breakdown(qty, baseUnit, mult float64) CostBreakdown {
	unit := baseUnit * mult
	return CostBreakdown{
		Quantity:     qty,
		BaseUnitCost: baseUnit,
		UnitCost:     unit,
		TotalCost:    qty * unit,
	}
}

// clampQty floors non-finite and negative quantities to zero. Slightly
// malformed upstream data degrades to "no charge" instead of halting the
// simulation.
func clampQty(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// priceMultiplier reads the global item-price multiplier, defaulting to 1
// when unset or malformed.
func priceMultiplier(st *facility.State) float64 {
	m := st.ItemPriceMultiplier
	if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
		return 1
	}
	return m
}
