package economy

// CostBreakdown is the priced quantity for one utility or maintenance
// category. Merging keeps unit costs as quantity-weighted averages so the
// invariant totalCost == quantity × unitCost survives any number of folds.
type CostBreakdown struct {
	Quantity     float64 `json:"quantity"`
	BaseUnitCost float64 `json:"base_unit_cost"`
	UnitCost     float64 `json:"unit_cost"`
	TotalCost    float64 `json:"total_cost"`
}

// Merge folds another breakdown into this one. Unit costs become
// quantity-weighted averages, never overwrites.
func (b *CostBreakdown) Merge(o CostBreakdown) {
	if o.Quantity <= 0 && o.TotalCost == 0 {
		return
	}
	total := b.Quantity + o.Quantity
	if total > 0 {
		b.BaseUnitCost = (b.BaseUnitCost*b.Quantity + o.BaseUnitCost*o.Quantity) / total
		b.UnitCost = (b.UnitCost*b.Quantity + o.UnitCost*o.Quantity) / total
	}
	b.Quantity = total
	b.TotalCost += o.TotalCost
}

// UtilityTotals is the per-utility sub-breakdown of a tick.
type UtilityTotals struct {
	Energy    CostBreakdown `json:"energy"`
	Water     CostBreakdown `json:"water"`
	Nutrients CostBreakdown `json:"nutrients"`
}

// MaintenanceDetail records one device's maintenance charge within a tick.
type MaintenanceDetail struct {
	DeviceID    string  `json:"device_id"`
	BlueprintID string  `json:"blueprint_id"`
	AgeTicks    int64   `json:"age_ticks"`
	Tier        int64   `json:"tier"`
	RatePerHour float64 `json:"rate_per_hour"`
	HoursBilled float64 `json:"hours_billed"`
	TotalCost   float64 `json:"total_cost"`
}

// TickAccumulator is the transient, tick-scoped running total of economic
// activity. It is created empty at tick start, mutated only by the cost
// engine during the accounting flow, folded into the persistent summary at
// finalize, and then discarded. It is never persisted.
type TickAccumulator struct {
	Revenue     float64 `json:"revenue"`
	Expenses    float64 `json:"expenses"`
	Capex       float64 `json:"capex"`
	Opex        float64 `json:"opex"`
	Maintenance float64 `json:"maintenance"`
	Payroll     float64 `json:"payroll"`

	Utilities          UtilityTotals       `json:"utilities"`
	MaintenanceDetails []MaintenanceDetail `json:"maintenance_details"`
}

// NewTickAccumulator returns an empty accumulator.
func NewTickAccumulator() *TickAccumulator {
	return &TickAccumulator{}
}

// addOpex folds an operating expense (positive magnitude).
func (a *TickAccumulator) addOpex(amount float64) {
	a.Expenses += amount
	a.Opex += amount
}

// addCapex folds a capital expense (positive magnitude).
func (a *TickAccumulator) addCapex(amount float64) {
	a.Expenses += amount
	a.Capex += amount
}
