package facility

import "time"

// EntryType marks a ledger entry as money in or money out.
type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

// Category buckets ledger entries for reporting.
type Category string

const (
	CategoryCapital     Category = "capital"
	CategoryStructure   Category = "structure"
	CategoryDevice      Category = "device"
	CategoryInventory   Category = "inventory"
	CategoryRent        Category = "rent"
	CategoryUtilities   Category = "utilities"
	CategoryPayroll     Category = "payroll"
	CategoryMaintenance Category = "maintenance"
	CategorySales       Category = "sales"
	CategoryLoan        Category = "loan"
	CategoryOther       Category = "other"
)

// LedgerEntry is one append-only financial record. Amount is signed:
// negative means expense. IDs are sequential, derived from the ledger
// length at append time.
type LedgerEntry struct {
	ID          int64     `json:"id" db:"id"`
	Tick        int64     `json:"tick" db:"tick"`
	Timestamp   time.Time `json:"timestamp" db:"ts"`
	Amount      float64   `json:"amount" db:"amount"`
	Type        EntryType `json:"type" db:"type"`
	Category    Category  `json:"category" db:"category"`
	Description string    `json:"description" db:"description"`
}

// FinancialSummary is the cumulative aggregate over the whole ledger.
// NetIncome is recomputed from the totals on every finalize rather than
// accumulated incrementally, so it cannot drift away from
// TotalRevenue - TotalExpenses.
type FinancialSummary struct {
	TotalRevenue     float64 `json:"total_revenue" db:"total_revenue"`
	TotalExpenses    float64 `json:"total_expenses" db:"total_expenses"`
	TotalPayroll     float64 `json:"total_payroll" db:"total_payroll"`
	TotalMaintenance float64 `json:"total_maintenance" db:"total_maintenance"`
	NetIncome        float64 `json:"net_income" db:"net_income"`
	LastTickRevenue  float64 `json:"last_tick_revenue" db:"last_tick_revenue"`
	LastTickExpenses float64 `json:"last_tick_expenses" db:"last_tick_expenses"`
}

// Finances is the money side of the facility state.
type Finances struct {
	CashOnHand float64          `json:"cash_on_hand"`
	Ledger     []LedgerEntry    `json:"ledger"`
	Summary    FinancialSummary `json:"summary"`
}
