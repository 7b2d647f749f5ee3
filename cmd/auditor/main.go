// Command auditor inspects a cultivar database offline: ledger summaries,
// reconciliation against the stored summary, and compressed event export.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/talgya/cultivar/internal/economy"
	"github.com/talgya/cultivar/internal/persistence"
)

func main() {
	dbPath := flag.String("db", "cultivar.db", "path to the cultivar database")
	from := flag.Int64("from", 0, "first tick of the audit span")
	to := flag.Int64("to", math.MaxInt64, "last tick of the audit span")
	export := flag.String("export", "", "write events in the span to this .jsonl.zst file")
	flag.Parse()

	db, err := persistence.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	state, err := db.LoadState()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load state:", err)
		os.Exit(1)
	}

	fmt.Printf("Facility: %s (tick %d)\n", state.Name, state.Clock.Tick)
	fmt.Printf("Cash on hand: %.2f\n\n", state.Finances.CashOnHand)

	// Per-category totals over the span.
	totals, err := db.CategoryTotals(*from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "category totals:", err)
		os.Exit(1)
	}
	fmt.Println("Ledger by category:")
	for cat, total := range totals {
		fmt.Printf("  %-12s %12.2f\n", cat, total)
	}

	// Reconciliation: the ledger must replay exactly into the summary.
	var revenue, expenses float64
	for _, e := range state.Finances.Ledger {
		if e.Amount >= 0 {
			revenue += e.Amount
		} else {
			expenses += -e.Amount
		}
	}
	sum := state.Finances.Summary

	fmt.Println("\nReconciliation:")
	fmt.Printf("  ledger revenue  %.6f  summary %.6f  drift %.2e\n",
		revenue, sum.TotalRevenue, revenue-sum.TotalRevenue)
	fmt.Printf("  ledger expenses %.6f  summary %.6f  drift %.2e\n",
		expenses, sum.TotalExpenses, expenses-sum.TotalExpenses)
	fmt.Printf("  net income      %.6f  (recomputed %.6f)\n",
		sum.NetIncome, sum.TotalRevenue-sum.TotalExpenses)

	if math.Abs(revenue-sum.TotalRevenue) > economy.Epsilon ||
		math.Abs(expenses-sum.TotalExpenses) > economy.Epsilon {
		fmt.Println("\nWARNING: ledger does not reconcile with the summary")
		os.Exit(2)
	}
	fmt.Println("\nLedger reconciles with the summary.")

	if *export != "" {
		n, err := db.ExportEvents(*from, *to, *export)
		if err != nil {
			fmt.Fprintln(os.Stderr, "export:", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d events to %s\n", n, *export)
	}
}
