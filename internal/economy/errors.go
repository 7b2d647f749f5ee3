package economy

import "fmt"

// MissingPriceError is returned when a purchase references a blueprint with
// no price catalog entry. Failing loudly here is deliberate: a silent zero
// charge would corrupt the capex ledger undetectably.
type MissingPriceError struct {
	BlueprintID string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no price catalog entry for blueprint %q", e.BlueprintID)
}
