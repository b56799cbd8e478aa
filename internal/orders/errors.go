package orders

import (
	"fmt"
	"strings"
)

// InvalidTransitionError is returned when a status change is not allowed from the
// current status.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// UnavailableItem is one line that failed the stock check.
type UnavailableItem struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

// StockUnavailableError aborts a placement before (or instead of) any lasting mutation.
type StockUnavailableError struct {
	Items []UnavailableItem
	Err   error
}

func (e *StockUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (%s: requested %d, available %d)", it.ProductID, it.Reason, it.Requested, it.Available))
	}
	return "stock unavailable: " + strings.Join(parts, ", ")
}

func (e *StockUnavailableError) Unwrap() error { return e.Err }

// SubOrderCreationError records a seller whose sub-order could not be persisted.
type SubOrderCreationError struct {
	SellerID string
	Number   string
	Err      error
}

func (e *SubOrderCreationError) Error() string {
	return fmt.Sprintf("create sub-order %s for seller %s: %v", e.Number, e.SellerID, e.Err)
}

func (e *SubOrderCreationError) Unwrap() error { return e.Err }
