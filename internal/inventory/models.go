package inventory

import (
	"time"

	"github.com/google/uuid"
)

type Reason string

const (
	ReasonManual     Reason = "manual"
	ReasonSale       Reason = "sale"
	ReasonReturn     Reason = "return"
	ReasonRestock    Reason = "restock"
	ReasonAdjustment Reason = "adjustment"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonManual, ReasonSale, ReasonReturn, ReasonRestock, ReasonAdjustment:
		return true
	}
	return false
}

// Record is the stock count of one product.
type Record struct {
	ProductID      string    `json:"product_id"`
	SellerID       string    `json:"seller_id"`
	QuantityOnHand int       `json:"quantity_on_hand"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Entry is one immutable row of the stock ledger.
type Entry struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	SellerID         string    `json:"seller_id"`
	PreviousStock    int       `json:"previous_stock"`
	Delta            int       `json:"delta"`
	NewStock         int       `json:"new_stock"`
	Reason           Reason    `json:"reason"`
	ReferenceOrderID string    `json:"reference_order_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Result is what a caller sees after a successful mutation.
type Result struct {
	PreviousStock int   `json:"previous_stock"`
	NewStock      int   `json:"new_stock"`
	Entry         Entry `json:"entry"`
}

type Op int

const (
	OpDecrement Op = iota + 1
	OpRestore
	OpSet
)

// Change describes one requested mutation. Quantity is the amount for OpDecrement and
// OpRestore and the target count for OpSet.
type Change struct {
	ProductID        string
	SellerID         string
	Op               Op
	Quantity         int
	Reason           Reason
	ReferenceOrderID string
}

// NewEntry builds the ledger row for a change that moved rec to newStock.
func NewEntry(rec Record, ch Change, newStock int, at time.Time) Entry {
	return Entry{
		ID:               uuid.NewString(),
		ProductID:        rec.ProductID,
		SellerID:         rec.SellerID,
		PreviousStock:    rec.QuantityOnHand,
		Delta:            newStock - rec.QuantityOnHand,
		NewStock:         newStock,
		Reason:           ch.Reason,
		ReferenceOrderID: ch.ReferenceOrderID,
		CreatedAt:        at.UTC(),
	}
}
